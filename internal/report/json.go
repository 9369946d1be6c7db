package report

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"time"

	"service-usage-report/internal/rollup"
)

// Export is the JSON shape of a bundle. Averages and ratios that are
// undefined carry null, since encoding/json refuses NaN outright.
type Export struct {
	Input             string                          `json:"input"`
	GeneratedAt       time.Time                       `json:"generated_at"`
	Rows              int                             `json:"rows"`
	ServiceCodes      []ServiceCodeExport             `json:"service_codes"`
	Services          []ServiceExport                 `json:"service_summary"`
	ServiceRecipients []rollup.ServiceRecipientSummary `json:"service_recipient_summary"`
	Recipients        []rollup.RecipientSummary       `json:"recipient_summary"`
	RecipientMonths   []rollup.RecipientMonthSummary  `json:"recipient_month_summary"`
	Retention         []CohortExport                  `json:"retention"`
	Matrix            *MatrixExport                   `json:"matrix,omitempty"`
}

// ServiceCodeExport is one code assignment, listed in assignment order.
type ServiceCodeExport struct {
	Code    string `json:"code"`
	Service string `json:"service"`
}

// ServiceExport mirrors rollup.ServiceSummary with a nullable average.
type ServiceExport struct {
	Service             string   `json:"service"`
	TotalUsage          int      `json:"total_usage"`
	NumRecipient        int      `json:"num_recipient"`
	DistinctMonth       int      `json:"distinct_month"`
	AvgMonthlyRecipient *float64 `json:"avg_monthly_recipient"`
}

// CohortExport is one retention row: the cohort date and its observed cells.
type CohortExport struct {
	Cohort string       `json:"cohort"`
	Cells  []CellExport `json:"cells"`
}

// CellExport is one retention cell with its count and normalized ratio.
type CellExport struct {
	Offset int      `json:"offset"`
	Active int      `json:"active"`
	Ratio  *float64 `json:"ratio"`
}

// MatrixExport is the dense recipient-by-code matrix in row-major order.
type MatrixExport struct {
	Codes []string          `json:"codes"`
	Rows  []MatrixRowExport `json:"rows"`
}

// MatrixRowExport is one recipient's matrix row, cells in Codes order.
type MatrixRowExport struct {
	ID    string `json:"id"`
	Cells []int  `json:"cells"`
}

// WriteJSON exports the bundle as an indented JSON document.
func WriteJSON(b *Bundle, path string) error {
	data, err := json.MarshalIndent(buildExport(b), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func buildExport(b *Bundle) Export {
	out := Export{
		Input:             filepath.Base(b.Input),
		GeneratedAt:       b.GeneratedAt,
		Rows:              b.Rows,
		ServiceRecipients: b.ServiceRecipients,
		Recipients:        b.Recipients,
		RecipientMonths:   b.RecipientMonths,
	}

	if b.Codes != nil {
		services := b.Codes.Services()
		codes := b.Codes.Codes()
		out.ServiceCodes = make([]ServiceCodeExport, len(services))
		for i, name := range services {
			out.ServiceCodes[i] = ServiceCodeExport{Code: codes[i], Service: name}
		}
	}

	out.Services = make([]ServiceExport, len(b.Services))
	for i, s := range b.Services {
		out.Services[i] = ServiceExport{
			Service:             s.Service,
			TotalUsage:          s.TotalUsage,
			NumRecipient:        s.NumRecipient,
			DistinctMonth:       s.DistinctMonth,
			AvgMonthlyRecipient: nullableFloat(s.AvgMonthlyRecipient),
		}
	}

	if b.Retention != nil {
		out.Retention = make([]CohortExport, 0, len(b.Retention.Cohorts))
		for _, cohort := range b.Retention.Cohorts {
			row := CohortExport{Cohort: cohort.Format("2006-01-02")}
			for _, offset := range b.Retention.Offsets {
				n, ok := b.Retention.ActiveAt(cohort, offset)
				if !ok {
					continue
				}
				cell := CellExport{Offset: offset, Active: n}
				if b.Ratios != nil {
					if ratio, ok := b.Ratios.RatioAt(cohort, offset); ok {
						cell.Ratio = nullableFloat(ratio)
					}
				}
				row.Cells = append(row.Cells, cell)
			}
			out.Retention = append(out.Retention, row)
		}
	}

	if b.Matrix != nil {
		matrix := &MatrixExport{Codes: b.Matrix.Codes}
		for _, id := range b.Matrix.IDs {
			matrix.Rows = append(matrix.Rows, MatrixRowExport{ID: id, Cells: b.Matrix.Row(id)})
		}
		out.Matrix = matrix
	}
	return out
}

func nullableFloat(value float64) *float64 {
	if math.IsNaN(value) {
		return nil
	}
	return &value
}
