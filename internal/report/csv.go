package report

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"service-usage-report/internal/rollup"
)

// WriteCSVDir writes one CSV per derived table under dir, creating the
// directory as needed. The retention grids are emitted as pivot tables with
// one cohort per row and one offset per column; absent cells stay empty.
func WriteCSVDir(b *Bundle, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := writeServiceCodesCSV(filepath.Join(dir, "service_codes.csv"), b); err != nil {
		return err
	}
	if err := writeServiceSummaryCSV(filepath.Join(dir, "service_summary.csv"), b.Services); err != nil {
		return err
	}
	if err := writeServiceRecipientCSV(filepath.Join(dir, "service_recipient_summary.csv"), b.ServiceRecipients); err != nil {
		return err
	}
	if err := writeRecipientSummaryCSV(filepath.Join(dir, "recipient_summary.csv"), b.Recipients); err != nil {
		return err
	}
	if err := writeRecipientMonthCSV(filepath.Join(dir, "recipient_month_summary.csv"), b.RecipientMonths); err != nil {
		return err
	}
	if err := writeRetentionCountsCSV(filepath.Join(dir, "retention_counts.csv"), b.Retention); err != nil {
		return err
	}
	if err := writeRetentionRatiosCSV(filepath.Join(dir, "retention_ratios.csv"), b.Ratios); err != nil {
		return err
	}
	return writeMatrixCSV(filepath.Join(dir, "id_serv_matrix.csv"), b.Matrix)
}

func writeCSV(path string, header []string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeServiceCodesCSV(path string, b *Bundle) error {
	var rows [][]string
	if b.Codes != nil {
		services := b.Codes.Services()
		codes := b.Codes.Codes()
		for i, name := range services {
			rows = append(rows, []string{codes[i], name})
		}
	}
	return writeCSV(path, []string{"serv", "service"}, rows)
}

func writeServiceSummaryCSV(path string, services []rollup.ServiceSummary) error {
	rows := make([][]string, 0, len(services))
	for _, s := range services {
		avg := ""
		if !s.AvgUndefined() {
			avg = strconv.FormatFloat(s.AvgMonthlyRecipient, 'f', -1, 64)
		}
		rows = append(rows, []string{
			s.Service,
			fmt.Sprintf("%d", s.TotalUsage),
			fmt.Sprintf("%d", s.NumRecipient),
			fmt.Sprintf("%d", s.DistinctMonth),
			avg,
		})
	}
	return writeCSV(path, []string{"service", "total_usage", "num_recipient", "distinct_month", "avg_monthly_recipient"}, rows)
}

func writeServiceRecipientCSV(path string, summaries []rollup.ServiceRecipientSummary) error {
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			s.Service,
			fmt.Sprintf("%d", s.TotalRecipients),
			strconv.FormatFloat(s.AvgRecipientsPerDate, 'f', -1, 64),
		})
	}
	return writeCSV(path, []string{"service", "total_recipients", "avg_recipients_per_date"}, rows)
}

func writeRecipientSummaryCSV(path string, recipients []rollup.RecipientSummary) error {
	rows := make([][]string, 0, len(recipients))
	for _, r := range recipients {
		rows = append(rows, []string{
			r.ID,
			fmt.Sprintf("%d", r.NumService),
			fmt.Sprintf("%d", r.DistinctService),
			formatDate(r.FirstDate),
			formatDate(r.LastDate),
			fmt.Sprintf("%d", r.NumMonth),
			fmt.Sprintf("%d", r.DistinctMonth),
			fmt.Sprintf("%d", r.Age),
			r.AgeBin,
			r.Gender,
			r.Race,
			r.Marital,
			r.Education,
		})
	}
	header := []string{
		"id", "num_service", "distinct_service", "first_date", "last_date",
		"num_month", "distinct_month", "age", "age_bin", "gender", "race", "marital", "education",
	}
	return writeCSV(path, header, rows)
}

func writeRecipientMonthCSV(path string, months []rollup.RecipientMonthSummary) error {
	rows := make([][]string, 0, len(months))
	for _, m := range months {
		rows = append(rows, []string{
			m.ID,
			m.Month,
			fmt.Sprintf("%d", m.NumService),
			fmt.Sprintf("%d", m.Age),
			m.AgeBin,
			m.Gender,
			m.Race,
			m.Marital,
			m.Education,
		})
	}
	header := []string{"id", "month", "num_service", "age", "age_bin", "gender", "race", "marital", "education"}
	return writeCSV(path, header, rows)
}

func writeRetentionCountsCSV(path string, rt *rollup.RetentionTable) error {
	header := []string{"cohort"}
	var rows [][]string
	if rt != nil {
		for _, offset := range rt.Offsets {
			header = append(header, fmt.Sprintf("m%d", offset))
		}
		for _, cohort := range rt.Cohorts {
			row := []string{cohort.Format("2006-01-02")}
			for _, offset := range rt.Offsets {
				if n, ok := rt.ActiveAt(cohort, offset); ok {
					row = append(row, fmt.Sprintf("%d", n))
				} else {
					row = append(row, "")
				}
			}
			rows = append(rows, row)
		}
	}
	return writeCSV(path, header, rows)
}

func writeRetentionRatiosCSV(path string, rr *rollup.RetentionRatios) error {
	header := []string{"cohort"}
	var rows [][]string
	if rr != nil {
		for _, offset := range rr.Offsets {
			header = append(header, fmt.Sprintf("m%d", offset))
		}
		for _, cohort := range rr.Cohorts {
			row := []string{cohort.Format("2006-01-02")}
			for _, offset := range rr.Offsets {
				ratio, ok := rr.RatioAt(cohort, offset)
				if !ok || math.IsNaN(ratio) {
					row = append(row, "")
					continue
				}
				row = append(row, strconv.FormatFloat(ratio, 'f', -1, 64))
			}
			rows = append(rows, row)
		}
	}
	return writeCSV(path, header, rows)
}

func writeMatrixCSV(path string, m *rollup.ServiceMatrix) error {
	header := []string{"id"}
	var rows [][]string
	if m != nil {
		header = append(header, m.Codes...)
		for _, id := range m.IDs {
			row := []string{id}
			for _, n := range m.Row(id) {
				row = append(row, fmt.Sprintf("%d", n))
			}
			rows = append(rows, row)
		}
	}
	return writeCSV(path, header, rows)
}
