package report

import (
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"
)

// WriteWorkbook exports the bundle as a multi-sheet XLSX workbook, one sheet
// per derived table. Cell layout matches the CSV exports so the two formats
// stay interchangeable.
func WriteWorkbook(b *Bundle, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", "Service_Summary")
	writeSheet(f, "Service_Summary",
		[]string{"service", "total_usage", "num_recipient", "distinct_month", "avg_monthly_recipient"},
		serviceRows(b))

	f.NewSheet("Service_Recipients")
	writeSheet(f, "Service_Recipients",
		[]string{"service", "total_recipients", "avg_recipients_per_date"},
		serviceRecipientRows(b))

	f.NewSheet("Recipients")
	writeSheet(f, "Recipients",
		[]string{
			"id", "num_service", "distinct_service", "first_date", "last_date",
			"num_month", "distinct_month", "age", "age_bin", "gender", "race", "marital", "education",
		},
		recipientRows(b))

	f.NewSheet("Recipient_Months")
	writeSheet(f, "Recipient_Months",
		[]string{"id", "month", "num_service", "age", "age_bin", "gender", "race", "marital", "education"},
		recipientMonthRows(b))

	f.NewSheet("Retention_Counts")
	writeSheet(f, "Retention_Counts", retentionHeader(b), retentionCountRows(b))

	f.NewSheet("Retention_Ratios")
	writeSheet(f, "Retention_Ratios", retentionHeader(b), retentionRatioRows(b))

	f.NewSheet("Matrix")
	writeSheet(f, "Matrix", matrixHeader(b), matrixRows(b))

	f.NewSheet("Service_Codes")
	writeSheet(f, "Service_Codes", []string{"serv", "service"}, serviceCodeRows(b))

	return f.SaveAs(path)
}

// writeSheet fills one sheet: headers on row 1, data below, nil cells left
// empty.
func writeSheet(f *excelize.File, sheet string, header []string, rows [][]interface{}) {
	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, 18)
	}
	for r, row := range rows {
		for c, value := range row {
			if value == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			f.SetCellValue(sheet, cell, value)
		}
	}
}

func serviceRows(b *Bundle) [][]interface{} {
	rows := make([][]interface{}, 0, len(b.Services))
	for _, s := range b.Services {
		var avg interface{}
		if !s.AvgUndefined() {
			avg = s.AvgMonthlyRecipient
		}
		rows = append(rows, []interface{}{s.Service, s.TotalUsage, s.NumRecipient, s.DistinctMonth, avg})
	}
	return rows
}

func serviceRecipientRows(b *Bundle) [][]interface{} {
	rows := make([][]interface{}, 0, len(b.ServiceRecipients))
	for _, s := range b.ServiceRecipients {
		rows = append(rows, []interface{}{s.Service, s.TotalRecipients, s.AvgRecipientsPerDate})
	}
	return rows
}

func recipientRows(b *Bundle) [][]interface{} {
	rows := make([][]interface{}, 0, len(b.Recipients))
	for _, r := range b.Recipients {
		rows = append(rows, []interface{}{
			r.ID, r.NumService, r.DistinctService, formatDate(r.FirstDate), formatDate(r.LastDate),
			r.NumMonth, r.DistinctMonth, r.Age, r.AgeBin, r.Gender, r.Race, r.Marital, r.Education,
		})
	}
	return rows
}

func recipientMonthRows(b *Bundle) [][]interface{} {
	rows := make([][]interface{}, 0, len(b.RecipientMonths))
	for _, m := range b.RecipientMonths {
		rows = append(rows, []interface{}{
			m.ID, m.Month, m.NumService, m.Age, m.AgeBin, m.Gender, m.Race, m.Marital, m.Education,
		})
	}
	return rows
}

func retentionHeader(b *Bundle) []string {
	header := []string{"cohort"}
	if b.Retention != nil {
		for _, offset := range b.Retention.Offsets {
			header = append(header, fmt.Sprintf("m%d", offset))
		}
	}
	return header
}

func retentionCountRows(b *Bundle) [][]interface{} {
	if b.Retention == nil {
		return nil
	}
	rows := make([][]interface{}, 0, len(b.Retention.Cohorts))
	for _, cohort := range b.Retention.Cohorts {
		row := []interface{}{cohort.Format("2006-01-02")}
		for _, offset := range b.Retention.Offsets {
			if n, ok := b.Retention.ActiveAt(cohort, offset); ok {
				row = append(row, n)
			} else {
				row = append(row, nil)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func retentionRatioRows(b *Bundle) [][]interface{} {
	if b.Ratios == nil {
		return nil
	}
	rows := make([][]interface{}, 0, len(b.Ratios.Cohorts))
	for _, cohort := range b.Ratios.Cohorts {
		row := []interface{}{cohort.Format("2006-01-02")}
		for _, offset := range b.Ratios.Offsets {
			ratio, ok := b.Ratios.RatioAt(cohort, offset)
			if !ok || math.IsNaN(ratio) {
				row = append(row, nil)
				continue
			}
			row = append(row, ratio)
		}
		rows = append(rows, row)
	}
	return rows
}

func matrixHeader(b *Bundle) []string {
	header := []string{"id"}
	if b.Matrix != nil {
		header = append(header, b.Matrix.Codes...)
	}
	return header
}

func matrixRows(b *Bundle) [][]interface{} {
	if b.Matrix == nil {
		return nil
	}
	rows := make([][]interface{}, 0, len(b.Matrix.IDs))
	for _, id := range b.Matrix.IDs {
		row := []interface{}{id}
		for _, n := range b.Matrix.Row(id) {
			row = append(row, n)
		}
		rows = append(rows, row)
	}
	return rows
}

func serviceCodeRows(b *Bundle) [][]interface{} {
	if b.Codes == nil {
		return nil
	}
	services := b.Codes.Services()
	codes := b.Codes.Codes()
	rows := make([][]interface{}, 0, len(services))
	for i, name := range services {
		rows = append(rows, []interface{}{codes[i], name})
	}
	return rows
}
