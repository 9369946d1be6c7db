// Package report renders a pipeline run as console text and exports the
// derived tables as JSON, CSV, and XLSX artifacts.
package report

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"service-usage-report/internal/rollup"
	"service-usage-report/internal/usage"
)

// Bundle collects everything one pipeline run derived from the input table.
// All exporters read from the same bundle so the artifacts always agree.
type Bundle struct {
	Input       string
	GeneratedAt time.Time
	Rows        int

	Codes             *usage.ServiceCodes
	Recipients        []rollup.RecipientSummary
	RecipientMonths   []rollup.RecipientMonthSummary
	Services          []rollup.ServiceSummary
	ServiceRecipients []rollup.ServiceRecipientSummary
	Retention         *rollup.RetentionTable
	Ratios            *rollup.RetentionRatios
	Matrix            *rollup.ServiceMatrix
}

const ruleWidth = 38

// cohortPreview caps the console retention section; the full grid goes to
// the CSV and XLSX exports.
const cohortPreview = 12

// Render writes the human-readable report. topN bounds the recipient
// leaderboard; everything else prints in full except the retention grid,
// which is previewed.
func Render(w io.Writer, b *Bundle, topN int) {
	fmt.Fprintln(w, "Service Usage Report")
	fmt.Fprintln(w, strings.Repeat("=", ruleWidth))
	fmt.Fprintf(w, "Input: %s\n", filepath.Base(b.Input))
	fmt.Fprintf(w, "Generated: %s\n", b.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Rows: %d | Recipients: %d | Services: %d\n", b.Rows, len(b.Recipients), len(b.Services))
	if first, last, ok := b.eventWindow(); ok {
		fmt.Fprintf(w, "Events from %s to %s\n", first.Format("2006-01-02"), last.Format("2006-01-02"))
	}

	fmt.Fprintln(w, "\nService summary")
	fmt.Fprintln(w, strings.Repeat("-", ruleWidth))
	if len(b.Services) == 0 {
		fmt.Fprintln(w, "No services found.")
	}
	for _, s := range b.Services {
		fmt.Fprintf(w, "%s | %s | usage %d | recipients %d | months %d | avg monthly %s\n",
			b.codeFor(s.Service),
			s.Service,
			s.TotalUsage,
			s.NumRecipient,
			s.DistinctMonth,
			formatAvg(s.AvgMonthlyRecipient),
		)
	}

	fmt.Fprintln(w, "\nTop recipients by events")
	fmt.Fprintln(w, strings.Repeat("-", ruleWidth))
	top := topRecipients(b.Recipients, topN)
	if len(top) == 0 {
		fmt.Fprintln(w, "No recipients found.")
	}
	for _, r := range top {
		fmt.Fprintf(w, "%s | events %d | services %d | months %d | first %s | last %s\n",
			r.ID,
			r.NumService,
			r.DistinctService,
			r.DistinctMonth,
			r.FirstDate.Format("2006-01-02"),
			r.LastDate.Format("2006-01-02"),
		)
	}

	if len(b.Recipients) > 0 {
		fmt.Fprintln(w, "\nRecipient age distribution")
		fmt.Fprintln(w, strings.Repeat("-", ruleWidth))
		binned, unbinned := ageDistribution(b.Recipients)
		for _, label := range usage.AgeBinLabels() {
			if binned[label] == 0 {
				continue
			}
			fmt.Fprintf(w, "%s: %d\n", label, binned[label])
		}
		if unbinned > 0 {
			fmt.Fprintf(w, "unbinned: %d\n", unbinned)
		}
	}

	fmt.Fprintln(w, "\nRetention cohorts")
	fmt.Fprintln(w, strings.Repeat("-", ruleWidth))
	if b.Retention == nil || len(b.Retention.Cohorts) == 0 {
		fmt.Fprintln(w, "No cohorts found.")
	} else {
		cohorts := b.Retention.Cohorts
		shown := cohorts
		if len(shown) > cohortPreview {
			shown = shown[:cohortPreview]
		}
		for _, cohort := range shown {
			fmt.Fprintf(w, "%s |", cohort.Format("2006-01-02"))
			for _, offset := range b.Retention.Offsets {
				if n, ok := b.Retention.ActiveAt(cohort, offset); ok {
					fmt.Fprintf(w, " m%d=%d", offset, n)
				}
			}
			fmt.Fprintln(w)
		}
		if len(cohorts) > len(shown) {
			fmt.Fprintf(w, "... and %d more cohorts\n", len(cohorts)-len(shown))
		}
	}

	if b.Matrix != nil {
		fmt.Fprintf(w, "\nRecipient-service matrix: %d x %d\n", len(b.Matrix.IDs), len(b.Matrix.Codes))
	}
}

func (b *Bundle) eventWindow() (time.Time, time.Time, bool) {
	if len(b.Recipients) == 0 {
		return time.Time{}, time.Time{}, false
	}
	first := b.Recipients[0].FirstDate
	last := b.Recipients[0].LastDate
	for _, r := range b.Recipients[1:] {
		if r.FirstDate.Before(first) {
			first = r.FirstDate
		}
		if r.LastDate.After(last) {
			last = r.LastDate
		}
	}
	return first, last, true
}

func (b *Bundle) codeFor(service string) string {
	if b.Codes == nil {
		return "-"
	}
	code, err := b.Codes.Code(service)
	if err != nil {
		return "-"
	}
	return code
}

// topRecipients ranks by event count descending, breaking ties by id so the
// leaderboard is stable run to run.
func topRecipients(recipients []rollup.RecipientSummary, n int) []rollup.RecipientSummary {
	ranked := append([]rollup.RecipientSummary(nil), recipients...)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].NumService != ranked[j].NumService {
			return ranked[i].NumService > ranked[j].NumService
		}
		return ranked[i].ID < ranked[j].ID
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func ageDistribution(recipients []rollup.RecipientSummary) (map[string]int, int) {
	binned := make(map[string]int)
	unbinned := 0
	for _, r := range recipients {
		if r.AgeBin == "" {
			unbinned++
			continue
		}
		binned[r.AgeBin]++
	}
	return binned, unbinned
}

func formatAvg(value float64) string {
	if math.IsNaN(value) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", value)
}

func formatDate(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.Format("2006-01-02")
}
