package rollup

import (
	"math"
	"sort"
	"time"

	"service-usage-report/internal/usage"
)

// RetentionTable counts distinct active recipients per cohort and elapsed
// offset. A cohort is a distinct first-event date; the offset for an event
// is the calendar month number of the event minus the month number of the
// recipient's first event. Because only month-of-year is subtracted, an
// event in a later calendar year can land on a negative or wrapped offset;
// the table records whatever offsets arise. Cells are sparse: only
// (cohort, offset) pairs observed in the data exist.
type RetentionTable struct {
	Cohorts []time.Time
	Offsets []int

	active map[time.Time]map[int]int
}

// ActiveAt returns the distinct recipient count for a cohort and offset.
// The second result is false when the cell is not present in the table.
func (rt *RetentionTable) ActiveAt(cohort time.Time, offset int) (int, bool) {
	row, ok := rt.active[cohort]
	if !ok {
		return 0, false
	}
	n, ok := row[offset]
	return n, ok
}

// RetentionRatios holds each retention cell divided by its cohort's own
// offset-zero cell. The base is looked up by offset value, not by column
// position, so a cohort whose smallest observed offset is negative still
// normalizes against offset zero. A cell whose cohort has no offset-zero
// base is NaN.
type RetentionRatios struct {
	Cohorts []time.Time
	Offsets []int

	ratios map[time.Time]map[int]float64
}

// RatioAt returns the retention ratio for a cohort and offset. The second
// result is false when the cell is not present; a present cell may still be
// NaN when the cohort lacks an offset-zero base.
func (rr *RetentionRatios) RatioAt(cohort time.Time, offset int) (float64, bool) {
	row, ok := rr.ratios[cohort]
	if !ok {
		return 0, false
	}
	r, ok := row[offset]
	return r, ok
}

// Retention builds the cohort retention count table and its ratio
// normalization in one pass. Each recipient is assigned to the cohort of
// their earliest event date; every event then contributes the recipient to
// the cell at that cohort and the event's elapsed offset. Cohorts and
// Offsets come back sorted ascending and are shared verbatim between the
// two tables. Rows with a missing id take part in no cohort.
func Retention(t *usage.Table) (*RetentionTable, *RetentionRatios) {
	first := make(map[string]time.Time)
	for _, rec := range t.Records {
		if rec.ID == "" {
			continue
		}
		f, ok := first[rec.ID]
		if !ok || rec.Date.Before(f) {
			first[rec.ID] = rec.Date
		}
	}

	cells := make(map[time.Time]map[int]map[string]struct{})
	offsets := make(map[int]struct{})
	for _, rec := range t.Records {
		if rec.ID == "" {
			continue
		}
		cohort := first[rec.ID]
		elapsed := int(rec.Date.Month()) - int(cohort.Month())
		row, ok := cells[cohort]
		if !ok {
			row = make(map[int]map[string]struct{})
			cells[cohort] = row
		}
		ids, ok := row[elapsed]
		if !ok {
			ids = make(map[string]struct{})
			row[elapsed] = ids
		}
		ids[rec.ID] = struct{}{}
		offsets[elapsed] = struct{}{}
	}

	rt := &RetentionTable{
		Cohorts: make([]time.Time, 0, len(cells)),
		Offsets: make([]int, 0, len(offsets)),
		active:  make(map[time.Time]map[int]int, len(cells)),
	}
	for cohort, row := range cells {
		rt.Cohorts = append(rt.Cohorts, cohort)
		counts := make(map[int]int, len(row))
		for elapsed, ids := range row {
			counts[elapsed] = len(ids)
		}
		rt.active[cohort] = counts
	}
	for elapsed := range offsets {
		rt.Offsets = append(rt.Offsets, elapsed)
	}
	sort.Slice(rt.Cohorts, func(i, j int) bool { return rt.Cohorts[i].Before(rt.Cohorts[j]) })
	sort.Ints(rt.Offsets)

	rr := &RetentionRatios{
		Cohorts: rt.Cohorts,
		Offsets: rt.Offsets,
		ratios:  make(map[time.Time]map[int]float64, len(rt.active)),
	}
	for cohort, counts := range rt.active {
		base, hasBase := counts[0]
		row := make(map[int]float64, len(counts))
		for elapsed, n := range counts {
			if !hasBase || base == 0 {
				row[elapsed] = math.NaN()
				continue
			}
			row[elapsed] = float64(n) / float64(base)
		}
		rr.ratios[cohort] = row
	}
	return rt, rr
}
