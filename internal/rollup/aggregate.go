// Package rollup derives the analyst-facing summary tables from a cleaned,
// labeled usage table: per-recipient and per-service rollups, retention
// cohorts, and the recipient-by-service matrix. Every function is a pure
// full-pass transform over an immutable table; results are recomputed from
// scratch on each call.
package rollup

import (
	"math"
	"sort"
	"time"

	"service-usage-report/internal/usage"
)

// Demographics carries the recipient attributes propagated onto summary
// rows. Values come from the recipient's first-occurring record; recipients
// are assumed demographically constant, so later conflicting rows never win.
type Demographics struct {
	Age       int    `json:"age"`
	AgeBin    string `json:"age_bin"`
	Gender    string `json:"gender"`
	Race      string `json:"race"`
	Marital   string `json:"marital"`
	Education string `json:"education"`
}

func demographicsOf(rec usage.Record) Demographics {
	return Demographics{
		Age:       rec.Age,
		AgeBin:    rec.AgeBin,
		Gender:    rec.Gender,
		Race:      rec.Race,
		Marital:   rec.Marital,
		Education: rec.Education,
	}
}

// RecipientSummary is one recipient's usage rolled up across the whole
// table. NumMonth equals NumService whenever every row carries a month
// label, which preprocessing guarantees; both are kept because they answer
// different questions downstream.
type RecipientSummary struct {
	ID              string    `json:"id"`
	NumService      int       `json:"num_service"`
	DistinctService int       `json:"distinct_service"`
	FirstDate       time.Time `json:"first_date"`
	LastDate        time.Time `json:"last_date"`
	NumMonth        int       `json:"num_month"`
	DistinctMonth   int       `json:"distinct_month"`
	Demographics
}

// RecipientMonthSummary is one recipient's usage within one named month.
type RecipientMonthSummary struct {
	ID         string `json:"id"`
	Month      string `json:"month"`
	NumService int    `json:"num_service"`
	Demographics
}

// ServiceSummary is one service category's usage across the whole table.
// AvgMonthlyRecipient is NaN when the service has no month-labeled rows;
// callers must check AvgUndefined rather than rely on a zero.
type ServiceSummary struct {
	Service             string  `json:"service"`
	TotalUsage          int     `json:"total_usage"`
	NumRecipient        int     `json:"num_recipient"`
	DistinctMonth       int     `json:"distinct_month"`
	AvgMonthlyRecipient float64 `json:"avg_monthly_recipient"`
}

// AvgUndefined reports whether the monthly average could not be computed
// because the service had zero distinct months.
func (s ServiceSummary) AvgUndefined() bool {
	return math.IsNaN(s.AvgMonthlyRecipient)
}

// ServiceRecipientSummary aggregates a service's per-date distinct recipient
// counts: TotalRecipients sums them, AvgRecipientsPerDate averages them over
// the dates the service was active.
type ServiceRecipientSummary struct {
	Service              string  `json:"service"`
	TotalRecipients      int     `json:"total_recipients"`
	AvgRecipientsPerDate float64 `json:"avg_recipients_per_date"`
}

// RecipientSummaries groups the table by recipient id and rolls up event
// counts, distinct services, the first and last event dates, and month
// counts, then attaches each recipient's first-occurrence demographics.
// Rows with a missing id belong to no group and are left out, as are
// missing service and month cells within a group's counts. Output is sorted
// by id ascending.
func RecipientSummaries(t *usage.Table) []RecipientSummary {
	type acc struct {
		summary  RecipientSummary
		services map[string]struct{}
		months   map[string]struct{}
	}

	groups := make(map[string]*acc)
	for _, rec := range t.Records {
		if rec.ID == "" {
			continue
		}
		g, ok := groups[rec.ID]
		if !ok {
			g = &acc{
				summary: RecipientSummary{
					ID:           rec.ID,
					FirstDate:    rec.Date,
					LastDate:     rec.Date,
					Demographics: demographicsOf(rec),
				},
				services: make(map[string]struct{}),
				months:   make(map[string]struct{}),
			}
			groups[rec.ID] = g
		}
		if rec.Service != "" {
			g.summary.NumService++
			g.services[rec.Service] = struct{}{}
		}
		if rec.Month != "" {
			g.summary.NumMonth++
			g.months[rec.Month] = struct{}{}
		}
		if rec.Date.Before(g.summary.FirstDate) {
			g.summary.FirstDate = rec.Date
		}
		if rec.Date.After(g.summary.LastDate) {
			g.summary.LastDate = rec.Date
		}
	}

	out := make([]RecipientSummary, 0, len(groups))
	for _, g := range groups {
		g.summary.DistinctService = len(g.services)
		g.summary.DistinctMonth = len(g.months)
		out = append(out, g.summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RecipientMonthSummaries groups the table by (id, month) and counts the
// service events in each pair, attaching first-occurrence demographics per
// pair. Output is sorted by id, then month name.
func RecipientMonthSummaries(t *usage.Table) []RecipientMonthSummary {
	type key struct {
		id    string
		month string
	}

	groups := make(map[key]*RecipientMonthSummary)
	for _, rec := range t.Records {
		if rec.ID == "" || rec.Month == "" {
			continue
		}
		k := key{id: rec.ID, month: rec.Month}
		g, ok := groups[k]
		if !ok {
			g = &RecipientMonthSummary{
				ID:           rec.ID,
				Month:        rec.Month,
				Demographics: demographicsOf(rec),
			}
			groups[k] = g
		}
		if rec.Service != "" {
			g.NumService++
		}
	}

	out := make([]RecipientMonthSummary, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Month < out[j].Month
	})
	return out
}

// ServiceSummaries groups the table by service category and rolls up total
// usage, distinct recipients, and distinct months, then derives the average
// monthly recipients as total usage over distinct months. A service with
// zero distinct months yields NaN, never a silent zero. Output is sorted by
// service name.
func ServiceSummaries(t *usage.Table) []ServiceSummary {
	type acc struct {
		summary    ServiceSummary
		recipients map[string]struct{}
		months     map[string]struct{}
	}

	groups := make(map[string]*acc)
	for _, rec := range t.Records {
		if rec.Service == "" {
			continue
		}
		g, ok := groups[rec.Service]
		if !ok {
			g = &acc{
				summary:    ServiceSummary{Service: rec.Service},
				recipients: make(map[string]struct{}),
				months:     make(map[string]struct{}),
			}
			groups[rec.Service] = g
		}
		if rec.ID != "" {
			g.summary.TotalUsage++
			g.recipients[rec.ID] = struct{}{}
		}
		if rec.Month != "" {
			g.months[rec.Month] = struct{}{}
		}
	}

	out := make([]ServiceSummary, 0, len(groups))
	for _, g := range groups {
		g.summary.NumRecipient = len(g.recipients)
		g.summary.DistinctMonth = len(g.months)
		if g.summary.DistinctMonth == 0 {
			g.summary.AvgMonthlyRecipient = math.NaN()
		} else {
			g.summary.AvgMonthlyRecipient = float64(g.summary.TotalUsage) / float64(g.summary.DistinctMonth)
		}
		out = append(out, g.summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// ServiceRecipientSummaries counts distinct recipients per (service, date)
// pair, then rolls the per-date counts up per service as a sum and a mean.
// Output is sorted by service name.
func ServiceRecipientSummaries(t *usage.Table) []ServiceRecipientSummary {
	type key struct {
		service string
		date    time.Time
	}

	perDate := make(map[key]map[string]struct{})
	for _, rec := range t.Records {
		if rec.Service == "" {
			continue
		}
		k := key{service: rec.Service, date: rec.Date}
		ids, ok := perDate[k]
		if !ok {
			ids = make(map[string]struct{})
			perDate[k] = ids
		}
		if rec.ID != "" {
			ids[rec.ID] = struct{}{}
		}
	}

	type acc struct {
		total int
		dates int
	}
	groups := make(map[string]*acc)
	for k, ids := range perDate {
		g, ok := groups[k.service]
		if !ok {
			g = &acc{}
			groups[k.service] = g
		}
		g.total += len(ids)
		g.dates++
	}

	out := make([]ServiceRecipientSummary, 0, len(groups))
	for service, g := range groups {
		out = append(out, ServiceRecipientSummary{
			Service:              service,
			TotalRecipients:      g.total,
			AvgRecipientsPerDate: float64(g.total) / float64(g.dates),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}
