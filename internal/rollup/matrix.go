package rollup

import (
	"sort"

	"service-usage-report/internal/usage"
)

// ServiceMatrix is the recipient-by-service-code incidence matrix. Rows are
// recipient ids, columns are assigned service codes, and each cell counts
// the distinct service names behind that (id, code) pair. Codes map to
// exactly one name, so cells are 1 where the recipient used the service and
// 0 everywhere else. The matrix is dense: every id row carries a value for
// every code column.
type ServiceMatrix struct {
	IDs   []string
	Codes []string

	cells map[string]map[string]int
}

// Count returns the cell value for a recipient id and service code. Pairs
// never observed together are 0, including ids and codes absent from the
// matrix entirely.
func (m *ServiceMatrix) Count(id, code string) int {
	row, ok := m.cells[id]
	if !ok {
		return 0
	}
	return row[code]
}

// Row returns a recipient's dense cell values in Codes order.
func (m *ServiceMatrix) Row(id string) []int {
	out := make([]int, len(m.Codes))
	for i, code := range m.Codes {
		out[i] = m.Count(id, code)
	}
	return out
}

// ServiceUsageMatrix pivots a labeled table into the recipient-by-code
// matrix. IDs and Codes come back sorted ascending; codes share a width, so
// their lexicographic order is their numeric order. Every labeled record
// contributes its code to the column set, but only records with an id fill
// cells, so a code observed solely on id-less rows keeps an all-zero column.
// A record carrying a service name without an assigned code means the table
// was never labeled, which is reported as a missing serv column.
func ServiceUsageMatrix(t *usage.Table) (*ServiceMatrix, error) {
	type key struct {
		id   string
		code string
	}

	names := make(map[key]map[string]struct{})
	codes := make(map[string]struct{})
	for _, rec := range t.Records {
		if rec.Service == "" {
			continue
		}
		if rec.Serv == "" {
			return nil, &usage.MissingColumnError{Column: "serv"}
		}
		codes[rec.Serv] = struct{}{}
		if rec.ID == "" {
			continue
		}
		k := key{id: rec.ID, code: rec.Serv}
		set, ok := names[k]
		if !ok {
			set = make(map[string]struct{})
			names[k] = set
		}
		set[rec.Service] = struct{}{}
	}

	m := &ServiceMatrix{
		Codes: make([]string, 0, len(codes)),
		cells: make(map[string]map[string]int),
	}
	for k, set := range names {
		row, ok := m.cells[k.id]
		if !ok {
			row = make(map[string]int)
			m.cells[k.id] = row
			m.IDs = append(m.IDs, k.id)
		}
		row[k.code] = len(set)
	}
	for code := range codes {
		m.Codes = append(m.Codes, code)
	}
	sort.Strings(m.IDs)
	sort.Strings(m.Codes)
	return m, nil
}
