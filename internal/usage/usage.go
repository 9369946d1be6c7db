// Package usage models cleaned service-usage transactions: the raw tabular
// input, the canonical typed table produced by preprocessing, and the label
// derivations (service codes, age bins) the summary builders consume.
package usage

import (
	"strings"
	"time"
)

// Record is one service transaction: a recipient received one service
// category on one date. Month, Serv, and AgeBin are derived fields; Serv and
// AgeBin stay empty until the labeler runs.
type Record struct {
	ID        string
	Service   string
	Date      time.Time
	Month     string
	Age       int
	Gender    string
	Race      string
	Marital   string
	Education string
	Serv      string
	AgeBin    string
}

// Table is the canonical cleaned table: records in input order plus one
// categorical domain per coded field. Summary builders treat a Table as
// read-only; only the labeler writes to it after preprocessing.
type Table struct {
	Records []Record

	Service   *Domain
	Gender    *Domain
	Race      *Domain
	Marital   *Domain
	Education *Domain
}

// Raw is the untyped tabular input handed to Preprocess: a header row and
// string cells, as read from a CSV or built in memory by the caller.
type Raw struct {
	Columns []string
	Rows    [][]string
}

// Domain is a closed categorical value set in first-encountered order.
// Blank cells are missing values, not members.
type Domain struct {
	values []string
	index  map[string]int
}

func newDomain() *Domain {
	return &Domain{index: make(map[string]int)}
}

func (d *Domain) add(value string) {
	if _, ok := d.index[value]; ok {
		return
	}
	d.index[value] = len(d.values)
	d.values = append(d.values, value)
}

// Values returns the member values in first-encountered order.
func (d *Domain) Values() []string {
	return append([]string(nil), d.values...)
}

// Has reports whether value is a member of the domain.
func (d *Domain) Has(value string) bool {
	_, ok := d.index[value]
	return ok
}

// Len returns the number of distinct values in the domain.
func (d *Domain) Len() int {
	return len(d.values)
}

// isMissing reports whether a raw cell carries no value. Besides the empty
// string this covers the usual NA spellings produced by exports.
func isMissing(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return true
	}
	switch strings.ToLower(value) {
	case "na", "n/a", "nan", "null":
		return true
	}
	return false
}
