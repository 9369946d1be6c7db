package usage

import (
	"strconv"
	"strings"
	"time"
)

// Schema carries the cleaning contract: the columns removed unconditionally
// and the lowercased source names mapped onto canonical ones.
type Schema struct {
	DropColumns []string
	Rename      map[string]string
}

// DefaultSchema returns the documented contract for the service-usage
// export: the synthetic-data flag and calendar-year columns are dropped, and
// four verbose export names collapse to id, date, marital, and education.
func DefaultSchema() Schema {
	return Schema{
		DropColumns: []string{"synthetic_data", "caldr_yr"},
		Rename: map[string]string{
			"mci_uniq_id":     "id",
			"date_of_event":   "date",
			"marital_status":  "marital",
			"education_level": "education",
		},
	}
}

// canonicalColumns is the closed record shape every cleaned table carries.
// Columns outside this set are ignored after the rename step.
var canonicalColumns = []string{"id", "date", "service", "age", "gender", "race", "marital", "education"}

// Preprocess cleans a raw table into the canonical typed table:
//
//  1. columns that are missing in every row are removed (a zero-row table
//     therefore loses all columns and fails at the next step);
//  2. the schema's drop columns are removed unconditionally, matched
//     case-insensitively; an absent drop column is a MissingColumnError;
//  3. column names are lowercased and renamed per the schema, after which
//     every canonical column must be present;
//  4. dates are parsed to date-only values, the month name is derived, age
//     is coerced to a whole integer, and the categorical domains are
//     collected in first-encountered order.
//
// No row is ever dropped for its values: out-of-range ages and demographic
// conflicts pass through untouched.
func Preprocess(raw *Raw, schema Schema) (*Table, error) {
	keep := keepColumns(raw)

	for _, name := range schema.DropColumns {
		found := -1
		for k, i := range keep {
			if strings.EqualFold(strings.TrimSpace(raw.Columns[i]), name) {
				found = k
				break
			}
		}
		if found < 0 {
			return nil, &MissingColumnError{Column: strings.ToLower(name)}
		}
		keep = append(keep[:found], keep[found+1:]...)
	}

	// First occurrence wins when lowercasing or renaming collides.
	colIdx := make(map[string]int, len(keep))
	for _, i := range keep {
		name := strings.ToLower(strings.TrimSpace(raw.Columns[i]))
		if canon, ok := schema.Rename[name]; ok {
			name = canon
		}
		if _, exists := colIdx[name]; !exists {
			colIdx[name] = i
		}
	}
	for _, name := range canonicalColumns {
		if _, ok := colIdx[name]; !ok {
			return nil, &MissingColumnError{Column: name}
		}
	}

	t := &Table{
		Records:   make([]Record, 0, len(raw.Rows)),
		Service:   newDomain(),
		Gender:    newDomain(),
		Race:      newDomain(),
		Marital:   newDomain(),
		Education: newDomain(),
	}

	for n, row := range raw.Rows {
		rowNum := n + 1
		cell := func(name string) string {
			i := colIdx[name]
			if i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		dateValue := cell("date")
		parsed, err := parseDate(dateValue)
		if err != nil {
			return nil, &InvalidDateError{Row: rowNum, Value: dateValue}
		}
		date := dateOnly(parsed)

		ageValue := cell("age")
		age, err := strconv.Atoi(ageValue)
		if err != nil {
			return nil, &InvalidAgeError{Row: rowNum, Value: ageValue}
		}

		rec := Record{
			Date:  date,
			Month: date.Month().String(),
			Age:   age,
		}
		if id := cell("id"); !isMissing(id) {
			rec.ID = id
		}
		rec.Service = t.Service.collect(cell("service"))
		rec.Gender = t.Gender.collect(cell("gender"))
		rec.Race = t.Race.collect(cell("race"))
		rec.Marital = t.Marital.collect(cell("marital"))
		rec.Education = t.Education.collect(cell("education"))

		t.Records = append(t.Records, rec)
	}

	return t, nil
}

// keepColumns returns the indexes of columns that carry at least one value.
func keepColumns(raw *Raw) []int {
	keep := make([]int, 0, len(raw.Columns))
	for i := range raw.Columns {
		missing := true
		for _, row := range raw.Rows {
			if i < len(row) && !isMissing(row[i]) {
				missing = false
				break
			}
		}
		if !missing {
			keep = append(keep, i)
		}
	}
	return keep
}

// collect normalizes a raw categorical cell: missing cells become the empty
// string, anything else joins the domain.
func (d *Domain) collect(value string) string {
	if isMissing(value) {
		return ""
	}
	d.add(value)
	return value
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, &InvalidDateError{Value: value}
	}
	layouts := []string{
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
		"01-02-2006",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05Z07:00",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, &InvalidDateError{Value: value}
}

// dateOnly truncates to the civil date as written, normalized to UTC so
// dates compare and key maps by value.
func dateOnly(value time.Time) time.Time {
	return time.Date(value.Year(), value.Month(), value.Day(), 0, 0, 0, 0, time.UTC)
}
