package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exportRaw(rows ...[]string) *Raw {
	return &Raw{
		Columns: []string{
			"SYNTHETIC_DATA", "CALDR_YR", "MCI_UNIQ_ID", "DATE_OF_EVENT",
			"SERVICE", "AGE", "GENDER", "RACE", "MARITAL_STATUS", "EDUCATION_LEVEL",
		},
		Rows: rows,
	}
}

func canonicalRaw(rows ...[]string) *Raw {
	return &Raw{
		Columns: []string{
			"synthetic_data", "caldr_yr", "id", "date",
			"service", "age", "gender", "race", "marital", "education",
		},
		Rows: rows,
	}
}

func TestPreprocessCleansExport(t *testing.T) {
	raw := exportRaw(
		[]string{"1", "2020", "1001", "2020-01-05", "Food Support", "34", "F", "White", "Single", "HS"},
		[]string{"1", "2020", "1002", "01/20/2020", "Housing", "71", "M", "Black", "NA", "College"},
		[]string{"1", "2020", "1001", "2020-02-10", "Food Support", "34", "F", "White", "Single", "HS"},
	)

	tbl, err := Preprocess(raw, DefaultSchema())
	require.NoError(t, err)
	require.Len(t, tbl.Records, 3)

	first := tbl.Records[0]
	assert.Equal(t, "1001", first.ID)
	assert.Equal(t, "Food Support", first.Service)
	assert.Equal(t, time.Date(2020, time.January, 5, 0, 0, 0, 0, time.UTC), first.Date)
	assert.Equal(t, "January", first.Month)
	assert.Equal(t, 34, first.Age)
	assert.Equal(t, "F", first.Gender)
	assert.Equal(t, "White", first.Race)
	assert.Equal(t, "Single", first.Marital)
	assert.Equal(t, "HS", first.Education)
	assert.Empty(t, first.Serv, "serv is assigned by the labeler, not preprocessing")
	assert.Empty(t, first.AgeBin, "age_bin is assigned by the labeler, not preprocessing")

	second := tbl.Records[1]
	assert.Equal(t, time.Date(2020, time.January, 20, 0, 0, 0, 0, time.UTC), second.Date)
	assert.Equal(t, "January", second.Month)
	assert.Empty(t, second.Marital, "NA cells normalize to missing")

	assert.Equal(t, []string{"Food Support", "Housing"}, tbl.Service.Values())
	assert.Equal(t, 2, tbl.Service.Len())
	assert.True(t, tbl.Service.Has("Housing"))
	assert.False(t, tbl.Service.Has("Transit"))
	assert.Equal(t, []string{"Single"}, tbl.Marital.Values(), "missing values never join a domain")
	assert.False(t, tbl.Marital.Has("NA"), "missing spellings are not members")
	assert.Equal(t, 1, tbl.Marital.Len())
}

func TestPreprocessIgnoresExtraColumns(t *testing.T) {
	raw := canonicalRaw()
	raw.Columns = append(raw.Columns, "notes")
	raw.Rows = [][]string{
		{"0", "2020", "1001", "2020-01-05", "Food Support", "34", "F", "White", "Single", "HS", "walk-in"},
	}

	tbl, err := Preprocess(raw, DefaultSchema())
	require.NoError(t, err)
	require.Len(t, tbl.Records, 1)
	assert.Equal(t, "1001", tbl.Records[0].ID)
}

func TestPreprocessAllMissingCanonicalColumn(t *testing.T) {
	raw := canonicalRaw(
		[]string{"0", "2020", "1001", "2020-01-05", "Food Support", "34", "F", "", "Single", "HS"},
		[]string{"0", "2020", "1002", "2020-01-06", "Housing", "71", "M", "NA", "Married", "College"},
		[]string{"0", "2020", "1003", "2020-01-07", "Housing", "45", "F", "null", "Single", "HS"},
	)

	_, err := Preprocess(raw, DefaultSchema())
	var missing *MissingColumnError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "race", missing.Column, "a column missing in every row is removed before the shape check")
}

func TestPreprocessEmptyTable(t *testing.T) {
	_, err := Preprocess(canonicalRaw(), DefaultSchema())
	var missing *MissingColumnError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "synthetic_data", missing.Column, "zero rows leave every column all-missing")
}

func TestPreprocessMissingDropColumn(t *testing.T) {
	raw := &Raw{
		Columns: []string{"synthetic_data", "id", "date", "service", "age", "gender", "race", "marital", "education"},
		Rows: [][]string{
			{"0", "1001", "2020-01-05", "Food Support", "34", "F", "White", "Single", "HS"},
		},
	}

	_, err := Preprocess(raw, DefaultSchema())
	var missing *MissingColumnError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "caldr_yr", missing.Column)
}

func TestPreprocessMissingCanonicalColumn(t *testing.T) {
	raw := &Raw{
		Columns: []string{"synthetic_data", "caldr_yr", "id", "date", "service", "age", "race", "marital", "education"},
		Rows: [][]string{
			{"0", "2020", "1001", "2020-01-05", "Food Support", "34", "White", "Single", "HS"},
		},
	}

	_, err := Preprocess(raw, DefaultSchema())
	var missing *MissingColumnError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "gender", missing.Column)
}

func TestPreprocessInvalidDate(t *testing.T) {
	for name, value := range map[string]string{
		"unparseable": "not-a-date",
		"blank":       "",
	} {
		t.Run(name, func(t *testing.T) {
			raw := canonicalRaw(
				[]string{"0", "2020", "1001", "2020-01-05", "Food Support", "34", "F", "White", "Single", "HS"},
				[]string{"0", "2020", "1002", value, "Housing", "71", "M", "Black", "Married", "College"},
			)

			_, err := Preprocess(raw, DefaultSchema())
			var invalid *InvalidDateError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, 2, invalid.Row)
			assert.Equal(t, value, invalid.Value)
		})
	}
}

func TestPreprocessDateLayouts(t *testing.T) {
	want := time.Date(2020, time.March, 7, 0, 0, 0, 0, time.UTC)
	for _, value := range []string{
		"2020-03-07",
		"2020/03/07",
		"03/07/2020",
		"03-07-2020",
		"2020-03-07 13:45:00",
		"2020-03-07T13:45:00",
	} {
		t.Run(value, func(t *testing.T) {
			raw := canonicalRaw(
				[]string{"0", "2020", "1001", value, "Food Support", "34", "F", "White", "Single", "HS"},
			)

			tbl, err := Preprocess(raw, DefaultSchema())
			require.NoError(t, err)
			require.Len(t, tbl.Records, 1)
			assert.Equal(t, want, tbl.Records[0].Date, "time-of-day truncates to the civil date")
			assert.Equal(t, "March", tbl.Records[0].Month)
		})
	}
}

func TestPreprocessInvalidAge(t *testing.T) {
	for name, value := range map[string]string{
		"fractional": "25.0",
		"text":       "unknown",
		"blank":      "",
	} {
		t.Run(name, func(t *testing.T) {
			raw := canonicalRaw(
				[]string{"0", "2020", "1001", "2020-01-05", "Food Support", value, "F", "White", "Single", "HS"},
			)

			_, err := Preprocess(raw, DefaultSchema())
			var invalid *InvalidAgeError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, 1, invalid.Row)
			assert.Equal(t, value, invalid.Value)
		})
	}
}

func TestPreprocessKeepsRowsRegardlessOfValues(t *testing.T) {
	raw := canonicalRaw(
		[]string{"0", "2020", "1001", "2020-01-05", "Food Support", "999", "F", "White", "Single", "HS"},
		[]string{"0", "2020", "1001", "2020-01-06", "Housing", "-3", "M", "Black", "Married", "College"},
		[]string{"0", "2020", "", "2020-01-07", "", "34", "", "", "", ""},
	)

	tbl, err := Preprocess(raw, DefaultSchema())
	require.NoError(t, err)
	require.Len(t, tbl.Records, 3, "value content never drops a row")

	assert.Equal(t, 999, tbl.Records[0].Age)
	assert.Equal(t, -3, tbl.Records[1].Age)
	assert.Equal(t, "M", tbl.Records[1].Gender, "conflicting demographics for one id pass through untouched")
	assert.Empty(t, tbl.Records[2].ID)
	assert.Empty(t, tbl.Records[2].Service)
}
