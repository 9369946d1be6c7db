package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"service-usage-report/internal/config"
	"service-usage-report/internal/usage"
)

func TestMain(m *testing.M) {
	log.SetLevel(logrus.WarnLevel)
	goleak.VerifyTestMain(m)
}

const sampleCSV = `SYNTHETIC_DATA,CALDR_YR,MCI_UNIQ_ID,DATE_OF_EVENT,SERVICE,AGE,GENDER,RACE,MARITAL_STATUS,EDUCATION_LEVEL
1,2020,1001,2020-01-05,Food Support,34,F,White,Single,HS
1,2020,1002,2020-01-20,Housing,71,M,Black,Married,College
1,2020,1001,2020-02-10,Food Support,34,F,White,Single,HS
`

func writeUsageCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usage.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestBuildBundle(t *testing.T) {
	cfg := config.Default()
	cfg.Input = writeUsageCSV(t, sampleCSV)
	asOf := time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC)

	bundle, err := buildBundle(cfg, asOf)
	require.NoError(t, err)

	assert.Equal(t, asOf, bundle.GeneratedAt)
	assert.Equal(t, 3, bundle.Rows)

	require.Len(t, bundle.Recipients, 2)
	assert.Equal(t, "1001", bundle.Recipients[0].ID)
	assert.Equal(t, 2, bundle.Recipients[0].NumService)
	assert.Equal(t, "30-39", bundle.Recipients[0].AgeBin)

	require.Len(t, bundle.Services, 2)
	assert.Equal(t, "Food Support", bundle.Services[0].Service)

	require.NotNil(t, bundle.Codes)
	code, err := bundle.Codes.Code("Food Support")
	require.NoError(t, err)
	assert.Equal(t, "S01", code)

	require.NotNil(t, bundle.Retention)
	assert.Len(t, bundle.Retention.Cohorts, 2)
	require.NotNil(t, bundle.Ratios)

	require.NotNil(t, bundle.Matrix)
	assert.Equal(t, []string{"1001", "1002"}, bundle.Matrix.IDs)
	assert.Equal(t, []string{"S01", "S02"}, bundle.Matrix.Codes)

	require.Len(t, bundle.RecipientMonths, 3)
	require.Len(t, bundle.ServiceRecipients, 2)
}

func TestBuildBundleCleanOverrides(t *testing.T) {
	csvData := `CLIENT_ID,DATE_OF_EVENT,SERVICE,AGE,GENDER,RACE,MARITAL_STATUS,EDUCATION_LEVEL,BATCH_ID
1001,2020-01-05,Food Support,34,F,White,Single,HS,b7
`
	cfg := config.Default()
	cfg.Input = writeUsageCSV(t, csvData)
	cfg.Clean = config.Clean{
		DropColumns: []string{"batch_id"},
		Rename:      map[string]string{"CLIENT_ID": "id"},
	}

	bundle, err := buildBundle(cfg, time.Now())
	require.NoError(t, err)
	require.Len(t, bundle.Recipients, 1)
	assert.Equal(t, "1001", bundle.Recipients[0].ID)
}

func TestBuildBundleInvalidDate(t *testing.T) {
	csvData := `SYNTHETIC_DATA,CALDR_YR,MCI_UNIQ_ID,DATE_OF_EVENT,SERVICE,AGE,GENDER,RACE,MARITAL_STATUS,EDUCATION_LEVEL
1,2020,1001,2020-01-05,Food Support,34,F,White,Single,HS
1,2020,1002,garbage,Housing,71,M,Black,Married,College
`
	cfg := config.Default()
	cfg.Input = writeUsageCSV(t, csvData)

	_, err := buildBundle(cfg, time.Now())
	var invalid *usage.InvalidDateError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 2, invalid.Row)
	assert.Equal(t, "garbage", invalid.Value)
}

func TestBuildBundleMissingColumn(t *testing.T) {
	csvData := `SYNTHETIC_DATA,MCI_UNIQ_ID,DATE_OF_EVENT,SERVICE,AGE,GENDER,RACE,MARITAL_STATUS,EDUCATION_LEVEL
1,1001,2020-01-05,Food Support,34,F,White,Single,HS
`
	cfg := config.Default()
	cfg.Input = writeUsageCSV(t, csvData)

	_, err := buildBundle(cfg, time.Now())
	var missing *usage.MissingColumnError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "caldr_yr", missing.Column)
}

func TestReadCSV(t *testing.T) {
	raw, err := readCSV(strings.NewReader("a,b,c\n1,2,3\n4,5\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, raw.Columns)
	require.Len(t, raw.Rows, 2)
	assert.Equal(t, []string{"4", "5"}, raw.Rows[1], "short rows pass through for the cleaner to handle")
}

func TestReadCSVEmpty(t *testing.T) {
	_, err := readCSV(strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to read header")
}

func TestLoadCSVMissingFile(t *testing.T) {
	_, err := loadCSV(filepath.Join(t.TempDir(), "absent.csv"))
	assert.Error(t, err)
}
