package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"service-usage-report/internal/config"
	"service-usage-report/internal/report"
	"service-usage-report/internal/rollup"
	"service-usage-report/internal/store"
	"service-usage-report/internal/usage"
)

var log = logrus.New()

func main() {
	defaults := config.Default()

	inputPath := flag.String("input", "", "Path to usage CSV")
	configPath := flag.String("config", "", "Optional YAML run configuration")
	asOf := flag.String("as-of", "", "Report as-of date (YYYY-MM-DD); defaults to now")
	topN := flag.Int("top", defaults.TopN, "Top N recipients to show")
	jsonOut := flag.String("json", "", "Optional JSON output path")
	csvDir := flag.String("csv-dir", "", "Optional directory for per-table CSV exports")
	xlsxOut := flag.String("xlsx", "", "Optional XLSX workbook output path")
	dbEnabled := flag.Bool("db", false, "Store report in Postgres (requires SERVICE_USAGE_DB_URL, DATABASE_URL, or database.url in config)")
	dbSchema := flag.String("db-schema", defaults.Database.Schema, "Postgres schema for report tables")
	dbTag := flag.String("db-tag", "", "Optional label for this run")
	flag.Parse()

	log.SetOutput(os.Stderr)

	cfg := defaults
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			exitWithError(err)
		}
		cfg = *loaded
	}

	// Flags that were given explicitly win over the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Input = *inputPath
		case "top":
			cfg.TopN = *topN
		case "json":
			cfg.Output.JSON = *jsonOut
		case "csv-dir":
			cfg.Output.CSVDir = *csvDir
		case "xlsx":
			cfg.Output.XLSX = *xlsxOut
		case "db-schema":
			cfg.Database.Schema = *dbSchema
		case "db-tag":
			cfg.Database.Tag = *dbTag
		}
	})

	if cfg.Input == "" {
		exitWithError(errors.New("--input is required"))
	}
	if cfg.TopN < 0 {
		exitWithError(errors.New("--top must not be negative"))
	}

	generatedAt := time.Now()
	if *asOf != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(*asOf))
		if err != nil {
			exitWithError(fmt.Errorf("invalid --as-of date: %w", err))
		}
		generatedAt = parsed
	}

	bundle, err := buildBundle(cfg, generatedAt)
	if err != nil {
		exitWithError(err)
	}

	report.Render(os.Stdout, bundle, cfg.TopN)

	if cfg.Output.JSON != "" {
		if err := report.WriteJSON(bundle, cfg.Output.JSON); err != nil {
			exitWithError(err)
		}
		fmt.Printf("\nJSON report saved to %s\n", cfg.Output.JSON)
	}

	if cfg.Output.CSVDir != "" {
		if err := report.WriteCSVDir(bundle, cfg.Output.CSVDir); err != nil {
			exitWithError(err)
		}
		fmt.Printf("CSV tables saved to %s\n", cfg.Output.CSVDir)
	}

	if cfg.Output.XLSX != "" {
		if err := report.WriteWorkbook(bundle, cfg.Output.XLSX); err != nil {
			exitWithError(err)
		}
		fmt.Printf("XLSX workbook saved to %s\n", cfg.Output.XLSX)
	}

	if *dbEnabled {
		url := dbURLFromEnv()
		if url == "" {
			url = cfg.Database.URL
		}
		if url == "" {
			exitWithError(errors.New("database URL missing; set SERVICE_USAGE_DB_URL or DATABASE_URL"))
		}
		cfg.Database.URL = url

		runID, err := store.Save(context.Background(), cfg.Database, bundle)
		if err != nil {
			exitWithError(err)
		}
		fmt.Printf("\nStored report run in Postgres (run_id=%s)\n", runID)
	}
}

// buildBundle runs the whole pipeline: load, clean, label, then derive every
// summary table. The derivations read the same immutable table, so they fan
// out concurrently; only the matrix can fail, on an unlabeled table.
func buildBundle(cfg config.Run, generatedAt time.Time) (*report.Bundle, error) {
	start := time.Now()

	raw, err := loadCSV(cfg.Input)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"input": cfg.Input,
		"rows":  len(raw.Rows),
	}).Info("loaded usage table")

	tbl, err := usage.Preprocess(raw, cfg.Clean.Schema())
	if err != nil {
		return nil, err
	}
	codes := usage.AssignServiceCodes(tbl)
	usage.ApplyAgeBins(tbl)
	log.WithFields(logrus.Fields{
		"rows":     len(tbl.Records),
		"services": codes.Len(),
	}).Info("cleaned and labeled")

	bundle := &report.Bundle{
		Input:       cfg.Input,
		GeneratedAt: generatedAt,
		Rows:        len(tbl.Records),
		Codes:       codes,
	}

	var g errgroup.Group
	g.Go(func() error {
		bundle.Recipients = rollup.RecipientSummaries(tbl)
		return nil
	})
	g.Go(func() error {
		bundle.RecipientMonths = rollup.RecipientMonthSummaries(tbl)
		return nil
	})
	g.Go(func() error {
		bundle.Services = rollup.ServiceSummaries(tbl)
		return nil
	})
	g.Go(func() error {
		bundle.ServiceRecipients = rollup.ServiceRecipientSummaries(tbl)
		return nil
	})
	g.Go(func() error {
		bundle.Retention, bundle.Ratios = rollup.Retention(tbl)
		return nil
	})
	g.Go(func() error {
		matrix, err := rollup.ServiceUsageMatrix(tbl)
		if err != nil {
			return err
		}
		bundle.Matrix = matrix
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"recipients": len(bundle.Recipients),
		"cohorts":    len(bundle.Retention.Cohorts),
		"elapsed":    time.Since(start).Round(time.Millisecond).String(),
	}).Info("derived summary tables")
	return bundle, nil
}

func loadCSV(path string) (*usage.Raw, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return readCSV(file)
}

func readCSV(r io.Reader) (*usage.Raw, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("unable to read header: %w", err)
	}

	raw := &usage.Raw{Columns: headers}
	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("unable to read CSV: %w", err)
		}
		if len(record) == 0 {
			continue
		}
		raw.Rows = append(raw.Rows, record)
	}
	return raw, nil
}

func dbURLFromEnv() string {
	if value := strings.TrimSpace(os.Getenv("SERVICE_USAGE_DB_URL")); value != "" {
		return value
	}
	return strings.TrimSpace(os.Getenv("DATABASE_URL"))
}

func exitWithError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
