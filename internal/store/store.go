// Package store persists report bundles to Postgres. The derivation core
// never touches the database; only the CLI calls Save, and only when a sink
// is configured.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"service-usage-report/internal/config"
	"service-usage-report/internal/report"
)

// Save writes one run and its derived tables in a single transaction and
// returns the run id. The schema and tables are created when absent.
func Save(ctx context.Context, cfg config.Database, b *report.Bundle) (string, error) {
	schema, err := sanitizeSchema(cfg.Schema)
	if err != nil {
		return "", err
	}

	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return "", err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, 12*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return "", err
	}

	if err := ensureSchema(ctx, db, schema); err != nil {
		return "", err
	}

	return saveTx(ctx, db, b, schema, cfg.Tag)
}

func sanitizeSchema(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errors.New("db schema is required")
	}
	valid := regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	if !valid.MatchString(value) {
		return "", fmt.Errorf("invalid schema name: %s", value)
	}
	return value, nil
}

func saveTx(ctx context.Context, db *sql.DB, b *report.Bundle, schema string, tag string) (string, error) {
	runID := uuid.New()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s.usage_runs (
			id, input, generated_at, row_count, recipient_count, service_count, run_tag
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7
		)`, schema),
		runID,
		nullString(b.Input),
		b.GeneratedAt,
		b.Rows,
		len(b.Recipients),
		len(b.Services),
		nullString(tag),
	)
	if err != nil {
		_ = tx.Rollback()
		return "", err
	}

	insertServiceSQL := fmt.Sprintf(`
		INSERT INTO %s.usage_service_summary (
			id, run_id, serv, service, total_usage, num_recipient,
			distinct_month, avg_monthly_recipient
		) VALUES (
			$1,$2,$3,$4,$5,$6,
			$7,$8
		)`, schema)

	for _, s := range b.Services {
		code := ""
		if b.Codes != nil {
			if c, cerr := b.Codes.Code(s.Service); cerr == nil {
				code = c
			}
		}
		_, err = tx.ExecContext(ctx, insertServiceSQL,
			uuid.New(),
			runID,
			nullString(code),
			s.Service,
			s.TotalUsage,
			s.NumRecipient,
			s.DistinctMonth,
			nullFloat(s.AvgMonthlyRecipient),
		)
		if err != nil {
			_ = tx.Rollback()
			return "", err
		}
	}

	insertRecipientSQL := fmt.Sprintf(`
		INSERT INTO %s.usage_recipient_summary (
			id, run_id, recipient_id, num_service, distinct_service,
			first_date, last_date, num_month, distinct_month,
			age, age_bin, gender, race, marital, education
		) VALUES (
			$1,$2,$3,$4,$5,
			$6,$7,$8,$9,
			$10,$11,$12,$13,$14,$15
		)`, schema)

	for _, r := range b.Recipients {
		_, err = tx.ExecContext(ctx, insertRecipientSQL,
			uuid.New(),
			runID,
			r.ID,
			r.NumService,
			r.DistinctService,
			nullDate(r.FirstDate),
			nullDate(r.LastDate),
			r.NumMonth,
			r.DistinctMonth,
			r.Age,
			nullString(r.AgeBin),
			nullString(r.Gender),
			nullString(r.Race),
			nullString(r.Marital),
			nullString(r.Education),
		)
		if err != nil {
			_ = tx.Rollback()
			return "", err
		}
	}

	if b.Retention != nil {
		insertRetentionSQL := fmt.Sprintf(`
			INSERT INTO %s.usage_retention (
				id, run_id, cohort, elapsed, active, ratio
			) VALUES (
				$1,$2,$3,$4,$5,$6
			)`, schema)

		for _, cohort := range b.Retention.Cohorts {
			for _, offset := range b.Retention.Offsets {
				n, ok := b.Retention.ActiveAt(cohort, offset)
				if !ok {
					continue
				}
				ratio := sql.NullFloat64{}
				if b.Ratios != nil {
					if r, ok := b.Ratios.RatioAt(cohort, offset); ok {
						ratio = nullFloat(r)
					}
				}
				_, err = tx.ExecContext(ctx, insertRetentionSQL,
					uuid.New(),
					runID,
					cohort,
					offset,
					n,
					ratio,
				)
				if err != nil {
					_ = tx.Rollback()
					return "", err
				}
			}
		}
	}

	if b.Matrix != nil {
		insertCellSQL := fmt.Sprintf(`
			INSERT INTO %s.usage_matrix_cells (
				id, run_id, recipient_id, serv, used
			) VALUES (
				$1,$2,$3,$4,$5
			)`, schema)

		for _, id := range b.Matrix.IDs {
			for _, code := range b.Matrix.Codes {
				n := b.Matrix.Count(id, code)
				if n == 0 {
					continue
				}
				_, err = tx.ExecContext(ctx, insertCellSQL,
					uuid.New(),
					runID,
					id,
					code,
					n,
				)
				if err != nil {
					_ = tx.Rollback()
					return "", err
				}
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return runID.String(), nil
}

func ensureSchema(ctx context.Context, db *sql.DB, schema string) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema)); err != nil {
		return err
	}

	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.usage_runs (
			id uuid PRIMARY KEY,
			input text,
			generated_at timestamptz NOT NULL,
			row_count integer NOT NULL,
			recipient_count integer NOT NULL,
			service_count integer NOT NULL,
			run_tag text,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, schema))
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.usage_service_summary (
			id uuid PRIMARY KEY,
			run_id uuid NOT NULL REFERENCES %s.usage_runs(id) ON DELETE CASCADE,
			serv text,
			service text NOT NULL,
			total_usage integer NOT NULL,
			num_recipient integer NOT NULL,
			distinct_month integer NOT NULL,
			avg_monthly_recipient numeric(12,4),
			created_at timestamptz NOT NULL DEFAULT now()
		)`, schema, schema))
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.usage_recipient_summary (
			id uuid PRIMARY KEY,
			run_id uuid NOT NULL REFERENCES %s.usage_runs(id) ON DELETE CASCADE,
			recipient_id text NOT NULL,
			num_service integer NOT NULL,
			distinct_service integer NOT NULL,
			first_date date,
			last_date date,
			num_month integer NOT NULL,
			distinct_month integer NOT NULL,
			age integer NOT NULL,
			age_bin text,
			gender text,
			race text,
			marital text,
			education text,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, schema, schema))
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.usage_retention (
			id uuid PRIMARY KEY,
			run_id uuid NOT NULL REFERENCES %s.usage_runs(id) ON DELETE CASCADE,
			cohort date NOT NULL,
			elapsed integer NOT NULL,
			active integer NOT NULL,
			ratio numeric(12,6),
			created_at timestamptz NOT NULL DEFAULT now()
		)`, schema, schema))
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.usage_matrix_cells (
			id uuid PRIMARY KEY,
			run_id uuid NOT NULL REFERENCES %s.usage_runs(id) ON DELETE CASCADE,
			recipient_id text NOT NULL,
			serv text NOT NULL,
			used integer NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, schema, schema))
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_usage_service_summary_run_idx ON %s.usage_service_summary (run_id)`, schema, schema))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_usage_recipient_summary_run_idx ON %s.usage_recipient_summary (run_id)`, schema, schema))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_usage_retention_run_idx ON %s.usage_retention (run_id)`, schema, schema))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_usage_matrix_cells_run_idx ON %s.usage_matrix_cells (run_id)`, schema, schema))
	return err
}

func nullString(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullDate(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value, Valid: true}
}

func nullFloat(value float64) sql.NullFloat64 {
	if math.IsNaN(value) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: value, Valid: true}
}
