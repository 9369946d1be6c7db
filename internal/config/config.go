// Package config handles loading and validation of the run configuration
// file. Every field has a usable default; flags on the command line override
// whatever the file sets.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"service-usage-report/internal/usage"
)

// Run is the full configuration for one pipeline run.
type Run struct {
	Input    string   `yaml:"input"`
	TopN     int      `yaml:"topN"`
	Clean    Clean    `yaml:"clean"`
	Output   Output   `yaml:"output"`
	Database Database `yaml:"database"`
}

// Clean overrides the cleaning contract. Drop columns replace the defaults
// when set; renames merge over them.
type Clean struct {
	DropColumns []string          `yaml:"dropColumns"`
	Rename      map[string]string `yaml:"rename"`
}

// Output names the export artifacts. Empty paths skip the export.
type Output struct {
	JSON   string `yaml:"json"`
	CSVDir string `yaml:"csvDir"`
	XLSX   string `yaml:"xlsx"`
}

// Database points store.Save at a Postgres sink. An empty URL disables the
// sink entirely.
type Database struct {
	URL    string `yaml:"url"`
	Schema string `yaml:"schema"`
	Tag    string `yaml:"tag"`
}

// Default returns the configuration used when no file is given.
func Default() Run {
	return Run{
		TopN: 10,
		Database: Database{
			Schema: "service_usage",
		},
	}
}

// Load reads and parses a run configuration, applying defaults underneath.
// Unknown keys are rejected so typos fail loudly instead of silently keeping
// a default.
func Load(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

var identifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validate(cfg *Run) error {
	if cfg.TopN < 0 {
		return fmt.Errorf("topN must not be negative")
	}
	if cfg.Database.URL != "" && !identifier.MatchString(cfg.Database.Schema) {
		return fmt.Errorf("invalid database schema name: %s", cfg.Database.Schema)
	}
	for from := range cfg.Clean.Rename {
		if strings.TrimSpace(from) == "" {
			return fmt.Errorf("rename source column must not be empty")
		}
	}
	return nil
}

// Schema builds the cleaning contract from the defaults and the configured
// overrides.
func (c Clean) Schema() usage.Schema {
	schema := usage.DefaultSchema()
	if len(c.DropColumns) > 0 {
		schema.DropColumns = c.DropColumns
	}
	for from, to := range c.Rename {
		schema.Rename[strings.ToLower(from)] = to
	}
	return schema
}
