package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config does not validate: %v", err)
	}

	if len(cfg.Tables) != 5 {
		t.Errorf("expected 5 tables, got %d", len(cfg.Tables))
	}

	data, ok := cfg.Table("data")
	if !ok {
		t.Fatal("expected a 'data' table")
	}
	if data.Sheet != "data" {
		t.Errorf("expected sheet to default to table name, got %q", data.Sheet)
	}
	if data.Streak == nil || data.Streak.Target != "отношение" {
		t.Error("expected streak column on the data table")
	}
	if data.Scaled[0].Divisor != 10 {
		t.Errorf("expected divisor 10, got %v", data.Scaled[0].Divisor)
	}

	invitro, _ := cfg.Table("invitro")
	if invitro.Source != "html" {
		t.Errorf("expected invitro source 'html', got %q", invitro.Source)
	}

	if cfg.Source.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.Source.Timeout)
	}
	if cfg.Server.Port != 8501 {
		t.Errorf("expected port 8501, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
tables:
  - name: data
    date_column: date
    scaled:
      - { source: tests, target: tests10 }
    infection_rate:
      - { source: cases, target: ir }
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("minimal config does not validate: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Source.CacheTTL != 15*time.Minute {
		t.Errorf("expected default cache ttl, got %v", cfg.Source.CacheTTL)
	}
	tbl := cfg.Tables[0]
	if tbl.Scaled[0].Divisor != 10 {
		t.Errorf("expected default divisor 10, got %v", tbl.Scaled[0].Divisor)
	}
	if tbl.InfectionRate[0].Window != 4 {
		t.Errorf("expected default window 4, got %d", tbl.InfectionRate[0].Window)
	}
}

func TestValidateRejectsDuplicateTables(t *testing.T) {
	cfg, err := parse([]byte(`
tables:
  - { name: data, date_column: d }
  - { name: data, date_column: d }
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected duplicate table names to be rejected")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"missing date column": `
tables:
  - { name: data }
`,
		"html without path": `
tables:
  - { name: data, date_column: d, source: html }
`,
		"unknown log level": `
tables:
  - { name: data, date_column: d }
logging:
  level: loud
`,
		"unknown main table": `
tables:
  - { name: other, date_column: d }
`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := parse([]byte(doc))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Tables) == 0 {
		t.Error("expected tables to be populated from file")
	}
}

func TestResolveSpreadsheetID(t *testing.T) {
	src := Source{SpreadsheetID: "from-file", SpreadsheetIDEnv: "COVIDBOARD_TEST_SHEET"}

	t.Setenv("COVIDBOARD_TEST_SHEET", "")
	if got := src.ResolveSpreadsheetID(); got != "from-file" {
		t.Errorf("expected file value, got %q", got)
	}

	t.Setenv("COVIDBOARD_TEST_SHEET", "from-env")
	if got := src.ResolveSpreadsheetID(); got != "from-env" {
		t.Errorf("expected env value, got %q", got)
	}
}

func TestGetDirs(t *testing.T) {
	cfg := &Config{}
	if cfg.GetDataDir() != "data" {
		t.Errorf("expected default data dir 'data', got %q", cfg.GetDataDir())
	}
	if cfg.GetStateDir() == "" {
		t.Error("expected non-empty default state dir")
	}

	cfg.Output.StateDir = "/custom/path"
	if cfg.GetStateDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetStateDir())
	}
}
