package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Source  Source  `yaml:"source"`
	Tables  []Table `yaml:"tables" validate:"required,min=1,dive"`
	Output  Output  `yaml:"output"`
	Run     Run     `yaml:"run"`
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`
}

type Source struct {
	URLTemplate      string        `yaml:"url_template" validate:"required,contains={sheet}"`
	SpreadsheetID    string        `yaml:"spreadsheet_id"`
	SpreadsheetIDEnv string        `yaml:"spreadsheet_id_env"`
	Timeout          time.Duration `yaml:"timeout" validate:"gt=0"`
	CacheTTL         time.Duration `yaml:"cache_ttl" validate:"gte=0"`
	CacheEntries     int           `yaml:"cache_entries" validate:"gte=0"`
	RatePerSecond    float64       `yaml:"rate_per_second" validate:"gte=0"`
	Encoding         string        `yaml:"encoding" validate:"omitempty,oneof=utf-8 windows-1251 koi8-r"`
}

// Table describes one logical table: where it comes from and which derived
// columns the pipeline adds to it.
type Table struct {
	Name          string   `yaml:"name" validate:"required,excludesall=/"`
	Sheet         string   `yaml:"sheet"`
	SpreadsheetID string   `yaml:"spreadsheet_id"`
	Source        string   `yaml:"source" validate:"omitempty,oneof=sheet html"`
	Path          string   `yaml:"path" validate:"required_if=Source html"`
	DateColumn    string   `yaml:"date_column" validate:"required"`
	DateAsText    bool     `yaml:"date_as_text"`
	Drop          []string `yaml:"drop"`
	LocaleColumns []string `yaml:"locale_columns"`
	FloatColumns  []string `yaml:"float_columns"`

	Pivot         *Pivot          `yaml:"pivot"`
	Cumulative    []Derived       `yaml:"cumulative" validate:"dive"`
	Active        *Active         `yaml:"active"`
	Scaled        []Scaled        `yaml:"scaled" validate:"dive"`
	RegionSum     *RegionSum      `yaml:"region_sum"`
	InfectionRate []InfectionRate `yaml:"infection_rate" validate:"dive"`
	Streak        *Derived        `yaml:"streak"`
	Share         *Share          `yaml:"share"`
}

type Derived struct {
	Source string `yaml:"source" validate:"required"`
	Target string `yaml:"target" validate:"required"`
}

// Active is cases - discharges - deaths over already cumulative columns.
type Active struct {
	Cases      string `yaml:"cases" validate:"required"`
	Discharges string `yaml:"discharges" validate:"required"`
	Deaths     string `yaml:"deaths" validate:"required"`
	Target     string `yaml:"target" validate:"required"`
}

type Scaled struct {
	Source  string  `yaml:"source" validate:"required"`
	Target  string  `yaml:"target" validate:"required"`
	Divisor float64 `yaml:"divisor" validate:"ne=0"`
}

type RegionSum struct {
	Pattern string `yaml:"pattern" validate:"required"`
	Target  string `yaml:"target" validate:"required"`
}

// InfectionRate derives a trend ratio from daily cases over Window days.
type InfectionRate struct {
	Source string `yaml:"source" validate:"required"`
	Target string `yaml:"target" validate:"required"`
	Window int    `yaml:"window" validate:"gte=1"`
}

type Share struct {
	Numerator   string  `yaml:"numerator" validate:"required"`
	Denominator string  `yaml:"denominator" validate:"required"`
	Target      string  `yaml:"target" validate:"required"`
	Scale       float64 `yaml:"scale"`
}

// Pivot reshapes a long table (date, key, value) into one column per key.
type Pivot struct {
	Key      string   `yaml:"key" validate:"required"`
	Value    string   `yaml:"value" validate:"required"`
	Ignore   []string `yaml:"ignore"`
	SeedDate string   `yaml:"seed_date"`
	Diff     bool     `yaml:"diff"`
}

type Output struct {
	DataDir  string `yaml:"data_dir"`
	StateDir string `yaml:"state_dir"`
	XLSX     string `yaml:"xlsx"`
}

type Run struct {
	Concurrency int    `yaml:"concurrency" validate:"gte=1"`
	Schedule    string `yaml:"schedule"`
}

type Server struct {
	Port       int           `yaml:"port" validate:"gte=0,lte=65535"`
	CacheTTL   time.Duration `yaml:"cache_ttl" validate:"gte=0"`
	Title      string        `yaml:"title"`
	Population int           `yaml:"population" validate:"gte=0"`
	MainTable  string        `yaml:"main_table"`
}

type Logging struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// ConfigDir returns the XDG config directory for covidboard.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "covidboard")
}

// StateDir returns the XDG state directory for covidboard.
func StateDir() string {
	return filepath.Join(homeDir(), ".local", "share", "covidboard")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/covidboard/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'covidboard init' to create a default config",
		xdgConfig,
	)
}

// Load reads, parses and validates a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Source: Source{
			URLTemplate:      "https://docs.google.com/spreadsheets/d/{id}/gviz/tq?tqx=out:csv&sheet={sheet}",
			SpreadsheetIDEnv: "COVIDBOARD_SPREADSHEET_ID",
			Timeout:          30 * time.Second,
			CacheTTL:         15 * time.Minute,
			CacheEntries:     32,
			RatePerSecond:    2,
			Encoding:         "utf-8",
		},
		Output: Output{DataDir: "data", XLSX: "covid.xlsx"},
		Run:    Run{Concurrency: 3, Schedule: "@daily"},
		Server: Server{
			Port:       8501,
			CacheTTL:   15 * time.Minute,
			Title:      "COVID-19",
			Population: 1012512,
			MainTable:  "data",
		},
		Logging: Logging{Level: "info", Format: "text"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	for i := range cfg.Tables {
		t := &cfg.Tables[i]
		if t.Sheet == "" {
			t.Sheet = t.Name
		}
		if t.Source == "" {
			t.Source = "sheet"
		}
		for j := range t.Scaled {
			if t.Scaled[j].Divisor == 0 {
				t.Scaled[j].Divisor = 10
			}
		}
		for j := range t.InfectionRate {
			if t.InfectionRate[j].Window == 0 {
				t.InfectionRate[j].Window = 4
			}
		}
		if t.Share != nil && t.Share.Scale == 0 {
			t.Share.Scale = 100
		}
	}

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints and cross-table rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	seen := make(map[string]bool, len(c.Tables))
	for _, t := range c.Tables {
		if seen[t.Name] {
			return fmt.Errorf("invalid config: duplicate table %q", t.Name)
		}
		seen[t.Name] = true
	}
	if c.Server.MainTable != "" && !seen[c.Server.MainTable] {
		return fmt.Errorf("invalid config: server.main_table %q is not a configured table", c.Server.MainTable)
	}
	return nil
}

// Table returns the table spec with the given name.
func (c *Config) Table(name string) (Table, bool) {
	for _, t := range c.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// ResolveSpreadsheetID returns the effective source spreadsheet id: the
// environment variable named by spreadsheet_id_env wins over the file value.
func (s Source) ResolveSpreadsheetID() string {
	if s.SpreadsheetIDEnv != "" {
		if v := strings.TrimSpace(os.Getenv(s.SpreadsheetIDEnv)); v != "" {
			return v
		}
	}
	return s.SpreadsheetID
}

// GetDataDir returns the directory CSV sinks are written to.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return "data"
}

// GetStateDir returns the effective state directory from config or XDG default.
func (c *Config) GetStateDir() string {
	if c.Output.StateDir != "" {
		return c.Output.StateDir
	}
	return StateDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
