package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/banksync/banksync/internal/model"
)

// FileName is the default configuration file name.
const FileName = "banksync.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BANKSYNC_"

// ErrMissingSetting is returned by Validate for required settings left empty.
var ErrMissingSetting = errors.New("missing required setting")

// Config represents the top-level banksync.yaml configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Import    ImportConfig    `yaml:"import"`
	Export    ExportConfig    `yaml:"export"`
	Merchants MerchantsConfig `yaml:"merchants"`
	Teller    TellerConfig    `yaml:"teller"`
	Sheets    SheetsConfig    `yaml:"sheets"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// DatabaseConfig locates the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig controls logging verbosity.
type LogConfig struct {
	Level string `yaml:"level"`
}

// ImportConfig describes where CSV feeds are discovered.
type ImportConfig struct {
	Directory    string              `yaml:"directory"`
	FilePatterns []model.FilePattern `yaml:"file_patterns"`
}

// ExportConfig controls the CSV sink.
type ExportConfig struct {
	Directory     string `yaml:"directory"`
	IncludeHeader bool   `yaml:"include_header"`
}

// MerchantsConfig points at user merchant rules merged over the built-in list.
type MerchantsConfig struct {
	OverridesPath string `yaml:"overrides_path"`
}

// TellerConfig configures the remote transaction API.
type TellerConfig struct {
	BaseURL           string        `yaml:"base_url"`
	FeedsFile         string        `yaml:"feeds_file"`
	CertificatePath   string        `yaml:"certificate_path"`
	PrivateKeyPath    string        `yaml:"private_key_path"`
	PageSize          int           `yaml:"page_size"`
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffBase       time.Duration `yaml:"backoff_base"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
}

// SheetsConfig configures the Google Sheets sink.
type SheetsConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	SheetName       string `yaml:"sheet_name"`
	StartRow        *int   `yaml:"start_row,omitempty"` // 1-based
}

// PipelineConfig tunes the run.
type PipelineConfig struct {
	Concurrency   int           `yaml:"concurrency"`
	BatchSize     int           `yaml:"batch_size"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// Load reads a banksync.yaml file from disk. Relative paths in the file are
// resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.resolve(filepath.Dir(path))
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "banksync.db"},
		Log:      LogConfig{Level: "info"},
		Import: ImportConfig{
			Directory:    "import",
			FilePatterns: model.DefaultFilePatterns(),
		},
		Export: ExportConfig{
			Directory:     "exports",
			IncludeHeader: true,
		},
		Merchants: MerchantsConfig{OverridesPath: "merchants.yaml"},
		Teller: TellerConfig{
			BaseURL:           "https://api.teller.io/",
			FeedsFile:         "feeds.yaml",
			PageSize:          100,
			MaxAttempts:       5,
			BackoffBase:       time.Second,
			RequestsPerSecond: 5,
			Burst:             5,
			Timeout:           30 * time.Second,
		},
		Sheets: SheetsConfig{SheetName: "Transactions"},
		Pipeline: PipelineConfig{
			Concurrency:   4,
			BatchSize:     500,
			ShutdownGrace: 10 * time.Second,
		},
	}
}

// LoadEnv loads .env files, ignoring missing ones, then applies BANKSYNC_*
// overrides. Variables already set in the process environment win over .env.
func (c *Config) LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}

	strs := map[string]*string{
		"DATABASE_PATH":           &c.Database.Path,
		"LOG_LEVEL":               &c.Log.Level,
		"IMPORT_DIRECTORY":        &c.Import.Directory,
		"EXPORT_DIRECTORY":        &c.Export.Directory,
		"TELLER_FEEDS_FILE":       &c.Teller.FeedsFile,
		"TELLER_CERTIFICATE_PATH": &c.Teller.CertificatePath,
		"TELLER_PRIVATE_KEY_PATH": &c.Teller.PrivateKeyPath,
		"SHEETS_CREDENTIALS_FILE": &c.Sheets.CredentialsFile,
		"SHEETS_SPREADSHEET_ID":   &c.Sheets.SpreadsheetID,
		"SHEETS_SHEET_NAME":       &c.Sheets.SheetName,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "PIPELINE_CONCURRENCY"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %sPIPELINE_CONCURRENCY: %w", EnvPrefix, err)
		}
		c.Pipeline.Concurrency = n
	}
	return nil
}

// Source selects where transactions are extracted from.
type Source string

const (
	SourceCSV    Source = "csv"
	SourceTeller Source = "teller"
)

// Destination selects where new transactions are exported.
type Destination string

const (
	DestinationCSV    Destination = "csv"
	DestinationSheets Destination = "sheets"
)

// Validate checks the settings required for a run from source to dest.
func (c *Config) Validate(source Source, dest Destination) error {
	if err := c.ValidateSource(source); err != nil {
		return err
	}
	return c.ValidateDestination(dest)
}

// ValidateSource checks the store and the settings of source.
func (c *Config) ValidateSource(source Source) error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path", ErrMissingSetting)
	}
	switch source {
	case SourceCSV:
		if c.Import.Directory == "" {
			return fmt.Errorf("%w: import.directory", ErrMissingSetting)
		}
		if len(c.Import.FilePatterns) == 0 {
			return fmt.Errorf("%w: import.file_patterns", ErrMissingSetting)
		}
	case SourceTeller:
		if c.Teller.FeedsFile == "" {
			return fmt.Errorf("%w: teller.feeds_file", ErrMissingSetting)
		}
	default:
		return fmt.Errorf("unknown source %q (want csv or teller)", source)
	}
	return nil
}

// ValidateDestination checks the store and the settings of dest.
func (c *Config) ValidateDestination(dest Destination) error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path", ErrMissingSetting)
	}
	switch dest {
	case DestinationCSV:
		if c.Export.Directory == "" {
			return fmt.Errorf("%w: export.directory", ErrMissingSetting)
		}
	case DestinationSheets:
		if c.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("%w: sheets.spreadsheet_id", ErrMissingSetting)
		}
		if c.Sheets.SheetName == "" {
			return fmt.Errorf("%w: sheets.sheet_name", ErrMissingSetting)
		}
	default:
		return fmt.Errorf("unknown destination %q (want csv or sheets)", dest)
	}
	return nil
}

func (c *Config) resolve(base string) {
	for _, p := range []*string{
		&c.Database.Path,
		&c.Import.Directory,
		&c.Export.Directory,
		&c.Merchants.OverridesPath,
		&c.Teller.FeedsFile,
		&c.Teller.CertificatePath,
		&c.Teller.PrivateKeyPath,
		&c.Sheets.CredentialsFile,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}
