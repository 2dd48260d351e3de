// Package config provides configuration management for the sqlshape CLI.
package config

import (
	"runtime"

	"github.com/leapstack-labs/sqlshape/internal/server"
	"github.com/leapstack-labs/sqlshape/pkg/corpus"
)

// InputConfig names the fields of corpus records.
type InputConfig struct {
	UnitField     string `koanf:"unit_field"`
	CallerField   string `koanf:"caller_field"`
	FunctionField string `koanf:"function_field"`
	SQLField      string `koanf:"sql_field"`
}

// FieldNames converts the input config for the corpus loader.
func (c InputConfig) FieldNames() corpus.FieldNames {
	return corpus.FieldNames{
		Unit:     c.UnitField,
		Caller:   c.CallerField,
		Function: c.FunctionField,
		SQL:      c.SQLField,
	}
}

// ServerConfig holds configuration for the HTTP API.
type ServerConfig struct {
	Addr  string `koanf:"addr"`
	Watch bool   `koanf:"watch"`
}

// Config holds all CLI configuration options.
type Config struct {
	Input        InputConfig  `koanf:"input"`
	Workers      int          `koanf:"workers"`
	OutputDir    string       `koanf:"output_dir"`
	OutputFormat string       `koanf:"output"`
	ReportFormat string       `koanf:"report_format"`
	LimitPerType int          `koanf:"limit_per_type"`
	CatalogPath  string       `koanf:"catalog_path"`
	Server       ServerConfig `koanf:"server"`
	Verbose      bool         `koanf:"verbose"`
	LogLevel     string       `koanf:"log_level"`

	// ProjectRoot is the directory holding the config file, or the CWD.
	ProjectRoot string `koanf:"-"`
}

// Default configuration values.
const (
	DefaultOutputDir    = "output"
	DefaultCatalogPath  = ".sqlshape/catalog.db"
	DefaultOutput       = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultReportFormat = "json"
	DefaultLogLevel     = "warn"
	DefaultServerAddr   = server.DefaultAddr
)

// Defaults returns the configuration used when nothing else is set.
func Defaults() *Config {
	fields := corpus.DefaultFieldNames()
	return &Config{
		Input: InputConfig{
			UnitField:     fields.Unit,
			CallerField:   fields.Caller,
			FunctionField: fields.Function,
			SQLField:      fields.SQL,
		},
		Workers:      runtime.GOMAXPROCS(0),
		OutputDir:    DefaultOutputDir,
		OutputFormat: DefaultOutput,
		ReportFormat: DefaultReportFormat,
		CatalogPath:  DefaultCatalogPath,
		Server:       ServerConfig{Addr: DefaultServerAddr},
		LogLevel:     DefaultLogLevel,
	}
}
