package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/sqlshape/pkg/report"
)

var outputModes = []string{"auto", "text", "markdown", "json"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !contains(outputModes, c.OutputFormat) {
		return fmt.Errorf("invalid output %q (expected one of %s)", c.OutputFormat, strings.Join(outputModes, ", "))
	}
	if _, err := report.ParseFormat(c.ReportFormat); err != nil {
		return err
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.LimitPerType < 0 {
		return fmt.Errorf("limit_per_type must be >= 0, got %d", c.LimitPerType)
	}
	if c.Input.UnitField == "" || c.Input.SQLField == "" {
		return fmt.Errorf("input.unit_field and input.sql_field are required")
	}
	return nil
}

// ParseLevel converts a log level name. An empty name is warn.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log_level %q (expected debug, info, warn or error)", s)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
