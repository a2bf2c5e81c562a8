package config

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidConfig = errors.New("invalid config")

var logLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the loaded configuration. Whether the format identifier is
// registered is decided by the profile registry, not here.
func (c *Config) Validate() error {
	if err := c.Extract.validate(); err != nil {
		return fmt.Errorf("%w: extract: %v", ErrInvalidConfig, err)
	}
	if err := c.Database.validate(); err != nil {
		return fmt.Errorf("%w: database: %v", ErrInvalidConfig, err)
	}
	level := strings.ToLower(c.Log.Level)
	valid := false
	for _, l := range logLevels {
		valid = valid || l == level
	}
	if !valid {
		return fmt.Errorf("%w: log.level must be one of %s (got %q)", ErrInvalidConfig, strings.Join(logLevels, ", "), c.Log.Level)
	}
	return nil
}

func (e *ExtractConfig) validate() error {
	if strings.TrimSpace(e.Format) == "" {
		return errors.New("format is required")
	}
	if e.FilesRoot == "" && e.File == "" {
		return errors.New("one of files_root or file is required")
	}
	if e.Output == "" {
		return errors.New("output must not be empty (use - for stdout)")
	}
	if e.Workers < 1 {
		return fmt.Errorf("workers must be >= 1 (got %d)", e.Workers)
	}
	if e.ExtractWorkers < 1 {
		return fmt.Errorf("extract_workers must be >= 1 (got %d)", e.ExtractWorkers)
	}
	if e.MinArchiveSizeMB < 0 {
		return fmt.Errorf("min_archive_size_mb must be >= 0 (got %d)", e.MinArchiveSizeMB)
	}
	if e.ProgressInterval < 0 {
		return fmt.Errorf("progress_interval must be >= 0 (got %s)", e.ProgressInterval)
	}
	return nil
}

func (d *DatabaseConfig) validate() error {
	if !d.Enabled {
		return nil
	}
	if d.Host == "" || d.Name == "" {
		return errors.New("host and name are required when enabled")
	}
	if d.Port <= 0 || d.Port > 65535 {
		return fmt.Errorf("port out of range (got %d)", d.Port)
	}
	if d.Table == "" || strings.ContainsAny(d.Table, " ;\"'") {
		return fmt.Errorf("table name %q is not a plain identifier", d.Table)
	}
	return nil
}
