package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration of the extractor.
type Config struct {
	Extract  ExtractConfig  `yaml:"extract"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ExtractConfig selects inputs, outputs and the worker layout.
type ExtractConfig struct {
	Format           string        `yaml:"format"              env:"EXTRACT_FORMAT"`
	FilesRoot        string        `yaml:"files_root"          env:"FILES_ROOT"`
	File             string        `yaml:"file"                env:"EXTRACT_FILE"`
	Years            []string      `yaml:"years"               env:"EXTRACT_YEARS"          env-separator:","`
	Output           string        `yaml:"output"              env:"EXTRACT_OUTPUT"         env-default:"-"`
	Exclude          []string      `yaml:"exclude"             env:"EXTRACT_EXCLUDE"        env-separator:"," env-default:"pa030501.zip"`
	ExcludeFile      string        `yaml:"exclude_file"        env:"EXTRACT_EXCLUDE_FILE"`
	ProcessedLog     string        `yaml:"processed_log"       env:"PROCESSED_LOG"`
	Reprocess        bool          `yaml:"reprocess"           env:"REPROCESS_ALL"          env-default:"false"`
	Workers          int           `yaml:"workers"             env:"WORKERS"                env-default:"4"`
	ExtractWorkers   int           `yaml:"extract_workers"     env:"EXTRACT_WORKERS"        env-default:"1"`
	MinArchiveSizeMB int64         `yaml:"min_archive_size_mb" env:"MIN_ARCHIVE_SIZE_MB"    env-default:"1"`
	ProgressInterval time.Duration `yaml:"progress_interval"   env:"PROGRESS_INTERVAL"      env-default:"30s"`
	Diagnostics      string        `yaml:"diagnostics"         env:"DIAGNOSTICS_LOG"`
}

// DatabaseConfig holds the optional PostgreSQL record sink settings.
type DatabaseConfig struct {
	Enabled      bool   `yaml:"enabled"        env:"DB_ENABLED"        env-default:"false"`
	Host         string `yaml:"host"           env:"DB_HOST"           env-default:"localhost"`
	Port         int    `yaml:"port"           env:"DB_PORT"           env-default:"5432"`
	Name         string `yaml:"name"           env:"DB_NAME"           env-default:"patents"`
	User         string `yaml:"user"           env:"DB_USER"           env-default:"postgres"`
	Password     string `yaml:"password"       env:"DB_PASSWORD"`
	SSLMode      string `yaml:"sslmode"        env:"DB_SSLMODE"        env-default:"disable"`
	Table        string `yaml:"table"          env:"DB_TABLE"          env-default:"patent_biblio"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns int    `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"5"`
}

// DSN renders the lib/pq connection URL.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Name,
	}
	q := url.Values{}
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	JSON   bool   `yaml:"json"   env:"LOG_JSON"   env-default:"false"`
	Source bool   `yaml:"source" env:"LOG_SOURCE" env-default:"false"`
}

// MetricsConfig holds the optional Prometheus listener.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"METRICS_ADDR"`
}
