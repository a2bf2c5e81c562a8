package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validYAML = `
extract:
  format: aps
  files_root: /bulk
  years: ["1976", "1977"]
  workers: 2
  extract_workers: 3
  progress_interval: 10s
database:
  enabled: true
  host: db
  name: patents
log:
  level: debug
`

func TestLoad(t *testing.T) {
	t.Run("Should read YAML and fill defaults", func(t *testing.T) {
		t.Setenv("CONFIG_PATH", "")
		path := writeYAML(t, t.TempDir(), validYAML)

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "aps", cfg.Extract.Format)
		assert.Equal(t, []string{"1976", "1977"}, cfg.Extract.Years)
		assert.Equal(t, 2, cfg.Extract.Workers)
		assert.Equal(t, 3, cfg.Extract.ExtractWorkers)
		assert.Equal(t, 10*time.Second, cfg.Extract.ProgressInterval)
		assert.Equal(t, "-", cfg.Extract.Output)
		assert.Equal(t, []string{"pa030501.zip"}, cfg.Extract.Exclude)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "patent_biblio", cfg.Database.Table)
		assert.Equal(t, "debug", cfg.Log.Level)
		require.NoError(t, cfg.Validate())
	})

	t.Run("Should let environment override the file", func(t *testing.T) {
		path := writeYAML(t, t.TempDir(), validYAML)
		t.Setenv("WORKERS", "8")
		t.Setenv("EXTRACT_FORMAT", "sgml")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 8, cfg.Extract.Workers)
		assert.Equal(t, "sgml", cfg.Extract.Format)
	})

	t.Run("Should load from environment alone when no file exists", func(t *testing.T) {
		t.Setenv("CONFIG_PATH", "")
		t.Chdir(t.TempDir())
		t.Setenv("EXTRACT_FORMAT", "xml-grant")
		t.Setenv("EXTRACT_FILE", "/tmp/ipg020101.xml")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "xml-grant", cfg.Extract.Format)
		assert.Equal(t, 4, cfg.Extract.Workers)
		require.NoError(t, cfg.Validate())
	})

	t.Run("Should fail on an explicit missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			Extract: ExtractConfig{Format: "aps", FilesRoot: "/bulk", Output: "-", Workers: 1, ExtractWorkers: 1},
			Log:     LogConfig{Level: "info"},
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"Should reject a missing format", func(c *Config) { c.Extract.Format = "" }},
		{"Should reject missing inputs", func(c *Config) { c.Extract.FilesRoot = "" }},
		{"Should reject an empty output", func(c *Config) { c.Extract.Output = "" }},
		{"Should reject zero workers", func(c *Config) { c.Extract.Workers = 0 }},
		{"Should reject zero extract workers", func(c *Config) { c.Extract.ExtractWorkers = 0 }},
		{"Should reject an unknown log level", func(c *Config) { c.Log.Level = "loud" }},
		{"Should reject a database without host", func(c *Config) {
			c.Database = DatabaseConfig{Enabled: true, Name: "p", Port: 5432, Table: "t"}
		}},
		{"Should reject an unsafe table name", func(c *Config) {
			c.Database = DatabaseConfig{Enabled: true, Host: "h", Name: "p", Port: 5432, Table: "t; drop"}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(&cfg)
			require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	t.Run("Should accept the base config", func(t *testing.T) {
		t.Parallel()
		cfg := base()
		require.NoError(t, cfg.Validate())
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Parallel()
	d := DatabaseConfig{Host: "db", Port: 5433, Name: "patents", User: "etl", Password: "p@ss", SSLMode: "disable"}
	assert.Equal(t, "postgres://etl:p%40ss@db:5433/patents?sslmode=disable", d.DSN())
}
