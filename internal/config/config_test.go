package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "palette.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validYAML = `
listen_addr: ":9090"
log_level: debug
documents:
  region: eu-west-1
  table_prefix: palette-test
database:
  driver: sqlite
  dsn: /tmp/palette.db
search:
  addr: localhost:6379
  namespace: palette-test
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "eu-west-1", cfg.Documents.Region)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "palette-test", cfg.Search.Namespace)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PALETTE_LISTEN_ADDR", ":7070")
	t.Setenv("PALETTE_REDIS_ADDR", "redis.internal:6379")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, "redis.internal:6379", cfg.Search.Addr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}

func TestValidateDefaults(t *testing.T) {
	cfg := &Config{
		Documents: DocumentConfig{Region: "eu-west-1"},
		Database:  DatabaseConfig{Driver: "sqlite", DSN: "/tmp/p.db"},
		Search:    SearchConfig{Addr: "localhost:6379"},
	}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "palette", cfg.Documents.TablePrefix)
	assert.Equal(t, "palette", cfg.Search.Namespace)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"missing region", func(c *Config) { c.Documents.Region = "" }},
		{"missing driver", func(c *Config) { c.Database.Driver = "" }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }},
		{"missing redis addr", func(c *Config) { c.Search.Addr = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Documents: DocumentConfig{Region: "eu-west-1"},
				Database:  DatabaseConfig{Driver: "sqlite", DSN: "/tmp/p.db"},
				Search:    SearchConfig{Addr: "localhost:6379"},
			}
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
