// Package config loads the palette.yml server configuration with
// environment overrides.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level palette.yml configuration.
type Config struct {
	ListenAddr string         `yaml:"listen_addr"`
	LogLevel   string         `yaml:"log_level"`
	Documents  DocumentConfig `yaml:"documents"`
	Database   DatabaseConfig `yaml:"database"`
	Search     SearchConfig   `yaml:"search"`
}

// DocumentConfig configures the DynamoDB document store.
type DocumentConfig struct {
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint,omitempty"` // non-empty for local stacks
	TablePrefix string `yaml:"table_prefix"`
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "mysql"
	DSN    string `yaml:"dsn"`
}

// SearchConfig configures the Redis search mirror.
type SearchConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	Namespace string `yaml:"namespace"`
}

// Load reads the yaml file, then lets environment variables override
// individual settings. A .env file next to the process is honored first so
// local development does not need exported variables.
func Load(path string) (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	override(&cfg.ListenAddr, "PALETTE_LISTEN_ADDR")
	override(&cfg.LogLevel, "PALETTE_LOG_LEVEL")
	override(&cfg.Documents.Region, "PALETTE_DYNAMODB_REGION")
	override(&cfg.Documents.Endpoint, "PALETTE_DYNAMODB_ENDPOINT")
	override(&cfg.Documents.TablePrefix, "PALETTE_TABLE_PREFIX")
	override(&cfg.Database.Driver, "PALETTE_DB_DRIVER")
	override(&cfg.Database.DSN, "PALETTE_DB_DSN")
	override(&cfg.Search.Addr, "PALETTE_REDIS_ADDR")
	override(&cfg.Search.Password, "PALETTE_REDIS_PASSWORD")
	override(&cfg.Search.Namespace, "PALETTE_SEARCH_NAMESPACE")
}

func override(target *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*target = v
	}
}

// Validate applies defaults and rejects configurations the server cannot
// start with.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}

	if c.Documents.Region == "" {
		return fmt.Errorf("documents.region is required")
	}
	if c.Documents.TablePrefix == "" {
		c.Documents.TablePrefix = "palette"
	}

	switch c.Database.Driver {
	case "sqlite", "mysql":
	case "":
		return fmt.Errorf("database.driver is required")
	default:
		return fmt.Errorf("database.driver must be sqlite or mysql, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Search.Addr == "" {
		return fmt.Errorf("search.addr is required")
	}
	if c.Search.Namespace == "" {
		c.Search.Namespace = "palette"
	}

	return nil
}
