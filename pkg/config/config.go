// Package config loads the library's configuration from an optional
// YAML file with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// StoreConfig holds the graph store endpoint settings. The URI is a
// single resolved endpoint: either a fixed node or a load balancer that
// tracks the cluster's current writer.
type StoreConfig struct {
	URI      string `yaml:"uri" validate:"required"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`

	MaxConnectionPoolSize   int           `yaml:"maxConnectionPoolSize" validate:"gte=0"`
	ConnectionTimeout       time.Duration `yaml:"connectionTimeout"`
	MaxTransactionRetryTime time.Duration `yaml:"maxTransactionRetryTime"`
}

// SessionConfig holds session behavior defaults.
type SessionConfig struct {
	// DefaultDepth is used by callers that expose a depth-less API on
	// top of the session; -1 means unbounded.
	DefaultDepth int `yaml:"defaultDepth" validate:"gte=-1"`
}

// Config holds all library configuration
type Config struct {
	Environment string        `yaml:"environment"`
	LogLevel    string        `yaml:"logLevel" validate:"oneof=debug info warn error"`
	Store       StoreConfig   `yaml:"store"`
	Session     SessionConfig `yaml:"session"`

	// Feature flags
	EnableMetrics bool `yaml:"enableMetrics"`
	EnableTracing bool `yaml:"enableTracing"`
}

// Load reads configuration from the given YAML file (skipped when the
// path is empty) and then applies environment-variable overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration with struct validation rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func defaults() *Config {
	return &Config{
		Environment: "development",
		LogLevel:    "info",
		Store: StoreConfig{
			URI:                     "bolt://localhost:7687",
			Username:                "neo4j",
			MaxConnectionPoolSize:   50,
			ConnectionTimeout:       30 * time.Second,
			MaxTransactionRetryTime: 30 * time.Second,
		},
		Session: SessionConfig{
			DefaultDepth: 1,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Environment = getEnv("GRAPHOM_ENVIRONMENT", cfg.Environment)
	cfg.LogLevel = getEnv("GRAPHOM_LOG_LEVEL", cfg.LogLevel)
	cfg.Store.URI = getEnv("GRAPHOM_STORE_URI", cfg.Store.URI)
	cfg.Store.Username = getEnv("GRAPHOM_STORE_USERNAME", cfg.Store.Username)
	cfg.Store.Password = getEnv("GRAPHOM_STORE_PASSWORD", cfg.Store.Password)
	cfg.Store.Database = getEnv("GRAPHOM_STORE_DATABASE", cfg.Store.Database)
	cfg.Store.MaxConnectionPoolSize = getEnvInt("GRAPHOM_STORE_POOL_SIZE", cfg.Store.MaxConnectionPoolSize)
	cfg.Session.DefaultDepth = getEnvInt("GRAPHOM_DEFAULT_DEPTH", cfg.Session.DefaultDepth)
	cfg.EnableMetrics = getEnvBool("GRAPHOM_ENABLE_METRICS", cfg.EnableMetrics)
	cfg.EnableTracing = getEnvBool("GRAPHOM_ENABLE_TRACING", cfg.EnableTracing)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
