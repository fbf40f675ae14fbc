// Package config loads the gateway configuration.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file named by TELEMETRY_CONFIG_FILE, and finally environment variables
// (a .env file in the working directory is loaded first when present).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jacentio/telemetry-gateway/store"
)

// FileEnv names the environment variable holding the YAML config path.
const FileEnv = "TELEMETRY_CONFIG_FILE"

// Config holds all application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	CORS    CORSConfig    `yaml:"cors"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// StorageConfig holds table store configuration
type StorageConfig struct {
	ConnectionString string        `yaml:"connection_string"`
	TableName        string        `yaml:"table_name"`
	RecordTTL        time.Duration `yaml:"record_ttl"`
	CreateTable      bool          `yaml:"create_table"`
}

// AuthConfig holds the shared API key
type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// MetricsConfig controls the /metrics endpoint
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// CORSConfig holds CORS-related configuration. No origins disables CORS.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Storage: StorageConfig{
			TableName: store.DefaultTableName,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from defaults, the optional YAML file and the
// environment, in that order.
func Load() (*Config, error) {
	// A missing .env file is fine; variables may be set directly.
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var e envReader

	c.Server.Port = e.getEnv("PORT", c.Server.Port)
	c.Server.ReadTimeout = e.getDuration("READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = e.getDuration("WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = e.getDuration("IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = e.getDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.MaxBodyBytes = e.getInt64("MAX_BODY_BYTES", c.Server.MaxBodyBytes)

	c.Storage.ConnectionString = e.getEnv("STORAGE_CONN_STR", c.Storage.ConnectionString)
	c.Storage.TableName = e.getEnv("TABLE_NAME", c.Storage.TableName)
	c.Storage.RecordTTL = e.getDuration("RECORD_TTL", c.Storage.RecordTTL)
	c.Storage.CreateTable = e.getBool("CREATE_TABLE", c.Storage.CreateTable)

	c.Auth.APIKey = e.getEnv("API_KEY", c.Auth.APIKey)

	c.Logging.Level = e.getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = e.getEnv("LOG_FORMAT", c.Logging.Format)

	c.Metrics.Enabled = e.getBool("METRICS_ENABLED", c.Metrics.Enabled)

	c.CORS.AllowedOrigins = e.getStringSlice("CORS_ALLOWED_ORIGINS", c.CORS.AllowedOrigins)

	return errors.Join(e.errs...)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port %q", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}
	if c.Storage.RecordTTL < 0 {
		return fmt.Errorf("record ttl must not be negative, got %s", c.Storage.RecordTTL)
	}
	for _, origin := range c.CORS.AllowedOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("invalid CORS origin %q", origin)
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (expected text or json)", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	return nil
}

// StoreConfig returns the store settings.
func (c *Config) StoreConfig() store.Config {
	cfg := store.DefaultConfig()
	if c.Storage.TableName != "" {
		cfg.TableName = c.Storage.TableName
	}
	cfg.RecordTTL = c.Storage.RecordTTL
	cfg.CreateTable = c.Storage.CreateTable
	return cfg
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return ":" + c.Server.Port
}

// Helper functions for environment variable parsing

type envReader struct {
	errs []error
}

func (e *envReader) getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (e *envReader) getInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return n
}

func (e *envReader) getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	e.errs = append(e.errs, fmt.Errorf("invalid %s: %q (expected true/false or 1/0)", key, value))
	return defaultValue
}

func (e *envReader) getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return d
}

func (e *envReader) getStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
