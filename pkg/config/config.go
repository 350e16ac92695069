package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerhouse/checkbook/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Audit archive configuration
	Archive ArchiveConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// ArchiveConfig holds S3 audit archive settings
type ArchiveConfig struct {
	Enabled      bool
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Archive:       loadArchiveConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("CHECKBOOK_HOST", "0.0.0.0"),
		Port:            getEnv("CHECKBOOK_PORT", "8080"),
		ReadTimeout:     getEnvDuration("CHECKBOOK_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("CHECKBOOK_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("CHECKBOOK_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("CHECKBOOK_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("CHECKBOOK_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:          getEnv("CHECKBOOK_POSTGRES_URL", ""),
		MaxOpenConns: getEnvInt("CHECKBOOK_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns: getEnvInt("CHECKBOOK_POSTGRES_IDLE_CONNS", 5),
		ConnLifetime: getEnvDuration("CHECKBOOK_POSTGRES_CONN_LIFETIME", 30*time.Minute),
	}
}

// loadArchiveConfig loads audit archive configuration from environment
func loadArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		Enabled:      getEnvBool("CHECKBOOK_ARCHIVE_ENABLED", false),
		Bucket:       getEnv("CHECKBOOK_ARCHIVE_BUCKET", ""),
		Prefix:       getEnv("CHECKBOOK_ARCHIVE_PREFIX", "audit"),
		Region:       getEnv("CHECKBOOK_ARCHIVE_REGION", "us-east-1"),
		Endpoint:     getEnv("CHECKBOOK_ARCHIVE_ENDPOINT", ""),
		AccessKey:    getEnv("CHECKBOOK_ARCHIVE_ACCESS_KEY", ""),
		SecretKey:    getEnv("CHECKBOOK_ARCHIVE_SECRET_KEY", ""),
		UsePathStyle: getEnvBool("CHECKBOOK_ARCHIVE_USE_PATH_STYLE", false),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("CHECKBOOK_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("CHECKBOOK_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return fmt.Errorf("archive bucket is required when archiving is enabled")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
