// Package config reads server settings from the environment and an
// optional .env file. Command-line flags in cmd/server override it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	// Server
	Port           string
	Env            string
	CORSOrigins    []string
	RequestTimeout time.Duration

	// Database
	DBPath string

	// Logging
	LogLevel zerolog.Level

	// Rate limiting (per client IP)
	RateLimitPerMinute int
	RateLimitBurst     int

	// Maintenance: snapshot pruning and limiter cleanup (cron spec)
	MaintenanceSchedule string
	SnapshotsToKeep     int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Env:                 getEnv("ENV", "development"),
		CORSOrigins:         splitList(getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080")),
		DBPath:              getEnv("DB_PATH", "loans.db"),
		MaintenanceSchedule: getEnv("MAINTENANCE_SCHEDULE", "@every 1h"),
	}

	var err error
	if cfg.LogLevel, err = zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if cfg.RequestTimeout, err = time.ParseDuration(getEnv("REQUEST_TIMEOUT", "10s")); err != nil {
		return nil, fmt.Errorf("REQUEST_TIMEOUT: %w", err)
	}
	if cfg.RateLimitPerMinute, err = getEnvInt("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getEnvInt("RATE_LIMIT_BURST", 20); err != nil {
		return nil, err
	}
	if cfg.SnapshotsToKeep, err = getEnvInt("SNAPSHOTS_TO_KEEP", 2); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if c.Port == "" {
		result = multierror.Append(result, fmt.Errorf("PORT is required"))
	}
	if c.DBPath == "" {
		result = multierror.Append(result, fmt.Errorf("DB_PATH is required"))
	}
	if c.RequestTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("REQUEST_TIMEOUT must be positive"))
	}
	if c.RateLimitPerMinute < 0 || c.RateLimitBurst < 0 {
		result = multierror.Append(result, fmt.Errorf("rate limits must not be negative"))
	}
	if c.SnapshotsToKeep < 1 {
		result = multierror.Append(result, fmt.Errorf("SNAPSHOTS_TO_KEEP must be at least 1"))
	}
	if _, err := cron.ParseStandard(c.MaintenanceSchedule); err != nil {
		result = multierror.Append(result, fmt.Errorf("MAINTENANCE_SCHEDULE: %w", err))
	}
	return result.ErrorOrNil()
}

// IsProduction switches logging to JSON and hides demo endpoints.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
