package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm" validate:"required"`
	Task      TaskConfig      `mapstructure:"task" validate:"required"`
	Lock      LockConfig      `mapstructure:"lock" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	SRS       SRSConfig       `mapstructure:"srs"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port                   int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel               string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds" validate:"gt=0"`
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL          string `mapstructure:"url" validate:"required,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
}

// AuthConfig contains token verification settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName         string `mapstructure:"model_name" validate:"required"`
	MaxRetries        int    `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=1,lte=60"`
	DefaultQuantity   int    `mapstructure:"default_quantity" validate:"gt=0,lte=50"`
}

// TaskConfig controls the background generation scheduler.
type TaskConfig struct {
	Concurrency                 int     `mapstructure:"concurrency" validate:"gt=0,lte=64"`
	TimeoutSeconds              int     `mapstructure:"timeout_seconds" validate:"gt=0"`
	MaxQueued                   int     `mapstructure:"max_queued" validate:"gt=0"`
	GenerationRatePerMinute     float64 `mapstructure:"generation_rate_per_minute" validate:"gte=0"`
	FailureRetentionMinutes     int     `mapstructure:"failure_retention_minutes" validate:"gt=0"`
	FailureMaxRecords           int     `mapstructure:"failure_max_records" validate:"gt=0"`
	FailureSweepIntervalSeconds int     `mapstructure:"failure_sweep_interval_seconds" validate:"gt=0"`
}

// Timeout returns the per-task deadline.
func (c TaskConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// FailureRetention returns how long failure records are kept.
func (c TaskConfig) FailureRetention() time.Duration {
	return time.Duration(c.FailureRetentionMinutes) * time.Minute
}

// FailureSweepInterval returns the period of the failure cache sweep.
func (c TaskConfig) FailureSweepInterval() time.Duration {
	return time.Duration(c.FailureSweepIntervalSeconds) * time.Second
}

// LockConfig controls the distributed generation lock.
type LockConfig struct {
	Backend              string `mapstructure:"backend" validate:"required,oneof=postgres sqlite"`
	SQLitePath           string `mapstructure:"sqlite_path" validate:"required_if=Backend sqlite"`
	TTLSeconds           int    `mapstructure:"ttl_seconds" validate:"gt=0"`
	SweepIntervalSeconds int    `mapstructure:"sweep_interval_seconds" validate:"gt=0"`
}

// TTL returns how long a lock stays valid after acquisition.
func (c LockConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// SweepInterval returns the period of the expired-lock sweep.
func (c LockConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// RedisConfig enables cross-instance task event fan-out when Addr is set.
type RedisConfig struct {
	Addr    string `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Channel string `mapstructure:"channel" validate:"required_with=Addr"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint" validate:"required_if=Enabled true"`
	ServiceName string `mapstructure:"service_name"`
}

// SRSConfig controls calendar-day computation for reviews.
type SRSConfig struct {
	// Timezone is an IANA zone name; empty or "Local" means the process zone.
	Timezone string `mapstructure:"timezone"`
}

// Location resolves Timezone.
func (c SRSConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid srs timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
