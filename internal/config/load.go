package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// envPrefix is prepended to every environment variable, e.g. SCRY_TASK_CONCURRENCY.
const envPrefix = "SCRY"

// setDefaults registers the default for every optional setting.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout_seconds", 15)

	v.SetDefault("database.max_open_conns", 10)

	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)
	v.SetDefault("llm.default_quantity", 10)

	v.SetDefault("task.concurrency", 2)
	v.SetDefault("task.timeout_seconds", 300)
	v.SetDefault("task.max_queued", 1000)
	v.SetDefault("task.generation_rate_per_minute", 0)
	v.SetDefault("task.failure_retention_minutes", 60)
	v.SetDefault("task.failure_max_records", 100)
	v.SetDefault("task.failure_sweep_interval_seconds", 60)

	v.SetDefault("lock.backend", "postgres")
	v.SetDefault("lock.sqlite_path", "")
	v.SetDefault("lock.ttl_seconds", 600)
	v.SetDefault("lock.sweep_interval_seconds", 120)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.channel", "scry:tasks")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.service_name", "scry-engine")

	v.SetDefault("srs.timezone", "Local")
}

// requiredKeys have no default, so they are bound to the environment explicitly.
var requiredKeys = []string{
	"database.url",
	"auth.jwt_secret",
	"llm.gemini_api_key",
}

// Load configuration from environment variables and optionally a config.yaml
// in the working directory. Environment variables take precedence over
// values from the config file.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file path. An empty path looks
// for an optional config.yaml in the working directory.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range requiredKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs the struct tag validation plus checks tags cannot express.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if _, err := cfg.SRS.Location(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
