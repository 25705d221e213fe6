package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load
const EnvPrefix = "TASKLINE"

// keys lists every configuration key so each can be bound to its environment
// variable; viper's AutomaticEnv alone does not populate Unmarshal.
var keys = []string{
	"server.port",
	"server.log_level",
	"engine.worker_count",
	"engine.queue_size",
	"engine.shard_count",
	"auth.jwt_secret",
	"auth.token_lifetime_minutes",
	"fetch.timeout_seconds",
	"fetch.max_urls",
	"history.enabled",
	"history.driver",
	"history.dsn",
	"history.retention_hours",
	"history.prune_schedule",
}

// Load configuration from environment variables and optionally a config.yaml
// in the working directory. Environment variables take precedence over values
// from the config file. Returns a populated Config or an error if loading or
// validation fails.
func Load() (*Config, error) {
	return load(func(v *viper.Viper) {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	})
}

// LoadFile is like Load but reads the given YAML file, which must exist.
func LoadFile(path string) (*Config, error) {
	return load(func(v *viper.Viper) {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	})
}

func load(configure func(v *viper.Viper)) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("engine.worker_count", 8)
	v.SetDefault("engine.queue_size", 256)
	v.SetDefault("engine.shard_count", 4)
	v.SetDefault("auth.token_lifetime_minutes", 60)
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.max_urls", 64)
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.driver", "sqlite3")
	v.SetDefault("history.dsn", "file:taskline.db?_busy_timeout=5000")
	v.SetDefault("history.retention_hours", 168)
	v.SetDefault("history.prune_schedule", "@hourly")

	configure(v)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}
