package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"  validate:"required"`
	Engine  EngineConfig  `mapstructure:"engine"  validate:"required"`
	Auth    AuthConfig    `mapstructure:"auth"    validate:"required"`
	Fetch   FetchConfig   `mapstructure:"fetch"   validate:"required"`
	History HistoryConfig `mapstructure:"history"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// EngineConfig sizes the task engine's worker pool and the default sharding
// used for sharded jobs.
type EngineConfig struct {
	WorkerCount int `mapstructure:"worker_count" validate:"required,gt=0,lte=1024"`
	QueueSize   int `mapstructure:"queue_size"   validate:"required,gt=0"`
	ShardCount  int `mapstructure:"shard_count"  validate:"required,gt=0,lte=256"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"             validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0,lte=10080"`
}

// FetchConfig bounds the HTTP fetch jobs.
type FetchConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds" validate:"required,gt=0,lte=600"`
	MaxURLs        int `mapstructure:"max_urls"        validate:"required,gt=0,lte=1000"`
}

// HistoryConfig controls the archive of job lifecycle events. Driver is the
// database/sql driver name: sqlite3 for a local file, pgx for PostgreSQL.
type HistoryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Driver         string `mapstructure:"driver"          validate:"required_if=Enabled true,omitempty,oneof=sqlite3 pgx"`
	DSN            string `mapstructure:"dsn"             validate:"required_if=Enabled true"`
	RetentionHours int    `mapstructure:"retention_hours" validate:"gte=0"`
	PruneSchedule  string `mapstructure:"prune_schedule"`
}
