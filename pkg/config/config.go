package config

import (
	"time"

	"github.com/nimburion/entitykit/pkg/persistence"
)

// Database type constants
const (
	// DatabaseTypeMemory keeps entities in process memory
	DatabaseTypeMemory = "memory"
	// DatabaseTypePostgres represents PostgreSQL database
	DatabaseTypePostgres = "postgres"
	// DatabaseTypeMySQL represents MySQL database
	DatabaseTypeMySQL = "mysql"
	// DatabaseTypeMongoDB represents MongoDB database
	DatabaseTypeMongoDB = "mongodb"
)

// Event bus type constants
const (
	// EventBusTypeNone disables change event publishing
	EventBusTypeNone = ""
	// EventBusTypeKafka represents Apache Kafka event bus
	EventBusTypeKafka = "kafka"
)

// Config is the root configuration structure.
type Config struct {
	Service       ServiceConfig       `mapstructure:"service"`
	Log           LogConfig           `mapstructure:"log"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Persistence   PersistenceConfig   `mapstructure:"persistence"`
	EventBus      EventBusConfig      `mapstructure:"eventbus"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// DatabaseConfig configures the storage backend behind every Dao.
type DatabaseConfig struct {
	Type            string        `mapstructure:"type"` // memory, postgres, mysql, mongodb
	URL             string        `mapstructure:"url" secret:"true"`
	DatabaseName    string        `mapstructure:"database_name"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

// PersistenceConfig holds registry-wide defaults for entity plugins.
type PersistenceConfig struct {
	DefaultLimit   int    `mapstructure:"default_limit"`
	HistoryEnabled bool   `mapstructure:"history_enabled"`
	HistoryTable   string `mapstructure:"history_table"`
}

// PluginDefaults returns the defaults applied to every entity plugin builder.
func (p PersistenceConfig) PluginDefaults() persistence.PluginDefaults {
	return persistence.PluginDefaults{
		DefaultLimit:   p.DefaultLimit,
		HistoryEnabled: p.HistoryEnabled,
	}
}

// EventBusConfig configures entity change event publishing.
type EventBusConfig struct {
	Type             string        `mapstructure:"type"` // kafka or empty
	Brokers          []string      `mapstructure:"brokers"`
	Topic            string        `mapstructure:"topic"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	// BreakerFailures consecutive publish failures open the circuit breaker
	// for BreakerCooldown.
	BreakerFailures  int           `mapstructure:"breaker_failures"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	MetricsEnabled    bool    `mapstructure:"metrics_enabled"`
	TracingEnabled    bool    `mapstructure:"tracing_enabled"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate"`
	TracingEndpoint   string  `mapstructure:"tracing_endpoint"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "entitykit",
			Environment: "development",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Type:            DatabaseTypeMemory,
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnectTimeout:  10 * time.Second,
			QueryTimeout:    10 * time.Second,
		},
		Persistence: PersistenceConfig{
			DefaultLimit: persistence.DefaultQueryLimit,
			HistoryTable: "entity_history",
		},
		EventBus: EventBusConfig{
			Topic:            "entities.{entity}",
			OperationTimeout: 30 * time.Second,
			MaxRetries:       3,
			BreakerFailures:  5,
			BreakerCooldown:  30 * time.Second,
		},
		Observability: ObservabilityConfig{
			MetricsEnabled:    true,
			TracingSampleRate: 0.1,
			TracingEndpoint:   "localhost:4317",
		},
	}
}
