package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"log-level":     "log.level",
	"log-format":    "log.format",
	"db-type":       "database.type",
	"db-url":        "database.url",
	"default-limit": "persistence.default_limit",
}

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
	flags      *pflag.FlagSet
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g., "ENTITYKIT")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// WithFlags lets explicitly set flags override every other source.
func (l *ViperLoader) WithFlags(flags *pflag.FlagSet) *ViperLoader {
	l.flags = flags
	return l
}

// Load loads configuration with precedence: flags > ENV > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()
	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	l.bindEnvVars(v)
	if err := l.bindFlags(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.EventBus.Brokers = normalizeStringSlice(cfg.EventBus.Brokers)

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	bindings := map[string]string{
		"service.name":        "SERVICE_NAME",
		"service.environment": "ENVIRONMENT",

		"log.level":  "LOG_LEVEL",
		"log.format": "LOG_FORMAT",

		"database.type":               "DB_TYPE",
		"database.url":                "DB_URL",
		"database.database_name":      "DB_NAME",
		"database.max_open_conns":     "DB_MAX_OPEN_CONNS",
		"database.max_idle_conns":     "DB_MAX_IDLE_CONNS",
		"database.conn_max_lifetime":  "DB_CONN_MAX_LIFETIME",
		"database.conn_max_idle_time": "DB_CONN_MAX_IDLE_TIME",
		"database.connect_timeout":    "DB_CONNECT_TIMEOUT",
		"database.query_timeout":      "DB_QUERY_TIMEOUT",

		"persistence.default_limit":   "PERSISTENCE_DEFAULT_LIMIT",
		"persistence.history_enabled": "PERSISTENCE_HISTORY_ENABLED",
		"persistence.history_table":   "PERSISTENCE_HISTORY_TABLE",

		"eventbus.type":              "EVENTBUS_TYPE",
		"eventbus.brokers":           "EVENTBUS_BROKERS",
		"eventbus.topic":             "EVENTBUS_TOPIC",
		"eventbus.operation_timeout": "EVENTBUS_OPERATION_TIMEOUT",
		"eventbus.max_retries":       "EVENTBUS_MAX_RETRIES",
		"eventbus.breaker_failures":  "EVENTBUS_BREAKER_FAILURES",
		"eventbus.breaker_cooldown":  "EVENTBUS_BREAKER_COOLDOWN",

		"observability.metrics_enabled":     "METRICS_ENABLED",
		"observability.tracing_enabled":     "TRACING_ENABLED",
		"observability.tracing_sample_rate": "TRACING_SAMPLE_RATE",
		"observability.tracing_endpoint":    "TRACING_ENDPOINT",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, l.prefixedEnv(env))
	}
}

func (l *ViperLoader) bindFlags(v *viper.Viper) error {
	if l.flags == nil {
		return nil
	}
	for name, key := range flagKeys {
		flag := l.flags.Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// RegisterFlags adds the configuration override flags to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("log-level", "", "log level override (debug, info, warn, error)")
	flags.String("log-format", "", "log format override (json, text)")
	flags.String("db-type", "", "database type override (memory, postgres, mysql, mongodb)")
	flags.String("db-url", "", "database url override")
	flags.Int("default-limit", 0, "default query limit override")
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		return suffix
	}
	return strings.ToUpper(prefix) + "_" + suffix
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)

	v.SetDefault("database.type", cfg.Database.Type)
	v.SetDefault("database.url", cfg.Database.URL)
	v.SetDefault("database.database_name", cfg.Database.DatabaseName)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", cfg.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", cfg.Database.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", cfg.Database.ConnMaxIdleTime)
	v.SetDefault("database.connect_timeout", cfg.Database.ConnectTimeout)
	v.SetDefault("database.query_timeout", cfg.Database.QueryTimeout)

	v.SetDefault("persistence.default_limit", cfg.Persistence.DefaultLimit)
	v.SetDefault("persistence.history_enabled", cfg.Persistence.HistoryEnabled)
	v.SetDefault("persistence.history_table", cfg.Persistence.HistoryTable)

	v.SetDefault("eventbus.type", cfg.EventBus.Type)
	v.SetDefault("eventbus.brokers", cfg.EventBus.Brokers)
	v.SetDefault("eventbus.topic", cfg.EventBus.Topic)
	v.SetDefault("eventbus.operation_timeout", cfg.EventBus.OperationTimeout)
	v.SetDefault("eventbus.max_retries", cfg.EventBus.MaxRetries)
	v.SetDefault("eventbus.breaker_failures", cfg.EventBus.BreakerFailures)
	v.SetDefault("eventbus.breaker_cooldown", cfg.EventBus.BreakerCooldown)

	v.SetDefault("observability.metrics_enabled", cfg.Observability.MetricsEnabled)
	v.SetDefault("observability.tracing_enabled", cfg.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_sample_rate", cfg.Observability.TracingSampleRate)
	v.SetDefault("observability.tracing_endpoint", cfg.Observability.TracingEndpoint)
}

// Validate validates the configuration and returns every problem found.
func (l *ViperLoader) Validate(cfg *Config) error {
	return cfg.Validate()
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, strings.ToLower(c.Log.Level)) {
		errs = append(errs, fmt.Errorf("invalid log.level: %s (must be one of: %v)", c.Log.Level, validLevels))
	}
	validFormats := []string{"json", "text"}
	if !contains(validFormats, strings.ToLower(c.Log.Format)) {
		errs = append(errs, fmt.Errorf("invalid log.format: %s (must be one of: %v)", c.Log.Format, validFormats))
	}

	switch strings.ToLower(c.Database.Type) {
	case DatabaseTypeMemory:
	case DatabaseTypePostgres, DatabaseTypeMySQL:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required when database.type is set"))
		}
	case DatabaseTypeMongoDB:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required when database.type is set"))
		}
		if c.Database.DatabaseName == "" {
			errs = append(errs, errors.New("database.database_name is required for MongoDB"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid database.type: %s (must be one of: memory, postgres, mysql, mongodb)", c.Database.Type))
	}

	if c.Persistence.DefaultLimit <= 0 {
		errs = append(errs, fmt.Errorf("persistence.default_limit must be positive, got %d", c.Persistence.DefaultLimit))
	}
	if c.Persistence.HistoryEnabled && strings.TrimSpace(c.Persistence.HistoryTable) == "" {
		errs = append(errs, errors.New("persistence.history_table is required when history is enabled"))
	}

	switch strings.ToLower(c.EventBus.Type) {
	case EventBusTypeNone:
	case EventBusTypeKafka:
		if len(c.EventBus.Brokers) == 0 {
			errs = append(errs, errors.New("eventbus.brokers is required for Kafka"))
		}
		if strings.TrimSpace(c.EventBus.Topic) == "" {
			errs = append(errs, errors.New("eventbus.topic is required when eventbus.type is set"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid eventbus.type: %s (must be kafka or empty)", c.EventBus.Type))
	}

	if c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1 {
		errs = append(errs, fmt.Errorf("observability.tracing_sample_rate must be between 0 and 1, got %v", c.Observability.TracingSampleRate))
	}
	if c.Observability.TracingEnabled && c.Observability.TracingEndpoint == "" {
		errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
	}

	return errors.Join(errs...)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func normalizeStringSlice(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
