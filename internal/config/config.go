// Package config loads configuration for the agent events service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/telhawk-systems/agent-events/common/database"
)

// EnvPrefix prefixes environment overrides, e.g. AGENTEVENTS_SERVER_PORT.
const EnvPrefix = "AGENTEVENTS"

// Config holds all configuration for the agent events service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Repository  RepositoryConfig  `mapstructure:"repository"`
	Queue       QueueConfig       `mapstructure:"queue"`
	AgentConfig AgentConfigConfig `mapstructure:"agent_config"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

// CORSConfig lists the browser origins allowed to call the API. An empty
// AllowedOrigins disables CORS.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig holds token settings.
type AuthConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// RepositoryConfig selects and configures the event store.
type RepositoryConfig struct {
	Backend    string           `mapstructure:"backend"`
	SQLite     SQLiteConfig     `mapstructure:"sqlite"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	// Timeouts bound each round trip to a persistent backend.
	Timeouts database.Timeouts `mapstructure:"timeouts"`
}

// SQLiteConfig holds the embedded database settings.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString returns the postgres:// URL for these settings.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// OpenSearchConfig holds OpenSearch connection settings.
type OpenSearchConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Insecure bool   `mapstructure:"insecure"`
	Index    string `mapstructure:"index"`
	PageSize int    `mapstructure:"page_size"`
}

// QueueConfig selects and configures the event queue.
type QueueConfig struct {
	Backend string     `mapstructure:"backend"`
	NATS    NATSConfig `mapstructure:"nats"`
}

// NATSConfig holds NATS message broker configuration.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Token         string        `mapstructure:"token"`
	// Consume starts a queue consumer that persists published events.
	Consume bool `mapstructure:"consume"`
}

// AgentConfigConfig selects where the agent configuration is stored.
type AgentConfigConfig struct {
	Backend  string      `mapstructure:"backend"`
	Fallback bool        `mapstructure:"fallback"`
	Redis    RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	URL string `mapstructure:"url"`
	Key string `mapstructure:"key"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/agentevents")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// Only fail if a specific config path was given
		if configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.max_body_bytes", 10<<20)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("server.cors.allowed_methods", []string{"GET", "POST", "PUT", "OPTIONS"})
	v.SetDefault("server.cors.allowed_headers", []string{"Authorization", "Content-Type", "X-Request-ID"})
	v.SetDefault("server.cors.allow_credentials", false)
	v.SetDefault("server.cors.max_age", 300)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "12h")

	v.SetDefault("repository.backend", "memory")
	v.SetDefault("repository.sqlite.path", "agent-events.db")
	v.SetDefault("repository.postgres.host", "localhost")
	v.SetDefault("repository.postgres.port", 5432)
	v.SetDefault("repository.postgres.user", "agentevents")
	v.SetDefault("repository.postgres.password", "")
	v.SetDefault("repository.postgres.database", "agent_events")
	v.SetDefault("repository.postgres.sslmode", "disable")
	v.SetDefault("repository.opensearch.url", "https://localhost:9200")
	v.SetDefault("repository.opensearch.username", "admin")
	v.SetDefault("repository.opensearch.password", "")
	v.SetDefault("repository.opensearch.insecure", true)
	v.SetDefault("repository.opensearch.index", "agent-events")
	v.SetDefault("repository.opensearch.page_size", 1000)
	v.SetDefault("repository.timeouts.query", database.DefaultQueryTimeout)
	v.SetDefault("repository.timeouts.write", database.DefaultWriteTimeout)
	v.SetDefault("repository.timeouts.migration", database.DefaultMigrationTimeout)

	v.SetDefault("queue.backend", "local")
	v.SetDefault("queue.nats.url", "nats://localhost:4222")
	v.SetDefault("queue.nats.max_reconnects", -1)
	v.SetDefault("queue.nats.reconnect_wait", "2s")
	v.SetDefault("queue.nats.token", "")
	v.SetDefault("queue.nats.consume", true)

	v.SetDefault("agent_config.backend", "memory")
	v.SetDefault("agent_config.fallback", true)
	v.SetDefault("agent_config.redis.url", "redis://localhost:6379/0")
	v.SetDefault("agent_config.redis.key", "agentevents:agent-configuration")
}

// Validate rejects unknown backends and settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Repository.Backend {
	case "memory", "sqlite", "postgres", "opensearch":
	default:
		return fmt.Errorf("unknown repository backend %q", c.Repository.Backend)
	}

	switch c.Queue.Backend {
	case "local", "nats":
	default:
		return fmt.Errorf("unknown queue backend %q", c.Queue.Backend)
	}

	switch c.AgentConfig.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown agent configuration backend %q", c.AgentConfig.Backend)
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}
