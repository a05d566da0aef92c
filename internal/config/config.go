// Package config handles configuration loading and validation for the three services using Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Service names a deployable binary. It selects default ports and validation rules.
type Service string

// Known services.
const (
	ServiceAuth      Service = "auth-service"
	ServiceLore      Service = "lore-service"
	ServiceMythology Service = "mythology-service"
)

// Config represents the application configuration.
type Config struct {
	Service   Service         `mapstructure:"-"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Lore      LoreConfig      `mapstructure:"lore"`
	Mythology MythologyConfig `mapstructure:"mythology"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects the relational driver and holds Redis settings.
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"` // postgres or sqlite
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// DSN builds the libpq connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// SQLiteConfig is used for local development.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig contains Redis cache connection and pool settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr returns host:port.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthConfig holds identity-service token settings.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	InternalToken string        `mapstructure:"internal_token"` // optional shared secret for service-to-service calls
}

// LoreConfig holds lore-service settings.
type LoreConfig struct {
	IdentityURL       string        `mapstructure:"identity_url"`
	IdentityTimeout   time.Duration `mapstructure:"identity_timeout"`
	TestimonyCooldown time.Duration `mapstructure:"testimony_cooldown"`
	// TokenCacheTTL caches verified principals in Redis. A role change or
	// account deletion is not seen by this service until the entry expires,
	// so it stays off unless set.
	TokenCacheTTL     time.Duration `mapstructure:"token_cache_ttl"`
	Reconcile         CronJobConfig `mapstructure:"reconcile"`
}

// CronJobConfig describes a periodic background job.
type CronJobConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
	Timezone string `mapstructure:"timezone"`
}

// GetLocation returns the timezone location.
func (c *CronJobConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// MythologyConfig holds mythology-service settings.
type MythologyConfig struct {
	LoreURL       string        `mapstructure:"lore_url"`
	LoreTimeout   time.Duration `mapstructure:"lore_timeout"`
	Concurrency   int           `mapstructure:"concurrency"`
	StatsCacheTTL time.Duration `mapstructure:"stats_cache_ttl"`
}

// CORSConfig lists allowed browser origins. Empty allows all.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimitConfig configures the per-client request limiter. RPS <= 0 disables it.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// MetricsConfig contains Prometheus exporter settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TracingConfig toggles OpenTelemetry HTTP tracing.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var defaultPorts = map[Service]int{
	ServiceAuth:      3001,
	ServiceLore:      3002,
	ServiceMythology: 3003,
}

// Load reads configuration for service from file and environment variables.
// With an empty configPath a missing config file is not an error.
func Load(configPath string, service Service) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/lorekeeper/")
	}

	setDefaults(v, service)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.Service = service

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper, service Service) {
	v.SetDefault("server.port", defaultPorts[service])
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 25)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)
	v.SetDefault("database.sqlite.path", string(service)+".db")
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)

	v.SetDefault("auth.token_ttl", "168h")

	v.SetDefault("lore.identity_url", "http://localhost:3001")
	v.SetDefault("lore.identity_timeout", "5s")
	v.SetDefault("lore.testimony_cooldown", "5m")
	v.SetDefault("lore.token_cache_ttl", 0)
	v.SetDefault("lore.reconcile.enabled", true)
	v.SetDefault("lore.reconcile.schedule", "*/15 * * * *")
	v.SetDefault("lore.reconcile.timezone", "UTC")

	v.SetDefault("mythology.lore_url", "http://localhost:3002")
	v.SetDefault("mythology.lore_timeout", "10s")
	v.SetDefault("mythology.concurrency", 8)
	v.SetDefault("mythology.stats_cache_ttl", "0s")

	v.SetDefault("rate_limit.rps", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// bindEnv binds explicit environment variables (12-factor).
func bindEnv(v *viper.Viper) {
	// Server configuration
	_ = v.BindEnv("server.port", "PORT", "SERVER_PORT")
	_ = v.BindEnv("server.environment", "ENVIRONMENT", "SERVER_ENVIRONMENT")
	_ = v.BindEnv("server.shutdown_timeout", "SERVER_SHUTDOWN_TIMEOUT")

	// Database configuration
	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.max_open_conns", "POSTGRES_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.postgres.max_idle_conns", "POSTGRES_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.postgres.conn_max_lifetime", "POSTGRES_CONN_MAX_LIFETIME")
	_ = v.BindEnv("database.sqlite.path", "SQLITE_PATH")

	// Redis configuration
	_ = v.BindEnv("database.redis.enabled", "REDIS_ENABLED")
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")
	_ = v.BindEnv("database.redis.pool_size", "REDIS_POOL_SIZE")

	// Identity configuration
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("auth.token_ttl", "JWT_EXPIRES_IN")
	_ = v.BindEnv("auth.internal_token", "INTERNAL_SERVICE_TOKEN")

	// Lore configuration
	_ = v.BindEnv("lore.identity_url", "AUTH_SERVICE_URL")
	_ = v.BindEnv("lore.identity_timeout", "AUTH_SERVICE_TIMEOUT")
	_ = v.BindEnv("lore.testimony_cooldown", "TESTIMONY_COOLDOWN")
	_ = v.BindEnv("lore.token_cache_ttl", "TOKEN_CACHE_TTL")
	_ = v.BindEnv("lore.reconcile.enabled", "RECONCILE_ENABLED")
	_ = v.BindEnv("lore.reconcile.schedule", "RECONCILE_SCHEDULE")
	_ = v.BindEnv("lore.reconcile.timezone", "RECONCILE_TIMEZONE")

	// Mythology configuration
	_ = v.BindEnv("mythology.lore_url", "LORE_SERVICE_URL")
	_ = v.BindEnv("mythology.lore_timeout", "LORE_SERVICE_TIMEOUT")
	_ = v.BindEnv("mythology.concurrency", "MYTHOLOGY_CONCURRENCY")
	_ = v.BindEnv("mythology.stats_cache_ttl", "STATS_CACHE_TTL")

	// HTTP edge configuration
	_ = v.BindEnv("cors.allowed_origins", "CORS_ALLOWED_ORIGINS")
	_ = v.BindEnv("rate_limit.rps", "RATE_LIMIT_RPS")
	_ = v.BindEnv("rate_limit.burst", "RATE_LIMIT_BURST")

	// Observability configuration
	_ = v.BindEnv("metrics.enabled", "METRICS_ENABLED")
	_ = v.BindEnv("metrics.path", "METRICS_PATH")
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")
	_ = v.BindEnv("tracing.enabled", "TRACING_ENABLED")
}

// Validate checks if the configuration is valid for c.Service.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}

	switch c.Service {
	case ServiceAuth:
		if err := c.validateDatabase(); err != nil {
			return err
		}
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is required")
		}
		if c.Auth.TokenTTL <= 0 {
			return fmt.Errorf("auth.token_ttl must be positive")
		}
	case ServiceLore:
		if err := c.validateDatabase(); err != nil {
			return err
		}
		if c.Lore.IdentityURL == "" {
			return fmt.Errorf("lore.identity_url is required")
		}
		if c.Lore.IdentityTimeout <= 0 {
			return fmt.Errorf("lore.identity_timeout must be positive")
		}
		if c.Lore.TestimonyCooldown < 0 {
			return fmt.Errorf("lore.testimony_cooldown must not be negative")
		}
	case ServiceMythology:
		if c.Mythology.LoreURL == "" {
			return fmt.Errorf("mythology.lore_url is required")
		}
		if c.Mythology.Concurrency < 1 {
			return fmt.Errorf("mythology.concurrency must be at least 1")
		}
	default:
		return fmt.Errorf("unknown service %q", c.Service)
	}

	if c.Database.Redis.Enabled && c.Database.Redis.Host == "" {
		return fmt.Errorf("database.redis.host is required when redis is enabled")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if c.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	return nil
}

// URL builds a postgres:// URL, as expected by the migration runner.
func (c *PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
