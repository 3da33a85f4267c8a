package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Event warehouse holding exposures and metric events
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`

	// Experiment plan store and report cache
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`

	// Message broker configuration
	NATS NATSConfig `mapstructure:"nats"`

	// Observability
	Observability ObservabilityConfig `mapstructure:"observability"`

	// Authentication
	Auth AuthConfig `mapstructure:"auth"`

	// Analysis defaults
	Analytics AnalyticsConfig `mapstructure:"analytics"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Environment     string        `mapstructure:"environment"`
}

// ClickHouseConfig holds the event warehouse connection
type ClickHouseConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Database         string        `mapstructure:"database"`
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	MaxExecutionTime int           `mapstructure:"max_execution_time"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Database     string        `mapstructure:"database"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	SSLMode      string        `mapstructure:"ssl_mode"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	Database     int           `mapstructure:"database"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// NATSConfig holds NATS connection configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnect  int           `mapstructure:"max_reconnect"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
}

// ObservabilityConfig holds observability configuration
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	JWTExpiry  time.Duration `mapstructure:"jwt_expiry"`
	BCryptCost int           `mapstructure:"bcrypt_cost"`
	// APIKeys maps a key prefix to the bcrypt hash of the full key.
	APIKeys map[string]string `mapstructure:"api_keys"`
}

// AnalyticsConfig holds the defaults applied to analyses that don't set them
type AnalyticsConfig struct {
	ConfidenceLevel         float64       `mapstructure:"confidence_level"`
	StatisticalPower        float64       `mapstructure:"statistical_power"`
	MinimumDetectableEffect float64       `mapstructure:"minimum_detectable_effect"`
	StrictSignificance      bool          `mapstructure:"strict_significance"`
	Pairwise                bool          `mapstructure:"pairwise"`
	Correction              string        `mapstructure:"correction"`
	CacheTTL                time.Duration `mapstructure:"cache_ttl"`
	QueryTimeout            time.Duration `mapstructure:"query_timeout"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	return load(".", "./config", "/etc/experiment-analytics")
}

func load(paths ...string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("EXP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// AutomaticEnv only applies to keys viper already knows about
	if config.Auth.JWTSecret == "" && v.GetString("auth.jwt_secret") != "" {
		config.Auth.JWTSecret = v.GetString("auth.jwt_secret")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8084)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.environment", "development")

	// ClickHouse defaults
	v.SetDefault("clickhouse.host", "localhost")
	v.SetDefault("clickhouse.port", 9000)
	v.SetDefault("clickhouse.database", "analytics")
	v.SetDefault("clickhouse.username", "default")
	v.SetDefault("clickhouse.dial_timeout", "30s")
	v.SetDefault("clickhouse.max_execution_time", 60)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "experiments")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_lifetime", "5m")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnect", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.timeout", "5s")
	v.SetDefault("nats.subject_prefix", "experiments")

	// Observability defaults
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")

	// Auth defaults
	v.SetDefault("auth.jwt_expiry", "24h")
	v.SetDefault("auth.bcrypt_cost", 12)

	// Analytics defaults
	v.SetDefault("analytics.confidence_level", 0.95)
	v.SetDefault("analytics.statistical_power", 0.8)
	v.SetDefault("analytics.minimum_detectable_effect", 0.01)
	v.SetDefault("analytics.strict_significance", false)
	v.SetDefault("analytics.pairwise", true)
	v.SetDefault("analytics.correction", "none")
	v.SetDefault("analytics.cache_ttl", "10m")
	v.SetDefault("analytics.query_timeout", "30s")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse host is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}

	if c.NATS.URL == "" {
		return fmt.Errorf("NATS URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	return c.Analytics.Validate()
}

// Validate checks the analysis defaults lie in their domains
func (a AnalyticsConfig) Validate() error {
	if a.ConfidenceLevel <= 0 || a.ConfidenceLevel >= 1 {
		return fmt.Errorf("analytics confidence level must be in (0,1): %v", a.ConfidenceLevel)
	}
	if a.StatisticalPower <= 0 || a.StatisticalPower >= 1 {
		return fmt.Errorf("analytics statistical power must be in (0,1): %v", a.StatisticalPower)
	}
	if a.MinimumDetectableEffect == 0 {
		return fmt.Errorf("analytics minimum detectable effect must be nonzero")
	}
	switch a.Correction {
	case "", "none", "bonferroni":
	default:
		return fmt.Errorf("unknown analytics correction: %q", a.Correction)
	}
	if a.CacheTTL < 0 {
		return fmt.Errorf("analytics cache TTL must not be negative")
	}
	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Username,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetClickHouseAddr returns the ClickHouse native protocol address
func (c *Config) GetClickHouseAddr() string {
	return fmt.Sprintf("%s:%d", c.ClickHouse.Host, c.ClickHouse.Port)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
