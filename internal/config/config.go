package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Security    SecurityConfig    `mapstructure:"security"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	HTTPClient  HTTPClientConfig  `mapstructure:"http_client"`
	Eligibility EligibilityConfig `mapstructure:"eligibility"`
	Points      PointsConfig      `mapstructure:"points"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Chains      map[string]string `mapstructure:"chains"`
	Features    FeaturesConfig    `mapstructure:"features"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string `mapstructure:"port"`
	Host            string `mapstructure:"host"`
	EnableTLS       bool   `mapstructure:"enable_tls"`
	CertFile        string `mapstructure:"cert_file"`
	KeyFile         string `mapstructure:"key_file"`
	ReadTimeout     int    `mapstructure:"read_timeout"`  // seconds
	WriteTimeout    int    `mapstructure:"write_timeout"` // seconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects and configures the storage backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or postgres
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// CacheConfig configures the eligibility result cache.
type CacheConfig struct {
	Backend       string `mapstructure:"backend"` // database, redis or memory
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
	TTLHours      int    `mapstructure:"ttl_hours"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	MaxRequestBodySize int64  `mapstructure:"max_request_body_size"`
	AllowedOrigins     string `mapstructure:"allowed_origins"` // comma-separated
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Rate    int  `mapstructure:"rate"`
	Window  int  `mapstructure:"window"` // in seconds
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// HTTPClientConfig configures outbound partner API calls.
type HTTPClientConfig struct {
	Timeout      int `mapstructure:"timeout"` // seconds
	MaxRetries   int `mapstructure:"max_retries"`
	RetryDelayMs int `mapstructure:"retry_delay_ms"`
}

type EligibilityConfig struct {
	CheckTimeout int `mapstructure:"check_timeout"` // seconds
	Concurrency  int `mapstructure:"concurrency"`   // 0 = unbounded
}

type PointsConfig struct {
	Workers int `mapstructure:"workers"`
}

// SchedulerConfig controls the tracked-wallet refresh job.
type SchedulerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"`
}

type FeaturesConfig struct {
	CacheEnabled    bool `mapstructure:"cache_enabled"`
	EventHooks      bool `mapstructure:"event_hooks"`
	ParallelRefresh bool `mapstructure:"parallel_refresh"`
	ChainActivity   bool `mapstructure:"chain_activity"`
}

// chainEnvPrefix marks environment variables that configure an RPC URL,
// e.g. CHAIN_RPC_ETHEREUM.
const chainEnvPrefix = "CHAIN_RPC_"

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     15,
			WriteTimeout:    240,
			ShutdownTimeout: 30,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "./airdrop_eligibility.db",
		},
		Cache: CacheConfig{
			Backend:     "database",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "airdrop:",
			TTLHours:    24,
		},
		Security: SecurityConfig{
			MaxRequestBodySize: 1 << 20,
			AllowedOrigins:     "*",
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Rate:    100,
			Window:  60,
		},
		Tracing: TracingConfig{
			Endpoint:    "http://localhost:14268/api/traces",
			ServiceName: "airdrop-eligibility-api",
			Environment: "development",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		HTTPClient: HTTPClientConfig{
			Timeout:      30,
			MaxRetries:   3,
			RetryDelayMs: 2000,
		},
		Eligibility: EligibilityConfig{
			CheckTimeout: 180,
		},
		Points: PointsConfig{
			Workers: 4,
		},
		Scheduler: SchedulerConfig{
			Enabled: false,
			Cron:    "0 */6 * * *",
		},
		Chains: map[string]string{},
		Features: FeaturesConfig{
			CacheEnabled:  true,
			EventHooks:    true,
			ChainActivity: true,
		},
	}
}

// LoadConfig loads configuration in layers: built-in defaults, the optional
// config file (YAML or JSON), a .env file in the working directory, then
// environment variables. Later layers win.
func LoadConfig(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	overrideFromEnv(cfg)

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	return v.Unmarshal(cfg)
}

// overrideFromEnv overrides configuration with environment variables.
func overrideFromEnv(cfg *Config) {
	setString(&cfg.Server.Port, "SERVER_PORT")
	setString(&cfg.Server.Host, "SERVER_HOST")
	setBool(&cfg.Server.EnableTLS, "SERVER_ENABLE_TLS")
	setString(&cfg.Server.CertFile, "SERVER_CERT_FILE")
	setString(&cfg.Server.KeyFile, "SERVER_KEY_FILE")
	setInt(&cfg.Server.ReadTimeout, "SERVER_READ_TIMEOUT")
	setInt(&cfg.Server.WriteTimeout, "SERVER_WRITE_TIMEOUT")
	setInt(&cfg.Server.ShutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT")

	setString(&cfg.Database.Driver, "DATABASE_DRIVER")
	setString(&cfg.Database.Path, "DATABASE_PATH")
	setString(&cfg.Database.DSN, "DATABASE_DSN")

	setString(&cfg.Cache.Backend, "CACHE_BACKEND")
	setString(&cfg.Cache.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Cache.RedisPassword, "REDIS_PASSWORD")
	setInt(&cfg.Cache.RedisDB, "REDIS_DB")
	setString(&cfg.Cache.RedisPrefix, "REDIS_PREFIX")
	setInt(&cfg.Cache.TTLHours, "CACHE_TTL_HOURS")

	if v := os.Getenv("MAX_REQUEST_BODY_SIZE"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Security.MaxRequestBodySize = size
		}
	}
	setString(&cfg.Security.AllowedOrigins, "ALLOWED_ORIGINS")

	setBool(&cfg.RateLimit.Enabled, "RATE_LIMIT_ENABLED")
	setInt(&cfg.RateLimit.Rate, "RATE_LIMIT_RATE")
	setInt(&cfg.RateLimit.Window, "RATE_LIMIT_WINDOW")

	setBool(&cfg.Tracing.Enabled, "TRACING_ENABLED")
	setString(&cfg.Tracing.Endpoint, "JAEGER_ENDPOINT")
	setString(&cfg.Tracing.ServiceName, "TRACING_SERVICE_NAME")
	setString(&cfg.Tracing.Environment, "ENVIRONMENT")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	setString(&cfg.Logging.Output, "LOG_OUTPUT")

	setInt(&cfg.HTTPClient.Timeout, "HTTP_CLIENT_TIMEOUT")
	setInt(&cfg.HTTPClient.MaxRetries, "HTTP_CLIENT_MAX_RETRIES")
	setInt(&cfg.HTTPClient.RetryDelayMs, "HTTP_CLIENT_RETRY_DELAY_MS")

	setInt(&cfg.Eligibility.CheckTimeout, "ELIGIBILITY_CHECK_TIMEOUT")
	setInt(&cfg.Eligibility.Concurrency, "ELIGIBILITY_CONCURRENCY")
	setInt(&cfg.Points.Workers, "POINTS_WORKERS")

	setBool(&cfg.Scheduler.Enabled, "SCHEDULER_ENABLED")
	setString(&cfg.Scheduler.Cron, "SCHEDULER_CRON")

	setBool(&cfg.Features.CacheEnabled, "FEATURE_CACHE_ENABLED")
	setBool(&cfg.Features.EventHooks, "FEATURE_EVENT_HOOKS")
	setBool(&cfg.Features.ParallelRefresh, "FEATURE_PARALLEL_REFRESH")
	setBool(&cfg.Features.ChainActivity, "FEATURE_CHAIN_ACTIVITY")

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, chainEnvPrefix) || value == "" {
			continue
		}
		if cfg.Chains == nil {
			cfg.Chains = map[string]string{}
		}
		cfg.Chains[strings.ToLower(strings.TrimPrefix(key, chainEnvPrefix))] = value
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.ToLower(v) == "true" || v == "1"
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// CacheTTL returns the eligibility freshness window.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.EnableTLS && (c.Server.CertFile == "" || c.Server.KeyFile == "") {
		return fmt.Errorf("TLS requires both cert_file and key_file")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.Cache.Backend {
	case "database", "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("redis address is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.TTLHours <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 {
			return fmt.Errorf("rate limit rate must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}
	if c.HTTPClient.Timeout <= 0 {
		return fmt.Errorf("http client timeout must be positive")
	}
	if c.HTTPClient.MaxRetries < 0 || c.HTTPClient.RetryDelayMs < 0 {
		return fmt.Errorf("http client retry settings must be non-negative")
	}
	if c.Eligibility.CheckTimeout <= 0 {
		return fmt.Errorf("eligibility check timeout must be positive")
	}
	if c.Eligibility.Concurrency < 0 {
		return fmt.Errorf("eligibility concurrency must be non-negative")
	}
	if c.Points.Workers <= 0 {
		return fmt.Errorf("points workers must be positive")
	}
	if c.Scheduler.Enabled && strings.TrimSpace(c.Scheduler.Cron) == "" {
		return fmt.Errorf("scheduler cron spec is required when the scheduler is enabled")
	}
	return nil
}
