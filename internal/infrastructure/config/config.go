package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Gateways      GatewaysConfig      `mapstructure:"gateways"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Auth          AuthConfig          `mapstructure:"auth"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	BaseURL         string        `mapstructure:"base_url"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       int           `mapstructure:"rate_limit"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTExpiry time.Duration `mapstructure:"jwt_expiry"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	ConnectRetries  int           `mapstructure:"connect_retries"`
}

type RedisConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// GatewaysConfig holds the credentials of every supported gateway. Only
// enabled gateways are registered.
type GatewaysConfig struct {
	Flow  FlowConfig  `mapstructure:"flow"`
	Khipu KhipuConfig `mapstructure:"khipu"`
	Payku PaykuConfig `mapstructure:"payku"`
	Dummy DummyConfig `mapstructure:"dummy"`
}

type FlowConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Environment   string        `mapstructure:"environment"` // live, sandbox or a base URL
	APIKey        string        `mapstructure:"api_key"`
	APISecret     string        `mapstructure:"api_secret"`
	PaymentMethod int           `mapstructure:"payment_method"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type KhipuConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	BankID   string        `mapstructure:"bank_id"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type PaykuConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Site         string        `mapstructure:"site"` // production, sandbox or a base URL
	PublicToken  string        `mapstructure:"public_token"`
	PrivateToken string        `mapstructure:"private_token"`
	PaymentCode  int           `mapstructure:"payment_code"`
	Expiry       time.Duration `mapstructure:"expiry"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type DummyConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Outcome     string        `mapstructure:"outcome"`
	Latency     time.Duration `mapstructure:"latency"`
	FailureRate float64       `mapstructure:"failure_rate"`
}

type PaymentConfig struct {
	LockTTL              time.Duration        `mapstructure:"lock_ttl"`
	IdempotencyTTL       time.Duration        `mapstructure:"idempotency_ttl"`
	ReconcileConcurrency int                  `mapstructure:"reconcile_concurrency"`
	CircuitBreaker       CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	MaxRequests uint32        `mapstructure:"max_requests"`
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MinRequests uint32        `mapstructure:"min_requests"`
	FailureRate float64       `mapstructure:"failure_rate"`
}

type ObservabilityConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

// Load reads .env (if present), then config.yaml (if present), then
// PAGOSCL_* environment variables, in increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	setDefaults(v)

	// PAGOSCL_GATEWAYS_FLOW_API_KEY -> gateways.flow.api_key
	v.SetEnvPrefix("PAGOSCL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pagoscl")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if u, err := url.Parse(c.Server.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("server.base_url must be an absolute URL, got %q", c.Server.BaseURL))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Enabled && c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if c.Payment.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("payment.lock_ttl must be positive"))
	}
	if r := c.Payment.CircuitBreaker.FailureRate; r <= 0 || r > 1 {
		errs = append(errs, fmt.Errorf("payment.circuit_breaker.failure_rate must be in (0, 1], got %v", r))
	}
	errs = append(errs, c.Gateways.validate()...)

	// Production environment checks
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("auth.jwt_secret required in production"))
		}
		if c.Gateways.Dummy.Enabled {
			errs = append(errs, fmt.Errorf("gateways.dummy must be disabled in production"))
		}
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
	}

	return errors.Join(errs...)
}

func (g *GatewaysConfig) validate() []error {
	var errs []error

	if !g.Flow.Enabled && !g.Khipu.Enabled && !g.Payku.Enabled && !g.Dummy.Enabled {
		errs = append(errs, fmt.Errorf("gateways: at least one gateway must be enabled"))
	}
	if g.Flow.Enabled {
		if g.Flow.APIKey == "" || g.Flow.APISecret == "" {
			errs = append(errs, fmt.Errorf("gateways.flow.api_key and gateways.flow.api_secret are required"))
		}
		if g.Flow.Environment == "" {
			errs = append(errs, fmt.Errorf("gateways.flow.environment is required"))
		}
	}
	if g.Khipu.Enabled && g.Khipu.APIKey == "" {
		errs = append(errs, fmt.Errorf("gateways.khipu.api_key is required"))
	}
	if g.Payku.Enabled {
		if g.Payku.PublicToken == "" || g.Payku.PrivateToken == "" {
			errs = append(errs, fmt.Errorf("gateways.payku.public_token and gateways.payku.private_token are required"))
		}
		if g.Payku.Site == "" {
			errs = append(errs, fmt.Errorf("gateways.payku.site is required"))
		}
	}
	if g.Dummy.Enabled {
		if g.Dummy.Outcome != "confirmed" && g.Dummy.Outcome != "rejected" {
			errs = append(errs, fmt.Errorf("gateways.dummy.outcome must be confirmed or rejected, got %q", g.Dummy.Outcome))
		}
		if g.Dummy.FailureRate < 0 || g.Dummy.FailureRate > 1 {
			errs = append(errs, fmt.Errorf("gateways.dummy.failure_rate must be in [0, 1]"))
		}
	}
	return errs
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit", 100)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "pagoscl")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "pagoscl")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.connect_retries", 5)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Gateway defaults. Secrets default to empty so the env overrides bind.
	v.SetDefault("gateways.flow.enabled", false)
	v.SetDefault("gateways.flow.environment", "sandbox")
	v.SetDefault("gateways.flow.api_key", "")
	v.SetDefault("gateways.flow.api_secret", "")
	v.SetDefault("gateways.flow.payment_method", 9)
	v.SetDefault("gateways.flow.timeout", "5s")

	v.SetDefault("gateways.khipu.enabled", false)
	v.SetDefault("gateways.khipu.endpoint", "https://payment-api.khipu.com")
	v.SetDefault("gateways.khipu.api_key", "")
	v.SetDefault("gateways.khipu.bank_id", "")
	v.SetDefault("gateways.khipu.timeout", "5s")

	v.SetDefault("gateways.payku.enabled", false)
	v.SetDefault("gateways.payku.site", "sandbox")
	v.SetDefault("gateways.payku.public_token", "")
	v.SetDefault("gateways.payku.private_token", "")
	v.SetDefault("gateways.payku.payment_code", 99)
	v.SetDefault("gateways.payku.expiry", "0s")
	v.SetDefault("gateways.payku.timeout", "10s")

	v.SetDefault("gateways.dummy.enabled", true)
	v.SetDefault("gateways.dummy.outcome", "confirmed")
	v.SetDefault("gateways.dummy.latency", "0s")
	v.SetDefault("gateways.dummy.failure_rate", 0.0)

	// Payment defaults
	v.SetDefault("payment.lock_ttl", "30s")
	v.SetDefault("payment.idempotency_ttl", "24h")
	v.SetDefault("payment.reconcile_concurrency", 4)
	v.SetDefault("payment.circuit_breaker.max_requests", 10)
	v.SetDefault("payment.circuit_breaker.interval", "60s")
	v.SetDefault("payment.circuit_breaker.timeout", "30s")
	v.SetDefault("payment.circuit_breaker.min_requests", 10)
	v.SetDefault("payment.circuit_breaker.failure_rate", 0.6)

	// Observability defaults
	v.SetDefault("observability.service_name", "pagoscl")
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "json")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_expiry", "24h")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// MigrateURL returns the connection string golang-migrate expects.
func (c *DatabaseConfig) MigrateURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
