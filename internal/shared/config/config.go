package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Security  SecurityConfig  `mapstructure:"security"`
	Tasks     TaskConfig      `mapstructure:"tasks"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Stripe    StripeConfig    `mapstructure:"stripe"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	// PublicBaseURL is the externally reachable base URL used to build
	// provider callback URLs.
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig holds NATS configuration for the notification channel.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`
	AccessTokenExpiry time.Duration `mapstructure:"access_token_expiry"`
}

// SecurityConfig holds admission-gate configuration.
type SecurityConfig struct {
	RateLimit          int           `mapstructure:"rate_limit"`
	RateLimitWindow    time.Duration `mapstructure:"rate_limit_window"`
	ValidationCacheTTL time.Duration `mapstructure:"validation_cache_ttl"`
	SignupBonus        int64         `mapstructure:"signup_bonus"`
}

// TaskConfig holds task orchestration configuration.
type TaskConfig struct {
	MaxConcurrentPolls int           `mapstructure:"max_concurrent_polls"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	MaxPollAttempts    int           `mapstructure:"max_poll_attempts"`
	// WebhookSecret, when set, makes HMAC verification of inbound
	// generation webhooks mandatory.
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// ProviderConfig holds one generation provider's credentials.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Enabled bool   `mapstructure:"enabled"`
}

// ProvidersConfig holds configuration for all generation providers.
type ProvidersConfig struct {
	Replicate ProviderConfig `mapstructure:"replicate"`
	Luma      ProviderConfig `mapstructure:"luma"`
	Stability ProviderConfig `mapstructure:"stability"`
}

// StripeConfig holds Stripe configuration for token purchases.
type StripeConfig struct {
	APIKey        string `mapstructure:"api_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// PricingConfig holds price-table overrides keyed "service.operation".
type PricingConfig struct {
	Overrides map[string]int64 `mapstructure:"overrides"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/artigen")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	v.SetEnvPrefix("ARTIGEN")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override with environment variables for sensitive values
	if secret := os.Getenv("ARTIGEN_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if password := os.Getenv("ARTIGEN_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if secret := os.Getenv("ARTIGEN_WEBHOOK_SECRET"); secret != "" {
		cfg.Tasks.WebhookSecret = secret
	}
	if key := os.Getenv("ARTIGEN_STRIPE_API_KEY"); key != "" {
		cfg.Stripe.APIKey = key
	}
	if secret := os.Getenv("ARTIGEN_STRIPE_WEBHOOK_SECRET"); secret != "" {
		cfg.Stripe.WebhookSecret = secret
	}
	if key := os.Getenv("ARTIGEN_REPLICATE_API_KEY"); key != "" {
		cfg.Providers.Replicate.APIKey = key
	}
	if key := os.Getenv("ARTIGEN_LUMA_API_KEY"); key != "" {
		cfg.Providers.Luma.APIKey = key
	}
	if key := os.Getenv("ARTIGEN_STABILITY_API_KEY"); key != "" {
		cfg.Providers.Stability.APIKey = key
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.public_base_url", "http://localhost:8080")

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "artigen")
	v.SetDefault("database.database", "artigen")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "5m")

	// Redis
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// NATS
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "artigen")

	// Auth
	v.SetDefault("auth.access_token_expiry", "24h")

	// Security
	v.SetDefault("security.rate_limit", 10)
	v.SetDefault("security.rate_limit_window", "60s")
	v.SetDefault("security.validation_cache_ttl", "5m")
	v.SetDefault("security.signup_bonus", 20)

	// Tasks
	v.SetDefault("tasks.max_concurrent_polls", 32)
	v.SetDefault("tasks.poll_interval", "3s")
	v.SetDefault("tasks.max_poll_attempts", 30)

	// Providers
	v.SetDefault("providers.replicate.base_url", "https://api.replicate.com/v1")
	v.SetDefault("providers.replicate.enabled", true)
	v.SetDefault("providers.luma.base_url", "https://api.lumalabs.ai/dream-machine/v1")
	v.SetDefault("providers.luma.enabled", true)
	v.SetDefault("providers.stability.base_url", "https://api.stability.ai/v2beta")
	v.SetDefault("providers.stability.enabled", true)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
