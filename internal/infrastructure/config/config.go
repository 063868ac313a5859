package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Stripe     StripeConfig
	Generation GenerationConfig
	Sweep      SweepConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// DSN returns the Postgres connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port address for the Redis client
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JWTConfig holds JWT settings
type JWTConfig struct {
	Secret                string
	AccessTokenExpiration time.Duration
	Issuer                string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxBodySize       int64
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	TrustedProxies    []string
}

// StripeConfig holds Stripe integration settings
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	IsTestMode    bool
	PriceIDs      map[string]string // tier name -> Stripe price ID
}

// GenerationConfig holds generative-text provider settings
type GenerationConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	MaxTokens      int
	RequestTimeout time.Duration
	MaxRetries     int
	BackoffCap     time.Duration
}

// SweepConfig holds periodic sweep settings
type SweepConfig struct {
	Enabled      bool
	Interval     time.Duration
	CronSecret   string // shared bearer secret for the /cron endpoints
	ReminderDays []int  // days-remaining marks at which reminders are sent
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with INKFLOW_ prefix (e.g., INKFLOW_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("INKFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:                v.GetString("jwt.secret"),
			AccessTokenExpiration: v.GetDuration("jwt.access_token_expiration"),
			Issuer:                v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
		},
		Stripe: StripeConfig{
			SecretKey:     v.GetString("stripe.secret_key"),
			WebhookSecret: v.GetString("stripe.webhook_secret"),
			IsTestMode:    v.GetBool("stripe.is_test_mode"),
			PriceIDs:      v.GetStringMapString("stripe.price_ids"),
		},
		Generation: GenerationConfig{
			BaseURL:        v.GetString("generation.base_url"),
			APIKey:         v.GetString("generation.api_key"),
			Model:          v.GetString("generation.model"),
			MaxTokens:      v.GetInt("generation.max_tokens"),
			RequestTimeout: v.GetDuration("generation.request_timeout"),
			MaxRetries:     v.GetInt("generation.max_retries"),
			BackoffCap:     v.GetDuration("generation.backoff_cap"),
		},
		Sweep: SweepConfig{
			Enabled:      v.GetBool("sweep.enabled"),
			Interval:     v.GetDuration("sweep.interval"),
			CronSecret:   v.GetString("sweep.cron_secret"),
			ReminderDays: v.GetIntSlice("sweep.reminder_days"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "inkflow")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "inkflow")
	v.SetDefault("database.dbname", "inkflow")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.conn_max_idle_time", 10)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.access_token_expiration", 24*time.Hour)
	v.SetDefault("jwt.issuer", "inkflow")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 60*time.Second)
	v.SetDefault("http.idle_timeout", 90*time.Second)
	v.SetDefault("http.max_body_size", int64(1<<20))
	v.SetDefault("http.rate_limit_enabled", true)
	v.SetDefault("http.rate_limit_requests", 100)
	v.SetDefault("http.rate_limit_window", 15*time.Minute)

	v.SetDefault("stripe.is_test_mode", true)

	v.SetDefault("generation.base_url", "https://api.openai.com/v1")
	v.SetDefault("generation.model", "gpt-4o-mini")
	v.SetDefault("generation.max_tokens", 1024)
	v.SetDefault("generation.request_timeout", 30*time.Second)
	v.SetDefault("generation.max_retries", 3)
	v.SetDefault("generation.backoff_cap", 8*time.Second)

	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.interval", time.Hour)
	v.SetDefault("sweep.reminder_days", []int{7, 3, 1})
}

func (c *Config) validate() error {
	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("config: jwt.secret is required in production")
		}
		if c.Stripe.WebhookSecret == "" {
			return fmt.Errorf("config: stripe.webhook_secret is required in production")
		}
		if c.Sweep.CronSecret == "" {
			return fmt.Errorf("config: sweep.cron_secret is required in production")
		}
	}
	return nil
}
