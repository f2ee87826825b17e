package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Server        ServerConfig        `json:"server"`
	Database      DatabaseConfig      `json:"database"`
	Redis         RedisConfig         `json:"redis"`
	Auth          AuthConfig          `json:"auth"`
	Logging       LoggingConfig       `json:"logging"`
	Tracing       TracingConfig       `json:"tracing"`
	Resilience    ResilienceConfig    `json:"resilience"`
	Pool          PoolConfig          `json:"pool"`
	Monitoring    MonitoringConfig    `json:"monitoring"`
	Alerting      AlertingConfig      `json:"alerting"`
	Notifications NotificationsConfig `json:"notifications"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// DatabaseConfig contains database connection configuration
type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// AuthConfig contains authentication configuration
type AuthConfig struct {
	JWTSecret     string        `json:"jwt_secret"`
	JWTExpiration time.Duration `json:"jwt_expiration"`
	EncryptionKey string        `json:"encryption_key"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// TracingConfig contains distributed tracing configuration
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	JaegerEndpoint string  `json:"jaeger_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
}

// ResilienceConfig contains default retry and circuit breaker settings.
// Individual call sites may override these per operation.
type ResilienceConfig struct {
	MaxRetries        int           `json:"max_retries"`
	BaseDelay         time.Duration `json:"base_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	JitterEnabled     bool          `json:"jitter_enabled"`
	FailureThreshold  int           `json:"failure_threshold"`
	ResetTimeout      time.Duration `json:"reset_timeout"`
	MonitoringWindow  time.Duration `json:"monitoring_window"`
	HalfOpenSuccesses int           `json:"half_open_successes"`
}

// PoolConfig contains managed connection pool settings
type PoolConfig struct {
	MaxSize        int           `json:"max_size"`
	MinIdle        int           `json:"min_idle"`
	AcquireTimeout time.Duration `json:"acquire_timeout"`
	IdleTimeout    time.Duration `json:"idle_timeout"`
	ReapInterval   time.Duration `json:"reap_interval"`
}

// MonitoringConfig contains health monitoring settings
type MonitoringConfig struct {
	CheckInterval time.Duration `json:"check_interval"`
	CheckTimeout  time.Duration `json:"check_timeout"`
	HistorySize   int           `json:"history_size"`
	RetentionDays int           `json:"retention_days"`
}

// AlertingConfig contains alert engine settings
type AlertingConfig struct {
	EvaluationEnabled bool          `json:"evaluation_enabled"`
	AggregationWindow time.Duration `json:"aggregation_window"`
	AnomalyMinSamples int           `json:"anomaly_min_samples"`
	RetentionDays     int           `json:"retention_days"`
}

// NotificationsConfig contains delivery channel settings
type NotificationsConfig struct {
	SlackWebhookURL string        `json:"slack_webhook_url"`
	SMTPHost        string        `json:"smtp_host"`
	SMTPPort        int           `json:"smtp_port"`
	SMTPUser        string        `json:"smtp_user"`
	SMTPPassword    string        `json:"smtp_password"`
	EmailFrom       string        `json:"email_from"`
	EmailTo         []string      `json:"email_to"`
	WebhookURL      string        `json:"webhook_url"`
	WebhookSecret   string        `json:"webhook_secret"`
	GitHubToken     string        `json:"github_token"`
	GitHubRepo      string        `json:"github_repo"`
	SendTimeout     time.Duration `json:"send_timeout"`
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:         getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "audiocove_monitoring"),
			User:            getEnvString("DB_USER", "audiocove"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnvString("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnvString("JWT_SECRET", ""),
			JWTExpiration: getEnvDuration("JWT_EXPIRATION", 24*time.Hour),
			EncryptionKey: getEnvString("ENCRYPTION_KEY", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
			Output: getEnvString("LOG_OUTPUT", "stdout"),
		},
		Tracing: TracingConfig{
			Enabled:        getEnvBool("TRACING_ENABLED", false),
			JaegerEndpoint: getEnvString("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			SampleRate:     getEnvFloat("TRACING_SAMPLE_RATE", 0.1),
		},
		Resilience: ResilienceConfig{
			MaxRetries:        getEnvInt("RESILIENCE_MAX_RETRIES", 3),
			BaseDelay:         getEnvDuration("RESILIENCE_BASE_DELAY", 1*time.Second),
			MaxDelay:          getEnvDuration("RESILIENCE_MAX_DELAY", 30*time.Second),
			BackoffMultiplier: getEnvFloat("RESILIENCE_BACKOFF_MULTIPLIER", 2.0),
			JitterEnabled:     getEnvBool("RESILIENCE_JITTER_ENABLED", true),
			FailureThreshold:  getEnvInt("RESILIENCE_FAILURE_THRESHOLD", 5),
			ResetTimeout:      getEnvDuration("RESILIENCE_RESET_TIMEOUT", 60*time.Second),
			MonitoringWindow:  getEnvDuration("RESILIENCE_MONITORING_WINDOW", 60*time.Second),
			HalfOpenSuccesses: getEnvInt("RESILIENCE_HALF_OPEN_SUCCESSES", 3),
		},
		Pool: PoolConfig{
			MaxSize:        getEnvInt("POOL_MAX_SIZE", 10),
			MinIdle:        getEnvInt("POOL_MIN_IDLE", 2),
			AcquireTimeout: getEnvDuration("POOL_ACQUIRE_TIMEOUT", 5*time.Second),
			IdleTimeout:    getEnvDuration("POOL_IDLE_TIMEOUT", 5*time.Minute),
			ReapInterval:   getEnvDuration("POOL_REAP_INTERVAL", 1*time.Minute),
		},
		Monitoring: MonitoringConfig{
			CheckInterval: getEnvDuration("MONITORING_CHECK_INTERVAL", 30*time.Second),
			CheckTimeout:  getEnvDuration("MONITORING_CHECK_TIMEOUT", 10*time.Second),
			HistorySize:   getEnvInt("MONITORING_HISTORY_SIZE", 1000),
			RetentionDays: getEnvInt("MONITORING_RETENTION_DAYS", 30),
		},
		Alerting: AlertingConfig{
			EvaluationEnabled: getEnvBool("ALERTING_ENABLED", true),
			AggregationWindow: getEnvDuration("ALERTING_AGGREGATION_WINDOW", 5*time.Minute),
			AnomalyMinSamples: getEnvInt("ALERTING_ANOMALY_MIN_SAMPLES", 30),
			RetentionDays:     getEnvInt("ALERTING_RETENTION_DAYS", 90),
		},
		Notifications: NotificationsConfig{
			SlackWebhookURL: getEnvString("SLACK_WEBHOOK_URL", ""),
			SMTPHost:        getEnvString("SMTP_HOST", ""),
			SMTPPort:        getEnvInt("SMTP_PORT", 587),
			SMTPUser:        getEnvString("SMTP_USER", ""),
			SMTPPassword:    getEnvString("SMTP_PASSWORD", ""),
			EmailFrom:       getEnvString("EMAIL_FROM", "monitoring@audiocove.io"),
			EmailTo:         getEnvStringSlice("EMAIL_TO", nil),
			WebhookURL:      getEnvString("NOTIFY_WEBHOOK_URL", ""),
			WebhookSecret:   getEnvString("NOTIFY_WEBHOOK_SECRET", ""),
			GitHubToken:     getEnvString("GITHUB_TOKEN", ""),
			GitHubRepo:      getEnvString("GITHUB_REPO", ""),
			SendTimeout:     getEnvDuration("NOTIFY_SEND_TIMEOUT", 10*time.Second),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("database password is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	if c.Resilience.BackoffMultiplier < 1.0 {
		return fmt.Errorf("backoff multiplier must be at least 1.0")
	}

	if c.Pool.MaxSize < 1 {
		return fmt.Errorf("pool max size must be at least 1")
	}

	if c.Pool.MinIdle > c.Pool.MaxSize {
		return fmt.Errorf("pool min idle cannot exceed max size")
	}

	if c.Monitoring.HistorySize < 1 {
		return fmt.Errorf("monitoring history size must be at least 1")
	}

	return nil
}

// DatabaseURL returns the database connection URL
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// RedisURL returns the Redis connection URL
func (c *Config) RedisURL() string {
	if c.Redis.Password != "" {
		return fmt.Sprintf("redis://:%s@%s:%d/%d",
			c.Redis.Password,
			c.Redis.Host,
			c.Redis.Port,
			c.Redis.DB,
		)
	}
	return fmt.Sprintf("redis://%s:%d/%d",
		c.Redis.Host,
		c.Redis.Port,
		c.Redis.DB,
	)
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
