package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingNotificationAPIKey is returned by Validate when no API key is
// configured for the notification service.
var ErrMissingNotificationAPIKey = errors.New("config: notification api key is required (set NOVU_API_KEY)")

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Cache        CacheConfig        `yaml:"cache"`
	Notification NotificationConfig `yaml:"notification"`
	Storage      StorageConfig      `yaml:"storage"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Redact *bool  `yaml:"redact"`
}

// RedactEnabled reports whether log redaction is on. Defaults to true.
func (c LogConfig) RedactEnabled() bool {
	return c.Redact == nil || *c.Redact
}

// MonitoringConfig holds error-monitoring (Sentry) settings.
// An empty DSN disables event delivery.
type MonitoringConfig struct {
	DSN                 string  `yaml:"dsn"`
	Environment         string  `yaml:"environment"`
	Release             string  `yaml:"release"`
	SampleRate          float64 `yaml:"sample_rate"`
	FlushTimeoutSeconds int     `yaml:"flush_timeout_seconds"`
	Debug               bool    `yaml:"debug"`
}

// FlushTimeout returns the shutdown flush budget as a duration
func (c MonitoringConfig) FlushTimeout() time.Duration {
	return time.Duration(c.FlushTimeoutSeconds) * time.Second
}

// CacheConfig holds the Redis-backed tag cache settings
type CacheConfig struct {
	RedisURL          string `yaml:"redis_url"`
	KeyPrefix         string `yaml:"key_prefix"`
	DefaultTTLSeconds int    `yaml:"default_ttl_seconds"`
}

// DefaultTTL returns the default entry TTL as a duration
func (c CacheConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

// NotificationConfig holds notification service API configuration
type NotificationConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// MaxRetries is nil when unset; an explicit 0 disables retries.
	MaxRetries     *int   `yaml:"max_retries"`
}

// Timeout returns the configured timeout as a duration
func (c NotificationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Retries returns the retry budget, 3 when max_retries is not set.
func (c NotificationConfig) Retries() int {
	if c.MaxRetries == nil {
		return 3
	}
	return *c.MaxRetries
}

// StorageConfig holds image storage configuration. Uploads are disabled
// when S3Bucket is empty.
type StorageConfig struct {
	S3Bucket  string `yaml:"s3_bucket"`
	AWSRegion string `yaml:"aws_region"`
	CDNDomain string `yaml:"cdn_domain"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Enabled reports whether image uploads are configured
func (c StorageConfig) Enabled() bool {
	return c.S3Bucket != ""
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Monitoring.Environment == "" {
		cfg.Monitoring.Environment = "development"
	}
	if cfg.Monitoring.SampleRate == 0 {
		cfg.Monitoring.SampleRate = 1.0
	}
	if cfg.Monitoring.FlushTimeoutSeconds == 0 {
		cfg.Monitoring.FlushTimeoutSeconds = 2
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "cache"
	}
	if cfg.Cache.DefaultTTLSeconds == 0 {
		cfg.Cache.DefaultTTLSeconds = 3600
	}
	if cfg.Notification.BaseURL == "" {
		cfg.Notification.BaseURL = "https://api.novu.co"
	}
	if cfg.Notification.TimeoutSeconds == 0 {
		cfg.Notification.TimeoutSeconds = 30
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-east-1"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
// A missing config file is not an error here; defaults plus env apply.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = &Config{}
		cfg.applyDefaults()
	} else if err != nil {
		return nil, err
	}

	if v := os.Getenv("NOVU_API_KEY"); v != "" {
		cfg.Notification.APIKey = v
	}
	if v := os.Getenv("NOVU_BASE_URL"); v != "" {
		cfg.Notification.BaseURL = v
	}
	if v := os.Getenv("SENTRY_DSN"); v != "" {
		cfg.Monitoring.DSN = v
	}
	if v := os.Getenv("SENTRY_ENVIRONMENT"); v != "" {
		cfg.Monitoring.Environment = v
	}
	if v := os.Getenv("SENTRY_RELEASE"); v != "" {
		cfg.Monitoring.Release = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.RedisURL = v
	}
	if v := os.Getenv("IMAGE_S3_BUCKET"); v != "" {
		cfg.Storage.S3Bucket = v
	}
	if v := os.Getenv("IMAGE_CDN_DOMAIN"); v != "" {
		cfg.Storage.CDNDomain = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Storage.AWSRegion = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	return cfg, nil
}

// Validate checks values the process cannot start without.
func (cfg *Config) Validate() error {
	if cfg.Notification.APIKey == "" {
		return ErrMissingNotificationAPIKey
	}
	return nil
}
