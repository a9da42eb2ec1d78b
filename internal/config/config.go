// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Env                  string  `mapstructure:"APP_ENV"`
	Port                 string  `mapstructure:"PORT"`
	APIBaseURL           string  `mapstructure:"API_BASE_URL"`
	APITimeoutSeconds    int     `mapstructure:"API_TIMEOUT_SECONDS"`
	RedisURL             string  `mapstructure:"REDIS_URL"`
	EventScope           string  `mapstructure:"EVENT_SCOPE"`
	FeatureFlags         string  `mapstructure:"FEATURE_FLAGS"`
	PollClosedIntervalMS int     `mapstructure:"POLL_CLOSED_INTERVAL_MS"`
	PollOpenIntervalMS   int     `mapstructure:"POLL_OPEN_INTERVAL_MS"`
	VendorSetupDelayMS   int     `mapstructure:"VENDOR_SETUP_DELAY_MS"`
	CommentMaxDepth      int     `mapstructure:"COMMENT_MAX_DEPTH"`
	LogLevel             string  `mapstructure:"LOG_LEVEL"`
	TracingEnabled       bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter      string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint         string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio  float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
	SessionToken         string  `mapstructure:"SESSION_TOKEN"`
	SessionUserID        string  `mapstructure:"SESSION_USER_ID"`
	MessageRole          string  `mapstructure:"MESSAGE_ROLE"`
	AllowedOrigins       string  `mapstructure:"ALLOWED_ORIGINS"`
	RateLimitPerMinute   int     `mapstructure:"RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional; env and defaults cover a bare checkout.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("PORT", "8390")
	viper.SetDefault("API_BASE_URL", "http://localhost:5000/api")
	viper.SetDefault("API_TIMEOUT_SECONDS", 0)
	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("EVENT_SCOPE", "default")
	viper.SetDefault("FEATURE_FLAGS", "forum_markdown=on")
	viper.SetDefault("POLL_CLOSED_INTERVAL_MS", 30000)
	viper.SetDefault("POLL_OPEN_INTERVAL_MS", 10000)
	viper.SetDefault("VENDOR_SETUP_DELAY_MS", 500)
	viper.SetDefault("COMMENT_MAX_DEPTH", 8)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)
	viper.SetDefault("SESSION_TOKEN", "")
	viper.SetDefault("SESSION_USER_ID", "")
	viper.SetDefault("MESSAGE_ROLE", "client")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("RATE_LIMIT_PER_MINUTE", 300)

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	config.APIBaseURL = strings.TrimRight(strings.TrimSpace(config.APIBaseURL), "/")
	config.MessageRole = strings.ToLower(strings.TrimSpace(config.MessageRole))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate ensures that required configuration values are present and coherent.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.APIBaseURL == "" {
		return errors.New("API_BASE_URL is required")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute http(s) URL, got %q", c.APIBaseURL)
	}
	if c.PollClosedIntervalMS <= 0 || c.PollOpenIntervalMS <= 0 {
		return errors.New("poll intervals must be positive")
	}
	if c.PollOpenIntervalMS > c.PollClosedIntervalMS {
		return errors.New("POLL_OPEN_INTERVAL_MS must not exceed POLL_CLOSED_INTERVAL_MS")
	}
	if c.VendorSetupDelayMS < 0 {
		return errors.New("VENDOR_SETUP_DELAY_MS must not be negative")
	}
	if c.CommentMaxDepth < 1 {
		return errors.New("COMMENT_MAX_DEPTH must be at least 1")
	}
	if c.RateLimitPerMinute < 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	if c.APITimeoutSeconds < 0 {
		return errors.New("API_TIMEOUT_SECONDS must not be negative")
	}
	switch c.MessageRole {
	case "", "client", "vendor":
	default:
		return fmt.Errorf("MESSAGE_ROLE must be client or vendor, got %q", c.MessageRole)
	}

	isProduction := c.Env == "production" || c.Env == "prod"
	if isProduction {
		if u.Scheme != "https" {
			return errors.New("API_BASE_URL must use https in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	}

	return nil
}

// PollClosedInterval is the conversation-list cadence while the widget is closed.
func (c *Config) PollClosedInterval() time.Duration {
	return time.Duration(c.PollClosedIntervalMS) * time.Millisecond
}

// PollOpenInterval is the cadence while the widget is open.
func (c *Config) PollOpenInterval() time.Duration {
	return time.Duration(c.PollOpenIntervalMS) * time.Millisecond
}

// VendorSetupDelay is how long after a first vendor login the setup section is requested.
func (c *Config) VendorSetupDelay() time.Duration {
	return time.Duration(c.VendorSetupDelayMS) * time.Millisecond
}

// APITimeout is the per-request timeout; zero disables it.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSeconds) * time.Second
}
