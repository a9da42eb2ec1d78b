package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:                  "development",
		Port:                 "8390",
		APIBaseURL:           "http://localhost:5000/api",
		PollClosedIntervalMS: 30000,
		PollOpenIntervalMS:   10000,
		VendorSetupDelayMS:   500,
		CommentMaxDepth:      8,
		MessageRole:          "client",
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{"defaults are valid", func(_ *Config) {}, false},
		{"missing port", func(c *Config) { c.Port = "" }, true},
		{"relative base url", func(c *Config) { c.APIBaseURL = "/api" }, true},
		{"unsupported scheme", func(c *Config) { c.APIBaseURL = "ftp://example.com" }, true},
		{"zero closed interval", func(c *Config) { c.PollClosedIntervalMS = 0 }, true},
		{"open slower than closed", func(c *Config) { c.PollOpenIntervalMS = 60000 }, true},
		{"negative setup delay", func(c *Config) { c.VendorSetupDelayMS = -1 }, true},
		{"zero comment depth", func(c *Config) { c.CommentMaxDepth = 0 }, true},
		{"unknown role", func(c *Config) { c.MessageRole = "admin" }, true},
		{"negative rate limit", func(c *Config) { c.RateLimitPerMinute = -1 }, true},
		{"production over http", func(c *Config) { c.Env = "production" }, true},
		{"production over https", func(c *Config) {
			c.Env = "production"
			c.APIBaseURL = "https://api.example.com"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Durations(t *testing.T) {
	c := validConfig()
	assert.Equal(t, 30*time.Second, c.PollClosedInterval())
	assert.Equal(t, 10*time.Second, c.PollOpenInterval())
	assert.Equal(t, 500*time.Millisecond, c.VendorSetupDelay())
	assert.Zero(t, c.APITimeout())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	defer viper.Reset()
	defer os.Unsetenv("APP_ENV")
	defer os.Unsetenv("API_BASE_URL")
	defer os.Unsetenv("MESSAGE_ROLE")

	os.Setenv("APP_ENV", "development")
	os.Setenv("API_BASE_URL", "https://api.bundlebooth.test/api/")
	os.Setenv("MESSAGE_ROLE", "  Vendor ")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "https://api.bundlebooth.test/api", c.APIBaseURL)
	assert.Equal(t, "vendor", c.MessageRole)
	assert.Equal(t, 30000, c.PollClosedIntervalMS)
	assert.Equal(t, 10000, c.PollOpenIntervalMS)
}
