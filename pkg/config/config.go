// Package config loads Ditto connection settings and bulk operation
// defaults from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config holds the Ditto API connection and common bulk settings.
type Config struct {
	// DittoURL is the base URL of the Ditto HTTP API (v2).
	DittoURL string `env:"DITTO_API_BASE,default=http://localhost:8080/api/2"`

	// Username and Password for HTTP basic auth.
	Username string `env:"DITTO_USERNAME,default=ditto"`
	Password string `env:"DITTO_PASSWORD,default=ditto"`

	// PageSize is the number of things fetched per search page.
	PageSize int `env:"BULK_PAGE_SIZE,default=200"`

	// MaxConcurrent caps the number of in-flight thing operations.
	MaxConcurrent int `env:"BULK_MAX_CONCURRENT,default=20"`

	// MaxRetries is the number of retry rounds over failed items.
	MaxRetries int `env:"BULK_MAX_RETRIES,default=3"`

	// RequestTimeout is the per-request cap for thing operations.
	RequestTimeout time.Duration `env:"BULK_REQUEST_TIMEOUT,default=30s"`

	// RedisURL enables the GET response cache when set (host:port).
	RedisURL string `env:"REDIS_URL,default="`

	// CleanupPolicyIDs is a comma-separated list of policy ids the cleanup
	// sweep should delete. Ditto cannot list policies, so they are named
	// up front.
	CleanupPolicyIDs string `env:"CLEANUP_POLICY_IDS,default="`

	// LogLevel is the zerolog level (debug, info, warn, error).
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

// Load reads the configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	cfg.DittoURL = strings.TrimRight(cfg.DittoURL, "/")
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// CleanupPolicies returns the configured cleanup policy ids.
func (c Config) CleanupPolicies() []string {
	if c.CleanupPolicyIDs == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(c.CleanupPolicyIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	if c.DittoURL == "" {
		return fmt.Errorf("DITTO_API_BASE is not set")
	}
	if !strings.HasPrefix(c.DittoURL, "http://") && !strings.HasPrefix(c.DittoURL, "https://") {
		return fmt.Errorf("DITTO_API_BASE must start with http:// or https://")
	}
	if c.Username == "" {
		return fmt.Errorf("DITTO_USERNAME is not set")
	}
	if c.Password == "" {
		return fmt.Errorf("DITTO_PASSWORD is not set")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("BULK_PAGE_SIZE must be greater than 0 (got %d)", c.PageSize)
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("BULK_MAX_CONCURRENT must be greater than 0 (got %d)", c.MaxConcurrent)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("BULK_MAX_RETRIES must not be negative (got %d)", c.MaxRetries)
	}
	return nil
}
