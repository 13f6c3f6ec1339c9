// Package config loads the service configuration from the environment.
//
// Environment Variables:
//
//   - HTTP_ADDR: API listen address (default: :8080)
//   - DATABASE_URL: PostgreSQL DSN; empty selects the in-memory store
//   - STORE_BATCH_LIMIT: records per listing (default: 1000, 0 = no limit)
//   - REDIS_URL: Redis URL for the link cache; empty disables caching
//   - LINK_CACHE_TTL: link cache TTL (default: 10m)
//   - LINK_SERVICE_URL: base URL of the link service (required)
//   - LOOKUP_TIMEOUT: per-request timeout (default: 5s)
//   - LOOKUP_RATE_LIMIT: requests per second, 0 disables (default: 0)
//   - LOOKUP_MAX_ATTEMPTS: attempts per lookup, 1 disables retries (default: 1)
//   - ENRICH_MAX_CONCURRENCY: parallel lookups per batch (default: 10)
//   - ENRICH_TIMEOUT: deadline for one batch (default: 15s)
//   - ENRICH_REFETCH: also refresh links that are present (default: false)
//   - LOG_LEVEL: debug, info, warn or error (default: info)
//   - LOG_PRETTY: human-readable console logs (default: false)
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/Sternrassler/userlink-enricher/internal/store"
	"github.com/Sternrassler/userlink-enricher/pkg/enrich"
	"github.com/Sternrassler/userlink-enricher/pkg/logging"
	"github.com/Sternrassler/userlink-enricher/pkg/lookup"
	"github.com/joho/godotenv"
)

// Config holds all service configuration.
type Config struct {
	HTTPAddr string

	DatabaseURL     string
	StoreBatchLimit int

	RedisURL     string
	LinkCacheTTL time.Duration

	LinkServiceURL    string
	LookupTimeout     time.Duration
	LookupRateLimit   float64
	LookupMaxAttempts int

	EnrichMaxConcurrency int
	EnrichTimeout        time.Duration
	EnrichRefetch        bool

	LogLevel  string
	LogPretty bool
}

// Load reads envFile into the environment, if it exists, and then calls FromEnv.
// Variables already set in the environment take precedence.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables and validates it.
func FromEnv() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DatabaseURL:     getEnv("DATABASE_URL", ""),
		StoreBatchLimit: p.intVar("STORE_BATCH_LIMIT", 1000),

		RedisURL:     getEnv("REDIS_URL", ""),
		LinkCacheTTL: p.durationVar("LINK_CACHE_TTL", lookup.DefaultCacheTTL),

		LinkServiceURL:    getEnv("LINK_SERVICE_URL", ""),
		LookupTimeout:     p.durationVar("LOOKUP_TIMEOUT", 5*time.Second),
		LookupRateLimit:   p.floatVar("LOOKUP_RATE_LIMIT", 0),
		LookupMaxAttempts: p.intVar("LOOKUP_MAX_ATTEMPTS", 1),

		EnrichMaxConcurrency: p.intVar("ENRICH_MAX_CONCURRENCY", 10),
		EnrichTimeout:        p.durationVar("ENRICH_TIMEOUT", 15*time.Second),
		EnrichRefetch:        p.boolVar("ENRICH_REFETCH", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: p.boolVar("LOG_PRETTY", false),
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required values and ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.LinkServiceURL == "" {
		errs = append(errs, fmt.Errorf("LINK_SERVICE_URL is required"))
	}
	if c.EnrichMaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("ENRICH_MAX_CONCURRENCY must be >= 1 (got %d)", c.EnrichMaxConcurrency))
	}
	if c.EnrichTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ENRICH_TIMEOUT must be > 0 (got %s)", c.EnrichTimeout))
	}
	if c.LookupTimeout < 0 {
		errs = append(errs, fmt.Errorf("LOOKUP_TIMEOUT must be >= 0 (got %s)", c.LookupTimeout))
	}
	if c.LookupMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("LOOKUP_MAX_ATTEMPTS must be >= 1 (got %d)", c.LookupMaxAttempts))
	}
	if c.StoreBatchLimit < 0 {
		errs = append(errs, fmt.Errorf("STORE_BATCH_LIMIT must be >= 0 (got %d)", c.StoreBatchLimit))
	}
	return errors.Join(errs...)
}

// Lookup returns the link service client configuration.
func (c *Config) Lookup() lookup.Config {
	cfg := lookup.DefaultConfig(c.LinkServiceURL)
	cfg.Timeout = c.LookupTimeout
	cfg.RateLimit = c.LookupRateLimit
	return cfg
}

// Retry returns the caller-side retry policy.
func (c *Config) Retry() lookup.RetryConfig {
	cfg := lookup.DefaultRetryConfig()
	cfg.MaxAttempts = c.LookupMaxAttempts
	return cfg
}

// Enrich returns the enricher configuration.
func (c *Config) Enrich() enrich.Config {
	return enrich.Config{
		MaxConcurrency: c.EnrichMaxConcurrency,
		Timeout:        c.EnrichTimeout,
		Policy:         enrich.Policy{Refetch: c.EnrichRefetch},
	}
}

// Store returns the store configuration. Overwrite follows the refetch policy.
func (c *Config) Store() store.Config {
	cfg := store.DefaultConfig(c.DatabaseURL)
	cfg.BatchLimit = c.StoreBatchLimit
	cfg.Overwrite = c.EnrichRefetch
	return cfg
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser collects parse errors so all bad variables are reported at once.
type parser struct {
	errs []error
}

func (p *parser) intVar(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, value))
		return defaultValue
	}
	return n
}

func (p *parser) floatVar(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid number %q", key, value))
		return defaultValue
	}
	return f
}

func (p *parser) boolVar(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid boolean %q", key, value))
		return defaultValue
	}
	return b
}

func (p *parser) durationVar(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid duration %q", key, value))
		return defaultValue
	}
	return d
}
