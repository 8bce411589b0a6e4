// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads the service configuration from environment variables.
// The resulting value is immutable and injected into constructors; nothing
// re-reads the environment after Load returns.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	BaseURL        string        `env:"IQ_BASE_URL" envDefault:"https://indico.cern.ch"`
	RequestTimeout time.Duration `env:"IQ_REQUEST_TIMEOUT" envDefault:"15s"`
	MaxRetries     int           `env:"IQ_MAX_RETRIES" envDefault:"2"`
	RetryBackoff   time.Duration `env:"IQ_RETRY_BACKOFF" envDefault:"300ms"`
	RateLimit      float64       `env:"IQ_RATE_LIMIT" envDefault:"5"` // upstream requests per second

	// Cache configuration
	CacheEnabled bool   `env:"IQ_CACHE_ENABLED" envDefault:"true"`
	CacheTTL     int    `env:"IQ_CACHE_TTL" envDefault:"300"`      // seconds
	CacheMaxSize int    `env:"IQ_CACHE_MAX_SIZE" envDefault:"128"` // max memory cache entries
	RedisURL     string `env:"IQ_REDIS_URL"`                       // optional Redis URL for a shared cache
	CachePrefix  string `env:"IQ_CACHE_PREFIX" envDefault:"indiq:"`

	// Optional HTTP listener for /healthz, /status and /metrics.
	// Empty means no listener; tool calls are served over stdio regardless.
	HTTPAddr string `env:"IQ_HTTP_ADDR"`

	LogLevel string `env:"IQ_LOG_LEVEL" envDefault:"info"`
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// CacheTTLDuration returns the cache TTL as a time.Duration.
func (c Config) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("IQ_BASE_URL must be an absolute URL, got %q", cfg.BaseURL)
	}

	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("IQ_REQUEST_TIMEOUT must be positive, got %s", cfg.RequestTimeout)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("IQ_MAX_RETRIES must be non-negative, got %d", cfg.MaxRetries)
	}
	if cfg.RateLimit <= 0 {
		return nil, fmt.Errorf("IQ_RATE_LIMIT must be positive, got %g", cfg.RateLimit)
	}
	if cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("IQ_CACHE_TTL must be positive, got %d", cfg.CacheTTL)
	}
	if cfg.CacheMaxSize <= 0 {
		return nil, fmt.Errorf("IQ_CACHE_MAX_SIZE must be positive, got %d", cfg.CacheMaxSize)
	}

	return cfg, nil
}
