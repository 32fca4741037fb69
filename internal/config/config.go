// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr  string
	DBPath      string
	InternalKey string

	DetectInterval    time.Duration
	DetectLookback    time.Duration
	HeartbeatInterval time.Duration
	SweepInterval     time.Duration
	QuotaRetention    time.Duration
	StateRetention    time.Duration

	DefaultRateLimit  int
	DefaultRateWindow time.Duration
}

// Load reads configuration from environment variables and returns a validated
// Config. ECONPULSE_INTERNAL_KEY is optional; without it the key-management
// endpoints refuse all requests. Optional variables with defaults:
// ECONPULSE_LISTEN_ADDR (127.0.0.1:8080), ECONPULSE_DB_PATH (econpulse.db),
// ECONPULSE_DETECT_INTERVAL (1m), ECONPULSE_DETECT_LOOKBACK (5m),
// ECONPULSE_HEARTBEAT_INTERVAL (30s), ECONPULSE_SWEEP_INTERVAL (1h),
// ECONPULSE_QUOTA_RETENTION (2h), ECONPULSE_STATE_RETENTION (24h),
// ECONPULSE_DEFAULT_RATE_LIMIT (1000), ECONPULSE_DEFAULT_RATE_WINDOW (1h).
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:        "127.0.0.1:8080",
		DBPath:            "econpulse.db",
		InternalKey:       os.Getenv("ECONPULSE_INTERNAL_KEY"),
		DetectInterval:    time.Minute,
		DetectLookback:    5 * time.Minute,
		HeartbeatInterval: 30 * time.Second,
		SweepInterval:     time.Hour,
		QuotaRetention:    2 * time.Hour,
		StateRetention:    24 * time.Hour,
		DefaultRateLimit:  1000,
		DefaultRateWindow: time.Hour,
	}

	if v, ok := os.LookupEnv("ECONPULSE_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("ECONPULSE_DB_PATH"); ok {
		cfg.DBPath = v
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"ECONPULSE_DETECT_INTERVAL", &cfg.DetectInterval},
		{"ECONPULSE_DETECT_LOOKBACK", &cfg.DetectLookback},
		{"ECONPULSE_HEARTBEAT_INTERVAL", &cfg.HeartbeatInterval},
		{"ECONPULSE_SWEEP_INTERVAL", &cfg.SweepInterval},
		{"ECONPULSE_QUOTA_RETENTION", &cfg.QuotaRetention},
		{"ECONPULSE_STATE_RETENTION", &cfg.StateRetention},
		{"ECONPULSE_DEFAULT_RATE_WINDOW", &cfg.DefaultRateWindow},
	}
	for _, d := range durations {
		if v, ok := os.LookupEnv(d.name); ok {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("%s has invalid duration %q: %w", d.name, v, err)
			}
			*d.dst = parsed
		}
	}

	if v, ok := os.LookupEnv("ECONPULSE_DEFAULT_RATE_LIMIT"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("ECONPULSE_DEFAULT_RATE_LIMIT has invalid value %q", v)
		}
		cfg.DefaultRateLimit = parsed
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate enforces the relationships between the periodic tasks' constants.
func (c *Config) validate() error {
	if c.DetectLookback < c.DetectInterval {
		return fmt.Errorf("detect lookback %s must be at least the detect interval %s or updates can slip between ticks",
			c.DetectLookback, c.DetectInterval)
	}

	if c.QuotaRetention < 2*c.DefaultRateWindow {
		return fmt.Errorf("quota retention %s must be at least twice the rate window %s or live counters could be swept mid-window",
			c.QuotaRetention, c.DefaultRateWindow)
	}

	if c.DefaultRateWindow < time.Second {
		return fmt.Errorf("rate window %s must be at least one second", c.DefaultRateWindow)
	}

	return nil
}
