// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"
)

// Config holds the application configuration loaded from environment
// variables.
type Config struct {
	ListenAddr       string
	DBPath           string
	SecretKey        []byte // 32-byte AES key for credential encryption; nil when unset.
	CalendarURL      string
	CalendarInterval time.Duration
	CalendarHorizon  time.Duration
	HTTPTimeout      time.Duration
	SlotTimeout      time.Duration
}

// Load reads configuration from environment variables and returns a
// validated Config. CTFSYNC_SECRET_KEY (64 hex chars) is optional; without
// it the app starts but competitions cannot store credentials. Optional
// variables with defaults: CTFSYNC_LISTEN_ADDR (127.0.0.1:8080),
// CTFSYNC_DB_PATH (ctfsync.db), CTFSYNC_CALENDAR_URL (https://ctftime.org),
// CTFSYNC_CALENDAR_INTERVAL (1h), CTFSYNC_CALENDAR_HORIZON (168h),
// CTFSYNC_HTTP_TIMEOUT (15s), CTFSYNC_SLOT_TIMEOUT (2m).
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:       "127.0.0.1:8080",
		DBPath:           "ctfsync.db",
		CalendarURL:      "https://ctftime.org",
		CalendarInterval: time.Hour,
		CalendarHorizon:  7 * 24 * time.Hour,
		HTTPTimeout:      15 * time.Second,
		SlotTimeout:      2 * time.Minute,
	}

	if v, ok := os.LookupEnv("CTFSYNC_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("CTFSYNC_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := os.LookupEnv("CTFSYNC_CALENDAR_URL"); ok {
		cfg.CalendarURL = v
	}

	if v, ok := os.LookupEnv("CTFSYNC_SECRET_KEY"); ok && v != "" {
		key, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("CTFSYNC_SECRET_KEY is not valid hex: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("CTFSYNC_SECRET_KEY must decode to 32 bytes, got %d", len(key))
		}
		cfg.SecretKey = key
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"CTFSYNC_CALENDAR_INTERVAL", &cfg.CalendarInterval},
		{"CTFSYNC_CALENDAR_HORIZON", &cfg.CalendarHorizon},
		{"CTFSYNC_HTTP_TIMEOUT", &cfg.HTTPTimeout},
		{"CTFSYNC_SLOT_TIMEOUT", &cfg.SlotTimeout},
	}
	for _, d := range durations {
		v, ok := os.LookupEnv(d.env)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s has invalid duration %q: %w", d.env, v, err)
		}
		*d.dst = parsed
	}

	return cfg, nil
}

// HasSecretKey reports whether credential encryption is configured.
func (c *Config) HasSecretKey() bool {
	return len(c.SecretKey) == 32
}
