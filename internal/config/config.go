// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	APIKey     string
	HMACSecret string

	ListenAddr  string
	DBPath      string
	DatabaseURL string

	TimestampWindow  time.Duration
	MaxAttempts      int
	LockDuration     time.Duration
	DefaultAppSecret string
	PasswordHash     string

	LookupRatePerMinute float64
	LookupBurst         int
	TrustProxy          bool
	CORSOrigins         []string
}

// UsesPostgres returns true when a database URL is configured. Otherwise the
// embedded SQLite database at DBPath is used.
func (c *Config) UsesPostgres() bool {
	return c.DatabaseURL != ""
}

// Load reads configuration from environment variables and returns a validated Config.
// CERTREGISTRY_API_KEY and CERTREGISTRY_HMAC_SECRET are required.
// Optional variables with defaults: CERTREGISTRY_LISTEN_ADDR (127.0.0.1:8080),
// CERTREGISTRY_DB_PATH (certregistry.db), CERTREGISTRY_DATABASE_URL (unset),
// CERTREGISTRY_TIMESTAMP_WINDOW (5m), CERTREGISTRY_MAX_ATTEMPTS (3),
// CERTREGISTRY_LOCK_DURATION (15m), CERTREGISTRY_DEFAULT_APP_SECRET (0000),
// CERTREGISTRY_PASSWORD_HASH (sha256), CERTREGISTRY_LOOKUP_RATE (30 per minute),
// CERTREGISTRY_LOOKUP_BURST (10), CERTREGISTRY_TRUST_PROXY (false),
// CERTREGISTRY_CORS_ORIGINS (none).
func Load() (*Config, error) {
	apiKey := os.Getenv("CERTREGISTRY_API_KEY")
	if apiKey == "" {
		return nil, errors.New("CERTREGISTRY_API_KEY is required")
	}

	hmacSecret := os.Getenv("CERTREGISTRY_HMAC_SECRET")
	if hmacSecret == "" {
		return nil, errors.New("CERTREGISTRY_HMAC_SECRET is required")
	}

	cfg := &Config{
		APIKey:              apiKey,
		HMACSecret:          hmacSecret,
		ListenAddr:          "127.0.0.1:8080",
		DBPath:              "certregistry.db",
		DatabaseURL:         os.Getenv("CERTREGISTRY_DATABASE_URL"),
		TimestampWindow:     5 * time.Minute,
		MaxAttempts:         3,
		LockDuration:        15 * time.Minute,
		DefaultAppSecret:    "0000",
		PasswordHash:        "sha256",
		LookupRatePerMinute: 30,
		LookupBurst:         10,
		CORSOrigins:         []string{},
	}

	if v, ok := os.LookupEnv("CERTREGISTRY_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("CERTREGISTRY_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := os.LookupEnv("CERTREGISTRY_DEFAULT_APP_SECRET"); ok && v != "" {
		cfg.DefaultAppSecret = v
	}
	if v, ok := os.LookupEnv("CERTREGISTRY_PASSWORD_HASH"); ok && v != "" {
		switch strings.ToLower(v) {
		case "sha256", "bcrypt":
			cfg.PasswordHash = strings.ToLower(v)
		default:
			return nil, fmt.Errorf("CERTREGISTRY_PASSWORD_HASH must be sha256 or bcrypt, got %q", v)
		}
	}

	var err error
	if cfg.TimestampWindow, err = positiveDuration("CERTREGISTRY_TIMESTAMP_WINDOW", cfg.TimestampWindow); err != nil {
		return nil, err
	}
	if cfg.LockDuration, err = positiveDuration("CERTREGISTRY_LOCK_DURATION", cfg.LockDuration); err != nil {
		return nil, err
	}
	if cfg.MaxAttempts, err = positiveInt("CERTREGISTRY_MAX_ATTEMPTS", cfg.MaxAttempts); err != nil {
		return nil, err
	}
	if cfg.LookupBurst, err = positiveInt("CERTREGISTRY_LOOKUP_BURST", cfg.LookupBurst); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("CERTREGISTRY_LOOKUP_RATE"); ok {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("CERTREGISTRY_LOOKUP_RATE must be a positive number, got %q", v)
		}
		cfg.LookupRatePerMinute = parsed
	}

	if v, ok := os.LookupEnv("CERTREGISTRY_TRUST_PROXY"); ok && v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("CERTREGISTRY_TRUST_PROXY must be a boolean, got %q", v)
		}
		cfg.TrustProxy = parsed
	}

	if v, ok := os.LookupEnv("CERTREGISTRY_CORS_ORIGINS"); ok && v != "" {
		for _, origin := range strings.Split(v, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
			}
		}
	}

	return cfg, nil
}

func positiveDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, parsed)
	}
	return parsed, nil
}

func positiveInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, parsed)
	}
	return parsed, nil
}
