// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr        string
	DBPath            string
	SecretKey         []byte // 32-byte AES-256 key for credential values.
	JWTSecret         string
	JWTIssuer         string
	WebhookSecret     string // Empty disables the identity webhook.
	NotifyWebhookURL  string // Empty logs notifications instead of delivering them.
	OutboxInterval    time.Duration
	OutboxBatchSize   int
	OutboxMaxAttempts int
	OutboxLease       time.Duration
	FreeListingLimit  int
}

// IdentityWebhookEnabled reports whether identity-provider user events are accepted.
func (c *Config) IdentityWebhookEnabled() bool {
	return c.WebhookSecret != ""
}

// Load reads configuration from environment variables and returns a validated Config.
// Required: HANDOFF_SECRET_KEY (64 hex characters) and HANDOFF_JWT_SECRET.
// Optional variables with defaults: HANDOFF_LISTEN_ADDR (127.0.0.1:8080),
// HANDOFF_DB_PATH (handoff.db), HANDOFF_OUTBOX_INTERVAL (5s),
// HANDOFF_OUTBOX_BATCH_SIZE (50), HANDOFF_OUTBOX_MAX_ATTEMPTS (5),
// HANDOFF_OUTBOX_LEASE (1m), HANDOFF_FREE_LISTING_LIMIT (5).
func Load() (*Config, error) {
	rawKey := os.Getenv("HANDOFF_SECRET_KEY")
	if rawKey == "" {
		return nil, errors.New("HANDOFF_SECRET_KEY is required")
	}
	key, err := ParseSecretKey(rawKey)
	if err != nil {
		return nil, err
	}

	jwtSecret := os.Getenv("HANDOFF_JWT_SECRET")
	if jwtSecret == "" {
		return nil, errors.New("HANDOFF_JWT_SECRET is required")
	}

	cfg := &Config{
		ListenAddr:        "127.0.0.1:8080",
		DBPath:            "handoff.db",
		SecretKey:         key,
		JWTSecret:         jwtSecret,
		JWTIssuer:         os.Getenv("HANDOFF_JWT_ISSUER"),
		WebhookSecret:     os.Getenv("HANDOFF_WEBHOOK_SECRET"),
		NotifyWebhookURL:  os.Getenv("HANDOFF_NOTIFY_WEBHOOK_URL"),
		OutboxInterval:    5 * time.Second,
		OutboxBatchSize:   50,
		OutboxMaxAttempts: 5,
		OutboxLease:       time.Minute,
		FreeListingLimit:  5,
	}

	if v, ok := os.LookupEnv("HANDOFF_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("HANDOFF_DB_PATH"); ok {
		cfg.DBPath = v
	}

	if cfg.OutboxInterval, err = durationEnv("HANDOFF_OUTBOX_INTERVAL", cfg.OutboxInterval); err != nil {
		return nil, err
	}
	if cfg.OutboxLease, err = durationEnv("HANDOFF_OUTBOX_LEASE", cfg.OutboxLease); err != nil {
		return nil, err
	}
	if cfg.OutboxBatchSize, err = positiveIntEnv("HANDOFF_OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize); err != nil {
		return nil, err
	}
	if cfg.OutboxMaxAttempts, err = positiveIntEnv("HANDOFF_OUTBOX_MAX_ATTEMPTS", cfg.OutboxMaxAttempts); err != nil {
		return nil, err
	}
	if cfg.OutboxMaxAttempts < 2 {
		return nil, fmt.Errorf("HANDOFF_OUTBOX_MAX_ATTEMPTS must be at least 2, got %d", cfg.OutboxMaxAttempts)
	}
	if cfg.FreeListingLimit, err = positiveIntEnv("HANDOFF_FREE_LISTING_LIMIT", cfg.FreeListingLimit); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ParseSecretKey decodes a 64-character hex string into an AES-256 key.
func ParseSecretKey(raw string) ([]byte, error) {
	key, err := hex.DecodeString(raw)
	if err != nil || len(key) != 32 {
		return nil, errors.New("HANDOFF_SECRET_KEY must be 64 hex characters")
	}
	return key, nil
}

// DBPathFromEnv returns HANDOFF_DB_PATH or the default database path.
func DBPathFromEnv() string {
	if v, ok := os.LookupEnv("HANDOFF_DB_PATH"); ok && v != "" {
		return v
	}
	return "handoff.db"
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
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

func positiveIntEnv(key string, def int) (int, error) {
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
