package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allConfigKeys lists every HANDOFF_ env var that Load() reads.
var allConfigKeys = []string{
	"HANDOFF_LISTEN_ADDR",
	"HANDOFF_DB_PATH",
	"HANDOFF_SECRET_KEY",
	"HANDOFF_JWT_SECRET",
	"HANDOFF_JWT_ISSUER",
	"HANDOFF_WEBHOOK_SECRET",
	"HANDOFF_NOTIFY_WEBHOOK_URL",
	"HANDOFF_OUTBOX_INTERVAL",
	"HANDOFF_OUTBOX_BATCH_SIZE",
	"HANDOFF_OUTBOX_MAX_ATTEMPTS",
	"HANDOFF_OUTBOX_LEASE",
	"HANDOFF_FREE_LISTING_LIMIT",
}

const validKey = "0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"

// isolateConfigEnv saves and unsets all HANDOFF_ env vars so tests don't
// inherit values from the host environment (e.g. a running dev server).
// t.Cleanup restores original values after the test.
func isolateConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range allConfigKeys {
		if orig, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, orig) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

// setRequired sets the variables Load refuses to start without.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("HANDOFF_SECRET_KEY", validKey)
	t.Setenv("HANDOFF_JWT_SECRET", "jwt-secret")
}

func TestLoad_Success(t *testing.T) {
	isolateConfigEnv(t)
	setRequired(t)
	t.Setenv("HANDOFF_LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("HANDOFF_DB_PATH", "/tmp/test.db")
	t.Setenv("HANDOFF_JWT_ISSUER", "https://id.example.com")
	t.Setenv("HANDOFF_WEBHOOK_SECRET", "whsec")
	t.Setenv("HANDOFF_NOTIFY_WEBHOOK_URL", "https://mail.example.com/send")
	t.Setenv("HANDOFF_OUTBOX_INTERVAL", "10s")
	t.Setenv("HANDOFF_OUTBOX_BATCH_SIZE", "20")
	t.Setenv("HANDOFF_OUTBOX_MAX_ATTEMPTS", "8")
	t.Setenv("HANDOFF_OUTBOX_LEASE", "2m")
	t.Setenv("HANDOFF_FREE_LISTING_LIMIT", "3")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddr)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Len(t, cfg.SecretKey, 32)
	assert.Equal(t, "jwt-secret", cfg.JWTSecret)
	assert.Equal(t, "https://id.example.com", cfg.JWTIssuer)
	assert.True(t, cfg.IdentityWebhookEnabled())
	assert.Equal(t, "https://mail.example.com/send", cfg.NotifyWebhookURL)
	assert.Equal(t, 10*time.Second, cfg.OutboxInterval)
	assert.Equal(t, 20, cfg.OutboxBatchSize)
	assert.Equal(t, 8, cfg.OutboxMaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.OutboxLease)
	assert.Equal(t, 3, cfg.FreeListingLimit)
}

func TestLoad_Defaults(t *testing.T) {
	isolateConfigEnv(t)
	setRequired(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	assert.Equal(t, "handoff.db", cfg.DBPath)
	assert.Empty(t, cfg.JWTIssuer)
	assert.False(t, cfg.IdentityWebhookEnabled())
	assert.Empty(t, cfg.NotifyWebhookURL)
	assert.Equal(t, 5*time.Second, cfg.OutboxInterval)
	assert.Equal(t, 50, cfg.OutboxBatchSize)
	assert.Equal(t, 5, cfg.OutboxMaxAttempts)
	assert.Equal(t, time.Minute, cfg.OutboxLease)
	assert.Equal(t, 5, cfg.FreeListingLimit)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantKey string
	}{
		{name: "secret key absent", env: map[string]string{"HANDOFF_SECRET_KEY": ""}, wantKey: "HANDOFF_SECRET_KEY"},
		{name: "secret key too short", env: map[string]string{"HANDOFF_SECRET_KEY": "deadbeef"}, wantKey: "HANDOFF_SECRET_KEY"},
		{
			name:    "secret key not hex",
			env:     map[string]string{"HANDOFF_SECRET_KEY": "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"},
			wantKey: "HANDOFF_SECRET_KEY",
		},
		{name: "jwt secret absent", env: map[string]string{"HANDOFF_JWT_SECRET": ""}, wantKey: "HANDOFF_JWT_SECRET"},
		{name: "bad interval", env: map[string]string{"HANDOFF_OUTBOX_INTERVAL": "soon"}, wantKey: "HANDOFF_OUTBOX_INTERVAL"},
		{name: "negative lease", env: map[string]string{"HANDOFF_OUTBOX_LEASE": "-1m"}, wantKey: "HANDOFF_OUTBOX_LEASE"},
		{name: "bad batch size", env: map[string]string{"HANDOFF_OUTBOX_BATCH_SIZE": "many"}, wantKey: "HANDOFF_OUTBOX_BATCH_SIZE"},
		{name: "zero batch size", env: map[string]string{"HANDOFF_OUTBOX_BATCH_SIZE": "0"}, wantKey: "HANDOFF_OUTBOX_BATCH_SIZE"},
		{name: "single attempt", env: map[string]string{"HANDOFF_OUTBOX_MAX_ATTEMPTS": "1"}, wantKey: "HANDOFF_OUTBOX_MAX_ATTEMPTS"},
		{name: "bad listing limit", env: map[string]string{"HANDOFF_FREE_LISTING_LIMIT": "-2"}, wantKey: "HANDOFF_FREE_LISTING_LIMIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateConfigEnv(t)
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantKey)
		})
	}
}
