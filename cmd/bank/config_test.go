package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"), map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"
snapshot_every = 50
retries = 5

[database]
driver = "sqlite"
dsn = "file.db"

[nats]
url = "nats://127.0.0.1:4222"
`), 0o600))

	cfg, err := LoadConfig(path, map[string]string{
		"BANK_DB_DSN":          "env.db",
		"BANK_REDIS_ADDR":      "127.0.0.1:6379",
		"BANK_DYNAMODB_LIMITS": "true",
	})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, uint64(50), cfg.SnapshotEvery)
	assert.Equal(t, 5, cfg.Retries)
	assert.Equal(t, "env.db", cfg.Database.Database)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "BANK_EVENTS", cfg.NATS.Stream)
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr)
	assert.True(t, cfg.DynamoDBLimits)
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.toml")
	require.NoError(t, os.WriteFile(path, []byte("retries = 0\n"), 0o600))
	_, err := LoadConfig(path, map[string]string{})
	assert.ErrorContains(t, err, "retries")

	require.NoError(t, os.WriteFile(path, []byte("retries = [\n"), 0o600))
	_, err = LoadConfig(path, map[string]string{})
	assert.ErrorContains(t, err, "parse")
}

func TestLoadConfig_TracingFromEnv(t *testing.T) {
	cfg, err := LoadConfig("", map[string]string{
		"BANK_OTEL_ENDPOINT":     "http://127.0.0.1:4318",
		"BANK_OTEL_SERVICE_NAME": "bank-test",
	})
	require.NoError(t, err)
	assert.Equal(t, OTelConfig{Endpoint: "http://127.0.0.1:4318", ServiceName: "bank-test"}, cfg.OTel)
}

func TestSetupTracing_DisabledWithoutEndpoint(t *testing.T) {
	tp, shutdown, err := setupTracing(context.Background(), OTelConfig{})
	require.NoError(t, err)
	assert.Nil(t, tp)
	assert.NoError(t, shutdown(context.Background()))
}
