package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":8099", cfg.Addr)
	assert.Equal(t, 30*time.Minute, cfg.BufferTime)
	assert.Equal(t, 24*time.Hour, cfg.Channel.EnsureWindow)
	assert.Equal(t, 72*time.Hour, cfg.Channel.WebhookRenewWindow)
	assert.Equal(t, 2, cfg.Sync.MaxCursorResets)
	assert.Equal(t, "@every 1h", cfg.Schedule.Resync)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "plutus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
url: https://plutus.example/
buffer_time: 15
sync:
  workers: 8
channel:
  renew_window: 72h
`), 0o600))

	t.Setenv("PLUTUS_SYNC_WORKERS", "2")
	t.Setenv("PLUTUS_DATABASE_DSN", "postgres://plutus@localhost/plutus")

	cfg, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "https://plutus.example", cfg.URL)
	assert.Equal(t, "https://plutus.example/cal_webhook", cfg.WebhookAddress())
	assert.Equal(t, 15*time.Minute, cfg.BufferTime)
	assert.Equal(t, 2, cfg.Sync.Workers)
	assert.Equal(t, 72*time.Hour, cfg.Channel.RenewWindow)
	assert.Equal(t, "postgres://plutus@localhost/plutus", cfg.DatabaseDSN)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PLUTUS_SYNC_WORKERS", "0")

	_, err := Load(New(), "")
	assert.ErrorContains(t, err, "sync.workers")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load(New(), "does-not-exist.yaml")
	assert.Error(t, err)
}

func TestValidateWebhook(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr string
	}{
		{name: "absolute https", url: "https://plutus.example"},
		{name: "absolute http", url: "http://localhost:8099"},
		{name: "missing", url: "", wantErr: "url is required"},
		{name: "relative", url: "/plutus", wantErr: "absolute"},
		{name: "no scheme", url: "plutus.example", wantErr: "absolute"},
		{name: "wrong scheme", url: "ftp://plutus.example", wantErr: "absolute"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{URL: tt.url}
			err := cfg.ValidateWebhook()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadDefaultsLeaveWebhookUnset(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Error(t, cfg.ValidateWebhook())
}
