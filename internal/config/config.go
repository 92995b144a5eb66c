// Package config loads service configuration from file, environment and flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. PLUTUS_SYNC_WORKERS.
const EnvPrefix = "PLUTUS"

// Config is the resolved service configuration.
type Config struct {
	Addr        string
	DatabaseDSN string
	StaticDir   string

	// URL is the public base URL the provider calls back on.
	URL string
	// AppURL is the base of deep links written into projected events.
	AppURL string
	// BufferTime is blocked before and after each projected booking.
	BufferTime time.Duration

	Channel  ChannelConfig
	Sync     SyncConfig
	Webhook  WebhookConfig
	Schedule ScheduleConfig
	Google   GoogleConfig
	Log      LogConfig
}

// ChannelConfig holds notification channel renewal windows.
type ChannelConfig struct {
	EnsureWindow       time.Duration
	RenewWindow        time.Duration
	WebhookRenewWindow time.Duration
}

// SyncConfig bounds the sync engine.
type SyncConfig struct {
	Timeout         time.Duration
	Workers         int
	MaxCursorResets int
}

// WebhookConfig sizes the delivery dedup cache.
type WebhookConfig struct {
	DedupSize int
	DedupTTL  time.Duration
}

// ScheduleConfig holds cron specs for the backstop sweeps.
type ScheduleConfig struct {
	Renew  string
	Resync string
}

// GoogleConfig locates provider credentials.
type GoogleConfig struct {
	CredentialsFile string
	Subject         string
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string
	Format string
}

// New returns a viper instance with defaults and environment binding applied.
// Callers may bind flags onto it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("addr", ":8099")
	v.SetDefault("database.dsn", "sqlite:///data/plutus.db")
	v.SetDefault("static_dir", "")
	v.SetDefault("url", "")
	v.SetDefault("app_url", "")
	v.SetDefault("buffer_time", 30)
	v.SetDefault("channel.ensure_window", "24h")
	v.SetDefault("channel.renew_window", "48h")
	v.SetDefault("channel.webhook_renew_window", "72h")
	v.SetDefault("sync.timeout", "5m")
	v.SetDefault("sync.workers", 4)
	v.SetDefault("sync.max_cursor_resets", 2)
	v.SetDefault("webhook.dedup_size", 4096)
	v.SetDefault("webhook.dedup_ttl", "1h")
	v.SetDefault("schedule.renew", "@every 1h")
	v.SetDefault("schedule.resync", "@every 1h")
	v.SetDefault("google.credentials_file", "credentials.json")
	v.SetDefault("google.subject", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the optional .env and config file into v and resolves a Config.
// An empty path looks for plutus.yaml in the working directory and /etc/plutus.
func Load(v *viper.Viper, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("can't load .env", "error", err)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("plutus")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/plutus")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path == "" && os.IsNotExist(err)) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else {
		slog.Info("using config file", "path", v.ConfigFileUsed())
	}

	cfg := &Config{
		Addr:        v.GetString("addr"),
		DatabaseDSN: v.GetString("database.dsn"),
		StaticDir:   v.GetString("static_dir"),
		URL:         strings.TrimRight(v.GetString("url"), "/"),
		AppURL:      strings.TrimRight(v.GetString("app_url"), "/"),
		BufferTime:  time.Duration(v.GetInt("buffer_time")) * time.Minute,
		Channel: ChannelConfig{
			EnsureWindow:       v.GetDuration("channel.ensure_window"),
			RenewWindow:        v.GetDuration("channel.renew_window"),
			WebhookRenewWindow: v.GetDuration("channel.webhook_renew_window"),
		},
		Sync: SyncConfig{
			Timeout:         v.GetDuration("sync.timeout"),
			Workers:         v.GetInt("sync.workers"),
			MaxCursorResets: v.GetInt("sync.max_cursor_resets"),
		},
		Webhook: WebhookConfig{
			DedupSize: v.GetInt("webhook.dedup_size"),
			DedupTTL:  v.GetDuration("webhook.dedup_ttl"),
		},
		Schedule: ScheduleConfig{
			Renew:  v.GetString("schedule.renew"),
			Resync: v.GetString("schedule.resync"),
		},
		Google: GoogleConfig{
			CredentialsFile: v.GetString("google.credentials_file"),
			Subject:         v.GetString("google.subject"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.DatabaseDSN == "" {
		return errors.New("database.dsn is required")
	}
	if c.BufferTime < 0 {
		return fmt.Errorf("buffer_time must not be negative, got %s", c.BufferTime)
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync.workers must be at least 1, got %d", c.Sync.Workers)
	}
	if c.Sync.MaxCursorResets < 0 {
		return fmt.Errorf("sync.max_cursor_resets must not be negative, got %d", c.Sync.MaxCursorResets)
	}
	if c.Sync.Timeout <= 0 {
		return fmt.Errorf("sync.timeout must be positive, got %s", c.Sync.Timeout)
	}
	if c.Webhook.DedupSize < 1 {
		return fmt.Errorf("webhook.dedup_size must be at least 1, got %d", c.Webhook.DedupSize)
	}
	return nil
}

// ValidateWebhook rejects a public URL the provider could not call back.
// Only commands that register channels need one.
func (c *Config) ValidateWebhook() error {
	if c.URL == "" {
		return errors.New("url is required to register notification channels")
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return fmt.Errorf("url must be an absolute http(s) address, got %q", c.URL)
	}
	return nil
}

// WebhookAddress is the callback URL registered on new channels.
func (c *Config) WebhookAddress() string {
	return c.URL + "/cal_webhook"
}
