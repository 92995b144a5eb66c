package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Teamworks-Executive-Suites/plutus/internal/calendar"
	"github.com/Teamworks-Executive-Suites/plutus/internal/config"
	"github.com/Teamworks-Executive-Suites/plutus/internal/logging"
	"github.com/Teamworks-Executive-Suites/plutus/internal/provider"
	"github.com/Teamworks-Executive-Suites/plutus/internal/storage"
)

var (
	cfgFile string
	v       = config.New()
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "plutus",
	Short:         "Keeps property bookings in step with external calendars",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./plutus.yaml or /etc/plutus/plutus.yaml)")
	rootCmd.PersistentFlags().String("dsn", "", "database DSN (sqlite path, sqlite:// or postgres://)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")

	v.BindPFlag("database.dsn", rootCmd.PersistentFlags().Lookup("dsn"))
	v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(serveCmd, sweepCmd, migrateCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

// openStore opens the database and applies pending migrations.
func openStore() (*storage.DB, error) {
	db, err := storage.Open(cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := storage.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database ready", "dialect", db.Dialect())
	return db, nil
}

func newProvider(ctx context.Context) (provider.Client, error) {
	client, err := provider.NewGoogle(ctx, cfg.Google.CredentialsFile, cfg.Google.Subject)
	if err != nil {
		return nil, fmt.Errorf("creating calendar client: %w", err)
	}
	return client, nil
}

func engineOptions(c *config.Config) calendar.Options {
	return calendar.Options{
		Channel: calendar.ChannelOptions{
			Address:      c.WebhookAddress(),
			EnsureWindow: c.Channel.EnsureWindow,
			RenewWindow:  c.Channel.RenewWindow,
		},
		Sync: calendar.SyncOptions{
			Timeout:         c.Sync.Timeout,
			MaxCursorResets: c.Sync.MaxCursorResets,
			Workers:         c.Sync.Workers,
		},
		Projector: calendar.ProjectorOptions{
			BufferTime: c.BufferTime,
			AppURL:     c.AppURL,
		},
		Ingress: calendar.IngressOptions{
			RenewWindow: c.Channel.WebhookRenewWindow,
			DedupSize:   c.Webhook.DedupSize,
			DedupTTL:    c.Webhook.DedupTTL,
		},
		Schedule: calendar.ScheduleOptions{
			Renew:  c.Schedule.Renew,
			Resync: c.Schedule.Resync,
		},
	}
}
