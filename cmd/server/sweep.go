package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Teamworks-Executive-Suites/plutus/internal/calendar"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a maintenance sweep once and exit",
}

var sweepRenewCmd = &cobra.Command{
	Use:   "renew",
	Short: "Renew notification channels that are about to expire",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateWebhook(); err != nil {
			return err
		}
		svc, closeFn, err := oneShotService(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		results, err := svc.Channels.RenewExpiring(cmd.Context())
		if err != nil {
			return err
		}
		failed := 0
		for _, r := range results {
			if r.Error != "" {
				failed++
			}
		}
		slog.Info("renewal sweep finished", "properties", len(results), "failed", failed)
		if failed > 0 {
			return fmt.Errorf("%d channel renewals failed", failed)
		}
		return nil
	},
}

var sweepResyncCmd = &cobra.Command{
	Use:   "resync [property-id]",
	Short: "Sync every property, or one property, from its stored cursor",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeFn, err := oneShotService(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		if len(args) == 1 {
			result, err := svc.Sync.SyncProperty(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			slog.Info("sync finished", "property_id", result.PropertyID,
				"created", result.BookingsCreated, "updated", result.BookingsUpdated, "removed", result.BookingsRemoved)
			return nil
		}

		results, err := svc.Sync.SyncAll(cmd.Context())
		if err != nil {
			return err
		}
		failed := 0
		for _, r := range results {
			if r.Error != nil {
				failed++
			}
		}
		slog.Info("resync sweep finished", "properties", len(results), "failed", failed)
		if failed > 0 {
			return fmt.Errorf("%d property syncs failed", failed)
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		return db.Close()
	},
}

func init() {
	sweepCmd.AddCommand(sweepRenewCmd, sweepResyncCmd)
}

// oneShotService builds an engine without the websocket hub.
func oneShotService(cmd *cobra.Command) (*calendar.Service, func(), error) {
	db, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	client, err := newProvider(cmd.Context())
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	svc := calendar.NewService(db, client, nil, engineOptions(cfg))
	return svc, func() { db.Close() }, nil
}
