package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Teamworks-Executive-Suites/plutus/internal/api"
	"github.com/Teamworks-Executive-Suites/plutus/internal/calendar"
	"github.com/Teamworks-Executive-Suites/plutus/internal/websocket"
)

var healthCheck bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server, webhook ingress and sweep scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Health check mode for Docker HEALTHCHECK
		if healthCheck {
			return runHealthCheck(cfg.Addr)
		}
		return serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "HTTP server address")
	serveCmd.Flags().String("static", "", "directory for static frontend files")
	serveCmd.Flags().BoolVar(&healthCheck, "health-check", false, "run health check and exit")

	v.BindPFlag("addr", serveCmd.Flags().Lookup("addr"))
	v.BindPFlag("static_dir", serveCmd.Flags().Lookup("static"))
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.ValidateWebhook(); err != nil {
		return err
	}

	slog.Info("starting plutus", "version", version, "addr", cfg.Addr)

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	client, err := newProvider(ctx)
	if err != nil {
		return err
	}

	// The hub outlives ctx so the shutdown notice reaches clients.
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := websocket.NewHub()
	go hub.Run(hubCtx)

	broadcaster := websocket.NewEventBroadcaster(hub)
	svc := calendar.NewService(db, client, broadcaster, engineOptions(cfg))
	if err := svc.Scheduler.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.NewRouter(svc, db, hub, cfg.StaticDir),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Sync.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			svc.Scheduler.Stop()
			return fmt.Errorf("server error: %w", err)
		}
	}

	slog.Info("shutting down server")
	broadcaster.BroadcastNotification("warning", "Server shutting down", "Live updates resume once the server is back")
	svc.Scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	url := "http://localhost" + addr + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %s", resp.Status)
	}
	return nil
}
