package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/ledger-engine/api"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the ledger over HTTP until SIGINT or SIGTERM.

On shutdown the server stops accepting connections, waits up to 30s for
active requests, then closes the ledger file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().Int("port", 0, "HTTP server port")
	cmd.Flags().Duration("reminder-interval", 0, "log due schedule reminders this often (0 disables)")
	must(a.v.BindPFlag("server.port", cmd.Flags().Lookup("port")))
	must(a.v.BindPFlag("server.reminder_interval", cmd.Flags().Lookup("reminder-interval")))
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	handler := api.NewHandler(store)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		Logger:         a.log,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reminders := api.NewReminderScanner(handler.Schedules, a.log)
	reminders.CheckInterval = a.cfg.Server.ReminderInterval
	reminders.Start(ctx)
	defer reminders.Stop()

	serveErr := make(chan error, 1)
	go func() {
		a.log.Info().
			Int("port", a.cfg.Server.Port).
			Str("ledger", a.cfg.Ledger.Path).
			Bool("read_only", store.ReadOnly()).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.log.Info().Msg("server stopped")
	return nil
}
