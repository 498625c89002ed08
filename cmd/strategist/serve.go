package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eddiefleurent/options_strategist/internal/api"
)

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := app.Config
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}

			svc, err := buildService(cfg, buildProvider(cfg, app.Logger), app.Logger)
			if err != nil {
				return err
			}
			server := api.NewServer(api.Config{
				Addr:           cfg.Server.Addr,
				AuthToken:      cfg.Server.AuthToken,
				RequestTimeout: cfg.Server.RequestTimeout,
			}, svc, app.Logger)

			// Set up signal handling for graceful shutdown
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				app.Logger.Info("Shutdown signal received, stopping server...")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return err
			}
			app.Logger.Info("Server stopped successfully")
			return <-errCh
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	return cmd
}
