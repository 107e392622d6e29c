package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gallery/internal/pages"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(configPath *string) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gallery read API",
		Example: `  # Start on the configured port (PORT, default 8080)
  gallery serve

  # Start on a custom port with a YAML config
  gallery serve --port 3000 --config gallery.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			if port == "" {
				port = a.cfg.Server.Port
			}
			addr := ":" + port
			server := &http.Server{
				Addr:         addr,
				Handler:      pages.NewHandler(a.builder, a.logger.Named("http")).Routes(),
				ReadTimeout:  a.cfg.Server.ReadTimeout,
				WriteTimeout: a.cfg.Server.WriteTimeout,
				IdleTimeout:  a.cfg.Server.IdleTimeout,
			}

			serverErr := make(chan error, 1)
			go func() {
				a.logger.Info("gallery listening", zap.String("addr", addr))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-ctx.Done():
				a.logger.Info("shutting down server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					a.logger.Error("server shutdown failed", zap.Error(err))
					return err
				}
				a.logger.Info("server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides PORT)")
	return cmd
}
