package cli

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/accidents-etl/internal/adapter/http"
	"github.com/couchcryptid/accidents-etl/internal/adapter/postgres"
	"github.com/couchcryptid/accidents-etl/internal/analytics"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the analytics API with health, readiness and metrics endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := a.cfg
			logger := a.logger
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}

			store, err := postgres.Connect(ctx, cfg.DB.DSN(), logger)
			if err != nil {
				return err
			}
			defer store.Close()

			db := store.SQLDB()
			defer db.Close()

			svc := analytics.NewService(db, cfg.Table, cfg.WeatherTable, cfg.AnalyticsCacheTTL, a.metrics, logger)
			srv := httpadapter.NewServer(cfg.HTTPAddr, svc, store, logger)

			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
				logger.Info("shutting down")
			case err := <-errCh:
				return err
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
}
