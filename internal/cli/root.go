// Package cli wires configuration, adapters and pipelines into the accidents
// command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/accidents-etl/internal/config"
	"github.com/couchcryptid/accidents-etl/internal/observability"
)

// app holds what every subcommand shares once the root pre-run has loaded it.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	metrics    *observability.Metrics
	newMetrics func() *observability.Metrics
}

// Execute runs the accidents command until it finishes or the process receives
// SIGINT or SIGTERM. It returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&app{newMetrics: observability.NewMetrics})
}

func newRootCmd(a *app) *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:   "accidents",
		Short: "London road-accident ETL: ingest, load and serve analytics",
		Long: `accidents fetches yearly road-accident records, keeps raw gzip snapshots
locally and in a bucket, bulk-loads them into PostgreSQL and serves aggregate
analytics over HTTP.

Settings come from CONFIG_FILE (YAML) and environment variables; a .env file
in the working directory is read first when present.

Examples:
  accidents ingest --start-year 2015 --end-year 2019
  accidents load
  accidents weather ./data/london_weather.csv
  accidents serve`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := loadEnvFile(envFile); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			a.logger = observability.NewLogger(cfg)
			a.metrics = a.newMetrics()
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment (ignored when missing)")

	root.AddCommand(
		newIngestCmd(a),
		newLoadCmd(a),
		newWeatherCmd(a),
		newServeCmd(a),
	)
	return root
}

// loadEnvFile applies a dotenv file without overriding variables already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// pushMetrics sends batch metrics to the Pushgateway when one is configured.
func (a *app) pushMetrics(ctx context.Context, job string) {
	if a.cfg.PushgatewayURL == "" {
		return
	}
	if err := a.metrics.Push(context.WithoutCancel(ctx), a.cfg.PushgatewayURL, job); err != nil {
		a.logger.Warn("metrics push failed", "job", job, "error", err)
	}
}
