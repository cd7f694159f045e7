package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/accidents-etl/internal/adapter/postgres"
	"github.com/couchcryptid/accidents-etl/internal/pipeline"
)

func newLoadCmd(a *app) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Recreate the accident table and bulk-load every local CSV artifact",
		Long: `load drops and recreates DB_TABLE, extracts each raw/csv/*.csv.gz under
STORAGE_ROOT and loads it in BATCH_SIZE chunks, one transaction per chunk.
An artifact stops at its first failed chunk; the rest of the run continues.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := a.cfg
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}

			store, err := postgres.Connect(ctx, cfg.DB.DSN(), a.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			loader := pipeline.NewLoader(store, store, pipeline.LoadConfig{
				StorageRoot: cfg.StorageRoot,
				Table:       cfg.Table,
				BatchSize:   cfg.BatchSize,
			}, a.logger, a.metrics)

			report, err := loader.Run(ctx)
			printLoadSummary(cmd.OutOrStdout(), report)
			a.pushMetrics(ctx, "accidents_load")
			if err != nil {
				return err
			}
			if strict && report.Failed > 0 {
				return fmt.Errorf("%d artifact(s) failed to load", report.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any artifact fails to load")
	return cmd
}
