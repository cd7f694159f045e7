package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/accidents-etl/internal/adapter/gcs"
	"github.com/couchcryptid/accidents-etl/internal/adapter/postgres"
	"github.com/couchcryptid/accidents-etl/internal/pipeline"
)

func newWeatherCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "weather [csv-path]",
		Short: "Load the daily London weather export into WEATHER_TABLE",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := a.cfg

			path := cfg.WeatherCSV
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return errors.New("weather CSV path is required (argument or WEATHER_CSV_PATH)")
			}
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}

			store, err := postgres.Connect(ctx, cfg.DB.DSN(), a.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			var sink pipeline.ArtifactSink
			if cfg.GCSBucket != "" {
				s, err := gcs.NewSink(ctx, cfg.GCSBucket, cfg.UploadChunkSize, cfg.UploadTimeout, a.logger)
				if err != nil {
					a.logger.Warn("weather source will not be archived", "error", err)
				} else {
					defer s.Close()
					sink = s
				}
			}

			loader := pipeline.NewWeatherLoader(store, store, sink, cfg.WeatherTable, cfg.BatchSize, a.logger, a.metrics)
			report, err := loader.Run(ctx, path)
			a.pushMetrics(ctx, "accidents_weather")
			if err != nil {
				return fmt.Errorf("load weather: %w", err)
			}
			printWeatherSummary(cmd.OutOrStdout(), cfg.WeatherTable, report)
			return nil
		},
	}
}
