package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/accidents-etl/internal/adapter/gcs"
	"github.com/couchcryptid/accidents-etl/internal/adapter/kafka"
	"github.com/couchcryptid/accidents-etl/internal/adapter/tfl"
	"github.com/couchcryptid/accidents-etl/internal/pipeline"
)

func newIngestCmd(a *app) *cobra.Command {
	var (
		startYear  int
		endYear    int
		skipUpload bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch each year from the accident API and write raw artifacts",
		Long: `ingest fetches every year in [START_YEAR, END_YEAR], writes
raw/jsonl/accidents_{year}.jsonl.gz and raw/csv/accidents_{year}.csv.gz under
STORAGE_ROOT and uploads both to GCS_BUCKET. Years the API cannot serve are
skipped with a warning.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := a.cfg

			if cmd.Flags().Changed("start-year") {
				cfg.StartYear = startYear
			}
			if cmd.Flags().Changed("end-year") {
				cfg.EndYear = endYear
			}
			if cfg.StartYear > cfg.EndYear {
				return fmt.Errorf("start year %d is after end year %d", cfg.StartYear, cfg.EndYear)
			}

			var sink pipeline.ArtifactSink
			if !skipUpload {
				if err := cfg.RequireBucket(); err != nil {
					return err
				}
				s, err := gcs.NewSink(ctx, cfg.GCSBucket, cfg.UploadChunkSize, cfg.UploadTimeout, a.logger)
				if err != nil {
					return err
				}
				defer s.Close()
				sink = s
			}

			var notifier pipeline.Notifier
			if len(cfg.KafkaBrokers) > 0 {
				n := kafka.NewNotifier(cfg, a.logger)
				defer func() {
					if err := n.Close(); err != nil {
						a.logger.Warn("kafka notifier close error", "error", err)
					}
				}()
				notifier = n
			}

			fetcher := tfl.NewClient(cfg.SourceBaseURL, cfg.SourceTimeout, cfg.SourceRatePerSec, a.logger)
			ingestor := pipeline.NewIngestor(fetcher, sink, notifier, pipeline.IngestConfig{
				Years:        cfg.Years(),
				StorageRoot:  cfg.StorageRoot,
				Concurrency:  cfg.IngestConcurrency,
				SkipExisting: cfg.SkipExisting,
			}, a.logger, a.metrics)

			report, err := ingestor.Run(ctx)
			printIngestSummary(cmd.OutOrStdout(), report)
			a.pushMetrics(ctx, "accidents_ingest")
			return err
		},
	}

	cmd.Flags().IntVar(&startYear, "start-year", 0, "first year to fetch (overrides START_YEAR)")
	cmd.Flags().IntVar(&endYear, "end-year", 0, "last year to fetch (overrides END_YEAR)")
	cmd.Flags().BoolVar(&skipUpload, "skip-upload", false, "keep artifacts local and do not require GCS_BUCKET")
	return cmd
}
