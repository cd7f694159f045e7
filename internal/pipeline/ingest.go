package pipeline

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/accidents-etl/internal/adapter/rawstore"
	"github.com/couchcryptid/accidents-etl/internal/domain"
	"github.com/couchcryptid/accidents-etl/internal/observability"
)

// IngestConfig controls an ingest run.
type IngestConfig struct {
	Years        []int
	StorageRoot  string
	Concurrency  int
	SkipExisting bool
}

// IngestReport summarizes an ingest run.
type IngestReport struct {
	YearsFetched   int
	YearsSkipped   int
	Records        int
	Artifacts      []domain.RawArtifact
	Uploaded       int
	UploadFailures int
}

// Ingestor fetches each configured year, writes its raw artifacts and uploads them.
type Ingestor struct {
	fetcher  Fetcher
	sink     ArtifactSink
	notifier Notifier
	cfg      IngestConfig
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu     sync.Mutex
	report IngestReport
}

// NewIngestor creates an Ingestor. A nil sink keeps artifacts local only; a nil
// notifier disables artifact events.
func NewIngestor(f Fetcher, sink ArtifactSink, n Notifier, cfg IngestConfig, logger *slog.Logger, metrics *observability.Metrics) *Ingestor {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Ingestor{
		fetcher:  f,
		sink:     sink,
		notifier: n,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// JSONLDir is where line-delimited artifacts are written under root.
func JSONLDir(root string) string {
	return filepath.Join(root, "raw", string(domain.FormatJSONL))
}

// CSVDir is where tabular artifacts are written under root.
func CSVDir(root string) string {
	return filepath.Join(root, "raw", string(domain.FormatCSV))
}

// Run ingests every year. Failures of a single year are logged and counted;
// only an unusable storage root or cancellation returns an error.
func (i *Ingestor) Run(ctx context.Context) (IngestReport, error) {
	for _, dir := range []string{JSONLDir(i.cfg.StorageRoot), CSVDir(i.cfg.StorageRoot)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return IngestReport{}, fmt.Errorf("create storage directory: %w", err)
		}
	}
	i.mu.Lock()
	i.report = IngestReport{}
	i.mu.Unlock()

	if i.sink == nil {
		i.logger.Warn("no artifact sink configured, artifacts stay local")
	}

	i.logger.Info("ingest started",
		"years", len(i.cfg.Years),
		"concurrency", i.cfg.Concurrency,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.Concurrency)
	for _, year := range i.cfg.Years {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return i.ingestYear(gctx, year)
		})
	}
	err := g.Wait()

	i.mu.Lock()
	report := i.report
	i.mu.Unlock()
	slices.SortFunc(report.Artifacts, func(a, b domain.RawArtifact) int {
		return cmp.Or(cmp.Compare(a.Year, b.Year), cmp.Compare(a.Format, b.Format))
	})

	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return report, fmt.Errorf("ingest: %w", err)
	}

	i.logger.Info("ingest finished",
		"years_fetched", report.YearsFetched,
		"years_skipped", report.YearsSkipped,
		"records", report.Records,
		"uploaded", report.Uploaded,
		"upload_failures", report.UploadFailures,
	)
	return report, nil
}

// ingestYear returns an error only when the run should stop.
func (i *Ingestor) ingestYear(ctx context.Context, year int) error {
	logger := i.logger.With("year", year)
	jsonlPath := filepath.Join(JSONLDir(i.cfg.StorageRoot), domain.ArtifactFileName(domain.FormatJSONL, year))
	csvPath := filepath.Join(CSVDir(i.cfg.StorageRoot), domain.ArtifactFileName(domain.FormatCSV, year))

	if i.cfg.SkipExisting && fileExists(jsonlPath) && fileExists(csvPath) {
		logger.Info("artifacts already present, skipping year")
		i.skip()
		return nil
	}

	records, err := i.fetcher.Fetch(ctx, year)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		logger.Warn("no records returned, skipping year")
		i.skip()
		return nil
	}
	i.metrics.YearsFetched.Inc()
	i.metrics.RecordsFetched.Add(float64(len(records)))

	if err := rawstore.WriteJSONL(records, jsonlPath); err != nil {
		logger.Error("write jsonl artifact failed", "path", jsonlPath, "error", err)
		i.skip()
		return nil
	}
	i.metrics.ArtifactsWritten.WithLabelValues(string(domain.FormatJSONL)).Inc()

	written, err := rawstore.WriteCSV(records, strings.TrimSuffix(csvPath, ".gz"))
	if err != nil {
		logger.Error("write csv artifact failed", "path", csvPath, "error", err)
		i.skip()
		return nil
	}
	i.metrics.ArtifactsWritten.WithLabelValues(string(domain.FormatCSV)).Inc()

	artifacts := []domain.RawArtifact{
		{Year: year, Format: domain.FormatJSONL, Path: jsonlPath},
		{Year: year, Format: domain.FormatCSV, Path: written},
	}
	i.record(func(r *IngestReport) {
		r.YearsFetched++
		r.Records += len(records)
		r.Artifacts = append(r.Artifacts, artifacts...)
	})
	logger.Info("artifacts written", "records", len(records))

	for _, artifact := range artifacts {
		i.upload(ctx, logger, artifact, len(records))
	}
	return nil
}

func (i *Ingestor) upload(ctx context.Context, logger *slog.Logger, artifact domain.RawArtifact, records int) {
	if i.sink == nil {
		return
	}
	format := string(artifact.Format)

	key, err := i.sink.Upload(ctx, artifact.Format, artifact.Path, artifact.Year)
	if err != nil {
		logger.Warn("artifact upload failed", "format", format, "path", artifact.Path, "error", err)
		i.metrics.Uploads.WithLabelValues(format, "error").Inc()
		i.record(func(r *IngestReport) { r.UploadFailures++ })
		return
	}
	i.metrics.Uploads.WithLabelValues(format, "success").Inc()
	i.record(func(r *IngestReport) { r.Uploaded++ })

	if i.notifier == nil {
		return
	}
	event := domain.NewArtifactEvent(artifact, i.sink.Bucket(), key, records)
	if err := i.notifier.Notify(ctx, event); err != nil {
		logger.Warn("artifact notification failed", "key", key, "error", err)
	}
}

func (i *Ingestor) skip() {
	i.metrics.YearsSkipped.Inc()
	i.record(func(r *IngestReport) { r.YearsSkipped++ })
}

func (i *Ingestor) record(update func(*IngestReport)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	update(&i.report)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
