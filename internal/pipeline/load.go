package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/accidents-etl/internal/adapter/postgres"
	"github.com/couchcryptid/accidents-etl/internal/adapter/rawstore"
	"github.com/couchcryptid/accidents-etl/internal/domain"
	"github.com/couchcryptid/accidents-etl/internal/observability"
)

// LoadConfig controls a load run.
type LoadConfig struct {
	StorageRoot string
	Table       string
	BatchSize   int
}

// ArtifactResult is the outcome of loading one artifact.
type ArtifactResult struct {
	Path    string
	Rows    int64
	Dropped int
	Err     error
}

// LoadReport summarizes a load run.
type LoadReport struct {
	Artifacts []ArtifactResult
	Rows      int64
	Dropped   int
	Failed    int
}

// Loader recreates the accident table and bulk-loads every local CSV artifact.
type Loader struct {
	tables  TableManager
	writer  ChunkWriter
	cfg     LoadConfig
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewLoader creates a Loader.
func NewLoader(tables TableManager, writer ChunkWriter, cfg LoadConfig, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	return &Loader{
		tables:  tables,
		writer:  writer,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Run recreates the table, then loads artifacts one at a time in name order.
// A failed artifact is reported and skipped; a failed recreate or cancellation
// aborts the run.
func (l *Loader) Run(ctx context.Context) (LoadReport, error) {
	var report LoadReport

	if err := l.tables.Recreate(ctx, l.cfg.Table, postgres.AccidentSchema); err != nil {
		return report, err
	}

	dir := CSVDir(l.cfg.StorageRoot)
	compressed, err := rawstore.List(dir, ".csv.gz")
	if err != nil {
		return report, err
	}
	for _, gz := range compressed {
		if _, err := rawstore.Decompress(gz); err != nil {
			l.logger.Error("extract artifact failed", "path", gz, "error", err)
			report.Artifacts = append(report.Artifacts, ArtifactResult{Path: gz, Err: err})
			report.Failed++
		}
	}

	paths, err := rawstore.List(dir, ".csv")
	if err != nil {
		return report, err
	}
	if len(paths) == 0 && report.Failed == 0 {
		l.logger.Warn("no artifacts to load", "dir", dir)
		return report, nil
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("load: %w", err)
		}

		result := l.loadAndClean(ctx, path)
		report.Artifacts = append(report.Artifacts, result)
		report.Rows += result.Rows
		report.Dropped += result.Dropped
		if result.Err != nil {
			report.Failed++
		}
	}

	l.logger.Info("load finished",
		"table", l.cfg.Table,
		"artifacts", len(report.Artifacts),
		"failed", report.Failed,
		"rows", report.Rows,
		"dropped", report.Dropped,
	)
	return report, nil
}

// loadAndClean loads one extracted artifact and removes it after a complete load.
// A partially loaded file is kept for inspection.
func (l *Loader) loadAndClean(ctx context.Context, path string) ArtifactResult {
	start := time.Now()
	result := l.LoadArtifact(ctx, path)
	l.metrics.ArtifactLoadDuration.Observe(time.Since(start).Seconds())

	logger := l.logger.With("path", path)
	if result.Err != nil {
		logger.Error("artifact load stopped", "rows_committed", result.Rows, "error", result.Err)
		return result
	}
	if err := os.Remove(path); err != nil {
		logger.Warn("remove loaded artifact failed", "error", err)
	}
	logger.Info("artifact loaded", "rows", result.Rows, "dropped", result.Dropped)
	return result
}

// LoadArtifact streams the CSV at path in chunks of BatchSize rows, normalizing
// and committing each chunk independently. The first chunk that fails stops the
// artifact; rows of earlier chunks stay committed.
func (l *Loader) LoadArtifact(ctx context.Context, path string) ArtifactResult {
	result := ArtifactResult{Path: filepath.Clean(path)}

	f, err := os.Open(path)
	if err != nil {
		result.Err = fmt.Errorf("open artifact: %w", err)
		return result
	}
	defer f.Close()

	reader, err := rawstore.NewChunkReader(f, l.cfg.BatchSize)
	if err != nil {
		result.Err = fmt.Errorf("read artifact %s: %w", path, err)
		return result
	}

	for chunk := 1; ; chunk++ {
		raw, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return result
		}
		if err != nil {
			result.Err = fmt.Errorf("read chunk %d: %w", chunk, err)
			return result
		}

		normalized := domain.Normalize(raw, l.logger)
		result.Dropped += normalized.Dropped
		l.metrics.RowsDropped.Add(float64(normalized.Dropped))

		values := make([][]any, len(normalized.Rows))
		for i, row := range normalized.Rows {
			values[i] = row.Values()
		}

		n, err := l.writer.WriteChunk(ctx, l.cfg.Table, domain.AccidentColumns, values)
		if err != nil {
			l.metrics.ChunksFailed.Inc()
			result.Err = fmt.Errorf("chunk %d: %w", chunk, err)
			return result
		}
		result.Rows += n
		l.metrics.RowsLoaded.Add(float64(n))
		l.logger.Debug("chunk committed", "path", path, "chunk", chunk, "rows", n)
	}
}
