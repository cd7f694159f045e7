package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/couchcryptid/accidents-etl/internal/adapter/postgres"
	"github.com/couchcryptid/accidents-etl/internal/adapter/rawstore"
	"github.com/couchcryptid/accidents-etl/internal/domain"
	"github.com/couchcryptid/accidents-etl/internal/observability"
)

// weatherPrefix is the remote prefix for archived weather source files.
const weatherPrefix = "raw/weather"

// WeatherReport summarizes a weather load.
type WeatherReport struct {
	Rows    int64
	Dropped int
	Key     string
}

// WeatherLoader loads the daily weather export into its own table.
type WeatherLoader struct {
	tables    TableManager
	writer    ChunkWriter
	sink      ArtifactSink
	table     string
	batchSize int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewWeatherLoader creates a WeatherLoader. A nil sink skips archiving the
// source file.
func NewWeatherLoader(tables TableManager, writer ChunkWriter, sink ArtifactSink, table string, batchSize int, logger *slog.Logger, metrics *observability.Metrics) *WeatherLoader {
	return &WeatherLoader{
		tables:    tables,
		writer:    writer,
		sink:      sink,
		table:     table,
		batchSize: batchSize,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run recreates the weather table and loads csvPath into it. Rows without a
// valid DATE are dropped. Any table or chunk failure is returned; a failed
// upload of the source file is only logged.
func (w *WeatherLoader) Run(ctx context.Context, csvPath string) (WeatherReport, error) {
	var report WeatherReport

	f, err := os.Open(csvPath)
	if err != nil {
		return report, fmt.Errorf("open weather file: %w", err)
	}
	defer f.Close()

	reader, err := rawstore.NewChunkReader(f, w.batchSize)
	if err != nil {
		return report, fmt.Errorf("read weather file %s: %w", csvPath, err)
	}

	if err := w.tables.Recreate(ctx, w.table, postgres.WeatherSchema); err != nil {
		return report, err
	}

	for chunk := 1; ; chunk++ {
		raw, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return report, fmt.Errorf("read weather chunk %d: %w", chunk, err)
		}

		values := make([][]any, 0, len(raw))
		for _, r := range raw {
			row, err := domain.ParseWeatherRow(r)
			if err != nil {
				w.logger.Warn("dropping weather row", "error", err)
				report.Dropped++
				continue
			}
			values = append(values, row.Values())
		}

		n, err := w.writer.WriteChunk(ctx, w.table, domain.WeatherColumns, values)
		if err != nil {
			w.metrics.ChunksFailed.Inc()
			return report, fmt.Errorf("weather chunk %d: %w", chunk, err)
		}
		report.Rows += n
		w.metrics.RowsLoaded.Add(float64(n))
	}
	w.metrics.RowsDropped.Add(float64(report.Dropped))

	w.logger.Info("weather loaded", "table", w.table, "rows", report.Rows, "dropped", report.Dropped)

	if w.sink != nil {
		key, err := w.sink.UploadFile(ctx, weatherPrefix, csvPath)
		if err != nil {
			w.logger.Warn("weather source upload failed", "path", csvPath, "error", err)
		} else {
			report.Key = key
		}
	}
	return report, nil
}
