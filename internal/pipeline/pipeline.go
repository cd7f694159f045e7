// Package pipeline orchestrates the batch ingest and load runs.
package pipeline

import (
	"context"

	"github.com/couchcryptid/accidents-etl/internal/adapter/postgres"
	"github.com/couchcryptid/accidents-etl/internal/domain"
)

// Fetcher retrieves one year of records. An unavailable year yields an empty
// slice and a nil error; an error means the run itself should stop.
type Fetcher interface {
	Fetch(ctx context.Context, year int) ([]domain.AccidentRecord, error)
}

// ArtifactSink uploads raw artifacts to remote storage.
type ArtifactSink interface {
	Upload(ctx context.Context, format domain.Format, localPath string, year int) (string, error)
	UploadFile(ctx context.Context, prefix, localPath string) (string, error)
	Bucket() string
}

// Notifier announces uploaded artifacts.
type Notifier interface {
	Notify(ctx context.Context, event domain.ArtifactEvent) error
}

// TableManager drops and recreates a target table.
type TableManager interface {
	Recreate(ctx context.Context, table string, schema postgres.Schema) error
}

// ChunkWriter commits one chunk of rows in its own transaction.
type ChunkWriter interface {
	WriteChunk(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}
