package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/accidents-etl/internal/adapter/postgres"
	"github.com/couchcryptid/accidents-etl/internal/domain"
	"github.com/couchcryptid/accidents-etl/internal/observability"
)

// --- mocks ---

type mockFetcher struct {
	byYear map[int][]domain.AccidentRecord
	err    error
	calls  atomic.Int64
}

func (m *mockFetcher) Fetch(_ context.Context, year int) ([]domain.AccidentRecord, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.byYear[year], nil
}

type mockSink struct {
	mu         sync.Mutex
	keys       []string
	failFormat domain.Format
	failFiles  bool
}

func (m *mockSink) Upload(_ context.Context, format domain.Format, localPath string, year int) (string, error) {
	if format == m.failFormat {
		return "", errors.New("bucket unavailable")
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	key := domain.ObjectKey(format, year)
	m.mu.Lock()
	m.keys = append(m.keys, key)
	m.mu.Unlock()
	return key, nil
}

func (m *mockSink) UploadFile(_ context.Context, prefix, localPath string) (string, error) {
	if m.failFiles {
		return "", errors.New("bucket unavailable")
	}
	key := prefix + "/" + filepath.Base(localPath)
	m.mu.Lock()
	m.keys = append(m.keys, key)
	m.mu.Unlock()
	return key, nil
}

func (m *mockSink) Bucket() string { return "test-bucket" }

type mockNotifier struct {
	mu     sync.Mutex
	events []domain.ArtifactEvent
}

func (m *mockNotifier) Notify(_ context.Context, event domain.ArtifactEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// callLog records table and chunk calls in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *callLog) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type mockTables struct {
	log *callLog
	err error
}

func (m *mockTables) Recreate(_ context.Context, table string, schema postgres.Schema) error {
	m.log.add(fmt.Sprintf("recreate %s (%d columns)", table, len(schema)))
	return m.err
}

type mockChunkWriter struct {
	log    *callLog
	fail   func(rows [][]any) error
	chunks [][][]any
}

func (m *mockChunkWriter) WriteChunk(_ context.Context, table string, columns []string, rows [][]any) (int64, error) {
	m.log.add(fmt.Sprintf("chunk %s %d", table, len(rows)))
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) != len(rows[0]) {
		return 0, fmt.Errorf("column count %d does not match row width %d", len(columns), len(rows[0]))
	}
	if m.fail != nil {
		if err := m.fail(rows); err != nil {
			return 0, err
		}
	}
	m.chunks = append(m.chunks, rows)
	return int64(len(rows)), nil
}

// --- helpers ---

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// makeRecords decodes API-shaped records with the given identifiers.
func makeRecords(t *testing.T, year int, ids ...string) []domain.AccidentRecord {
	t.Helper()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf(`{
			"$type": "Tfl.Api.Presentation.Entities.AccidentStats.AccidentDetail",
			"id": %q,
			"lat": 51.5%d,
			"lon": -0.1%d,
			"location": "Oxford Street",
			"date": "%d-03-0%dT08:15:00Z",
			"severity": "Slight",
			"borough": "Westminster",
			"casualties": [{"$type": "CasualtyDetail", "age": 34}],
			"vehicles": [{"$type": "VehicleDetail", "type": "Car"}]
		}`, id, i, i, year, i%9+1)
	}

	dec := json.NewDecoder(strings.NewReader("[" + strings.Join(parts, ",") + "]"))
	dec.UseNumber()
	var records []domain.AccidentRecord
	require.NoError(t, dec.Decode(&records))
	return records
}
