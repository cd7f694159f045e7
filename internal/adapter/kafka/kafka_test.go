package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/accidents-etl/internal/config"
	"github.com/couchcryptid/accidents-etl/internal/domain"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testEvent() domain.ArtifactEvent {
	return domain.ArtifactEvent{
		Year:       2019,
		Format:     domain.FormatCSV,
		Bucket:     "tfl-raw",
		Key:        "raw/csv/accidents_2019.csv.gz",
		Records:    4812,
		UploadedAt: time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC),
	}
}

func TestSerializeToMessage(t *testing.T) {
	event := testEvent()

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	assert.Equal(t, []byte("csv-2019"), msg.Key)
	assert.JSONEq(t, `{
		"year": 2019,
		"format": "csv",
		"bucket": "tfl-raw",
		"key": "raw/csv/accidents_2019.csv.gz",
		"records": 4812,
		"uploaded_at": "2024-04-26T15:10:00Z"
	}`, string(msg.Value))
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "format", msg.Headers[0].Key)
	assert.Equal(t, []byte("csv"), msg.Headers[0].Value)
	assert.Equal(t, "uploaded_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(event.UploadedAt.Format(time.RFC3339)), msg.Headers[1].Value)
}

func TestNotifier_Notify(t *testing.T) {
	fw := &fakeWriter{}
	n := &Notifier{writer: fw, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	require.NoError(t, n.Notify(context.Background(), testEvent()))
	require.Len(t, fw.msgs, 1)
	assert.Equal(t, []byte("csv-2019"), fw.msgs[0].Key)

	fw.err = errors.New("leader not available")
	err := n.Notify(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv-2019")

	require.NoError(t, n.Close())
	assert.True(t, fw.closed)
}

func TestNewNotifier(t *testing.T) {
	cfg := &config.Config{KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "raw-accident-artifacts"}
	n := NewNotifier(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	w, ok := n.writer.(*kafkago.Writer)
	require.True(t, ok)
	assert.Equal(t, "raw-accident-artifacts", w.Topic)
	assert.Equal(t, kafkago.RequireAll, w.RequiredAcks)
	require.NoError(t, n.Close())
}
