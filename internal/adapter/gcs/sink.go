// Package gcs uploads raw artifacts to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"

	"github.com/couchcryptid/accidents-etl/internal/domain"
)

const contentType = "application/gzip"

// objectWriterFunc opens a writer for one object. Closing the writer commits it.
type objectWriterFunc func(ctx context.Context, key string, chunkSize int) io.WriteCloser

// Sink uploads local artifact files to a bucket.
type Sink struct {
	bucket    string
	open      objectWriterFunc
	chunkSize int
	timeout   time.Duration
	logger    *slog.Logger
	close     func() error
}

// NewSink creates a Sink backed by a storage client using application default
// credentials.
func NewSink(ctx context.Context, bucket string, chunkSize int, timeout time.Duration, logger *slog.Logger) (*Sink, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	handle := client.Bucket(bucket)
	open := func(ctx context.Context, key string, chunkSize int) io.WriteCloser {
		w := handle.Object(key).NewWriter(ctx)
		w.ChunkSize = chunkSize
		w.ContentType = contentType
		return w
	}
	s := newSink(bucket, open, chunkSize, timeout, logger)
	s.close = client.Close
	return s, nil
}

func newSink(bucket string, open objectWriterFunc, chunkSize int, timeout time.Duration, logger *slog.Logger) *Sink {
	return &Sink{
		bucket:    bucket,
		open:      open,
		chunkSize: chunkSize,
		timeout:   timeout,
		logger:    logger,
		close:     func() error { return nil },
	}
}

// Bucket returns the destination bucket name.
func (s *Sink) Bucket() string {
	return s.bucket
}

// Upload copies the artifact at localPath to raw/{format}/accidents_{year}.{format}.gz
// and returns the object key. The local file is left in place.
func (s *Sink) Upload(ctx context.Context, format domain.Format, localPath string, year int) (string, error) {
	key := domain.ObjectKey(format, year)
	if err := s.put(ctx, key, localPath); err != nil {
		return "", err
	}
	return key, nil
}

// UploadFile copies an arbitrary local file under prefix, keeping its base name.
func (s *Sink) UploadFile(ctx context.Context, prefix, localPath string) (string, error) {
	key := prefix + "/" + filepath.Base(localPath)
	if err := s.put(ctx, key, localPath); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Sink) put(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	w := s.open(ctx, key, s.chunkSize)
	n, err := io.Copy(w, f)
	if err != nil {
		// Cancelling before Close discards the partial object.
		cancel()
		w.Close()
		return fmt.Errorf("upload %s to gs://%s/%s: %w", localPath, s.bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize gs://%s/%s: %w", s.bucket, key, err)
	}

	s.logger.Info("artifact uploaded",
		"bucket", s.bucket,
		"key", key,
		"bytes", n,
		"duration", time.Since(start),
	)
	return nil
}

// Close releases the storage client.
func (s *Sink) Close() error {
	return s.close()
}
