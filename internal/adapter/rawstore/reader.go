package rawstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/couchcryptid/accidents-etl/internal/domain"
)

// Decompress extracts a .gz artifact next to itself and removes the compressed
// file once extraction succeeds. It returns the extracted path.
func Decompress(gzPath string) (path string, err error) {
	path = strings.TrimSuffix(gzPath, ".gz")
	if path == gzPath {
		return "", fmt.Errorf("decompress %s: missing .gz suffix", gzPath)
	}

	in, err := os.Open(gzPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", gzPath, err)
	}
	defer in.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return "", fmt.Errorf("open gzip %s: %w", gzPath, err)
	}
	defer gz.Close()

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(path)
		}
	}()

	if _, err = io.Copy(out, gz); err != nil {
		return "", fmt.Errorf("extract %s: %w", gzPath, err)
	}
	if err = out.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	in.Close()
	if err = os.Remove(gzPath); err != nil {
		return "", fmt.Errorf("remove %s: %w", gzPath, err)
	}
	return path, nil
}

// List returns the artifacts in dir whose names end in suffix, sorted by name.
// A missing directory holds no artifacts.
func List(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(paths)
	return paths, nil
}

// ChunkReader streams a CSV file with a header row in chunks of loosely typed rows.
type ChunkReader struct {
	r         *csv.Reader
	header    []string
	chunkSize int
	line      int
}

// NewChunkReader reads the header from r. Rows may have fewer or more fields
// than the header; missing fields are absent from the row and extras are ignored.
func NewChunkReader(r io.Reader, chunkSize int) (*ChunkReader, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("read header: empty file")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	return &ChunkReader{r: cr, header: slices.Clone(header), chunkSize: chunkSize, line: 1}, nil
}

// Header returns the column names.
func (c *ChunkReader) Header() []string {
	return c.header
}

// Next returns the next chunk. It returns io.EOF once no rows remain; a final
// short chunk is returned with a nil error.
func (c *ChunkReader) Next() ([]domain.RawRow, error) {
	rows := make([]domain.RawRow, 0, min(c.chunkSize, 1024))
	for len(rows) < c.chunkSize {
		record, err := c.r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		c.line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", c.line, err)
		}
		row := make(domain.RawRow, len(c.header))
		for i, value := range record {
			if i < len(c.header) {
				row[c.header[i]] = value
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, io.EOF
	}
	return rows, nil
}
