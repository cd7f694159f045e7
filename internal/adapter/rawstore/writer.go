package rawstore

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/klauspost/compress/gzip"

	"github.com/couchcryptid/accidents-etl/internal/domain"
)

// leadingColumns fixes the position of the API's known keys in CSV artifacts.
// Any other key follows in sorted order.
var leadingColumns = []string{
	"$type", "id", "lat", "lon", "location", "date",
	"severity", "borough", "casualties", "vehicles",
}

// WriteJSONL writes one JSON object per line to a gzip file at path,
// replacing any existing file.
func WriteJSONL(records []domain.AccidentRecord, path string) error {
	return writeGzip(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for i, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("encode record %d: %w", i, err)
			}
		}
		return nil
	})
}

// WriteCSV writes records as a gzip CSV to path + ".gz" and returns that path.
// Nested arrays and objects are written as JSON text.
func WriteCSV(records []domain.AccidentRecord, path string) (string, error) {
	compressed := path + ".gz"
	header := csvHeader(records)

	err := writeGzip(compressed, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		row := make([]string, len(header))
		for i, rec := range records {
			for j, column := range header {
				cell, err := formatCell(rec[column])
				if err != nil {
					return fmt.Errorf("record %d column %s: %w", i, column, err)
				}
				row[j] = cell
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write record %d: %w", i, err)
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return "", err
	}
	return compressed, nil
}

// ReadJSONL decodes every record of a gzip JSONL artifact.
func ReadJSONL(path string) ([]domain.AccidentRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open gzip %s: %w", path, err)
	}
	defer gz.Close()

	dec := json.NewDecoder(gz)
	dec.UseNumber()

	var records []domain.AccidentRecord
	for {
		var rec domain.AccidentRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return nil, fmt.Errorf("decode %s line %d: %w", path, len(records)+1, err)
		}
		records = append(records, rec)
	}
}

// writeGzip streams fill into a temporary file beside path and renames it into
// place. On failure neither the temporary file nor a stale artifact remains.
func writeGzip(path string, fill func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			os.Remove(path)
		}
	}()

	buf := bufio.NewWriter(tmp)
	gz := gzip.NewWriter(buf)
	if err = fill(gz); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = gz.Close(); err != nil {
		return fmt.Errorf("close gzip %s: %w", path, err)
	}
	if err = buf.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// csvHeader returns the union of record keys: known columns first, then the
// rest sorted, so the same records always produce the same header.
func csvHeader(records []domain.AccidentRecord) []string {
	seen := make(map[string]bool)
	for _, rec := range records {
		for k := range rec {
			seen[k] = true
		}
	}

	header := make([]string, 0, len(seen))
	for _, k := range leadingColumns {
		if seen[k] {
			header = append(header, k)
			delete(seen, k)
		}
	}
	rest := make([]string, 0, len(seen))
	for k := range seen {
		rest = append(rest, k)
	}
	slices.Sort(rest)
	return append(header, rest...)
}

func formatCell(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}
