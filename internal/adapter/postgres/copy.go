package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	copyDelimiter = '\t'
	copyNull      = "NULL"
	copyTimestamp = "2006-01-02 15:04:05.999999"
)

// CopySQL renders the COPY statement used for every chunk. Text cells are always
// quoted, so a literal "NULL" string never collides with the null marker.
func CopySQL(table string, columns []string) string {
	return fmt.Sprintf(`COPY %s (%s) FROM STDIN WITH (FORMAT csv, DELIMITER E'\t', NULL '%s', QUOTE '"')`,
		QuoteTable(table), quoteColumns(columns), copyNull)
}

// EncodeRows renders rows as the COPY payload expected by CopySQL.
func EncodeRows(rows [][]any) ([]byte, error) {
	var buf bytes.Buffer
	for i, row := range rows {
		for j, v := range row {
			if j > 0 {
				buf.WriteByte(copyDelimiter)
			}
			if err := encodeValue(&buf, v); err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", i, j, err)
			}
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString(copyNull)
	case int:
		buf.WriteString(strconv.Itoa(val))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			buf.WriteString(copyNull)
			return nil
		}
		buf.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case string:
		writeQuoted(buf, val)
	case time.Time:
		writeQuoted(buf, val.UTC().Format(copyTimestamp))
	case json.RawMessage:
		writeQuoted(buf, string(val))
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("encode %T: %w", v, err)
		}
		writeQuoted(buf, string(data))
	}
	return nil
}

func writeQuoted(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	buf.WriteString(strings.ReplaceAll(s, `"`, `""`))
	buf.WriteByte('"')
}

// WriteChunk loads rows into table in one transaction through COPY. On error the
// transaction is rolled back and nothing from the chunk is visible.
func (s *Store) WriteChunk(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	payload, err := EncodeRows(rows)
	if err != nil {
		return 0, fmt.Errorf("encode chunk: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin chunk: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	tag, err := tx.Conn().PgConn().CopyFrom(ctx, bytes.NewReader(payload), CopySQL(table, columns))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit chunk: %w", err)
	}
	return tag.RowsAffected(), nil
}
