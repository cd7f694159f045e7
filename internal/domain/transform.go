package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

// typeDiscriminator is the key the API adds to every record and nested item.
const typeDiscriminator = "$type"

// columnSources maps each target column to the source columns that may carry it,
// in lookup order. A renamed source wins over a column already using the target name.
var columnSources = map[string][]string{
	"accident_id":   {"id", "accident_id"},
	"accident_date": {"date", "accident_date"},
}

// dateLayouts are tried in order when coercing accident dates.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NormalizeResult is the output of Normalize: the surviving rows in input order
// and the number of rows excluded for a non-numeric identifier.
type NormalizeResult struct {
	Rows    []NormalizedAccidentRow
	Dropped int
}

// Normalize transforms loosely typed rows into the fixed accident schema.
// The discriminator column is ignored, id/date are renamed, unknown columns are
// discarded, and nested JSON columns are sanitized. Rows whose identifier is not
// numeric are excluded; bad dates, coordinates and nested values become NULL.
func Normalize(rows []RawRow, logger *slog.Logger) NormalizeResult {
	result := NormalizeResult{Rows: make([]NormalizedAccidentRow, 0, len(rows))}

	for i, raw := range rows {
		fields := projectRow(raw)

		id, err := parseAccidentID(fields["accident_id"])
		if err != nil {
			logger.Warn("dropping row without numeric accident id",
				"row", i,
				"accident_id", fields["accident_id"],
				"error", err,
			)
			result.Dropped++
			continue
		}

		row := NormalizedAccidentRow{
			AccidentID: id,
			Lat:        parseOptionalFloat(fields["lat"]),
			Lon:        parseOptionalFloat(fields["lon"]),
			Location:   optionalString(fields["location"]),
			Severity:   optionalString(fields["severity"]),
			Borough:    optionalString(fields["borough"]),
		}

		if date, ok := parseAccidentDate(fields["accident_date"]); ok {
			row.AccidentDate = &date
		} else if strings.TrimSpace(fields["accident_date"]) != "" {
			logger.Warn("unparseable accident date, storing NULL",
				"accident_id", id,
				"accident_date", fields["accident_date"],
			)
		}

		row.Casualties = sanitizeOrWarn(fields["casualties"], "casualties", id, logger)
		row.Vehicles = sanitizeOrWarn(fields["vehicles"], "vehicles", id, logger)

		result.Rows = append(result.Rows, row)
	}

	return result
}

// projectRow keeps only the recognized target columns, applying renames.
func projectRow(raw RawRow) map[string]string {
	fields := make(map[string]string, len(AccidentColumns))
	for _, column := range AccidentColumns {
		sources, renamed := columnSources[column]
		if !renamed {
			sources = []string{column}
		}
		for _, src := range sources {
			if src == typeDiscriminator {
				continue
			}
			if v, ok := raw[src]; ok {
				fields[column] = v
				break
			}
		}
	}
	return fields
}

// parseAccidentID accepts integer text and integral float text ("42", "42.0")
// whose value fits the INTEGER accident_id column.
func parseAccidentID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty identifier")
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return checkIDRange(s, v)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse identifier: %w", err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("identifier %q is not an integer", s)
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("identifier %q is out of range", s)
	}
	return int64(f), nil
}

func checkIDRange(s string, v int64) (int64, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("identifier %q is out of range", s)
	}
	return v, nil
}

func parseAccidentDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseOptionalFloat returns nil for empty, unparseable, or non-finite input.
func parseOptionalFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func sanitizeOrWarn(value, column string, id int64, logger *slog.Logger) json.RawMessage {
	sanitized, err := SanitizeNested(value)
	if err != nil {
		logger.Warn("could not parse nested JSON field",
			"accident_id", id,
			"column", column,
			"error", err,
		)
		return nil
	}
	return sanitized
}

// SanitizeNested parses a nested JSON column, removes the "$type" key from every
// object item when the value is an array, and re-encodes it. Empty input and
// JSON null yield nil. Anything that is not exactly one JSON value is an error.
func SanitizeNested(value string) (json.RawMessage, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	dec := json.NewDecoder(strings.NewReader(value))
	dec.UseNumber()

	var parsed any
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode nested value: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode nested value: trailing data after JSON value")
	}
	if parsed == nil {
		return nil, nil
	}

	if items, ok := parsed.([]any); ok {
		for _, item := range items {
			if obj, ok := item.(map[string]any); ok {
				delete(obj, typeDiscriminator)
			}
		}
	}

	encoded, err := json.Marshal(parsed)
	if err != nil {
		return nil, fmt.Errorf("encode nested value: %w", err)
	}
	return encoded, nil
}
