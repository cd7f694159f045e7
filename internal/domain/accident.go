package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// AccidentRecord is one record as returned by the accident API. Values are left
// loosely typed; numbers decode as json.Number so they survive a round trip.
type AccidentRecord map[string]any

// RawRow is one row of a raw tabular artifact keyed by its CSV header.
type RawRow map[string]string

// NormalizedAccidentRow is the fixed relational shape loaded into PostgreSQL.
// Nil pointers and nil JSON values are written as SQL NULL.
type NormalizedAccidentRow struct {
	AccidentID   int64
	Lat          *float64
	Lon          *float64
	Location     *string
	AccidentDate *time.Time
	Severity     *string
	Borough      *string
	Casualties   json.RawMessage
	Vehicles     json.RawMessage
}

// AccidentColumns is the column order of the accident table. COPY statements and
// NormalizedAccidentRow.Values must agree with it.
var AccidentColumns = []string{
	"accident_id", "lat", "lon", "location", "accident_date",
	"severity", "borough", "casualties", "vehicles",
}

// Values returns the row in AccidentColumns order, with nil for NULL.
func (r NormalizedAccidentRow) Values() []any {
	return []any{
		r.AccidentID,
		floatOrNil(r.Lat),
		floatOrNil(r.Lon),
		stringOrNil(r.Location),
		timeOrNil(r.AccidentDate),
		stringOrNil(r.Severity),
		stringOrNil(r.Borough),
		jsonOrNil(r.Casualties),
		jsonOrNil(r.Vehicles),
	}
}

// Format identifies the encoding of a raw artifact.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

// RawArtifact is a gzip-compressed, year-scoped snapshot written by ingestion.
type RawArtifact struct {
	Year   int
	Format Format
	Path   string
}

// ObjectKey is the remote storage key for an artifact of the given format and year.
func ObjectKey(format Format, year int) string {
	return fmt.Sprintf("raw/%s/accidents_%d.%s.gz", format, year, format)
}

// ArtifactFileName is the local file name of an artifact, including the .gz suffix.
func ArtifactFileName(format Format, year int) string {
	return fmt.Sprintf("accidents_%d.%s.gz", year, format)
}

// ArtifactEvent announces that a raw artifact reached remote storage.
type ArtifactEvent struct {
	Year       int       `json:"year"`
	Format     Format    `json:"format"`
	Bucket     string    `json:"bucket"`
	Key        string    `json:"key"`
	Records    int       `json:"records"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// NewArtifactEvent stamps an event with the package clock.
func NewArtifactEvent(artifact RawArtifact, bucket, key string, records int) ArtifactEvent {
	return ArtifactEvent{
		Year:       artifact.Year,
		Format:     artifact.Format,
		Bucket:     bucket,
		Key:        key,
		Records:    records,
		UploadedAt: clock.Now().UTC(),
	}
}

func floatOrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringOrNil(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func timeOrNil(v *time.Time) any {
	if v == nil {
		return nil
	}
	return *v
}

func jsonOrNil(v json.RawMessage) any {
	if v == nil {
		return nil
	}
	return v
}
