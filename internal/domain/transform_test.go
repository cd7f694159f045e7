package domain

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testCasualties = `[{"$type":"Tfl.Api.Presentation.Entities.AccidentStats.CasualtyDetail","age":30,"class":"Driver","severity":"Slight"}]`
	testVehicles   = `[{"$type":"Tfl.Api.Presentation.Entities.AccidentStats.VehicleDetail","type":"Car"}]`
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validRow(id string) RawRow {
	return RawRow{
		"$type":      "Tfl.Api.Presentation.Entities.AccidentStats.AccidentDetail",
		"id":         id,
		"lat":        "51.570865",
		"lon":        "-0.231959",
		"location":   "On Edgware Road Near The Junction With Wakemans Hill Avenue",
		"date":       "2019-01-30T21:30:00Z",
		"severity":   "Slight",
		"borough":    "Barnet",
		"casualties": testCasualties,
		"vehicles":   testVehicles,
	}
}

func TestNormalize(t *testing.T) {
	t.Run("full record", func(t *testing.T) {
		result := Normalize([]RawRow{validRow("345979")}, discardLogger())

		require.Len(t, result.Rows, 1)
		assert.Zero(t, result.Dropped)

		row := result.Rows[0]
		assert.Equal(t, int64(345979), row.AccidentID)
		require.NotNil(t, row.Lat)
		assert.InEpsilon(t, 51.570865, *row.Lat, 1e-9)
		require.NotNil(t, row.Lon)
		assert.InEpsilon(t, -0.231959, *row.Lon, 1e-9)
		assert.Equal(t, "Barnet", *row.Borough)
		assert.Equal(t, "Slight", *row.Severity)
		require.NotNil(t, row.AccidentDate)
		assert.Equal(t, time.Date(2019, 1, 30, 21, 30, 0, 0, time.UTC), *row.AccidentDate)
		assert.JSONEq(t, `[{"age":30,"class":"Driver","severity":"Slight"}]`, string(row.Casualties))
		assert.JSONEq(t, `[{"type":"Car"}]`, string(row.Vehicles))
	})

	t.Run("non-numeric identifier is excluded", func(t *testing.T) {
		result := Normalize([]RawRow{validRow("1"), validRow("abc"), validRow("3")}, discardLogger())

		require.Len(t, result.Rows, 2)
		assert.Equal(t, 1, result.Dropped)
		assert.Equal(t, int64(1), result.Rows[0].AccidentID)
		assert.Equal(t, int64(3), result.Rows[1].AccidentID)
	})

	t.Run("malformed date is retained as NULL", func(t *testing.T) {
		raw := validRow("7")
		raw["date"] = "yesterday-ish"
		result := Normalize([]RawRow{raw}, discardLogger())

		require.Len(t, result.Rows, 1)
		assert.Nil(t, result.Rows[0].AccidentDate)
	})

	t.Run("integral float identifier", func(t *testing.T) {
		result := Normalize([]RawRow{validRow("42.0")}, discardLogger())
		require.Len(t, result.Rows, 1)
		assert.Equal(t, int64(42), result.Rows[0].AccidentID)
	})

	t.Run("fractional identifier is excluded", func(t *testing.T) {
		result := Normalize([]RawRow{validRow("42.5")}, discardLogger())
		assert.Empty(t, result.Rows)
		assert.Equal(t, 1, result.Dropped)
	})

	t.Run("identifiers outside the INTEGER column are excluded", func(t *testing.T) {
		rows := []RawRow{
			{"id": "3000000000"},
			{"id": "9223372036854775807.0"},
			{"id": "-2147483649"},
			{"id": "1e30"},
			{"id": "2147483647"},
			{"id": "-2147483648.0"},
		}
		result := Normalize(rows, discardLogger())

		assert.Equal(t, 4, result.Dropped)
		require.Len(t, result.Rows, 2)
		assert.Equal(t, int64(2147483647), result.Rows[0].AccidentID)
		assert.Equal(t, int64(-2147483648), result.Rows[1].AccidentID)
	})

	t.Run("unknown columns are discarded and missing ones are NULL", func(t *testing.T) {
		result := Normalize([]RawRow{{"id": "9", "colour": "blue"}}, discardLogger())

		require.Len(t, result.Rows, 1)
		row := result.Rows[0]
		assert.Nil(t, row.Lat)
		assert.Nil(t, row.Location)
		assert.Nil(t, row.Casualties)
		assert.Equal(t, []any{int64(9), nil, nil, nil, nil, nil, nil, nil, nil}, row.Values())
	})

	t.Run("renamed source wins over target name", func(t *testing.T) {
		result := Normalize([]RawRow{{"id": "5", "accident_id": "6"}}, discardLogger())
		require.Len(t, result.Rows, 1)
		assert.Equal(t, int64(5), result.Rows[0].AccidentID)
	})

	t.Run("unparseable nested field is NULL", func(t *testing.T) {
		raw := validRow("8")
		raw["vehicles"] = "[{'type': 'Car'}]"
		result := Normalize([]RawRow{raw}, discardLogger())

		require.Len(t, result.Rows, 1)
		assert.Nil(t, result.Rows[0].Vehicles)
		assert.NotNil(t, result.Rows[0].Casualties)
	})

	t.Run("order is preserved", func(t *testing.T) {
		rows := []RawRow{validRow("30"), validRow("10"), validRow("x"), validRow("20")}
		result := Normalize(rows, discardLogger())

		ids := make([]int64, 0, len(result.Rows))
		for _, r := range result.Rows {
			ids = append(ids, r.AccidentID)
		}
		assert.Equal(t, []int64{30, 10, 20}, ids)
	})
}

func TestSanitizeNested(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantNil bool
		wantErr bool
	}{
		{name: "strips discriminator from every item", input: `[{"a":1,"$type":"X"},{"b":2}]`, want: `[{"a":1},{"b":2}]`},
		{name: "object is re-encoded untouched", input: `{"$type":"X","a":1}`, want: `{"$type":"X","a":1}`},
		{name: "non-object items kept", input: `[1,"two",{"$type":"X"}]`, want: `[1,"two",{}]`},
		{name: "large numbers kept verbatim", input: `[{"id":12345678901234567890}]`, want: `[{"id":12345678901234567890}]`},
		{name: "empty", input: "  ", wantNil: true},
		{name: "json null", input: "null", wantNil: true},
		{name: "python literal rejected", input: `[{'a': 1}]`, wantErr: true},
		{name: "trailing data rejected", input: `[1] [2]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeNested(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "raw/jsonl/accidents_2019.jsonl.gz", ObjectKey(FormatJSONL, 2019))
	assert.Equal(t, "raw/csv/accidents_2020.csv.gz", ObjectKey(FormatCSV, 2020))
	assert.Equal(t, "accidents_2020.csv.gz", ArtifactFileName(FormatCSV, 2020))
}

func TestNewArtifactEvent_UsesClock(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2024, time.March, 1, 6, 0, 0, 0, time.UTC))
	SetClock(fakeClock)
	t.Cleanup(func() { SetClock(nil) })

	event := NewArtifactEvent(RawArtifact{Year: 2019, Format: FormatCSV}, "bucket", ObjectKey(FormatCSV, 2019), 12)

	assert.Equal(t, 2019, event.Year)
	assert.Equal(t, FormatCSV, event.Format)
	assert.Equal(t, "raw/csv/accidents_2019.csv.gz", event.Key)
	assert.Equal(t, 12, event.Records)
	assert.Equal(t, fakeClock.Now(), event.UploadedAt)
}
