// Command genmock generates deterministic accident API fixtures shaped like the
// TfL AccidentStats responses. Each year is written to {out}/{year}.json so a
// static file server rooted at {out} can stand in for SOURCE_BASE_URL. The
// generated records are pushed through the real CSV and normalization code to
// print the counts integration tests assert on.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/AccidentStats -start 2018 -end 2019 -per-year 250
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/couchcryptid/accidents-etl/internal/adapter/rawstore"
	"github.com/couchcryptid/accidents-etl/internal/domain"
)

const (
	accidentType = "Tfl.Api.Presentation.Entities.AccidentStats.AccidentDetail"
	casualtyType = "Tfl.Api.Presentation.Entities.AccidentStats.CasualtyDetail"
	vehicleType  = "Tfl.Api.Presentation.Entities.AccidentStats.VehicleDetail"
)

var (
	boroughs   = []string{"Barnet", "Camden", "City of Westminster", "Croydon", "Hackney", "Lambeth", "Southwark", "Tower Hamlets"}
	severities = []string{"Slight", "Slight", "Slight", "Slight", "Serious", "Fatal"}
	vehicles   = []string{"Car", "PedalCycle", "Motorcycle", "BusOrCoach", "Taxi", "GoodsVehicle"}
	classes    = []string{"Driver", "Passenger", "Pedestrian"}
	streets    = []string{"Edgware Road", "Oxford Street", "Brixton Road", "Old Kent Road", "Mile End Road", "Holloway Road"}
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "directory for {year}.json fixtures")
	start := flag.Int("start", 2019, "first year to generate")
	end := flag.Int("end", 2019, "last year to generate")
	perYear := flag.Int("per-year", 100, "records per year")
	invalidEvery := flag.Int("invalid-every", 0, "emit a non-numeric id every N records (0 disables)")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return errors.New("missing required flag: -out")
	}
	if *start > *end {
		return fmt.Errorf("start year %d is after end year %d", *start, *end)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed)) //nolint:gosec // fixtures, not secrets
	var all []domain.AccidentRecord

	for year := *start; year <= *end; year++ {
		records := generateYear(rng, year, *perYear, *invalidEvery)
		path := filepath.Join(*out, fmt.Sprintf("%d.json", year))
		if err := writeJSON(path, records); err != nil {
			return fmt.Errorf("writing %d fixture: %w", year, err)
		}
		log.Printf("%d: %d records -> %s", year, len(records), path)
		all = append(all, records...)
	}

	return printStats(all)
}

func generateYear(rng *rand.Rand, year, n, invalidEvery int) []domain.AccidentRecord {
	records := make([]domain.AccidentRecord, 0, n)
	first := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	days := first.AddDate(1, 0, 0).Sub(first).Hours() / 24

	for i := range n {
		var id any = year*100000 + i
		if invalidEvery > 0 && (i+1)%invalidEvery == 0 {
			id = fmt.Sprintf("X%d", i)
		}
		when := first.Add(time.Duration(rng.Float64()*days*24) * time.Hour).Add(time.Duration(rng.IntN(60)) * time.Minute)
		street := streets[rng.IntN(len(streets))]

		records = append(records, domain.AccidentRecord{
			"$type":      accidentType,
			"id":         id,
			"lat":        round(51.28+rng.Float64()*0.41, 6),
			"lon":        round(-0.51+rng.Float64()*0.84, 6),
			"location":   "On " + street + " Near The Junction With " + streets[rng.IntN(len(streets))],
			"date":       when.Format("2006-01-02T15:04:05Z"),
			"severity":   severities[rng.IntN(len(severities))],
			"borough":    boroughs[rng.IntN(len(boroughs))],
			"casualties": casualties(rng),
			"vehicles":   vehicleList(rng),
		})
	}
	return records
}

func casualties(rng *rand.Rand) []map[string]any {
	out := make([]map[string]any, 1+rng.IntN(3))
	for i := range out {
		out[i] = map[string]any{
			"$type":    casualtyType,
			"age":      rng.IntN(90),
			"class":    classes[rng.IntN(len(classes))],
			"severity": severities[rng.IntN(len(severities))],
		}
	}
	return out
}

func vehicleList(rng *rand.Rand) []map[string]any {
	out := make([]map[string]any, rng.IntN(3))
	for i := range out {
		out[i] = map[string]any{
			"$type": vehicleType,
			"type":  vehicles[rng.IntN(len(vehicles))],
		}
	}
	return out
}

func round(v float64, places int) float64 {
	p := 1.0
	for range places {
		p *= 10
	}
	return float64(int64(v*p+0.5)) / p
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

// printStats runs the fixtures through the CSV artifact writer and the
// normalizer, so the reported counts match what the load stage will commit.
func printStats(records []domain.AccidentRecord) error {
	dir, err := os.MkdirTemp("", "genmock")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	gz, err := rawstore.WriteCSV(records, filepath.Join(dir, "fixtures.csv.gz"))
	if err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	path, err := rawstore.Decompress(gz)
	if err != nil {
		return fmt.Errorf("decompress: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader, err := rawstore.NewChunkReader(f, len(records)+1)
	if err != nil {
		return err
	}
	rows, err := reader.Next()
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	result := domain.Normalize(rows, slog.New(slog.NewTextHandler(io.Discard, nil)))

	bySeverity := map[string]int{}
	byBorough := map[string]int{}
	for _, r := range result.Rows {
		if r.Severity != nil {
			bySeverity[*r.Severity]++
		}
		if r.Borough != nil {
			byBorough[*r.Borough]++
		}
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Generated: %d\n", len(records))
	fmt.Printf("Loadable: %d, dropped: %d\n", len(result.Rows), result.Dropped)
	fmt.Printf("By severity: fatal=%d, serious=%d, slight=%d\n", bySeverity["Fatal"], bySeverity["Serious"], bySeverity["Slight"])

	names := make([]string, 0, len(byBorough))
	for b := range byBorough {
		names = append(names, b)
	}
	sort.Slice(names, func(i, j int) bool { return byBorough[names[i]] > byBorough[names[j]] })
	fmt.Printf("Boroughs (%d):", len(names))
	for _, b := range names {
		fmt.Printf(" %s=%d", b, byBorough[b])
	}
	fmt.Println()
	return nil
}
