package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"

	"github.com/couchcryptid/accidents-etl/internal/pipeline"
)

var (
	bold  = color.New(color.Bold)
	green = color.New(color.FgGreen)
	red   = color.New(color.FgRed)
)

func printIngestSummary(w io.Writer, r pipeline.IngestReport) {
	bold.Fprintln(w, "Ingest summary")
	fmt.Fprintf(w, "  years fetched:  %d\n", r.YearsFetched)
	fmt.Fprintf(w, "  years skipped:  %d\n", r.YearsSkipped)
	fmt.Fprintf(w, "  records:        %d\n", r.Records)
	fmt.Fprintf(w, "  uploaded:       %d\n", r.Uploaded)
	if r.UploadFailures > 0 {
		red.Fprintf(w, "  upload errors:  %d\n", r.UploadFailures)
	}
	for _, a := range r.Artifacts {
		fmt.Fprintf(w, "  %-5s %d  %s\n", a.Format, a.Year, a.Path)
	}
}

func printLoadSummary(w io.Writer, r pipeline.LoadReport) {
	bold.Fprintln(w, "Load summary")
	for _, a := range r.Artifacts {
		name := filepath.Base(a.Path)
		if a.Err != nil {
			red.Fprintf(w, "  FAIL %s: %v (%d rows committed)\n", name, a.Err, a.Rows)
			continue
		}
		green.Fprintf(w, "  ok   %s: %d rows, %d dropped\n", name, a.Rows, a.Dropped)
	}
	fmt.Fprintf(w, "  rows loaded:    %d\n", r.Rows)
	fmt.Fprintf(w, "  rows dropped:   %d\n", r.Dropped)
	if r.Failed > 0 {
		red.Fprintf(w, "  failed:         %d\n", r.Failed)
	}
}

func printWeatherSummary(w io.Writer, table string, r pipeline.WeatherReport) {
	bold.Fprintf(w, "Weather loaded into %s\n", table)
	fmt.Fprintf(w, "  rows loaded:    %d\n", r.Rows)
	fmt.Fprintf(w, "  rows dropped:   %d\n", r.Dropped)
	if r.Key != "" {
		fmt.Fprintf(w, "  archived as:    %s\n", r.Key)
	}
}
