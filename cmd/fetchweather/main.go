// Command fetchweather pulls the hourly Open-Meteo forecast for a coordinate
// and writes the raw dataset as CSV, handy for inspecting what the api source
// feeds into the pipeline.
//
// Usage:
//
//	go run ./cmd/fetchweather -lat 48.8566 -lon 2.3522 -out out/weather.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"time"

	"github.com/energitic/windfarm-etl/internal/adapter/csvfile"
	"github.com/energitic/windfarm-etl/internal/adapter/openmeteo"
	"github.com/energitic/windfarm-etl/internal/observability"
)

const defaultBaseURL = "https://api.open-meteo.com/v1/forecast"

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	lat := flag.Float64("lat", 48.8566, "latitude of the site")
	lon := flag.Float64("lon", 2.3522, "longitude of the site")
	baseURL := flag.String("base-url", defaultBaseURL, "Open-Meteo forecast endpoint")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	out := flag.String("out", "", "output CSV path")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *lat < -90 || *lat > 90 {
		return fmt.Errorf("latitude %g out of range", *lat)
	}
	if *lon < -180 || *lon > 180 {
		return fmt.Errorf("longitude %g out of range", *lon)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := openmeteo.NewClient(*baseURL, *timeout, observability.NewMetrics(), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ds, err := client.FetchHourly(ctx, *lat, *lon)
	if err != nil {
		return fmt.Errorf("fetching forecast: %w", err)
	}

	if err := csvfile.NewWriter(*out).Load(ctx, ds); err != nil {
		return fmt.Errorf("writing %s: %w", *out, err)
	}

	log.Printf("wrote %d hourly rows: %s", ds.Len(), *out)
	return nil
}
