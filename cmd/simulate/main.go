// Command simulate generates a market history offline and writes it as CSV.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/maejeom/market-game/internal/calendar"
	"github.com/maejeom/market-game/internal/export"
	"github.com/maejeom/market-game/internal/ledger"
	"github.com/maejeom/market-game/internal/registry"
	"github.com/maejeom/market-game/internal/simulator"
)

func main() {
	var (
		seed    = flag.Int64("seed", 42, "random seed")
		horizon = flag.Int("horizon", ledger.DefaultHorizon, "number of days to simulate")
		start   = flag.String("start", "", "date of day 1 (YYYY-MM-DD, default today)")
		calFile = flag.String("calendar", "", "YAML event schedule (default built-in)")
		outPath = flag.String("out", "-", "output file, - for stdout")
	)
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := run(*seed, *horizon, *start, *calFile, *outPath); err != nil {
		slog.Error("simulate failed", "err", err)
		os.Exit(1)
	}
}

func run(seed int64, horizon int, start, calFile, outPath string) error {
	cal := calendar.Default()
	if calFile != "" {
		var err error
		if cal, err = calendar.Load(calFile); err != nil {
			return err
		}
	}

	opts := []simulator.Option{simulator.WithCalendar(cal)}
	if start != "" {
		t, err := time.Parse(simulator.DateLayout, start)
		if err != nil {
			return fmt.Errorf("start date %q: %w", start, err)
		}
		opts = append(opts, simulator.WithStartDate(t))
	}

	series, err := simulator.New(registry.Default(), opts...).Generate(seed, horizon)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if outPath != "-" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	if err := export.WriteCSV(out, series); err != nil {
		return err
	}
	slog.Info("series written", "seed", seed, "horizon", horizon, "rows", series.Len(), "out", outPath)
	return nil
}
