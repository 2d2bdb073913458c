package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	flag "github.com/juju/gnuflag"
	"github.com/ncruces/go-strftime"

	"github.com/talgya/kernel-universe/internal/catalyst"
	"github.com/talgya/kernel-universe/internal/engine"
)

const progressEvery = 100

func runHeadless(args []string, stdout io.Writer) error {
	defaults := engine.DefaultConfig()

	fs := flag.NewFlagSet("headless", flag.ContinueOnError)
	steps := fs.Int("steps", 1000, "number of ticks to run")
	output := fs.String("output", "", "stats JSON path, strftime directives expanded (e.g. stats-%Y%m%d-%H%M%S.json)")
	seed := fs.Int64("seed", defaults.Seed, "random seed")
	grid := fs.Int("grid", defaults.GridSize, "grid size N")
	pattern := fs.String("pattern", string(catalyst.PatternUniform), "initial catalyst pattern (uniform or simplex)")
	logLevel := fs.String("log-level", "info", "log level (debug, info, warn, error)")
	var sets setFlags
	fs.Var(&sets, "set", "parameter override NAME=VALUE (repeatable); NAME is one of "+strings.Join(engine.ParameterNames(), ", "))
	if err := fs.Parse(true, args); err != nil {
		return err
	}
	if err := setupLogger(os.Stderr, *logLevel); err != nil {
		return err
	}

	if *steps < 0 {
		return fmt.Errorf("steps must be >= 0, got %d", *steps)
	}
	if *grid <= 0 {
		return fmt.Errorf("grid must be positive, got %d", *grid)
	}

	cfg := defaults
	cfg.GridSize = *grid
	cfg.Seed = *seed
	if !cfg.SetCatalystPattern(catalyst.Pattern(*pattern)) {
		return fmt.Errorf("unknown catalyst pattern %q", *pattern)
	}
	for _, o := range sets {
		if !cfg.SetParameter(o.Name, o.Value) {
			return fmt.Errorf("invalid parameter override %s=%v", o.Name, o.Value)
		}
	}

	sim := engine.NewSimulation(cfg)
	slog.Info("headless run starting",
		"run_id", sim.RunID(),
		"steps", *steps,
		"grid", cfg.GridSize,
		"seed", cfg.Seed,
		"cores", sim.CoreCount(),
	)

	start := time.Now()
	history := make([]engine.StepStats, 0, *steps)
	for i := 0; i < *steps; i++ {
		stats := sim.Step()
		history = append(history, stats)
		if stats.Tick%progressEvery == 0 {
			slog.Info("progress",
				"tick", stats.Tick,
				"total_blooms", stats.TotalBlooms,
				"cores", sim.CoreCount(),
				"total_catalyst", fmt.Sprintf("%.6f", stats.TotalCatalyst),
			)
		}
	}

	fmt.Fprintf(stdout, "ran %s steps in %s: %s blooms, %s cores\n",
		humanize.Comma(int64(*steps)),
		time.Since(start).Round(time.Millisecond),
		humanize.Comma(int64(sim.TotalBlooms())),
		humanize.Comma(int64(sim.CoreCount())),
	)

	if *output == "" {
		return nil
	}
	path := strftime.Format(*output, start)
	size, err := writeStats(path, history)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s (%s)\n", path, humanize.Bytes(uint64(size)))
	return nil
}

// writeStats writes history as an indented JSON array and returns the file size.
func writeStats(path string, history []engine.StepStats) (int, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create output dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode stats: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("write stats: %w", err)
	}
	return len(data), nil
}
