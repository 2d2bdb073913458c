package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	flag "github.com/juju/gnuflag"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/kernel-universe/internal/api"
	"github.com/talgya/kernel-universe/internal/catalyst"
	"github.com/talgya/kernel-universe/internal/engine"
	"github.com/talgya/kernel-universe/internal/persistence"
)

func runServer(args []string) error {
	defaults := engine.DefaultConfig()

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	addr := fs.String("addr", envOrDefault("KUNIVERSE_ADDR", ":8000"), "HTTP listen address")
	dbPath := fs.String("db", envOrDefault("KUNIVERSE_DB", "data/kernel_universe.db"), "SQLite snapshot database")
	streamFPS := fs.Float64("stream-fps", api.DefaultStreamFPS, "SSE frames and snapshot saves per second")
	stepRate := fs.Float64("step-rate", engine.DefaultStepRate, "simulation ticks per second")
	seed := fs.Int64("seed", defaults.Seed, "random seed")
	grid := fs.Int("grid", defaults.GridSize, "grid size N")
	pattern := fs.String("pattern", string(catalyst.PatternUniform), "initial catalyst pattern (uniform or simplex)")
	logLevel := fs.String("log-level", "info", "log level (debug, info, warn, error)")
	if err := fs.Parse(true, args); err != nil {
		return err
	}
	if err := setupLogger(os.Stderr, *logLevel); err != nil {
		return err
	}
	if *streamFPS <= 0 {
		return fmt.Errorf("stream-fps must be positive, got %v", *streamFPS)
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

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := persistence.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database opened", "path", *dbPath)

	// ── Simulation ────────────────────────────────────────────────────
	sim := engine.NewSimulation(cfg)
	eng := engine.NewEngine(sim)
	if _, err := eng.Control(engine.Control{StepRate: stepRate}); err != nil {
		return err
	}
	slog.Info("simulation initialized",
		"run_id", sim.RunID(),
		"grid", cfg.GridSize,
		"seed", cfg.Seed,
		"cores", sim.CoreCount(),
	)

	writer := persistence.NewWriteBehind(db, persistence.StateKey)
	stepped := watchSteps(eng)

	srv := &api.Server{
		Eng:       eng,
		DB:        db,
		Addr:      *addr,
		AdminKey:  os.Getenv("KUNIVERSE_ADMIN_KEY"),
		StreamFPS: *streamFPS,

		TrustProxy: os.Getenv("KUNIVERSE_TRUST_PROXY") != "",
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })
	g.Go(func() error {
		persistLoop(ctx, eng, writer, stepped, *streamFPS)
		return nil
	})

	err = g.Wait()

	// ── Final flush ───────────────────────────────────────────────────
	final := eng.State()
	writer.Submit(final)
	writer.Close()
	if metaErr := db.SaveMeta("last_tick", strconv.Itoa(final.Tick)); metaErr != nil {
		slog.Error("failed to save meta", "error", metaErr)
	}
	if metaErr := db.SaveMeta("last_run_id", final.RunID); metaErr != nil {
		slog.Error("failed to save meta", "error", metaErr)
	}
	slog.Info("shutdown complete",
		"tick", final.Tick,
		"total_blooms", final.TotalBlooms,
		"saves", writer.Saved(),
		"failed_saves", writer.Failed(),
	)
	return err
}

// watchSteps hooks the engine so every completed tick marks the state dirty.
func watchSteps(eng *engine.Engine) <-chan struct{} {
	stepped := make(chan struct{}, 1)
	eng.OnStep = func(engine.StepStats) {
		select {
		case stepped <- struct{}{}:
		default:
		}
	}
	return stepped
}

// persistLoop hands the latest state to the writer at most fps times a
// second, and only when a tick ran or the run was reset since the last save.
func persistLoop(ctx context.Context, eng *engine.Engine, writer *persistence.WriteBehind, stepped <-chan struct{}, fps float64) {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
	defer ticker.Stop()

	lastRun := ""
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		dirty := false
		select {
		case <-stepped:
			dirty = true
		default:
		}
		snap := eng.State()
		if !dirty && snap.RunID == lastRun {
			continue
		}
		writer.Submit(snap)
		lastRun = snap.RunID
	}
}
