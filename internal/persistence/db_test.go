package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/talgya/kernel-universe/internal/agents"
	"github.com/talgya/kernel-universe/internal/engine"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testSnapshot(runID string, tick int, events ...engine.BloomEvent) engine.Snapshot {
	return engine.Snapshot{
		RunID:         runID,
		Tick:          tick,
		Temperature:   [][]float64{{0.1, 0.2}, {0.3, 0.4}},
		CatalystUpper: [][]float64{{0.05, 0.06}, {0.07, 0.08}},
		CatalystLower: [][]float64{{0, 0}, {0, 0}},
		Cores: []agents.CoreView{
			{X: 1, Y: 0, ExposureCount: 3, LastBloomTick: -1},
		},
		TotalBlooms: len(events),
		BloomEvents: events,
		Runtime:     1.5,
	}
}

func TestSaveAndLoadState(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	snap := testSnapshot("run-a", 10, engine.BloomEvent{X: 1, Y: 0, Tick: 8})
	if err := db.SaveState(ctx, StateKey, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := db.LoadState(ctx, StateKey)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(snap, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadStateMissing(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.LoadState(context.Background(), "nope"); !errors.Is(err, ErrNoState) {
		t.Fatalf("expected ErrNoState, got %v", err)
	}
}

func TestSaveStateAppendsBloomEvents(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	e1 := engine.BloomEvent{X: 1, Y: 1, Tick: 8}
	e2 := engine.BloomEvent{X: 2, Y: 2, Tick: 10}
	e3 := engine.BloomEvent{X: 3, Y: 3, Tick: 12}

	if err := db.SaveState(ctx, StateKey, testSnapshot("run-a", 8, e1)); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveState(ctx, StateKey, testSnapshot("run-a", 12, e1, e2, e3)); err != nil {
		t.Fatal(err)
	}

	events, err := db.BloomEvents(ctx, StateKey, 0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]engine.BloomEvent{e1, e2, e3}, events); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}

	recent, err := db.BloomEvents(ctx, StateKey, 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]engine.BloomEvent{e2, e3}, recent); diff != "" {
		t.Fatalf("limited events mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveStateNewRunReplacesEvents(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	old := engine.BloomEvent{X: 1, Y: 1, Tick: 8}
	fresh := engine.BloomEvent{X: 4, Y: 4, Tick: 2}

	if err := db.SaveState(ctx, StateKey, testSnapshot("run-a", 20, old, old, old)); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveState(ctx, StateKey, testSnapshot("run-b", 2, fresh)); err != nil {
		t.Fatal(err)
	}

	got, err := db.LoadState(ctx, StateKey)
	if err != nil {
		t.Fatal(err)
	}
	if got.RunID != "run-b" || len(got.BloomEvents) != 1 || got.BloomEvents[0] != fresh {
		t.Fatalf("stale history survived a new run: %+v", got.BloomEvents)
	}
}

func TestClearState(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.SaveState(ctx, StateKey, testSnapshot("run-a", 1, engine.BloomEvent{})); err != nil {
		t.Fatal(err)
	}
	if err := db.ClearState(ctx, StateKey); err != nil {
		t.Fatal(err)
	}
	if _, err := db.LoadState(ctx, StateKey); !errors.Is(err, ErrNoState) {
		t.Fatalf("expected ErrNoState after clear, got %v", err)
	}
	events, err := db.BloomEvents(ctx, StateKey, 0)
	if err != nil || len(events) != 0 {
		t.Fatalf("bloom events survived clear: %v %v", events, err)
	}
}

func TestMeta(t *testing.T) {
	db := openTestDB(t)
	if err := db.SaveMeta("last_tick", "42"); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveMeta("last_tick", "43"); err != nil {
		t.Fatal(err)
	}
	v, err := db.GetMeta("last_tick")
	if err != nil || v != "43" {
		t.Fatalf("GetMeta = %q, %v", v, err)
	}
}

func TestSimulationSnapshotRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	cfg := engine.DefaultConfig()
	cfg.GridSize = 12
	sim := engine.NewSimulation(cfg)
	for i := 0; i < 30; i++ {
		sim.Step()
	}
	snap := sim.State()

	if err := db.SaveState(ctx, StateKey, snap); err != nil {
		t.Fatal(err)
	}
	got, err := db.LoadState(ctx, StateKey)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(snap, got); diff != "" {
		t.Fatalf("simulation snapshot mismatch (-want +got):\n%s", diff)
	}
}

type recordingSaver struct {
	mu    sync.Mutex
	ticks []int
	err   error
}

func (r *recordingSaver) SaveState(_ context.Context, _ string, snap engine.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.ticks = append(r.ticks, snap.Tick)
	return nil
}

func TestWriteBehindFlushesLatestOnClose(t *testing.T) {
	rec := &recordingSaver{}
	wb := NewWriteBehind(rec, StateKey)
	for tick := 1; tick <= 50; tick++ {
		wb.Submit(engine.Snapshot{Tick: tick})
	}
	wb.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.ticks) == 0 || rec.ticks[len(rec.ticks)-1] != 50 {
		t.Fatalf("latest snapshot not saved last: %v", rec.ticks)
	}
	for i := 1; i < len(rec.ticks); i++ {
		if rec.ticks[i] <= rec.ticks[i-1] {
			t.Fatalf("saves out of order: %v", rec.ticks)
		}
	}
	if wb.Saved() != uint64(len(rec.ticks)) {
		t.Fatalf("Saved() = %d, want %d", wb.Saved(), len(rec.ticks))
	}
}

func TestWriteBehindCountsFailures(t *testing.T) {
	rec := &recordingSaver{err: errors.New("disk full")}
	wb := NewWriteBehind(rec, StateKey)
	wb.Submit(engine.Snapshot{Tick: 1})
	wb.Close()
	wb.Close()

	if wb.Failed() != 1 || wb.Saved() != 0 {
		t.Fatalf("failed=%d saved=%d", wb.Failed(), wb.Saved())
	}
}

func TestWriteBehindWithDB(t *testing.T) {
	db := openTestDB(t)
	wb := NewWriteBehind(db, StateKey)
	wb.Submit(testSnapshot("run-a", 7))
	wb.Close()

	got, err := db.LoadState(context.Background(), StateKey)
	if err != nil {
		t.Fatal(err)
	}
	if got.Tick != 7 {
		t.Fatalf("tick = %d, want 7", got.Tick)
	}
}
