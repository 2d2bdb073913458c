// Package engine provides the simulation and the tick loop that drives it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/talgya/kernel-universe/internal/catalyst"
)

// Engine limits.
const (
	DefaultStepRate = 10.0 // ticks per second
	MaxStepRate     = 1000.0
	HistoryLimit    = 1000 // StepStats kept for the stats endpoint
)

// Control errors.
var (
	ErrInvalidStepRate = errors.New("step rate must be in (0, 1000]")
	ErrInvalidPattern  = errors.New("catalyst pattern must be uniform or simplex")
	ErrInvertedBand    = errors.New("T_MIN must not exceed T_MAX")
)

// ParameterError reports a rejected parameter update.
type ParameterError struct {
	Name    string
	Value   float64
	Unknown bool
}

func (e *ParameterError) Error() string {
	if e.Unknown {
		return "unknown parameter: " + e.Name
	}
	return fmt.Sprintf("invalid value %v for parameter %s", e.Value, e.Name)
}

// Engine is the single owner of a Simulation. It drives ticks on a timer
// and serializes every read and control call behind one mutex.
type Engine struct {
	mu       sync.Mutex
	sim      *Simulation
	stepRate float64
	paused   bool
	running  bool
	history  []StepStats

	// OnStep, if set, runs after every tick outside the lock.
	OnStep func(StepStats)
}

// Status is a compact summary of the engine and its simulation.
type Status struct {
	RunID         string  `json:"run_id"`
	Tick          int     `json:"tick"`
	Paused        bool    `json:"paused"`
	Running       bool    `json:"running"`
	StepRate      float64 `json:"step_rate"`
	Cores         int     `json:"cores"`
	TotalBlooms   int     `json:"total_blooms"`
	TotalCatalyst float64 `json:"total_catalyst"`
	Runtime       float64 `json:"runtime"`
}

// Control is a batch of control-plane changes. Nil fields are left alone.
type Control struct {
	Paused     *bool              `json:"paused,omitempty"`
	Reset      bool               `json:"reset,omitempty"`
	Seed       *int64             `json:"seed,omitempty"`
	StepRate   *float64           `json:"step_rate,omitempty"`
	Pattern    *string            `json:"pattern,omitempty"` // used by the next reset
	Parameters map[string]float64 `json:"parameters,omitempty"`
}

// ControlResult echoes the engine settings after a Control call.
type ControlResult struct {
	Paused     bool               `json:"paused"`
	StepRate   float64            `json:"step_rate"`
	Pattern    string             `json:"pattern"`
	Parameters map[string]float64 `json:"parameters"`
}

// NewEngine wraps sim with default settings.
func NewEngine(sim *Simulation) *Engine {
	return &Engine{
		sim:      sim,
		stepRate: DefaultStepRate,
	}
}

// Run advances the simulation at the configured rate until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.running = true
	slog.Info("simulation engine started", "tick", e.sim.Tick(), "step_rate", e.stepRate)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		slog.Info("simulation engine stopped", "tick", e.sim.Tick())
		e.mu.Unlock()
	}()

	timer := time.NewTimer(e.interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if !e.Paused() {
			e.Step()
		}
		timer.Reset(e.interval())
	}
}

func (e *Engine) interval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Duration(float64(time.Second) / e.stepRate)
}

// Step advances the simulation by one tick regardless of pause state.
func (e *Engine) Step() StepStats {
	e.mu.Lock()
	stats := e.sim.Step()
	e.history = append(e.history, stats)
	if len(e.history) > HistoryLimit {
		e.history = e.history[len(e.history)-HistoryLimit:]
	}
	if day := e.sim.cfg.DayTicks; day > 0 && stats.Tick%day == 0 {
		slog.Info("daily report",
			"tick", stats.Tick,
			"cores", e.sim.CoreCount(),
			"total_blooms", stats.TotalBlooms,
			"total_catalyst", fmt.Sprintf("%.6f", stats.TotalCatalyst),
		)
	}
	onStep := e.OnStep
	e.mu.Unlock()

	if onStep != nil {
		onStep(stats)
	}
	return stats
}

// State returns a deep copy of the simulation state.
func (e *Engine) State() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sim.State()
}

// History returns the most recent StepStats, oldest first.
func (e *Engine) History() []StepStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]StepStats, len(e.history))
	copy(out, e.history)
	return out
}

// Paused reports whether timed stepping is suspended.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Parameters returns the current parameter map.
func (e *Engine) Parameters() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sim.cfg.Parameters()
}

// Status returns a summary of the engine.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		RunID:         e.sim.RunID(),
		Tick:          e.sim.Tick(),
		Paused:        e.paused,
		Running:       e.running,
		StepRate:      e.stepRate,
		Cores:         e.sim.CoreCount(),
		TotalBlooms:   e.sim.TotalBlooms(),
		TotalCatalyst: e.sim.TotalCatalyst(),
		Runtime:       e.sim.Elapsed().Seconds(),
	}
}

// Control applies c atomically: every parameter is validated against a copy
// of the configuration first, and nothing changes if any of them is
// rejected. Parameters are applied before a requested reset so seed and
// population changes take effect immediately.
func (e *Engine) Control(c Control) (ControlResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c.StepRate != nil && (*c.StepRate <= 0 || *c.StepRate > MaxStepRate) {
		return ControlResult{}, ErrInvalidStepRate
	}

	next := e.sim.cfg
	if c.Pattern != nil && !next.SetCatalystPattern(catalyst.Pattern(*c.Pattern)) {
		return ControlResult{}, ErrInvalidPattern
	}
	// Sorted so the reported name is stable when several are bad.
	for _, name := range slices.Sorted(maps.Keys(c.Parameters)) {
		value := c.Parameters[name]
		if !KnownParameter(name) && !strings.EqualFold(name, GridSizeParam) {
			return ControlResult{}, &ParameterError{Name: name, Value: value, Unknown: true}
		}
		if !next.setValue(name, value) {
			return ControlResult{}, &ParameterError{Name: name, Value: value}
		}
	}
	if !next.Valid() {
		return ControlResult{}, ErrInvertedBand
	}
	e.sim.cfg = next
	if len(c.Parameters) > 0 {
		slog.Info("parameters updated", "count", len(c.Parameters))
	}
	if c.Pattern != nil {
		slog.Info("catalyst pattern changed", "pattern", next.CatalystPattern)
	}

	if c.Paused != nil {
		e.paused = *c.Paused
		slog.Info("pause changed", "paused", e.paused)
	}
	if c.StepRate != nil {
		e.stepRate = *c.StepRate
		slog.Info("step rate changed", "step_rate", e.stepRate)
	}
	if c.Seed != nil {
		e.sim.ResetSeed(*c.Seed)
		e.history = nil
		slog.Info("simulation reset", "seed", *c.Seed, "run_id", e.sim.RunID())
	} else if c.Reset {
		e.sim.Reset()
		e.history = nil
		slog.Info("simulation reset", "seed", e.sim.cfg.Seed, "run_id", e.sim.RunID())
	}

	return ControlResult{
		Paused:     e.paused,
		StepRate:   e.stepRate,
		Pattern:    string(e.sim.cfg.CatalystPattern),
		Parameters: e.sim.cfg.Parameters(),
	}, nil
}
