// Simulation ties the temperature and catalyst fields to the core population
// and advances them one tick at a time.
package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/talgya/kernel-universe/internal/agents"
	"github.com/talgya/kernel-universe/internal/catalyst"
	"github.com/talgya/kernel-universe/internal/entropy"
	"github.com/talgya/kernel-universe/internal/weather"
)

// Mode is the catalyst physics regime of a tick.
type Mode string

const (
	ModeEmit    Mode = "emit"
	ModeCollect Mode = "collect"
)

// ModeForTick returns the regime for a tick: emit on even ticks, collect on odd.
func ModeForTick(tick int) Mode {
	if tick%2 == 0 {
		return ModeEmit
	}
	return ModeCollect
}

// BloomEvent records one bloom.
type BloomEvent struct {
	X    int `json:"x"`
	Y    int `json:"y"`
	Tick int `json:"tick"`
}

// StepStats summarizes one tick. TotalCatalyst lets callers check mass
// conservation from outside the engine.
type StepStats struct {
	Tick           int     `json:"tick"`
	Mode           Mode    `json:"mode"`
	EmitMode       bool    `json:"emit_mode"`
	BloomsThisTick int     `json:"blooms_this_tick"`
	TotalBlooms    int     `json:"total_blooms"`
	TotalCatalyst  float64 `json:"total_catalyst"`
}

// Simulation holds the complete world state. It is not safe for concurrent
// use; Engine serializes access for long-running owners.
type Simulation struct {
	cfg Config

	rng         *entropy.Stream
	temperature *weather.Temperature
	catalyst    *catalyst.Field
	spawner     *agents.Spawner
	cores       []*agents.Core // append-only, creation order

	tick        int
	totalBlooms int
	blooms      []BloomEvent
	startTime   time.Time
	runID       string
}

// NewSimulation creates a simulation from cfg and resets it. A non-positive
// grid size falls back to the default.
func NewSimulation(cfg Config) *Simulation {
	if cfg.GridSize <= 0 {
		cfg.GridSize = DefaultConfig().GridSize
	}
	s := &Simulation{cfg: cfg}
	s.Reset()
	return s
}

// Reset reinitializes all state from the configured seed: fresh stream,
// fresh fields, fresh initial cores, zeroed counters.
func (s *Simulation) Reset() {
	n := s.cfg.GridSize
	s.rng = entropy.NewStream(s.cfg.Seed)

	// Draw order is part of the reproducibility contract:
	// temperature grid, catalyst upper layer, initial core positions.
	s.temperature = weather.NewTemperature(n, s.rng)
	if s.cfg.CatalystPattern == catalyst.PatternSimplex {
		s.catalyst = catalyst.NewNoiseField(n, s.rng)
	} else {
		s.catalyst = catalyst.NewField(n, s.rng)
	}
	s.spawner = agents.NewSpawner(n, s.rng)
	s.cores = s.spawner.SpawnInitial(s.cfg.InitialCores)

	s.tick = 0
	s.totalBlooms = 0
	s.blooms = nil
	s.startTime = time.Now()
	s.runID = uuid.NewString()
}

// ResetSeed sets the configured seed and resets.
func (s *Simulation) ResetSeed(seed int64) {
	s.cfg.Seed = seed
	s.Reset()
}

// Step advances the simulation by exactly one tick.
func (s *Simulation) Step() StepStats {
	s.tick++
	mode := ModeForTick(s.tick)
	emit := mode == ModeEmit

	s.temperature.Scroll()
	if emit {
		s.catalyst.Emit(s.cfg.EmitFraction)
	} else {
		s.catalyst.Collect(s.cfg.AdvectAlpha)
	}

	th := s.cfg.Thresholds()
	blooms := 0

	// Only cores that existed at the start of the tick are updated; spawns
	// appended below wait for the next tick.
	generation := len(s.cores)
	for i := 0; i < generation; i++ {
		c := s.cores[i]
		x, y := c.X(), c.Y()
		if !c.Update(s.tick, s.temperature.At(x, y), s.catalyst.Upper.At(x, y), emit, th) {
			continue
		}
		blooms++
		s.totalBlooms++
		s.blooms = append(s.blooms, BloomEvent{X: x, Y: y, Tick: s.tick})
		s.cores = append(s.cores, s.spawner.SpawnNear(x, y, s.cfg.SpawnS)...)
	}

	return StepStats{
		Tick:           s.tick,
		Mode:           mode,
		EmitMode:       emit,
		BloomsThisTick: blooms,
		TotalBlooms:    s.totalBlooms,
		TotalCatalyst:  s.catalyst.TotalMass(),
	}
}

// SetParameter updates one named configuration value on this instance.
// Grid size is immutable; unknown names and invalid values return false
// without side effect.
func (s *Simulation) SetParameter(name string, value float64) bool {
	return s.cfg.SetParameter(name, value)
}

// Config returns a copy of the current configuration.
func (s *Simulation) Config() Config { return s.cfg }

// Tick returns the most recently processed tick.
func (s *Simulation) Tick() int { return s.tick }

// TotalBlooms returns the cumulative bloom count.
func (s *Simulation) TotalBlooms() int { return s.totalBlooms }

// CoreCount returns the current population size.
func (s *Simulation) CoreCount() int { return len(s.cores) }

// TotalCatalyst returns the combined mass of both catalyst layers.
func (s *Simulation) TotalCatalyst() float64 { return s.catalyst.TotalMass() }

// RunID identifies the current run; every Reset issues a new one.
func (s *Simulation) RunID() string { return s.runID }

// Elapsed returns wall-clock time since the last Reset.
func (s *Simulation) Elapsed() time.Duration { return time.Since(s.startTime) }
