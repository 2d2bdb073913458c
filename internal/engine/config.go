package engine

import (
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/talgya/kernel-universe/internal/agents"
	"github.com/talgya/kernel-universe/internal/catalyst"
)

// Config holds every tunable of one Simulation. Each simulation owns its
// own copy; nothing here is shared between instances.
type Config struct {
	GridSize        int              // Fixed for the lifetime of a Simulation
	Seed            int64            // Used by every Reset
	InitialCores    int              // Cores placed at unique cells on Reset
	CatalystPattern catalyst.Pattern // Upper-layer seeding on Reset

	CThresh      float64 // Catalyst needed under a core to bloom
	EmitFraction float64 // Share of the upper layer moved down per emit tick
	AdvectAlpha  float64 // Rightward advection coefficient in collect mode
	TMin         float64 // Favorable temperature band, inclusive
	TMax         float64

	TauTemp     int // Consecutive in-band ticks before a bloom
	TauCatalyst int // Reported only; no physics reads it
	TauRefract  int // Cooldown after a bloom
	SpawnS      int // Cores spawned per bloom
	DayTicks    int // Reported only; no physics reads it
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() Config {
	return Config{
		GridSize:        100,
		Seed:            42,
		InitialCores:    10,
		CatalystPattern: catalyst.PatternUniform,
		CThresh:         0.2,
		EmitFraction:    0.6,
		AdvectAlpha:     0.05,
		TMin:            0.40,
		TMax:            0.55,
		TauTemp:         8,
		TauCatalyst:     12,
		TauRefract:      12,
		SpawnS:          2,
		DayTicks:        100,
	}
}

// Thresholds extracts the core state-machine constants.
func (c Config) Thresholds() agents.Thresholds {
	return agents.Thresholds{
		TMin:       c.TMin,
		TMax:       c.TMax,
		CThresh:    c.CThresh,
		TauTemp:    c.TauTemp,
		TauRefract: c.TauRefract,
	}
}

type paramKind uint8

const (
	kindFloat    paramKind = iota // any finite value
	kindFraction                  // finite, within [0, 1]
	kindCount                     // integral, >= 0
	kindSeed                      // integral
)

type param struct {
	kind paramKind
	get  func(c *Config) float64
	set  func(c *Config, v float64)
}

// GridSizeParam names the immutable grid size in Parameters output.
const GridSizeParam = "GRID_SIZE"

var params = map[string]param{
	"C_THRESH": {kindFloat,
		func(c *Config) float64 { return c.CThresh },
		func(c *Config, v float64) { c.CThresh = v }},
	"EMIT_FRACTION": {kindFraction,
		func(c *Config) float64 { return c.EmitFraction },
		func(c *Config, v float64) { c.EmitFraction = v }},
	"ADVECT_ALPHA": {kindFraction,
		func(c *Config) float64 { return c.AdvectAlpha },
		func(c *Config, v float64) { c.AdvectAlpha = v }},
	"T_MIN": {kindFloat,
		func(c *Config) float64 { return c.TMin },
		func(c *Config, v float64) { c.TMin = v }},
	"T_MAX": {kindFloat,
		func(c *Config) float64 { return c.TMax },
		func(c *Config, v float64) { c.TMax = v }},
	"TAU_TEMP": {kindCount,
		func(c *Config) float64 { return float64(c.TauTemp) },
		func(c *Config, v float64) { c.TauTemp = int(v) }},
	"TAU_CATALYST": {kindCount,
		func(c *Config) float64 { return float64(c.TauCatalyst) },
		func(c *Config, v float64) { c.TauCatalyst = int(v) }},
	"TAU_REFRACT": {kindCount,
		func(c *Config) float64 { return float64(c.TauRefract) },
		func(c *Config, v float64) { c.TauRefract = int(v) }},
	"SPAWN_S": {kindCount,
		func(c *Config) float64 { return float64(c.SpawnS) },
		func(c *Config, v float64) { c.SpawnS = int(v) }},
	"INITIAL_CORES": {kindCount,
		func(c *Config) float64 { return float64(c.InitialCores) },
		func(c *Config, v float64) { c.InitialCores = int(v) }},
	"RNG_SEED": {kindSeed,
		func(c *Config) float64 { return float64(c.Seed) },
		func(c *Config, v float64) { c.Seed = int64(v) }},
	"DAY_TICKS": {kindCount,
		func(c *Config) float64 { return float64(c.DayTicks) },
		func(c *Config, v float64) { c.DayTicks = int(v) }},
}

// KnownParameter reports whether name is a settable parameter.
func KnownParameter(name string) bool {
	_, ok := params[strings.ToUpper(name)]
	return ok
}

// ParameterNames returns the settable parameter names in sorted order.
func ParameterNames() []string {
	return slices.Sorted(maps.Keys(params))
}

// SetParameter updates the named parameter. It returns false, leaving c
// untouched, when the name is unknown, names the immutable grid size, the
// value is invalid for that parameter, or the update would leave
// T_MIN > T_MAX.
func (c *Config) SetParameter(name string, value float64) bool {
	next := *c
	if !next.setValue(name, value) || !next.Valid() {
		return false
	}
	*c = next
	return true
}

// setValue checks value against the range of the named parameter and stores
// it. Relations between parameters are left to Valid so a batch can pass
// through a transient state.
func (c *Config) setValue(name string, value float64) bool {
	p, ok := params[strings.ToUpper(name)]
	if !ok {
		return false
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}

	switch p.kind {
	case kindFraction:
		if value < 0 || value > 1 {
			return false
		}
	case kindCount:
		if value < 0 || value != math.Trunc(value) || value > math.MaxInt32 {
			return false
		}
	case kindSeed:
		if value != math.Trunc(value) || math.Abs(value) > 1<<53 {
			return false
		}
	}

	p.set(c, value)
	return true
}

// Valid reports whether the cross-parameter constraints hold.
func (c Config) Valid() bool {
	return c.TMin <= c.TMax
}

// SetCatalystPattern selects the upper-layer seeding used by the next Reset.
func (c *Config) SetCatalystPattern(p catalyst.Pattern) bool {
	switch p {
	case catalyst.PatternUniform, catalyst.PatternSimplex:
		c.CatalystPattern = p
		return true
	}
	return false
}

// Parameters returns every named parameter, including the read-only grid size.
func (c Config) Parameters() map[string]float64 {
	out := make(map[string]float64, len(params)+1)
	for name, p := range params {
		out[name] = p.get(&c)
	}
	out[GridSizeParam] = float64(c.GridSize)
	return out
}
