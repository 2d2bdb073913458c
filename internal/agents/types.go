// Package agents provides the bloom-capable cores and their spawner.
package agents

// Thresholds are the state-machine constants a core is evaluated against.
// The simulation passes its current configuration on every update.
type Thresholds struct {
	TMin       float64 // Inclusive lower bound of the favorable temperature band
	TMax       float64 // Inclusive upper bound of the favorable temperature band
	CThresh    float64 // Minimum catalyst under the core for a bloom
	TauTemp    int     // Consecutive in-band ticks required before a bloom
	TauRefract int     // Cooldown ticks after a bloom
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TMin:       0.40,
		TMax:       0.55,
		CThresh:    0.2,
		TauTemp:    8,
		TauRefract: 12,
	}
}

// Core is a single bloom-capable unit pinned to one grid cell.
//
// Its state is derived from the counters rather than tagged: a core is
// dormant while RefractoryCountdown > 0, exposed otherwise, and bloomed only
// during the tick on which it fires.
type Core struct {
	x, y int

	ExposureCount       int
	Bloomed             bool
	RefractoryCountdown int
	TotalBlooms         int
	LastBloomTick       int // -1 until the first bloom
}

// CoreView is the serializable view of a core.
type CoreView struct {
	X                   int  `json:"x"`
	Y                   int  `json:"y"`
	ExposureCount       int  `json:"temp_exposure_count"`
	Bloomed             bool `json:"bloomed"`
	RefractoryCountdown int  `json:"refractory_countdown"`
	TotalBlooms         int  `json:"total_blooms"`
	LastBloomTick       int  `json:"last_bloom_tick"`
}

// NewCore creates a fresh core at (x, y).
func NewCore(x, y int) *Core {
	return &Core{x: x, y: y, LastBloomTick: -1}
}

// X returns the core's column.
func (c *Core) X() int { return c.x }

// Y returns the core's row.
func (c *Core) Y() int { return c.y }

// Dormant reports whether the core is in its refractory period.
func (c *Core) Dormant() bool { return c.RefractoryCountdown > 0 }

// Update advances the core by one tick and reports whether it bloomed.
//
// While dormant only the countdown moves; exposure accounting is frozen.
// Otherwise an in-band temperature extends the exposure run and anything
// else resets it. A bloom needs emit mode, enough catalyst, and a long
// enough exposure run, and is followed by a full refractory period.
func (c *Core) Update(tick int, temperature, catalyst float64, emit bool, th Thresholds) bool {
	if c.RefractoryCountdown > 0 {
		c.RefractoryCountdown--
		c.Bloomed = false
		return false
	}

	c.Bloomed = false

	if temperature >= th.TMin && temperature <= th.TMax {
		c.ExposureCount++
	} else {
		c.ExposureCount = 0
	}

	if emit && catalyst >= th.CThresh && c.ExposureCount >= th.TauTemp {
		c.Bloomed = true
		c.TotalBlooms++
		c.LastBloomTick = tick
		c.RefractoryCountdown = th.TauRefract
		c.ExposureCount = 0
	}

	return c.Bloomed
}

// View returns a copy of the core's state for serialization.
func (c *Core) View() CoreView {
	return CoreView{
		X:                   c.x,
		Y:                   c.y,
		ExposureCount:       c.ExposureCount,
		Bloomed:             c.Bloomed,
		RefractoryCountdown: c.RefractoryCountdown,
		TotalBlooms:         c.TotalBlooms,
		LastBloomTick:       c.LastBloomTick,
	}
}
