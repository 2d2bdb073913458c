// Package entropy provides the seeded random stream behind every stochastic
// choice in a run: initial fields, initial core placement, spawn offsets.
// A run is fully reproducible from its seed as long as draws happen in the
// same order.
package entropy

import (
	"math/rand/v2"

	"github.com/talgya/kernel-universe/internal/world"
)

// Stream is a deterministic source of uniform draws.
type Stream struct {
	seed int64
	r    *rand.Rand
}

// NewStream creates a stream seeded with seed. Any int64 is valid.
func NewStream(seed int64) *Stream {
	return &Stream{
		seed: seed,
		r:    rand.New(rand.NewPCG(uint64(seed), 0)),
	}
}

// Seed returns the seed the stream was created with.
func (s *Stream) Seed() int64 { return s.seed }

// Float returns a uniform float64 in [0, 1).
func (s *Stream) Float() float64 {
	return s.r.Float64()
}

// Fill overwrites every cell of g with a uniform draw in [0, 1), row-major.
func (s *Stream) Fill(g *world.Grid) {
	cells := g.Cells()
	for i := range cells {
		cells[i] = s.r.Float64()
	}
}

// Vector returns n uniform draws in [0, 1).
func (s *Stream) Vector(n int) []float64 {
	if n <= 0 {
		return nil
	}
	v := make([]float64, n)
	for i := range v {
		v[i] = s.r.Float64()
	}
	return v
}

// IntRange returns a uniform integer in [lo, hi). Returns lo when the range
// is empty.
func (s *Stream) IntRange(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + s.r.IntN(hi-lo)
}
