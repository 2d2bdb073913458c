// Package weather provides the scrolling temperature layer.
// Each tick the whole field drifts one column to the right and a fresh
// column of random temperatures enters at the left edge.
package weather

import (
	"github.com/talgya/kernel-universe/internal/entropy"
	"github.com/talgya/kernel-universe/internal/world"
)

// Temperature holds one N×N grid with every cell in [0, 1).
type Temperature struct {
	grid *world.Grid
	rng  *entropy.Stream
}

// NewTemperature creates a field of size n filled with fresh draws from rng.
func NewTemperature(n int, rng *entropy.Stream) *Temperature {
	t := &Temperature{
		grid: world.NewGrid(n),
		rng:  rng,
	}
	rng.Fill(t.grid)
	return t
}

// Grid exposes the underlying grid.
func (t *Temperature) Grid() *world.Grid { return t.grid }

// At returns the temperature at column x, row y.
func (t *Temperature) At(x, y int) float64 { return t.grid.At(x, y) }

// Scroll moves every value to col+1 mod N and refreshes column 0 with N new
// draws. No other cell changes value.
func (t *Temperature) Scroll() {
	n := t.grid.N
	cells := t.grid.Cells()
	for y := 0; y < n; y++ {
		row := cells[y*n : (y+1)*n]
		// Column 0 is stale after the shift and gets refreshed below.
		copy(row[1:], row[:n-1])
	}
	t.grid.SetColumn(0, t.rng.Vector(n))
}
