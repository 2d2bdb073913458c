// Package world provides the square periodic grid shared by every field layer.
package world

import "golang.org/x/exp/constraints"

// Grid is an N×N field of float64 values stored row-major.
// Cells are addressed (x, y) = (col, row); all indexing wraps toroidally
// only where callers ask for it through Wrap.
type Grid struct {
	N    int
	data []float64
}

// NewGrid allocates a zeroed N×N grid. Sizes below 1 are clamped to 1.
func NewGrid(n int) *Grid {
	if n <= 0 {
		n = 1
	}
	return &Grid{N: n, data: make([]float64, n*n)}
}

// Wrap maps v onto [0, n) with periodic boundaries.
func Wrap[T constraints.Integer](v, n T) T {
	return (v%n + n) % n
}

// Cells exposes the backing slice so callers can read/write values directly.
func (g *Grid) Cells() []float64 { return g.data }

// At returns the value at column x, row y.
func (g *Grid) At(x, y int) float64 { return g.data[y*g.N+x] }

// Set stores v at column x, row y.
func (g *Grid) Set(x, y int, v float64) { g.data[y*g.N+x] = v }

// AtWrapped returns the value at (x, y) after toroidal wrapping.
func (g *Grid) AtWrapped(x, y int) float64 {
	return g.data[Wrap(y, g.N)*g.N+Wrap(x, g.N)]
}

// Fill sets every cell to v.
func (g *Grid) Fill(v float64) {
	for i := range g.data {
		g.data[i] = v
	}
}

// Sum returns the total over all cells.
func (g *Grid) Sum() float64 {
	total := 0.0
	for _, v := range g.data {
		total += v
	}
	return total
}

// Column copies column x into a new slice ordered by row.
func (g *Grid) Column(x int) []float64 {
	col := make([]float64, g.N)
	for y := 0; y < g.N; y++ {
		col[y] = g.data[y*g.N+x]
	}
	return col
}

// SetColumn overwrites column x with vals, which must hold N values.
func (g *Grid) SetColumn(x int, vals []float64) {
	for y := 0; y < g.N && y < len(vals); y++ {
		g.data[y*g.N+x] = vals[y]
	}
}

// Rows returns the grid as nested [row][col] slices for JSON encoding.
func (g *Grid) Rows() [][]float64 {
	rows := make([][]float64, g.N)
	for y := range rows {
		row := make([]float64, g.N)
		copy(row, g.data[y*g.N:(y+1)*g.N])
		rows[y] = row
	}
	return rows
}
