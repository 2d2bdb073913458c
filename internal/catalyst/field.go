// Package catalyst provides the two-layer catalyst field and its per-tick
// transforms. Every transform only moves mass around: the combined sum of
// both layers is conserved up to floating-point rounding.
package catalyst

import (
	"github.com/talgya/kernel-universe/internal/entropy"
	"github.com/talgya/kernel-universe/internal/world"
)

// UpperInitMax bounds the initial upper-layer values: [0, UpperInitMax).
const UpperInitMax = 0.2

// Pattern selects how the upper layer is seeded.
type Pattern string

const (
	PatternUniform Pattern = "uniform" // independent uniform draws
	PatternSimplex Pattern = "simplex" // periodic simplex texture
)

// Field holds the upper and lower catalyst layers.
type Field struct {
	Upper *world.Grid
	Lower *world.Grid

	scratch *world.Grid // reused buffer for collect-mode passes
}

// NewField creates a field of size n: lower all zero, upper drawn from rng
// and scaled into [0, UpperInitMax).
func NewField(n int, rng *entropy.Stream) *Field {
	f := &Field{
		Upper:   world.NewGrid(n),
		Lower:   world.NewGrid(n),
		scratch: world.NewGrid(n),
	}
	rng.Fill(f.Upper)
	cells := f.Upper.Cells()
	for i := range cells {
		cells[i] *= UpperInitMax
	}
	return f
}

// NewNoiseField creates a field whose upper layer is a periodic simplex
// texture in [0, UpperInitMax). The noise seed is drawn from rng so the
// texture stays reproducible from the run seed.
func NewNoiseField(n int, rng *entropy.Stream) *Field {
	f := &Field{
		Upper:   world.NewGrid(n),
		Lower:   world.NewGrid(n),
		scratch: world.NewGrid(n),
	}
	seed := int64(rng.IntRange(0, 1<<31-1))
	world.FillNoise(f.Upper, world.DefaultNoiseConfig(seed), UpperInitMax)
	return f
}

// N returns the grid size.
func (f *Field) N() int { return f.Upper.N }

// TotalMass returns sum(upper) + sum(lower).
func (f *Field) TotalMass() float64 {
	return f.Upper.Sum() + f.Lower.Sum()
}

// Emit moves fraction of every upper cell down into the lower layer.
func (f *Field) Emit(fraction float64) {
	upper := f.Upper.Cells()
	lower := f.Lower.Cells()
	for i := range upper {
		transfer := upper[i] * fraction
		lower[i] += transfer
		upper[i] -= transfer
	}
}

// Collect lifts all lower mass into the upper layer, diffuses the upper
// layer with DiffusionKernel and advects it rightward by alpha.
func (f *Field) Collect(alpha float64) {
	upper := f.Upper.Cells()
	lower := f.Lower.Cells()
	for i := range upper {
		upper[i] += lower[i]
		lower[i] = 0
	}

	Convolve(f.scratch, f.Upper, DiffusionKernel)
	AdvectRight(f.Upper, f.scratch, alpha)
}
