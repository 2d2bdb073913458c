package catalyst

import (
	"math"
	"slices"
	"testing"

	"github.com/talgya/kernel-universe/internal/entropy"
	"github.com/talgya/kernel-universe/internal/world"
)

func TestKernelIsNormalized(t *testing.T) {
	if sum := DiffusionKernel.Sum(); math.Abs(sum-1) > 1e-12 {
		t.Fatalf("kernel weights sum to %f, want 1", sum)
	}
}

func TestConvolveUniformIsIdentity(t *testing.T) {
	src := world.NewGrid(6)
	src.Fill(0.3)
	dst := world.NewGrid(6)

	Convolve(dst, src, DiffusionKernel)
	for i, v := range dst.Cells() {
		if math.Abs(v-0.3) > 1e-12 {
			t.Fatalf("cell %d = %f, want 0.3", i, v)
		}
	}
}

func TestConvolveImpulseWrapsAroundCorner(t *testing.T) {
	src := world.NewGrid(5)
	src.Set(0, 0, 1)
	dst := world.NewGrid(5)

	Convolve(dst, src, DiffusionKernel)

	// The impulse at the corner spreads onto the wrapped neighbours.
	expect := map[[2]int]float64{
		{0, 0}: 0.40,
		{1, 0}: 0.10, {4, 0}: 0.10, {0, 1}: 0.10, {0, 4}: 0.10,
		{1, 1}: 0.05, {4, 4}: 0.05, {1, 4}: 0.05, {4, 1}: 0.05,
	}
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			want := expect[[2]int{x, y}]
			if got := dst.At(x, y); math.Abs(got-want) > 1e-12 {
				t.Fatalf("cell (%d,%d) = %f, want %f", x, y, got, want)
			}
		}
	}
	if math.Abs(dst.Sum()-1) > 1e-12 {
		t.Fatalf("convolution lost mass: %f", dst.Sum())
	}
}

func TestAdvectRightColumnImpulse(t *testing.T) {
	src := world.NewGrid(4)
	src.SetColumn(3, []float64{1, 1, 1, 1})
	dst := world.NewGrid(4)

	AdvectRight(dst, src, 0.25)

	for y := 0; y < 4; y++ {
		if got := dst.At(3, y); math.Abs(got-0.75) > 1e-12 {
			t.Fatalf("row %d: column 3 = %f, want 0.75", y, got)
		}
		// Column 0 receives from the wrapped left neighbour, column 3.
		if got := dst.At(0, y); math.Abs(got-0.25) > 1e-12 {
			t.Fatalf("row %d: column 0 = %f, want 0.25", y, got)
		}
		if dst.At(1, y) != 0 || dst.At(2, y) != 0 {
			t.Fatalf("row %d: advection leaked past one column", y)
		}
	}
}

func TestNewFieldInitialLayers(t *testing.T) {
	f := NewField(12, entropy.NewStream(3))
	if f.Lower.Sum() != 0 {
		t.Fatal("lower layer should start at zero")
	}
	for i, v := range f.Upper.Cells() {
		if v < 0 || v >= UpperInitMax {
			t.Fatalf("upper cell %d = %f out of [0, %.1f)", i, v, UpperInitMax)
		}
	}
}

func TestNewNoiseFieldInRange(t *testing.T) {
	f := NewNoiseField(16, entropy.NewStream(3))
	if f.Lower.Sum() != 0 {
		t.Fatal("lower layer should start at zero")
	}
	distinct := make(map[float64]bool)
	for i, v := range f.Upper.Cells() {
		if v < 0 || v >= UpperInitMax {
			t.Fatalf("upper cell %d = %f out of [0, %.1f)", i, v, UpperInitMax)
		}
		distinct[v] = true
	}
	if len(distinct) < 2 {
		t.Fatal("noise texture should not be flat")
	}
}

func TestEmitTransfersFraction(t *testing.T) {
	f := NewField(8, entropy.NewStream(1))
	upper := slices.Clone(f.Upper.Cells())
	total := f.TotalMass()

	f.Emit(0.6)

	for i, v := range f.Lower.Cells() {
		want := upper[i] * 0.6
		if math.Abs(v-want) > 1e-12 {
			t.Fatalf("lower cell %d = %f, want %f", i, v, want)
		}
		if math.Abs(f.Upper.Cells()[i]-(upper[i]-want)) > 1e-12 {
			t.Fatalf("upper cell %d not reduced by the transfer", i)
		}
	}
	if math.Abs(f.TotalMass()-total) > 1e-12 {
		t.Fatalf("emit changed total mass: %f -> %f", total, f.TotalMass())
	}
}

func TestCollectConservesMass(t *testing.T) {
	f := NewField(10, entropy.NewStream(5))
	total := f.TotalMass()

	for i := 0; i < 50; i++ {
		f.Emit(0.6)
		f.Collect(0.05)
		if f.Lower.Sum() != 0 {
			t.Fatalf("round %d: collect left mass in the lower layer", i)
		}
		for j, v := range f.Upper.Cells() {
			if v < 0 {
				t.Fatalf("round %d: negative upper cell %d = %g", i, j, v)
			}
		}
		if diff := math.Abs(f.TotalMass() - total); diff > 1e-9 {
			t.Fatalf("round %d: mass drifted by %g", i, diff)
		}
	}
}
