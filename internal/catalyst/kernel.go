package catalyst

import "github.com/talgya/kernel-universe/internal/world"

// Kernel is a 3×3 stencil indexed [row][col], centred on the target cell.
type Kernel [3][3]float64

// DiffusionKernel is the normalized dispersal stencil applied in collect mode.
var DiffusionKernel = Kernel{
	{0.05, 0.10, 0.05},
	{0.10, 0.40, 0.10},
	{0.05, 0.10, 0.05},
}

// Sum returns the total weight of the kernel.
func (k Kernel) Sum() float64 {
	total := 0.0
	for _, row := range k {
		for _, w := range row {
			total += w
		}
	}
	return total
}

// Convolve writes src filtered by k into dst under toroidal boundaries.
// dst and src must be distinct grids of the same size.
func Convolve(dst, src *world.Grid, k Kernel) {
	n := src.N
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			sum := 0.0
			for ky := 0; ky < 3; ky++ {
				for kx := 0; kx < 3; kx++ {
					sum += k[ky][kx] * src.AtWrapped(x+kx-1, y+ky-1)
				}
			}
			dst.Set(x, y, sum)
		}
	}
}

// AdvectRight writes (1-alpha)*src + alpha*left-neighbour into dst, wrapping
// at column 0. dst and src must be distinct grids of the same size.
func AdvectRight(dst, src *world.Grid, alpha float64) {
	n := src.N
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			dst.Set(x, y, (1-alpha)*src.At(x, y)+alpha*src.AtWrapped(x-1, y))
		}
	}
}
