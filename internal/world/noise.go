// Seamless noise textures for initial field layers.
package world

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// NoiseConfig controls the layered simplex texture.
type NoiseConfig struct {
	Seed        int64
	Octaves     int     // Number of noise layers summed
	Frequency   float64 // Loops around the torus for the base octave
	Persistence float64 // Amplitude falloff per octave
}

// DefaultNoiseConfig returns a reasonable starting configuration.
func DefaultNoiseConfig(seed int64) NoiseConfig {
	return NoiseConfig{
		Seed:        seed,
		Octaves:     3,
		Frequency:   1.5,
		Persistence: 0.5,
	}
}

// FillNoise writes a periodic simplex texture scaled into [0, max) into g.
// The grid is mapped onto a 4D torus so the texture wraps on both axes,
// matching the periodic boundaries used by the field transforms.
func FillNoise(g *Grid, cfg NoiseConfig, max float64) {
	noise := opensimplex.NewNormalized(cfg.Seed)
	octaves := cfg.Octaves
	if octaves <= 0 {
		octaves = 1
	}
	// Largest float strictly below max, so the half-open range holds even
	// when the normalized noise returns exactly 1.
	ceiling := math.Nextafter(max, 0)

	n := float64(g.N)
	for y := 0; y < g.N; y++ {
		for x := 0; x < g.N; x++ {
			u := float64(x) / n * 2 * math.Pi
			v := float64(y) / n * 2 * math.Pi
			val := torusNoise(noise, u, v, octaves, cfg.Frequency, cfg.Persistence) * max
			if val >= max {
				val = ceiling
			}
			if val < 0 {
				val = 0
			}
			g.Set(x, y, val)
		}
	}
}

func torusNoise(noise opensimplex.Noise, u, v float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		r := frequency / (2 * math.Pi)
		total += noise.Eval4(r*math.Cos(u), r*math.Sin(u), r*math.Cos(v), r*math.Sin(v)) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
