// Core spawning: initial placement at unique random cells and fan-out of
// new cores around a blooming parent.
package agents

import (
	"github.com/talgya/kernel-universe/internal/entropy"
	"github.com/talgya/kernel-universe/internal/world"
)

// SpawnRadius bounds the per-axis offset of a spawned core from its parent.
const SpawnRadius = 5

// Spawner creates cores for a grid of size N, drawing positions from the
// run's shared random stream.
type Spawner struct {
	rng *entropy.Stream
	n   int
}

// NewSpawner creates a spawner for an n×n grid.
func NewSpawner(n int, rng *entropy.Stream) *Spawner {
	return &Spawner{rng: rng, n: n}
}

// SpawnInitial places count cores at distinct random cells. The count is
// capped at n² so placement always terminates.
func (s *Spawner) SpawnInitial(count int) []*Core {
	if limit := s.n * s.n; count > limit {
		count = limit
	}
	if count < 0 {
		count = 0
	}

	cores := make([]*Core, 0, count)
	taken := make(map[[2]int]bool, count)
	for len(cores) < count {
		x := s.rng.IntRange(0, s.n)
		y := s.rng.IntRange(0, s.n)
		if taken[[2]int{x, y}] {
			continue
		}
		taken[[2]int{x, y}] = true
		cores = append(cores, NewCore(x, y))
	}
	return cores
}

// SpawnNear creates count cores offset from (x, y) by independent draws in
// [-SpawnRadius, SpawnRadius] on each axis, wrapped onto the grid. Positions
// may coincide with existing cores.
func (s *Spawner) SpawnNear(x, y, count int) []*Core {
	if count <= 0 {
		return nil
	}
	cores := make([]*Core, 0, count)
	for i := 0; i < count; i++ {
		dx := s.rng.IntRange(-SpawnRadius, SpawnRadius+1)
		dy := s.rng.IntRange(-SpawnRadius, SpawnRadius+1)
		cores = append(cores, NewCore(world.Wrap(x+dx, s.n), world.Wrap(y+dy, s.n)))
	}
	return cores
}
