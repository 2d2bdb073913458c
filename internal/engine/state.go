package engine

import "github.com/talgya/kernel-universe/internal/agents"

// Snapshot is the read-only external view of a simulation. Every slice is a
// fresh copy, so a snapshot can be encoded or stored after the simulation
// has moved on.
type Snapshot struct {
	RunID         string            `json:"run_id"`
	Tick          int               `json:"tick"`
	Temperature   [][]float64       `json:"temperature"`
	CatalystUpper [][]float64       `json:"catalyst_upper"`
	CatalystLower [][]float64       `json:"catalyst_lower"`
	Cores         []agents.CoreView `json:"cores"`
	TotalBlooms   int               `json:"total_blooms"`
	BloomEvents   []BloomEvent      `json:"bloom_events"`
	Runtime       float64           `json:"runtime"` // seconds since the last reset
}

// State returns a deep copy of the current state. It never mutates the
// simulation.
func (s *Simulation) State() Snapshot {
	cores := make([]agents.CoreView, len(s.cores))
	for i, c := range s.cores {
		cores[i] = c.View()
	}
	blooms := make([]BloomEvent, len(s.blooms))
	copy(blooms, s.blooms)

	return Snapshot{
		RunID:         s.runID,
		Tick:          s.tick,
		Temperature:   s.temperature.Grid().Rows(),
		CatalystUpper: s.catalyst.Upper.Rows(),
		CatalystLower: s.catalyst.Lower.Rows(),
		Cores:         cores,
		TotalBlooms:   s.totalBlooms,
		BloomEvents:   blooms,
		Runtime:       s.Elapsed().Seconds(),
	}
}
