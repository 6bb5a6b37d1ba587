// Package cognitive simulates analyst-state signals that modulate alert
// escalation. The signals are pseudo-random by design: they stand in for
// external pressure feeds (breach reports, on-call fatigue) that the
// analyzer does not ingest directly. The deterministic pipeline treats them
// as plain inputs, so runs with a fixed seed are reproducible.
package cognitive

import (
	"math/rand"

	"github.com/socforge/sentinel/internal/correlator"
)

// Simulator produces modulation signals from a seeded source.
type Simulator struct {
	rng *rand.Rand
}

// NewSimulator creates a simulator seeded with the given value. The same
// seed yields the same sequence of signals.
func NewSimulator(seed int64) *Simulator {
	return &Simulator{rng: rand.New(rand.NewSource(seed))}
}

// Next draws a fresh pair of signals in [0, 1).
func (s *Simulator) Next() correlator.Modulation {
	return correlator.Modulation{
		BreachPressure: s.rng.Float64(),
		PainBias:       s.rng.Float64(),
	}
}

// Neutral returns modulation that leaves the pipeline unaffected.
func Neutral() correlator.Modulation {
	return correlator.Modulation{}
}
