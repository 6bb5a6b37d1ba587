package baseline

import (
	"sort"

	"github.com/socforge/sentinel/internal/model"
)

// Baseline is a per-run statistical snapshot of the full event set. It is
// built once before correlation and read-only afterward; nothing persists
// across runs.
type Baseline struct {
	MeanEventsPerIP   float64
	MeanEventsPerUser float64

	// EventDistribution maps each event type to its share of the run total.
	EventDistribution map[model.EventType]float64

	TotalEvents int
}

// Build computes the baseline for a run. The event set must be complete:
// the distribution ratios are only meaningful against the whole population.
// An empty input yields a nil baseline, which scores everything as 0.
func Build(events []*model.Event) *Baseline {
	if len(events) == 0 {
		return nil
	}

	ipCounts := make(map[string]int)
	userCounts := make(map[string]int)
	typeCounts := make(map[model.EventType]int)

	for _, e := range events {
		if e.IP != "" {
			ipCounts[e.IP]++
		}
		if e.User != "" {
			userCounts[e.User]++
		}
		if e.Type != "" {
			typeCounts[e.Type]++
		}
	}

	b := &Baseline{
		EventDistribution: make(map[model.EventType]float64, len(typeCounts)),
		TotalEvents:       len(events),
	}

	b.MeanEventsPerIP = meanCount(ipCounts)
	b.MeanEventsPerUser = meanCount(userCounts)

	for t, n := range typeCounts {
		b.EventDistribution[t] = float64(n) / float64(len(events))
	}

	return b
}

func meanCount(counts map[string]int) float64 {
	total := 0
	for _, n := range counts {
		total += n
	}
	if len(counts) == 0 {
		return 0
	}
	return float64(total) / float64(len(counts))
}

// Anomaly-scoring increments. Three independent indicators contribute fixed
// amounts; the sum is capped at 1.0.
const (
	frequencySpikeScore    = 0.3
	distributionSkewScore  = 0.2
	burstTimingScore       = 0.3
	frequencySpikeFactor   = 3.0
	distributionSkewFactor = 4.0
	// Expected share for an event type the baseline never saw.
	defaultExpectedRatio = 0.1
	// Mean inter-event gap below this many seconds counts as a burst.
	burstGapSeconds = 5.0
)

// Scorer evaluates one entity's events against the run baseline.
type Scorer struct {
	baseline *Baseline
}

// NewScorer wraps a baseline. A nil baseline is valid and scores every
// entity as 0 — no anomaly signal without a reference population.
func NewScorer(b *Baseline) *Scorer {
	return &Scorer{baseline: b}
}

// Score returns the anomaly score in [0,1] for one entity's event subset.
func (s *Scorer) Score(events []*model.Event) float64 {
	if s.baseline == nil || len(events) == 0 {
		return 0
	}

	score := 0.0

	// Frequency spike: far more events than the average entity.
	if float64(len(events)) > frequencySpikeFactor*s.baseline.MeanEventsPerIP {
		score += frequencySpikeScore
	}

	// Distribution skew: an event type dominates this subset far beyond its
	// global share. Stacks across types.
	typeCounts := make(map[model.EventType]int)
	for _, e := range events {
		if e.Type != "" {
			typeCounts[e.Type]++
		}
	}
	for t, n := range typeCounts {
		expected, ok := s.baseline.EventDistribution[t]
		if !ok {
			expected = defaultExpectedRatio
		}
		actual := float64(n) / float64(len(events))
		if actual > distributionSkewFactor*expected {
			score += distributionSkewScore
		}
	}

	// Burst timing: rapid-fire events.
	if len(events) >= 3 {
		ts := make([]int64, 0, len(events))
		for _, e := range events {
			if !e.Timestamp.IsZero() {
				ts = append(ts, e.Timestamp.UnixNano())
			}
		}
		sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
		if len(ts) >= 2 {
			var totalGap float64
			for i := 1; i < len(ts); i++ {
				totalGap += float64(ts[i]-ts[i-1]) / 1e9
			}
			if totalGap/float64(len(ts)-1) < burstGapSeconds {
				score += burstTimingScore
			}
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
