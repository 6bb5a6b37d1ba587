package correlator

import (
	"sync"
	"time"

	"github.com/socforge/sentinel/internal/config"
	"github.com/socforge/sentinel/internal/model"
)

// Deduplicator suppresses repeated alerts for the same (threat_type,
// entity) inside a rolling window.
//
// Under the keep-first policy the first alert processed for a key always
// wins, even if a later alert in the same window is more severe — that is
// the documented suppression contract, and callers who need escalations to
// surface select keep-highest-severity instead.
type Deduplicator struct {
	mu       sync.Mutex
	lastSeen map[model.AlertKey]time.Time
	window   time.Duration
	policy   string
	now      func() time.Time
}

// NewDeduplicator creates a deduplicator. The clock is injectable for
// window tests.
func NewDeduplicator(window time.Duration, policy string, now func() time.Time) *Deduplicator {
	if now == nil {
		now = time.Now
	}
	if policy == "" {
		policy = config.DedupKeepFirst
	}
	return &Deduplicator{
		lastSeen: make(map[model.AlertKey]time.Time),
		window:   window,
		policy:   policy,
		now:      now,
	}
}

// Dedupe filters alerts in the order received and reports how many were
// dropped.
func (d *Deduplicator) Dedupe(alerts []*model.Alert) ([]*model.Alert, int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var kept []*model.Alert
	keptIdx := make(map[model.AlertKey]int)
	dropped := 0

	for _, a := range alerts {
		key := a.Key()
		now := d.now()

		prior, seen := d.lastSeen[key]
		if seen && now.Sub(prior) < d.window {
			if d.policy == config.DedupKeepHighestSeverity {
				// Replace the survivor when the newcomer outranks it and the
				// survivor is from this batch.
				if i, ok := keptIdx[key]; ok && a.ThreatLevel.MoreSevereThan(kept[i].ThreatLevel) {
					kept[i] = a
					d.lastSeen[key] = now
					dropped++
					continue
				}
			}
			dropped++
			continue
		}

		d.lastSeen[key] = now
		keptIdx[key] = len(kept)
		kept = append(kept, a)
	}

	return kept, dropped
}
