package store

import (
	"container/ring"
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/socforge/sentinel/internal/model"
)

// MemoryStore keeps emitted alerts in a bounded ring buffer for the HTTP
// API, with an LRU set guarding against re-inserting the same alert ID.
type MemoryStore struct {
	mu        sync.RWMutex
	alerts    *ring.Ring
	seen      *lru.Cache[string, bool]
	maxAlerts int
}

// NewMemoryStore creates a memory store holding at most maxAlerts alerts
// and remembering up to seenCap alert IDs.
func NewMemoryStore(maxAlerts, seenCap int) *MemoryStore {
	seen, _ := lru.New[string, bool](seenCap)
	return &MemoryStore{
		alerts:    ring.New(maxAlerts),
		seen:      seen,
		maxAlerts: maxAlerts,
	}
}

// Upsert adds an alert unless its ID was already stored. Replays of a
// deterministic run are therefore no-ops.
func (s *MemoryStore) Upsert(_ context.Context, alert *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen.Get(alert.ID); exists {
		return nil
	}
	s.seen.Add(alert.ID, true)

	s.alerts.Value = alert
	s.alerts = s.alerts.Next()
	return nil
}

// Alerts returns all stored alerts, oldest first.
func (s *MemoryStore) Alerts() []*model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Alert
	s.alerts.Do(func(value interface{}) {
		if a, ok := value.(*model.Alert); ok && a != nil {
			out = append(out, a)
		}
	})
	return out
}

// AlertsByEntity returns alerts for one IP or username.
func (s *MemoryStore) AlertsByEntity(entity string) []*model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Alert
	s.alerts.Do(func(value interface{}) {
		if a, ok := value.(*model.Alert); ok && a != nil && a.Entity() == entity {
			out = append(out, a)
		}
	})
	return out
}

// AlertsByLevel returns alerts at or above the given threat level.
func (s *MemoryStore) AlertsByLevel(min model.ThreatLevel) []*model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Alert
	s.alerts.Do(func(value interface{}) {
		a, ok := value.(*model.Alert)
		if !ok || a == nil {
			return
		}
		if a.ThreatLevel == min || a.ThreatLevel.MoreSevereThan(min) {
			out = append(out, a)
		}
	})
	return out
}

// Clear drops all stored alerts and forgets seen IDs.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < s.alerts.Len(); i++ {
		s.alerts.Value = nil
		s.alerts = s.alerts.Next()
	}
	s.seen.Purge()
}

// Stats returns store occupancy for the health endpoints.
func (s *MemoryStore) Stats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	s.alerts.Do(func(value interface{}) {
		if value != nil {
			count++
		}
	})
	return map[string]interface{}{
		"stored_alerts": count,
		"max_alerts":    s.maxAlerts,
		"seen_ids":      s.seen.Len(),
	}
}
