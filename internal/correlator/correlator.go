package correlator

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/socforge/sentinel/internal/baseline"
	"github.com/socforge/sentinel/internal/config"
	"github.com/socforge/sentinel/internal/intel"
	"github.com/socforge/sentinel/internal/metrics"
	"github.com/socforge/sentinel/internal/model"
	"github.com/socforge/sentinel/internal/scoring"
)

// Modulation carries the two optional cognitive signals injected from
// outside the deterministic pipeline. Zero values are neutral: no
// escalation, no suppression override.
type Modulation struct {
	// BreachPressure above the configured threshold escalates HIGH alerts
	// to CRITICAL.
	BreachPressure float64
	// PainBias at or above the configured threshold forces candidates past
	// false-positive suppression.
	PainBias float64
}

// RunStats are the run-level counters reported to callers.
type RunStats struct {
	ThreatsDetected          int `json:"threats_detected"`
	CriticalThreats          int `json:"critical_threats"`
	HighThreats              int `json:"high_threats"`
	MediumThreats            int `json:"medium_threats"`
	AnomaliesDetected        int `json:"anomalies_detected"`
	FalsePositivesSuppressed int `json:"false_positives_suppressed"`
	DuplicatesDropped        int `json:"duplicates_dropped"`
}

// Stats accumulates run-level counters. Entity analyses run concurrently,
// so all increments go through the mutex.
type Stats struct {
	mu      sync.Mutex
	counters RunStats
}

func (s *Stats) addSuppressed() {
	s.mu.Lock()
	s.counters.FalsePositivesSuppressed++
	s.mu.Unlock()
}

func (s *Stats) addAnomaly() {
	s.mu.Lock()
	s.counters.AnomaliesDetected++
	s.mu.Unlock()
}

// AddDuplicates records alerts dropped by deduplication.
func (s *Stats) AddDuplicates(n int) {
	s.mu.Lock()
	s.counters.DuplicatesDropped += n
	s.mu.Unlock()
}

// Recount recomputes the per-level totals from the final alert list.
func (s *Stats) Recount(alerts []*model.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.ThreatsDetected = len(alerts)
	s.counters.CriticalThreats, s.counters.HighThreats, s.counters.MediumThreats = 0, 0, 0
	for _, a := range alerts {
		switch a.ThreatLevel {
		case model.LevelCritical:
			s.counters.CriticalThreats++
		case model.LevelHigh:
			s.counters.HighThreats++
		case model.LevelMedium:
			s.counters.MediumThreats++
		}
	}
}

// Snapshot returns a copy of the counters safe to read after the run.
func (s *Stats) Snapshot() RunStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

// Correlator groups parsed events by entity and drives rule evaluation per
// group. Each group's analysis touches only its own events plus read-only
// collaborators, so groups fan out across a worker pool.
type Correlator struct {
	cfg     *config.Config
	intel   *intel.Adapter
	risk    *scoring.RiskScorer
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithClock overrides the reference clock used for window filtering and
// dedup timing.
func WithClock(now func() time.Time) Option {
	return func(c *Correlator) { c.now = now }
}

// WithMetrics attaches Prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Correlator) { c.metrics = m }
}

// New creates a correlator.
func New(cfg *config.Config, intelAdapter *intel.Adapter, logger *slog.Logger, opts ...Option) *Correlator {
	c := &Correlator{
		cfg:    cfg,
		intel:  intelAdapter,
		risk:   scoring.NewRiskScorer(cfg),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// entityGroup is one unit of pass-2 analysis.
type entityGroup struct {
	entity    string
	isIP      bool
	events    []*model.Event
	firstSeen time.Time
}

// Correlate runs pass 2: partition events by IP and by user (one event may
// appear in both partitions), evaluate the rules per entity, and return the
// candidate alerts in a deterministic order.
func (c *Correlator) Correlate(ctx context.Context, events []*model.Event, scorer *baseline.Scorer, mod Modulation, stats *Stats) []*model.Alert {
	groups := c.partition(events)

	c.logger.Debug("Correlating events",
		"events", len(events),
		"entity_groups", len(groups),
		"workers", c.cfg.CorrelationWorkers)

	jobs := make(chan entityGroup)
	results := make(chan []*model.Alert, len(groups))

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.CorrelationWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for g := range jobs {
				results <- c.analyzeGroup(ctx, g, scorer, mod, stats)
			}
		}()
	}

	for _, g := range groups {
		if ctx.Err() != nil {
			// Abort-the-whole-run is the only cancellation contract; stop
			// feeding workers and drain below.
			break
		}
		select {
		case jobs <- g:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	var alerts []*model.Alert
	for batch := range results {
		alerts = append(alerts, batch...)
	}

	// Worker completion order is nondeterministic; restore a stable order
	// for reproducible output and dedup behavior.
	sort.Slice(alerts, func(i, j int) bool {
		if !alerts[i].FirstSeen.Equal(alerts[j].FirstSeen) {
			return alerts[i].FirstSeen.Before(alerts[j].FirstSeen)
		}
		if alerts[i].Entity() != alerts[j].Entity() {
			return alerts[i].Entity() < alerts[j].Entity()
		}
		return alerts[i].ThreatType < alerts[j].ThreatType
	})

	c.applyBreachPressure(alerts, mod)
	stats.Recount(alerts)

	return alerts
}

// partition splits events into per-IP and per-user groups, ordered by
// first-seen timestamp so runs over the same input visit entities in the
// same order.
func (c *Correlator) partition(events []*model.Event) []entityGroup {
	ipEvents := make(map[string][]*model.Event)
	userEvents := make(map[string][]*model.Event)

	for _, e := range events {
		if e.IP != "" {
			ipEvents[e.IP] = append(ipEvents[e.IP], e)
		}
		if e.User != "" {
			userEvents[e.User] = append(userEvents[e.User], e)
		}
	}

	groups := make([]entityGroup, 0, len(ipEvents)+len(userEvents))
	for ip, evs := range ipEvents {
		first, _ := timeBounds(evs)
		groups = append(groups, entityGroup{entity: ip, isIP: true, events: evs, firstSeen: first})
	}
	for user, evs := range userEvents {
		first, _ := timeBounds(evs)
		groups = append(groups, entityGroup{entity: user, events: evs, firstSeen: first})
	}

	sort.Slice(groups, func(i, j int) bool {
		if !groups[i].firstSeen.Equal(groups[j].firstSeen) {
			return groups[i].firstSeen.Before(groups[j].firstSeen)
		}
		return groups[i].entity < groups[j].entity
	})

	return groups
}

// analyzeGroup evaluates every rule that applies to one entity.
func (c *Correlator) analyzeGroup(ctx context.Context, g entityGroup, scorer *baseline.Scorer, mod Modulation, stats *Stats) []*model.Alert {
	if !g.isIP {
		if alert := c.accountCompromiseRule(g.entity, g.events); alert != nil {
			c.logAlert(alert)
			return []*model.Alert{alert}
		}
		return nil
	}

	rctx := ruleContext{
		now:        c.now(),
		reputation: c.intel.CheckReputation(ctx, g.entity),
		geo:        c.intel.GeoLookup(g.entity),
		painBias:   mod.PainBias,
	}

	if c.cfg.EnableAnomalyDetection && scorer != nil {
		rctx.mlScore = scorer.Score(g.events)
		if rctx.mlScore >= c.cfg.AnomalyThreshold {
			stats.addAnomaly()
			if c.metrics != nil {
				c.metrics.AnomaliesDetected.Inc()
			}
		}
	}

	var alerts []*model.Alert

	bruteForce, suppressed := c.bruteForceRule(g.entity, g.events, rctx)
	if suppressed {
		stats.addSuppressed()
		if c.metrics != nil {
			c.metrics.FalsePositivesSuppressed.Inc()
		}
		c.logger.Debug("Candidate suppressed as false positive", "ip", g.entity)
		return nil
	}
	if bruteForce != nil {
		c.logAlert(bruteForce)
		alerts = append(alerts, bruteForce)
	}

	if portScan := c.portScanRule(g.entity, g.events, rctx); portScan != nil {
		c.logAlert(portScan)
		alerts = append(alerts, portScan)
	}

	return alerts
}

// applyBreachPressure escalates HIGH alerts to CRITICAL when the external
// pressure signal is past its threshold.
func (c *Correlator) applyBreachPressure(alerts []*model.Alert, mod Modulation) {
	if mod.BreachPressure <= c.cfg.BreachPressureThreshold {
		return
	}
	for _, a := range alerts {
		if a.ThreatLevel == model.LevelHigh {
			a.ThreatLevel = model.LevelCritical
			c.logger.Info("Alert escalated by breach pressure",
				"alert_id", a.ID,
				"breach_pressure", mod.BreachPressure)
		}
	}
}

func (c *Correlator) logAlert(a *model.Alert) {
	c.logger.Info("Candidate alert generated",
		"alert_id", a.ID,
		"threat_type", a.ThreatType,
		"threat_level", a.ThreatLevel,
		"entity", a.Entity(),
		"risk_score", a.RiskScore,
		"confidence", a.Confidence)
	if c.metrics != nil {
		c.metrics.AlertsGenerated.Inc()
	}
}
