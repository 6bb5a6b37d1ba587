package correlator

import (
	"sort"
	"time"

	"github.com/socforge/sentinel/internal/intel"
	"github.com/socforge/sentinel/internal/mitre"
	"github.com/socforge/sentinel/internal/model"
	"github.com/socforge/sentinel/internal/scoring"
)

// ruleContext bundles everything a rule evaluation needs beyond the entity's
// events: the reference time, collaborator results, and the cognitive
// modulation signals. Rules themselves stay pure functions of this input.
type ruleContext struct {
	now        time.Time
	reputation intel.Reputation
	geo        intel.GeoInfo
	mlScore    float64
	painBias   float64
}

// Flat scores for the account-compromise rule. The signal is binary (many
// IPs or not), so there is nothing for the scorers to fuse.
const (
	accountCompromiseRisk       = 60
	accountCompromiseConfidence = 70
)

// bruteForceRule evaluates the per-IP brute-force detection.
//
// failed counts only events inside the lookback window; success counts the
// entire event set, because earlier successful logins are exactly the
// context that marks later failures as benign. Suppression applies only
// when failed stays below threshold — enough failures override any number
// of successes.
func (c *Correlator) bruteForceRule(ip string, events []*model.Event, rctx ruleContext) (*model.Alert, bool) {
	recent := eventsWithin(events, rctx.now, c.cfg.FailedLoginWindow())

	failed := 0
	for _, e := range recent {
		if e.Type.IsFailedAuth() {
			failed++
		}
	}
	success := 0
	for _, e := range events {
		if e.Type.IsAcceptedAuth() {
			success++
		}
	}

	if c.cfg.EnableFPReduction &&
		success >= c.cfg.FPSuccessThreshold &&
		failed < c.cfg.FailedLoginThreshold &&
		rctx.painBias < c.cfg.PainBiasThreshold {
		return nil, true // suppressed as a likely false positive
	}

	if failed < c.cfg.FailedLoginThreshold {
		return nil, false
	}

	users := make(map[string]bool)
	for _, e := range events {
		if e.User != "" {
			users[e.User] = true
		}
	}

	risk := c.risk.Score(scoring.RiskInput{
		FailedAttempts:        failed,
		GeoRisk:               c.cfg.IsGeoRisk(rctx.geo.Country),
		ThreatIntelHit:        rctx.reputation.Hit(),
		TorExit:               rctx.reputation.TorExit(),
		SuccessfulAfterFailed: success > 0,
		UniqueUsers:           len(users),
		WindowEventCount:      len(recent),
		MLAnomalyScore:        rctx.mlScore,
	})

	confidence := scoring.Confidence(scoring.ConfidenceInput{
		DataQuality:           0.9,
		ThreatIntelMatch:      rctx.reputation.Hit(),
		BehavioralConsistency: consistencyFor(rctx.mlScore),
	})

	first, last := timeBounds(events)

	return &model.Alert{
		ID:          model.AlertID(model.ThreatSSHBruteForce, ip, first),
		State:       model.StateOpen,
		Category:    model.CategoryAuthentication,
		ThreatType:  model.ThreatSSHBruteForce,
		ThreatLevel: scoring.ClassifyThreat(risk),
		SourceIP:    ip,
		RiskScore:   risk,
		Confidence:  confidence,
		MLAnomalyScore: rctx.mlScore,
		BruteForce: &model.BruteForceFeatures{
			FailedAttempts:   failed,
			SuccessfulLogins: success,
			TotalEvents:      len(events),
			UniqueUsers:      len(users),
			ThreatIntelHits:  rctx.reputation.Indicators,
			GeoCountry:       rctx.geo.Country,
		},
		MITRE:     mitre.Lookup(model.ThreatSSHBruteForce),
		FirstSeen: first,
		LastSeen:  last,
	}, false
}

// portScanRule evaluates the per-IP scanning detection.
func (c *Correlator) portScanRule(ip string, events []*model.Event, rctx ruleContext) *model.Alert {
	recent := eventsWithin(events, rctx.now, c.cfg.PortScanWindow())

	scans := 0
	ports := make(map[string]bool)
	for _, e := range recent {
		if e.Type.IsScan() {
			scans++
			if e.Port != "" {
				ports[e.Port] = true
			}
		}
	}

	if scans < c.cfg.PortScanThreshold {
		return nil
	}

	risk := c.risk.Score(scoring.RiskInput{
		PortScans:        scans,
		GeoRisk:          c.cfg.IsGeoRisk(rctx.geo.Country),
		ThreatIntelHit:   rctx.reputation.Hit(),
		TorExit:          rctx.reputation.TorExit(),
		WindowEventCount: len(recent),
		MLAnomalyScore:   rctx.mlScore,
	})

	confidence := scoring.Confidence(scoring.ConfidenceInput{
		DataQuality:           0.9,
		ThreatIntelMatch:      rctx.reputation.Hit(),
		BehavioralConsistency: consistencyFor(rctx.mlScore),
	})

	first, last := timeBounds(events)

	return &model.Alert{
		ID:          model.AlertID(model.ThreatPortScanning, ip, first),
		State:       model.StateOpen,
		Category:    model.CategoryReconnaissance,
		ThreatType:  model.ThreatPortScanning,
		ThreatLevel: scoring.ClassifyThreat(risk),
		SourceIP:    ip,
		RiskScore:   risk,
		Confidence:  confidence,
		MLAnomalyScore: rctx.mlScore,
		PortScan: &model.PortScanFeatures{
			ScanEvents:  scans,
			UniquePorts: len(ports),
			GeoCountry:  rctx.geo.Country,
			ThreatHits:  rctx.reputation.Indicators,
		},
		MITRE:     mitre.Lookup(model.ThreatPortScanning),
		FirstSeen: first,
		LastSeen:  last,
	}
}

// accountCompromiseRule evaluates the per-user detection: one account seen
// from too many source IPs. Flat risk/confidence, no scorer fusion.
func (c *Correlator) accountCompromiseRule(user string, events []*model.Event) *model.Alert {
	ipSet := make(map[string]bool)
	for _, e := range events {
		if e.IP != "" {
			ipSet[e.IP] = true
		}
	}
	if len(ipSet) < c.cfg.AccountIPThreshold {
		return nil
	}

	ips := make([]string, 0, len(ipSet))
	for ip := range ipSet {
		ips = append(ips, ip)
	}
	sort.Strings(ips)

	first, last := timeBounds(events)

	return &model.Alert{
		ID:          model.AlertID(model.ThreatAccountCompromise, user, first),
		State:       model.StateOpen,
		Category:    model.CategoryLateralMovement,
		ThreatType:  model.ThreatAccountCompromise,
		ThreatLevel: model.LevelMedium,
		Username:    user,
		RiskScore:   accountCompromiseRisk,
		Confidence:  accountCompromiseConfidence,
		AccountCompromise: &model.AccountCompromiseFeatures{
			UniqueIPCount: len(ips),
			IPs:           ips,
		},
		MITRE:     mitre.Lookup(model.ThreatAccountCompromise),
		FirstSeen: first,
		LastSeen:  last,
	}
}

// consistencyFor maps the anomaly score to the behavioral-consistency input
// of the confidence model: strong anomalies mean the behavior diverged from
// baseline.
func consistencyFor(mlScore float64) float64 {
	if mlScore > 0.5 {
		return 0.6
	}
	return 1.0
}

// eventsWithin returns the subset of events inside the lookback window.
// Events without a usable timestamp are excluded from the windowed subset,
// never treated as an error.
func eventsWithin(events []*model.Event, now time.Time, window time.Duration) []*model.Event {
	cutoff := now.Add(-window)
	var recent []*model.Event
	for _, e := range events {
		if e.Timestamp.IsZero() {
			continue
		}
		if e.Timestamp.After(cutoff) {
			recent = append(recent, e)
		}
	}
	return recent
}

// timeBounds returns the earliest and latest event timestamps.
func timeBounds(events []*model.Event) (first, last time.Time) {
	for _, e := range events {
		if e.Timestamp.IsZero() {
			continue
		}
		if first.IsZero() || e.Timestamp.Before(first) {
			first = e.Timestamp
		}
		if last.IsZero() || e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}
	return first, last
}
