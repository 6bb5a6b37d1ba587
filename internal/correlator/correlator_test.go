package correlator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socforge/sentinel/internal/baseline"
	"github.com/socforge/sentinel/internal/config"
	"github.com/socforge/sentinel/internal/intel"
	"github.com/socforge/sentinel/internal/model"
)

var testNow = time.Date(2025, 8, 12, 14, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCorrelator(t *testing.T, cfg *config.Config) *Correlator {
	t.Helper()
	adapter := intel.New(cfg, testLogger())
	return New(cfg, adapter, testLogger(), WithClock(func() time.Time { return testNow }))
}

func failedLogin(ip, user string, secondsAgo int) *model.Event {
	return &model.Event{
		Timestamp: testNow.Add(-time.Duration(secondsAgo) * time.Second),
		Type:      model.EventSSHFailedPassword,
		IP:        ip,
		User:      user,
	}
}

func acceptedLogin(ip, user string, secondsAgo int) *model.Event {
	return &model.Event{
		Timestamp: testNow.Add(-time.Duration(secondsAgo) * time.Second),
		Type:      model.EventSSHAcceptedPassword,
		IP:        ip,
		User:      user,
	}
}

func connectionAttempt(ip, port string, secondsAgo int) *model.Event {
	return &model.Event{
		Timestamp: testNow.Add(-time.Duration(secondsAgo) * time.Second),
		Type:      model.EventConnectionAttempt,
		IP:        ip,
		Port:      port,
	}
}

func TestCorrelate_BruteForce(t *testing.T) {
	cfg := config.Default()
	c := newTestCorrelator(t, cfg)

	var events []*model.Event
	for i := 0; i < 6; i++ {
		events = append(events, failedLogin("203.0.113.9", "admin", 60-i*10))
	}

	stats := &Stats{}
	alerts := c.Correlate(context.Background(), events, nil, Modulation{}, stats)

	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, model.ThreatSSHBruteForce, a.ThreatType)
	assert.Equal(t, model.CategoryAuthentication, a.Category)
	assert.Equal(t, "203.0.113.9", a.SourceIP)
	assert.Equal(t, model.StateOpen, a.State)
	require.NotNil(t, a.BruteForce)
	assert.Equal(t, 6, a.BruteForce.FailedAttempts)
	assert.Equal(t, 0, a.BruteForce.SuccessfulLogins)
	assert.Equal(t, 36, a.RiskScore)
	assert.Equal(t, model.LevelMedium, a.ThreatLevel)
	assert.Equal(t, 88, a.Confidence)
	assert.Equal(t, "T1110.001", a.MITRE.TechniqueID)

	snap := stats.Snapshot()
	assert.Equal(t, 1, snap.ThreatsDetected)
	assert.Equal(t, 1, snap.MediumThreats)
}

func TestCorrelate_BelowThresholdNoAlert(t *testing.T) {
	cfg := config.Default()
	c := newTestCorrelator(t, cfg)

	var events []*model.Event
	for i := 0; i < 4; i++ {
		events = append(events, failedLogin("203.0.113.9", "admin", 60-i*10))
	}

	stats := &Stats{}
	alerts := c.Correlate(context.Background(), events, nil, Modulation{}, stats)
	assert.Empty(t, alerts)
}

func TestCorrelate_AccountCompromise(t *testing.T) {
	cfg := config.Default()
	c := newTestCorrelator(t, cfg)

	// No failed logins anywhere; the signal is one account roaming across
	// sources.
	ips := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5"}
	var events []*model.Event
	for i, ip := range ips {
		events = append(events, acceptedLogin(ip, "bob", 300-i*30))
	}

	stats := &Stats{}
	alerts := c.Correlate(context.Background(), events, nil, Modulation{}, stats)

	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, model.ThreatAccountCompromise, a.ThreatType)
	assert.Equal(t, model.CategoryLateralMovement, a.Category)
	assert.Equal(t, "bob", a.Username)
	assert.Equal(t, 60, a.RiskScore)
	assert.Equal(t, 70, a.Confidence)
	assert.Equal(t, model.LevelMedium, a.ThreatLevel)
	require.NotNil(t, a.AccountCompromise)
	assert.Equal(t, 5, a.AccountCompromise.UniqueIPCount)
	assert.Equal(t, ips, a.AccountCompromise.IPs)
}

func TestCorrelate_PortScan(t *testing.T) {
	cfg := config.Default()
	c := newTestCorrelator(t, cfg)

	var events []*model.Event
	for i := 0; i < 16; i++ {
		events = append(events, connectionAttempt("192.0.2.80", fmt.Sprintf("%d", 8000+i), 120-i*5))
	}

	stats := &Stats{}
	alerts := c.Correlate(context.Background(), events, nil, Modulation{}, stats)

	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, model.ThreatPortScanning, a.ThreatType)
	assert.Equal(t, model.CategoryReconnaissance, a.Category)
	require.NotNil(t, a.PortScan)
	assert.Equal(t, 16, a.PortScan.ScanEvents)
	assert.Equal(t, 64, a.RiskScore)
	assert.Equal(t, model.LevelHigh, a.ThreatLevel)
	assert.Equal(t, "T1046", a.MITRE.TechniqueID)
}

func TestCorrelate_FalsePositiveSuppression(t *testing.T) {
	cfg := config.Default()
	c := newTestCorrelator(t, cfg)

	// Below the failure threshold and with enough successful logins: a
	// legitimate user fat-fingering a password.
	events := []*model.Event{
		failedLogin("198.51.100.7", "deploy", 120),
		failedLogin("198.51.100.7", "deploy", 110),
		acceptedLogin("198.51.100.7", "deploy", 100),
		acceptedLogin("198.51.100.7", "deploy", 90),
		acceptedLogin("198.51.100.7", "deploy", 80),
	}

	stats := &Stats{}
	alerts := c.Correlate(context.Background(), events, nil, Modulation{}, stats)

	assert.Empty(t, alerts)
	assert.Equal(t, 1, stats.Snapshot().FalsePositivesSuppressed)
}

func TestCorrelate_FailuresOverrideSuccesses(t *testing.T) {
	cfg := config.Default()
	c := newTestCorrelator(t, cfg)

	// 6 failures and 4 successes: past the failure threshold the successes
	// stop shielding the source and instead mark a possible compromise.
	var events []*model.Event
	for i := 0; i < 6; i++ {
		events = append(events, failedLogin("203.0.113.9", "admin", 120-i*10))
	}
	for i := 0; i < 4; i++ {
		events = append(events, acceptedLogin("203.0.113.9", "admin", 50-i*10))
	}

	stats := &Stats{}
	alerts := c.Correlate(context.Background(), events, nil, Modulation{}, stats)

	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, model.ThreatSSHBruteForce, a.ThreatType)
	require.NotNil(t, a.BruteForce)
	assert.Equal(t, 6, a.BruteForce.FailedAttempts)
	assert.Equal(t, 4, a.BruteForce.SuccessfulLogins)
	assert.Equal(t, 51, a.RiskScore) // 36 + success-after-failure bonus
	assert.Zero(t, stats.Snapshot().FalsePositivesSuppressed)
}

func TestCorrelate_PainBiasBlocksSuppression(t *testing.T) {
	cfg := config.Default()
	c := newTestCorrelator(t, cfg)

	events := []*model.Event{
		failedLogin("198.51.100.7", "deploy", 120),
		failedLogin("198.51.100.7", "deploy", 110),
		acceptedLogin("198.51.100.7", "deploy", 100),
		acceptedLogin("198.51.100.7", "deploy", 90),
		acceptedLogin("198.51.100.7", "deploy", 80),
	}

	stats := &Stats{}
	alerts := c.Correlate(context.Background(), events, nil, Modulation{PainBias: 0.5}, stats)

	// Still below the failure threshold, so no alert — but the candidate is
	// no longer counted as a suppression.
	assert.Empty(t, alerts)
	assert.Zero(t, stats.Snapshot().FalsePositivesSuppressed)
}

func TestCorrelate_BreachPressureEscalates(t *testing.T) {
	cfg := config.Default()
	c := newTestCorrelator(t, cfg)

	// 10 failures put the risk at exactly the HIGH boundary.
	var events []*model.Event
	for i := 0; i < 10; i++ {
		events = append(events, failedLogin("203.0.113.9", "admin", 120-i*10))
	}

	stats := &Stats{}
	alerts := c.Correlate(context.Background(), events, nil, Modulation{}, stats)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.LevelHigh, alerts[0].ThreatLevel)

	stats = &Stats{}
	alerts = c.Correlate(context.Background(), events, nil, Modulation{BreachPressure: 0.7}, stats)
	require.Len(t, alerts, 1)
	assert.Equal(t, model.LevelCritical, alerts[0].ThreatLevel)
	assert.Equal(t, 1, stats.Snapshot().CriticalThreats)
}

func TestCorrelate_ThreatIntelEnrichment(t *testing.T) {
	cfg := config.Default()
	c := newTestCorrelator(t, cfg)

	// Known malicious IP geolocated to a high-risk country.
	var events []*model.Event
	for i := 0; i < 6; i++ {
		events = append(events, failedLogin("185.210.45.22", "root", 60-i*10))
	}

	stats := &Stats{}
	alerts := c.Correlate(context.Background(), events, nil, Modulation{}, stats)

	require.Len(t, alerts, 1)
	a := alerts[0]
	require.NotNil(t, a.BruteForce)
	assert.Contains(t, a.BruteForce.ThreatIntelHits, intel.IndicatorKnownMalicious)
	assert.Equal(t, "RU", a.BruteForce.GeoCountry)
	// 36 base + 20 geo + 30 intel.
	assert.Equal(t, 86, a.RiskScore)
	assert.Equal(t, model.LevelCritical, a.ThreatLevel)
}

func TestCorrelate_AnomalyDetection(t *testing.T) {
	cfg := config.Default()
	c := newTestCorrelator(t, cfg)

	// A quiet background of single-event sources plus one rapid-fire
	// attacker. The attacker's subset trips all three anomaly indicators
	// except none of the background sources do.
	var events []*model.Event
	for i := 0; i < 20; i++ {
		events = append(events, &model.Event{
			Timestamp: testNow.Add(-time.Duration(i+10) * time.Minute),
			Type:      model.EventFirewallBlock,
			IP:        fmt.Sprintf("10.1.0.%d", i+1),
		})
	}
	for i := 0; i < 6; i++ {
		events = append(events, failedLogin("203.0.113.9", "admin", 10-i))
	}

	scorer := baseline.NewScorer(baseline.Build(events))
	stats := &Stats{}
	alerts := c.Correlate(context.Background(), events, scorer, Modulation{}, stats)

	require.NotEmpty(t, alerts)
	var bruteForce *model.Alert
	for _, a := range alerts {
		if a.ThreatType == model.ThreatSSHBruteForce {
			bruteForce = a
		}
	}
	require.NotNil(t, bruteForce)
	assert.Greater(t, bruteForce.MLAnomalyScore, 0.0)
	assert.GreaterOrEqual(t, stats.Snapshot().AnomaliesDetected, 1)
}

func TestCorrelate_EmptyInput(t *testing.T) {
	cfg := config.Default()
	c := newTestCorrelator(t, cfg)

	stats := &Stats{}
	alerts := c.Correlate(context.Background(), nil, nil, Modulation{}, stats)

	assert.Empty(t, alerts)
	snap := stats.Snapshot()
	assert.Zero(t, snap.ThreatsDetected)
	assert.Zero(t, snap.FalsePositivesSuppressed)
}

func TestCorrelate_Deterministic(t *testing.T) {
	cfg := config.Default()
	c := newTestCorrelator(t, cfg)

	var events []*model.Event
	for i := 0; i < 6; i++ {
		events = append(events, failedLogin("203.0.113.9", "admin", 120-i*10))
		events = append(events, failedLogin("198.51.100.7", "root", 110-i*10))
	}
	for i := 0; i < 16; i++ {
		events = append(events, connectionAttempt("192.0.2.80", "80", 100-i*5))
	}

	run := func() []string {
		stats := &Stats{}
		alerts := c.Correlate(context.Background(), events, nil, Modulation{}, stats)
		ids := make([]string, len(alerts))
		for i, a := range alerts {
			ids[i] = a.ID
		}
		return ids
	}

	first := run()
	require.NotEmpty(t, first)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, run())
	}
}

func TestCorrelate_DeterministicAlertIDs(t *testing.T) {
	cfg := config.Default()
	c := newTestCorrelator(t, cfg)

	var events []*model.Event
	for i := 0; i < 6; i++ {
		events = append(events, failedLogin("203.0.113.9", "admin", 60-i*10))
	}

	stats := &Stats{}
	alerts := c.Correlate(context.Background(), events, nil, Modulation{}, stats)
	require.Len(t, alerts, 1)

	want := model.AlertID(model.ThreatSSHBruteForce, "203.0.113.9", alerts[0].FirstSeen)
	assert.Equal(t, want, alerts[0].ID)
	assert.Len(t, alerts[0].ID, 12)
}

func TestCorrelate_CancelledContext(t *testing.T) {
	cfg := config.Default()
	c := newTestCorrelator(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var events []*model.Event
	for i := 0; i < 6; i++ {
		events = append(events, failedLogin("203.0.113.9", "admin", 60-i*10))
	}

	stats := &Stats{}
	// Must return without deadlock; a cancelled run may produce no alerts.
	alerts := c.Correlate(ctx, events, nil, Modulation{}, stats)
	assert.Empty(t, alerts)
}
