package scoring

import (
	"github.com/socforge/sentinel/internal/config"
	"github.com/socforge/sentinel/internal/model"
)

// RiskInput carries every signal the risk model fuses for one entity.
type RiskInput struct {
	FailedAttempts        int
	PortScans             int
	GeoRisk               bool
	ThreatIntelHit        bool
	TorExit               bool
	SuccessfulAfterFailed bool
	UniqueUsers           int
	WindowEventCount      int
	MLAnomalyScore        float64
}

// RiskScorer fuses threat indicators into a risk score. Weights are
// configuration, not constants, so deployments can tune them.
type RiskScorer struct {
	cfg *config.Config
}

// NewRiskScorer creates a risk scorer bound to a configuration.
func NewRiskScorer(cfg *config.Config) *RiskScorer {
	return &RiskScorer{cfg: cfg}
}

// Fixed bonuses that are part of the model shape rather than deployment
// tuning.
const (
	successAfterFailedBonus = 15
	sprayBaseBonus          = 10
	sprayPerUserBonus       = 2
	sprayUserFloor          = 3
	rapidWindowBonus        = 20
	rapidWindowEvents       = 20
	anomalyWeight           = 30
)

// Score returns the additive risk score clamped to [0,100].
func (s *RiskScorer) Score(in RiskInput) int {
	score := float64(in.FailedAttempts*s.cfg.WeightFailedAuth + in.PortScans*s.cfg.WeightPortScan)

	if in.GeoRisk {
		score += float64(s.cfg.WeightGeoRisk)
	}
	if in.ThreatIntelHit {
		score += float64(s.cfg.WeightThreatIntel)
	}
	if in.TorExit {
		score += float64(s.cfg.WeightTorExit)
	}
	if in.SuccessfulAfterFailed {
		score += successAfterFailedBonus
	}

	// Password-spraying shape: one source hitting many accounts.
	if in.UniqueUsers >= sprayUserFloor {
		score += float64(sprayBaseBonus + sprayPerUserBonus*in.UniqueUsers)
	}

	// Rapid attack: dense activity inside the analysis window.
	if in.WindowEventCount > rapidWindowEvents {
		score += rapidWindowBonus
	}

	score += in.MLAnomalyScore * anomalyWeight

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return int(score)
}

// ConfidenceInput carries the detection-quality signals.
type ConfidenceInput struct {
	DataQuality            float64 // [0,1], log completeness
	ThreatIntelMatch       bool
	BehavioralConsistency  float64 // [0,1]
	FalsePositiveIndicators int
}

// Confidence returns how confident the detection is, clamped to [10,100].
func Confidence(in ConfidenceInput) int {
	confidence := 50.0

	confidence += in.DataQuality * 20
	if in.ThreatIntelMatch {
		confidence += 25
	}
	confidence += in.BehavioralConsistency * 20
	confidence -= float64(in.FalsePositiveIndicators) * 10

	if confidence < 10 {
		return 10
	}
	if confidence > 100 {
		return 100
	}
	return int(confidence)
}

// ClassifyThreat maps a risk score to a threat level.
func ClassifyThreat(risk int) model.ThreatLevel {
	switch {
	case risk >= 80:
		return model.LevelCritical
	case risk >= 60:
		return model.LevelHigh
	default:
		return model.LevelMedium
	}
}
