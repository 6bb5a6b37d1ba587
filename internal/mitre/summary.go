package mitre

import (
	"sort"

	"github.com/socforge/sentinel/internal/model"
)

// TimelineEntry is one alert placed on the attack timeline.
type TimelineEntry struct {
	Time      string            `json:"time"`
	Tactic    string            `json:"tactic"`
	Technique string            `json:"technique"`
	Threat    model.ThreatType  `json:"threat"`
	Severity  model.ThreatLevel `json:"severity"`
}

// Summary aggregates ATT&CK context across a batch of alerts for reporting.
type Summary struct {
	TacticHeatmap   map[string]int  `json:"tactic_heatmap"`
	TechniqueCounts map[string]int  `json:"technique_counts"`
	Timeline        []TimelineEntry `json:"timeline"`
	TotalAlerts     int             `json:"total_alerts"`
}

// Summarize builds the tactic heatmap, technique counts, and ordered attack
// timeline for a batch of alerts.
func Summarize(alerts []*model.Alert) Summary {
	s := Summary{
		TacticHeatmap:   make(map[string]int),
		TechniqueCounts: make(map[string]int),
		TotalAlerts:     len(alerts),
	}

	for _, a := range alerts {
		tactic := a.MITRE.Tactic
		if tactic == "" {
			tactic = "UNKNOWN"
		}
		s.TacticHeatmap[tactic]++

		if a.MITRE.TechniqueID != "" {
			s.TechniqueCounts[a.MITRE.TechniqueID]++
		}

		s.Timeline = append(s.Timeline, TimelineEntry{
			Time:      a.FirstSeen.UTC().Format("2006-01-02T15:04:05Z07:00"),
			Tactic:    tactic,
			Technique: a.MITRE.TechniqueID,
			Threat:    a.ThreatType,
			Severity:  a.ThreatLevel,
		})
	}

	sort.Slice(s.Timeline, func(i, j int) bool {
		return s.Timeline[i].Time < s.Timeline[j].Time
	})

	return s
}
