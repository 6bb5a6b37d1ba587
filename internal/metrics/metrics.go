package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus counters for the detection engine.
type Metrics struct {
	LinesTotal               prometheus.Counter
	EventsParsed             prometheus.Counter
	AlertsGenerated          prometheus.Counter
	AlertsEmitted            prometheus.Counter
	AlertsDeduplicated       prometheus.Counter
	FalsePositivesSuppressed prometheus.Counter
	AnomaliesDetected        prometheus.Counter
	IntelLookups             prometheus.Counter
	IntelLookupErrors        prometheus.Counter
	SinkErrors               prometheus.Counter
}

// New creates a Metrics instance with all counters registered.
func New() *Metrics {
	return &Metrics{
		LinesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_lines_total",
			Help: "Total number of raw log lines read",
		}),
		EventsParsed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_events_parsed_total",
			Help: "Total number of lines parsed into events",
		}),
		AlertsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_alerts_generated_total",
			Help: "Total number of candidate alerts generated by rules",
		}),
		AlertsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_alerts_emitted_total",
			Help: "Total number of alerts emitted after deduplication",
		}),
		AlertsDeduplicated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_alerts_deduplicated_total",
			Help: "Total number of alerts dropped by deduplication",
		}),
		FalsePositivesSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_false_positives_suppressed_total",
			Help: "Total number of candidates suppressed by FP reduction",
		}),
		AnomaliesDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_anomalies_detected_total",
			Help: "Total number of entities scoring past the anomaly threshold",
		}),
		IntelLookups: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_intel_lookups_total",
			Help: "Total number of IP reputation checks",
		}),
		IntelLookupErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_intel_lookup_errors_total",
			Help: "Total number of live threat intel lookups that failed soft",
		}),
		SinkErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_sink_errors_total",
			Help: "Total number of alert sink delivery errors",
		}),
	}
}
