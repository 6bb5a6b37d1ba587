package engine

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/socforge/sentinel/internal/baseline"
	"github.com/socforge/sentinel/internal/config"
	"github.com/socforge/sentinel/internal/correlator"
	"github.com/socforge/sentinel/internal/intel"
	"github.com/socforge/sentinel/internal/metrics"
	"github.com/socforge/sentinel/internal/model"
	"github.com/socforge/sentinel/internal/parser"
)

// Sink receives every emitted alert exactly once per run. Upsert must be
// idempotent on the alert ID.
type Sink interface {
	Upsert(ctx context.Context, alert *model.Alert) error
}

// Result is the outcome of one analysis run. Zero alerts is a valid,
// explicit empty result, not a failure.
type Result struct {
	RunID        string              `json:"run_id"`
	Source       string              `json:"source"`
	TotalLines   int                 `json:"total_lines"`
	ParsedEvents int                 `json:"parsed_events"`
	Alerts       []*model.Alert      `json:"alerts"`
	Stats        correlator.RunStats `json:"stats"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
}

// Engine wires the two-pass pipeline: sequential parse + baseline build,
// then parallel per-entity correlation, dedup, and sink delivery.
type Engine struct {
	cfg     *config.Config
	parser  *parser.Parser
	intel   *intel.Adapter
	corr    *correlator.Correlator
	dedupe  *correlator.Deduplicator
	sinks   []Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock; it propagates to the parser,
// correlator, and deduplicator so window tests are reproducible.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMetrics attaches Prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithSinks sets the alert sinks. The engine calls Upsert once per emitted
// alert; sink failures are logged and do not abort the run.
func WithSinks(sinks ...Sink) Option {
	return func(e *Engine) { e.sinks = sinks }
}

// New assembles an engine from configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.parser = parser.New(parser.WithClock(e.now))

	intelOpts := []intel.Option{intel.WithClock(e.now)}
	if e.metrics != nil {
		intelOpts = append(intelOpts, intel.WithMetrics(e.metrics))
	}
	e.intel = intel.New(cfg, logger.With("component", "intel"), intelOpts...)

	corrOpts := []correlator.Option{correlator.WithClock(e.now)}
	if e.metrics != nil {
		corrOpts = append(corrOpts, correlator.WithMetrics(e.metrics))
	}
	e.corr = correlator.New(cfg, e.intel, logger.With("component", "correlator"), corrOpts...)
	e.dedupe = correlator.NewDeduplicator(cfg.AlertDedupWindow(), cfg.DedupPolicy, e.now)

	return e
}

// AnalyzeFile runs the pipeline over one log file. A missing or unreadable
// file is fatal for the run; everything downstream fails soft.
func (e *Engine) AnalyzeFile(ctx context.Context, path string, mod correlator.Modulation) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	return e.AnalyzeLines(ctx, lines, filepath.Base(path), mod)
}

// AnalyzeLines runs the pipeline over a batch of raw lines.
func (e *Engine) AnalyzeLines(ctx context.Context, lines []string, source string, mod correlator.Modulation) (*Result, error) {
	started := e.now()
	e.logger.Info("Starting analysis", "source", source, "lines", len(lines))

	// Pass 1: sequential parse, then the baseline over the complete event
	// set — it cannot be built incrementally.
	events := e.parser.ParseAll(lines, source)

	if e.metrics != nil {
		e.metrics.LinesTotal.Add(float64(len(lines)))
		e.metrics.EventsParsed.Add(float64(len(events)))
	}

	var scorer *baseline.Scorer
	if e.cfg.EnableAnomalyDetection {
		scorer = baseline.NewScorer(baseline.Build(events))
	}

	// Pass 2: per-entity correlation.
	stats := &correlator.Stats{}
	alerts := e.corr.Correlate(ctx, events, scorer, mod, stats)

	if e.cfg.EnableAlertDedup {
		var dropped int
		alerts, dropped = e.dedupe.Dedupe(alerts)
		stats.AddDuplicates(dropped)
		stats.Recount(alerts)
		if e.metrics != nil {
			e.metrics.AlertsDeduplicated.Add(float64(dropped))
		}
	}

	e.deliver(ctx, alerts)

	result := &Result{
		RunID:        uuid.NewString(),
		Source:       source,
		TotalLines:   len(lines),
		ParsedEvents: len(events),
		Alerts:       alerts,
		Stats:        stats.Snapshot(),
		StartedAt:    started,
		FinishedAt:   e.now(),
	}

	e.logger.Info("Analysis complete",
		"run_id", result.RunID,
		"source", source,
		"lines", result.TotalLines,
		"events", result.ParsedEvents,
		"alerts", len(alerts),
		"suppressed", result.Stats.FalsePositivesSuppressed,
		"deduped", result.Stats.DuplicatesDropped,
		"duration", result.FinishedAt.Sub(result.StartedAt))

	return result, nil
}

// deliver upserts each emitted alert into every sink. Sink errors are
// surfaced as warnings, never as run failures.
func (e *Engine) deliver(ctx context.Context, alerts []*model.Alert) {
	for _, a := range alerts {
		for _, sink := range e.sinks {
			if err := sink.Upsert(ctx, a); err != nil {
				e.logger.Warn("Alert sink delivery failed", "alert_id", a.ID, "error", err)
				if e.metrics != nil {
					e.metrics.SinkErrors.Inc()
				}
			}
		}
		if e.metrics != nil {
			e.metrics.AlertsEmitted.Inc()
		}
	}
}
