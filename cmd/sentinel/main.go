package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/socforge/sentinel/internal/api"
	"github.com/socforge/sentinel/internal/cognitive"
	"github.com/socforge/sentinel/internal/config"
	"github.com/socforge/sentinel/internal/engine"
	"github.com/socforge/sentinel/internal/metrics"
	"github.com/socforge/sentinel/internal/sink"
	"github.com/socforge/sentinel/internal/store"
)

func main() {
	var (
		configPath    = flag.String("config", "", "path to YAML config file (optional)")
		serve         = flag.Bool("serve", false, "keep serving the HTTP API after analysis")
		simulate      = flag.Bool("simulate-cognitive", false, "draw breach-pressure and pain-bias signals from a seeded simulator")
		cognitiveSeed = flag.Int64("cognitive-seed", 1, "seed for the cognitive simulator")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting Sentinel Log Analyzer")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("Configuration loaded",
		"http_addr", cfg.HTTPAddr,
		"nats_url", cfg.NATSURL,
		"failed_login_threshold", cfg.FailedLoginThreshold,
		"dedup_policy", cfg.DedupPolicy,
		"correlation_workers", cfg.CorrelationWorkers,
		"live_intel", cfg.EnableLiveThreatIntel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prometheusMetrics := metrics.New()

	memoryStore := store.NewMemoryStore(cfg.MaxAlerts, cfg.DedupeCap)
	logger.Info("Memory store initialized", "max_alerts", cfg.MaxAlerts, "dedupe_cap", cfg.DedupeCap)

	sinks := []engine.Sink{memoryStore}

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer nc.Close()
		logger.Info("Connected to NATS", "url", cfg.NATSURL)
		sinks = append(sinks, sink.NewNATSPublisher(nc, logger))
	}

	if cfg.PostgresDSN != "" {
		pg, err := store.NewPostgresStore(cfg.PostgresDSN, logger)
		if err != nil {
			logger.Error("Failed to connect to Postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		logger.Info("Connected to Postgres")
		sinks = append(sinks, pg)
	}

	eng := engine.New(cfg, logger,
		engine.WithMetrics(prometheusMetrics),
		engine.WithSinks(sinks...),
	)

	mod := cognitive.Neutral()
	if *simulate {
		mod = cognitive.NewSimulator(*cognitiveSeed).Next()
		logger.Info("Cognitive modulation active",
			"breach_pressure", mod.BreachPressure,
			"pain_bias", mod.PainBias)
	}

	var analyzed atomic.Bool

	// HTTP API serving stored alerts, MITRE summary, and metrics.
	httpAPI := api.NewHTTPAPI(memoryStore, analyzed.Load)
	mux := http.NewServeMux()
	httpAPI.SetupRoutes(mux)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		logger.Info("Starting HTTP server", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	exitCode := 0
	for _, path := range flag.Args() {
		result, err := eng.AnalyzeFile(ctx, path, mod)
		if err != nil {
			logger.Error("Analysis failed", "path", path, "error", err)
			exitCode = 1
			continue
		}
		printRunSummary(result)
	}
	analyzed.Store(true)

	if !*serve {
		shutdown(httpServer, logger)
		os.Exit(exitCode)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Sentinel service started successfully")
	<-sigChan

	logger.Info("Shutting down sentinel service...")
	cancel()
	shutdown(httpServer, logger)
	logger.Info("Sentinel service stopped")
}

func shutdown(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
}

func printRunSummary(result *engine.Result) {
	fmt.Printf("\n=== %s ===\n", result.Source)
	fmt.Printf("run %s: %d lines, %d events, %d alerts (%d suppressed, %d deduped, %d anomalies)\n",
		result.RunID, result.TotalLines, result.ParsedEvents, len(result.Alerts),
		result.Stats.FalsePositivesSuppressed, result.Stats.DuplicatesDropped,
		result.Stats.AnomaliesDetected)
	for _, a := range result.Alerts {
		fmt.Printf("  [%s] %s %s risk=%d confidence=%d%%\n",
			a.ThreatLevel, a.ThreatType, a.Entity(), a.RiskScore, a.Confidence)
	}
}
