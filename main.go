package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/parth2411/aerialintelligence/internal/alert"
	"github.com/parth2411/aerialintelligence/internal/classify"
	"github.com/parth2411/aerialintelligence/internal/config"
	"github.com/parth2411/aerialintelligence/internal/dedup"
	"github.com/parth2411/aerialintelligence/internal/health"
	"github.com/parth2411/aerialintelligence/internal/logger"
	"github.com/parth2411/aerialintelligence/internal/motion"
	"github.com/parth2411/aerialintelligence/internal/optimize"
	"github.com/parth2411/aerialintelligence/internal/pipeline"
	"github.com/parth2411/aerialintelligence/internal/service"
	"github.com/parth2411/aerialintelligence/internal/state"
	"github.com/parth2411/aerialintelligence/internal/storage"
	"github.com/parth2411/aerialintelligence/internal/threat"
	"github.com/parth2411/aerialintelligence/internal/watcher"
	"github.com/parth2411/aerialintelligence/internal/web"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&configPath, "c", "", "Path to configuration file (short)")
	flag.Parse()

	// Credentials usually live in a local .env during development
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting frame sentry",
		"version", version,
		"build_time", buildTime,
		"git_commit", gitCommit,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Result store
	dbPath := filepath.Join(cfg.Pipeline.DataDir, "db", "sentry.db")
	stateMgr, err := state.NewManager(dbPath, log)
	if err != nil {
		log.Error("Failed to open result store", "error", err)
		os.Exit(1)
	}
	defer stateMgr.Close()

	// Pipeline components
	notifier := alert.NewNotifier(alert.NotifierConfig{
		Enabled:  cfg.Pipeline.Alerts.Enabled,
		BotToken: cfg.Pipeline.Alerts.BotToken,
		ChatID:   cfg.Pipeline.Alerts.ChatID,
	}, log)

	if notifier.Enabled() {
		if err := notifier.TestConnection(ctx); err != nil {
			log.Warn("Telegram connection test failed, alerts may not deliver", "error", err)
		}
	}

	orchestrator := pipeline.NewOrchestrator(cfg.Pipeline.Processing, pipeline.Deps{
		Detector: motion.NewDetector(motion.Config{
			Threshold:        cfg.Pipeline.Motion.Threshold,
			MinChangePercent: cfg.Pipeline.Motion.MinChangePercent,
		}),
		Deduplicator: dedup.NewDeduplicator(dedup.Config{
			SimilarityThreshold: cfg.Pipeline.Dedup.SimilarityThreshold,
		}),
		Optimizer: optimize.NewOptimizer(optimize.Config{
			MaxSizeKB:    cfg.Pipeline.Optimizer.MaxSizeKB,
			Quality:      cfg.Pipeline.Optimizer.Quality,
			MaxDimension: cfg.Pipeline.Optimizer.MaxDimension,
		}, log),
		Classifier: classify.NewClient(classify.ClientConfig{
			APIURL:     cfg.Pipeline.Classifier.APIURL,
			APIKey:     cfg.Pipeline.Classifier.APIKey,
			Task:       cfg.Pipeline.Classifier.Task,
			Timeout:    cfg.Pipeline.Classifier.Timeout,
			MaxRetries: cfg.Pipeline.Classifier.MaxRetries,
			RetryDelay: cfg.Pipeline.Classifier.RetryDelay,
		}, stateMgr, log),
		Scorer: threat.NewScorer(threat.Config{
			AlertThreshold: cfg.Pipeline.Threat.AlertThreshold,
		}),
		Debouncer: alert.NewDebouncer(alert.DebouncerConfig{
			CooldownOverride: cfg.Pipeline.Alerts.CooldownOverride,
		}),
		Notifier: notifier,
		Store:    stateMgr,
	}, log)

	frameWatcher := watcher.New(watcher.Config{
		FramesDir: cfg.FramesDir(),
		Interval:  cfg.Pipeline.Capture.Interval,
	}, orchestrator, log)

	// Service manager
	svcMgr := service.NewManager(log)
	svcMgr.Register(orchestrator)
	svcMgr.Register(frameWatcher)

	if cfg.Pipeline.Retention.Enabled {
		svcMgr.Register(storage.NewRetentionPolicy(storage.Config{
			FramesDir: cfg.FramesDir(),
			MaxAge:    cfg.Pipeline.Retention.MaxAge,
			Interval:  cfg.Pipeline.Retention.Interval,
		}, stateMgr, log))
	}

	if cfg.Pipeline.Web.Enabled {
		webServer := web.NewServer(cfg.Pipeline.Web, log)
		webServer.SetPipelineDependency(orchestrator)
		webServer.SetStateDependency(stateMgr)
		webServer.SetStatusDependency(svcMgr)
		orchestrator.AddResultSink(webServer.BroadcastResult)
		svcMgr.Register(webServer)
	}

	// Health check server
	healthMgr := health.NewManager(cfg.Pipeline.Health.Port, log, svcMgr)
	healthMgr.RegisterChecker(health.NewDatabaseChecker(dbPath))
	healthMgr.RegisterChecker(health.NewClassifierChecker(cfg.Pipeline.Classifier.APIURL))
	healthMgr.RegisterChecker(health.NewFramesDirChecker(cfg.FramesDir()))

	if err := healthMgr.Start(ctx); err != nil {
		log.Error("Failed to start health check server", "error", err)
		os.Exit(1)
	}

	if err := svcMgr.Start(ctx); err != nil {
		log.Error("Failed to start services", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("Received shutdown signal", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := healthMgr.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping health check server", "error", err)
	}

	if err := svcMgr.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Shutdown complete")
}
