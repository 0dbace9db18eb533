package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jwebster45206/scene-engine/internal/agents"
	"github.com/jwebster45206/scene-engine/internal/config"
	"github.com/jwebster45206/scene-engine/internal/logger"
	"github.com/jwebster45206/scene-engine/internal/services"
	"github.com/jwebster45206/scene-engine/internal/services/events"
	"github.com/jwebster45206/scene-engine/internal/services/queue"
	"github.com/jwebster45206/scene-engine/internal/storage"
	"github.com/jwebster45206/scene-engine/internal/worker"
	"github.com/jwebster45206/scene-engine/pkg/orchestrator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Scene Engine Worker",
		"environment", cfg.Environment,
		"concurrency", cfg.WorkerConcurrency,
		"max_runs", cfg.WorkerMaxRuns)

	// Initialize queue service
	queueClient, err := queue.NewClient(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to create queue client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			log.Error("Error closing queue client", "error", err)
		}
	}()
	sceneQueue := queue.NewSceneQueue(queueClient, log)
	log.Info("Queue service initialized successfully")

	// Initialize storage service
	storageService := storage.NewRedisStorage(cfg.RedisURL, cfg.DataDir, log)
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()
	if err := storageService.WaitForConnection(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := storageService.Close(); err != nil {
			log.Error("Failed to close storage", "error", err)
		}
	}()
	log.Info("Storage service initialized successfully")

	var recorder orchestrator.Recorder = storageService
	if cfg.DatabaseURL != "" {
		archive, err := storage.NewPostgresArchive(storageCtx, cfg.DatabaseURL, cfg.DBSchema, log)
		if err != nil {
			log.Error("Failed to connect to run archive", "error", err)
			os.Exit(1)
		}
		defer archive.Close()
		if err := archive.EnsureSchema(storageCtx); err != nil {
			log.Error("Failed to prepare run archive", "error", err)
			os.Exit(1)
		}
		recorder = orchestrator.Recorders{storageService, archive}
		log.Info("Postgres run archive enabled", "schema", cfg.DBSchema)
	}

	// Initialize LLM chain
	llm, err := services.NewChain(context.Background(), cfg, log)
	if err != nil {
		log.Error("Failed to initialize LLM providers", "error", err)
		os.Exit(1)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := worker.NewMetrics(registry)

	broadcaster := events.NewBroadcaster(storageService.Client(), log)
	runner := worker.NewSceneRunner(worker.RunnerConfig{
		MaxTurns:         cfg.MaxTurns,
		MinTurns:         cfg.MinTurns,
		MinActions:       cfg.MinActions,
		MemoryBufferSize: cfg.MemoryBufferSize,
		MaxConsecutive:   cfg.MaxConsecutive,
		ConclusionMode:   cfg.ConclusionMode,
		CatalogDir:       cfg.CatalogDir,
	}, worker.RunnerDeps{
		Scenarios: storageService,
		Director:  agents.NewDirector(llm, cfg.MinActions, log),
		Character: agents.NewCharacterAgent(llm, log),
		Recorder:  recorder,
		Observer:  broadcaster,
		Metrics:   metrics,
		Logger:    log,
	})

	w := worker.New(sceneQueue, runner, broadcaster, storageService.Client(), log, cfg.WorkerID, cfg.WorkerConcurrency, cfg.WorkerMaxRuns)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		rw.Header().Set("Content-Type", "application/json")
		if err := storageService.Ping(ctx); err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_, _ = rw.Write([]byte(`{"status": "unhealthy"}`))
			return
		}
		_, _ = rw.Write([]byte(`{"status": "ok"}`))
	})
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Metrics server listening", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", "error", err)
		}
	}()

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Start(); err != nil {
			log.Error("Worker error", "error", err)
		}
	}()

	log.Info("Worker started, waiting for requests...", "worker_id", w.ID())

	<-quit
	log.Info("Worker shutdown signal received")
	w.Stop()

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		log.Warn("Worker did not stop in time")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Metrics server shutdown failed", "error", err)
	}

	log.Info("Worker exited")
}
