package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iconidentify/vidshelf/internal/api"
	"github.com/iconidentify/vidshelf/internal/api/handler"
	"github.com/iconidentify/vidshelf/internal/config"
	"github.com/iconidentify/vidshelf/internal/metrics"
	"github.com/iconidentify/vidshelf/internal/repository"
	"github.com/iconidentify/vidshelf/internal/service"
	"github.com/iconidentify/vidshelf/internal/worker"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("vidshelf %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting vidshelf",
		"version", Version,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Open the catalog store
	openCtx, cancelOpen := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := repository.OpenStore(openCtx, cfg.Catalog)
	cancelOpen()
	if err != nil {
		logger.Error("failed to open catalog store", "backend", cfg.Catalog.Backend, "error", err)
		os.Exit(1)
	}
	metrics.Init(Version, cfg.Catalog.Backend)

	// Initialize services
	statSvc := service.NewStatisticService(
		store.Videos(),
		store.Statistics(),
		service.StatisticConfig{
			AccessKey: cfg.Statistics.AccessKey,
			TopN:      cfg.Statistics.TopN,
			Timeout:   cfg.Catalog.Timeout,
		},
		logger,
	)
	querySvc := service.NewQueryService(
		store.Videos(),
		store.Uploaders(),
		nil,
		service.QueryConfig{
			PageSize: cfg.Query.PageSize,
			TopN:     cfg.Statistics.TopN,
			Timeout:  cfg.Catalog.Timeout,
		},
		logger,
	)

	// Initialize handlers
	statisticHandler := handler.NewStatisticHandler(statSvc, logger)
	catalogHandler := handler.NewCatalogHandler(querySvc, logger)
	healthHandler := handler.NewHealthHandler(store, cfg.Catalog.Backend)

	// Setup router
	router := api.NewRouter(statisticHandler, catalogHandler, healthHandler, cfg.Server.RequestTimeout, logger)

	// Ingestion notifications feed the worker pool when NATS is configured
	var (
		source *worker.NATSSource
		pool   *worker.Pool
	)
	if cfg.NATS.URL != "" {
		source, err = worker.NewNATSSource(worker.NATSConfig{
			URL:     cfg.NATS.URL,
			Subject: cfg.NATS.Subject,
			Queue:   cfg.NATS.Queue,
			Buffer:  cfg.NATS.Buffer,
		}, logger)
		if err != nil {
			logger.Error("failed to start ingestion consumer", "error", err)
			os.Exit(1)
		}

		pool = worker.NewPool(worker.Config{Workers: cfg.Worker.Count}, source.Keys(), statSvc, logger)
		pool.Start()
	} else {
		logger.Info("NATS_URL not set, ingestion consumer disabled")
	}

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting new requests
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Stop consuming, then let in-flight records complete
	if source != nil {
		source.Close()
	}
	if pool != nil {
		if err := pool.Stop(cfg.Worker.ShutdownTimeout); err != nil {
			logger.Error("worker pool shutdown error", "error", err)
		}
	}

	if err := store.Close(ctx); err != nil {
		logger.Error("catalog store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
