// Command rebuild-stats recomputes the catalog statistic from every stored
// video and replaces the stored aggregate. Run it after videos were removed
// or edited outside the service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iconidentify/vidshelf/internal/config"
	"github.com/iconidentify/vidshelf/internal/repository"
	"github.com/iconidentify/vidshelf/internal/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	timeout := flag.Duration("timeout", 30*time.Minute, "Abort the rebuild after this long")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("rebuild-stats %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	store, err := repository.OpenStore(ctx, cfg.Catalog)
	if err != nil {
		logger.Error("failed to open catalog store", "backend", cfg.Catalog.Backend, "error", err)
		os.Exit(1)
	}
	defer store.Close(context.Background())

	svc := service.NewStatisticService(
		store.Videos(),
		store.Statistics(),
		service.StatisticConfig{
			AccessKey: cfg.Statistics.AccessKey,
			TopN:      cfg.Statistics.TopN,
		},
		logger,
	)

	stat, err := svc.Rebuild(ctx)
	if err != nil {
		logger.Error("rebuild failed", "error", err)
		store.Close(context.Background())
		os.Exit(1)
	}

	logger.Info("statistic rebuilt",
		"tags", len(stat.Tags),
		"categories", len(stat.Categories),
		"hashtags", len(stat.Hashtags),
	)
}
