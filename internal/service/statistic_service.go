package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iconidentify/vidshelf/internal/catalog"
	"github.com/iconidentify/vidshelf/internal/domain"
	"github.com/iconidentify/vidshelf/internal/metrics"
	"github.com/iconidentify/vidshelf/internal/repository"
)

// StatisticConfig configures the statistic service.
type StatisticConfig struct {
	AccessKey string
	TopN      int
	// Timeout bounds each store call.
	Timeout time.Duration
}

// StatisticService maintains and serves the catalog-wide statistic.
type StatisticService struct {
	videos repository.VideoRepository
	stats  repository.StatisticRepository
	cfg    StatisticConfig
	logger *slog.Logger
}

// NewStatisticService creates a new statistic service.
func NewStatisticService(
	videos repository.VideoRepository,
	stats repository.StatisticRepository,
	cfg StatisticConfig,
	logger *slog.Logger,
) *StatisticService {
	if cfg.AccessKey == "" {
		cfg.AccessKey = domain.DefaultAccessKey
	}
	if cfg.TopN <= 0 {
		cfg.TopN = catalog.TopN
	}
	return &StatisticService{
		videos: videos,
		stats:  stats,
		cfg:    cfg,
		logger: logger,
	}
}

// RecordVideo folds a stored video into the statistic.
func (s *StatisticService) RecordVideo(ctx context.Context, video *domain.Video) error {
	ctx, cancel := withTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := s.stats.Record(ctx, s.cfg.AccessKey, video)
	metrics.ObserveStore("statistics.record", start, err)
	metrics.StatisticRecordsTotal.WithLabelValues(metrics.Status(err)).Inc()
	if err != nil {
		s.logger.Error("failed to record video", "video", video.Key().String(), "error", err)
		return err
	}

	s.logger.Debug("recorded video", "video", video.Key().String(), "views", video.ViewCount)
	return nil
}

// RecordByKey loads a video by key and records it.
func (s *StatisticService) RecordByKey(ctx context.Context, key domain.VideoKey) error {
	video, err := s.loadVideo(ctx, key)
	if err != nil {
		return err
	}
	return s.RecordVideo(ctx, video)
}

func (s *StatisticService) loadVideo(ctx context.Context, key domain.VideoKey) (*domain.Video, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	video, err := s.videos.Get(ctx, key)
	metrics.ObserveStore("videos.get", start, err)
	return video, err
}

// Get returns the full statistic, creating an empty one if none exists.
func (s *StatisticService) Get(ctx context.Context) (*domain.Statistic, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	stat, err := s.stats.GetOrCreate(ctx, s.cfg.AccessKey)
	metrics.ObserveStore("statistics.get", start, err)
	if err != nil {
		return nil, err
	}
	return stat, nil
}

// Snapshot returns the statistic with every table cut to the top entries.
func (s *StatisticService) Snapshot(ctx context.Context) (*domain.Statistic, error) {
	stat, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Present(stat, s.cfg.TopN), nil
}

// Rebuild recomputes the statistic from the whole video collection and
// replaces the stored one. No per-call timeout applies; ctx bounds the run.
func (s *StatisticService) Rebuild(ctx context.Context) (*domain.Statistic, error) {
	started := time.Now()
	tally := catalog.NewTally(s.cfg.AccessKey)
	var recorded []string

	err := s.videos.Each(ctx, func(v *domain.Video) error {
		if tally.Record(v) {
			recorded = append(recorded, v.DocumentID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan videos: %w", err)
	}

	stat := tally.Statistic()
	start := time.Now()
	err = s.stats.Replace(ctx, stat, recorded)
	metrics.ObserveStore("statistics.replace", start, err)
	if err != nil {
		return nil, fmt.Errorf("replace statistic: %w", err)
	}

	s.logger.Info("rebuilt statistic",
		"access_key", s.cfg.AccessKey,
		"videos", len(recorded),
		"duration", time.Since(started),
	)
	return stat, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
