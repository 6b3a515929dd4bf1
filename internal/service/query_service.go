package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/iconidentify/vidshelf/internal/catalog"
	"github.com/iconidentify/vidshelf/internal/domain"
	"github.com/iconidentify/vidshelf/internal/metrics"
	"github.com/iconidentify/vidshelf/internal/repository"
)

// DefaultPageSize is the number of videos per search page.
const DefaultPageSize = 12

// QueryConfig configures the query service.
type QueryConfig struct {
	PageSize int
	TopN     int
	// Timeout bounds each store call.
	Timeout time.Duration
}

// Totals carries the size of a full result set.
type Totals struct {
	Count int64 `json:"count"`
}

// Page is one page of search results with the total count and a random
// pick from the whole result set.
type Page struct {
	Videos      []*domain.Video `json:"videos"`
	Totals      Totals          `json:"totals"`
	RandomVideo *domain.Video   `json:"randomVideo"`
}

// QueryService answers read queries over videos and uploaders.
type QueryService struct {
	videos    repository.VideoRepository
	uploaders repository.UploaderRepository
	sampler   *catalog.Sampler
	cfg       QueryConfig
	logger    *slog.Logger
}

// NewQueryService creates a new query service. A nil sampler uses a
// randomly seeded one.
func NewQueryService(
	videos repository.VideoRepository,
	uploaders repository.UploaderRepository,
	sampler *catalog.Sampler,
	cfg QueryConfig,
	logger *slog.Logger,
) *QueryService {
	if sampler == nil {
		sampler = catalog.NewSampler(nil)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.TopN <= 0 {
		cfg.TopN = catalog.TopN
	}
	return &QueryService{
		videos:    videos,
		uploaders: uploaders,
		sampler:   sampler,
		cfg:       cfg,
		logger:    logger,
	}
}

// PageSize returns the configured page size.
func (s *QueryService) PageSize() int {
	return s.cfg.PageSize
}

// Search returns the zero-based page of matching videos. A page past the
// end is empty.
func (s *QueryService) Search(ctx context.Context, q domain.VideoQuery, page int, f domain.VideoFilter) ([]*domain.Video, error) {
	offset, limit := catalog.PageBounds(page, s.cfg.PageSize)
	if limit == 0 {
		return []*domain.Video{}, nil
	}
	return s.find(ctx, "videos.find", q, f, offset, limit)
}

// Count returns the number of matching videos.
func (s *QueryService) Count(ctx context.Context, q domain.VideoQuery, f domain.VideoFilter) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	n, err := s.videos.Count(ctx, q, f)
	metrics.ObserveStore("videos.count", start, err)
	return n, err
}

// RandomVideo returns a uniformly chosen video among total matching ones.
// It returns nil when total is not positive or when total is stale and the
// chosen offset is past the current end.
func (s *QueryService) RandomVideo(ctx context.Context, q domain.VideoQuery, total int64, f domain.VideoFilter) (*domain.Video, error) {
	offset, ok := s.sampler.Offset(total)
	if !ok {
		return nil, nil
	}

	videos, err := s.find(ctx, "videos.random", q, f, offset, 1)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		s.logger.Debug("random pick past end of result set", "offset", offset, "total", total)
		return nil, nil
	}
	return videos[0], nil
}

// Page combines Search, Count and RandomVideo for one request.
func (s *QueryService) Page(ctx context.Context, q domain.VideoQuery, page int, f domain.VideoFilter) (*Page, error) {
	total, err := s.Count(ctx, q, f)
	if err != nil {
		return nil, err
	}
	videos, err := s.Search(ctx, q, page, f)
	if err != nil {
		return nil, err
	}
	random, err := s.RandomVideo(ctx, q, total, f)
	if err != nil {
		return nil, err
	}
	return &Page{
		Videos:      videos,
		Totals:      Totals{Count: total},
		RandomVideo: random,
	}, nil
}

// Video returns a single video by key.
func (s *QueryService) Video(ctx context.Context, key domain.VideoKey) (*domain.Video, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	video, err := s.videos.Get(ctx, key)
	metrics.ObserveStore("videos.get", start, err)
	return video, err
}

// Uploader returns an uploader with its tables cut to the top entries.
func (s *QueryService) Uploader(ctx context.Context, extractor, name string) (*domain.Uploader, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	u, err := s.uploaders.Get(ctx, extractor, name)
	metrics.ObserveStore("uploaders.get", start, err)
	if err != nil {
		return nil, err
	}
	return catalog.PresentUploader(u, s.cfg.TopN), nil
}

func (s *QueryService) find(ctx context.Context, op string, q domain.VideoQuery, f domain.VideoFilter, offset, limit int64) ([]*domain.Video, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	videos, err := s.videos.Find(ctx, q, f, offset, limit)
	metrics.ObserveStore(op, start, err)
	return videos, err
}
