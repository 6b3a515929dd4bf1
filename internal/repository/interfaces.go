package repository

import (
	"context"

	"github.com/iconidentify/vidshelf/internal/domain"
)

// VideoRepository reads the video collection.
type VideoRepository interface {
	// Find returns up to limit videos matching query and filter, skipping
	// offset results, with uploader projections resolved. The ordering is
	// total so repeated calls return the same slice.
	Find(ctx context.Context, query domain.VideoQuery, filter domain.VideoFilter, offset, limit int64) ([]*domain.Video, error)

	// Count returns the number of videos matching query and filter.
	Count(ctx context.Context, query domain.VideoQuery, filter domain.VideoFilter) (int64, error)

	// Get retrieves a video by its (extractor, id) key.
	Get(ctx context.Context, key domain.VideoKey) (*domain.Video, error)

	// Each calls fn for every video in the collection in storage order.
	Each(ctx context.Context, fn func(*domain.Video) error) error

	// Save inserts or replaces a video by key and sets its DocumentID.
	Save(ctx context.Context, video *domain.Video) error
}

// UploaderRepository reads the uploader collection.
type UploaderRepository interface {
	// Get retrieves an uploader by extractor and name.
	Get(ctx context.Context, extractor, name string) (*domain.Uploader, error)

	// Save inserts or replaces an uploader by (extractor, name) and sets
	// its DocumentID.
	Save(ctx context.Context, uploader *domain.Uploader) error
}

// StatisticRepository maintains the per access key aggregate.
//
// Implementations apply Record as independent atomic conditional updates:
// a leader is replaced only when the stored value is strictly beaten, label
// counters are incremented in place, and labels of a video are counted at
// most once per access key.
type StatisticRepository interface {
	// GetOrCreate returns the statistic for accessKey, creating an empty
	// one if none exists. Concurrent creation yields a single record.
	GetOrCreate(ctx context.Context, accessKey string) (*domain.Statistic, error)

	// Record folds a stored video into the statistic for accessKey.
	Record(ctx context.Context, accessKey string, video *domain.Video) error

	// Replace overwrites the statistic and its recorded-video set.
	Replace(ctx context.Context, stat *domain.Statistic, recorded []string) error
}

// Store bundles the repositories of one catalog backend.
type Store interface {
	Videos() VideoRepository
	Uploaders() UploaderRepository
	Statistics() StatisticRepository

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close(ctx context.Context) error
}
