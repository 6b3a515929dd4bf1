package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iconidentify/vidshelf/internal/catalog"
	"github.com/iconidentify/vidshelf/internal/domain"
	"github.com/iconidentify/vidshelf/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var baseDate = time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC)

func setupStore(t *testing.T) *repository.SQLiteStore {
	t.Helper()
	store, err := repository.OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(context.Background()) })
	return store
}

func seedVideos(t *testing.T, store repository.Store, n int) []*domain.Video {
	t.Helper()
	var out []*domain.Video
	for i := 0; i < n; i++ {
		v := &domain.Video{
			Extractor:  "youtube",
			ID:         fmt.Sprintf("v%02d", i),
			Title:      fmt.Sprintf("Video %d", i),
			Uploader:   "alice",
			UploadDate: baseDate.Add(time.Duration(i) * time.Hour),
			ViewCount:  int64(i * 10),
			Tags:       []string{fmt.Sprintf("t%d", i%7)},
		}
		require.NoError(t, store.Videos().Save(context.Background(), v))
		out = append(out, v)
	}
	return out
}

// fixedSource always returns the same offset, clamped to n.
type fixedSource int64

func (f fixedSource) Int64N(n int64) int64 {
	if int64(f) >= n {
		return n - 1
	}
	return int64(f)
}

// failingVideos fails every call with a storage error.
type failingVideos struct{}

var errBoom = domain.NewStorageError("videos.find", errors.New("connection refused"))

func (failingVideos) Find(context.Context, domain.VideoQuery, domain.VideoFilter, int64, int64) ([]*domain.Video, error) {
	return nil, errBoom
}
func (failingVideos) Count(context.Context, domain.VideoQuery, domain.VideoFilter) (int64, error) {
	return 0, errBoom
}
func (failingVideos) Get(context.Context, domain.VideoKey) (*domain.Video, error) { return nil, errBoom }
func (failingVideos) Each(context.Context, func(*domain.Video) error) error          { return errBoom }
func (failingVideos) Save(context.Context, *domain.Video) error                      { return errBoom }

func TestStatisticService_RecordAndSnapshot(t *testing.T) {
	store := setupStore(t)
	svc := NewStatisticService(store.Videos(), store.Statistics(), StatisticConfig{}, testLogger())
	ctx := context.Background()

	videos := seedVideos(t, store, 14)
	for _, v := range videos {
		require.NoError(t, svc.RecordVideo(ctx, v))
	}

	full, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, full.Tags, 7)

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Tags, catalog.TopN)
	assert.Equal(t, full.Tags[:catalog.TopN], snap.Tags)
	assert.Equal(t, "v13", snap.RecordViewCountVideo.ID)
	assert.Equal(t, "v00", snap.OldestVideo.ID)
}

func TestStatisticService_GetCreatesEmpty(t *testing.T) {
	store := setupStore(t)
	svc := NewStatisticService(store.Videos(), store.Statistics(), StatisticConfig{Timeout: time.Second}, testLogger())

	stat, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stat)
	assert.Nil(t, stat.RecordViewCountVideo)
	assert.Empty(t, stat.Tags)
}

func TestStatisticService_RecordByKey(t *testing.T) {
	store := setupStore(t)
	svc := NewStatisticService(store.Videos(), store.Statistics(), StatisticConfig{}, testLogger())
	ctx := context.Background()

	videos := seedVideos(t, store, 1)
	require.NoError(t, svc.RecordByKey(ctx, videos[0].Key()))

	err := svc.RecordByKey(ctx, domain.VideoKey{Extractor: "youtube", ID: "missing"})
	assert.ErrorIs(t, err, domain.ErrVideoNotFound)

	stat, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v00", stat.RecordViewCountVideo.ID)
}

func TestStatisticService_RebuildMatchesFold(t *testing.T) {
	store := setupStore(t)
	svc := NewStatisticService(store.Videos(), store.Statistics(), StatisticConfig{}, testLogger())
	ctx := context.Background()

	videos := seedVideos(t, store, 9)
	// Only one video is recorded before the rebuild.
	require.NoError(t, svc.RecordVideo(ctx, videos[0]))

	rebuilt, err := svc.Rebuild(ctx)
	require.NoError(t, err)

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, rebuilt.Tags, got.Tags)
	assert.Equal(t, "v08", got.RecordViewCountVideo.ID)

	// Videos counted by the rebuild are not counted again.
	require.NoError(t, svc.RecordVideo(ctx, videos[3]))
	again, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, got.Tags, again.Tags)
}

func TestStatisticService_StorageError(t *testing.T) {
	store := setupStore(t)
	svc := NewStatisticService(failingVideos{}, store.Statistics(), StatisticConfig{}, testLogger())

	_, err := svc.Rebuild(context.Background())
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestQueryService_SearchPaging(t *testing.T) {
	store := setupStore(t)
	svc := NewQueryService(store.Videos(), store.Uploaders(), nil, QueryConfig{PageSize: 4}, testLogger())
	ctx := context.Background()
	seedVideos(t, store, 10)

	first, err := svc.Search(ctx, domain.VideoQuery{}, 0, domain.VideoFilter{})
	require.NoError(t, err)
	require.Len(t, first, 4)
	assert.Equal(t, "v09", first[0].ID)

	last, err := svc.Search(ctx, domain.VideoQuery{}, 2, domain.VideoFilter{})
	require.NoError(t, err)
	assert.Len(t, last, 2)

	beyond, err := svc.Search(ctx, domain.VideoQuery{}, 3, domain.VideoFilter{})
	require.NoError(t, err)
	assert.NotNil(t, beyond)
	assert.Empty(t, beyond)

	n, err := svc.Count(ctx, domain.VideoQuery{Tag: "t1"}, domain.VideoFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestQueryService_SearchFarPastEndIsEmpty(t *testing.T) {
	store := setupStore(t)
	svc := NewQueryService(store.Videos(), store.Uploaders(), nil, QueryConfig{}, testLogger())
	ctx := context.Background()
	seedVideos(t, store, 3)

	for _, raw := range []string{"9223372036854775807", "768614336404564651", "99999999999999999999"} {
		page := catalog.ParsePage(raw)

		videos, err := svc.Search(ctx, domain.VideoQuery{}, page, domain.VideoFilter{})
		require.NoError(t, err, raw)
		assert.NotNil(t, videos, raw)
		assert.Empty(t, videos, raw)
	}
}

func TestQueryService_RandomVideo(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	seedVideos(t, store, 5)

	svc := NewQueryService(store.Videos(), store.Uploaders(), catalog.NewSampler(fixedSource(1)), QueryConfig{}, testLogger())

	v, err := svc.RandomVideo(ctx, domain.VideoQuery{}, 5, domain.VideoFilter{})
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "v03", v.ID)

	v, err = svc.RandomVideo(ctx, domain.VideoQuery{}, 0, domain.VideoFilter{})
	require.NoError(t, err)
	assert.Nil(t, v)

	// A stale count past the real end soft-fails.
	stale := NewQueryService(store.Videos(), store.Uploaders(), catalog.NewSampler(fixedSource(40)), QueryConfig{}, testLogger())
	v, err = stale.RandomVideo(ctx, domain.VideoQuery{}, 50, domain.VideoFilter{})
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestQueryService_Page(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	seedVideos(t, store, 3)

	svc := NewQueryService(store.Videos(), store.Uploaders(), catalog.NewSampler(fixedSource(0)), QueryConfig{}, testLogger())

	page, err := svc.Page(ctx, domain.VideoQuery{}, 0, domain.VideoFilter{Extractor: "youtube", Uploader: "alice"})
	require.NoError(t, err)
	assert.Len(t, page.Videos, 3)
	assert.Equal(t, int64(3), page.Totals.Count)
	require.NotNil(t, page.RandomVideo)
	assert.Equal(t, "v02", page.RandomVideo.ID)

	empty, err := svc.Page(ctx, domain.VideoQuery{}, 0, domain.VideoFilter{Uploader: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, empty.Videos)
	assert.Zero(t, empty.Totals.Count)
	assert.Nil(t, empty.RandomVideo)
}

func TestQueryService_Uploader(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	var tags domain.FrequencyTable
	for i := 0; i < 8; i++ {
		tags = append(tags, domain.LabelCount{Name: fmt.Sprintf("t%d", i), Count: int64(10 - i)})
	}
	require.NoError(t, store.Uploaders().Save(ctx, &domain.Uploader{Extractor: "youtube", ID: "UC1", Name: "alice", Tags: tags}))

	svc := NewQueryService(store.Videos(), store.Uploaders(), nil, QueryConfig{}, testLogger())
	u, err := svc.Uploader(ctx, "youtube", "alice")
	require.NoError(t, err)
	assert.Equal(t, tags[:catalog.TopN], u.Tags)

	_, err = svc.Uploader(ctx, "youtube", "bob")
	assert.ErrorIs(t, err, domain.ErrUploaderNotFound)
}

func TestQueryService_StorageError(t *testing.T) {
	svc := NewQueryService(failingVideos{}, nil, nil, QueryConfig{}, testLogger())

	_, err := svc.Page(context.Background(), domain.VideoQuery{}, 0, domain.VideoFilter{})
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}
