package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iconidentify/vidshelf/internal/catalog"
	"github.com/iconidentify/vidshelf/internal/domain"
)

var baseDate = time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)

func testVideo(id string, views int64, tags ...string) *domain.Video {
	return &domain.Video{
		Extractor:  "youtube",
		ID:         id,
		Title:      "Video " + id,
		Uploader:   "alice",
		UploadDate: baseDate,
		ViewCount:  views,
		Tags:       tags,
	}
}

func saveVideos(t *testing.T, store Store, videos ...*domain.Video) {
	t.Helper()
	for _, v := range videos {
		require.NoError(t, store.Videos().Save(context.Background(), v))
		require.NotEmpty(t, v.DocumentID)
	}
}

func videoIDs(videos []*domain.Video) []string {
	ids := make([]string, 0, len(videos))
	for _, v := range videos {
		ids = append(ids, v.ID)
	}
	return ids
}

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, open func(t *testing.T) Store) {
	t.Run("SaveKeepsDocumentID", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		v := testVideo("a", 1)
		saveVideos(t, store, v)
		first := v.DocumentID

		v.ViewCount = 99
		require.NoError(t, store.Videos().Save(ctx, v))
		assert.Equal(t, first, v.DocumentID)

		got, err := store.Videos().Get(ctx, v.Key())
		require.NoError(t, err)
		assert.Equal(t, int64(99), got.ViewCount)
		assert.Equal(t, baseDate, got.UploadDate)
	})

	t.Run("GetMissingVideo", func(t *testing.T) {
		store := open(t)
		_, err := store.Videos().Get(context.Background(), domain.VideoKey{Extractor: "youtube", ID: "nope"})
		assert.ErrorIs(t, err, domain.ErrVideoNotFound)
	})

	t.Run("FindPagesAreStable", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			saveVideos(t, store, testVideo(fmt.Sprintf("v%d", i), 10))
		}

		var all []string
		for offset := int64(0); offset < 6; offset += 2 {
			page, err := store.Videos().Find(ctx, domain.VideoQuery{}, domain.VideoFilter{}, offset, 2)
			require.NoError(t, err)
			again, err := store.Videos().Find(ctx, domain.VideoQuery{}, domain.VideoFilter{}, offset, 2)
			require.NoError(t, err)
			assert.Equal(t, videoIDs(page), videoIDs(again))
			all = append(all, videoIDs(page)...)
		}
		assert.ElementsMatch(t, []string{"v0", "v1", "v2", "v3", "v4"}, all)

		beyond, err := store.Videos().Find(ctx, domain.VideoQuery{}, domain.VideoFilter{}, 10, 2)
		require.NoError(t, err)
		assert.Empty(t, beyond)
	})

	t.Run("FindSortsAndFilters", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		a := testVideo("a", 5, "go")
		a.Title = "Learning 100% Go"
		b := testVideo("b", 50, "rust")
		b.UploadDate = baseDate.Add(time.Hour)
		c := testVideo("c", 20, "go", "rust")
		c.Uploader = "bob"
		c.UploadDate = baseDate.Add(-time.Hour)
		saveVideos(t, store, a, b, c)

		newest, err := store.Videos().Find(ctx, domain.VideoQuery{}, domain.VideoFilter{}, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a", "c"}, videoIDs(newest))

		views, err := store.Videos().Find(ctx, domain.VideoQuery{Sort: domain.SortViews}, domain.VideoFilter{}, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c", "a"}, videoIDs(views))

		tagged, err := store.Videos().Find(ctx, domain.VideoQuery{Tag: "go"}, domain.VideoFilter{}, 0, 10)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "c"}, videoIDs(tagged))

		text, err := store.Videos().Find(ctx, domain.VideoQuery{Text: "100%"}, domain.VideoFilter{}, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, videoIDs(text))

		n, err := store.Videos().Count(ctx, domain.VideoQuery{Tag: "rust"}, domain.VideoFilter{Uploader: "alice"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = store.Videos().Count(ctx, domain.VideoQuery{Text: "zzz"}, domain.VideoFilter{})
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("UploaderResolution", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		u := &domain.Uploader{
			Extractor: "youtube",
			ID:        "UC1",
			Name:      "alice",
			Tags:      domain.FrequencyTable{{Name: "go", Count: 1}, {Name: "rust", Count: 3}},
		}
		require.NoError(t, store.Uploaders().Save(ctx, u))
		require.NotEmpty(t, u.DocumentID)

		v := testVideo("a", 1)
		v.UploaderDocumentID = u.DocumentID
		saveVideos(t, store, v)

		got, err := store.Videos().Get(ctx, v.Key())
		require.NoError(t, err)
		require.NotNil(t, got.UploaderDocument)
		assert.Equal(t, "UC1", got.UploaderDocument.ID)
		assert.Equal(t, "alice", got.UploaderDocument.Name)

		loaded, err := store.Uploaders().Get(ctx, "youtube", "alice")
		require.NoError(t, err)
		assert.Equal(t, domain.FrequencyTable{{Name: "rust", Count: 3}, {Name: "go", Count: 1}}, loaded.Tags)
		assert.Equal(t, domain.FrequencyTable{}, loaded.Hashtags)

		_, err = store.Uploaders().Get(ctx, "youtube", "nobody")
		assert.ErrorIs(t, err, domain.ErrUploaderNotFound)
	})

	t.Run("GetOrCreateIsEmptyAndSingle", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Statistics().GetOrCreate(ctx, domain.DefaultAccessKey)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		stat, err := store.Statistics().GetOrCreate(ctx, domain.DefaultAccessKey)
		require.NoError(t, err)
		assert.Nil(t, stat.RecordViewCountVideo)
		assert.Nil(t, stat.OldestVideo)
		assert.Empty(t, stat.Tags)
	})

	t.Run("RecordFirstLeaderWins", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		a := testVideo("a", 5, "x")
		b := testVideo("b", 10, "x", "y")
		c := testVideo("c", 10, "y")
		c.UploadDate = baseDate.Add(-24 * time.Hour)
		saveVideos(t, store, a, b, c)

		for _, v := range []*domain.Video{a, b, c} {
			require.NoError(t, store.Statistics().Record(ctx, domain.DefaultAccessKey, v))
		}

		stat, err := store.Statistics().GetOrCreate(ctx, domain.DefaultAccessKey)
		require.NoError(t, err)
		require.NotNil(t, stat.RecordViewCountVideo)
		assert.Equal(t, "b", stat.RecordViewCountVideo.ID)
		require.NotNil(t, stat.OldestVideo)
		assert.Equal(t, "c", stat.OldestVideo.ID)
		assert.Equal(t, domain.FrequencyTable{{Name: "x", Count: 2}, {Name: "y", Count: 2}}, stat.Tags)
	})

	t.Run("RecordTwiceCountsLabelsOnce", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		a := testVideo("a", 5, "x", "x")
		saveVideos(t, store, a)
		require.NoError(t, store.Statistics().Record(ctx, domain.DefaultAccessKey, a))

		a.ViewCount = 7
		saveVideos(t, store, a)
		require.NoError(t, store.Statistics().Record(ctx, domain.DefaultAccessKey, a))

		stat, err := store.Statistics().GetOrCreate(ctx, domain.DefaultAccessKey)
		require.NoError(t, err)
		assert.Equal(t, domain.FrequencyTable{{Name: "x", Count: 1}}, stat.Tags)
		assert.Equal(t, int64(7), stat.RecordViewCountVideo.ViewCount)
	})

	t.Run("ConcurrentRecordMatchesFold", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		labels := []string{"a", "b", "c", "d"}
		var videos []*domain.Video
		for i := 0; i < 20; i++ {
			v := testVideo(fmt.Sprintf("v%02d", i), int64(i*7%23), labels[i%4], labels[(i+1)%4])
			v.LikeCount = int64(i * 3 % 19)
			v.UploadDate = baseDate.Add(time.Duration(i*5%17) * time.Hour)
			videos = append(videos, v)
		}
		saveVideos(t, store, videos...)

		var wg sync.WaitGroup
		errs := make(chan error, len(videos))
		for _, v := range videos {
			wg.Add(1)
			go func(v *domain.Video) {
				defer wg.Done()
				errs <- store.Statistics().Record(ctx, domain.DefaultAccessKey, v)
			}(v)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		want := catalog.Fold(domain.DefaultAccessKey, videos)
		got, err := store.Statistics().GetOrCreate(ctx, domain.DefaultAccessKey)
		require.NoError(t, err)

		for _, c := range domain.Counters {
			assert.Equal(t, want.Leader(c).Count(c), got.Leader(c).Count(c), c.String())
		}
		assert.Equal(t, want.OldestVideo.UploadDate, got.OldestVideo.UploadDate)
		assert.ElementsMatch(t, want.Tags, got.Tags)
	})

	t.Run("ReplaceThenRecord", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		a := testVideo("a", 5, "x")
		b := testVideo("b", 9, "y")
		saveVideos(t, store, a, b)

		stat := catalog.Fold(domain.DefaultAccessKey, []*domain.Video{a, b})
		require.NoError(t, store.Statistics().Replace(ctx, stat, []string{a.DocumentID, b.DocumentID}))

		got, err := store.Statistics().GetOrCreate(ctx, domain.DefaultAccessKey)
		require.NoError(t, err)
		assert.Equal(t, "b", got.RecordViewCountVideo.ID)
		assert.Equal(t, stat.Tags, got.Tags)

		require.NoError(t, store.Statistics().Record(ctx, domain.DefaultAccessKey, a))
		got, err = store.Statistics().GetOrCreate(ctx, domain.DefaultAccessKey)
		require.NoError(t, err)
		assert.Equal(t, stat.Tags, got.Tags)
	})

	t.Run("ReplaceKeepsFirstSeenOrder", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		a := testVideo("a", 1, "x")
		b := testVideo("b", 1, "y")
		c := testVideo("c", 1, "y")
		d := testVideo("d", 1, "x")
		saveVideos(t, store, a, b, c, d)

		folded := catalog.Fold(domain.DefaultAccessKey, []*domain.Video{a, b, c})
		require.NoError(t, store.Statistics().Replace(ctx, folded, []string{a.DocumentID, b.DocumentID, c.DocumentID}))

		stored, err := store.Statistics().GetOrCreate(ctx, domain.DefaultAccessKey)
		require.NoError(t, err)
		assert.Equal(t, []string{"x", "y"}, stored.FirstSeen(domain.LabelTags))

		require.NoError(t, store.Statistics().Record(ctx, domain.DefaultAccessKey, d))

		want := catalog.Update(folded, d)
		got, err := store.Statistics().GetOrCreate(ctx, domain.DefaultAccessKey)
		require.NoError(t, err)
		assert.Equal(t, domain.FrequencyTable{{Name: "x", Count: 2}, {Name: "y", Count: 2}}, got.Tags)
		assert.Equal(t, want.Tags, got.Tags)
	})

	t.Run("SequentialRecordMatchesUpdate", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		videos := []*domain.Video{
			testVideo("a", 3, "x"),
			testVideo("b", 3, "y", "z"),
			testVideo("c", 9, "y"),
			testVideo("d", 9, "z", "x"),
		}
		saveVideos(t, store, videos...)

		want := domain.NewStatistic(domain.DefaultAccessKey)
		for _, v := range videos {
			require.NoError(t, store.Statistics().Record(ctx, domain.DefaultAccessKey, v))
			want = catalog.Update(want, v)

			got, err := store.Statistics().GetOrCreate(ctx, domain.DefaultAccessKey)
			require.NoError(t, err)
			assert.Equal(t, want.RecordViewCountVideo.ID, got.RecordViewCountVideo.ID, "after %s", v.ID)
			assert.Equal(t, want.Tags, got.Tags, "after %s", v.ID)
			assert.Equal(t, want.FirstSeen(domain.LabelTags), got.FirstSeen(domain.LabelTags), "after %s", v.ID)
		}
	})
}
