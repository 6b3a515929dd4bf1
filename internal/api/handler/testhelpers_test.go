package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/vidshelf/internal/domain"
	"github.com/iconidentify/vidshelf/internal/service"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockStatistics is a test implementation of StatisticReader.
type mockStatistics struct {
	stat *domain.Statistic
	err  error
}

func (m *mockStatistics) Snapshot(ctx context.Context) (*domain.Statistic, error) {
	return m.stat, m.err
}

// mockQuery is a test implementation of CatalogQuerier that records the
// arguments of the last Page call.
type mockQuery struct {
	page     *service.Page
	video    *domain.Video
	uploader *domain.Uploader
	err      error

	gotQuery  domain.VideoQuery
	gotPage   int
	gotFilter domain.VideoFilter
	gotKey    domain.VideoKey
}

func (m *mockQuery) Page(ctx context.Context, q domain.VideoQuery, page int, f domain.VideoFilter) (*service.Page, error) {
	m.gotQuery, m.gotPage, m.gotFilter = q, page, f
	return m.page, m.err
}

func (m *mockQuery) Video(ctx context.Context, key domain.VideoKey) (*domain.Video, error) {
	m.gotKey = key
	return m.video, m.err
}

func (m *mockQuery) Uploader(ctx context.Context, extractor, name string) (*domain.Uploader, error) {
	m.gotFilter = domain.VideoFilter{Extractor: extractor, Uploader: name}
	return m.uploader, m.err
}

// mockPinger is a test implementation of Pinger.
type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.err
}

// serve routes req through a chi router so URL parameters resolve.
func serve(pattern string, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get(pattern, h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
