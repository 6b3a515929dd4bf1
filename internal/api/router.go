package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/vidshelf/internal/api/handler"
	mw "github.com/iconidentify/vidshelf/internal/api/middleware"
	"github.com/iconidentify/vidshelf/internal/metrics"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	statisticHandler *handler.StatisticHandler,
	catalogHandler *handler.CatalogHandler,
	healthHandler *handler.HealthHandler,
	requestTimeout time.Duration,
	logger *slog.Logger,
) *chi.Mux {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(mw.CORS)

	// Health and metrics endpoints
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/statistics", statisticHandler.Get)

		r.Get("/uploaders/{extractor}/{name}", catalogHandler.Uploader)
		r.Get("/uploaders/{extractor}/{name}/{page}", catalogHandler.UploaderVideos)

		r.Get("/videos/search/{page}", catalogHandler.Search)
		r.Get("/videos/{extractor}/{id}", catalogHandler.Video)
	})

	return r
}
