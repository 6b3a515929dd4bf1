package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/vidshelf/internal/catalog"
	"github.com/iconidentify/vidshelf/internal/domain"
	"github.com/iconidentify/vidshelf/internal/service"
)

// CatalogQuerier answers read queries over videos and uploaders.
type CatalogQuerier interface {
	Page(ctx context.Context, q domain.VideoQuery, page int, f domain.VideoFilter) (*service.Page, error)
	Video(ctx context.Context, key domain.VideoKey) (*domain.Video, error)
	Uploader(ctx context.Context, extractor, name string) (*domain.Uploader, error)
}

// CatalogHandler handles video and uploader HTTP requests.
type CatalogHandler struct {
	query  CatalogQuerier
	logger *slog.Logger
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(query CatalogQuerier, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		query:  query,
		logger: logger,
	}
}

// UploaderResponse wraps an uploader.
type UploaderResponse struct {
	Uploader *domain.Uploader `json:"uploader"`
}

// VideoResponse wraps a video.
type VideoResponse struct {
	Video *domain.Video `json:"video"`
}

// videoQuery reads search constraints from URL parameters.
func videoQuery(r *http.Request) domain.VideoQuery {
	params := r.URL.Query()
	return domain.VideoQuery{
		Text:     params.Get("text"),
		Tag:      params.Get("tag"),
		Category: params.Get("category"),
		Hashtag:  params.Get("hashtag"),
		Sort:     domain.VideoSort(params.Get("sort")).Normalize(),
	}
}

// Uploader handles GET /api/uploaders/{extractor}/{name}
func (h *CatalogHandler) Uploader(w http.ResponseWriter, r *http.Request) {
	u, err := h.query.Uploader(r.Context(), chi.URLParam(r, "extractor"), chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, h.logger, "get uploader", err)
		return
	}
	writeJSON(w, http.StatusOK, UploaderResponse{Uploader: u})
}

// UploaderVideos handles GET /api/uploaders/{extractor}/{name}/{page}
func (h *CatalogHandler) UploaderVideos(w http.ResponseWriter, r *http.Request) {
	filter := domain.VideoFilter{
		Extractor: chi.URLParam(r, "extractor"),
		Uploader:  chi.URLParam(r, "name"),
	}
	h.page(w, r, filter)
}

// Search handles GET /api/videos/search/{page}
func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	h.page(w, r, domain.VideoFilter{})
}

func (h *CatalogHandler) page(w http.ResponseWriter, r *http.Request, filter domain.VideoFilter) {
	page := catalog.ParsePage(chi.URLParam(r, "page"))

	result, err := h.query.Page(r.Context(), videoQuery(r), page, filter)
	if err != nil {
		writeServiceError(w, h.logger, "search videos", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Video handles GET /api/videos/{extractor}/{id}
func (h *CatalogHandler) Video(w http.ResponseWriter, r *http.Request) {
	key := domain.VideoKey{
		Extractor: chi.URLParam(r, "extractor"),
		ID:        chi.URLParam(r, "id"),
	}
	video, err := h.query.Video(r.Context(), key)
	if err != nil {
		writeServiceError(w, h.logger, "get video", err)
		return
	}
	writeJSON(w, http.StatusOK, VideoResponse{Video: video})
}
