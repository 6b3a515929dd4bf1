package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/iconidentify/vidshelf/internal/domain"
)

// StatisticReader serves the trimmed catalog statistic.
type StatisticReader interface {
	Snapshot(ctx context.Context) (*domain.Statistic, error)
}

// StatisticHandler handles statistic HTTP requests.
type StatisticHandler struct {
	stats  StatisticReader
	logger *slog.Logger
}

// NewStatisticHandler creates a new statistic handler.
func NewStatisticHandler(stats StatisticReader, logger *slog.Logger) *StatisticHandler {
	return &StatisticHandler{
		stats:  stats,
		logger: logger,
	}
}

// StatisticResponse wraps the statistic.
type StatisticResponse struct {
	Statistic *domain.Statistic `json:"statistic"`
}

// Get handles GET /api/statistics
func (h *StatisticHandler) Get(w http.ResponseWriter, r *http.Request) {
	stat, err := h.stats.Snapshot(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "get statistic", err)
		return
	}
	writeJSON(w, http.StatusOK, StatisticResponse{Statistic: stat})
}
