package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/iconidentify/vidshelf/internal/domain"
)

func TestStatisticHandler_Get(t *testing.T) {
	stat := domain.NewStatistic(domain.DefaultAccessKey)
	stat.Tags = domain.FrequencyTable{{Name: "go", Count: 3}}
	stat.RecordViewCountVideo = &domain.Video{Extractor: "youtube", ID: "a", ViewCount: 10}

	h := NewStatisticHandler(&mockStatistics{stat: stat}, testLogger())
	w := httptest.NewRecorder()
	h.Get(w, httptest.NewRequest(http.MethodGet, "/api/statistics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body struct {
		Statistic struct {
			RecordViewCountVideo *domain.Video       `json:"recordViewCountVideo"`
			OldestVideo          *domain.Video       `json:"oldestVideo"`
			Tags                 []domain.LabelCount `json:"tags"`
			Hashtags             []domain.LabelCount `json:"hashtags"`
		} `json:"statistic"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Statistic.RecordViewCountVideo == nil || body.Statistic.RecordViewCountVideo.ID != "a" {
		t.Errorf("recordViewCountVideo = %+v", body.Statistic.RecordViewCountVideo)
	}
	if body.Statistic.OldestVideo != nil {
		t.Errorf("oldestVideo should be null, got %+v", body.Statistic.OldestVideo)
	}
	if len(body.Statistic.Tags) != 1 || body.Statistic.Tags[0].Name != "go" {
		t.Errorf("tags = %+v", body.Statistic.Tags)
	}
	if body.Statistic.Hashtags == nil {
		t.Error("hashtags should be an empty array, not null")
	}
}

func TestStatisticHandler_StorageError(t *testing.T) {
	err := domain.NewStorageError("statistics.get", errors.New("no reachable servers"))
	h := NewStatisticHandler(&mockStatistics{err: err}, testLogger())

	w := httptest.NewRecorder()
	h.Get(w, httptest.NewRequest(http.MethodGet, "/api/statistics", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
