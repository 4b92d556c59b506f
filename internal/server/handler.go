// Package server exposes the pipeline's query surface over HTTP for the
// CRUD layer: generation, answer-event ingestion, profiles, and
// observability.
package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/lgs-platform/backend/internal/models"
	"github.com/lgs-platform/backend/internal/performance"
	"github.com/lgs-platform/backend/internal/pipeline"
	"github.com/lgs-platform/backend/internal/store"
)

type Handler struct {
	pipeline *pipeline.Pipeline
	tracker  *performance.Tracker
	store    *store.Store
}

// NewHandler wires the query surface. store may be nil when the event
// log is disabled; review endpoints then return 503.
func NewHandler(p *pipeline.Pipeline, t *performance.Tracker, s *store.Store) *Handler {
	return &Handler{pipeline: p, tracker: t, store: s}
}

func (h *Handler) GenerateItem(w http.ResponseWriter, r *http.Request) {
	var req models.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if req.Subject == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "subject is required"})
		return
	}
	if req.ItemType == "" {
		req.ItemType = models.ItemMultipleChoice
	}

	// No explicit tier: let the adaptive controller choose from the
	// requester's recent performance.
	if req.Difficulty == "" {
		if req.RequesterID != "" {
			req.Difficulty = h.tracker.RecommendedDifficulty(req.RequesterID, req.Subject)
		} else {
			req.Difficulty = models.DifficultyMedium
		}
	}
	if !models.ValidDifficulties[req.Difficulty] {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "difficulty must be 'easy', 'medium', or 'hard'"})
		return
	}

	item, err := h.pipeline.Generate(r.Context(), req)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, models.ErrorResponse{Error: "Generation failed: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type batchRequest struct {
	Requests []models.GenerationRequest `json:"requests"`
}

func (h *Handler) GenerateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if len(req.Requests) == 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "requests must be non-empty"})
		return
	}

	for i := range req.Requests {
		if req.Requests[i].Subject == "" {
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "every request needs a subject"})
			return
		}
		if req.Requests[i].ItemType == "" {
			req.Requests[i].ItemType = models.ItemMultipleChoice
		}
		if req.Requests[i].Difficulty == "" {
			req.Requests[i].Difficulty = models.DifficultyMedium
		}
		if !models.ValidDifficulties[req.Requests[i].Difficulty] {
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "invalid difficulty in request"})
			return
		}
	}

	items, err := h.pipeline.GenerateBatch(r.Context(), req.Requests)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, models.ErrorResponse{Error: "Batch generation failed: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type answerResponse struct {
	Applied bool   `json:"applied"`
	EventID string `json:"event_id"`
}

// RecordAnswer is the single mutation entrypoint from the CRUD layer.
func (h *Handler) RecordAnswer(w http.ResponseWriter, r *http.Request) {
	var event models.PerformanceRecord
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if event.RequesterID == "" || event.Subject == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "requester_id and subject are required"})
		return
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if h.store != nil {
		if err := h.store.SaveEvent(r.Context(), event); err != nil {
			writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to persist event"})
			return
		}
	}

	applied := h.tracker.Record(event)
	writeJSON(w, http.StatusOK, answerResponse{Applied: applied, EventID: event.EventID})
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	requester := mux.Vars(r)["requester"]
	writeJSON(w, http.StatusOK, h.tracker.ProfileFor(requester))
}

type recommendationResponse struct {
	Subject     string            `json:"subject"`
	Current     models.Difficulty `json:"current"`
	Recommended models.Difficulty `json:"recommended"`
	Adjusted    bool              `json:"adjusted"`
}

func (h *Handler) GetRecommendedDifficulty(w http.ResponseWriter, r *http.Request) {
	requester := mux.Vars(r)["requester"]
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "subject query parameter is required"})
		return
	}

	adjust, current, _ := h.tracker.ShouldAdjust(requester, subject)
	recommended := h.tracker.RecommendedDifficulty(requester, subject)

	writeJSON(w, http.StatusOK, recommendationResponse{
		Subject:     subject,
		Current:     current,
		Recommended: recommended,
		Adjusted:    adjust,
	})
}

func (h *Handler) GetItemStats(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	perf, ok := h.tracker.ItemStats(itemID)
	if !ok {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "No responses recorded for item"})
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

type statsResponse struct {
	Pipeline models.PipelineStats     `json:"pipeline"`
	Tiers    models.TierStats         `json:"tiers"`
	Flagged  []models.ItemPerformance `json:"flagged_items,omitempty"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Pipeline: h.pipeline.Stats(),
		Tiers:    h.pipeline.CacheStats(r.Context()),
		Flagged:  h.tracker.FlaggedItems(),
	})
}

func (h *Handler) ListPendingReview(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, models.ErrorResponse{Error: "Review queue requires the event store"})
		return
	}
	limit := intQueryParam(r.URL.Query(), "limit", 50)

	items, err := h.store.PendingReview(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to list review queue"})
		return
	}
	if items == nil {
		items = []store.FlaggedItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) MarkReviewed(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, models.ErrorResponse{Error: "Review queue requires the event store"})
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid review ID"})
		return
	}

	if err := h.store.MarkReviewed(r.Context(), id); err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to mark reviewed"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func intQueryParam(query url.Values, key string, defaultVal int) int {
	s := query.Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	return v
}
