package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/lgs-platform/backend/internal/cache"
	"github.com/lgs-platform/backend/internal/config"
	"github.com/lgs-platform/backend/internal/corpus"
	"github.com/lgs-platform/backend/internal/fingerprint"
	"github.com/lgs-platform/backend/internal/generator"
	"github.com/lgs-platform/backend/internal/models"
	"github.com/lgs-platform/backend/internal/performance"
	"github.com/lgs-platform/backend/internal/pipeline"
	"github.com/lgs-platform/backend/internal/validator"
)

func testCorpus() []corpus.Item {
	return []corpus.Item{
		{
			Stem:    "Which value of x satisfies the proportion shown in the table of matched quantities?",
			Subject: "math",
			Options: []models.Option{
				{Key: "A", Text: "6", IsCorrect: true},
				{Key: "B", Text: "8", IsCorrect: false},
				{Key: "C", Text: "10", IsCorrect: false},
				{Key: "D", Text: "12", IsCorrect: false},
			},
		},
	}
}

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()

	cfg := config.Default()
	items := testCorpus()
	fp := fingerprint.Build(items)
	val := validator.New(items, cfg.Validator)

	cm := cache.New(cache.NewMemoryBackend(cfg.Cache.MaxEntries), cfg.Cache)
	gen := generator.New(generator.NewMockClient(), fp, cfg.Generator)
	pipe := pipeline.New(cm, gen, val, fp, cfg.Generator)
	tracker := performance.NewTracker(cfg.Adaptive, cfg.Validator.ReviewThreshold)

	h := NewHandler(pipe, tracker, nil)

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/items/generate", h.GenerateItem).Methods("POST")
	api.HandleFunc("/items/generate-batch", h.GenerateBatch).Methods("POST")
	api.HandleFunc("/items/{id}/stats", h.GetItemStats).Methods("GET")
	api.HandleFunc("/events/answers", h.RecordAnswer).Methods("POST")
	api.HandleFunc("/profiles/{requester}", h.GetProfile).Methods("GET")
	api.HandleFunc("/profiles/{requester}/difficulty", h.GetRecommendedDifficulty).Methods("GET")
	api.HandleFunc("/review/pending", h.ListPendingReview).Methods("GET")
	api.HandleFunc("/review/{id}", h.MarkReviewed).Methods("POST")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")
	return r
}

func postJSON(t *testing.T, r *mux.Router, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func get(r *mux.Router, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGenerateItemEndToEnd(t *testing.T) {
	r := newTestRouter(t)

	body := models.GenerationRequest{CategoryKey: models.CategoryKey{
		Subject: "math", Topic: "ratios", Objective: "solve", Difficulty: models.DifficultyMedium,
	}}

	w := postJSON(t, r, "/api/v1/items/generate", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var item models.GeneratedItem
	if err := json.Unmarshal(w.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	if item.Stem == "" || len(item.Options) != 4 {
		t.Fatalf("unexpected item shape: %+v", item)
	}
	if item.Provenance != models.ProvenanceGenerated {
		t.Errorf("provenance = %q, want %q", item.Provenance, models.ProvenanceGenerated)
	}

	// Same category again comes straight from the completed-item cache.
	w = postJSON(t, r, "/api/v1/items/generate", body)
	if w.Code != http.StatusOK {
		t.Fatalf("second status = %d", w.Code)
	}
	var cached models.GeneratedItem
	if err := json.Unmarshal(w.Body.Bytes(), &cached); err != nil {
		t.Fatalf("decode cached item: %v", err)
	}
	if cached.Provenance != models.ProvenanceCache {
		t.Errorf("second provenance = %q, want %q", cached.Provenance, models.ProvenanceCache)
	}
}

func TestGenerateItemRejectsBadInput(t *testing.T) {
	r := newTestRouter(t)

	w := postJSON(t, r, "/api/v1/items/generate", models.GenerationRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing subject: status = %d, want 400", w.Code)
	}

	w = postJSON(t, r, "/api/v1/items/generate", models.GenerationRequest{CategoryKey: models.CategoryKey{
		Subject: "math", Difficulty: models.Difficulty("impossible"),
	}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad difficulty: status = %d, want 400", w.Code)
	}
}

func TestRecordAnswerAndProfile(t *testing.T) {
	r := newTestRouter(t)

	event := models.PerformanceRecord{
		EventID:     "evt-1",
		RequesterID: "student-1",
		Subject:     "math",
		Correct:     true,
	}

	w := postJSON(t, r, "/api/v1/events/answers", event)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp answerResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Applied || resp.EventID != "evt-1" {
		t.Errorf("response = %+v, want applied with evt-1", resp)
	}

	// Redelivery of the same event must not double-count.
	w = postJSON(t, r, "/api/v1/events/answers", event)
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode replay response: %v", err)
	}
	if resp.Applied {
		t.Error("replayed event reported as applied")
	}

	w = get(r, "/api/v1/profiles/student-1")
	var profile models.StudentProfile
	if err := json.Unmarshal(w.Body.Bytes(), &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.TotalAnswered != 1 {
		t.Errorf("TotalAnswered = %d, want 1", profile.TotalAnswered)
	}
}

func TestRecordAnswerAssignsEventID(t *testing.T) {
	r := newTestRouter(t)

	w := postJSON(t, r, "/api/v1/events/answers", models.PerformanceRecord{
		RequesterID: "student-2",
		Subject:     "science",
		Correct:     false,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp answerResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.EventID == "" {
		t.Error("expected a generated event id")
	}
}

func TestRecommendedDifficulty(t *testing.T) {
	r := newTestRouter(t)

	w := get(r, "/api/v1/profiles/student-1/difficulty")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing subject param: status = %d, want 400", w.Code)
	}

	w = get(r, "/api/v1/profiles/student-1/difficulty?subject=math")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var rec recommendationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode recommendation: %v", err)
	}
	if rec.Recommended != models.DifficultyMedium || rec.Adjusted {
		t.Errorf("fresh requester = %+v, want medium without adjustment", rec)
	}
}

func TestItemStatsNotFound(t *testing.T) {
	r := newTestRouter(t)

	w := get(r, "/api/v1/items/unknown-item/stats")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestReviewEndpointsNeedStore(t *testing.T) {
	r := newTestRouter(t)

	if w := get(r, "/api/v1/review/pending"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("pending: status = %d, want 503", w.Code)
	}
	if w := postJSON(t, r, "/api/v1/review/7", struct{}{}); w.Code != http.StatusServiceUnavailable {
		t.Errorf("mark reviewed: status = %d, want 503", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	r := newTestRouter(t)

	w := get(r, "/api/v1/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var stats statsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Tiers.Cache.Backend == "" {
		t.Error("expected a named cache backend in tier stats")
	}
}
