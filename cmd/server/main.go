package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/lgs-platform/backend/internal/cache"
	"github.com/lgs-platform/backend/internal/config"
	"github.com/lgs-platform/backend/internal/corpus"
	"github.com/lgs-platform/backend/internal/fingerprint"
	"github.com/lgs-platform/backend/internal/generator"
	"github.com/lgs-platform/backend/internal/models"
	"github.com/lgs-platform/backend/internal/performance"
	"github.com/lgs-platform/backend/internal/pipeline"
	"github.com/lgs-platform/backend/internal/server"
	"github.com/lgs-platform/backend/internal/store"
	"github.com/lgs-platform/backend/internal/validator"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// The reference corpus is a hard startup requirement: the fingerprint
	// and the duplicate check are meaningless without it.
	items, err := corpus.Load(cfg.CorpusPath)
	if err != nil {
		log.Fatalf("Failed to load reference corpus: %v", err)
	}
	fp := fingerprint.Build(items)
	val := validator.New(items, cfg.Validator)

	// Event store is optional; without it profiles live in memory only.
	var st *store.Store
	if !cfg.Database.Disabled {
		st, err = store.Connect(cfg.Database)
		if err != nil {
			log.Printf("WARN: event store unavailable, running in-memory only: %v", err)
			st = nil
		} else {
			defer st.Close()
			if err := st.Migrate(); err != nil {
				log.Fatalf("Failed to run migrations: %v", err)
			}
		}
	}

	backend, err := buildCacheBackend(cfg.Cache)
	if err != nil {
		log.Fatalf("Failed to initialize cache backend: %v", err)
	}
	cacheManager := cache.New(backend, cfg.Cache)

	llm := generator.NewClient(cfg.Generator.Model)
	gen := generator.New(llm, fp, cfg.Generator)
	if cfg.Generator.MutationModel != "" && cfg.Generator.MutationModel != cfg.Generator.Model {
		gen.SetMutationClient(generator.NewClient(cfg.Generator.MutationModel))
	}
	pipe := pipeline.New(cacheManager, gen, val, fp, cfg.Generator)

	tracker := performance.NewTracker(cfg.Adaptive, cfg.Validator.ReviewThreshold)
	if st != nil {
		pipe.SetReviewSink(st)
		rebuildProfiles(st, tracker)
	}

	// Pre-fill pools for every category the corpus covers.
	go pipe.Warm(context.Background(), corpusCategories(items))

	h := server.NewHandler(pipe, tracker, st)

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

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	log.Printf("Server starting on %s", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, c.Handler(r)); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func buildCacheBackend(cfg config.CacheConfig) (cache.Backend, error) {
	if cfg.RedisURL != "" {
		backend, err := cache.NewRedisBackend(context.Background(), cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		log.Println("Cache backend: redis")
		return backend, nil
	}
	log.Println("Cache backend: in-memory")
	return cache.NewMemoryBackend(cfg.MaxEntries), nil
}

// rebuildProfiles replays the persisted event log so derived tracker
// state survives restarts.
func rebuildProfiles(st *store.Store, tracker *performance.Tracker) {
	events, err := st.LoadEvents(context.Background())
	if err != nil {
		log.Printf("WARN: could not replay event log: %v", err)
		return
	}
	applied := 0
	for _, e := range events {
		if tracker.Record(e) {
			applied++
		}
	}
	log.Printf("Rebuilt performance profiles from %d persisted events", applied)
}

// corpusCategories derives the pool warm-up set: every subject/topic
// combination seen in the corpus, across all difficulty tiers. Pools are
// keyed by the full category, so warm-up keys must carry the topics
// requests will carry or the warmed items are never popped.
func corpusCategories(items []corpus.Item) []models.CategoryKey {
	type subjectTopic struct{ subject, topic string }
	seen := map[subjectTopic]bool{}
	var combos []subjectTopic
	for _, it := range items {
		if it.Subject == "" {
			continue
		}
		c := subjectTopic{it.Subject, it.Topic}
		if !seen[c] {
			seen[c] = true
			combos = append(combos, c)
		}
	}

	var categories []models.CategoryKey
	for _, c := range combos {
		for _, d := range []models.Difficulty{models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard} {
			categories = append(categories, models.CategoryKey{Subject: c.subject, Topic: c.topic, Difficulty: d})
		}
	}
	return categories
}
