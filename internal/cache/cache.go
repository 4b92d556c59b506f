// Package cache implements the two-tier item store: a TTL point cache
// keyed by category hash, and per-category pre-generation pools that
// amortize generator latency. Backend failures are treated as misses and
// never block the generation path.
package cache

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/lgs-platform/backend/internal/config"
	"github.com/lgs-platform/backend/internal/models"
)

// Backend is a point-cache store. Get returns (nil, nil) on a miss;
// a non-nil error means the backend itself failed.
type Backend interface {
	Get(ctx context.Context, key string) (*models.GeneratedItem, error)
	Set(ctx context.Context, key string, item *models.GeneratedItem, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Len(ctx context.Context) int
	Name() string
}

// RefillFunc produces n fresh items for a category. The pool calls it
// asynchronously; errors are logged, never propagated to the caller that
// triggered the refill.
type RefillFunc func(ctx context.Context, category models.CategoryKey, n int) ([]*models.GeneratedItem, error)

// Manager owns the point cache and the pools. Constructed once at
// process start and shared by reference.
type Manager struct {
	backend Backend
	pools   *poolSet
	cfg     config.CacheConfig

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	baderrs atomic.Int64
}

// New builds a Manager over the given backend. refill may be nil until
// SetRefill is called; pools only schedule refills once one is set.
func New(backend Backend, cfg config.CacheConfig) *Manager {
	return &Manager{
		backend: backend,
		pools:   newPoolSet(cfg),
		cfg:     cfg,
	}
}

// SetRefill injects the pool refill function. The generation pipeline
// depends on the Manager, so the refill hook is wired after construction
// to break the cycle.
func (m *Manager) SetRefill(fn RefillFunc) {
	m.pools.setRefill(fn)
}

// Get looks up the point cache for a category. Backend failure is a miss.
func (m *Manager) Get(ctx context.Context, category models.CategoryKey) *models.GeneratedItem {
	item, err := m.backend.Get(ctx, category.Hash())
	if err != nil {
		log.Printf("WARN: cache get %s: %v", category.Hash(), err)
		m.baderrs.Add(1)
		m.misses.Add(1)
		return nil
	}
	if item == nil {
		m.misses.Add(1)
		return nil
	}
	m.hits.Add(1)
	return item
}

// Set writes an item to the point cache with the default TTL.
func (m *Manager) Set(ctx context.Context, category models.CategoryKey, item *models.GeneratedItem) {
	if err := m.backend.Set(ctx, category.Hash(), item, m.cfg.DefaultTTL); err != nil {
		log.Printf("WARN: cache set %s: %v", category.Hash(), err)
		m.baderrs.Add(1)
		return
	}
	m.sets.Add(1)
}

// GetFromPool pops the head of the category's pool, scheduling an async
// refill when the remaining depth drops below the category's threshold.
func (m *Manager) GetFromPool(category models.CategoryKey) *models.GeneratedItem {
	return m.pools.get(category)
}

// AddToPool appends items to a category's pool, trimming to the bounded
// size by dropping the oldest entries.
func (m *Manager) AddToPool(category models.CategoryKey, items []*models.GeneratedItem) {
	m.pools.add(category, items)
}

// Warm pre-fills pools for the given categories up to their thresholds.
// Called once at startup; failures are logged per category.
func (m *Manager) Warm(ctx context.Context, categories []models.CategoryKey) {
	m.pools.warm(ctx, categories)
}

// Stats returns a point-in-time snapshot for the observability surface.
func (m *Manager) Stats(ctx context.Context) models.TierStats {
	cacheStats := models.CacheStats{
		Backend:   m.backend.Name(),
		TotalKeys: m.backend.Len(ctx),
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Sets:      m.sets.Load(),
		Errors:    m.baderrs.Load(),
	}
	if mem, ok := m.backend.(*MemoryBackend); ok {
		cacheStats.Evictions = mem.evictions.Load()
	}

	pools, total := m.pools.stats()
	return models.TierStats{
		Cache:       cacheStats,
		Pools:       pools,
		TotalPooled: total,
	}
}
