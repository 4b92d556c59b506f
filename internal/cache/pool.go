package cache

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lgs-platform/backend/internal/config"
	"github.com/lgs-platform/backend/internal/models"
)

// pool is one category's bounded FIFO queue of pre-generated items.
type pool struct {
	mu        sync.Mutex
	items     []*models.GeneratedItem
	requests  int64
	refills   int64
	refilling bool
}

// poolSet holds all pools. The outer lock only guards the map; each pool
// has its own lock so independent categories do not serialize each other.
type poolSet struct {
	mu    sync.RWMutex
	pools map[models.CategoryKey]*pool
	cfg   config.CacheConfig

	refillMu sync.RWMutex
	refill   RefillFunc
}

func newPoolSet(cfg config.CacheConfig) *poolSet {
	return &poolSet{
		pools: map[models.CategoryKey]*pool{},
		cfg:   cfg,
	}
}

func (ps *poolSet) setRefill(fn RefillFunc) {
	ps.refillMu.Lock()
	ps.refill = fn
	ps.refillMu.Unlock()
}

func (ps *poolSet) poolFor(category models.CategoryKey) *pool {
	ps.mu.RLock()
	p, ok := ps.pools[category]
	ps.mu.RUnlock()
	if ok {
		return p
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	if p, ok = ps.pools[category]; ok {
		return p
	}
	p = &pool{}
	ps.pools[category] = p
	return p
}

// get pops the queue head and schedules a refill when the remaining
// depth falls below the category's frequency-scaled threshold. An empty
// pool is a plain miss: the caller generates inline, and that generation
// seeds the cache, so firing a background refill here would just double
// the external calls for a cold category.
func (ps *poolSet) get(category models.CategoryKey) *models.GeneratedItem {
	p := ps.poolFor(category)

	p.mu.Lock()
	p.requests++
	var item *models.GeneratedItem
	if len(p.items) > 0 {
		item = p.items[0]
		p.items = p.items[1:]
	}
	threshold := ps.threshold(p.requests)
	needsRefill := item != nil && len(p.items) < threshold && !p.refilling
	if needsRefill {
		p.refilling = true
		p.refills++
	}
	remaining := len(p.items)
	p.mu.Unlock()

	if needsRefill {
		ps.scheduleRefill(category, p, 2*threshold-remaining)
	}
	return item
}

func (ps *poolSet) add(category models.CategoryKey, items []*models.GeneratedItem) {
	if len(items) == 0 {
		return
	}
	p := ps.poolFor(category)

	p.mu.Lock()
	p.items = append(p.items, items...)
	if overflow := len(p.items) - ps.cfg.PoolMaxSize; overflow > 0 {
		// Oldest entries go first; pooled items age poorly relative to
		// the corpus the fingerprint was built on.
		p.items = p.items[overflow:]
	}
	p.mu.Unlock()
}

// scheduleRefill is fire-and-forget: the triggering caller never waits,
// and a refill failure is logged rather than propagated.
func (ps *poolSet) scheduleRefill(category models.CategoryKey, p *pool, n int) {
	ps.refillMu.RLock()
	fn := ps.refill
	ps.refillMu.RUnlock()
	if fn == nil {
		p.mu.Lock()
		p.refilling = false
		p.mu.Unlock()
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		items, err := fn(ctx, category, n)
		if err != nil {
			log.Printf("WARN: pool refill %s/%s: %v", category.Subject, category.Difficulty, err)
		}
		ps.add(category, items)

		p.mu.Lock()
		p.refilling = false
		p.mu.Unlock()
	}()
}

// threshold maps observed request volume to a refill trigger depth.
func (ps *poolSet) threshold(requests int64) int {
	switch {
	case requests >= int64(ps.cfg.HighFreqMinRequests):
		return ps.cfg.HighFreqThreshold
	case requests >= int64(ps.cfg.MediumFreqMinRequests):
		return ps.cfg.MediumFreqThreshold
	default:
		return ps.cfg.LowFreqThreshold
	}
}

// warm synchronously fills each category's pool up to twice its current
// threshold. Used at startup before traffic arrives.
func (ps *poolSet) warm(ctx context.Context, categories []models.CategoryKey) {
	ps.refillMu.RLock()
	fn := ps.refill
	ps.refillMu.RUnlock()
	if fn == nil {
		return
	}

	for _, category := range categories {
		p := ps.poolFor(category)
		p.mu.Lock()
		want := 2*ps.threshold(p.requests) - len(p.items)
		p.mu.Unlock()
		if want <= 0 {
			continue
		}

		items, err := fn(ctx, category, want)
		if err != nil {
			log.Printf("WARN: pool warm %s/%s: %v", category.Subject, category.Difficulty, err)
		}
		ps.add(category, items)
	}
}

func (ps *poolSet) stats() (map[string]models.PoolStats, int) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	out := make(map[string]models.PoolStats, len(ps.pools))
	total := 0
	for category, p := range ps.pools {
		p.mu.Lock()
		sum := 0.0
		for _, it := range p.items {
			sum += it.Confidence
		}
		stat := models.PoolStats{
			Size:      len(p.items),
			Threshold: ps.threshold(p.requests),
			Requests:  p.requests,
			Refills:   p.refills,
		}
		if len(p.items) > 0 {
			stat.AvgConfidence = sum / float64(len(p.items))
		}
		total += len(p.items)
		p.mu.Unlock()

		name := fmt.Sprintf("%s/%s/%s/%s", category.Subject, category.Topic, category.Objective, category.Difficulty)
		out[name] = stat
	}
	return out, total
}
