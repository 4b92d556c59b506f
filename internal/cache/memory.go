package cache

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lgs-platform/backend/internal/models"
)

type memoryEntry struct {
	item        *models.GeneratedItem
	createdAt   time.Time
	expiresAt   time.Time
	lastAccess  time.Time
	accessCount int64
}

// MemoryBackend is the default in-process store. Expiry happens lazily on
// read; when the store is full an LRU sweep evicts the least-recently
// accessed tenth of entries.
type MemoryBackend struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	maxEntries int
	now        func() time.Time

	evictions atomic.Int64
}

func NewMemoryBackend(maxEntries int) *MemoryBackend {
	return &MemoryBackend{
		entries:    map[string]*memoryEntry{},
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) Get(_ context.Context, key string) (*models.GeneratedItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[key]
	if !ok {
		return nil, nil
	}
	now := b.now()
	if now.After(entry.expiresAt) {
		delete(b.entries, key)
		return nil, nil
	}
	entry.lastAccess = now
	entry.accessCount++
	return entry.item, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, item *models.GeneratedItem, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if _, exists := b.entries[key]; !exists && len(b.entries) >= b.maxEntries {
		b.evictLRU()
	}
	b.entries[key] = &memoryEntry{
		item:       item,
		createdAt:  now,
		expiresAt:  now.Add(ttl),
		lastAccess: now,
	}
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

func (b *MemoryBackend) Len(_ context.Context) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// evictLRU drops the least-recently-accessed ~10% of entries, at least
// one. Caller holds the lock.
func (b *MemoryBackend) evictLRU() {
	type keyed struct {
		key    string
		access time.Time
	}
	all := make([]keyed, 0, len(b.entries))
	for k, e := range b.entries {
		all = append(all, keyed{k, e.lastAccess})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].access.Before(all[j].access) })

	n := len(all) / 10
	if n < 1 {
		n = 1
	}
	for _, victim := range all[:n] {
		delete(b.entries, victim.key)
		b.evictions.Add(1)
	}
}
