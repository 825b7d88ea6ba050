package repository

import (
	"context"
	"sync"
	"time"

	"github.com/gridwatch/faultmap/internal/models"
)

// CacheEntry is one cached geocode lookup. Coords is nil for a negative
// entry, i.e. a postcode that previously failed to resolve.
type CacheEntry struct {
	Coords   *models.Coordinates
	StoredAt time.Time
}

// Resolved reports whether the entry holds usable coordinates.
func (e CacheEntry) Resolved() bool {
	return e.Coords != nil
}

// Store is the geocode cache storage contract. Implementations must be safe
// for concurrent use.
type Store interface {
	Get(ctx context.Context, postcode string) (CacheEntry, bool, error)
	Put(ctx context.Context, postcode string, entry CacheEntry) error
}

// MemoryStore is the default in-process cache store. It grows for the life
// of the service and is never evicted; expiry of negative entries is
// decided by the caller, not the store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry
}

// NewMemoryStore creates an empty in-memory cache store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]CacheEntry)}
}

// Get returns the cached entry for a postcode, if any.
func (m *MemoryStore) Get(_ context.Context, postcode string) (CacheEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[postcode]
	return entry, ok, nil
}

// Put stores the entry for a postcode, overwriting any previous one.
func (m *MemoryStore) Put(_ context.Context, postcode string, entry CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[postcode] = entry
	return nil
}

// Len returns the number of cached postcodes.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}
