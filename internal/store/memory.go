package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when no value is stored under a key.
	ErrNotFound = errors.New("no cached value for key")
)

// Store is the key/value contract the response cache persists through.
// Values are opaque bytes; the last writer for a key wins.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Pruner drops entries written before a cutoff and reports how many went.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int, error)
}

type memEntry struct {
	value   []byte
	written time.Time
}

// MemoryStore is a concurrency-safe in-memory implementation of Store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: cache key, value: raw entry bytes and write time
	data map[string]memEntry

	// maxEntries caps the number of keys held (0 = unlimited).
	maxEntries int

	now func() time.Time
}

// NewMemoryStore creates a new MemoryStore.
// If maxEntries is <= 0, it is treated as unlimited.
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]memEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns a copy of the value stored under key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set overwrites the value stored under key. At the entry cap, the oldest
// write is evicted to make room for a new key.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists && s.maxEntries > 0 && len(s.data) >= s.maxEntries {
		s.evictOldest()
	}
	s.data[key] = memEntry{value: v, written: s.now()}
	return nil
}

func (s *MemoryStore) evictOldest() {
	var (
		oldest string
		at     time.Time
		found  bool
	)
	for k, e := range s.data {
		if !found || e.written.Before(at) {
			oldest, at, found = k, e.written, true
		}
	}
	if found {
		delete(s.data, oldest)
	}
}

// Prune removes every key last written before the cutoff.
func (s *MemoryStore) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, e := range s.data {
		if e.written.Before(before) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
