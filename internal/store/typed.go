package store

import (
	"sync"
	"sync/atomic"
	"time"
)

// TypedStore is a generic, concurrency-safe, in-memory key-value store fed
// by informer handlers and read by reconcilers. It records when it was last
// written so readers can tell a quiet store from a stalled one.
type TypedStore[T any] struct {
	mu          sync.RWMutex
	items       map[string]T
	lastUpdated atomic.Int64 // UnixMilli of the last Set/Delete/Clear
}

// NewTypedStore creates a new, empty TypedStore.
func NewTypedStore[T any]() *TypedStore[T] {
	s := &TypedStore[T]{items: make(map[string]T)}
	s.touch()
	return s
}

func (s *TypedStore[T]) touch() {
	s.lastUpdated.Store(time.Now().UnixMilli())
}

// Set inserts or replaces the value for key.
func (s *TypedStore[T]) Set(key string, value T) {
	s.mu.Lock()
	s.items[key] = value
	s.mu.Unlock()
	s.touch()
}

// Delete removes key. No-op if the key doesn't exist.
func (s *TypedStore[T]) Delete(key string) {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	s.touch()
}

// LastUpdated returns the time of the last modification.
func (s *TypedStore[T]) LastUpdated() time.Time {
	return time.UnixMilli(s.lastUpdated.Load())
}

// Get returns the value for key and whether it was present.
func (s *TypedStore[T]) Get(key string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Len returns the number of items.
func (s *TypedStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Snapshot returns a shallow copy of all items.
func (s *TypedStore[T]) Snapshot() map[string]T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[string]T, len(s.items))
	for k, v := range s.items {
		cp[k] = v
	}
	return cp
}

// Values returns all values. Order is not guaranteed.
func (s *TypedStore[T]) Values() []T {
	return s.Filter(nil)
}

// Filter returns the values for which keep reports true. A nil keep
// returns everything. keep runs under the read lock and must not call
// back into the store.
func (s *TypedStore[T]) Filter(keep func(T) bool) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vals := make([]T, 0, len(s.items))
	for _, v := range s.items {
		if keep == nil || keep(v) {
			vals = append(vals, v)
		}
	}
	return vals
}

// Clear removes all items.
func (s *TypedStore[T]) Clear() {
	s.mu.Lock()
	s.items = make(map[string]T)
	s.mu.Unlock()
	s.touch()
}
