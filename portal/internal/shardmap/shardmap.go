// Package shardmap implements a concurrent map keyed by UUIDs. The map is split into shards, each guarded
// by its own lock, so that a sweep over one shard never blocks lookups in the others.
package shardmap

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

const shardCount = 64

// Map is a concurrent map from UUIDs to values of type V. The zero value is not usable, Map must be created
// using New.
type Map[V any] struct {
	shards [shardCount]shard[V]
}

type shard[V any] struct {
	mu sync.RWMutex
	m  map[uuid.UUID]V
}

// New creates an empty Map.
func New[V any]() *Map[V] {
	m := &Map[V]{}
	for i := range m.shards {
		m.shards[i].m = make(map[uuid.UUID]V)
	}
	return m
}

func (m *Map[V]) shard(id uuid.UUID) *shard[V] {
	return &m.shards[xxhash.Sum64(id[:])%shardCount]
}

// Load returns the value stored for id.
func (m *Map[V]) Load(id uuid.UUID) (V, bool) {
	s := m.shard(id)
	s.mu.RLock()
	v, ok := s.m[id]
	s.mu.RUnlock()
	return v, ok
}

// Store stores v for id, overwriting any existing value.
func (m *Map[V]) Store(id uuid.UUID, v V) {
	s := m.shard(id)
	s.mu.Lock()
	s.m[id] = v
	s.mu.Unlock()
}

// StoreIfAbsent stores v for id only if no value is present yet. The value held after the call is returned,
// together with true if v was stored.
func (m *Map[V]) StoreIfAbsent(id uuid.UUID, v V) (V, bool) {
	s := m.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.m[id]; ok {
		return existing, false
	}
	s.m[id] = v
	return v, true
}

// Update replaces the value of id with the result of f. f receives the current value and whether it was
// present, and returns the new value and whether it should be kept. f is called with the shard locked and
// must not use the map.
func (m *Map[V]) Update(id uuid.UUID, f func(v V, ok bool) (V, bool)) V {
	s := m.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.m[id]
	v, keep := f(old, ok)
	if keep {
		s.m[id] = v
	} else {
		delete(s.m, id)
	}
	return v
}

// Delete removes the value of id. It returns true if a value was present.
func (m *Map[V]) Delete(id uuid.UUID) bool {
	s := m.shard(id)
	s.mu.Lock()
	_, ok := s.m[id]
	delete(s.m, id)
	s.mu.Unlock()
	return ok
}

// Check loads the value of id and returns it if live reports true for it. A value for which live returns
// false is deleted, unless it was replaced concurrently by a live one.
func (m *Map[V]) Check(id uuid.UUID, live func(V) bool) (V, bool) {
	s := m.shard(id)
	s.mu.RLock()
	v, ok := s.m[id]
	s.mu.RUnlock()
	if !ok {
		return v, false
	}
	if live(v) {
		return v, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok = s.m[id]
	if !ok {
		return v, false
	}
	if live(v) {
		return v, true
	}
	delete(s.m, id)
	var zero V
	return zero, false
}

// DeleteFunc deletes every value for which del returns true and returns how many were deleted. Shards are
// locked one at a time.
func (m *Map[V]) DeleteFunc(del func(id uuid.UUID, v V) bool) int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for id, v := range s.m {
			if del(id, v) {
				delete(s.m, id)
				n++
			}
		}
		s.mu.Unlock()
	}
	return n
}

// Range calls f for every value in the map until f returns false. Values added or removed concurrently may
// or may not be visited. f must not modify the map.
func (m *Map[V]) Range(f func(id uuid.UUID, v V) bool) {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		for id, v := range s.m {
			if !f(id, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

// Len returns the number of values stored.
func (m *Map[V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.m)
		s.mu.RUnlock()
	}
	return n
}

// Clear removes every value from the map.
func (m *Map[V]) Clear() {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		clear(s.m)
		s.mu.Unlock()
	}
}
