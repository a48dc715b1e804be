// Package registry provides the concurrent id-keyed stores that hold all
// backend runtime state, plus the per-id lock table used by the lifecycle.
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = fmt.Errorf("registry: id not found")

// Registry is a concurrent map from backend id to V. Operations are
// individually atomic; it never locks across calls.
type Registry[V any] struct {
	name string
	m    sync.Map
}

// New creates an empty registry. The name only appears in errors.
func New[V any](name string) *Registry[V] {
	return &Registry[V]{name: name}
}

// Add inserts or replaces the value for id and returns id.
func (r *Registry[V]) Add(id string, value V) string {
	r.m.Store(id, value)
	return id
}

// AddIfAbsent stores value only when id is unknown. It returns the value
// now held for id and whether this call stored it.
func (r *Registry[V]) AddIfAbsent(id string, value V) (V, bool) {
	actual, loaded := r.m.LoadOrStore(id, value)
	return actual.(V), !loaded
}

// Contains reports whether id has a value.
func (r *Registry[V]) Contains(id string) bool {
	_, ok := r.m.Load(id)
	return ok
}

// Get returns the value for id or an error wrapping ErrNotFound.
func (r *Registry[V]) Get(id string) (V, error) {
	if v, ok := r.m.Load(id); ok {
		return v.(V), nil
	}
	var zero V
	return zero, fmt.Errorf("%s %q: %w", r.name, id, ErrNotFound)
}

// GetOrNil returns the value for id and whether it was present.
func (r *Registry[V]) GetOrNil(id string) (V, bool) {
	if v, ok := r.m.Load(id); ok {
		return v.(V), true
	}
	var zero V
	return zero, false
}

// GetOrDefault returns the value for id, or def when absent.
func (r *Registry[V]) GetOrDefault(id string, def V) V {
	if v, ok := r.m.Load(id); ok {
		return v.(V)
	}
	return def
}

// All returns a snapshot copy. Later mutations do not affect it.
func (r *Registry[V]) All() map[string]V {
	out := make(map[string]V)
	r.m.Range(func(k, v any) bool {
		out[k.(string)] = v.(V)
		return true
	})
	return out
}

// IDs returns the known ids in sorted order.
func (r *Registry[V]) IDs() []string {
	var ids []string
	r.m.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}

// Len returns the number of entries.
func (r *Registry[V]) Len() int {
	n := 0
	r.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Locks is a table of per-id mutexes. A lock is created on first use and
// kept for the lifetime of the table, so every caller asking for the same
// id gets the same mutex.
type Locks struct {
	m sync.Map
}

// For returns the mutex for id.
func (l *Locks) For(id string) *sync.Mutex {
	if mu, ok := l.m.Load(id); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := l.m.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// With runs fn while holding the lock for id.
func (l *Locks) With(id string, fn func() error) error {
	mu := l.For(id)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}
