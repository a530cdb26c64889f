// Package handles maps native resource handles to their host-side wrappers.
package handles

import (
	"iter"
	"sync"
)

// Registry is a mutex-guarded handle -> wrapper table. One handle maps to at
// most one wrapper at a time; a lookup after Remove reports not found.
type Registry[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

// New returns an empty registry.
func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{entries: make(map[K]V)}
}

// Add stores v under k. It reports false if k is already taken.
func (r *Registry[K, V]) Add(k K, v V) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[k]; exists {
		return false
	}
	r.entries[k] = v
	return true
}

// Lookup returns the wrapper registered under k.
func (r *Registry[K, V]) Lookup(k K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.entries[k]
	return v, ok
}

// Remove deletes k and returns the wrapper it pointed to.
func (r *Registry[K, V]) Remove(k K) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.entries[k]
	delete(r.entries, k)
	return v, ok
}

// Len reports the number of live entries.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Values returns a snapshot of the registered wrappers. The lock is not held
// while the caller uses the result.
func (r *Registry[K, V]) Values() []V {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]V, 0, len(r.entries))
	for _, v := range r.entries {
		out = append(out, v)
	}
	return out
}

// Each iterates over a snapshot of the entries, so the body may add or
// remove handles.
func (r *Registry[K, V]) Each() iter.Seq2[K, V] {
	r.mu.RLock()
	keys := make([]K, 0, len(r.entries))
	vals := make([]V, 0, len(r.entries))
	for k, v := range r.entries {
		keys = append(keys, k)
		vals = append(vals, v)
	}
	r.mu.RUnlock()

	return func(yield func(K, V) bool) {
		for i := range keys {
			if !yield(keys[i], vals[i]) {
				return
			}
		}
	}
}
