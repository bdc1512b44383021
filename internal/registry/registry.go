// Package registry maintains the set of subscriber chat IDs with
// write-through persistence.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vnmetals/silverwatch/internal/logger"
)

// Persister stores the subscriber set durably. A save failure is
// logged by the registry and retried implicitly on the next mutation;
// the in-memory set stays authoritative in the meantime.
type Persister interface {
	LoadSubscribers() ([]int64, error)
	SaveSubscribers(ids []int64) error
}

// Registry is a mutex-guarded subscriber set. The command shell and
// the dispatch path mutate it concurrently; every mutation is written
// through to the persister.
type Registry struct {
	mu        sync.Mutex
	ids       map[int64]struct{}
	persister Persister
}

// Load initializes a registry from persisted state.
func Load(p Persister) (*Registry, error) {
	ids, err := p.LoadSubscribers()
	if err != nil {
		return nil, fmt.Errorf("failed to load subscribers: %w", err)
	}
	r := &Registry{
		ids:       make(map[int64]struct{}, len(ids)),
		persister: p,
	}
	for _, id := range ids {
		r.ids[id] = struct{}{}
	}
	return r, nil
}

// Add registers a subscriber and persists the set. It reports whether
// the subscriber was newly added.
func (r *Registry) Add(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ids[id]; exists {
		return false
	}
	r.ids[id] = struct{}{}
	r.saveLocked()
	return true
}

// Remove unregisters a subscriber and persists the set. It reports
// whether the subscriber was present.
func (r *Registry) Remove(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ids[id]; !exists {
		return false
	}
	delete(r.ids, id)
	r.saveLocked()
	return true
}

// RemoveBatch unregisters the given subscribers and persists the set
// once. Used by the dispatcher to prune unreachable recipients after a
// delivery cycle.
func (r *Registry) RemoveBatch(ids []int64) {
	if len(ids) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := false
	for _, id := range ids {
		if _, exists := r.ids[id]; exists {
			delete(r.ids, id)
			removed = true
		}
	}
	if removed {
		r.saveLocked()
	}
}

// Snapshot returns the current subscriber IDs in sorted order. The
// dispatcher iterates this copy so concurrent mutation during a
// delivery cycle is safe.
func (r *Registry) Snapshot() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.ids))
	for id := range r.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of registered subscribers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

// Flush persists the current set, for a final write on shutdown.
func (r *Registry) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persister.SaveSubscribers(r.idsLocked())
}

func (r *Registry) saveLocked() {
	if err := r.persister.SaveSubscribers(r.idsLocked()); err != nil {
		logger.Warn("Failed to persist subscriber set (%d entries): %v", len(r.ids), err)
	}
}

func (r *Registry) idsLocked() []int64 {
	ids := make([]int64, 0, len(r.ids))
	for id := range r.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
