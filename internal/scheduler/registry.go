package scheduler

import (
	"sync"

	"github.com/hamed0406/livemonitor/internal/domain"
)

// Registry is the authoritative set of targets that exist right now.
// Loops read it fresh after every suspension point; nothing caches entries across a sleep.
type Registry struct {
	mu      sync.RWMutex
	targets map[domain.TargetID]domain.Target
}

func NewRegistry() *Registry {
	return &Registry{targets: make(map[domain.TargetID]domain.Target)}
}

// Sync merges a snapshot into the registry and returns the ids it carried.
// Entries missing from the snapshot are kept.
func (r *Registry) Sync(targets []domain.Target) []domain.TargetID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]domain.TargetID, 0, len(targets))
	for _, t := range targets {
		r.targets[t.ID] = t
		ids = append(ids, t.ID)
	}
	return ids
}

func (r *Registry) Get(id domain.TargetID) (domain.Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[id]
	return t, ok
}

// Upsert stores t under id and reports whether id was new.
func (r *Registry) Upsert(id domain.TargetID, t domain.Target) bool {
	t.ID = id
	r.mu.Lock()
	defer r.mu.Unlock()
	_, existed := r.targets[id]
	r.targets[id] = t
	return !existed
}

func (r *Registry) Delete(id domain.TargetID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.targets[id]
	delete(r.targets, id)
	return ok
}

func (r *Registry) IDs() []domain.TargetID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]domain.TargetID, 0, len(r.targets))
	for id := range r.targets {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.targets)
}
