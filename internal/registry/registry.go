// Package registry holds the worker capability registry and the router
// that matches task requirements to the best available worker.
// Registration happens before sessions start; the only runtime mutation is
// the liveness flag, and routing always reads a consistent snapshot.
package registry

import (
	"fmt"
	"sync"

	"dirigent/internal/protocol"
)

// Registry is the process-wide set of registered worker profiles.
// Read-mostly: routers take snapshots, liveness flips take the write lock.
type Registry struct {
	mu      sync.RWMutex
	workers []protocol.WorkerProfile
	index   map[string]int // worker id -> position, preserves registration order
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: map[string]int{}}
}

// Register adds a worker profile. Duplicate IDs are a programmer error and
// rejected so the caller can abort construction.
func (r *Registry) Register(p protocol.WorkerProfile) error {
	if p.ID == "" {
		return fmt.Errorf("worker profile missing id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.index[p.ID]; dup {
		return fmt.Errorf("worker %q already registered", p.ID)
	}
	r.index[p.ID] = len(r.workers)
	r.workers = append(r.workers, p)
	return nil
}

// SetLive flips a worker's liveness flag at runtime.
func (r *Registry) SetLive(id string, live bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.index[id]
	if !ok {
		return fmt.Errorf("unknown worker %q", id)
	}
	r.workers[pos].Live = live
	return nil
}

// Snapshot returns a copy of all profiles in registration order. Routing
// operates on snapshots so concurrent liveness updates never produce a
// partially written read.
func (r *Registry) Snapshot() []protocol.WorkerProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.WorkerProfile, len(r.workers))
	copy(out, r.workers)
	return out
}

// Get returns one profile by ID.
func (r *Registry) Get(id string) (protocol.WorkerProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.index[id]
	if !ok {
		return protocol.WorkerProfile{}, false
	}
	return r.workers[pos], true
}

// Len reports the number of registered workers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}
