package assign

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gantryd/gantry/internal/graph"
)

// Worker is a registered executor with a declared capability set and a
// hard cap on concurrent assignments. Load never exceeds MaxLoad.
type Worker struct {
	ID           string
	Capabilities map[string]struct{}
	MaxLoad      int
	Load         int
}

// Has reports whether the worker declares the capability tag.
func (w *Worker) Has(capability string) bool {
	_, ok := w.Capabilities[capability]
	return ok
}

// Clone returns a deep copy.
func (w *Worker) Clone() *Worker {
	cp := *w
	cp.Capabilities = make(map[string]struct{}, len(w.Capabilities))
	for c := range w.Capabilities {
		cp.Capabilities[c] = struct{}{}
	}
	return &cp
}

// Registry holds registered workers and their live load counts.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*Worker
}

// NewRegistry creates an empty worker registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]*Worker)}
}

// Register adds a worker. Re-registering an existing ID fails with
// ErrDuplicateWorker.
func (r *Registry) Register(id string, capabilities []string, maxLoad int) error {
	if maxLoad < 1 {
		return fmt.Errorf("worker %q: max load must be at least 1", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[id]; exists {
		return fmt.Errorf("%w: %q", graph.ErrDuplicateWorker, id)
	}

	caps := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		caps[c] = struct{}{}
	}
	r.workers[id] = &Worker{ID: id, Capabilities: caps, MaxLoad: maxLoad}
	return nil
}

// Acquire reserves one assignment slot on the worker.
func (r *Registry) Acquire(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, exists := r.workers[id]
	if !exists {
		return fmt.Errorf("worker %q not registered", id)
	}
	if w.Load >= w.MaxLoad {
		return fmt.Errorf("%w: worker %q at %d/%d", graph.ErrCapacityExceeded, id, w.Load, w.MaxLoad)
	}
	w.Load++
	return nil
}

// Release frees one assignment slot after completion or failure.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, exists := r.workers[id]; exists && w.Load > 0 {
		w.Load--
	}
}

// Get returns a snapshot of the worker, if registered.
func (r *Registry) Get(id string) (*Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, exists := r.workers[id]
	if !exists {
		return nil, false
	}
	return w.Clone(), true
}

// Snapshot returns clones of all workers, ordered by ID.
func (r *Registry) Snapshot() []*Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Worker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
