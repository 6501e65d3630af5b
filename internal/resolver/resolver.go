// Package resolver computes the ready set: pending tasks whose
// dependencies are all complete. Recomputation is incremental — the
// resolver maintains remaining-dependency counters and only touches
// edges affected since the last change, so cost does not grow with the
// whole graph.
package resolver

import (
	"sort"
	"time"

	"github.com/gantryd/gantry/internal/graph"
)

// Resolver tracks dependency completion for a single graph store. It is
// not safe for concurrent use; the orchestrator is its only caller and
// serializes all notifications.
type Resolver struct {
	store      *graph.Store
	remaining  map[string]int      // taskID -> incomplete prerequisite count
	candidates map[string]struct{} // tasks with zero incomplete prerequisites
}

// New creates a resolver over the store, priming counters from any
// tasks already present (startup reload).
func New(store *graph.Store) *Resolver {
	r := &Resolver{
		store:      store,
		remaining:  make(map[string]int),
		candidates: make(map[string]struct{}),
	}
	for _, t := range store.Tasks() {
		r.prime(t)
	}
	return r
}

func (r *Resolver) prime(t *graph.Task) {
	n := 0
	for _, depID := range t.DependsOn {
		dep, err := r.store.Get(depID)
		if err != nil || dep.Status != graph.StatusComplete {
			n++
		}
	}
	r.remaining[t.ID] = n
	if n == 0 && !t.Status.Terminal() {
		r.candidates[t.ID] = struct{}{}
	}
}

// TaskAdded registers a newly inserted task.
func (r *Resolver) TaskAdded(t *graph.Task) {
	r.prime(t)
}

// DependencyCompleted decrements dependent counters after a task
// reaches complete. Work is proportional to the completed task's
// out-edges only.
func (r *Resolver) DependencyCompleted(id string) {
	delete(r.candidates, id)
	for _, depID := range r.store.Dependents(id) {
		r.remaining[depID]--
		if r.remaining[depID] == 0 {
			r.candidates[depID] = struct{}{}
		}
	}
}

// TaskScheduled removes a task from the candidate set once it leaves
// pending. Requeued retries re-enter via Requeued.
func (r *Resolver) TaskScheduled(id string) {
	delete(r.candidates, id)
}

// Requeued re-registers a task returned to pending by the recovery
// coordinator.
func (r *Resolver) Requeued(id string) {
	if r.remaining[id] == 0 {
		r.candidates[id] = struct{}{}
	}
}

// Ready returns snapshots of all unblocked pending tasks whose retry
// hold has elapsed, ordered by creation time then ID so scheduling is
// reproducible.
func (r *Resolver) Ready(now time.Time) []*graph.Task {
	out := make([]*graph.Task, 0, len(r.candidates))
	for id := range r.candidates {
		t, err := r.store.Get(id)
		if err != nil {
			delete(r.candidates, id)
			continue
		}
		if t.Status != graph.StatusPending {
			continue
		}
		if !t.NotBefore.IsZero() && now.Before(t.NotBefore) {
			continue
		}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
