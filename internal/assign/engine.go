// Package assign matches ready tasks to registered workers. Matching
// is greedy and capability-exact; it deliberately does not attempt
// global optimality (this is not a bin-packing optimizer). A ready task
// with no eligible worker simply stays pending — backpressure, not
// failure.
package assign

import (
	"sort"

	"github.com/gantryd/gantry/internal/graph"
)

// Health lets the engine skip workers currently quarantined by the
// recovery coordinator's circuit breakers. A nil Health admits all.
type Health interface {
	Available(workerID string) bool
}

// Assignment is a proposed task-to-worker pairing. The engine only
// proposes; the orchestrator commits.
type Assignment struct {
	Task   *graph.Task
	Worker string
}

// Engine plans assignments against a worker registry.
type Engine struct {
	registry *Registry
	health   Health
}

// NewEngine creates an assignment engine.
func NewEngine(registry *Registry, health Health) *Engine {
	return &Engine{registry: registry, health: health}
}

// kindPriority orders task kinds: verification runs before
// implementation, which runs before infra, when a worker could take
// either.
func kindPriority(k graph.Kind) int {
	switch k {
	case graph.KindVerification:
		return 0
	case graph.KindImplementation:
		return 1
	default:
		return 2
	}
}

// Plan returns a set of assignments such that every chosen worker
// carries the task's capability tag (unless the task was widened) and
// no worker's planned load exceeds its maximum. The plan is
// deterministic for a given input.
func (e *Engine) Plan(ready []*graph.Task) []Assignment {
	tasks := make([]*graph.Task, len(ready))
	copy(tasks, ready)
	sort.Slice(tasks, func(i, j int) bool {
		pi, pj := kindPriority(tasks[i].Kind), kindPriority(tasks[j].Kind)
		if pi != pj {
			return pi < pj
		}
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})

	workers := e.registry.Snapshot()
	planned := make(map[string]int, len(workers)) // workerID -> slots consumed by this plan

	var out []Assignment
	for _, task := range tasks {
		w := e.pick(task, workers, planned)
		if w == nil {
			continue // no eligible worker; task remains pending
		}
		planned[w.ID]++
		out = append(out, Assignment{Task: task, Worker: w.ID})
	}
	return out
}

// pick chooses the least-loaded eligible worker, breaking ties by ID.
// Widened tasks accept any healthy worker with spare capacity, but an
// exact capability match still wins.
func (e *Engine) pick(task *graph.Task, workers []*Worker, planned map[string]int) *Worker {
	var best *Worker
	bestExact := false

	for _, w := range workers {
		exact := w.Has(task.Capability)
		if !exact && !task.Widened {
			continue
		}
		if w.Load+planned[w.ID] >= w.MaxLoad {
			continue
		}
		if e.health != nil && !e.health.Available(w.ID) {
			continue
		}

		if best == nil {
			best, bestExact = w, exact
			continue
		}
		switch {
		case exact && !bestExact:
			best, bestExact = w, exact
		case exact == bestExact && load(w, planned) < load(best, planned):
			best, bestExact = w, exact
		}
	}
	return best
}

func load(w *Worker, planned map[string]int) int {
	return w.Load + planned[w.ID]
}
