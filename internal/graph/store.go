package graph

import (
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/toposort"
)

// validTransitions is the forward-only status machine. Anything not
// listed fails with ErrInvalidTransition; nothing silently succeeds.
var validTransitions = map[Status][]Status{
	StatusPending:  {StatusReady, StatusBlocked},
	StatusReady:    {StatusAssigned, StatusBlocked},
	StatusAssigned: {StatusRunning, StatusBlocked},
	StatusRunning:  {StatusComplete, StatusFailed},
	StatusFailed:   {StatusPending, StatusBlocked},
}

// transitionAllowed reports whether from -> to is in the machine.
func transitionAllowed(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Store is the task graph store: task definitions, dependency edges,
// completion state, and the append-only execution event log. It is the
// single source of truth; all reads return snapshots and only the
// orchestrator commits mutations.
type Store struct {
	mu         sync.RWMutex
	tasks      map[string]*Task
	dependents map[string][]string // prerequisite ID -> tasks that depend on it
	events     []ExecutionEvent
	byTask     map[string][]int // taskID -> indexes into events
	nextSeq    int64
	now        func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
		byTask:     make(map[string][]int),
		now:        time.Now,
	}
}

// Add inserts a task. The dependency set must reference only existing
// task IDs and must not introduce a cycle; cyclic graphs are rejected
// here, never resolved at runtime. On success the task enters the graph
// with its submitted status (StatusPending for new work).
func (s *Store) Add(task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTask, task.ID)
	}
	for _, depID := range task.DependsOn {
		if _, exists := s.tasks[depID]; !exists {
			return fmt.Errorf("%w: task %q depends on %q", ErrUnknownDependency, task.ID, depID)
		}
	}
	if task.VerifiedBy != "" {
		ver, exists := s.tasks[task.VerifiedBy]
		if !exists {
			return fmt.Errorf("%w: task %q links verification %q", ErrUnknownDependency, task.ID, task.VerifiedBy)
		}
		if ver.Kind != KindVerification {
			return fmt.Errorf("%w: task %q links non-verification task %q", ErrUnknownDependency, task.ID, task.VerifiedBy)
		}
	}

	if err := s.checkAcyclic(task); err != nil {
		return err
	}

	cp := task.Clone()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	cp.UpdatedAt = cp.CreatedAt
	s.tasks[cp.ID] = cp
	for _, depID := range cp.DependsOn {
		s.dependents[depID] = append(s.dependents[depID], cp.ID)
	}
	return nil
}

// checkAcyclic runs a topological sort over the graph plus the
// prospective task. Edges only point at pre-existing tasks, so this is
// belt and braces, but the insertion contract promises it.
func (s *Store) checkAcyclic(task *Task) error {
	var edges []toposort.Edge
	add := func(t *Task) {
		if len(t.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, t.ID})
			return
		}
		for _, depID := range t.DependsOn {
			edges = append(edges, toposort.Edge{depID, t.ID})
		}
	}
	for _, t := range s.tasks {
		add(t)
	}
	add(task)

	if _, err := toposort.Toposort(edges); err != nil {
		return fmt.Errorf("%w: adding task %q: %v", ErrCycleDetected, task.ID, err)
	}
	return nil
}

// Get returns a snapshot of the task, or ErrNotFound.
func (s *Store) Get(id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, exists := s.tasks[id]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return task.Clone(), nil
}

// UpdateStatus applies a status transition and appends the execution
// event. Repeating the current status is a no-op (idempotent event
// delivery); any transition outside the machine fails with
// ErrInvalidTransition and leaves state untouched.
func (s *Store) UpdateStatus(id string, to Status, classification string) (ExecutionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[id]
	if !exists {
		return ExecutionEvent{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if task.Status == to {
		// Duplicate delivery of the same event; already applied.
		return ExecutionEvent{}, nil
	}
	if !transitionAllowed(task.Status, to) {
		return ExecutionEvent{}, fmt.Errorf("%w: %q %s -> %s", ErrInvalidTransition, id, task.Status, to)
	}

	ev := ExecutionEvent{
		Seq:            s.nextSeq,
		TaskID:         id,
		From:           task.Status,
		To:             to,
		Classification: classification,
		At:             s.now(),
	}
	s.nextSeq++
	s.events = append(s.events, ev)
	s.byTask[id] = append(s.byTask[id], len(s.events)-1)

	task.Status = to
	task.UpdatedAt = ev.At
	return ev, nil
}

// SetWorker records the owning worker for an assigned task.
func (s *Store) SetWorker(id, workerID string) error {
	return s.mutate(id, func(t *Task) { t.Worker = workerID })
}

// ClearWorker releases ownership after completion or failure.
func (s *Store) ClearWorker(id string) error {
	return s.mutate(id, func(t *Task) { t.Worker = "" })
}

// SetRetry records a consumed retry and the earliest next attempt.
func (s *Store) SetRetry(id string, count int, notBefore time.Time) error {
	return s.mutate(id, func(t *Task) {
		t.RetryCount = count
		t.NotBefore = notBefore
	})
}

// SetWidened relaxes capability matching for the task.
func (s *Store) SetWidened(id string) error {
	return s.mutate(id, func(t *Task) { t.Widened = true })
}

// SetAwaitDep parks a failed task until the named dependency completes.
// An empty dep clears the marker.
func (s *Store) SetAwaitDep(id, dep string) error {
	return s.mutate(id, func(t *Task) { t.AwaitDep = dep })
}

func (s *Store) mutate(id string, fn func(*Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[id]
	if !exists {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	fn(task)
	task.UpdatedAt = s.now()
	return nil
}

// Dependents returns the IDs of tasks that list id as a prerequisite.
func (s *Store) Dependents(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.dependents[id]...)
}

// Tasks returns snapshots of every task, in no particular order.
func (s *Store) Tasks() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	return out
}

// Awaiting returns failed tasks parked on the given dependency.
func (s *Store) Awaiting(depID string) []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Task
	for _, t := range s.tasks {
		if t.Status == StatusFailed && t.AwaitDep == depID {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Events returns the task's slice of the execution log, in order.
func (s *Store) Events(id string) []ExecutionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idxs := s.byTask[id]
	out := make([]ExecutionEvent, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, s.events[i])
	}
	return out
}

// AllEvents returns the full execution log in append order.
func (s *Store) AllEvents() []ExecutionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ExecutionEvent(nil), s.events...)
}

// RestoreEvent re-appends a historical event during startup reload.
// It bypasses the transition check: the event already happened.
func (s *Store) RestoreEvent(ev ExecutionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev.Seq = s.nextSeq
	s.nextSeq++
	s.events = append(s.events, ev)
	s.byTask[ev.TaskID] = append(s.byTask[ev.TaskID], len(s.events)-1)
}

// Counts summarizes task statuses for progress reporting.
type Counts struct {
	Total    int
	Pending  int
	Ready    int
	Assigned int
	Running  int
	Complete int
	Failed   int
	Blocked  int
}

// CountByStatus tallies tasks per status.
func (s *Store) CountByStatus() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := Counts{Total: len(s.tasks)}
	for _, t := range s.tasks {
		switch t.Status {
		case StatusPending:
			c.Pending++
		case StatusReady:
			c.Ready++
		case StatusAssigned:
			c.Assigned++
		case StatusRunning:
			c.Running++
		case StatusComplete:
			c.Complete++
		case StatusFailed:
			c.Failed++
		case StatusBlocked:
			c.Blocked++
		}
	}
	return c
}
