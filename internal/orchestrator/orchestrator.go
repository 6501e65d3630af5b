// Package orchestrator ties the graph store, resolver, assignment
// engine, execution gate, and recovery coordinator into the top-level
// scheduling loop. Decision making is single-threaded: one logical tick
// reads a snapshot, computes the ready set, plans assignments, and
// commits every transition for that tick before the next begins. All
// mutation funnels through this package, giving the store a single
// writer and eliminating lost-update races without fine-grained locks.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gammazero/toposort"
	"go.uber.org/zap"

	"github.com/gantryd/gantry/internal/assign"
	"github.com/gantryd/gantry/internal/events"
	"github.com/gantryd/gantry/internal/gate"
	"github.com/gantryd/gantry/internal/graph"
	"github.com/gantryd/gantry/internal/metrics"
	"github.com/gantryd/gantry/internal/persistence"
	"github.com/gantryd/gantry/internal/recovery"
	"github.com/gantryd/gantry/internal/resolver"
)

// Config tunes the orchestrator loop.
type Config struct {
	PollInterval time.Duration // Tick fallback when no events arrive
	MaxRetries   int           // Transient retry budget per task
	Retry        recovery.RetryConfig
	Breaker      recovery.BreakerConfig
}

// DefaultConfig returns sane loop settings.
func DefaultConfig() Config {
	return Config{
		PollInterval: 500 * time.Millisecond,
		MaxRetries:   3,
		Retry:        recovery.DefaultRetryConfig(),
		Breaker:      recovery.DefaultBreakerConfig(),
	}
}

// Orchestrator owns all graph mutation. External interfaces (HTTP
// server, embedded workers) call its methods; components below it only
// read snapshots and propose changes.
type Orchestrator struct {
	mu sync.Mutex // serializes every commit path with the tick loop

	store    *graph.Store
	resolver *resolver.Resolver
	registry *assign.Registry
	engine   *assign.Engine
	gate     *gate.Gate
	recovery *recovery.Coordinator
	breakers *recovery.BreakerRegistry

	bus     *events.Bus
	db      persistence.Store
	metrics *metrics.Metrics
	logger  *zap.Logger
	cfg     Config

	wake  chan struct{}
	clock func() time.Time
}

// New creates an orchestrator. db and m may be nil (no persistence, no
// metrics); bus must not be.
func New(store *graph.Store, bus *events.Bus, db persistence.Store, m *metrics.Metrics, logger *zap.Logger, cfg Config) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}

	registry := assign.NewRegistry()
	breakers := recovery.NewBreakerRegistry(cfg.Breaker, logger)

	return &Orchestrator{
		store:    store,
		resolver: resolver.New(store),
		registry: registry,
		engine:   assign.NewEngine(registry, breakers),
		gate:     gate.New(store),
		recovery: recovery.New(cfg.MaxRetries, cfg.Retry, logger),
		breakers: breakers,
		bus:      bus,
		db:       db,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
		wake:     make(chan struct{}, 1),
		clock:    time.Now,
	}
}

// Restore reloads tasks, workers, and the execution event log from
// persistence into the in-memory graph, then rebuilds worker loads from
// assigned/running tasks. Call before Run.
func (o *Orchestrator) Restore(ctx context.Context) error {
	if o.db == nil {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	tasks, err := o.db.ListTasks(ctx)
	if err != nil {
		return err
	}
	for _, t := range replayOrder(tasks) {
		if err := o.store.Add(t); err != nil {
			return err
		}
	}

	evs, err := o.db.ListEvents(ctx)
	if err != nil {
		return err
	}
	for _, ev := range evs {
		o.store.RestoreEvent(ev)
	}

	workers, err := o.db.ListWorkers(ctx)
	if err != nil {
		return err
	}
	for _, w := range workers {
		caps := make([]string, 0, len(w.Capabilities))
		for c := range w.Capabilities {
			caps = append(caps, c)
		}
		if err := o.registry.Register(w.ID, caps, w.MaxLoad); err != nil {
			return err
		}
	}

	for _, t := range tasks {
		if t.Worker != "" && (t.Status == graph.StatusAssigned || t.Status == graph.StatusRunning) {
			if err := o.registry.Acquire(t.Worker); err != nil {
				o.logger.Warn("stale assignment during restore",
					zap.String("task", t.ID), zap.String("worker", t.Worker), zap.Error(err))
			}
		}
	}

	// Counters must reflect the reloaded graph.
	o.resolver = resolver.New(o.store)

	o.logger.Info("graph restored",
		zap.Int("tasks", len(tasks)),
		zap.Int("events", len(evs)),
		zap.Int("workers", len(workers)))
	return nil
}

// replayOrder sorts persisted tasks so every dependency precedes its
// dependents, which Store.Add requires. The persisted order is
// (created_at, id) and does not survive tasks submitted at the same
// instant.
func replayOrder(tasks []*graph.Task) []*graph.Task {
	byID := make(map[string]*graph.Task, len(tasks))
	var edges []toposort.Edge
	for _, t := range tasks {
		byID[t.ID] = t
		if len(t.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, t.ID})
			continue
		}
		for _, depID := range t.DependsOn {
			edges = append(edges, toposort.Edge{depID, t.ID})
		}
	}
	sorted, err := toposort.Toposort(edges)
	if err != nil {
		// Persisted graphs were validated on insert; fall back to the
		// stored order and let Add report the defect.
		return tasks
	}
	out := make([]*graph.Task, 0, len(tasks))
	for _, node := range sorted {
		id, ok := node.(string)
		if !ok {
			continue
		}
		if t, ok := byID[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Run drives the tick loop until the context is cancelled. Ticks fire
// on wake signals (submissions, status events) or the polling interval,
// whichever comes first.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.wake:
		case <-ticker.C:
		}
		o.tick(ctx)
	}
}

// tick runs one scheduling round: ready set, gate filter, assignment
// plan, commit. All transitions of a tick commit under one lock hold,
// so two ticks can never race to assign the same task.
func (o *Orchestrator) tick(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clock()
	ready := o.resolver.Ready(now)

	startable := ready[:0:0]
	for _, t := range ready {
		ok, err := o.gate.CanStart(t)
		if err != nil {
			// Fails closed: implementation task with no verification
			// link. It stays pending until one is declared.
			if errors.Is(err, graph.ErrMissingVerification) {
				o.logger.Debug("gate closed", zap.String("task", t.ID), zap.Error(err))
				continue
			}
			o.logger.Warn("gate check failed", zap.String("task", t.ID), zap.Error(err))
			continue
		}
		if ok {
			startable = append(startable, t)
		}
	}

	for _, plan := range o.engine.Plan(startable) {
		o.commitAssignment(ctx, plan)
	}

	if o.metrics != nil {
		o.metrics.Ticks.Inc()
	}
	o.bus.Publish(events.ProgressEvent{Counts: o.store.CountByStatus(), Timestamp: now})
}

// commitAssignment moves one planned task pending -> ready -> assigned
// and binds it to its worker. Caller holds the lock.
func (o *Orchestrator) commitAssignment(ctx context.Context, plan assign.Assignment) {
	id := plan.Task.ID

	if err := o.registry.Acquire(plan.Worker); err != nil {
		// Plan respects capacity, so this only fires on a stale plan.
		o.logger.Warn("assignment dropped", zap.String("task", id), zap.Error(err))
		return
	}

	for _, status := range []graph.Status{graph.StatusReady, graph.StatusAssigned} {
		ev, err := o.store.UpdateStatus(id, status, "")
		if err != nil {
			o.registry.Release(plan.Worker)
			o.logger.Error("assignment transition failed", zap.String("task", id), zap.Error(err))
			return
		}
		o.afterTransition(ctx, ev)
	}

	if err := o.store.SetWorker(id, plan.Worker); err != nil {
		o.logger.Error("worker binding failed", zap.String("task", id), zap.Error(err))
		return
	}
	o.resolver.TaskScheduled(id)
	o.persistTask(ctx, id)

	if o.metrics != nil {
		o.metrics.Assignments.Inc()
		o.metrics.TasksInFlight.Inc()
	}
	o.bus.Publish(events.TaskAssignedEvent{ID: id, Worker: plan.Worker, Timestamp: o.clock()})
	o.logger.Info("task assigned", zap.String("task", id), zap.String("worker", plan.Worker))
}

// afterTransition records a committed execution event in persistence,
// metrics, and on the bus. Caller holds the lock.
func (o *Orchestrator) afterTransition(ctx context.Context, ev graph.ExecutionEvent) {
	if ev.TaskID == "" {
		return // idempotent no-op transition
	}
	if o.db != nil {
		if err := o.db.AppendEvent(ctx, ev); err != nil {
			o.logger.Error("event persistence failed", zap.String("task", ev.TaskID), zap.Error(err))
		}
	}
	if o.metrics != nil {
		o.metrics.Transitions.WithLabelValues(ev.To.String()).Inc()
	}
	o.bus.Publish(events.StatusChangedEvent{
		ID:             ev.TaskID,
		From:           ev.From,
		To:             ev.To,
		Classification: ev.Classification,
		Timestamp:      ev.At,
	})
}

// persistTask mirrors a task's mutable fields to persistence. Caller
// holds the lock.
func (o *Orchestrator) persistTask(ctx context.Context, id string) {
	if o.db == nil {
		return
	}
	t, err := o.store.Get(id)
	if err != nil {
		return
	}
	if err := o.db.UpdateTask(ctx, t); err != nil {
		o.logger.Error("task persistence failed", zap.String("task", id), zap.Error(err))
	}
}

// poke wakes the loop without blocking.
func (o *Orchestrator) poke() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}
