package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gantryd/gantry/internal/assign"
	"github.com/gantryd/gantry/internal/events"
	"github.com/gantryd/gantry/internal/graph"
	"github.com/gantryd/gantry/internal/recovery"
)

// SubmitRequest is a task definition from the submission interface.
type SubmitRequest struct {
	ID         string // Optional; generated when empty
	Kind       graph.Kind
	Capability string
	DependsOn  []string
	VerifiedBy string // Optional linked verification task
}

// SubmitTask validates and inserts a new task, returning its snapshot.
// Structural errors (CycleDetected, UnknownDependency, DuplicateTask)
// abort the call without touching graph state.
func (o *Orchestrator) SubmitTask(ctx context.Context, req SubmitRequest) (*graph.Task, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	task := &graph.Task{
		ID:         id,
		Kind:       req.Kind,
		Capability: req.Capability,
		DependsOn:  req.DependsOn,
		VerifiedBy: req.VerifiedBy,
		Status:     graph.StatusPending,
		CreatedAt:  o.clock(),
	}

	if err := o.store.Add(task); err != nil {
		return nil, err
	}
	o.resolver.TaskAdded(task)

	if o.db != nil {
		if err := o.db.SaveTask(ctx, task); err != nil {
			o.logger.Error("task persistence failed", zap.String("task", id), zap.Error(err))
		}
	}
	if o.metrics != nil {
		o.metrics.TasksSubmitted.Inc()
	}
	o.bus.Publish(events.TaskSubmittedEvent{ID: id, Kind: task.Kind, Timestamp: task.CreatedAt})
	o.poke()

	o.logger.Info("task submitted",
		zap.String("task", id),
		zap.String("kind", task.Kind.String()),
		zap.String("capability", task.Capability),
		zap.Strings("depends_on", task.DependsOn))
	return task.Clone(), nil
}

// RegisterWorker adds a worker to the registry. Re-registration fails
// with DuplicateWorker.
func (o *Orchestrator) RegisterWorker(ctx context.Context, id string, capabilities []string, maxLoad int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.registry.Register(id, capabilities, maxLoad); err != nil {
		return err
	}

	if o.db != nil {
		if w, ok := o.registry.Get(id); ok {
			if err := o.db.SaveWorker(ctx, w); err != nil {
				o.logger.Error("worker persistence failed", zap.String("worker", id), zap.Error(err))
			}
		}
	}
	o.bus.Publish(events.WorkerRegisteredEvent{
		Worker:       id,
		Capabilities: capabilities,
		MaxLoad:      maxLoad,
		Timestamp:    o.clock(),
	})
	o.poke()

	o.logger.Info("worker registered",
		zap.String("worker", id),
		zap.Strings("capabilities", capabilities),
		zap.Int("max_load", maxLoad))
	return nil
}

// ReportStatus is the event ingestion interface: it applies a status
// transition through the state machine and routes failures into the
// recovery coordinator. Duplicate delivery of the same (task, status)
// pair is a no-op; invalid transitions return InvalidTransition.
func (o *Orchestrator) ReportStatus(ctx context.Context, taskID string, to graph.Status, class recovery.Classification, meta recovery.Metadata) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	before, err := o.store.Get(taskID)
	if err != nil {
		return err
	}

	classification := ""
	if to == graph.StatusFailed {
		if class == "" || !class.Valid() {
			class = recovery.ClassUnrecoverable
		}
		classification = string(class)
	}

	ev, err := o.store.UpdateStatus(taskID, to, classification)
	if err != nil {
		return err
	}
	if ev.TaskID == "" {
		return nil // duplicate event, already applied
	}
	o.afterTransition(ctx, ev)

	switch to {
	case graph.StatusComplete:
		o.handleComplete(ctx, before)
	case graph.StatusFailed:
		o.handleFailed(ctx, before, class, meta)
	}

	o.persistTask(ctx, taskID)
	o.poke()
	return nil
}

// handleComplete releases the worker, unlocks dependents, and requeues
// any tasks parked waiting for this dependency. Caller holds the lock.
func (o *Orchestrator) handleComplete(ctx context.Context, task *graph.Task) {
	o.releaseWorker(task, false)
	o.recovery.Forget(task.ID)
	o.resolver.DependencyCompleted(task.ID)

	for _, waiter := range o.store.Awaiting(task.ID) {
		ev, err := o.store.UpdateStatus(waiter.ID, graph.StatusPending, "")
		if err != nil {
			o.logger.Error("requeue failed", zap.String("task", waiter.ID), zap.Error(err))
			continue
		}
		o.afterTransition(ctx, ev)
		_ = o.store.SetAwaitDep(waiter.ID, "")
		o.resolver.Requeued(waiter.ID)
		o.persistTask(ctx, waiter.ID)
		o.logger.Info("parked task requeued",
			zap.String("task", waiter.ID),
			zap.String("completed_dependency", task.ID))
	}
}

// handleFailed asks the recovery coordinator what to do with a failed
// task and applies the decision. Caller holds the lock.
func (o *Orchestrator) handleFailed(ctx context.Context, task *graph.Task, class recovery.Classification, meta recovery.Metadata) {
	o.releaseWorker(task, true)

	decision := o.recovery.Decide(task.ID, task.RetryCount, class, meta)
	switch decision.Action {
	case recovery.ActionRetry:
		ev, err := o.store.UpdateStatus(task.ID, graph.StatusPending, "")
		if err != nil {
			o.logger.Error("retry transition failed", zap.String("task", task.ID), zap.Error(err))
			return
		}
		o.afterTransition(ctx, ev)
		_ = o.store.SetRetry(task.ID, task.RetryCount+1, o.clock().Add(decision.Delay))
		o.resolver.Requeued(task.ID)
		o.logger.Info("task requeued",
			zap.String("task", task.ID),
			zap.Int("retry", task.RetryCount+1),
			zap.Duration("delay", decision.Delay))

	case recovery.ActionAwaitDep:
		// If the dependency already completed we can requeue at once.
		if dep, err := o.store.Get(decision.AwaitDep); err == nil && dep.Status == graph.StatusComplete {
			ev, err := o.store.UpdateStatus(task.ID, graph.StatusPending, "")
			if err != nil {
				o.logger.Error("requeue transition failed", zap.String("task", task.ID), zap.Error(err))
				return
			}
			o.afterTransition(ctx, ev)
			o.resolver.Requeued(task.ID)
			return
		}
		_ = o.store.SetAwaitDep(task.ID, decision.AwaitDep)
		o.logger.Info("task parked on dependency",
			zap.String("task", task.ID),
			zap.String("dependency", decision.AwaitDep))

	case recovery.ActionWiden:
		_ = o.store.SetWidened(task.ID)
		ev, err := o.store.UpdateStatus(task.ID, graph.StatusPending, "")
		if err != nil {
			o.logger.Error("widen transition failed", zap.String("task", task.ID), zap.Error(err))
			return
		}
		o.afterTransition(ctx, ev)
		o.resolver.Requeued(task.ID)
		o.logger.Info("task requeued with widened worker set", zap.String("task", task.ID))

	case recovery.ActionBlock:
		ev, err := o.store.UpdateStatus(task.ID, graph.StatusBlocked, string(class))
		if err != nil {
			o.logger.Error("block transition failed", zap.String("task", task.ID), zap.Error(err))
			return
		}
		o.afterTransition(ctx, ev)
		o.recovery.Forget(task.ID)
		if o.metrics != nil {
			o.metrics.TasksBlocked.Inc()
		}
		o.logger.Warn("task blocked",
			zap.String("task", task.ID),
			zap.String("classification", string(class)))
	}
}

// releaseWorker frees the owning worker's slot and feeds its breaker.
// Caller holds the lock.
func (o *Orchestrator) releaseWorker(task *graph.Task, failed bool) {
	if task.Worker == "" {
		return
	}
	o.registry.Release(task.Worker)
	o.breakers.Record(task.Worker, failed)
	_ = o.store.ClearWorker(task.ID)
	if o.metrics != nil {
		o.metrics.TasksInFlight.Dec()
	}
}

// Cancel aborts a task that has not started running. Cancelling a
// running task requires the owning worker's cooperation: the worker
// reports a failed event with classification unrecoverable instead.
func (o *Orchestrator) Cancel(ctx context.Context, taskID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	task, err := o.store.Get(taskID)
	if err != nil {
		return err
	}

	switch task.Status {
	case graph.StatusPending, graph.StatusReady, graph.StatusAssigned:
	case graph.StatusRunning:
		return fmt.Errorf("%w: task %q is running; the worker must report failure to cancel",
			graph.ErrInvalidTransition, taskID)
	default:
		return fmt.Errorf("%w: task %q is %s", graph.ErrInvalidTransition, taskID, task.Status)
	}

	ev, err := o.store.UpdateStatus(taskID, graph.StatusBlocked, string(recovery.ClassCancelled))
	if err != nil {
		return err
	}
	o.afterTransition(ctx, ev)
	o.releaseWorker(task, false)
	o.resolver.TaskScheduled(taskID)
	o.recovery.Forget(taskID)
	o.persistTask(ctx, taskID)

	if o.metrics != nil {
		o.metrics.TasksBlocked.Inc()
	}
	o.logger.Info("task cancelled", zap.String("task", taskID))
	return nil
}

// Task returns a snapshot of one task.
func (o *Orchestrator) Task(id string) (*graph.Task, error) {
	return o.store.Get(id)
}

// Tasks returns snapshots of every task.
func (o *Orchestrator) Tasks() []*graph.Task {
	return o.store.Tasks()
}

// TaskEvents returns a task's slice of the execution log.
func (o *Orchestrator) TaskEvents(id string) ([]graph.ExecutionEvent, error) {
	if _, err := o.store.Get(id); err != nil {
		return nil, err
	}
	return o.store.Events(id), nil
}

// Workers returns snapshots of all registered workers.
func (o *Orchestrator) Workers() []*assign.Worker {
	return o.registry.Snapshot()
}

// Counts summarizes the graph for the status projection.
func (o *Orchestrator) Counts() graph.Counts {
	return o.store.CountByStatus()
}
