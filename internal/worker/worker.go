// Package worker provides the embedded worker runtime: in-process
// workers that register with the orchestrator, claim their assignments
// off the event bus, execute handler functions, and report outcomes
// through the event ingestion path. External workers speak the HTTP
// interface instead; this runtime serves local, single-binary, and test
// deployments.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/gantryd/gantry/internal/events"
	"github.com/gantryd/gantry/internal/graph"
	"github.com/gantryd/gantry/internal/orchestrator"
	"github.com/gantryd/gantry/internal/recovery"
)

// Handler executes one task. Returning nil reports complete; returning
// a Failure reports failed with its classification; any other error is
// reported as transient.
type Handler func(ctx context.Context, task *graph.Task) error

// Failure wraps an error with its structured classification so the
// recovery coordinator gets real input rather than guesswork.
type Failure struct {
	Class             recovery.Classification
	MissingDependency string // dependency-missing only
	Err               error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Class)
	}
	return fmt.Sprintf("%s: %v", f.Class, f.Err)
}

// Unwrap exposes the underlying error.
func (f *Failure) Unwrap() error { return f.Err }

// Config defines one embedded worker.
type Config struct {
	ID           string
	Capabilities []string
	MaxLoad      int
}

// Runner is one embedded worker instance.
type Runner struct {
	cfg      Config
	orch     *orchestrator.Orchestrator
	handlers map[string]Handler // capability -> handler
	slots    *semaphore.Weighted
	logger   *zap.Logger

	mu sync.Mutex
	wg sync.WaitGroup
}

// NewRunner creates an embedded worker. Handlers are keyed by
// capability tag; a task is dispatched to the handler for its
// capability.
func NewRunner(cfg Config, orch *orchestrator.Orchestrator, logger *zap.Logger) *Runner {
	if cfg.MaxLoad < 1 {
		cfg.MaxLoad = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:      cfg,
		orch:     orch,
		handlers: make(map[string]Handler),
		slots:    semaphore.NewWeighted(int64(cfg.MaxLoad)),
		logger:   logger.With(zap.String("worker", cfg.ID)),
	}
}

// Handle registers the handler for a capability tag.
func (r *Runner) Handle(capability string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[capability] = h
}

// Run registers the worker and serves assignments until the context is
// cancelled. It drains in-flight handlers before returning.
func (r *Runner) Run(ctx context.Context, bus *events.Bus) error {
	if err := r.orch.RegisterWorker(ctx, r.cfg.ID, r.cfg.Capabilities, r.cfg.MaxLoad); err != nil {
		return fmt.Errorf("registering worker %q: %w", r.cfg.ID, err)
	}

	sub := bus.Subscribe(events.TopicTask, 256)
	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			return ctx.Err()
		case ev, ok := <-sub:
			if !ok {
				r.wg.Wait()
				return nil
			}
			assigned, isAssign := ev.(events.TaskAssignedEvent)
			if !isAssign || assigned.Worker != r.cfg.ID {
				continue
			}
			r.claim(ctx, assigned.ID)
		}
	}
}

// claim acquires a slot and executes the task in its own goroutine. The
// semaphore mirrors the registry's load cap so a burst of assignments
// can never oversubscribe the handler pool.
func (r *Runner) claim(ctx context.Context, taskID string) {
	if err := r.slots.Acquire(ctx, 1); err != nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.slots.Release(1)
		r.execute(ctx, taskID)
	}()
}

func (r *Runner) execute(ctx context.Context, taskID string) {
	task, err := r.orch.Task(taskID)
	if err != nil {
		r.logger.Warn("claimed unknown task", zap.String("task", taskID), zap.Error(err))
		return
	}

	if err := r.orch.ReportStatus(ctx, taskID, graph.StatusRunning, "", recovery.Metadata{}); err != nil {
		r.logger.Warn("start report failed", zap.String("task", taskID), zap.Error(err))
		return
	}

	r.mu.Lock()
	h := r.handlers[task.Capability]
	r.mu.Unlock()

	start := time.Now()
	var execErr error
	if h == nil {
		execErr = &Failure{
			Class: recovery.ClassCapabilityMismatch,
			Err:   fmt.Errorf("no handler for capability %q", task.Capability),
		}
	} else {
		execErr = h(ctx, task)
	}

	if execErr == nil {
		if err := r.orch.ReportStatus(ctx, taskID, graph.StatusComplete, "", recovery.Metadata{}); err != nil {
			r.logger.Error("completion report failed", zap.String("task", taskID), zap.Error(err))
		}
		r.logger.Info("task complete",
			zap.String("task", taskID),
			zap.Duration("duration", time.Since(start)))
		return
	}

	class := recovery.ClassTransient
	meta := recovery.Metadata{}
	var failure *Failure
	if errors.As(execErr, &failure) {
		class = failure.Class
		meta.MissingDependency = failure.MissingDependency
	}
	if ctx.Err() != nil {
		// Shutdown mid-task: we cannot confirm stoppage cleanly.
		class = recovery.ClassUnrecoverable
	}

	if err := r.orch.ReportStatus(ctx, taskID, graph.StatusFailed, class, meta); err != nil {
		r.logger.Error("failure report failed", zap.String("task", taskID), zap.Error(err))
	}
	r.logger.Warn("task failed",
		zap.String("task", taskID),
		zap.String("classification", string(class)),
		zap.Error(execErr))
}
