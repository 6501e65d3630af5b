package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gantryd/gantry/internal/events"
	"github.com/gantryd/gantry/internal/graph"
	"github.com/gantryd/gantry/internal/orchestrator"
	"github.com/gantryd/gantry/internal/recovery"
)

// Tests here run a live orchestrator loop plus an embedded worker so
// they exercise the full submit -> assign -> execute -> report cycle.

func newTestOrchestrator(bus *events.Bus) *orchestrator.Orchestrator {
	return orchestrator.New(graph.NewStore(), bus, nil, nil, nil, orchestrator.Config{
		PollInterval: 10 * time.Millisecond,
		MaxRetries:   3,
		Retry: recovery.RetryConfig{
			InitialInterval: time.Millisecond,
			MaxInterval:     10 * time.Millisecond,
			Multiplier:      2.0,
		},
		Breaker: recovery.BreakerConfig{ConsecutiveFailures: 100, OpenTimeout: time.Minute},
	})
}

func waitStatus(t *testing.T, orch *orchestrator.Orchestrator, id string, want graph.Status) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		task, err := orch.Task(id)
		if err == nil && task.Status == want {
			return
		}
		select {
		case <-deadline:
			current := "unknown"
			if task != nil {
				current = task.Status.String()
			}
			t.Fatalf("task %s never reached %s (now %s)", id, want, current)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRunnerExecutesTasks(t *testing.T) {
	bus := events.NewBus()
	orch := newTestOrchestrator(bus)

	executed := make(chan string, 8)
	runner := NewRunner(Config{ID: "w1", Capabilities: []string{"golang"}, MaxLoad: 2}, orch, nil)
	runner.Handle("golang", func(ctx context.Context, task *graph.Task) error {
		executed <- task.ID
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go orch.Run(ctx)
	go runner.Run(ctx, bus)
	t.Cleanup(func() { cancel(); bus.Close() })

	if _, err := orch.SubmitTask(ctx, orchestrator.SubmitRequest{ID: "t1", Kind: graph.KindInfra, Capability: "golang"}); err != nil {
		t.Fatalf("SubmitTask() error = %v", err)
	}

	waitStatus(t, orch, "t1", graph.StatusComplete)
	select {
	case id := <-executed:
		if id != "t1" {
			t.Errorf("executed %q, want t1", id)
		}
	default:
		t.Error("handler never ran")
	}
}

func TestRunnerReportsClassifiedFailure(t *testing.T) {
	bus := events.NewBus()
	orch := newTestOrchestrator(bus)

	runner := NewRunner(Config{ID: "w1", Capabilities: []string{"golang"}, MaxLoad: 1}, orch, nil)
	runner.Handle("golang", func(ctx context.Context, task *graph.Task) error {
		return &Failure{Class: recovery.ClassUnrecoverable, Err: errors.New("bad input")}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go orch.Run(ctx)
	go runner.Run(ctx, bus)
	t.Cleanup(func() { cancel(); bus.Close() })

	if _, err := orch.SubmitTask(ctx, orchestrator.SubmitRequest{ID: "t1", Kind: graph.KindInfra, Capability: "golang"}); err != nil {
		t.Fatalf("SubmitTask() error = %v", err)
	}

	waitStatus(t, orch, "t1", graph.StatusBlocked)

	evs, err := orch.TaskEvents("t1")
	if err != nil {
		t.Fatalf("TaskEvents() error = %v", err)
	}
	var sawClassifiedFailure bool
	for _, ev := range evs {
		if ev.To == graph.StatusFailed && ev.Classification == string(recovery.ClassUnrecoverable) {
			sawClassifiedFailure = true
		}
	}
	if !sawClassifiedFailure {
		t.Errorf("no unrecoverable failure event in %+v", evs)
	}
}

func TestRunnerRetriesTransientFailures(t *testing.T) {
	bus := events.NewBus()
	orch := newTestOrchestrator(bus)

	attempts := 0
	runner := NewRunner(Config{ID: "w1", Capabilities: []string{"golang"}, MaxLoad: 1}, orch, nil)
	runner.Handle("golang", func(ctx context.Context, task *graph.Task) error {
		attempts++
		if attempts < 3 {
			// Plain errors count as transient.
			return fmt.Errorf("connection reset")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go orch.Run(ctx)
	go runner.Run(ctx, bus)
	t.Cleanup(func() { cancel(); bus.Close() })

	if _, err := orch.SubmitTask(ctx, orchestrator.SubmitRequest{ID: "t1", Kind: graph.KindInfra, Capability: "golang"}); err != nil {
		t.Fatalf("SubmitTask() error = %v", err)
	}

	waitStatus(t, orch, "t1", graph.StatusComplete)
	if attempts != 3 {
		t.Errorf("handler ran %d times, want 3", attempts)
	}

	task, _ := orch.Task("t1")
	if task.RetryCount != 2 {
		t.Errorf("retry count = %d, want 2", task.RetryCount)
	}
}

func TestRunnerWithoutHandlerReportsCapabilityMismatch(t *testing.T) {
	bus := events.NewBus()
	orch := newTestOrchestrator(bus)

	// Registered capability but no handler wired for it.
	runner := NewRunner(Config{ID: "w1", Capabilities: []string{"golang"}, MaxLoad: 1}, orch, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go orch.Run(ctx)
	go runner.Run(ctx, bus)
	t.Cleanup(func() { cancel(); bus.Close() })

	if _, err := orch.SubmitTask(ctx, orchestrator.SubmitRequest{ID: "t1", Kind: graph.KindInfra, Capability: "golang"}); err != nil {
		t.Fatalf("SubmitTask() error = %v", err)
	}

	// Capability mismatch widens the task; with no other worker it
	// keeps cycling, so watch the event log for the classification.
	deadline := time.After(5 * time.Second)
	for {
		evs, _ := orch.TaskEvents("t1")
		found := false
		for _, ev := range evs {
			if ev.To == graph.StatusFailed && ev.Classification == string(recovery.ClassCapabilityMismatch) {
				found = true
			}
		}
		if found {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no capability-mismatch failure observed")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestFailureError(t *testing.T) {
	base := errors.New("boom")
	f := &Failure{Class: recovery.ClassTransient, Err: base}

	if !errors.Is(f, base) {
		t.Error("Failure does not unwrap to its cause")
	}
	var target *Failure
	if !errors.As(error(f), &target) {
		t.Error("errors.As failed to extract Failure")
	}
	if f.Error() != "transient: boom" {
		t.Errorf("Error() = %q", f.Error())
	}

	bare := &Failure{Class: recovery.ClassUnrecoverable}
	if bare.Error() != "unrecoverable" {
		t.Errorf("Error() = %q, want %q", bare.Error(), "unrecoverable")
	}
}
