// Package gate implements the execution gate: an implementation task
// may not start until its paired verification task exists, has run at
// least once, and has been observed to fail before completing. The "seen
// red first" rule is a hard constraint, not a heuristic — without a
// declared verification link the gate fails closed.
package gate

import (
	"fmt"

	"github.com/gantryd/gantry/internal/graph"
)

// Gate checks start preconditions against the graph store's execution
// event log.
type Gate struct {
	store *graph.Store
}

// New creates a gate over the store.
func New(store *graph.Store) *Gate {
	return &Gate{store: store}
}

// CanStart reports whether the task may begin execution. Kinds other
// than implementation pass unconditionally. For implementation tasks it
// returns ErrMissingVerification when no verification link is declared
// or the link dangles; otherwise false with a nil error simply means
// "not yet".
func (g *Gate) CanStart(task *graph.Task) (bool, error) {
	if task.Kind != graph.KindImplementation {
		return true, nil
	}
	if task.VerifiedBy == "" {
		return false, fmt.Errorf("%w: task %q", graph.ErrMissingVerification, task.ID)
	}

	ver, err := g.store.Get(task.VerifiedBy)
	if err != nil {
		return false, fmt.Errorf("%w: task %q links %q", graph.ErrMissingVerification, task.ID, task.VerifiedBy)
	}
	// A verification with no execution history has never run. Once it
	// has run and failed, a later requeue back to pending does not
	// re-close the gate — the red observation stands.
	events := g.store.Events(ver.ID)
	if len(events) == 0 {
		return false, nil
	}
	return failedBeforeComplete(events), nil
}

// failedBeforeComplete scans the verification task's transition history
// for a failed event preceding any complete event. A verification that
// completed without ever failing never opens the gate.
func failedBeforeComplete(events []graph.ExecutionEvent) bool {
	for _, ev := range events {
		switch ev.To {
		case graph.StatusFailed:
			return true
		case graph.StatusComplete:
			return false
		}
	}
	return false
}
