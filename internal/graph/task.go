package graph

import "time"

// Kind classifies what a task is for. Verification tasks guard
// implementation tasks through the execution gate; infra tasks are
// ordinary prerequisite work.
type Kind int

const (
	KindVerification Kind = iota
	KindImplementation
	KindInfra
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindVerification:
		return "verification"
	case KindImplementation:
		return "implementation"
	case KindInfra:
		return "infra"
	}
	return "unknown"
}

// ParseKind converts a wire name into a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "verification":
		return KindVerification, true
	case "implementation":
		return KindImplementation, true
	case "infra":
		return KindInfra, true
	}
	return 0, false
}

// Status represents the current state of a task.
type Status int

const (
	StatusPending  Status = iota // Waiting for dependencies or a worker
	StatusReady                  // Selected for assignment in the current tick
	StatusAssigned               // Committed to a worker, not yet started
	StatusRunning                // Worker reported execution start
	StatusComplete               // Finished successfully (terminal)
	StatusFailed                 // Finished with an error, recovery pending
	StatusBlocked                // Gave up; needs external intervention (terminal)
)

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusAssigned:
		return "assigned"
	case StatusRunning:
		return "running"
	case StatusComplete:
		return "complete"
	case StatusFailed:
		return "failed"
	case StatusBlocked:
		return "blocked"
	}
	return "unknown"
}

// ParseStatus converts a wire name into a Status.
func ParseStatus(s string) (Status, bool) {
	switch s {
	case "pending":
		return StatusPending, true
	case "ready":
		return StatusReady, true
	case "assigned":
		return StatusAssigned, true
	case "running":
		return StatusRunning, true
	case "complete":
		return StatusComplete, true
	case "failed":
		return StatusFailed, true
	case "blocked":
		return StatusBlocked, true
	}
	return 0, false
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusBlocked
}

// Task is a unit of work in the graph. Tasks are created once, move
// forward through the status machine, and are never deleted.
type Task struct {
	ID         string
	Kind       Kind
	Capability string   // Tag a worker must carry to execute this task
	DependsOn  []string // Prerequisite task IDs
	VerifiedBy string   // Linked verification task ID (implementation tasks)

	Status     Status
	Worker     string // Owning worker while assigned/running
	RetryCount int
	Widened    bool      // Capability matching relaxed after a capability-mismatch failure
	AwaitDep   string    // Set while parked on a missing dependency
	NotBefore  time.Time // Earliest time the task may be assigned again (retry backoff)

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so callers can never mutate store state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.DependsOn != nil {
		cp.DependsOn = append([]string(nil), t.DependsOn...)
	}
	return &cp
}
