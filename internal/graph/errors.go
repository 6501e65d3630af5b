package graph

import "errors"

// Structural errors are caller bugs: they abort the operation without
// touching graph state. Runtime task failures are not errors at this
// layer; they flow through the recovery coordinator as status events.
var (
	ErrCycleDetected       = errors.New("cycle detected")
	ErrUnknownDependency   = errors.New("unknown dependency")
	ErrNotFound            = errors.New("task not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrDuplicateTask       = errors.New("duplicate task id")
	ErrDuplicateWorker     = errors.New("duplicate worker id")
	ErrMissingVerification = errors.New("missing linked verification task")
	ErrCapacityExceeded    = errors.New("worker capacity exceeded")
)
