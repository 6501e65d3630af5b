package graph

import "time"

// ExecutionEvent is an immutable record of a single status transition.
// The log is append-only: the execution gate reconstructs "did the
// verification task fail before it completed" from it, so events are
// never rewritten or compacted.
type ExecutionEvent struct {
	Seq            int64 // Monotonic position in the global log
	TaskID         string
	From           Status
	To             Status
	Classification string // Failure classification, empty otherwise
	At             time.Time
}
