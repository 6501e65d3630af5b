package events

import (
	"time"

	"github.com/gantryd/gantry/internal/graph"
)

// Event is the base interface for all bus events.
type Event interface {
	Topic() string
	TaskID() string
}

// Topic constants.
const (
	TopicTask   = "task"
	TopicWorker = "worker"
	TopicGraph  = "graph"
)

// TaskSubmittedEvent is published when a task enters the graph.
type TaskSubmittedEvent struct {
	ID        string
	Kind      graph.Kind
	Timestamp time.Time
}

func (e TaskSubmittedEvent) Topic() string  { return TopicTask }
func (e TaskSubmittedEvent) TaskID() string { return e.ID }

// StatusChangedEvent mirrors an execution event committed to the graph
// store: one status transition for one task.
type StatusChangedEvent struct {
	ID             string
	From           graph.Status
	To             graph.Status
	Classification string
	Timestamp      time.Time
}

func (e StatusChangedEvent) Topic() string  { return TopicTask }
func (e StatusChangedEvent) TaskID() string { return e.ID }

// TaskAssignedEvent is published when the orchestrator commits an
// assignment. Embedded workers watch this to claim their tasks.
type TaskAssignedEvent struct {
	ID        string
	Worker    string
	Timestamp time.Time
}

func (e TaskAssignedEvent) Topic() string  { return TopicTask }
func (e TaskAssignedEvent) TaskID() string { return e.ID }

// WorkerRegisteredEvent is published when a worker registers.
type WorkerRegisteredEvent struct {
	Worker       string
	Capabilities []string
	MaxLoad      int
	Timestamp    time.Time
}

func (e WorkerRegisteredEvent) Topic() string  { return TopicWorker }
func (e WorkerRegisteredEvent) TaskID() string { return "" }

// ProgressEvent summarizes graph-wide status counts after each tick.
type ProgressEvent struct {
	Counts    graph.Counts
	Timestamp time.Time
}

func (e ProgressEvent) Topic() string  { return TopicGraph }
func (e ProgressEvent) TaskID() string { return "" }
