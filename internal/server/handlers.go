package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/gantryd/gantry/internal/assign"
	"github.com/gantryd/gantry/internal/graph"
	"github.com/gantryd/gantry/internal/orchestrator"
	"github.com/gantryd/gantry/internal/recovery"
)

// ErrorResponse is the structured error body for every non-2xx reply.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// errorJSON maps the error taxonomy onto HTTP status codes. Structural
// errors are caller bugs and come back 4xx; nothing is swallowed.
func errorJSON(c echo.Context, err error) error {
	code := http.StatusInternalServerError
	name := "INTERNAL_ERROR"

	switch {
	case errors.Is(err, graph.ErrNotFound):
		code, name = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, graph.ErrCycleDetected):
		code, name = http.StatusUnprocessableEntity, "CYCLE_DETECTED"
	case errors.Is(err, graph.ErrUnknownDependency):
		code, name = http.StatusUnprocessableEntity, "UNKNOWN_DEPENDENCY"
	case errors.Is(err, graph.ErrInvalidTransition):
		code, name = http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, graph.ErrDuplicateTask):
		code, name = http.StatusConflict, "DUPLICATE_TASK"
	case errors.Is(err, graph.ErrDuplicateWorker):
		code, name = http.StatusConflict, "DUPLICATE_WORKER"
	case errors.Is(err, graph.ErrMissingVerification):
		code, name = http.StatusUnprocessableEntity, "MISSING_VERIFICATION"
	case errors.Is(err, graph.ErrCapacityExceeded):
		code, name = http.StatusConflict, "CAPACITY_EXCEEDED"
	}
	return c.JSON(code, ErrorResponse{ErrorCode: name, Message: err.Error()})
}

// TaskView is the wire representation of a task snapshot.
type TaskView struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Capability string    `json:"capability"`
	DependsOn  []string  `json:"depends_on,omitempty"`
	VerifiedBy string    `json:"verified_by,omitempty"`
	Status     string    `json:"status"`
	Worker     string    `json:"worker,omitempty"`
	RetryCount int       `json:"retry_count"`
	Widened    bool      `json:"widened,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func taskView(t *graph.Task) TaskView {
	return TaskView{
		ID:         t.ID,
		Kind:       t.Kind.String(),
		Capability: t.Capability,
		DependsOn:  t.DependsOn,
		VerifiedBy: t.VerifiedBy,
		Status:     t.Status.String(),
		Worker:     t.Worker,
		RetryCount: t.RetryCount,
		Widened:    t.Widened,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

// SubmitTaskRequest is the body for POST /api/v1/tasks.
type SubmitTaskRequest struct {
	ID         string   `json:"id,omitempty"`
	Kind       string   `json:"kind"`
	Capability string   `json:"capability"`
	DependsOn  []string `json:"depends_on,omitempty"`
	VerifiedBy string   `json:"verified_by,omitempty"`
}

func (s *Server) handleSubmitTask(c echo.Context) error {
	var req SubmitTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	kind, ok := graph.ParseKind(req.Kind)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "kind must be one of verification, implementation, infra")
	}
	if req.Capability == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "capability field is required")
	}

	task, err := s.orch.SubmitTask(c.Request().Context(), orchestrator.SubmitRequest{
		ID:         req.ID,
		Kind:       kind,
		Capability: req.Capability,
		DependsOn:  req.DependsOn,
		VerifiedBy: req.VerifiedBy,
	})
	if err != nil {
		s.logger.Warn("task submission rejected", zap.Error(err))
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusCreated, taskView(task))
}

func (s *Server) handleListTasks(c echo.Context) error {
	tasks := s.orch.Tasks()
	out := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskView(t))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetTask(c echo.Context) error {
	task, err := s.orch.Task(c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, taskView(task))
}

// EventView is the wire representation of an execution event.
type EventView struct {
	Seq            int64     `json:"seq"`
	TaskID         string    `json:"task_id"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Classification string    `json:"classification,omitempty"`
	At             time.Time `json:"at"`
}

func (s *Server) handleTaskEvents(c echo.Context) error {
	evs, err := s.orch.TaskEvents(c.Param("id"))
	if err != nil {
		return errorJSON(c, err)
	}
	out := make([]EventView, 0, len(evs))
	for _, ev := range evs {
		out = append(out, EventView{
			Seq:            ev.Seq,
			TaskID:         ev.TaskID,
			From:           ev.From.String(),
			To:             ev.To.String(),
			Classification: ev.Classification,
			At:             ev.At,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleCancelTask(c echo.Context) error {
	if err := s.orch.Cancel(c.Request().Context(), c.Param("id")); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RegisterWorkerRequest is the body for POST /api/v1/workers.
type RegisterWorkerRequest struct {
	ID           string   `json:"id"`
	Capabilities []string `json:"capabilities"`
	MaxLoad      int      `json:"max_load"`
}

func (s *Server) handleRegisterWorker(c echo.Context) error {
	var req RegisterWorkerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id field is required")
	}

	if err := s.orch.RegisterWorker(c.Request().Context(), req.ID, req.Capabilities, req.MaxLoad); err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusCreated)
}

// WorkerView is the wire representation of a worker.
type WorkerView struct {
	ID           string   `json:"id"`
	Capabilities []string `json:"capabilities"`
	MaxLoad      int      `json:"max_load"`
	Load         int      `json:"load"`
}

func workerView(w *assign.Worker) WorkerView {
	caps := make([]string, 0, len(w.Capabilities))
	for c := range w.Capabilities {
		caps = append(caps, c)
	}
	return WorkerView{ID: w.ID, Capabilities: caps, MaxLoad: w.MaxLoad, Load: w.Load}
}

func (s *Server) handleListWorkers(c echo.Context) error {
	workers := s.orch.Workers()
	out := make([]WorkerView, 0, len(workers))
	for _, w := range workers {
		out = append(out, workerView(w))
	}
	return c.JSON(http.StatusOK, out)
}

// IngestEventRequest is the body for POST /api/v1/events: a worker
// reporting a task status transition.
type IngestEventRequest struct {
	TaskID            string `json:"task_id"`
	Status            string `json:"status"`
	Classification    string `json:"classification,omitempty"`
	MissingDependency string `json:"missing_dependency,omitempty"`
}

func (s *Server) handleIngestEvent(c echo.Context) error {
	var req IngestEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	status, ok := graph.ParseStatus(req.Status)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status")
	}

	err := s.orch.ReportStatus(c.Request().Context(), req.TaskID, status,
		recovery.Classification(req.Classification),
		recovery.Metadata{MissingDependency: req.MissingDependency})
	if err != nil {
		return errorJSON(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}

// StatusResponse is the graph-wide summary for GET /api/v1/status.
type StatusResponse struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Ready    int `json:"ready"`
	Assigned int `json:"assigned"`
	Running  int `json:"running"`
	Complete int `json:"complete"`
	Failed   int `json:"failed"`
	Blocked  int `json:"blocked"`
}

func (s *Server) handleStatus(c echo.Context) error {
	counts := s.orch.Counts()
	return c.JSON(http.StatusOK, StatusResponse{
		Total:    counts.Total,
		Pending:  counts.Pending,
		Ready:    counts.Ready,
		Assigned: counts.Assigned,
		Running:  counts.Running,
		Complete: counts.Complete,
		Failed:   counts.Failed,
		Blocked:  counts.Blocked,
	})
}
