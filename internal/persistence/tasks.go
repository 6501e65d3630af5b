package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gantryd/gantry/internal/graph"
)

// SaveTask inserts a task and its dependency edges. Uses ON CONFLICT so
// replays during startup are idempotent.
func (s *SQLiteStore) SaveTask(ctx context.Context, task *graph.Task) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, kind, capability, verified_by, status, worker, retry_count, widened, await_dep, not_before, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			worker = excluded.worker,
			retry_count = excluded.retry_count,
			widened = excluded.widened,
			await_dep = excluded.await_dep,
			not_before = excluded.not_before,
			updated_at = excluded.updated_at
	`, task.ID, task.Kind, task.Capability, task.VerifiedBy, task.Status, task.Worker,
		task.RetryCount, boolToInt(task.Widened), task.AwaitDep, nullTime(task.NotBefore),
		task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}

	for _, depID := range task.DependsOn {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO task_dependencies (task_id, depends_on_id)
			VALUES (?, ?)
			ON CONFLICT(task_id, depends_on_id) DO NOTHING
		`, task.ID, depID)
		if err != nil {
			return fmt.Errorf("failed to insert dependency %s -> %s: %w", task.ID, depID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateTask persists mutable task fields after a committed transition.
func (s *SQLiteStore) UpdateTask(ctx context.Context, task *graph.Task) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, worker = ?, retry_count = ?, widened = ?, await_dep = ?, not_before = ?, updated_at = ?
		WHERE id = ?
	`, task.Status, task.Worker, task.RetryCount, boolToInt(task.Widened), task.AwaitDep,
		nullTime(task.NotBefore), task.UpdatedAt, task.ID)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", graph.ErrNotFound, task.ID)
	}
	return nil
}

// ListTasks returns all tasks with their dependencies, ordered by
// creation time.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]*graph.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, capability, verified_by, status, worker, retry_count, widened, await_dep, not_before, created_at, updated_at
		FROM tasks
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*graph.Task
	for rows.Next() {
		task := &graph.Task{}
		var widened int
		var verifiedBy, worker, awaitDep sql.NullString
		var notBefore sql.NullTime

		err := rows.Scan(&task.ID, &task.Kind, &task.Capability, &verifiedBy, &task.Status,
			&worker, &task.RetryCount, &widened, &awaitDep, &notBefore,
			&task.CreatedAt, &task.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		task.VerifiedBy = verifiedBy.String
		task.Worker = worker.String
		task.AwaitDep = awaitDep.String
		task.Widened = widened != 0
		if notBefore.Valid {
			task.NotBefore = notBefore.Time
		}

		depRows, err := s.db.QueryContext(ctx, `
			SELECT depends_on_id
			FROM task_dependencies
			WHERE task_id = ?
		`, task.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to query dependencies for task %s: %w", task.ID, err)
		}

		for depRows.Next() {
			var depID string
			if err := depRows.Scan(&depID); err != nil {
				depRows.Close()
				return nil, fmt.Errorf("failed to scan dependency: %w", err)
			}
			task.DependsOn = append(task.DependsOn, depID)
		}
		depRows.Close()

		if err := depRows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating dependencies: %w", err)
		}

		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
