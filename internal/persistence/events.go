package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gantryd/gantry/internal/graph"
)

// AppendEvent stores one execution event. The table is append-only;
// events are never updated or deleted while their task exists.
func (s *SQLiteStore) AppendEvent(ctx context.Context, ev graph.ExecutionEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_events (task_id, from_status, to_status, classification, at)
		VALUES (?, ?, ?, ?, ?)
	`, ev.TaskID, ev.From, ev.To, ev.Classification, ev.At)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// ListEvents returns the full execution log in append order.
func (s *SQLiteStore) ListEvents(ctx context.Context) ([]graph.ExecutionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, task_id, from_status, to_status, classification, at
		FROM execution_events
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []graph.ExecutionEvent
	for rows.Next() {
		var ev graph.ExecutionEvent
		var classification sql.NullString
		if err := rows.Scan(&ev.Seq, &ev.TaskID, &ev.From, &ev.To, &classification, &ev.At); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Classification = classification.String
		out = append(out, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return out, nil
}
