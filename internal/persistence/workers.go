package persistence

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gantryd/gantry/internal/assign"
)

// SaveWorker stores a worker registration. Live load is not persisted;
// it is rebuilt from assigned/running tasks on reload.
func (s *SQLiteStore) SaveWorker(ctx context.Context, worker *assign.Worker) error {
	caps := make([]string, 0, len(worker.Capabilities))
	for c := range worker.Capabilities {
		caps = append(caps, c)
	}
	sort.Strings(caps)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workers (id, capabilities, max_load)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			capabilities = excluded.capabilities,
			max_load = excluded.max_load
	`, worker.ID, strings.Join(caps, ","), worker.MaxLoad)
	if err != nil {
		return fmt.Errorf("failed to save worker: %w", err)
	}
	return nil
}

// ListWorkers returns all registered workers ordered by ID.
func (s *SQLiteStore) ListWorkers(ctx context.Context) ([]*assign.Worker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, capabilities, max_load
		FROM workers
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query workers: %w", err)
	}
	defer rows.Close()

	var workers []*assign.Worker
	for rows.Next() {
		var id, caps string
		var maxLoad int
		if err := rows.Scan(&id, &caps, &maxLoad); err != nil {
			return nil, fmt.Errorf("failed to scan worker: %w", err)
		}

		w := &assign.Worker{ID: id, MaxLoad: maxLoad, Capabilities: make(map[string]struct{})}
		if caps != "" {
			for _, c := range strings.Split(caps, ",") {
				w.Capabilities[c] = struct{}{}
			}
		}
		workers = append(workers, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workers: %w", err)
	}
	return workers, nil
}
