package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const taskColumns = "id, asset_id, variant, status, result_meta, error_message, created_at, updated_at, last_heartbeat"

// ErrNotProcessing is returned when a terminal transition targets a task that
// is no longer in PROCESSING. Terminal states are never overwritten.
var ErrNotProcessing = errors.New("task is not processing")

// GetTask fetches a task by identifier. Returns nil when not found.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	ctx = ensureContext(ctx)
	var task *Task
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
		scanned, scanErr := scanTask(row)
		if scanErr != nil {
			return scanErr
		}
		task = scanned
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks filtered by status set (or all tasks when no status
// is provided), ordered by creation time with id as tie-break.
func (s *Store) ListTasks(ctx context.Context, statuses ...Status) ([]*Task, error) {
	ctx = ensureContext(ctx)
	baseQuery := `SELECT ` + taskColumns + ` FROM tasks`
	orderClause := ` ORDER BY created_at, id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ClaimNext atomically claims the oldest QUEUED task: the status flip to
// PROCESSING is gated on the row still being QUEUED, so two concurrent
// workers can never both own the same task. A lost race is treated as a miss
// and the next candidate is tried. Returns nil when the queue is empty.
func (s *Store) ClaimNext(ctx context.Context) (*Task, error) {
	ctx = ensureContext(ctx)
	for {
		row := s.db.QueryRowContext(ctx,
			`SELECT id FROM tasks WHERE status = ? ORDER BY created_at, id LIMIT 1`,
			StatusQueued,
		)
		var id string
		err := row.Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("select claim candidate: %w", err)
		}

		now := timestamp(time.Now())
		res, err := s.execWithRetry(ctx,
			`UPDATE tasks SET status = ?, updated_at = ?, last_heartbeat = ?
             WHERE id = ? AND status = ?`,
			StatusProcessing, now, now, id, StatusQueued,
		)
		if err != nil {
			return nil, fmt.Errorf("claim task: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim rows affected: %w", err)
		}
		if affected == 0 {
			// Another worker won the race; re-poll for the next candidate.
			continue
		}
		return s.GetTask(ctx, id)
	}
}

// MarkCompleted transitions a PROCESSING task to COMPLETED and records its
// result payload. Fails with ErrNotProcessing if the task already reached a
// terminal state.
func (s *Store) MarkCompleted(ctx context.Context, id string, meta ResultMeta) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal result meta: %w", err)
	}
	res, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE tasks SET status = ?, result_meta = ?, error_message = NULL,
             updated_at = ?, last_heartbeat = NULL
         WHERE id = ? AND status = ?`,
		StatusCompleted, string(payload), timestamp(time.Now()), id, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return requireTransition(res, id)
}

// MarkFailed transitions a PROCESSING task to FAILED. The reason is recorded
// for operators; result_meta stays empty on failure.
func (s *Store) MarkFailed(ctx context.Context, id, reason string) error {
	res, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE tasks SET status = ?, error_message = ?, result_meta = NULL,
             updated_at = ?, last_heartbeat = NULL
         WHERE id = ? AND status = ?`,
		StatusFailed, nullableString(reason), timestamp(time.Now()), id, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireTransition(res, id)
}

func requireTransition(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotProcessing, id)
	}
	return nil
}

// UpdateHeartbeat refreshes the claim lease for an in-flight task.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	_, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE tasks SET last_heartbeat = ? WHERE id = ? AND status = ?`,
		timestamp(time.Now()), id, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing requeues PROCESSING tasks whose heartbeat expired
// before the cutoff. Orphans left by a killed worker become claimable again.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE tasks SET status = ?, updated_at = ?, last_heartbeat = NULL, error_message = NULL
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusQueued, timestamp(time.Now()), StatusProcessing, timestamp(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale tasks: %w", err)
	}
	return res.RowsAffected()
}

// ResetStuckProcessing requeues every PROCESSING task regardless of lease
// age. Used at daemon startup and from the CLI after a crash.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE tasks SET status = ?, updated_at = ?, last_heartbeat = NULL, error_message = NULL
         WHERE status = ?`,
		StatusQueued, timestamp(time.Now()), StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck tasks: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed tasks (optionally a subset) back to QUEUED. This
// is a manual operator action; the worker never retries on its own.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	ctx = ensureContext(ctx)
	now := timestamp(time.Now())
	if len(ids) == 0 {
		res, err := s.execWithRetry(ctx,
			`UPDATE tasks SET status = ?, error_message = NULL, updated_at = ?
             WHERE status = ?`,
			StatusQueued, now, StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed tasks: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusQueued, now, StatusFailed)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE tasks SET status = ?, error_message = NULL, updated_at = ?
         WHERE status = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected tasks: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of tasks grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT status, COUNT(1) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates task state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusQueued:
			health.Queued += count
		case StatusProcessing:
			health.Processing += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

// Clear removes all tasks and assets.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	res, err := s.execWithRetry(ctx, `DELETE FROM tasks`)
	if err != nil {
		return 0, fmt.Errorf("clear tasks: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if _, err := s.execWithRetry(ctx, `DELETE FROM assets`); err != nil {
		return removed, fmt.Errorf("clear assets: %w", err)
	}
	return removed, nil
}

// ClearCompleted removes only completed tasks.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ensureContext(ctx), `DELETE FROM tasks WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed tasks.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ensureContext(ctx), `DELETE FROM tasks WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*Task, error) {
	var (
		id               string
		assetID          string
		variant          string
		statusStr        string
		resultMeta       sql.NullString
		errorMessage     sql.NullString
		createdRaw       string
		updatedRaw       string
		lastHeartbeatRaw sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&assetID,
		&variant,
		&statusStr,
		&resultMeta,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&lastHeartbeatRaw,
	); err != nil {
		return nil, err
	}

	task := &Task{
		ID:           id,
		AssetID:      assetID,
		Variant:      variant,
		Status:       Status(statusStr),
		ResultMeta:   resultMeta.String,
		ErrorMessage: errorMessage.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		task.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			task.LastHeartbeat = &heartbeat
		}
	}
	return task, nil
}
