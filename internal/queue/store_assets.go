package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateAssetWithTasks persists a new asset plus one QUEUED task per variant
// token in a single transaction, so the projection never observes an asset
// without its tasks or a task without its asset. The caller guarantees a
// non-empty variant list.
func (s *Store) CreateAssetWithTasks(ctx context.Context, sourcePath string, variants []string) (*Asset, []*Task, error) {
	ctx = ensureContext(ctx)
	if len(variants) == 0 {
		return nil, nil, errors.New("variant list must not be empty")
	}

	now := time.Now().UTC()
	asset := &Asset{
		ID:         uuid.NewString(),
		SourcePath: sourcePath,
		CreatedAt:  now,
	}
	tasks := make([]*Task, 0, len(variants))
	for _, variant := range variants {
		tasks = append(tasks, &Task{
			ID:        uuid.NewString(),
			AssetID:   asset.ID,
			Variant:   variant,
			Status:    StatusQueued,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin ingest tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO assets (id, source_path, created_at) VALUES (?, ?, ?)`,
			asset.ID, asset.SourcePath, timestamp(asset.CreatedAt),
		); err != nil {
			return fmt.Errorf("insert asset: %w", err)
		}

		for _, task := range tasks {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO tasks (id, asset_id, variant, status, created_at, updated_at)
                 VALUES (?, ?, ?, ?, ?, ?)`,
				task.ID, task.AssetID, task.Variant, task.Status,
				timestamp(task.CreatedAt), timestamp(task.UpdatedAt),
			); err != nil {
				return fmt.Errorf("insert task %s: %w", task.Variant, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit ingest: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return asset, tasks, nil
}

// GetAsset fetches an asset by identifier. Returns nil when not found.
func (s *Store) GetAsset(ctx context.Context, id string) (*Asset, error) {
	ctx = ensureContext(ctx)
	var asset *Asset
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`SELECT id, source_path, created_at FROM assets WHERE id = ?`, id)
		scanned, scanErr := scanAsset(row)
		if scanErr != nil {
			return scanErr
		}
		asset = scanned
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

// ListAssets returns all assets newest first, each paired with its tasks in
// creation order. This is the read side of the queue; it never mutates.
func (s *Store) ListAssets(ctx context.Context) ([]*AssetWithTasks, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_path, created_at FROM assets ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var listing []*AssetWithTasks
	index := make(map[string]*AssetWithTasks)
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		entry := &AssetWithTasks{Asset: asset}
		listing = append(listing, entry)
		index[asset.ID] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	taskRows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer taskRows.Close()

	for taskRows.Next() {
		task, err := scanTask(taskRows)
		if err != nil {
			return nil, err
		}
		if entry, ok := index[task.AssetID]; ok {
			entry.Tasks = append(entry.Tasks, task)
		}
	}
	return listing, taskRows.Err()
}

// TasksForAsset returns the tasks belonging to one asset in creation order.
func (s *Store) TasksForAsset(ctx context.Context, assetID string) ([]*Task, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+taskColumns+` FROM tasks WHERE asset_id = ? ORDER BY created_at, id`, assetID)
	if err != nil {
		return nil, fmt.Errorf("tasks for asset: %w", err)
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

func scanAsset(scanner interface{ Scan(dest ...any) error }) (*Asset, error) {
	var (
		id         string
		sourcePath string
		createdRaw string
	)
	if err := scanner.Scan(&id, &sourcePath, &createdRaw); err != nil {
		return nil, err
	}
	asset := &Asset{ID: id, SourcePath: sourcePath}
	if created, err := parseTimeString(createdRaw); err == nil {
		asset.CreatedAt = created
	}
	return asset, nil
}
