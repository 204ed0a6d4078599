package queue

import (
	"context"
	"fmt"
	"os"
)

var requiredTables = []string{"schema_version", "assets", "tasks"}

// CheckHealth inspects the queue database and reports what it finds without
// failing fast, so the status surface can show partial diagnostics.
func (s *Store) CheckHealth(ctx context.Context) DatabaseHealth {
	ctx = ensureContext(ctx)
	health := DatabaseHealth{DBPath: s.path}

	if _, err := os.Stat(s.path); err != nil {
		health.Error = fmt.Sprintf("database file: %v", err)
		return health
	}
	health.DatabaseExists = true

	if err := s.db.PingContext(ctx); err != nil {
		health.Error = fmt.Sprintf("ping: %v", err)
		return health
	}
	health.DatabaseReadable = true

	for _, table := range requiredTables {
		var count int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&count)
		if err != nil {
			health.Error = fmt.Sprintf("check table %s: %v", table, err)
			return health
		}
		if count > 0 {
			health.TablesPresent = append(health.TablesPresent, table)
		} else {
			health.MissingTables = append(health.MissingTables, table)
		}
	}
	if len(health.MissingTables) > 0 {
		return health
	}

	var integrity string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = fmt.Sprintf("integrity check: %v", err)
		return health
	}
	health.IntegrityCheck = integrity == "ok"

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM assets").Scan(&health.TotalAssets); err != nil {
		health.Error = fmt.Sprintf("count assets: %v", err)
		return health
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM tasks").Scan(&health.TotalTasks); err != nil {
		health.Error = fmt.Sprintf("count tasks: %v", err)
		return health
	}
	return health
}
