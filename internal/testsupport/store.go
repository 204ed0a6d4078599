package testsupport

import (
	"context"
	"testing"

	"rendition/internal/config"
	"rendition/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewAsset ingests an asset with the given variant tokens for tests.
func NewAsset(t testing.TB, store *queue.Store, sourcePath string, variants ...string) (*queue.Asset, []*queue.Task) {
	t.Helper()

	if len(variants) == 0 {
		variants = []string{"MP4-480p", "WebM-720p", "MP4-1080p"}
	}
	asset, tasks, err := store.CreateAssetWithTasks(context.Background(), sourcePath, variants)
	if err != nil {
		t.Fatalf("store.CreateAssetWithTasks: %v", err)
	}
	return asset, tasks
}

// ClaimOne claims the next queued task and fails the test when the queue is
// empty.
func ClaimOne(t testing.TB, store *queue.Store) *queue.Task {
	t.Helper()

	task, err := store.ClaimNext(context.Background())
	if err != nil {
		t.Fatalf("store.ClaimNext: %v", err)
	}
	if task == nil {
		t.Fatal("expected a claimable task, queue was empty")
	}
	return task
}
