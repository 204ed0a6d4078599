package workflow_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"rendition/internal/encoding"
	"rendition/internal/queue"
	"rendition/internal/testsupport"
	"rendition/internal/workflow"
)

// stubEngine records encode requests and answers from a scripted outcome.
type stubEngine struct {
	mu       sync.Mutex
	requests []encoding.EncodeRequest
	fail     map[string]error // keyed by output base name, "*" matches all
}

func (s *stubEngine) Encode(_ context.Context, req encoding.EncodeRequest) error {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	var err error
	for key, failErr := range s.fail {
		if key == "*" || filepath.Base(req.OutputPath) == key {
			err = failErr
		}
	}
	s.mu.Unlock()
	return err
}

func (s *stubEngine) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// flakyAssetStore delegates to a real store but fails every asset read, the
// way a locked or briefly unavailable database would.
type flakyAssetStore struct {
	*queue.Store
}

func (s *flakyAssetStore) GetAsset(context.Context, string) (*queue.Asset, error) {
	return nil, errors.New("database is locked")
}

func waitForStatus(t *testing.T, store *queue.Store, taskID string, want queue.Status, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		task, err := store.GetTask(context.Background(), taskID)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if task != nil && task.Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s never reached %s", taskID, want)
}

func waitForTerminal(t *testing.T, store *queue.Store, taskID string, timeout time.Duration) *queue.Task {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		task, err := store.GetTask(context.Background(), taskID)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if task != nil && task.Status.IsTerminal() {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s never reached a terminal state", taskID)
	return nil
}

func fastConfigManager(t *testing.T, engine encoding.Engine) (*workflow.Manager, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.ErrorRetryInterval = 1
	cfg.Workflow.HeartbeatInterval = 1
	store := testsupport.MustOpenStore(t, cfg)
	return workflow.NewManager(cfg, store, engine, nil), store
}

func TestManagerProcessesQueuedTaskToCompleted(t *testing.T) {
	engine := &stubEngine{}
	manager, store := fastConfigManager(t, engine)

	_, tasks := testsupport.NewAsset(t, store, "/srv/uploads/a.mov", "MP4-720p")

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()

	done := waitForTerminal(t, store, tasks[0].ID, 5*time.Second)
	if done.Status != queue.StatusCompleted {
		t.Fatalf("status = %s (%s), want COMPLETED", done.Status, done.ErrorMessage)
	}
	meta := done.Meta()
	if meta == nil || meta.OutputFile == "" {
		t.Fatalf("completed task missing result meta: %+v", done)
	}
	wantName := "processed_" + done.ID + "_720p.mp4"
	if meta.OutputFile != wantName {
		t.Fatalf("output file = %q, want %q", meta.OutputFile, wantName)
	}
}

func TestManagerRecordsFailureAndKeepsGoing(t *testing.T) {
	engine := &stubEngine{fail: map[string]error{"*": errors.New("encoder exploded")}}
	manager, store := fastConfigManager(t, engine)

	_, tasks := testsupport.NewAsset(t, store, "/srv/uploads/a.mov", "MP4-480p", "WebM-720p")

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()

	first := waitForTerminal(t, store, tasks[0].ID, 5*time.Second)
	second := waitForTerminal(t, store, tasks[1].ID, 5*time.Second)

	if first.Status != queue.StatusFailed || second.Status != queue.StatusFailed {
		t.Fatalf("statuses = %s, %s, want FAILED for both", first.Status, second.Status)
	}
	if first.ErrorMessage == "" {
		t.Fatal("failure reason was not recorded")
	}
	if first.Meta() != nil {
		t.Fatal("failed task must not carry result meta")
	}
	if engine.requestCount() != 2 {
		t.Fatalf("engine saw %d requests, want 2: a failure must not stall the loop", engine.requestCount())
	}
}

func TestManagerLeavesTaskProcessingWhenAssetReadFails(t *testing.T) {
	engine := &stubEngine{}
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.ErrorRetryInterval = 1
	cfg.Workflow.HeartbeatInterval = 1
	store := testsupport.MustOpenStore(t, cfg)
	manager := workflow.NewManager(cfg, &flakyAssetStore{Store: store}, engine, nil)

	_, tasks := testsupport.NewAsset(t, store, "/srv/uploads/a.mov", "MP4-480p")

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()

	waitForStatus(t, store, tasks[0].ID, queue.StatusProcessing, 5*time.Second)

	// A failed read says nothing about the task; it must stay claimed for
	// the lease reaper instead of being marked FAILED.
	time.Sleep(250 * time.Millisecond)
	task, err := store.GetTask(context.Background(), tasks[0].ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != queue.StatusProcessing {
		t.Fatalf("status = %s (%s), want PROCESSING after store read failure", task.Status, task.ErrorMessage)
	}
	if engine.requestCount() != 0 {
		t.Fatalf("engine saw %d requests, want 0", engine.requestCount())
	}
}

func TestManagerResetsStuckTasksOnStart(t *testing.T) {
	engine := &stubEngine{}
	manager, store := fastConfigManager(t, engine)

	testsupport.NewAsset(t, store, "/srv/uploads/a.mov", "MP4-480p")
	stranded := testsupport.ClaimOne(t, store)

	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()

	done := waitForTerminal(t, store, stranded.ID, 5*time.Second)
	if done.Status != queue.StatusCompleted {
		t.Fatalf("stranded task ended as %s, want COMPLETED after requeue", done.Status)
	}
}

func TestManagerStartStop(t *testing.T) {
	engine := &stubEngine{}
	manager, _ := fastConfigManager(t, engine)

	if manager.Running() {
		t.Fatal("manager should not report running before Start")
	}
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !manager.Running() {
		t.Fatal("manager should report running after Start")
	}
	if err := manager.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}
	manager.Stop()
	if manager.Running() {
		t.Fatal("manager should not report running after Stop")
	}
	// Stop is idempotent.
	manager.Stop()
}
