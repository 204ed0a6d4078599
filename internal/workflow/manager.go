package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"rendition/internal/config"
	"rendition/internal/encoding"
	"rendition/internal/logging"
	"rendition/internal/plan"
	"rendition/internal/queue"
)

// Store is the slice of the queue surface the worker loop depends on.
// *queue.Store satisfies it.
type Store interface {
	ClaimNext(ctx context.Context) (*queue.Task, error)
	GetAsset(ctx context.Context, id string) (*queue.Asset, error)
	MarkCompleted(ctx context.Context, id string, meta queue.ResultMeta) error
	MarkFailed(ctx context.Context, id, reason string) error
	UpdateHeartbeat(ctx context.Context, id string) error
	ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error)
	ResetStuckProcessing(ctx context.Context) (int64, error)
}

// Manager drives the worker loop: it claims queued tasks one at a time,
// renders them through the engine, and records terminal outcomes. A task
// failure never stops the loop; the failure is persisted and the next task
// is claimed.
type Manager struct {
	cfg       *config.Config
	store     Store
	engine    encoding.Engine
	logger    *slog.Logger
	heartbeat *HeartbeatMonitor

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewManager builds a worker loop around the given store and engine.
func NewManager(cfg *config.Config, store Store, engine encoding.Engine, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	heartbeatInterval := time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second
	heartbeatTimeout := time.Duration(cfg.Workflow.HeartbeatTimeout) * time.Second
	return &Manager{
		cfg:       cfg,
		store:     store,
		engine:    engine,
		logger:    logging.NewComponentLogger(logger, "workflow"),
		heartbeat: NewHeartbeatMonitor(store, logger, heartbeatInterval, heartbeatTimeout),
	}
}

// Start launches the worker loop. Tasks stranded in PROCESSING by an earlier
// crash are requeued before the first claim.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow manager already started")
	}

	reset, err := m.store.ResetStuckProcessing(ctx)
	if err != nil {
		return fmt.Errorf("reset stuck tasks: %w", err)
	}
	if reset > 0 {
		m.logger.Info("requeued stranded tasks", logging.Int64("count", reset))
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	go m.run(runCtx)

	m.logger.Info("workflow manager started",
		logging.Int("poll_interval_seconds", m.cfg.Workflow.QueuePollInterval))
	return nil
}

// Stop cancels the loop and waits for the in-flight task to settle.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow manager stopped")
}

// Running reports whether the loop is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	pollInterval := time.Duration(m.cfg.Workflow.QueuePollInterval) * time.Second
	errorRetry := time.Duration(m.cfg.Workflow.ErrorRetryInterval) * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		if err := m.heartbeat.ReclaimStale(ctx, m.logger); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn("stale task reclamation failed", logging.Error(err))
		}

		task, err := m.store.ClaimNext(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.logger.Error("claim failed", logging.Error(err))
			if !sleepCtx(ctx, errorRetry) {
				return
			}
			continue
		}
		if task == nil {
			if !sleepCtx(ctx, pollInterval) {
				return
			}
			continue
		}

		m.processTask(ctx, task)
	}
}

func (m *Manager) processTask(ctx context.Context, task *queue.Task) {
	logger := m.logger.With(
		logging.String(logging.FieldTaskID, task.ID),
		logging.String(logging.FieldAssetID, task.AssetID),
		logging.String(logging.FieldVariant, task.Variant),
	)

	variant, err := plan.Parse(task.Variant)
	if err != nil {
		logger.Error("unparseable variant token", logging.Error(err))
		m.finalizeFailure(ctx, logger, task.ID, fmt.Sprintf("invalid variant %q", task.Variant))
		return
	}

	asset, err := m.store.GetAsset(ctx, task.AssetID)
	if err != nil {
		// A failed read says nothing about the task itself. Leave it
		// PROCESSING so the lease reaper or the startup reset requeues it,
		// and back off before the next claim.
		logger.Warn("asset lookup failed, leaving task for reclaim", logging.Error(err))
		sleepCtx(ctx, time.Duration(m.cfg.Workflow.ErrorRetryInterval)*time.Second)
		return
	}
	if asset == nil {
		logger.Error("asset row missing for claimed task")
		m.finalizeFailure(ctx, logger, task.ID, "asset record missing")
		return
	}

	outputName := plan.OutputName(task.ID, variant)
	outputPath := filepath.Join(m.cfg.Paths.OutputDir, outputName)

	logger.Info("processing task", logging.String("output", outputName))

	encodeErr := m.encodeWithHeartbeat(ctx, task.ID, encoding.EncodeRequest{
		InputPath:    asset.SourcePath,
		OutputPath:   outputPath,
		TargetHeight: plan.TargetHeight(variant.Resolution),
	})
	if encodeErr != nil {
		if ctx.Err() != nil {
			// Shutdown mid-encode: leave the task PROCESSING so the lease
			// reaper or the startup reset requeues it.
			logger.Info("encode interrupted by shutdown")
			return
		}
		logger.Error("task failed", logging.Error(encodeErr))
		m.finalizeFailure(ctx, logger, task.ID, encodeErr.Error())
		return
	}

	if err := m.store.MarkCompleted(ctx, task.ID, queue.ResultMeta{OutputFile: outputName}); err != nil {
		logger.Error("completion write failed", logging.Error(err))
		return
	}
	logger.Info("task completed", logging.String("output", outputName))
}

// encodeWithHeartbeat runs the engine while a background goroutine keeps the
// task lease fresh.
func (m *Manager) encodeWithHeartbeat(ctx context.Context, taskID string, req encoding.EncodeRequest) error {
	hbCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var hbWG sync.WaitGroup
	if m.heartbeat.interval > 0 {
		hbWG.Add(1)
		go m.heartbeat.StartLoop(hbCtx, &hbWG, taskID)
	}

	err := m.engine.Encode(ctx, req)
	cancel()
	hbWG.Wait()
	return err
}

func (m *Manager) finalizeFailure(ctx context.Context, logger *slog.Logger, taskID, reason string) {
	if err := m.store.MarkFailed(ctx, taskID, reason); err != nil {
		logger.Error("failure write failed", logging.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
