package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"rendition/internal/config"
	"rendition/internal/logging"
	"rendition/internal/plan"
	"rendition/internal/queue"
	"rendition/internal/services"
)

// Coordinator validates uploaded sources and registers them with the queue.
// Registration is atomic: either the asset and every task land together or
// nothing is persisted.
type Coordinator struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
}

// NewCoordinator builds an ingestion coordinator.
func NewCoordinator(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "ingest"),
	}
}

// Ingest validates the source file and creates one QUEUED task per variant.
// The variant list must already be resolved; an empty list is rejected rather
// than silently defaulted so callers own that policy.
func (c *Coordinator) Ingest(ctx context.Context, sourcePath string, variants []plan.Variant) (*queue.Asset, []*queue.Task, error) {
	if err := c.validateSource(sourcePath); err != nil {
		return nil, nil, err
	}
	if len(variants) == 0 {
		return nil, nil, services.Wrap(services.ErrInvalidRequest, "ingest", "plan", "variant list is empty", nil)
	}

	tokens := make([]string, len(variants))
	for i, v := range variants {
		tokens[i] = v.Token()
	}

	asset, tasks, err := c.store.CreateAssetWithTasks(ctx, sourcePath, tokens)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrUnavailable, "ingest", "register", "persist asset and tasks", err)
	}

	c.logger.Info("asset ingested",
		logging.String(logging.FieldAssetID, asset.ID),
		logging.String("source", sourcePath),
		logging.Int("tasks", len(tasks)),
	)
	return asset, tasks, nil
}

func (c *Coordinator) validateSource(sourcePath string) error {
	if sourcePath == "" {
		return services.Wrap(services.ErrValidation, "ingest", "validate", "source path is empty", nil)
	}
	info, err := os.Stat(sourcePath)
	if err != nil {
		return services.Wrap(services.ErrValidation, "ingest", "validate", "source file is not readable", err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, "ingest", "validate", "source path is a directory", nil)
	}
	if info.Size() == 0 {
		return services.Wrap(services.ErrValidation, "ingest", "validate", "source file is empty", nil)
	}
	if maxBytes := c.cfg.MaxUploadBytes(); maxBytes > 0 && info.Size() > maxBytes {
		return services.Wrap(services.ErrValidation, "ingest", "validate",
			fmt.Sprintf("source file exceeds %d MiB limit", c.cfg.Ingest.MaxUploadMiB), nil)
	}
	return nil
}
