package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors classifying failures across ingestion, storage, and the
// worker loop. Callers branch with errors.Is.
var (
	// ErrValidation marks a missing or unreadable source file. Nothing is
	// persisted when ingestion fails with this marker.
	ErrValidation = errors.New("validation error")
	// ErrInvalidRequest marks a request that is well-formed but unacceptable,
	// such as an empty variant plan.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnavailable marks a durable store that cannot be reached. The worker
	// treats it as transient; request paths fail fast.
	ErrUnavailable = errors.New("store unavailable")
	// ErrExternalTool marks a transcoding engine failure for a single task.
	ErrExternalTool = errors.New("external tool error")
	// ErrNotFound marks a lookup that matched nothing.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrUnavailable
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
