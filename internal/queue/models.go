package queue

import (
	"encoding/json"
	"strings"
	"time"
)

// Status represents the lifecycle of a transcode task. Transitions only move
// forward: QUEUED -> PROCESSING -> COMPLETED | FAILED.
type Status string

const (
	StatusQueued     Status = "QUEUED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

var allStatuses = []Status{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToUpper(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether a status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Asset is one uploaded source media file. Assets are immutable after
// creation and are never deleted by the queue.
type Asset struct {
	ID         string
	SourcePath string
	CreatedAt  time.Time
}

// Task is one unit of transcode work: one asset rendered into one variant.
type Task struct {
	ID            string
	AssetID       string
	Variant       string
	Status        Status
	ResultMeta    string // JSON, set only on COMPLETED
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastHeartbeat *time.Time
}

// ResultMeta is the structured payload recorded when a task completes.
type ResultMeta struct {
	OutputFile string `json:"outputFile"`
}

// Meta decodes the task's result payload. Returns nil for tasks without one.
func (t *Task) Meta() *ResultMeta {
	if strings.TrimSpace(t.ResultMeta) == "" {
		return nil
	}
	var meta ResultMeta
	if err := json.Unmarshal([]byte(t.ResultMeta), &meta); err != nil {
		return nil
	}
	return &meta
}

// AssetWithTasks pairs an asset with its tasks for the status projection.
type AssetWithTasks struct {
	Asset *Asset
	Tasks []*Task
}

// HealthSummary describes aggregated task counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Queued     int
	Processing int
	Completed  int
	Failed     int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	TotalAssets      int
	TotalTasks       int
	Error            string
}
