package api

import (
	"rendition/internal/queue"
)

// FromTask converts a queue record to its API representation.
func FromTask(task *queue.Task) TaskView {
	if task == nil {
		return TaskView{}
	}
	view := TaskView{
		ID:           task.ID,
		AssetID:      task.AssetID,
		Variant:      task.Variant,
		Status:       string(task.Status),
		ErrorMessage: task.ErrorMessage,
	}
	if meta := task.Meta(); meta != nil {
		view.OutputFile = meta.OutputFile
	}
	if !task.CreatedAt.IsZero() {
		view.CreatedAt = task.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !task.UpdatedAt.IsZero() {
		view.UpdatedAt = task.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return view
}

// FromAssetWithTasks converts an asset and its tasks into one listing entry.
func FromAssetWithTasks(entry *queue.AssetWithTasks) AssetView {
	if entry == nil || entry.Asset == nil {
		return AssetView{}
	}
	view := AssetView{
		ID:         entry.Asset.ID,
		SourcePath: entry.Asset.SourcePath,
		Tasks:      make([]TaskView, 0, len(entry.Tasks)),
	}
	if !entry.Asset.CreatedAt.IsZero() {
		view.CreatedAt = entry.Asset.CreatedAt.UTC().Format(dateTimeFormat)
	}
	for _, task := range entry.Tasks {
		view.Tasks = append(view.Tasks, FromTask(task))
	}
	return view
}

// FromListing converts a full queue listing into API DTOs.
func FromListing(entries []*queue.AssetWithTasks) []AssetView {
	out := make([]AssetView, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromAssetWithTasks(entry))
	}
	return out
}

// MergeStats flattens status counts into string keys, filling in zeroes for
// statuses with no tasks so payloads stay shape-stable.
func MergeStats(stats map[queue.Status]int) map[string]int {
	merged := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		merged[string(status)] = stats[status]
	}
	return merged
}
