package api

import (
	"testing"
	"time"

	"rendition/internal/queue"
)

func TestFromTaskExtractsOutputFile(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	task := &queue.Task{
		ID:         "t1",
		AssetID:    "a1",
		Variant:    "MP4-720p",
		Status:     queue.StatusCompleted,
		ResultMeta: `{"outputFile":"processed_t1_720p.mp4"}`,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	view := FromTask(task)
	if view.OutputFile != "processed_t1_720p.mp4" {
		t.Fatalf("output file = %q", view.OutputFile)
	}
	if view.Status != "COMPLETED" {
		t.Fatalf("status = %q", view.Status)
	}
	if view.CreatedAt == "" {
		t.Fatal("createdAt should be formatted")
	}
}

func TestFromTaskOmitsMetaWhenAbsent(t *testing.T) {
	task := &queue.Task{ID: "t1", Status: queue.StatusFailed, ErrorMessage: "boom"}
	view := FromTask(task)
	if view.OutputFile != "" {
		t.Fatalf("unexpected output file %q", view.OutputFile)
	}
	if view.ErrorMessage != "boom" {
		t.Fatalf("error message = %q", view.ErrorMessage)
	}
}

func TestFromListingKeepsTaskOrder(t *testing.T) {
	entry := &queue.AssetWithTasks{
		Asset: &queue.Asset{ID: "a1", SourcePath: "/srv/uploads/a.mov"},
		Tasks: []*queue.Task{
			{ID: "t1", Variant: "MP4-480p", Status: queue.StatusQueued},
			{ID: "t2", Variant: "WebM-720p", Status: queue.StatusQueued},
		},
	}
	views := FromListing([]*queue.AssetWithTasks{entry})
	if len(views) != 1 || len(views[0].Tasks) != 2 {
		t.Fatalf("unexpected shape: %+v", views)
	}
	if views[0].Tasks[0].Variant != "MP4-480p" || views[0].Tasks[1].Variant != "WebM-720p" {
		t.Fatalf("task order changed: %+v", views[0].Tasks)
	}
}

func TestMergeStatsFillsZeroes(t *testing.T) {
	merged := MergeStats(map[queue.Status]int{queue.StatusQueued: 2})
	if merged["QUEUED"] != 2 {
		t.Fatalf("queued = %d", merged["QUEUED"])
	}
	for _, key := range []string{"PROCESSING", "COMPLETED", "FAILED"} {
		if _, ok := merged[key]; !ok {
			t.Fatalf("missing zero entry for %s", key)
		}
	}
}
