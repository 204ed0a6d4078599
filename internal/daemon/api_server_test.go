package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rendition/internal/api"
	"rendition/internal/config"
	"rendition/internal/encoding"
	"rendition/internal/testsupport"
	"rendition/internal/workflow"
)

// fileWritingEngine satisfies the engine contract by creating the output.
type fileWritingEngine struct{}

func (fileWritingEngine) Encode(_ context.Context, req encoding.EncodeRequest) error {
	return os.WriteFile(req.OutputPath, []byte("rendered"), 0o644)
}

func startTestDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	manager := workflow.NewManager(cfg, store, fileWritingEngine{}, nil)
	d, err := New(cfg, store, nil, manager)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func uploadVideo(t *testing.T, baseURL, fileName, variants string, size int64) *http.Response {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(uploadFieldName, fileName)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(bytes.Repeat([]byte{0x42}, int(size))); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if variants != "" {
		if err := writer.WriteField("variants", variants); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	resp, err := http.Post(baseURL+"/api/videos", writer.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST /api/videos: %v", err)
	}
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestUploadCreatesAssetWithDefaultVariants(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 1
	d := startTestDaemon(t, cfg)
	base := "http://" + d.APIAddress()

	resp := uploadVideo(t, base, "movie.mov", "", 1024)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	created := decodeJSON[api.IngestResponse](t, resp)
	if created.VideoID == "" || created.VideoID != created.Asset.ID {
		t.Fatalf("videoId = %q, want the asset id %q", created.VideoID, created.Asset.ID)
	}
	if len(created.Asset.Tasks) != 3 {
		t.Fatalf("expected 3 default tasks, got %d", len(created.Asset.Tasks))
	}

	// The stored upload keeps the original name as a suffix.
	entries, err := os.ReadDir(cfg.Paths.UploadDir)
	if err != nil {
		t.Fatalf("read upload dir: %v", err)
	}
	if len(entries) != 1 || filepath.Ext(entries[0].Name()) != ".mov" {
		t.Fatalf("unexpected upload dir contents: %v", entries)
	}
}

func TestUploadHonorsVariantSelection(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := startTestDaemon(t, cfg)
	base := "http://" + d.APIAddress()

	resp := uploadVideo(t, base, "movie.mov", `["MP4-720p","bogus"]`, 64)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	created := decodeJSON[api.IngestResponse](t, resp)
	if len(created.Asset.Tasks) != 1 || created.Asset.Tasks[0].Variant != "MP4-720p" {
		t.Fatalf("unexpected tasks: %+v", created.Asset.Tasks)
	}
}

func TestUploadRejectsMissingFileField(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := startTestDaemon(t, cfg)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("variants", "MP4-720p")
	_ = writer.Close()

	resp, err := http.Post("http://"+d.APIAddress()+"/api/videos", writer.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListAndDetailEndpoints(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := startTestDaemon(t, cfg)
	base := "http://" + d.APIAddress()

	resp := uploadVideo(t, base, "movie.mov", `["WebM-480p"]`, 64)
	created := decodeJSON[api.IngestResponse](t, resp)

	listResp, err := http.Get(base + "/api/videos")
	if err != nil {
		t.Fatalf("GET /api/videos: %v", err)
	}
	listing := decodeJSON[[]api.AssetView](t, listResp)
	if len(listing) != 1 || listing[0].ID != created.Asset.ID {
		t.Fatalf("unexpected listing: %+v", listing)
	}

	detailResp, err := http.Get(base + "/api/videos/" + created.Asset.ID)
	if err != nil {
		t.Fatalf("GET detail: %v", err)
	}
	detail := decodeJSON[api.AssetView](t, detailResp)
	if detail.ID != created.Asset.ID || len(detail.Tasks) != 1 {
		t.Fatalf("unexpected detail: %+v", detail)
	}

	missingResp, err := http.Get(base + "/api/videos/no-such-id")
	if err != nil {
		t.Fatalf("GET missing: %v", err)
	}
	missingResp.Body.Close()
	if missingResp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing asset status = %d, want 404", missingResp.StatusCode)
	}
}

func TestStatusEndpointReportsCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := startTestDaemon(t, cfg)
	base := "http://" + d.APIAddress()

	uploadVideo(t, base, "movie.mov", `["MP4-1080p"]`, 64).Body.Close()

	resp, err := http.Get(base + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	status := decodeJSON[api.StatusView](t, resp)
	if !status.Running {
		t.Fatal("daemon should report running")
	}
	if status.Total != 1 {
		t.Fatalf("total = %d, want 1", status.Total)
	}
}

func TestDownloadServesOutputsAndBlocksTraversal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := startTestDaemon(t, cfg)
	base := "http://" + d.APIAddress()

	artifact := filepath.Join(cfg.Paths.OutputDir, "processed_t1_720p.mp4")
	testsupport.WriteFile(t, artifact, 8)

	resp, err := http.Get(base + "/download/processed_t1_720p.mp4")
	if err != nil {
		t.Fatalf("GET download: %v", err)
	}
	payload, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(payload) != 8 {
		t.Fatalf("status = %d, body %d bytes", resp.StatusCode, len(payload))
	}

	evil, err := http.Get(base + "/download/..%2Fsecret.txt")
	if err != nil {
		t.Fatalf("GET traversal: %v", err)
	}
	evil.Body.Close()
	if evil.StatusCode == http.StatusOK {
		t.Fatalf("traversal request must not succeed, got %d", evil.StatusCode)
	}
}

func TestUploadedAssetGetsProcessed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 1
	d := startTestDaemon(t, cfg)
	base := "http://" + d.APIAddress()

	resp := uploadVideo(t, base, "movie.mov", `["MP4-720p"]`, 64)
	created := decodeJSON[api.IngestResponse](t, resp)

	deadline := time.Now().Add(10 * time.Second)
	for {
		detailResp, err := http.Get(base + "/api/videos/" + created.Asset.ID)
		if err != nil {
			t.Fatalf("GET detail: %v", err)
		}
		detail := decodeJSON[api.AssetView](t, detailResp)
		if len(detail.Tasks) == 1 && detail.Tasks[0].Status == "COMPLETED" {
			if detail.Tasks[0].OutputFile == "" {
				t.Fatal("completed task has no output file")
			}
			want := fmt.Sprintf("processed_%s_720p.mp4", detail.Tasks[0].ID)
			if detail.Tasks[0].OutputFile != want {
				t.Fatalf("output file = %q, want %q", detail.Tasks[0].OutputFile, want)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("task never completed: %+v", detail.Tasks)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
