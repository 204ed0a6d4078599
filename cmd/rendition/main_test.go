package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	path := filepath.Join(base, "rendition.toml")
	content := fmt.Sprintf(`[paths]
upload_dir = %q
output_dir = %q
log_dir = %q
api_bind = "127.0.0.1:0"
`,
		filepath.Join(base, "uploads"),
		filepath.Join(base, "outputs"),
		filepath.Join(base, "logs"),
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAddThenQueueStatus(t *testing.T) {
	cfgPath := writeTestConfig(t)

	source := filepath.Join(t.TempDir(), "movie.mov")
	if err := os.WriteFile(source, []byte("data"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	out, err := runCommand(t, "--config", cfgPath, "add", source, "--variant", "MP4-720p", "--variant", "WebM-480p")
	if err != nil {
		t.Fatalf("add: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2 tasks") {
		t.Fatalf("unexpected add output: %s", out)
	}

	out, err = runCommand(t, "--config", cfgPath, "queue", "status")
	if err != nil {
		t.Fatalf("queue status: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Queued") {
		t.Fatalf("status output missing queued row: %s", out)
	}
}

func TestAddRejectsMissingFile(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCommand(t, "--config", cfgPath, "add", filepath.Join(t.TempDir(), "ghost.mov"))
	if err == nil {
		t.Fatalf("expected error for missing source, output: %s", out)
	}
}

func TestListJSONOnEmptyQueue(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCommand(t, "--config", cfgPath, "list", "--json")
	if err != nil {
		t.Fatalf("list --json: %v\n%s", err, out)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Fatalf("expected empty JSON array, got %q", out)
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v\n%s", err, out)
	}
	if _, statErr := os.Stat(target); statErr != nil {
		t.Fatalf("sample config missing: %v", statErr)
	}

	// A second init without --overwrite must refuse.
	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("second init should fail without --overwrite")
	}
}

func TestConfigShowPrintsResolvedPaths(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCommand(t, "--config", cfgPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Configuration loaded from "+cfgPath) {
		t.Fatalf("missing source line in output: %s", out)
	}
	if !strings.Contains(out, filepath.Join(filepath.Dir(cfgPath), "uploads")) {
		t.Fatalf("missing resolved upload_dir in output: %s", out)
	}
}

func TestStatusLabel(t *testing.T) {
	cases := map[string]string{
		"QUEUED":     "Queued",
		"PROCESSING": "Processing",
		" failed ":   "Failed",
	}
	for input, want := range cases {
		if got := statusLabel(input); got != want {
			t.Fatalf("statusLabel(%q) = %q, want %q", input, got, want)
		}
	}
}
