package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"rendition/internal/api"
	"rendition/internal/config"
	"rendition/internal/logging"
	"rendition/internal/plan"
	"rendition/internal/queue"
	"rendition/internal/services"
)

// uploadFieldName is the multipart form field carrying the source file.
const uploadFieldName = "video"

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, errors.New("api server requires config and daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	// An empty bind address disables the HTTP surface; CLI access still
	// works through the store directly.
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api"),
		daemon: d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/videos", srv.handleVideos)
	mux.HandleFunc("/api/videos/", srv.handleVideoDetail)
	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/download/", srv.handleDownload)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleVideos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleUpload(w, r)
	case http.MethodGet:
		s.handleList(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.daemon.cfg.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1024)

	file, header, err := r.FormFile(uploadFieldName)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "missing video file field")
		return
	}
	defer file.Close()

	storedName := storedFileName(header.Filename)
	destination := filepath.Join(s.daemon.cfg.Paths.UploadDir, storedName)
	if err := saveUpload(file, destination); err != nil {
		s.logger.Error("upload persist failed", logging.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	// A malformed or absent variants field falls back to the defaults so a
	// bare upload always produces work.
	variants := plan.ParseTokens(parseVariantsField(r.FormValue("variants")))

	asset, tasks, err := s.daemon.coordinator.Ingest(r.Context(), destination, variants)
	if err != nil {
		_ = os.Remove(destination)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, api.IngestResponse{
		VideoID: asset.ID,
		Asset:   api.FromAssetWithTasks(&queue.AssetWithTasks{Asset: asset, Tasks: tasks}),
	})
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	listing, err := s.daemon.store.ListAssets(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromListing(listing))
}

func (s *apiServer) handleVideoDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/videos/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "invalid asset id")
		return
	}

	asset, err := s.daemon.store.GetAsset(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if asset == nil {
		writeError(w, http.StatusNotFound, "asset not found")
		return
	}
	tasks, err := s.daemon.store.TasksForAsset(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.FromAssetWithTasks(&queue.AssetWithTasks{Asset: asset, Tasks: tasks}))
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := s.daemon.store.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	total := 0
	for _, count := range stats {
		total += count
	}
	writeJSON(w, http.StatusOK, api.StatusView{
		Running:    s.daemon.running.Load(),
		QueueStats: api.MergeStats(stats),
		Total:      total,
	})
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/download/")
	if name == "" || name != filepath.Base(name) {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}
	target := filepath.Join(s.daemon.cfg.Paths.OutputDir, name)
	info, err := os.Stat(target)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, target)
}

// storedFileName prefixes the original name with a timestamp and a random
// component so repeated uploads of the same file never collide.
func storedFileName(original string) string {
	base := filepath.Base(strings.TrimSpace(original))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "upload"
	}
	base = strings.ReplaceAll(base, string(filepath.Separator), "_")
	return fmt.Sprintf("%d-%d-%s", time.Now().UnixMilli(), rand.Int63n(1_000_000_000), base)
}

func saveUpload(src io.Reader, destination string) error {
	out, err := os.Create(destination)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		_ = os.Remove(destination)
		return fmt.Errorf("write upload file: %w", err)
	}
	return nil
}

// parseVariantsField accepts either a JSON array of tokens or a comma
// separated list. Anything unreadable yields nil so defaults apply.
func parseVariantsField(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		var tokens []string
		if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
			return nil
		}
		return tokens
	}
	return strings.Split(raw, ",")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
