package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/jpequegn/ttsdispatch/internal/config"
	"github.com/jpequegn/ttsdispatch/internal/controller"
	"github.com/jpequegn/ttsdispatch/internal/dispatcher"
	"github.com/jpequegn/ttsdispatch/internal/executor"
	"github.com/jpequegn/ttsdispatch/internal/fsname"
	"github.com/jpequegn/ttsdispatch/internal/model"
	"github.com/jpequegn/ttsdispatch/internal/workerpool"
)

// uploadServerSpec mirrors one entry of the api_servers JSON list
// documented in spec.md §6.
type uploadServerSpec struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	APIKey      string `json:"apiKey"`
	Enabled     bool   `json:"enabled"`
	Concurrency int    `json:"concurrency"`
}

type uploadResponse struct {
	BatchID        string `json:"batch_id"`
	BatchDirectory string `json:"batch_directory"`
	TotalFiles     int    `json:"total_files"`
}

// handleUpload implements POST /upload: it stores the uploaded files,
// creates a batch and its task set, builds that batch's worker pool and
// dispatcher, and spawns the dispatcher in the background before
// returning.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}

	files := r.MultipartForm.File["files[]"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	servers, err := parseServers(r.FormValue("api_servers"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !anyEnabled(servers) {
		writeError(w, http.StatusBadRequest, "no enabled upstream servers")
		return
	}

	params := model.DefaultSubmissionParams()
	if v := r.FormValue("voice"); v != "" {
		params.Voice = v
	}
	if v := r.FormValue("speed"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			params.Speed = f
		}
	}

	cfg := s.cfg.Get()
	batchDir := fsname.GenerateBatchDirectory(r.FormValue("custom_directory"))
	params.UploadDir = filepath.Join(cfg.UploadDir, batchDir)
	if err := s.fs.MkdirAll(params.UploadDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("create batch directory: %v", err))
		return
	}

	defaultConcurrency := 1
	if v := r.FormValue("concurrency"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			defaultConcurrency = n
		}
	}

	batchID := s.reg.CreateBatch(params)
	taskIDs, filenames, err := s.storeUploads(batchID, params.UploadDir, files)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(taskIDs) == 0 {
		writeError(w, http.StatusBadRequest, "no files could be stored")
		return
	}

	s.spawnBatch(batchID, servers, defaultConcurrency, cfg, params, taskIDs, filenames)

	writeJSON(w, http.StatusOK, uploadResponse{
		BatchID:        batchID.String(),
		BatchDirectory: batchDir,
		TotalFiles:     len(taskIDs),
	})
}

// storeUploads writes every uploaded file under uploadDir (sanitizing
// each filename per spec.md §6) and registers a task for it, returning
// the frozen task-id set in submission order and the taskID -> filename
// map the dispatcher needs to resolve source paths.
func (s *Server) storeUploads(batchID uuid.UUID, uploadDir string, files []*multipart.FileHeader) ([]string, map[string]string, error) {
	taskIDs := make([]string, 0, len(files))
	filenames := make(map[string]string, len(files))

	for _, fh := range files {
		name := fsname.SanitizeFilename(fh.Filename)

		src, err := fh.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("open uploaded file %q: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("read uploaded file %q: %w", fh.Filename, err)
		}

		destPath := filepath.Join(uploadDir, name)
		if err := afero.WriteFile(s.fs, destPath, data, 0o644); err != nil {
			return nil, nil, fmt.Errorf("store uploaded file %q: %w", name, err)
		}

		taskID, err := s.reg.AddTask(batchID, name)
		if err != nil {
			return nil, nil, fmt.Errorf("register task for %q: %w", name, err)
		}
		taskIDs = append(taskIDs, taskID)
		filenames[taskID] = name
	}

	return taskIDs, filenames, nil
}

func parseServers(raw string) ([]model.UpstreamServer, error) {
	if raw == "" {
		return nil, fmt.Errorf("api_servers is required")
	}
	var specs []uploadServerSpec
	if err := json.Unmarshal([]byte(raw), &specs); err != nil {
		return nil, fmt.Errorf("malformed api_servers JSON: %w", err)
	}
	servers := make([]model.UpstreamServer, 0, len(specs))
	for _, sp := range specs {
		servers = append(servers, model.UpstreamServer{
			Name:     sp.Name,
			URL:      sp.URL,
			APIKey:   sp.APIKey,
			Enabled:  sp.Enabled,
			Capacity: sp.Concurrency,
		})
	}
	return servers, nil
}

func anyEnabled(servers []model.UpstreamServer) bool {
	for _, sv := range servers {
		if sv.Enabled {
			return true
		}
	}
	return false
}

// spawnBatch builds the worker pool, adaptive controller, executor, and
// dispatcher for a freshly created batch, stores its runtime, and
// spawns the dispatcher on its own goroutine via s.runner. The
// dispatcher is launched against a background context, not the
// request's, so it keeps running after handleUpload returns.
func (s *Server) spawnBatch(
	batchID uuid.UUID,
	servers []model.UpstreamServer,
	defaultConcurrency int,
	cfg config.Config,
	params model.SubmissionParams,
	taskIDs []string,
	filenames map[string]string,
) {
	pool := workerpool.New(servers, defaultConcurrency)
	if err := s.reg.AttachServers(batchID, pool); err != nil {
		slog.Warn("server: failed to attach worker pool to batch", "batch", batchID, "error", err)
	}

	adaptive := controller.NewAdaptive()

	var metricsRecorder executor.MetricsRecorder
	var dispatchRecorder dispatcher.DispatchRecorder
	if s.metrics != nil {
		metricsRecorder = s.metrics
		dispatchRecorder = s.metrics
	}

	exec := executor.New(s.fs, s.retry, s.sizeCaps, metricsRecorder)

	d := dispatcher.New(dispatcher.Config{
		BatchID:             batchID,
		Registry:            s.reg,
		Pool:                pool,
		Adaptive:            adaptive,
		Executor:            exec,
		Params:              params,
		TaskIDs:             taskIDs,
		Filenames:           filenames,
		ConcurrencyOverride: cfg.BalancerMaxConcurrency,
		Global:              s.global,
		Metrics:             dispatchRecorder,
	})

	startedAt := time.Now()
	s.mu.Lock()
	s.runtimes[batchID] = &batchRuntime{
		pool:       pool,
		adaptive:   adaptive,
		exec:       exec,
		dispatcher: d,
		filenames:  filenames,
		startedAt:  startedAt,
	}
	s.mu.Unlock()

	handle := s.runner.Spawn(context.Background(), batchID, d)
	s.watchCompletion(context.Background(), batchID, handle, startedAt)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
