package server

import (
	"archive/zip"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"

	"github.com/jpequegn/ttsdispatch/internal/config"
	"github.com/jpequegn/ttsdispatch/internal/fsname"
	"github.com/jpequegn/ttsdispatch/internal/model"
)

type continueResponse struct {
	BatchID    string `json:"batch_id"`
	TotalFiles int    `json:"total_files"`
}

// handleContinue implements POST /api/continue/{folder} (spec.md §6): it
// scans an existing batch folder and creates a new batch containing
// only the `.md` source files whose `.mp3` sibling is still absent, so
// re-running a finished batch produces zero new tasks.
func (s *Server) handleContinue(w http.ResponseWriter, r *http.Request) {
	folder := mux.Vars(r)["folder"]
	if !fsname.IsPathComponentSafe(folder) {
		writeError(w, http.StatusBadRequest, "unsafe folder name")
		return
	}

	cfg := s.cfg.Get()
	dir := filepath.Join(cfg.UploadDir, folder)
	exists, err := afero.DirExists(s.fs, dir)
	if err != nil || !exists {
		writeError(w, http.StatusNotFound, "unknown batch folder")
		return
	}

	pending, err := pendingMarkdownFiles(s.fs, dir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	servers, defaultConcurrency, err := serversFromRequestOrConfig(r, cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !anyEnabled(servers) {
		writeError(w, http.StatusBadRequest, "no enabled upstream servers")
		return
	}

	params := model.DefaultSubmissionParams()
	params.UploadDir = dir

	batchID := s.reg.CreateBatch(params)
	taskIDs := make([]string, 0, len(pending))
	filenames := make(map[string]string, len(pending))
	for _, name := range pending {
		taskID, err := s.reg.AddTask(batchID, name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		taskIDs = append(taskIDs, taskID)
		filenames[taskID] = name
	}

	if len(taskIDs) > 0 {
		s.spawnBatch(batchID, servers, defaultConcurrency, cfg, params, taskIDs, filenames)
	}

	writeJSON(w, http.StatusOK, continueResponse{
		BatchID:    batchID.String(),
		TotalFiles: len(taskIDs),
	})
}

// pendingMarkdownFiles returns every "*.md" file in dir whose "*.mp3"
// sibling does not yet exist, sorted for deterministic task ordering.
func pendingMarkdownFiles(fs afero.Fs, dir string) ([]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read batch folder: %w", err)
	}

	var pending []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		mp3 := strings.TrimSuffix(entry.Name(), ".md") + ".mp3"
		if exists, _ := afero.Exists(fs, filepath.Join(dir, mp3)); !exists {
			pending = append(pending, entry.Name())
		}
	}
	sort.Strings(pending)
	return pending, nil
}

// serversFromRequestOrConfig reuses /upload's api_servers/concurrency
// form fields when present, falling back to the configured default
// server list for CLI/standalone-driven continuation.
func serversFromRequestOrConfig(r *http.Request, cfg config.Config) ([]model.UpstreamServer, int, error) {
	if raw := r.FormValue("api_servers"); raw != "" {
		servers, err := parseServers(raw)
		if err != nil {
			return nil, 0, err
		}
		concurrency := 1
		if v := r.FormValue("concurrency"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				concurrency = n
			}
		}
		return servers, concurrency, nil
	}
	return cfg.Servers, 1, nil
}

type folderInfo struct {
	Name string `json:"name"`
}

type foldersResponse struct {
	Folders []folderInfo `json:"folders"`
}

// handleFolders implements GET /api/folders: lists every batch
// directory under the upload root.
func (s *Server) handleFolders(w http.ResponseWriter, r *http.Request) {
	cfg := s.cfg.Get()
	entries, err := afero.ReadDir(s.fs, cfg.UploadDir)
	if err != nil {
		writeJSON(w, http.StatusOK, foldersResponse{})
		return
	}

	folders := make([]folderInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			folders = append(folders, folderInfo{Name: e.Name()})
		}
	}
	writeJSON(w, http.StatusOK, foldersResponse{Folders: folders})
}

// handleDownload implements GET /api/download/{folder}: streams the
// batch folder's contents as a zip archive.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	folder := mux.Vars(r)["folder"]
	if !fsname.IsPathComponentSafe(folder) {
		writeError(w, http.StatusBadRequest, "unsafe folder name")
		return
	}

	cfg := s.cfg.Get()
	dir := filepath.Join(cfg.UploadDir, folder)
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown batch folder")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.zip"`, folder))

	zw := zip.NewWriter(w)
	defer zw.Close()

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := addFileToZip(zw, s.fs, dir, e.Name()); err != nil {
			return
		}
	}
}

func addFileToZip(zw *zip.Writer, fs afero.Fs, dir, name string) error {
	src, err := fs.Open(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

// handleDelete implements DELETE /api/delete/{folder}: removes a batch
// folder and everything under it.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	folder := mux.Vars(r)["folder"]
	if !fsname.IsPathComponentSafe(folder) {
		writeError(w, http.StatusBadRequest, "unsafe folder name")
		return
	}

	cfg := s.cfg.Get()
	dir := filepath.Join(cfg.UploadDir, folder)
	if exists, _ := afero.DirExists(s.fs, dir); !exists {
		writeError(w, http.StatusNotFound, "unknown batch folder")
		return
	}
	if err := s.fs.RemoveAll(dir); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
