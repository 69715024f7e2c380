package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/jpequegn/ttsdispatch/internal/config"
	"github.com/jpequegn/ttsdispatch/internal/metrics"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Server, *httptest.Server) {
	t.Helper()
	upstream := httptest.NewServer(handler)
	t.Cleanup(upstream.Close)

	fs := afero.NewMemMapFs()
	cfg := config.Config{
		UploadDir:            "uploads",
		MinAudioSizeBytes:    10,
		MinAudioBytesPerChar: 0,
	}
	s := New(Options{
		Fs:      fs,
		Config:  config.New(cfg),
		Metrics: metrics.NewCollector(prometheus.NewRegistry()),
	})
	return s, upstream
}

func multipartUploadBody(t *testing.T, filename, content, apiServersJSON string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("files[]", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteField("api_servers", apiServersJSON); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, w.FormDataContentType()
}

func TestHandleUpload_CreatesBatchAndRunsToCompletion(t *testing.T) {
	s, upstream := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(bytes.Repeat([]byte{0}, 4096))
	})

	apiServers := fmt.Sprintf(`[{"name":"s1","url":%q,"enabled":true,"concurrency":2}]`, upstream.URL)
	body, contentType := multipartUploadBody(t, "doc.md", "hello world", apiServers)

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.TotalFiles != 1 {
		t.Fatalf("total_files = %d, want 1", resp.TotalFiles)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		progReq := httptest.NewRequest(http.MethodGet, "/progress/"+resp.BatchID, nil)
		progRec := httptest.NewRecorder()
		s.Routes().ServeHTTP(progRec, progReq)

		var view struct {
			Completed int `json:"completed_files"`
		}
		_ = json.Unmarshal(progRec.Body.Bytes(), &view)
		if view.Completed == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("batch did not complete in time")
}

func TestHandleFolders_EmptyUploadRoot(t *testing.T) {
	s, upstream := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	defer upstream.Close()

	req := httptest.NewRequest(http.MethodGet, "/api/folders", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp foldersResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Folders) != 0 {
		t.Fatalf("folders = %v, want empty", resp.Folders)
	}
}

func TestHandleHealthz(t *testing.T) {
	s, upstream := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	defer upstream.Close()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "ok" {
		t.Fatalf("body = %q", body)
	}
}
