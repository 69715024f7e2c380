package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadServersFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "servers.json")
	contents := `[{"Name":"primary","URL":"http://localhost:9","Enabled":true,"Capacity":2}]`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	servers, err := loadServersFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(servers) != 1 {
		t.Fatalf("len(servers) = %d, want 1", len(servers))
	}
	if servers[0].Name != "primary" || servers[0].Capacity != 2 || !servers[0].Enabled {
		t.Fatalf("servers[0] = %+v, unexpected", servers[0])
	}
}

func TestLoadServersFile_MissingFile(t *testing.T) {
	if _, err := loadServersFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected an error for a missing servers file")
	}
}

func TestRunSubmit_EndToEnd(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(bytes.Repeat([]byte{0}, 4096))
	}))
	defer upstream.Close()

	docsDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(docsDir, "doc.md"), []byte("# hello\n\nworld"), 0o644); err != nil {
		t.Fatal(err)
	}

	serversPath := filepath.Join(t.TempDir(), "servers.json")
	serversJSON := fmt.Sprintf(`[{"Name":"s1","URL":%q,"Enabled":true,"Capacity":1}]`, upstream.URL)
	if err := os.WriteFile(serversPath, []byte(serversJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	cfgFile = ""
	submitDir = docsDir
	submitServersFile = serversPath
	submitVoice = ""
	submitSpeed = 0
	submitConcurrency = 1
	defer func() {
		submitDir, submitServersFile, submitVoice, submitConcurrency = "", "", "", 1
		submitSpeed = 0
		cfgFile = ""
	}()

	stdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w
	runErr := runSubmit(submitCmd, nil)
	w.Close()
	os.Stdout = stdout
	if runErr != nil {
		t.Fatalf("runSubmit: %v", runErr)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatal(err)
	}

	var view struct {
		CompletedFiles int `json:"completed_files"`
		TotalFiles     int `json:"total_files"`
	}
	if err := json.Unmarshal(buf.Bytes(), &view); err != nil {
		t.Fatalf("decode progress view: %v (body=%s)", err, buf.String())
	}
	if view.TotalFiles != 1 || view.CompletedFiles != 1 {
		t.Fatalf("view = %+v, want 1 total/completed", view)
	}
}
