package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/jpequegn/ttsdispatch/internal/controller"
	"github.com/jpequegn/ttsdispatch/internal/model"
	"github.com/jpequegn/ttsdispatch/internal/registry"
	"github.com/jpequegn/ttsdispatch/internal/workerpool"
)

func setupFixture(t *testing.T, handler http.HandlerFunc) (afero.Fs, *registry.Registry, *workerpool.Pool, uuid.UUID, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/batch/a.md", []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := registry.New()
	params := model.DefaultSubmissionParams()
	batchID := reg.CreateBatch(params)
	taskID, err := reg.AddTask(batchID, "a.md")
	if err != nil {
		t.Fatal(err)
	}

	servers := []model.UpstreamServer{{Name: "s1", URL: srv.URL, APIKey: "k", Enabled: true, Capacity: 2}}
	pool := workerpool.New(servers, 2)

	return fs, reg, pool, batchID, taskID
}

func TestExecutor_Success(t *testing.T) {
	bigBody := strings.Repeat("x", 5000)
	fs, reg, pool, batchID, taskID := setupFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(bigBody))
	})

	ex := New(fs, controller.NewRetryPolicy(), DefaultSizeThresholds(), nil)
	adaptive := controller.NewAdaptive()

	out, err := ex.Execute(context.Background(), reg, pool, adaptive, batchID, taskID, 0, "/batch/a.md", model.DefaultSubmissionParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Settlement.Success() {
		t.Fatalf("expected success outcome, got %v", out.Settlement.Kind)
	}
	if !out.Finished {
		t.Fatal("expected batch completion counter to advance")
	}

	exists, err := afero.Exists(fs, "/batch/a.mp3")
	if err != nil || !exists {
		t.Fatalf("expected audio file to exist, exists=%v err=%v", exists, err)
	}
}

func TestExecutor_AudioTooSmall(t *testing.T) {
	fs, reg, pool, batchID, taskID := setupFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("tiny"))
	})

	ex := New(fs, controller.NewRetryPolicy(), DefaultSizeThresholds(), nil)
	adaptive := controller.NewAdaptive()

	out, err := ex.Execute(context.Background(), reg, pool, adaptive, batchID, taskID, 0, "/batch/a.md", model.DefaultSubmissionParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Settlement.Kind != model.OutcomeAudioTooSmall {
		t.Fatalf("expected audio_too_small, got %v", out.Settlement.Kind)
	}
	if out.Finished {
		t.Fatal("audio-too-small retry must not advance completion counter")
	}
	if !out.Requeue {
		t.Fatal("expected retry to be scheduled")
	}

	exists, _ := afero.Exists(fs, "/batch/a.mp3")
	if exists {
		t.Fatal("undersized audio file should have been deleted")
	}

	task, err := reg.Task(batchID, taskID)
	if err != nil {
		t.Fatal(err)
	}
	if task.GeneralAttempts != 1 {
		t.Fatalf("expected 1 general attempt, got %d", task.GeneralAttempts)
	}
}

func TestExecutor_RateLimitedExhaustsRetries(t *testing.T) {
	fs, reg, pool, batchID, taskID := setupFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("rate limit"))
	})

	ex := New(fs, controller.NewRetryPolicy(), DefaultSizeThresholds(), nil)
	adaptive := controller.NewAdaptive()

	cap := controller.RetryCaps[model.FailureRateLimited]

	var last Outcome
	for i := 0; i < cap+1; i++ {
		out, err := ex.Execute(context.Background(), reg, pool, adaptive, batchID, taskID, 0, "/batch/a.md", model.DefaultSubmissionParams())
		if err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", i, err)
		}
		last = out
	}

	if !last.Terminal || last.Requeue {
		t.Fatalf("expected terminal failure after cap reached, got %+v", last)
	}

	task, err := reg.Task(batchID, taskID)
	if err != nil {
		t.Fatal(err)
	}
	if task.State != model.TaskFailed {
		t.Fatalf("expected task Failed, got %v", task.State)
	}
	if task.RateLimitAttempts != cap+1 {
		t.Fatalf("expected %d rate-limit attempts, got %d", cap+1, task.RateLimitAttempts)
	}
}
