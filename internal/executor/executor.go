package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/jpequegn/ttsdispatch/internal/controller"
	"github.com/jpequegn/ttsdispatch/internal/model"
	"github.com/jpequegn/ttsdispatch/internal/registry"
	"github.com/jpequegn/ttsdispatch/internal/workerpool"
)

// MetricsRecorder is the subset of internal/metrics.Collector the
// executor needs; kept as a small interface so tests can stub it and so
// metrics stay an optional, injectable collaborator rather than a hard
// dependency (mirrors the teacher's ProgressHandler being nil-able).
type MetricsRecorder interface {
	RecordOutcome(batchID, workerName string, outcome model.Outcome)
	SetInFlight(batchID, workerName string, n int)
	SetAdaptiveInterval(batchID string, seconds float64)
}

// Settler is satisfied by *registry.Registry; narrowed to the one method
// the executor calls, to keep this package's dependency surface small.
type Settler interface {
	UpdateTask(batchID uuid.UUID, taskID string, patch registry.TaskPatch) (finished bool, err error)
	Task(batchID uuid.UUID, taskID string) (model.Task, error)
}

// Executor runs individual tasks against upstream TTS servers and
// settles their outcome into the registry, worker pool, and retry/
// adaptive controllers.
type Executor struct {
	fs         afero.Fs
	httpClient *http.Client
	retry      *controller.RetryPolicy
	thresholds SizeThresholds
	metrics    MetricsRecorder

	mu       sync.Mutex
	settling map[string]struct{} // task ids currently being settled
}

// New builds an Executor. metrics may be nil.
func New(fs afero.Fs, retry *controller.RetryPolicy, thresholds SizeThresholds, metrics MetricsRecorder) *Executor {
	return &Executor{
		fs:         fs,
		httpClient: &http.Client{Timeout: requestTimeout},
		retry:      retry,
		thresholds: thresholds,
		metrics:    metrics,
		settling:   make(map[string]struct{}),
	}
}

// Outcome is the result of one Execute call, bundling the classification
// with whatever retry/terminal decision followed it, so the dispatcher
// knows whether (and when) to re-enqueue the task.
type Outcome struct {
	Settlement model.Outcome
	Finished   bool // the batch's finished-count advanced
	Terminal   bool // task reached Failed or Completed
	Requeue    bool
	RequeueIn  time.Duration
}

// Execute runs one task against one worker: reads the source document,
// POSTs to the upstream TTS endpoint, classifies the result, writes and
// validates the audio file, then settles the task via reg and pool.
// Exactly one Outcome is ever returned per call (spec.md §4.4 "exactly
// one settlement event").
func (e *Executor) Execute(
	ctx context.Context,
	reg Settler,
	pool *workerpool.Pool,
	adaptive *controller.Adaptive,
	batchID uuid.UUID,
	taskID string,
	workerIdx int,
	sourcePath string,
	params model.SubmissionParams,
) (Outcome, error) {
	if !e.beginSettlement(taskID) {
		return Outcome{}, fmt.Errorf("executor: task %s already settling", taskID)
	}
	defer e.endSettlement(taskID)

	worker, err := pool.Worker(workerIdx)
	if err != nil {
		return Outcome{}, err
	}

	task, err := reg.Task(batchID, taskID)
	if err != nil {
		return Outcome{}, err
	}

	if e.metrics != nil {
		e.metrics.SetInFlight(batchID.String(), worker.Name, worker.InFlight)
	}

	start := time.Now()
	outcome := e.run(ctx, worker, sourcePath, params, task.Filename)
	outcome.Elapsed = time.Since(start)

	if relErr := pool.Release(workerIdx, outcome); relErr != nil {
		slog.Warn("executor: release failed", "worker", workerIdx, "error", relErr)
	}
	adaptive.Record(outcome.Success())

	if e.metrics != nil {
		e.metrics.RecordOutcome(batchID.String(), worker.Name, outcome)
		e.metrics.SetAdaptiveInterval(batchID.String(), adaptive.Interval())
		if released, werr := pool.Worker(workerIdx); werr == nil {
			e.metrics.SetInFlight(batchID.String(), released.Name, released.InFlight)
		}
	}

	return e.settle(reg, batchID, taskID, workerIdx, outcome)
}

func (e *Executor) beginSettlement(taskID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.settling[taskID]; busy {
		return false
	}
	e.settling[taskID] = struct{}{}
	return true
}

func (e *Executor) endSettlement(taskID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.settling, taskID)
}

// run performs the HTTP call and audio validation, returning the
// classified outcome. It never touches the registry or worker pool.
func (e *Executor) run(ctx context.Context, worker model.Worker, sourcePath string, params model.SubmissionParams, filename string) model.Outcome {
	raw, err := afero.ReadFile(e.fs, sourcePath)
	if err != nil {
		return model.Outcome{Kind: model.OutcomeNetwork, Reason: fmt.Sprintf("read source: %v", err)}
	}
	text := string(raw)

	body := speechRequest{
		Model:          "tts-1",
		Input:          text,
		Voice:          params.Voice,
		Speed:          params.Speed,
		Pitch:          params.Pitch,
		ResponseFormat: params.ResponseFormat,
		CleaningOptions: CleaningOptions{
			RemoveMarkdown:        params.Cleaning.RemoveMarkdown,
			RemoveEmoji:           params.Cleaning.RemoveEmoji,
			RemoveURLs:            params.Cleaning.RemoveURLs,
			RemoveLineBreaks:      params.Cleaning.RemoveLineBreaks,
			RemoveCitationNumbers: params.Cleaning.RemoveCitationNumbers,
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return model.Outcome{Kind: model.OutcomeNetwork, Reason: fmt.Sprintf("marshal request: %v", err)}
	}

	url := normalizeSpeechURL(worker.BaseURL)
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return model.Outcome{Kind: model.OutcomeNetwork, Reason: fmt.Sprintf("build request: %v", err)}
	}
	httpReq.Header.Set("Authorization", "Bearer "+worker.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		kind := classifyTransportError(err)
		reason := err.Error()
		if uerr, ok := isURLError(err); ok {
			reason = uerr.Err.Error()
		}
		return model.Outcome{Kind: kind, Reason: reason}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Outcome{Kind: model.OutcomeNetwork, Reason: fmt.Sprintf("read response: %v", err)}
	}

	kind := classifyHTTPResponse(resp.StatusCode, respBody)
	if kind != model.OutcomeSuccess {
		return model.Outcome{Kind: kind, HTTPStatus: resp.StatusCode, Reason: firstLine(respBody)}
	}

	outPath := audioPath(sourcePath)
	if err := writeAtomic(e.fs, outPath, respBody); err != nil {
		return model.Outcome{Kind: model.OutcomeNetwork, Reason: fmt.Sprintf("write audio: %v", err)}
	}

	textLen := len([]rune(text))
	minSize := e.thresholds.MinAudioSize(textLen)
	if len(respBody) < minSize {
		if rmErr := removeIfExists(e.fs, outPath); rmErr != nil {
			slog.Warn("executor: failed to remove undersized audio", "path", outPath, "error", rmErr)
		}
		return model.Outcome{Kind: model.OutcomeAudioTooSmall, HTTPStatus: resp.StatusCode, Reason: "audio_too_small"}
	}

	return model.Outcome{Kind: model.OutcomeSuccess, HTTPStatus: resp.StatusCode}
}

// settle applies the outcome to the registry: terminal completion, or a
// retry/terminal-failure decision from the retry policy.
func (e *Executor) settle(reg Settler, batchID uuid.UUID, taskID string, workerIdx int, outcome model.Outcome) (Outcome, error) {
	if outcome.Success() {
		finished, err := reg.UpdateTask(batchID, taskID, func(t *model.Task) {
			t.State = model.TaskCompleted
			t.Stage = "completed"
			t.LastWorkerIdx = workerIdx
		})
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Settlement: outcome, Finished: finished, Terminal: true}, nil
	}

	class := outcome.Kind.FailureClass()
	var attempt int
	_, err := reg.UpdateTask(batchID, taskID, func(t *model.Task) {
		attempt = t.IncrementAttempts(class)
		t.LastWorkerIdx = workerIdx
	})
	if err != nil {
		return Outcome{}, err
	}

	retry, delay := e.retry.Decide(class, attempt)
	if retry {
		finished, err := reg.UpdateTask(batchID, taskID, func(t *model.Task) {
			t.State = model.TaskAwaitingRetry
			t.Stage = fmt.Sprintf("retry scheduled: %s (%s attempt %d)", outcome.Kind, class, attempt)
		})
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Settlement: outcome, Finished: finished, Requeue: true, RequeueIn: delay}, nil
	}

	finished, err := reg.UpdateTask(batchID, taskID, func(t *model.Task) {
		t.State = model.TaskFailed
		t.Stage = fmt.Sprintf("failed: %s (%s cap reached after %d attempts)", outcome.Kind, class, attempt)
	})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Settlement: outcome, Finished: finished, Terminal: true}, nil
}

func firstLine(body []byte) string {
	s := strings.TrimSpace(string(body))
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
