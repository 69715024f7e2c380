package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskState is the lifecycle state of a Task. Transitions are monotonic
// except that Processing -> AwaitingRetry -> Processing may repeat until
// a terminal cap is reached (see controller.RetryPolicy).
type TaskState int

const (
	TaskWaiting TaskState = iota
	TaskProcessing
	TaskAwaitingRetry
	TaskCompleted
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskWaiting:
		return "waiting"
	case TaskProcessing:
		return "processing"
	case TaskAwaitingRetry:
		return "awaiting_retry"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state cannot transition further.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// FailureClass categorizes a non-success outcome for the retry policy.
// Each class has its own attempt cap and backoff formula.
type FailureClass int

const (
	FailureNone FailureClass = iota
	FailureGeneral
	FailureRateLimited
	FailureTimeout
)

func (c FailureClass) String() string {
	switch c {
	case FailureGeneral:
		return "general"
	case FailureRateLimited:
		return "rate_limited"
	case FailureTimeout:
		return "timeout"
	default:
		return "none"
	}
}

// Task is a single document-to-audio unit of work. Its id is stable
// across retries: batch id concatenated with the source filename.
type Task struct {
	ID       string
	BatchID  uuid.UUID
	Filename string

	State TaskState
	Stage string

	GeneralAttempts   int
	RateLimitAttempts int
	TimeoutAttempts   int

	LastWorkerIdx int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTask builds a fresh, waiting task for filename within batchID.
func NewTask(batchID uuid.UUID, filename string) *Task {
	now := time.Now()
	return &Task{
		ID:            TaskID(batchID, filename),
		BatchID:       batchID,
		Filename:      filename,
		State:         TaskWaiting,
		Stage:         "queued",
		LastWorkerIdx: -1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// TaskID derives the stable task identifier from a batch id and filename.
func TaskID(batchID uuid.UUID, filename string) string {
	return fmt.Sprintf("%s::%s", batchID, filename)
}

// Attempts returns the attempt counter for the given failure class.
func (t *Task) Attempts(class FailureClass) int {
	switch class {
	case FailureGeneral:
		return t.GeneralAttempts
	case FailureRateLimited:
		return t.RateLimitAttempts
	case FailureTimeout:
		return t.TimeoutAttempts
	default:
		return 0
	}
}

// IncrementAttempts bumps the counter for class and returns the new value.
func (t *Task) IncrementAttempts(class FailureClass) int {
	switch class {
	case FailureGeneral:
		t.GeneralAttempts++
		return t.GeneralAttempts
	case FailureRateLimited:
		t.RateLimitAttempts++
		return t.RateLimitAttempts
	case FailureTimeout:
		t.TimeoutAttempts++
		return t.TimeoutAttempts
	default:
		return 0
	}
}

// TotalAttempts sums attempts across all failure classes (invariant 5).
func (t *Task) TotalAttempts() int {
	return t.GeneralAttempts + t.RateLimitAttempts + t.TimeoutAttempts
}
