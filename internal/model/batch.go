package model

import (
	"time"

	"github.com/google/uuid"
)

// CleaningOptions are upstream-side input sanitization flags, forwarded
// verbatim to the upstream TTS service (spec.md §6). The dispatcher
// never applies them itself.
type CleaningOptions struct {
	RemoveMarkdown         bool
	RemoveEmoji            bool
	RemoveURLs             bool
	RemoveLineBreaks       bool
	RemoveCitationNumbers  bool
}

// DefaultCleaningOptions matches the defaults in spec.md §6: every flag on.
func DefaultCleaningOptions() CleaningOptions {
	return CleaningOptions{
		RemoveMarkdown:        true,
		RemoveEmoji:           true,
		RemoveURLs:            true,
		RemoveLineBreaks:      true,
		RemoveCitationNumbers: true,
	}
}

// SubmissionParams carries the per-batch submission parameters.
type SubmissionParams struct {
	Voice          string
	Speed          float64
	Pitch          float64
	ResponseFormat string
	Cleaning       CleaningOptions
	UploadDir      string
}

// DefaultSubmissionParams fills in the defaults documented in spec.md §6.
func DefaultSubmissionParams() SubmissionParams {
	return SubmissionParams{
		Voice:          "zh-CN-XiaoxiaoNeural",
		Speed:          1.0,
		Pitch:          1.0,
		ResponseFormat: "mp3",
		Cleaning:       DefaultCleaningOptions(),
	}
}

// Batch is a unit of submission: a set of tasks plus configuration. It
// lives until process exit and is mutated only by its own dispatcher and
// executors (spec.md §3).
type Batch struct {
	ID     uuid.UUID
	Params SubmissionParams

	Tasks     map[string]*Task
	TaskOrder []string

	Total     int
	Completed int
	Current   string

	Stopped       bool
	StoppedReason string

	CreatedAt time.Time
}

// NewBatch creates an empty batch shell; tasks are added via AddTask.
func NewBatch(id uuid.UUID, params SubmissionParams) *Batch {
	return &Batch{
		ID:        id,
		Params:    params,
		Tasks:     make(map[string]*Task),
		CreatedAt: time.Now(),
	}
}

// ProgressView is the JSON-serializable projection of a batch's progress,
// matching the GET /progress/<batch_id> contract in spec.md §6.
type ProgressView struct {
	BatchID      string                `json:"batch_id"`
	TotalFiles   int                   `json:"total_files"`
	Completed    int                   `json:"completed_files"`
	CurrentFile  string                `json:"current_file"`
	Files        map[string]FileStatus `json:"files"`
	Stopped      bool                  `json:"stopped"`
	StoppedError string                `json:"stopped_reason,omitempty"`
}

// FileStatus is the per-task projection embedded in ProgressView.Files.
type FileStatus struct {
	Filename string  `json:"filename"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Stage    string  `json:"stage"`
}

// WorkerStatusView is the JSON-serializable projection returned by
// GET /server_status/<batch_id>.
type WorkerStatusView struct {
	BatchID string                  `json:"batch_id"`
	Workers []WorkerStatusViewEntry `json:"workers"`
}

// WorkerStatusViewEntry is one worker's projected status.
type WorkerStatusViewEntry struct {
	Index          int     `json:"index"`
	Name           string  `json:"name"`
	State          string  `json:"state"`
	InFlight       int     `json:"in_flight"`
	Capacity       int     `json:"capacity"`
	Load           float64 `json:"load"`
	CompletedCount int     `json:"completed_count"`
	FailedCount    int     `json:"failed_count"`
	TimeoutCount   int     `json:"timeout_count"`
}
