package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpequegn/ttsdispatch/internal/model"
)

// ServerSnapshotter is satisfied by a worker pool: it lets the registry
// project worker status without owning Worker entities itself.
type ServerSnapshotter interface {
	Snapshot() []model.WorkerStatus
}

// entry bundles a batch with its own lock and (optionally) the worker
// pool snapshotter attached to it at creation time.
type entry struct {
	mu      sync.RWMutex
	batch   *model.Batch
	servers ServerSnapshotter
}

// Registry holds all live batches. It is the only component that owns
// Batch and Task entities (spec.md §3 "Ownership").
type Registry struct {
	mu      sync.RWMutex
	batches map[uuid.UUID]*entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{batches: make(map[uuid.UUID]*entry)}
}

// CreateBatch allocates a new batch and returns its id.
func (r *Registry) CreateBatch(params model.SubmissionParams) uuid.UUID {
	id := uuid.New()
	b := model.NewBatch(id, params)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[id] = &entry{batch: b}
	return id
}

// AttachServers associates a worker-status snapshotter with a batch, so
// SnapshotServers can project worker state without the registry owning
// Worker entities. Called once, right after the worker pool for a batch
// is constructed.
func (r *Registry) AttachServers(batchID uuid.UUID, servers ServerSnapshotter) error {
	e, err := r.entryFor(batchID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.servers = servers
	return nil
}

// AddTask registers a new waiting task for filename within batchID and
// returns its stable task id.
func (r *Registry) AddTask(batchID uuid.UUID, filename string) (string, error) {
	e, err := r.entryFor(batchID)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	task := model.NewTask(batchID, filename)
	if _, exists := e.batch.Tasks[task.ID]; exists {
		return "", fmt.Errorf("registry: task already exists: %s", task.ID)
	}
	e.batch.Tasks[task.ID] = task
	e.batch.TaskOrder = append(e.batch.TaskOrder, task.ID)
	e.batch.Total++
	return task.ID, nil
}

// TaskPatch mutates a task in place under the batch's write lock. It must
// not retain the *model.Task pointer beyond the call.
type TaskPatch func(t *model.Task)

// UpdateTask applies patch to the named task and advances progress
// counters if the patch transitioned the task into a terminal state.
// It returns true iff this call caused the task to finish (success or
// terminal failure) — the signal the dispatcher waits on to decide when
// a batch is done.
func (r *Registry) UpdateTask(batchID uuid.UUID, taskID string, patch TaskPatch) (finished bool, err error) {
	e, err := r.entryFor(batchID)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.batch.Tasks[taskID]
	if !ok {
		return false, fmt.Errorf("registry: unknown task: %s", taskID)
	}

	wasTerminal := task.State.Terminal()
	patch(task)
	task.UpdatedAt = time.Now()
	e.batch.Current = task.Filename

	nowTerminal := task.State.Terminal()
	if !wasTerminal && nowTerminal {
		e.batch.Completed++
		return true, nil
	}
	return false, nil
}

// Requeue transitions a Failed task back to AwaitingRetry and decrements
// the batch's completed counter, undoing the terminal-failure count so
// it can safely settle again without being counted twice (spec.md §6
// POST /retry_failed).
func (r *Registry) Requeue(batchID uuid.UUID, taskID string) error {
	e, err := r.entryFor(batchID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.batch.Tasks[taskID]
	if !ok {
		return fmt.Errorf("registry: unknown task: %s", taskID)
	}
	if task.State != model.TaskFailed {
		return fmt.Errorf("registry: task %s is not failed", taskID)
	}

	task.State = model.TaskAwaitingRetry
	task.Stage = "retry requested via /retry_failed"
	task.UpdatedAt = time.Now()
	if e.batch.Completed > 0 {
		e.batch.Completed--
	}
	return nil
}

// MarkStopped flags the batch as stopped with reason, observable via the
// next snapshot. Its only caller is the /api/cancel handler.
func (r *Registry) MarkStopped(batchID uuid.UUID, reason string) error {
	e, err := r.entryFor(batchID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batch.Stopped = true
	e.batch.StoppedReason = reason
	return nil
}

// Snapshot returns a consistent, by-value progress projection.
func (r *Registry) Snapshot(batchID uuid.UUID) (model.ProgressView, error) {
	e, err := r.entryFor(batchID)
	if err != nil {
		return model.ProgressView{}, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	view := model.ProgressView{
		BatchID:      e.batch.ID.String(),
		TotalFiles:   e.batch.Total,
		Completed:    e.batch.Completed,
		CurrentFile:  e.batch.Current,
		Files:        make(map[string]model.FileStatus, len(e.batch.Tasks)),
		Stopped:      e.batch.Stopped,
		StoppedError: e.batch.StoppedReason,
	}

	for id, t := range e.batch.Tasks {
		progress := 0.0
		if t.State == model.TaskCompleted {
			progress = 1.0
		} else if t.State == model.TaskProcessing || t.State == model.TaskAwaitingRetry {
			progress = 0.5
		}
		view.Files[id] = model.FileStatus{
			Filename: t.Filename,
			Status:   t.State.String(),
			Progress: progress,
			Stage:    t.Stage,
		}
	}

	return view, nil
}

// SnapshotServers returns the worker-status projection for a batch, if a
// server snapshotter has been attached.
func (r *Registry) SnapshotServers(batchID uuid.UUID) (model.WorkerStatusView, error) {
	e, err := r.entryFor(batchID)
	if err != nil {
		return model.WorkerStatusView{}, err
	}

	e.mu.RLock()
	servers := e.servers
	e.mu.RUnlock()

	view := model.WorkerStatusView{BatchID: batchID.String()}
	if servers == nil {
		return view, nil
	}

	for _, ws := range servers.Snapshot() {
		load := 0.0
		if ws.Capacity > 0 {
			load = float64(ws.InFlight) / float64(ws.Capacity)
		}
		view.Workers = append(view.Workers, model.WorkerStatusViewEntry{
			Index:          ws.Index,
			Name:           ws.Name,
			State:          ws.State.String(),
			InFlight:       ws.InFlight,
			Capacity:       ws.Capacity,
			Load:           load,
			CompletedCount: ws.CompletedCount,
			FailedCount:    ws.FailedCount,
			TimeoutCount:   ws.TimeoutCount,
		})
	}
	return view, nil
}

// FindFailed returns the ids of every task currently in the Failed
// state, used by POST /retry_failed.
func (r *Registry) FindFailed(batchID uuid.UUID) ([]string, error) {
	e, err := r.entryFor(batchID)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	var failed []string
	for _, id := range e.batch.TaskOrder {
		if t := e.batch.Tasks[id]; t.State == model.TaskFailed {
			failed = append(failed, id)
		}
	}
	return failed, nil
}

// Batch returns a copy of the batch's top-level fields (not its task
// map) for callers that need submission params or total/completed
// counts without taking a full snapshot.
func (r *Registry) Batch(batchID uuid.UUID) (model.Batch, error) {
	e, err := r.entryFor(batchID)
	if err != nil {
		return model.Batch{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	cp := *e.batch
	return cp, nil
}

// Task returns a copy of a single task.
func (r *Registry) Task(batchID uuid.UUID, taskID string) (model.Task, error) {
	e, err := r.entryFor(batchID)
	if err != nil {
		return model.Task{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.batch.Tasks[taskID]
	if !ok {
		return model.Task{}, fmt.Errorf("registry: unknown task: %s", taskID)
	}
	return *t, nil
}

func (r *Registry) entryFor(batchID uuid.UUID) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("registry: unknown batch: %s", batchID)
	}
	return e, nil
}
