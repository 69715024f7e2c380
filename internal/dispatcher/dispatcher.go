package dispatcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	concpool "github.com/sourcegraph/conc/pool"

	"github.com/jpequegn/ttsdispatch/internal/controller"
	"github.com/jpequegn/ttsdispatch/internal/executor"
	"github.com/jpequegn/ttsdispatch/internal/model"
	"github.com/jpequegn/ttsdispatch/internal/registry"
	"github.com/jpequegn/ttsdispatch/internal/workerpool"
)

// TaskExecutor is satisfied by *executor.Executor; narrowed to the one
// method the dispatcher calls so it can be stubbed in tests.
type TaskExecutor interface {
	Execute(
		ctx context.Context,
		reg executor.Settler,
		pool *workerpool.Pool,
		adaptive *controller.Adaptive,
		batchID uuid.UUID,
		taskID string,
		workerIdx int,
		sourcePath string,
		params model.SubmissionParams,
	) (executor.Outcome, error)
}

const idleBackoff = 100 * time.Millisecond

// Config bundles everything one batch's Dispatcher needs to run.
type Config struct {
	BatchID  uuid.UUID
	Registry *registry.Registry
	Pool     *workerpool.Pool
	Adaptive *controller.Adaptive
	Executor TaskExecutor
	Params   model.SubmissionParams

	// TaskIDs is the frozen task set in submission order, seeding the
	// pending queue (spec.md §4.3 "a frozen task set").
	TaskIDs   []string
	Filenames map[string]string // taskID -> filename

	// ConcurrencyOverride is BALANCER_MAX_CONCURRENCY; 0 means "use the
	// worker count" (spec.md §6).
	ConcurrencyOverride int
	// Global is the optional process-wide GLOBAL_CONCURRENCY_LIMIT
	// semaphore, shared across every batch's Dispatcher; nil disables it.
	Global *GlobalLimiter

	// Metrics is optional; nil disables dispatch-count instrumentation.
	Metrics DispatchRecorder
}

// DispatchRecorder is satisfied by *metrics.Collector; narrowed to the
// one counter the dispatcher itself increments (per-task outcome and
// in-flight metrics are recorded by the executor instead).
type DispatchRecorder interface {
	RecordDispatch(batchID string)
}

// Dispatcher runs the pairing loop for exactly one batch (spec.md §4.3).
type Dispatcher struct {
	cfg Config

	permits chan struct{}
	pending *taskQueue
	retryQ  *taskQueue

	wake chan struct{}

	execPool *concpool.Pool
}

// New builds a Dispatcher and seeds its pending queue from cfg.TaskIDs.
func New(cfg Config) *Dispatcher {
	g := globalCap(cfg.ConcurrencyOverride, cfg.Pool.Len())

	d := &Dispatcher{
		cfg:      cfg,
		permits:  make(chan struct{}, g),
		pending:  &taskQueue{},
		retryQ:   &taskQueue{},
		wake:     make(chan struct{}, 1),
		execPool: concpool.New().WithMaxGoroutines(g),
	}
	for _, id := range cfg.TaskIDs {
		d.pending.push(id)
	}
	return d
}

// globalCap implements G = max(1, min(env_override, num_workers)).
func globalCap(override, numWorkers int) int {
	g := numWorkers
	if override > 0 && override < g {
		g = override
	}
	if g < 1 {
		g = 1
	}
	return g
}

// warmupBounds implements W1 = min(total, max(10, 2G)) and
// W2 = min(total - W1, max(10, G)) (spec.md §4.3).
func warmupBounds(total, g int) (w1, w2 int) {
	w1 = min(total, max(10, 2*g))
	w2 = min(total-w1, max(10, g))
	return w1, w2
}

// baseInterval returns the warm-up-phase pacing interval for the
// dispatchCount-th (1-based) successful dispatch.
func baseInterval(dispatchCount, w1, w2 int) time.Duration {
	switch {
	case dispatchCount <= w1:
		return time.Second
	case dispatchCount <= w1+w2:
		return 500 * time.Millisecond
	default:
		return 200 * time.Millisecond
	}
}

// Run drives the pairing loop until every task has finished (success or
// terminal failure) or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if len(d.cfg.TaskIDs) == 0 {
		return nil
	}

	g := cap(d.permits)
	total := len(d.cfg.TaskIDs)
	w1, w2 := warmupBounds(total, g)
	dispatchCount := 0

	for {
		if d.finished() {
			d.execPool.Wait()
			return nil
		}

		select {
		case <-ctx.Done():
			d.execPool.Wait()
			return ctx.Err()
		default:
		}

		if err := d.acquirePermits(ctx); err != nil {
			d.execPool.Wait()
			return err
		}

		workerIdx, ok := d.cfg.Pool.PickEligible()
		if !ok {
			d.releasePermits()
			d.sleepOrWake(ctx, idleBackoff)
			continue
		}

		taskID, ok := d.retryQ.pop()
		if !ok {
			taskID, ok = d.pending.pop()
		}
		if !ok {
			d.releasePermits()
			d.sleepOrWake(ctx, idleBackoff)
			continue
		}

		if err := d.cfg.Pool.Acquire(workerIdx); err != nil {
			// Worker slipped out of eligibility between pick and
			// acquire (race with a concurrent settlement); put the
			// task back and retry shortly.
			d.retryQ.push(taskID)
			d.releasePermits()
			d.sleepOrWake(ctx, idleBackoff)
			continue
		}

		dispatchCount++
		if d.cfg.Metrics != nil {
			d.cfg.Metrics.RecordDispatch(d.cfg.BatchID.String())
		}
		d.launch(ctx, taskID, workerIdx)

		interval := max(baseInterval(dispatchCount, w1, w2), secondsToDuration(d.cfg.Adaptive.Interval()))
		idle := 0
		for _, ws := range d.cfg.Pool.Snapshot() {
			if ws.State == model.WorkerIdle {
				idle++
			}
		}
		slog.Info("dispatcher: dispatch tick", "batch", d.cfg.BatchID, "dispatched", dispatchCount,
			"pending", d.pending.len(), "retry", d.retryQ.len(), "idle_workers", idle, "interval", interval)
		d.sleepOrWake(ctx, interval)
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// launch runs the task executor for (taskID, workerIdx) on the
// panic-safe goroutine pool, releasing permits and scheduling a retry
// (if any) once it settles.
func (d *Dispatcher) launch(ctx context.Context, taskID string, workerIdx int) {
	filename := d.cfg.Filenames[taskID]
	sourcePath := filepath.Join(d.cfg.Params.UploadDir, filename)

	if _, err := d.cfg.Registry.UpdateTask(d.cfg.BatchID, taskID, func(t *model.Task) {
		t.State = model.TaskProcessing
		t.Stage = "requesting"
	}); err != nil {
		slog.Error("dispatcher: mark task processing", "batch", d.cfg.BatchID, "task", taskID, "error", err)
	}

	d.execPool.Go(func() {
		defer d.releasePermits()
		defer d.signalWake()

		out, err := d.cfg.Executor.Execute(ctx, d.cfg.Registry, d.cfg.Pool, d.cfg.Adaptive, d.cfg.BatchID, taskID, workerIdx, sourcePath, d.cfg.Params)
		if err != nil {
			slog.Error("dispatcher: task execution failed", "batch", d.cfg.BatchID, "task", taskID, "error", err)
			return
		}
		if out.Requeue {
			time.AfterFunc(out.RequeueIn, func() {
				d.retryQ.push(taskID)
				d.signalWake()
			})
		}
	})
}

func (d *Dispatcher) acquirePermits(ctx context.Context) error {
	select {
	case d.permits <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := d.cfg.Global.acquire(ctx); err != nil {
		<-d.permits
		return err
	}
	return nil
}

func (d *Dispatcher) releasePermits() {
	d.cfg.Global.release()
	<-d.permits
}

func (d *Dispatcher) signalWake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// sleepOrWake sleeps for interval unless a settlement's wake signal or
// context cancellation arrives first, so the dispatcher reacts promptly
// to completions instead of always paying the full pacing interval
// (spec.md §4.3 "the completion event is also set by task settlement to
// wake a waiting dispatcher promptly").
func (d *Dispatcher) sleepOrWake(ctx context.Context, interval time.Duration) {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-d.wake:
	case <-ctx.Done():
	}
}

// Requeue pushes taskID onto the retry queue and wakes the pairing loop,
// used by the /retry_failed control-plane handler to resubmit a task
// the registry has already transitioned out of Failed.
func (d *Dispatcher) Requeue(taskID string) {
	d.retryQ.push(taskID)
	d.signalWake()
}

func (d *Dispatcher) finished() bool {
	b, err := d.cfg.Registry.Batch(d.cfg.BatchID)
	if err != nil {
		return true
	}
	return b.Total > 0 && b.Completed >= b.Total
}
