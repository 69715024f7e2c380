package dispatcher

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Runner spawns one batch's Dispatcher on its own goroutine and returns
// a handle for cancellation and completion observation, keeping HTTP
// handlers themselves stateless in the request path (spec.md §9's
// resolution of "background threads launched from request handlers").
type Runner struct {
	mu      sync.Mutex
	handles map[uuid.UUID]*Handle
}

// NewRunner builds an empty Runner.
func NewRunner() *Runner {
	return &Runner{handles: make(map[uuid.UUID]*Handle)}
}

// Handle is the caller-visible lifecycle control for one spawned batch
// dispatcher.
type Handle struct {
	BatchID uuid.UUID

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Cancel requests the dispatcher stop; it does not block for exit.
func (h *Handle) Cancel() {
	h.cancel()
}

// Wait blocks until the dispatcher has exited and returns the error its
// Run call returned, if any.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Spawn launches d.Run on a new goroutine under a cancellable child of
// parent, registers the resulting Handle under batchID, and returns it
// immediately. The handle is unregistered once the dispatcher exits.
func (r *Runner) Spawn(parent context.Context, batchID uuid.UUID, d *Dispatcher) *Handle {
	ctx, cancel := context.WithCancel(parent)
	h := &Handle{
		BatchID: batchID,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	r.mu.Lock()
	r.handles[batchID] = h
	r.mu.Unlock()

	go func() {
		h.err = d.Run(ctx)
		r.mu.Lock()
		delete(r.handles, batchID)
		r.mu.Unlock()
		close(h.done)
	}()

	return h
}

// Lookup returns the running Handle for batchID, if any.
func (r *Runner) Lookup(batchID uuid.UUID) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[batchID]
	return h, ok
}

// Cancel requests the batch's dispatcher stop, if it is still running.
// Reports false if no dispatcher is running for batchID.
func (r *Runner) Cancel(batchID uuid.UUID) bool {
	h, ok := r.Lookup(batchID)
	if !ok {
		return false
	}
	h.Cancel()
	return true
}
