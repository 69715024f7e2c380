package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type retryFailedResponse struct {
	Retried int `json:"retried"`
}

// handleRetryFailed implements POST /retry_failed/{batchID} (spec.md §6):
// every task currently Failed is moved back to AwaitingRetry and pushed
// onto its batch's retry queue. If the batch's dispatcher already exited
// (every other task had settled), it is re-spawned to drain the queue.
func (s *Server) handleRetryFailed(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(mux.Vars(r)["batchID"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid batch id")
		return
	}

	rt, ok := s.runtimeFor(batchID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown batch")
		return
	}

	failed, err := s.reg.FindFailed(batchID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if len(failed) == 0 {
		writeError(w, http.StatusConflict, "batch has no failed tasks to retry")
		return
	}

	for _, taskID := range failed {
		if err := s.reg.Requeue(batchID, taskID); err != nil {
			continue
		}
		rt.dispatcher.Requeue(taskID)
	}

	if _, running := s.runner.Lookup(batchID); !running {
		handle := s.runner.Spawn(context.Background(), batchID, rt.dispatcher)
		s.watchCompletion(context.Background(), batchID, handle, rt.startedAt)
	}

	writeJSON(w, http.StatusOK, retryFailedResponse{Retried: len(failed)})
}

// handleCancel implements POST /api/cancel/{batchID}: requests the
// batch's dispatcher stop without waiting for it to exit.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(mux.Vars(r)["batchID"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid batch id")
		return
	}

	if !s.runner.Cancel(batchID) {
		writeError(w, http.StatusNotFound, "batch is not running")
		return
	}
	if err := s.reg.MarkStopped(batchID, "cancelled via /api/cancel"); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
