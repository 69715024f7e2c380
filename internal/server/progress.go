package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// handleProgress implements GET /progress/{batchID} (spec.md §6).
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(mux.Vars(r)["batchID"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid batch id")
		return
	}

	view, err := s.reg.Snapshot(batchID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleServerStatus implements GET /server_status/{batchID} (spec.md §6).
func (s *Server) handleServerStatus(w http.ResponseWriter, r *http.Request) {
	batchID, err := uuid.Parse(mux.Vars(r)["batchID"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid batch id")
		return
	}

	view, err := s.reg.SnapshotServers(batchID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}
