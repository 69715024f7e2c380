package server

import "net/http"

// handleHealthz implements GET /healthz: a liveness probe confirming the
// process accepted startup (spec.md §6 "Exit codes" ambient concern).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
