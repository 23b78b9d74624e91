package server

import (
	"net/http"
	"strings"
)

// registerRoutes wires every §6 HTTP surface endpoint onto mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/execute", s.handleSubmit)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/job/", s.routeJob)
}

// routeJob dispatches /job/{id}, /job/{id}/debug, and /job/{id}/cancel to
// their handlers, since ServeMux has no path-parameter support of its own.
func (s *Server) routeJob(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/job/")

	if id, ok := jobIDFromPath(path, "", "/debug"); ok {
		s.handleDebug(w, r, id)
		return
	}
	if id, ok := jobIDFromPath(path, "", "/cancel"); ok {
		s.handleCancel(w, r, id)
		return
	}
	if id, ok := jobIDFromPath(path, "", ""); ok {
		s.handleResult(w, r, id)
		return
	}
	WriteError(w, http.StatusBadRequest, "job id is required in path", "missing_job_id")
}
