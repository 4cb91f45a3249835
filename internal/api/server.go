// Package api exposes a read-only HTTP status view of the running print job.
package api

import (
	"fmt"
	"net/http"

	"github.com/arcment-data/arcweld/internal/db"
	"github.com/arcment-data/arcweld/internal/httputil"
	"github.com/arcment-data/arcweld/internal/job"
)

type Server struct {
	runner *job.Runner
	db     *db.DB
}

// NewServer wires the status endpoints to a runner. db may be nil when the
// run is not persisted.
func NewServer(runner *job.Runner, db *db.DB) *Server {
	return &Server{runner: runner, db: db}
}

// ServeMux returns the route table for the status server.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.statusHandler)
	mux.HandleFunc("/api/results", s.resultsHandler)
	mux.HandleFunc("/api/history", s.historyHandler)
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Write([]byte("arcweld adaptive layer controller\n"))
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.runner.Status())
}

func (s *Server) resultsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, struct {
		Results interface{} `json:"results"`
	}{s.runner.Results()})
}

// historyHandler serves the persisted scan results for this run.
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "persistence not enabled")
		return
	}
	results, err := s.db.ScanResults(s.runner.Status().RunID)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load scan results: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, struct {
		Results interface{} `json:"results"`
	}{results})
}
