// SPDX-License-Identifier: Apache-2.0

// Package api exposes the evolution engine over HTTP+JSON.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/imoran/clade/pkg/archive"
	"github.com/imoran/clade/pkg/core"
	"github.com/imoran/clade/pkg/cycles"
	"github.com/imoran/clade/pkg/errors"
	"github.com/imoran/clade/pkg/lineage"
)

// Server routes HTTP+JSON requests to the cycle manager and archive.
type Server struct {
	manager *cycles.Manager
	store   archive.Store
	log     *slog.Logger
	mux     *http.ServeMux
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithArchive exposes archived cycles under /v1/archive.
func WithArchive(store archive.Store) ServerOption {
	return func(s *Server) { s.store = store }
}

// WithLogger sets the server's logger.
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// NewServer creates the HTTP handler for manager.
func NewServer(manager *cycles.Manager, opts ...ServerOption) *Server {
	s := &Server{
		manager: manager,
		log:     slog.Default(),
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /v1/cycles", s.handleStartCycle)
	s.mux.HandleFunc("GET /v1/cycles", s.handleListCycles)
	s.mux.HandleFunc("GET /v1/cycles/{id}", s.handleGetCycle)
	s.mux.HandleFunc("POST /v1/cycles/{id}/cancel", s.handleCancelCycle)
	s.mux.HandleFunc("GET /v1/cycles/{id}/lineage", s.handleLineage)
	s.mux.HandleFunc("GET /v1/cycles/{id}/stats", s.handleStats)
	s.mux.HandleFunc("GET /v1/archive", s.handleListArchive)
	s.mux.HandleFunc("GET /v1/archive/{id}", s.handleGetArchive)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startCycleResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *Server) handleStartCycle(w http.ResponseWriter, r *http.Request) {
	var mandate core.Mandate
	if err := json.NewDecoder(r.Body).Decode(&mandate); err != nil {
		s.writeError(w, r, errors.New(errors.CodeValidation, "invalid mandate payload", err))
		return
	}
	id, err := s.manager.Start(r.Context(), mandate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, startCycleResponse{ID: id, Status: string(cycles.StatusRunning)})
}

func (s *Server) handleListCycles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cycles": s.manager.List()})
}

func (s *Server) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	cycle, err := s.manager.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cycle)
}

func (s *Server) handleCancelCycle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.manager.Cancel(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
}

type lineageResponse struct {
	Agents []core.DNA     `json:"agents"`
	Edges  []lineage.Edge `json:"edges,omitempty"`
}

func (s *Server) handleLineage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if agentID := r.URL.Query().Get("agent"); agentID != "" {
		chain, err := s.manager.LineageOf(id, agentID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, lineageResponse{Agents: chain})
		return
	}
	agents, edges, err := s.manager.Lineage(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lineageResponse{Agents: agents, Edges: edges})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.manager.Stats(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListArchive(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, r, errors.New(errors.CodeNotFound, "archive not configured", nil))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	records, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, r, errors.New(errors.CodeNotFound, "archive not configured", nil))
		return
	}
	record, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	resp := errorResponse{Error: err.Error()}
	if ce, ok := err.(*errors.CladeError); ok {
		status = ce.StatusCode
		resp.Code = string(ce.Code)
	}
	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "api.error", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe runs the API server until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
