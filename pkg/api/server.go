package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/cuemby/ipsecd/pkg/log"
	"github.com/cuemby/ipsecd/pkg/metrics"
	"github.com/cuemby/ipsecd/pkg/orchestrator"
	"github.com/cuemby/ipsecd/pkg/storage"
	"github.com/cuemby/ipsecd/pkg/types"
)

// maxManifestSize bounds the body of POST /apply
const maxManifestSize = 1 << 20

// Daemon is the part of the orchestrator the API serves
type Daemon interface {
	Status() orchestrator.Status
	ApplyYAML(data []byte) (int, error)
	Store() storage.Store
}

// Config holds API server configuration
type Config struct {
	Daemon Daemon

	// ReadOnly rejects requests that change configuration
	ReadOnly bool
}

// Server exposes health, metrics, status and manifest endpoints over HTTP
type Server struct {
	daemon   Daemon
	readOnly bool
	router   *mux.Router
	logger   zerolog.Logger
	server   *http.Server
}

// NewServer creates a new API server
func NewServer(cfg *Config) *Server {
	s := &Server{
		daemon:   cfg.Daemon,
		readOnly: cfg.ReadOnly,
		router:   mux.NewRouter(),
		logger:   log.WithComponent("api"),
	}
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.router.Use(s.instrument)

	// Register endpoints
	s.router.Handle("/health", metrics.HealthHandler()).Methods(http.MethodGet)
	s.router.Handle("/ready", metrics.ReadyHandler()).Methods(http.MethodGet)
	s.router.Handle("/live", metrics.LivenessHandler()).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.statusHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.statsHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/errors", s.errorsHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/apply", s.applyHandler).Methods(http.MethodPost)

	return s
}

// Start serves on addr until Shutdown is called. It returns nil at once
// if Shutdown already ran.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		metrics.RegisterComponent(metrics.ComponentAPI, false, err.Error())
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	metrics.RegisterComponent(metrics.ComponentAPI, true, ln.Addr().String())
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("API server listening")

	err = s.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		metrics.UpdateComponent(metrics.ComponentAPI, false, "stopped")
		return nil
	}
	metrics.UpdateComponent(metrics.ComponentAPI, false, err.Error())
	return err
}

// Shutdown stops the server gracefully. A later Start returns immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	metrics.UpdateComponent(metrics.ComponentAPI, false, "stopped")
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for embedding in other servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// ApplyResponse is returned by POST /apply
type ApplyResponse struct {
	Queued int    `json:"queued"`
	Error  string `json:"error,omitempty"`
}

// ErrorResponse is returned when a request fails
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.Status())
}

// statsHandler returns the latest stored samples, optionally filtered by
// ?kind=sa|sp|ike
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	store := s.daemon.Store()
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "no store configured")
		return
	}

	snaps, err := store.ListStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	kind := types.StatKind(r.URL.Query().Get("kind"))
	out := make([]*types.StatSnapshot, 0, len(snaps))
	for _, snap := range snaps {
		if kind == "" || snap.Kind == kind {
			out = append(out, snap)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// errorsHandler returns the error history, newest first, bounded by ?limit=N
func (s *Server) errorsHandler(w http.ResponseWriter, r *http.Request) {
	store := s.daemon.Store()
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "no store configured")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	errs, err := store.ListErrors(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if errs == nil {
		errs = []*types.IPsecError{}
	}
	writeJSON(w, http.StatusOK, errs)
}

func (s *Server) applyHandler(w http.ResponseWriter, r *http.Request) {
	if s.readOnly {
		writeError(w, http.StatusForbidden, "configuration changes are disabled on this listener")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxManifestSize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}

	n, err := s.daemon.ApplyYAML(data)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, ApplyResponse{Queued: n})
	case n == 0:
		// Nothing queued: the manifest itself was rejected
		writeJSON(w, http.StatusBadRequest, ApplyResponse{Error: err.Error()})
	default:
		// Partially applied, e.g. a credential failed to load
		writeJSON(w, http.StatusAccepted, ApplyResponse{Queued: n, Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}
