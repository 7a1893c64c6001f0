package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"expvar"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ajitpratap0/threatlex/internal/cache"
	"github.com/ajitpratap0/threatlex/internal/indexer"
	"github.com/ajitpratap0/threatlex/internal/metrics"
	"github.com/ajitpratap0/threatlex/internal/refresh"
)

// Server is an HTTP API server exposing the name index and cache
// operations to the detector and UI.
type Server struct {
	manager   *cache.Manager
	builder   *indexer.Builder
	refresher *refresh.Refresher
	logger    *slog.Logger
	authToken string // empty = no auth required
}

// NewServer creates a new Server with the given dependencies.
func NewServer(manager *cache.Manager, builder *indexer.Builder, refresher *refresh.Refresher, logger *slog.Logger, authToken string) *Server {
	return &Server{
		manager:   manager,
		builder:   builder,
		refresher: refresher,
		logger:    logger,
		authToken: authToken,
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check — no auth required.
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	// Operation counters.
	mux.Handle("GET /debug/vars", expvar.Handler())

	mux.HandleFunc("GET /v1/lookup", s.auth(s.handleLookup))
	mux.HandleFunc("GET /v1/stats", s.auth(s.handleStats))
	mux.HandleFunc("GET /v1/stats/{platform}", s.auth(s.handlePlatformStats))
	mux.HandleFunc("POST /v1/refresh", s.auth(s.handleRefresh))
	mux.HandleFunc("POST /v1/cleanup", s.auth(s.handleCleanup))

	return s.requestID(mux)
}

// --- middleware ---

// auth wraps a handler with Bearer token authentication when authToken
// is set.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// requestID tags every response with a request id for correlation.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", uuid.NewString())
		next.ServeHTTP(w, r)
	})
}

// --- handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// lookupResponse is returned by GET /v1/lookup.
type lookupResponse struct {
	Term       string              `json:"term"`
	Candidates []indexer.Candidate `json:"candidates"`
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("term")
	if term == "" {
		s.writeError(w, http.StatusBadRequest, "term is required")
		return
	}

	agg, err := s.manager.All(r.Context())
	if err != nil {
		s.logger.Error("loading cache for lookup", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load cache")
		return
	}
	idx := s.builder.Build(agg)
	metrics.Inc(metrics.Lookups)

	candidates := idx.Lookup(term)
	if candidates == nil {
		candidates = []indexer.Candidate{}
	}
	s.writeJSON(w, http.StatusOK, lookupResponse{Term: term, Candidates: candidates})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.manager.StatsAll(r.Context())
	if err != nil {
		s.logger.Error("computing stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePlatformStats(w http.ResponseWriter, r *http.Request) {
	platformID := r.PathValue("platform")
	stats, err := s.manager.Stats(r.Context(), platformID)
	if err != nil {
		s.logger.Error("computing platform stats", "platform", platformID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	if stats == nil {
		s.writeError(w, http.StatusNotFound, "no snapshot for platform")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// refreshRequest is the body accepted by POST /v1/refresh.
type refreshRequest struct {
	Platforms []string `json:"platforms"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	report := s.refresher.Run(r.Context(), req.Platforms...)
	s.writeJSON(w, http.StatusOK, report)
}

// cleanupRequest is the body accepted by POST /v1/cleanup.
type cleanupRequest struct {
	ValidPlatforms []string `json:"valid_platforms"`
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pruned := s.manager.CleanupOrphaned(r.Context(), req.ValidPlatforms)
	s.writeJSON(w, http.StatusOK, map[string]int{"pruned": pruned})
}

// --- helpers ---

// writeJSON encodes v as JSON and writes it to w with the given status
// code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// Shutdown gracefully shuts down an http.Server with the given
// timeout. This is a convenience helper used by the serve command.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
