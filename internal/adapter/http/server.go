package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/storm-peakflow/internal/adapter/csvfile"
	"github.com/couchcryptid/storm-peakflow/internal/adapter/pfds"
	"github.com/couchcryptid/storm-peakflow/internal/adapter/sqlite"
	"github.com/couchcryptid/storm-peakflow/internal/domain"
	"github.com/couchcryptid/storm-peakflow/internal/service"
)

const (
	maxRequestBytes  = 32 << 20
	defaultListLimit = 50
	maxListLimit     = 1000
)

// RunService is the application surface served over HTTP.
type RunService interface {
	Run(ctx context.Context, req service.RunRequest) (*service.RunResult, error)
	Rerun(ctx context.Context, runID, scenario string) (*domain.ResultsTable, error)
	Get(ctx context.Context, runID string) (*domain.ResultsTable, error)
	List(ctx context.Context, limit int) ([]sqlite.RunSummary, error)
	Delete(ctx context.Context, runID string) error
	Scenarios() []string
}

// Server exposes the run API plus health, readiness and metrics endpoints.
type Server struct {
	httpServer *http.Server
	runs       RunService
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /v1 run routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, runs RunService, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		runs:   runs,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/runs", s.handleCreateRun)
	mux.HandleFunc("GET /v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /v1/runs/{id}", s.handleGetRun)
	mux.HandleFunc("DELETE /v1/runs/{id}", s.handleDeleteRun)
	mux.HandleFunc("POST /v1/runs/{id}/rerun", s.handleRerun)
	mux.HandleFunc("GET /v1/scenarios", s.handleScenarios)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type rejectedRecord struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Field string `json:"field,omitempty"`
	Error string `json:"error"`
}

type runResponse struct {
	Run      *domain.ResultsTable `json:"run"`
	Rejected []rejectedRecord     `json:"rejected,omitempty"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req service.RunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res, err := s.runs.Run(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, "run", err)
		return
	}

	resp := runResponse{Run: res.Table}
	for _, rec := range res.Rejected {
		resp.Rejected = append(resp.Rejected, rejectedRecord{
			Index: rec.Index,
			ID:    rec.ID,
			Field: rec.Field,
			Error: rec.Err.Error(),
		})
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	runs, err := s.runs.List(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []sqlite.RunSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	t, err := s.runs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, "get run", err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="`+t.RunID+`.csv"`)
		w.WriteHeader(http.StatusOK)
		if err := csvfile.WriteResults(w, t); err != nil {
			s.logger.Error("write results csv", "run_id", t.RunID, "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.runs.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, "delete run", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRerun(w http.ResponseWriter, r *http.Request) {
	t, err := s.runs.Rerun(r.Context(), r.PathValue("id"), r.URL.Query().Get("scenario"))
	if err != nil {
		s.writeServiceError(w, "rerun", err)
		return
	}
	writeJSON(w, http.StatusCreated, runResponse{Run: t})
}

func (s *Server) handleScenarios(w http.ResponseWriter, _ *http.Request) {
	names := s.runs.Scenarios()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": names})
}

func (s *Server) writeServiceError(w http.ResponseWriter, op string, err error) {
	var malformed *domain.MalformedTableError
	var upstream *pfds.StatusError
	switch {
	case errors.Is(err, domain.ErrRunNotFound), errors.Is(err, service.ErrUnknownScenario):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNoPrecipitation), errors.Is(err, service.ErrInvalidLocation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &malformed):
		s.logger.Warn(op+" failed", "error", err)
		writeError(w, http.StatusUnprocessableEntity, "malformed precipitation table: "+malformed.Reason)
	case errors.As(err, &upstream):
		s.logger.Warn(op+" failed", "error", err)
		writeError(w, http.StatusBadGateway, "precipitation data server unavailable")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to send.
	default:
		s.logger.Error(op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // response already committed
}
