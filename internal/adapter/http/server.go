package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/domain"
	"github.com/nbelayachi/land-acquisition-pipeline-sub002/internal/pipeline"
)

const maxBatchBytes = 32 << 20

// BatchRunner classifies a batch into a certified report.
type BatchRunner interface {
	Run(ctx context.Context, b pipeline.Batch) (*domain.Report, error)
}

// Server exposes health, readiness, metrics and the run endpoint.
type Server struct {
	httpServer *http.Server
	runner     BatchRunner
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and
// POST /v1/runs routes.
func NewServer(addr string, runner BatchRunner, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		runner: runner,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /v1/runs", s.handleRun)

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

type errorResponse struct {
	Error      string             `json:"error"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var batch pipeline.Batch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBytes))
	if err := dec.Decode(&batch); err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid batch: " + err.Error()})
		return
	}

	report, err := s.runner.Run(r.Context(), batch)
	if err != nil {
		var ce *domain.ConsistencyError
		if errors.As(err, &ce) {
			sharedobs.WriteJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Violations: ce.Violations})
			return
		}
		s.logger.Error("run failed", "campaign", batch.Campaign, "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, report)
}
