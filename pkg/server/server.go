// Package server exposes the batch execution engine over HTTP: batch
// execution and validation endpoints, policy listing, health, and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ajosephmass/spendoptimo-agent/pkg/optimizer"
	"github.com/ajosephmass/spendoptimo-agent/pkg/policy"
	"github.com/ajosephmass/spendoptimo-agent/pkg/telemetry"
	"github.com/ajosephmass/spendoptimo-agent/pkg/workflow"
)

// BatchExecutor runs recommendation batches. *workflow.Engine implements it.
type BatchExecutor interface {
	ExecuteBatch(ctx context.Context, recs []optimizer.Recommendation, opts workflow.Options) (*optimizer.BatchReport, error)
}

// Options configures the HTTP server.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Execution is applied to every batch submitted over the API.
	Execution workflow.Options
}

// Server is the SpendOptimo HTTP API.
type Server struct {
	executor  BatchExecutor
	validator *workflow.Validator
	planner   *workflow.Planner
	policies  *policy.Store
	metrics   *telemetry.Metrics
	logger    zerolog.Logger
	opts      Options
}

// New creates a server. The metrics handler is mounted only when metrics is
// non-nil.
func New(executor BatchExecutor, validator *workflow.Validator, planner *workflow.Planner, policies *policy.Store, metrics *telemetry.Metrics, logger zerolog.Logger, opts Options) *Server {
	return &Server{
		executor:  executor,
		validator: validator,
		planner:   planner,
		policies:  policies,
		metrics:   metrics,
		logger:    logger.With().Str("component", "server").Logger(),
		opts:      opts,
	}
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/batches", s.handleExecuteBatch)
		r.Post("/batches/validate", s.handleValidateBatch)
		r.Get("/policies", s.handleListPolicies)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.Addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	s.logger.Info().Msg("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	err := <-errCh
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// BatchRequest is the execution request body.
type BatchRequest struct {
	Recommendations []optimizer.Recommendation `json:"recommendations"`

	// DryRun overrides the server's execution options for this batch.
	DryRun bool `json:"dry_run,omitempty"`
}

func (s *Server) handleExecuteBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Recommendations) == 0 {
		s.writeError(w, http.StatusBadRequest, "recommendations must not be empty")
		return
	}

	opts := s.opts.Execution
	if req.DryRun {
		opts.DryRun = true
	}

	// The request context drives cancellation: a dropped client cancels
	// pending recommendations while in-flight steps finish and compensate.
	report, err := s.executor.ExecuteBatch(r.Context(), req.Recommendations, opts)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// ValidationResult is one recommendation's admission outcome.
type ValidationResult struct {
	ResourceID string   `json:"resource_id"`
	Accepted   bool     `json:"accepted"`
	Reason     string   `json:"reason,omitempty"`
	Steps      []string `json:"steps,omitempty"`
}

func (s *Server) handleValidateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	results := make([]ValidationResult, 0, len(req.Recommendations))
	for i := range req.Recommendations {
		rec := &req.Recommendations[i]
		result := ValidationResult{ResourceID: rec.ResourceID}

		if rejection := s.validator.Validate(r.Context(), rec); rejection != nil {
			result.Reason = rejection.Reason
			results = append(results, result)
			continue
		}
		plan, err := s.planner.Plan(rec)
		if err != nil {
			result.Reason = err.Error()
			results = append(results, result)
			continue
		}

		result.Accepted = true
		for _, st := range plan.Steps {
			result.Steps = append(result.Steps, st.Name)
		}
		results = append(results, result)
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (s *Server) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":  s.policies.Version(),
		"policies": s.policies.List(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":         "ok",
		"policy_version": s.policies.Version(),
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
