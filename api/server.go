// Package api provides the HTTP API for the SE assistant: pipeline runs,
// catalog queries, retail price search and run history.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"se-assistant/decision/catalog"
	"se-assistant/decision/pipeline"
	"se-assistant/decision/policy"
	"se-assistant/internal/pricing"
	"se-assistant/pkg/api"
	"se-assistant/pkg/platform"
)

var (
	version   = "0.1.0"
	startTime = time.Now()
)

// Analyzer runs the pipeline. The Coordinator satisfies it.
type Analyzer interface {
	Run(ctx context.Context, customerInput string) *pipeline.Result
}

// Reviewer evaluates review policies. The policy Engine satisfies it.
type Reviewer interface {
	Evaluate(ctx context.Context, input api.PolicyInput) (*policy.EvaluationResult, error)
}

// PriceSearcher answers retail price searches.
type PriceSearcher interface {
	Search(ctx context.Context, q pricing.Query) []api.PriceRecord
}

// RunHistory reads stored runs.
type RunHistory interface {
	ListRuns(ctx context.Context, limit int) ([]api.RunRecord, error)
	GetRun(ctx context.Context, id string) (*api.RunRecord, error)
}

// Pinger is a dependency checked by /ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP API server
type Server struct {
	httpServer *http.Server
	analyzer   Analyzer
	reviewer   Reviewer
	catalog    *catalog.Catalog
	prices     PriceSearcher
	history    RunHistory
	pingers    []Pinger
	config     *Config
	logger     zerolog.Logger
}

// Config holds server configuration
type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AnalyzeTimeout time.Duration
	MaxRequestSize int64
	CORSOrigins    []string
	AuthUser       string
	AuthPass       string
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   5 * time.Minute,
		AnalyzeTimeout: 4 * time.Minute,
		MaxRequestSize: 1 << 20, // 1MB
		CORSOrigins:    []string{"*"},
	}
}

// Deps are the server's collaborators. Analyzer and Catalog are required;
// the rest switch off their endpoints when nil.
type Deps struct {
	Analyzer Analyzer
	Reviewer Reviewer
	Catalog  *catalog.Catalog
	Prices   PriceSearcher
	History  RunHistory
	Pingers  []Pinger
}

// NewServer creates a new API server
func NewServer(deps Deps, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	cat := deps.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	return &Server{
		analyzer: deps.Analyzer,
		reviewer: deps.Reviewer,
		catalog:  cat,
		prices:   deps.Prices,
		history:  deps.History,
		pingers:  deps.Pingers,
		config:   config,
		logger:   log.Logger.With().Str("component", "api").Logger(),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(platform.BasicAuth(s.config.AuthUser, s.config.AuthPass))

		r.Post("/analyze", s.handleAnalyze)

		r.Get("/catalog/services", s.handleListServices)
		r.Get("/catalog/services/{name}", s.handleGetService)
		r.Get("/catalog/patterns", s.handleListPatterns)
		r.Post("/catalog/recommend", s.handleRecommend)

		r.Get("/pricing/search", s.handlePriceSearch)

		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})

	return r
}

// StartWithGracefulShutdown serves until ctx is done or SIGINT/SIGTERM
// arrives, then drains in-flight requests.
func (s *Server) StartWithGracefulShutdown(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Int("port", s.config.Port).Str("version", version).Msg("API server starting")
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, o := range s.config.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HEALTH ENDPOINTS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "seassist-api",
		"version": version,
		"uptime":  time.Since(startTime).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, p := range s.pingers {
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			s.jsonError(w, http.StatusServiceUnavailable, "database not ready")
			return
		}
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// =============================================================================
// ANALYZE ENDPOINT
// =============================================================================

// AnalyzeResponse is the API response for a pipeline run
type AnalyzeResponse struct {
	Result  *pipeline.Result         `json:"result"`
	Review  *policy.EvaluationResult `json:"review,omitempty"`
	Report  string                   `json:"report"`
	Success bool                     `json:"success"`
	Error   string                   `json:"error,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req api.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if strings.TrimSpace(req.CustomerInput) == "" {
		s.jsonError(w, http.StatusBadRequest, "customer_input is required")
		return
	}

	ctx := r.Context()
	if s.config.AnalyzeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.AnalyzeTimeout)
		defer cancel()
	}

	result := s.analyzer.Run(ctx, req.CustomerInput)
	resp := AnalyzeResponse{
		Result:  result,
		Report:  pipeline.FormatReport(result),
		Success: result.Success,
		Error:   result.Error,
	}

	if result.Success && s.reviewer != nil {
		review, err := s.reviewer.Evaluate(ctx, policy.BuildInput(result, req.BudgetMonthly))
		if err != nil {
			// Review is advisory; the run itself succeeded.
			review = &policy.EvaluationResult{
				Decision:   policy.DecisionWarn,
				Violations: []policy.Violation{},
				Warnings:   []policy.Warning{{PolicyID: "review", Message: fmt.Sprintf("policy evaluation failed: %v", err)}},
			}
		}
		resp.Review = review
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	s.jsonResponse(w, status, resp)
}

// =============================================================================
// CATALOG ENDPOINTS
// =============================================================================

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.catalog.Services())
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	info, ok := s.catalog.Info(name)
	if !ok {
		s.jsonError(w, http.StatusNotFound, fmt.Sprintf("unknown service %q", name))
		return
	}
	s.jsonResponse(w, http.StatusOK, info)
}

func (s *Server) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.catalog.Patterns())
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req api.RecommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	s.jsonResponse(w, http.StatusOK, api.RecommendResponse{
		Services: s.catalog.Recommend(req.Requirements),
		Pattern:  s.catalog.SuggestPattern(req.Requirements),
	})
}

// =============================================================================
// PRICING ENDPOINT
// =============================================================================

func (s *Server) handlePriceSearch(w http.ResponseWriter, r *http.Request) {
	if s.prices == nil {
		s.jsonError(w, http.StatusNotImplemented, "price search is not configured")
		return
	}

	q := r.URL.Query()
	query := pricing.Query{
		ServiceName: q.Get("service"),
		Region:      q.Get("region"),
		SKU:         q.Get("sku"),
		Currency:    q.Get("currency"),
	}
	if query.ServiceName == "" {
		s.jsonError(w, http.StatusBadRequest, "service is required")
		return
	}

	s.jsonResponse(w, http.StatusOK, api.NonNil(s.prices.Search(r.Context(), query)))
}

// =============================================================================
// RUN HISTORY ENDPOINTS
// =============================================================================

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.jsonError(w, http.StatusNotImplemented, "run history is not configured")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.jsonError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list runs")
		s.jsonError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	s.jsonResponse(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.jsonError(w, http.StatusNotImplemented, "run history is not configured")
		return
	}

	id := chi.URLParam(r, "id")
	run, err := s.history.GetRun(r.Context(), id)
	if err != nil {
		s.logger.Error().Err(err).Str("run_id", id).Msg("failed to get run")
		s.jsonError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	if run == nil {
		s.jsonError(w, http.StatusNotFound, fmt.Sprintf("run %s not found", id))
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write response")
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, api.ErrorResponse{
		Success: false,
		Error:   message,
	})
}
