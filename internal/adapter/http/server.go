package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/accidents-etl/internal/analytics"
)

// Analytics runs dashboard queries.
type Analytics interface {
	Run(ctx context.Context, name string, f analytics.Filter, opts analytics.Options) (analytics.Table, error)
	FilterOptions(ctx context.Context) (analytics.FilterOptions, error)
}

// Server exposes the analytics API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	analytics  Analytics
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /api/v1/analytics, /healthz, /readyz,
// and /metrics routes.
func NewServer(addr string, svc Analytics, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		analytics: svc,
		logger:    logger,
	}

	mux.HandleFunc("GET /api/v1/analytics", s.handleList)
	mux.HandleFunc("GET /api/v1/analytics/filters", s.handleFilters)
	mux.HandleFunc("GET /api/v1/analytics/{query}", s.handleQuery)
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

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

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, map[string][]string{"queries": analytics.Names()})
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	opts, err := s.analytics.FilterOptions(r.Context())
	if err != nil {
		s.logger.Error("filter options failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, opts)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("query")

	filter, opts, err := parseParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	table, err := s.analytics.Run(r.Context(), name, filter, opts)
	switch {
	case errors.Is(err, analytics.ErrUnknownQuery):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		s.logger.Error("analytics query failed", "query", name, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
	default:
		sharedobs.WriteJSON(w, http.StatusOK, table)
	}
}

// parseParams reads the year, borough, severity and by_severity query parameters.
func parseParams(r *http.Request) (analytics.Filter, analytics.Options, error) {
	q := r.URL.Query()
	var (
		conditions []analytics.Condition
		opts       analytics.Options
	)

	if v := q.Get("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			return analytics.Filter{}, opts, errors.New("year must be an integer")
		}
		conditions = append(conditions, analytics.YearEquals(year))
	}
	if v := q.Get("borough"); v != "" {
		conditions = append(conditions, analytics.BoroughEquals(v))
	}
	if v := q.Get("severity"); v != "" {
		conditions = append(conditions, analytics.SeverityEquals(v))
	}
	if v := q.Get("by_severity"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return analytics.Filter{}, opts, errors.New("by_severity must be a boolean")
		}
		opts.BySeverity = b
	}
	return analytics.NewFilter(conditions...), opts, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
