// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the aggregator over HTTP: GET /search, plus
// /sources, /healthz and /metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pdiddy/multi-search/internal/logger"
	"github.com/pdiddy/multi-search/internal/search"
	"github.com/pdiddy/multi-search/pkg/types"
)

// Searcher is the part of *search.Aggregator the server needs.
type Searcher interface {
	Aggregate(ctx context.Context, req search.Request) (*search.Response, error)
	Enabled() []types.SourceKind
	Disabled() []types.SourceKind
}

// Options configures a Server.
type Options struct {
	// DefaultMaxResults applies when the request has no max_results.
	DefaultMaxResults int

	// Registry receives the HTTP metrics and backs /metrics. Nil disables
	// both.
	Registry *prometheus.Registry

	Logger *zap.Logger
}

// Server handles HTTP requests against a Searcher.
type Server struct {
	searcher   Searcher
	defaultMax int
	registry   *prometheus.Registry
	logger     *zap.Logger
}

// New creates a Server.
func New(s Searcher, opts Options) *Server {
	if opts.DefaultMaxResults <= 0 {
		opts.DefaultMaxResults = search.DefaultMaxResults
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Server{
		searcher:   s,
		defaultMax: opts.DefaultMaxResults,
		registry:   opts.Registry,
		logger:     opts.Logger,
	}
}

// Handler builds the chi router with its middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(requestID)
	r.Use(accessLog(s.logger))
	if s.registry != nil {
		r.Use(NewHTTPMetrics(s.registry).Middleware())
	}

	r.Get("/search", s.handleSearch)
	r.Get("/sources", s.handleSources)
	r.Get("/healthz", s.handleHealth)
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return r
}

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Code    string                `json:"code"`
	Message string                `json:"message"`
	Sources []search.SourceReport `json:"sources,omitempty"`
}

// handleSearch handles GET /search?query=...&max_results=N. "q" is accepted
// as a short form of "query".
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	text := q.Get("query")
	if text == "" {
		text = q.Get("q")
	}

	max := s.defaultMax
	if raw := strings.TrimSpace(q.Get("max_results")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "max_results must be an integer")
			return
		}
		max = n
	}

	resp, err := s.searcher.Aggregate(r.Context(), search.Request{Text: text, MaxResults: max})
	if err != nil {
		s.handleSearchError(r.Context(), w, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		logger.FromContext(r.Context()).Error("writing search response", zap.Error(err))
	}
}

func (s *Server) handleSearchError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logger.FromContext(ctx)

	var all *search.AllSourcesError
	switch {
	case errors.Is(err, search.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.As(err, &all):
		log.Warn("search failed", zap.Error(err))
		_ = writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Code:    "all_sources_unavailable",
			Message: search.ErrAllSourcesUnavailable.Error(),
			Sources: all.Sources,
		})
	default:
		log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

type sourcesResponse struct {
	Enabled  []types.SourceKind `json:"enabled"`
	Disabled []types.SourceKind `json:"disabled"`
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	resp := sourcesResponse{Enabled: s.searcher.Enabled(), Disabled: s.searcher.Disabled()}
	if resp.Enabled == nil {
		resp.Enabled = []types.SourceKind{}
	}
	if resp.Disabled == nil {
		resp.Disabled = []types.SourceKind{}
	}
	_ = writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// encodeFailure is written when a response body cannot be encoded.
const encodeFailure = `{"code":"internal_error","message":"encoding response"}` + "\n"

// writeJSON encodes v before touching the status line, so an encoding error
// becomes a 500 instead of an empty body.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	body, err := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(encodeFailure))
		return err
	}
	w.WriteHeader(status)
	_, err = w.Write(append(body, '\n'))
	return err
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	_ = writeJSON(w, status, errorResponse{Code: code, Message: message})
}
