package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tenkings/setops-ingest/internal/config"
	"github.com/tenkings/setops-ingest/internal/discovery"
	"github.com/tenkings/setops-ingest/internal/ingest"
	"github.com/tenkings/setops-ingest/internal/logging"
	"github.com/tenkings/setops-ingest/internal/metrics"
	"github.com/tenkings/setops-ingest/internal/setops"
	"github.com/tenkings/setops-ingest/internal/source"
)

// Searcher finds candidate checklist sources.
type Searcher interface {
	SearchSetSources(ctx context.Context, q discovery.Query) ([]setops.DiscoveryResult, error)
}

// Importer turns a source URL or an uploaded file into a queued ingestion job.
type Importer interface {
	ImportDiscoveredSource(ctx context.Context, params ingest.ImportParams) (ingest.Result, error)
	ImportUploadedFile(ctx context.Context, params ingest.ImportParams, file source.UploadedFile) (ingest.Result, error)
}

// UploadParser parses an uploaded file without persisting anything.
type UploadParser interface {
	ParseUploadedSourceFile(file source.UploadedFile) (source.ParsedUpload, error)
}

// Pinger reports whether a downstream dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers to discovery, ingestion, and the job store.
type Server struct {
	router   chi.Router
	searcher Searcher
	importer Importer
	parser   UploadParser
	jobs     setops.JobStore
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	searcher Searcher,
	importer Importer,
	parser UploadParser,
	jobs setops.JobStore,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		searcher: searcher,
		importer: importer,
		parser:   parser,
		jobs:     jobs,
		cfg:      cfg,
		logger:   logging.OrNop(logger),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Use(timeoutMiddleware(requestBudget(cfg)))
		r.Route("/sources", func(r chi.Router) {
			r.Post("/search", s.searchSources)
			r.Post("/import", s.importSource)
			r.Post("/upload", s.uploadSource)
			r.Post("/parse", s.parseUpload)
		})
		r.Get("/jobs/{job_id}", s.getJob)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.jobs.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "job store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// requestBudget bounds a whole request. Imports may run several retried fetches
// for one source, so the budget is a multiple of the single fetch timeout.
func requestBudget(cfg config.Config) time.Duration {
	d := cfg.RequestBudget() * time.Duration(max(cfg.Fetch.Attempts, 1)) * 2
	if d <= 0 {
		return 60 * time.Second
	}
	return d
}

// statusFor maps a classified error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, setops.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	switch setops.KindOf(err) {
	case setops.KindInput:
		return http.StatusBadRequest
	case setops.KindFetch, setops.KindDiscovery:
		return http.StatusBadGateway
	case setops.KindParse, setops.KindInference, setops.KindQuality:
		return http.StatusUnprocessableEntity
	case setops.KindLoop:
		return http.StatusLoopDetected
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: setops.Message(err), Kind: string(setops.KindOf(err))}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID(r.Context())),
			zap.Error(err),
		)
		body.Error = "internal server error"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
