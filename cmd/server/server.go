package main

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lychee-technology/jsonadm"
	"github.com/lychee-technology/jsonadm/internal"
	"go.uber.org/zap"
)

const maxBodyBytes = 4 << 20

// Server exposes the resource handler over HTTP.
type Server struct {
	handler  *internal.ResourceHandler
	registry jsonadm.ManagerRegistry
	basePath string
	timeout  time.Duration
	router   chi.Router
	logger   *zap.SugaredLogger
}

// NewServer creates a new Server instance
func NewServer(handler *internal.ResourceHandler, registry jsonadm.ManagerRegistry, config *jsonadm.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.L()
	}
	return &Server{
		handler:  handler,
		registry: registry,
		basePath: strings.TrimRight(config.Server.BasePath, "/"),
		timeout:  config.Query.DefaultTimeout,
		router:   chi.NewRouter(),
		logger:   logger.Sugar(),
	}
}

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.MethodNotAllowed(s.handleResource)
	if s.basePath != "" {
		r.HandleFunc(s.basePath, s.handleResource)
	}
	r.HandleFunc(s.basePath+"/*", s.handleResource)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleResource serves /{basePath}/{resource...}[/{id}] for every verb.
func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	resource, id := s.parsePath(strings.TrimPrefix(r.URL.Path, s.basePath))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp := s.handler.Handle(ctx, r.Method, &internal.Request{
		Resource: resource,
		ID:       id,
		Params:   internal.ParseParams(r.URL.Query()),
		Body:     body,
	})
	if err := writeResponse(w, r.Method, resp); err != nil {
		s.logger.Warnw("failed to write response", "path", r.URL.Path, "error", err)
	}
}

// parsePath splits the path below the base path into resource and id. Resource names
// may contain slashes, so the full path is tried first and the last segment is the id otherwise.
func (s *Server) parsePath(path string) (resource, id string) {
	path = strings.Trim(path, "/")
	if path == "" || s.registry.Has(path) {
		return path, ""
	}
	if i := strings.LastIndexByte(path, '/'); i > 0 && s.registry.Has(path[:i]) {
		return path[:i], path[i+1:]
	}
	return path, ""
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Infow("http request",
			"requestId", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsedMs", time.Since(start).Milliseconds(),
		)
	})
}
