package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/a11y-auditor/internal/config"
	"github.com/jonathan/a11y-auditor/internal/pipeline"
	"github.com/jonathan/a11y-auditor/internal/rendering"
	"github.com/jonathan/a11y-auditor/internal/server/middleware"
	"github.com/jonathan/a11y-auditor/internal/types"
)

//go:embed templates/*.html
var templateFiles embed.FS

// AuditRunner runs one audit. *pipeline.Auditor satisfies it.
type AuditRunner interface {
	RunAuditWithProgress(ctx context.Context, url string, timeout time.Duration, onProgress pipeline.ProgressCallback) *types.AuditResult
}

// Options configures a Server.
type Options struct {
	Config config.ServerConfig
	// Auditor is nil when the auditor could not be initialized; audit
	// requests then fail with a service-unavailable error.
	Auditor       AuditRunner
	APIKeyPresent bool
	WaitTimeout   time.Duration
	Logger        *zap.Logger

	// Resolver is used by the private-target check; nil means net.DefaultResolver.
	Resolver Resolver
}

// Server represents the HTTP server
type Server struct {
	httpServer    *http.Server
	auditor       AuditRunner
	apiKeyPresent bool
	waitTimeout   time.Duration
	shutdown      time.Duration
	allowOrigin   string
	guard         *targetGuard
	templates     *template.Template
	logger        *zap.Logger
}

// New creates a new server instance
func New(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tmpl, err := template.New("").Funcs(template.FuncMap{
		"markdown": rendering.Markdown,
	}).ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &Server{
		auditor:       opts.Auditor,
		apiKeyPresent: opts.APIKeyPresent,
		waitTimeout:   opts.WaitTimeout,
		shutdown:      opts.Config.ShutdownTimeout,
		allowOrigin:   opts.Config.AllowedOrigin,
		templates:     tmpl,
		logger:        logger.Named("server"),
	}
	if s.waitTimeout <= 0 {
		s.waitTimeout = types.DefaultWaitTimeout
	}
	if s.shutdown <= 0 {
		s.shutdown = 30 * time.Second
	}
	if s.allowOrigin == "" {
		s.allowOrigin = "*"
	}
	if opts.Config.BlockPrivateTargets {
		var resolver Resolver = net.DefaultResolver
		if opts.Resolver != nil {
			resolver = opts.Resolver
		}
		s.guard = &targetGuard{resolver: resolver}
	}

	s.httpServer = &http.Server{
		Addr:         opts.Config.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  opts.Config.ReadTimeout,
		WriteTimeout: opts.Config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /audit", s.handleAudit)
	mux.HandleFunc("POST /audit/stream", s.handleAuditStream)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("/", s.handleNotFound)

	var h http.Handler = mux
	h = s.withCORS(h)
	h = middleware.Recover(s.logger, s.handleInternalError)(h)
	h = middleware.Logging(s.logger)(h)
	h = middleware.RequestID(h)
	return h
}

// Start listens until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr),
			zap.Bool("auditor_initialized", s.auditor != nil))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	<-errCh
	s.logger.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, "+middleware.RequestIDHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestLogger returns the server logger tagged with the request ID.
func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return s.logger.With(zap.String("request_id", middleware.RequestIDFromContext(r.Context())))
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("error encoding JSON response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// writeError maps err to a status and public message.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.errorResponse(w, HTTPStatus(err), publicMessage(err))
}

// renderPage executes a named template. Output is buffered so a template
// failure can still produce a clean 500.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.requestLogger(r).Error("failed to render template", zap.String("template", name), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
