// Package api implements the MoziChem HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sinagilassi/mozichem-ai/internal/chat"
	"github.com/sinagilassi/mozichem-ai/internal/connwatch"
	"github.com/sinagilassi/mozichem-ai/internal/llm"
	"github.com/sinagilassi/mozichem-ai/internal/usage"
	"github.com/sinagilassi/mozichem-ai/internal/web"
)

// ShutdownTimeout bounds graceful shutdown after /config/exit or a
// cancelled context.
const ShutdownTimeout = 10 * time.Second

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// UsageReporter is the read side of the usage store.
type UsageReporter interface {
	Summary(ctx context.Context, start, end time.Time) (*usage.Summary, error)
	SummaryByModel(ctx context.Context, start, end time.Time) (map[string]*usage.Summary, error)
}

// Options configures the listener and the outer surfaces.
type Options struct {
	Address     string
	Port        int
	CORSOrigins []string
	// UIDir serves a custom UI at /ui/; when empty the built-in console
	// is served there.
	UIDir string
}

// Server is the HTTP API server.
type Server struct {
	opts     Options
	manager  *chat.Manager
	chat     *chat.Handler
	usage    UsageReporter
	services func() []connwatch.Status
	logger   *slog.Logger

	server   *http.Server
	running  atomic.Bool
	exit     chan struct{}
	exitOnce sync.Once
}

// NewServer creates a new API server around a chat manager and the
// handler that runs turns on it.
func NewServer(opts Options, manager *chat.Manager, handler *chat.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if handler == nil {
		handler = &chat.Handler{Agents: manager, Logger: logger}
	}
	return &Server{
		opts:    opts,
		manager: manager,
		chat:    handler,
		logger:  logger.With("component", "api"),
		exit:    make(chan struct{}),
	}
}

// SetUsage configures the usage store reported by /v1/stats.
func (s *Server) SetUsage(u UsageReporter) {
	s.usage = u
}

// SetServiceStatus reports watched dependencies on /health.
func (s *Server) SetServiceStatus(fn func() []connwatch.Status) {
	s.services = fn
}

// Done is closed when a client requests shutdown through /config/exit.
func (s *Server) Done() <-chan struct{} {
	return s.exit
}

// Handler returns the routed API with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.withLogging)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)

	r.Get("/agent-initialization", s.handleAgentInitialization)
	r.Post("/agent-config", s.handleAgentConfig)
	r.Post("/llm-config", s.handleLLMConfig)
	r.Get("/llm/ping", s.handleLLMPing)

	r.Post("/chat", s.handleChat)
	r.Post("/chat/stream", s.handleChatStream)
	r.Get("/ws/chat", s.handleWebSocket)

	r.Get("/config/summary", s.handleConfigSummary)
	r.Get("/config/exit", s.handleExit)

	r.Get("/v1/stats", s.handleStats)
	r.Get("/threads", s.handleThreadList)
	r.Get("/threads/{id}", s.handleThreadGet)
	r.Delete("/threads/{id}", s.handleThreadDelete)

	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusMovedPermanently)
	})
	r.Handle("/ui/*", s.uiHandler())

	return r
}

func (s *Server) uiHandler() http.Handler {
	if s.opts.UIDir != "" {
		return http.StripPrefix("/ui/", http.FileServer(http.Dir(s.opts.UIDir)))
	}
	console := web.NewWebServer(web.Config{
		BrandName:   "MoziChem",
		BasePath:    "/ui",
		StatsFunc:   s.webStats,
		AgentFunc:   s.webAgent,
		ThreadsFunc: s.webThreads,
		Logger:      s.logger,
	})
	return http.StripPrefix("/ui", console.Handler())
}

// Start serves until ctx is cancelled, /config/exit is called, or the
// listener fails. A graceful shutdown returns nil.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.opts.Address, strconv.Itoa(s.opts.Port)))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second, // Long for streaming responses
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(ln)
	}()
	s.running.Store(true)
	s.logger.Info("starting API server", "address", ln.Addr().String())

	select {
	case err := <-errCh:
		s.running.Store(false)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	case <-s.exit:
	}

	s.running.Store(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down API server")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestExit() {
	s.exitOnce.Do(func() { close(s.exit) })
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if s.logger.Enabled(r.Context(), llm.LevelTrace) && r.Body != nil && r.Method == http.MethodPost {
			if body, truncated, err := captureBody(r, traceBodyLimit); err == nil {
				s.logger.Log(r.Context(), llm.LevelTrace, "request body",
					"path", r.URL.Path,
					"body", string(body),
					"truncated", truncated,
				)
			}
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	errType := "invalid_request_error"
	if code >= 500 {
		errType = "server_error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    errType,
			"code":    code,
		},
	}, s.logger)
}

func (s *Server) ok(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, v, s.logger)
}
