// package server contains middleware & handlers for the render task web service
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/motifd/internal/auth"
	"github.com/desertthunder/motifd/internal/paths"
	"github.com/desertthunder/motifd/internal/shared"
	"github.com/desertthunder/motifd/internal/tasks"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, authentication, CORS, rate limiting, etc.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers in the render service.
// Implementations handle specific endpoints (submission, task lifecycle, artifact downloads).
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the mux patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
// Implementations register handlers, apply middleware, and configure the HTTP server.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Server ties the scheduler and its gates to the HTTP surface.
type Server struct {
	cfg       shared.ServerConfig
	scheduler *tasks.Scheduler
	logger    *log.Logger
	http      *http.Server
}

// New wires the full middleware stack and route table and returns a Server
// ready to start.
func New(cfg shared.Config, scheduler *tasks.Scheduler, gate *auth.Gate, guard *paths.Guard, logger *log.Logger) *Server {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	router := NewBasicRouter()
	router.Use(RequestLogger(logger), RateLimit(cfg.Server.RateLimitRPS, logger))

	router.Handler(&RenderHandler{
		Scheduler: scheduler,
		Gate:      gate,
		AllowSync: cfg.Render.AllowSync,
	})
	router.Handler(&TaskHandler{Scheduler: scheduler, Gate: gate})
	router.Handler(&DownloadHandler{Gate: gate, Guard: guard, OutputDir: cfg.Paths.OutputDir})
	router.Handle(http.MethodGet, "/health", http.HandlerFunc(handleHealth))

	return &Server{
		cfg:       cfg.Server,
		scheduler: scheduler,
		logger:    logger,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, fmt.Sprintf("%d", cfg.Server.Port)),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Addr returns the address the server binds to.
func (s *Server) Addr() string { return s.http.Addr }

// Handler returns the fully wired route table, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start serves requests until ctx is cancelled, then drains in-flight
// requests before returning.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusOK, map[string]string{"status": "ok"})
}
