// Package server exposes the staging service over a local HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"docstage/internal/stage"
)

// shutdownTimeout bounds how long in-flight requests may run after the
// serve context is cancelled.
const shutdownTimeout = 15 * time.Second

// maxMemory is the multipart buffer kept in memory before spilling to disk.
const maxMemory = 32 << 20

// uploadFilesPerRequest and multipartOverhead size the default request body
// limit from MaxFileSize.
const (
	uploadFilesPerRequest = 4
	multipartOverhead     = 1 << 20
)

// Options configure a Server.
type Options struct {
	// MaxFileSize rejects uploaded files above this many bytes. Zero means no limit.
	MaxFileSize int64
	// MaxRequestSize caps an upload request body. Zero derives it from MaxFileSize.
	MaxRequestSize int64
}

// requestLimit returns the upload body limit, or 0 when uploads are unbounded.
func (o Options) requestLimit() int64 {
	if o.MaxRequestSize > 0 {
		return o.MaxRequestSize
	}
	if o.MaxFileSize > 0 {
		return o.MaxFileSize*uploadFilesPerRequest + multipartOverhead
	}
	return 0
}

// Server routes HTTP requests to a stage.Service.
type Server struct {
	service *stage.Service
	logger  *slog.Logger
	metrics *metrics
	opts    Options
	router  chi.Router
}

// New creates a Server with routes and middleware configured.
func New(service *stage.Service, logger *slog.Logger, opts Options) *Server {
	s := &Server{
		service: service,
		logger:  logger,
		metrics: newMetrics(),
		opts:    opts,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.metrics.middleware)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.handler())

	r.Route("/api/v1/collections", func(r chi.Router) {
		r.Get("/", s.handleCollections)
		r.Route("/{collection}/records", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.Post("/", s.handleAppend)
			r.Delete("/{id}", s.handleRemove)
			r.Get("/{id}/payload", s.handlePayload)
		})
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server started", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down http server")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return <-errCh
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := newStatusWriter(w)
		next.ServeHTTP(wrapped, r)

		level := slog.LevelDebug
		switch {
		case wrapped.statusCode >= 500:
			level = slog.LevelError
		case wrapped.statusCode >= 400:
			level = slog.LevelWarn
		}
		s.logger.LogAttrs(r.Context(), level, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", wrapped.statusCode),
			slog.Duration("duration", time.Since(start)),
			slog.Int64("bytes", wrapped.written),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
