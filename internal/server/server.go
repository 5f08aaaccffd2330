// Package server exposes the index registry over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Aman-CERP/annserve/internal/ann"
	"github.com/Aman-CERP/annserve/internal/ooi"
)

// Options configures the HTTP server.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// ShutdownTimeout bounds graceful shutdown after the context ends.
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
	// Stores, when set, adds external store circuits to GET /status.
	Stores *ooi.Stores
}

// Server serves queries, health and refresh requests for a registry.
type Server struct {
	registry *ann.Registry
	cross    *ann.CrossResolver
	opts     Options
	log      *slog.Logger
	started  time.Time
	handler  http.Handler
}

// New creates a server. Routes are registered immediately; nothing
// listens until ListenAndServe.
func New(registry *ann.Registry, cross *ann.CrossResolver, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		registry: registry,
		cross:    cross,
		opts:     opts,
		log:      opts.Logger,
		started:  time.Now(),
	}
	s.handler = s.withRequestID(s.routes())
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on Options.Addr until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.Info("Server listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("Server stopped")
	return nil
}
