// Package server serves file-backed templates over HTTP, streaming each
// page as it renders, and tells connected browsers to reload when the
// templates change on disk.
package server

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-multierror"

	"github.com/conneroisu/shadowstream/internal/config"
	"github.com/conneroisu/shadowstream/internal/logging"
	"github.com/conneroisu/shadowstream/internal/render"
	"github.com/conneroisu/shadowstream/internal/source"
	"github.com/conneroisu/shadowstream/internal/watcher"
)

const shutdownTimeout = 5 * time.Second

// Server is the page streaming server.
type Server struct {
	cfg      *config.Config
	renderer *render.Renderer
	loader   *source.Loader
	hub      *Hub
	logger   logging.Logger

	mu         sync.Mutex
	httpServer *http.Server
	isShutdown bool
}

// New creates a server rendering templates from loader with renderer.
func New(cfg *config.Config, renderer *render.Renderer, loader *source.Loader, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("server")
	return &Server{
		cfg:      cfg,
		renderer: renderer,
		loader:   loader,
		hub:      NewHub(logger, "localhost:*", "127.0.0.1:*", net.JoinHostPort(cfg.Server.Host, "*")),
		logger:   logger,
	}
}

// Hub returns the reload hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestID(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.hub.ServeHTTP)
	r.Get("/*", s.handlePage)
	return r
}

// Start listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isShutdown {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	srv := &http.Server{
		Addr:              s.cfg.Server.Address(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info(ctx, "Server listening", "address", "http://"+srv.Addr, "reload", s.cfg.Server.Reload)

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown disconnects reload clients and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.isShutdown {
		s.mu.Unlock()
		return nil
	}
	s.isShutdown = true
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info(ctx, "Shutting down server")
	s.hub.Close()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// HandleChanges is a watcher.ChangeHandler. Changed templates are
// forgotten so the next request re-reads them, a changed data file is
// reloaded, and browsers are told to reload.
func (s *Server) HandleChanges(ctx context.Context, events []watcher.ChangeEvent) error {
	var (
		result      *multierror.Error
		names       []string
		dataChanged bool
	)
	dataPath := s.cfg.Templates.Data
	for _, event := range events {
		if dataPath != "" && filepath.Clean(event.Path) == filepath.Clean(dataPath) {
			if err := s.loader.LoadData(dataPath); err != nil {
				result = multierror.Append(result, err)
				continue
			}
			dataChanged = true
			continue
		}
		if name, ok := s.loader.Name(event.Path); ok {
			s.loader.Forget(name)
			names = append(names, name)
		}
	}
	if len(names) == 0 && !dataChanged {
		return result.ErrorOrNil()
	}

	s.logger.Info(ctx, "Templates changed", "templates", names, "data", dataChanged)
	msg := ReloadMessage{Type: "reload", Templates: names, Timestamp: time.Now()}
	if dataChanged {
		msg.Templates = nil
	}
	if err := s.hub.Broadcast(msg); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
