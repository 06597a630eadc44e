// Package server exposes rank editing as a JSON HTTP API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ppiankov/ranker/internal/model"
	"github.com/ppiankov/ranker/internal/pipeline"
)

// Server is the REST API server.
type Server struct {
	httpServer *http.Server
	log        zerolog.Logger
}

// NewRouter builds the route tree.
func NewRouter(cfg model.ServerConfig, p *pipeline.Pipeline, log zerolog.Logger) http.Handler {
	handlers := NewHandlers(p, log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(Recovery(log))
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(DenyFrame)
	r.Use(MaxBodySize(cfg.MaxBodyBytes))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/healthz", handlers.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/wikis", handlers.GetWikis)
		r.Get("/edit/{wiki}/{entity}/{property}", handlers.GetEditForm)

		r.Group(func(r chi.Router) {
			r.Use(RequireBearer(log))

			r.Route("/batch/list", func(r chi.Router) {
				r.Post("/collective/{wiki}/set/{rank}", handlers.batchList(pipeline.ModeSet))
				r.Post("/collective/{wiki}/increment", handlers.batchList(pipeline.ModeIncrement))
				r.Post("/individual/{wiki}", handlers.batchList(pipeline.ModeIndividual))
			})

			r.Route("/batch/query", func(r chi.Router) {
				r.Post("/collective/{wiki}/set/{rank}", handlers.batchQuery(pipeline.ModeSet))
				r.Post("/collective/{wiki}/increment", handlers.batchQuery(pipeline.ModeIncrement))
				r.Post("/individual/{wiki}", handlers.batchQuery(pipeline.ModeIndividual))
			})

			r.Post("/edit/{wiki}/{entity}/{property}/set/{rank}", handlers.edit(false))
			r.Post("/edit/{wiki}/{entity}/{property}/increment", handlers.edit(true))
		})
	})

	return r
}

// New creates and wires up the API server. It does NOT start listening;
// call Run() for that.
func New(cfg model.ServerConfig, p *pipeline.Pipeline, log zerolog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewRouter(cfg, p, log),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log: log,
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server fails.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.httpServer.Addr).Msg("API server listening")
		err := s.httpServer.ListenAndServe()
		if err == http.ErrServerClosed {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
