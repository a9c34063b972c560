// Package server exposes the scrape and optimization engines over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pricewise/pricewise/internal/batch"
	"github.com/pricewise/pricewise/internal/optimizer"
	"github.com/pricewise/pricewise/internal/scraper"
)

// Server wires the HTTP API to the scrape orchestrator and the price
// optimization engines.
type Server struct {
	orch  *scraper.Orchestrator
	opt   *optimizer.Optimizer
	batch *batch.Coordinator
	log   *zap.Logger
}

// New creates a Server.
func New(orch *scraper.Orchestrator, opt *optimizer.Optimizer, bc *batch.Coordinator) *Server {
	return &Server{
		orch:  orch,
		opt:   opt,
		batch: bc,
		log:   zap.L().With(zap.String("component", "server")),
	}
}

// Handler builds the chi router with the full API surface.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Post("/start-scraping", s.handleStartScraping)
	r.Get("/scraping-progress/{taskID}", s.handleScrapingProgress)
	r.Get("/scraping-results/{taskID}", s.handleScrapingResults)
	r.Post("/optimize-price", s.handleOptimizePrice)
	r.Post("/optimize-batch", s.handleOptimizeBatch)

	return r
}

// Run serves the API until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
