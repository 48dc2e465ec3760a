// Package api exposes the HTTP surface: report uploads, job inspection and
// triggering, file downloads and schedule timing management.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/nilay/reportgen/internal/api/handler"
	mw "github.com/nilay/reportgen/internal/api/middleware"
	"github.com/nilay/reportgen/internal/config"
	"github.com/nilay/reportgen/internal/core"
	"github.com/nilay/reportgen/internal/upload"
)

type Server struct {
	router   chi.Router
	logger   zerolog.Logger
	services *core.Services
	pool     *pgxpool.Pool
	runner   handler.Runner
	cfg      *config.Config
}

func NewServer(logger zerolog.Logger, pool *pgxpool.Pool, runner handler.Runner, cfg *config.Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		logger:   logger,
		services: core.NewServices(pool),
		pool:     pool,
		runner:   runner,
		cfg:      cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	saver := upload.NewSaver(s.services.File, s.cfg.DocumentDir, s.cfg.MaxUploadBytes, s.logger)

	s.router.Route("/api/v1", func(r chi.Router) {
		report := handler.NewReport(saver, s.services.Job, s.services.ScheduleTiming,
			s.cfg.DefaultScheduleTime, s.cfg.MaxUploadBytes)
		r.Post("/reports", report.Create)

		job := handler.NewJob(s.services.Job, s.runner)
		r.Get("/jobs", job.List)
		r.Get("/jobs/{uid}", job.Get)
		r.Post("/jobs/{uid}/run", job.Run)

		file := handler.NewFile(s.services.File)
		r.Get("/files/{id}/download", file.Download)

		timing := handler.NewScheduleTiming(s.services.ScheduleTiming, s.cfg.DefaultScheduleTime)
		r.Get("/schedule-timings/{jobType}", timing.Get)
		r.Put("/schedule-timings/{jobType}", timing.Update)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.pool.Ping(ctx); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Handler exposes the router for the HTTP server and for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
