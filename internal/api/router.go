// Package api provides the HTTP API for the Quadra exports service.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/quadra/exports-api/internal/api/handler"
	"github.com/quadra/exports-api/internal/api/middleware"
	"github.com/quadra/exports-api/internal/export"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version       string
	BuildTime     string
	Logger        zerolog.Logger
	ServiceName   string
	Metrics       *middleware.Metrics
	ExportService *export.Service
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "quadra-exports-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.RequireJSON)          // Reject non-JSON bodies
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime)
	exportHandler := handler.NewExportHandler(cfg.ExportService)

	submitRateLimit := middleware.RateLimitByIP(middleware.SubmitRateLimit)     // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit) // 100 req/min

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public, unthrottled)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
		})

		r.Route("/exports", func(r chi.Router) {
			r.With(standardRateLimit).Get("/", exportHandler.ListExports)
			// Submissions fan out background work, so they are throttled
			// tighter than reads.
			r.With(submitRateLimit).Post("/", exportHandler.CreateExport)

			r.Route("/{exportId}", func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Get("/", exportHandler.GetExport)
				r.Post("/downloads", exportHandler.RequestDownload)
			})
		})
	})

	return r
}
