package cli

import (
	"net/http"

	"github.com/rpattn/eligibility/internal/config"
	"github.com/rpattn/eligibility/internal/ingestion"
	"github.com/rpattn/eligibility/internal/jobstatus"
	"github.com/rpattn/eligibility/internal/matching"
	"github.com/rpattn/eligibility/internal/middleware"
	"github.com/rpattn/eligibility/internal/report"

	"github.com/rs/cors"
	"go.uber.org/zap"
)

// newRouter mounts every API handler behind CORS, logging and panic recovery.
func newRouter(b *backend, s *services, cfg config.Config, logger *zap.Logger) http.Handler {
	uploads := ingestion.NewHTTPHandler(s.ingestion, cfg.Server.MaxUploadBytes, logger.Named("http.ingestion"))
	status := jobstatus.NewHTTPHandler(s.projector, b.users, logger.Named("http.status"))
	reports := report.NewHTTPHandler(s.reports, logger.Named("http.report"))
	matches := middleware.DataLoaderMiddleware(b.products)(
		matching.NewHTTPHandler(b.matches, b.products, logger.Named("http.matching")),
	)

	mux := http.NewServeMux()
	mux.Handle("/api/uploads", uploads)
	mux.Handle("/api/uploads/{jobId}", uploads)
	mux.Handle("/api/jobs/{jobId}/cancel", uploads)
	mux.Handle("/api/jobs/{jobId}/errors", uploads)
	mux.Handle("/api/jobs/{jobId}/status", status)
	mux.Handle("/api/jobs/{jobId}/details", status)
	mux.Handle("/api/jobs/{jobId}/report.xlsx", reports)
	mux.Handle("/api/users/{userId}/matches", matches)
	mux.HandleFunc("GET /health", healthHandler(b))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
	})

	return corsHandler.Handler(
		middleware.LoggingMiddleware(logger.Named("http"))(
			middleware.Recover(logger)(mux),
		),
	)
}
