package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opencourses/catalog-service/internal/ingest"
	"github.com/opencourses/catalog-service/internal/service"
	"github.com/opencourses/catalog-service/pkg/health"
	"github.com/opencourses/catalog-service/pkg/middleware"
)

// NewRouter creates a chi router with all catalog service routes registered.
// Read endpoints are public; mutating endpoints require a bearer token.
func NewRouter(
	catalogService *service.CatalogService,
	pipeline *ingest.Pipeline,
	resyncer *service.Resyncer,
	healthHandler *health.Handler,
	tokenValidator middleware.TokenValidator,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS)
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics("catalog"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	requireAuth := middleware.Auth(tokenValidator)

	courseHandler := NewCourseHandler(catalogService, logger)

	r.Route("/api/v1/courses", func(r chi.Router) {
		r.Get("/", courseHandler.ListCourses)
		r.Get("/{id}", courseHandler.GetCourse)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Use(ContentTypeJSON)
			r.Post("/", courseHandler.CreateCourse)
			r.Put("/{id}", courseHandler.ReplaceCourse)
			r.Delete("/{id}", courseHandler.DeleteCourse)
		})
	})

	searchHandler := NewSearchHandler(catalogService, logger)
	r.Get("/api/v1/search", searchHandler.Search)

	r.Get("/api/v1/stats", courseHandler.GetStatistics)

	ingestHandler := NewIngestHandler(pipeline, logger)
	r.With(requireAuth).Post("/api/v1/catalog/ingest", ingestHandler.Ingest)

	adminHandler := NewAdminHandler(resyncer, logger)
	r.With(requireAuth).Post("/api/v1/admin/resync", adminHandler.Resync)

	return r
}
