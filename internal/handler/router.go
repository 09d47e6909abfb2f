package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/plantmetrics/mfg-insights-api/internal/infra/observability"
	"github.com/plantmetrics/mfg-insights-api/internal/service"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(
	templateSvc *service.TemplateService,
	configSvc *service.ConfigService,
	uploadSvc *service.UploadService,
	metrics *observability.Metrics,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// 1. Mapping templates
		// =============================================
		r.Post("/templates/match", matchTemplatesHandler(templateSvc, logger))
		r.Get("/templates", listTemplatesHandler(templateSvc, logger))
		r.Post("/templates", createTemplateHandler(templateSvc, logger))
		r.Patch("/templates/{templateId}", updateTemplateHandler(templateSvc, logger))
		r.Delete("/templates/{templateId}", deleteTemplateHandler(templateSvc, logger))

		// =============================================
		// 2. Customer analysis configuration
		// =============================================
		r.Get("/customers/{customerId}/analysis-config", getConfigHandler(configSvc, logger))
		r.Put("/customers/{customerId}/analysis-config", putConfigHandler(configSvc, logger))

		// =============================================
		// 3. CSV upload pipeline
		// =============================================
		r.Post("/upload/csv", uploadCSVHandler(uploadSvc, logger))
		r.Post("/upload/csv/analyze", analyzeCSVHandler(uploadSvc, logger))

		// =============================================
		// 4. Ingestion metrics snapshot
		// =============================================
		r.Get("/metrics/ingest", ingestMetricsHandler(metrics))
	})

	return r
}

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}
}

func ingestMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetIngestSnapshot())
	}
}
