package handler

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/plantmetrics/mfg-insights-api/internal/domain"
	"github.com/plantmetrics/mfg-insights-api/internal/service"
)

// ============================================================
// CSV upload — full pipeline and analyze-only
// ============================================================

// uploadCSVHandler runs the full ingestion pipeline. A result that needs
// manual mapping is still 200: the body carries needs_mapping and the
// suggested mapping for the confirmation dialog.
func uploadCSVHandler(svc *service.UploadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/upload/csv")
		defer span.End()

		var req domain.UploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		span.SetAttributes(
			attribute.String("customer.id", req.CustomerID),
			attribute.String("upload.filename", req.Filename),
		)

		result, err := svc.Upload(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// analyzeCSVHandler inspects a file and returns mapping suggestions without
// storing anything.
func analyzeCSVHandler(svc *service.UploadService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/upload/csv/analyze")
		defer span.End()

		var req domain.UploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		report, err := svc.Analyze(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}
