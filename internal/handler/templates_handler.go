package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/plantmetrics/mfg-insights-api/internal/domain"
	"github.com/plantmetrics/mfg-insights-api/internal/service"
)

// ============================================================
// Mapping templates — match, list, create, update, delete
// ============================================================

// matchTemplatesHandler checks uploaded headers against the caller's saved
// templates. Always 200: "no match" is a normal answer, not an error.
func matchTemplatesHandler(svc *service.TemplateService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/templates/match")
		defer span.End()

		var req struct {
			UserEmail string   `json:"user_email"`
			Headers   []string `json:"headers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		span.SetAttributes(attribute.String("template.owner", req.UserEmail))

		match, err := svc.FindMatch(ctx, req.UserEmail, req.Headers)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, match)
	}
}

func listTemplatesHandler(svc *service.TemplateService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/templates")
		defer span.End()

		owner := r.URL.Query().Get("owner")
		templates, err := svc.List(ctx, owner)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
	}
}

func createTemplateHandler(svc *service.TemplateService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/templates")
		defer span.End()

		var req struct {
			UserEmail      string                         `json:"user_email"`
			TemplateName   string                         `json:"template_name"`
			Headers        []string                       `json:"headers"`
			MappingConfig  []domain.MappingEntry          `json:"mapping_config"`
			AnalysisConfig *domain.TemplateAnalysisConfig `json:"analysis_config,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		created, err := svc.Save(ctx, req.UserEmail, req.TemplateName, req.Headers, req.MappingConfig, req.AnalysisConfig)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func updateTemplateHandler(svc *service.TemplateService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/templates/{templateId}")
		defer span.End()

		templateID := chi.URLParam(r, "templateId")
		span.SetAttributes(attribute.String("template.id", templateID))

		var req struct {
			UserEmail      string                         `json:"user_email"`
			TemplateName   *string                        `json:"template_name,omitempty"`
			MappingConfig  []domain.MappingEntry          `json:"mapping_config,omitempty"`
			AnalysisConfig *domain.TemplateAnalysisConfig `json:"analysis_config,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		patch := &domain.TemplatePatch{
			TemplateName:   req.TemplateName,
			MappingConfig:  req.MappingConfig,
			AnalysisConfig: req.AnalysisConfig,
		}
		if err := svc.Update(ctx, templateID, req.UserEmail, patch); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "template_id": templateID})
	}
}

func deleteTemplateHandler(svc *service.TemplateService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/templates/{templateId}")
		defer span.End()

		templateID := chi.URLParam(r, "templateId")
		owner := r.URL.Query().Get("owner")
		span.SetAttributes(attribute.String("template.id", templateID))

		if err := svc.Delete(ctx, templateID, owner); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}
