package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/plantmetrics/mfg-insights-api/internal/domain"
	"github.com/plantmetrics/mfg-insights-api/internal/infra/observability"
	"github.com/plantmetrics/mfg-insights-api/internal/port"
)

var templateTracer = otel.Tracer("service/template")

// TemplateService manages saved column-mapping templates and header matching.
type TemplateService struct {
	store   port.TemplateStore
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewTemplateService creates the template service with dependencies injected.
func NewTemplateService(store port.TemplateStore, metrics *observability.Metrics, logger *zap.Logger) *TemplateService {
	return &TemplateService{
		store:   store,
		metrics: metrics,
		logger:  logger,
	}
}

// FindMatch scans the owner's templates, most recently used first, and
// returns the first whose stored signature contains exactly the uploaded
// columns (order ignored). Corrupt signatures are skipped, never fatal.
// A successful match refreshes last_used_at so the winner stays at the
// front of future scans.
func (s *TemplateService) FindMatch(ctx context.Context, owner string, headers []string) (*domain.TemplateMatch, error) {
	ctx, span := templateTracer.Start(ctx, "TemplateService.FindMatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("template.owner", owner),
		attribute.Int("headers.count", len(headers)),
	)

	if owner == "" {
		return nil, &domain.ErrValidation{Field: "user_email", Message: "required"}
	}
	if len(headers) == 0 {
		return nil, &domain.ErrValidation{Field: "headers", Message: "at least one header is required"}
	}

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("template_match", time.Since(start))
	}()

	templates, err := s.store.ListTemplates(ctx, owner)
	if err != nil {
		s.metrics.IncrExternalError("templates")
		return nil, err
	}

	for i := range templates {
		t := &templates[i]

		stored, err := domain.DecodeHeaderSignature(t.HeaderSignature)
		if err != nil {
			var corrupt *domain.ErrCorruptRecord
			if errors.As(err, &corrupt) {
				s.metrics.IncrTemplateLookup("corrupt_skipped")
				s.logger.Warn("skipping template with corrupt header signature",
					zap.String("template_id", t.ID),
					zap.String("owner", owner),
					zap.String("reason", corrupt.Reason),
				)
				continue
			}
			return nil, err
		}

		if !domain.HeadersEqual(stored, headers) {
			continue
		}

		s.metrics.IncrTemplateLookup("hit")
		s.logger.Info("template matched",
			zap.String("template_id", t.ID),
			zap.String("template_name", t.TemplateName),
			zap.String("owner", owner),
		)

		// Best-effort freshness update; a failure here must not fail the match.
		if touchErr := s.store.TouchTemplate(ctx, t.ID); touchErr != nil {
			s.logger.Warn("failed to refresh template last_used_at",
				zap.String("template_id", t.ID),
				zap.Error(touchErr),
			)
		}

		return &domain.TemplateMatch{
			Found:          true,
			TemplateID:     t.ID,
			TemplateName:   t.TemplateName,
			MappingConfig:  t.MappingConfig,
			AnalysisConfig: t.AnalysisConfig,
		}, nil
	}

	s.metrics.IncrTemplateLookup("miss")
	return &domain.TemplateMatch{Found: false}, nil
}

// List returns all templates belonging to one user.
func (s *TemplateService) List(ctx context.Context, owner string) ([]domain.MappingTemplate, error) {
	ctx, span := templateTracer.Start(ctx, "TemplateService.List")
	defer span.End()

	if owner == "" {
		return nil, &domain.ErrValidation{Field: "owner", Message: "required"}
	}
	return s.store.ListTemplates(ctx, owner)
}

// Save validates and stores a new template for the given headers.
func (s *TemplateService) Save(ctx context.Context, owner, name string, headers []string, mapping []domain.MappingEntry, analysisCfg *domain.TemplateAnalysisConfig) (*domain.MappingTemplate, error) {
	ctx, span := templateTracer.Start(ctx, "TemplateService.Save")
	defer span.End()
	span.SetAttributes(attribute.String("template.owner", owner))

	if owner == "" {
		return nil, &domain.ErrValidation{Field: "user_email", Message: "required"}
	}
	trimmedName, err := validateTemplateName(name)
	if err != nil {
		return nil, err
	}
	if len(headers) == 0 {
		return nil, &domain.ErrValidation{Field: "headers", Message: "at least one header is required"}
	}
	if err := validateMappingEntries(mapping); err != nil {
		return nil, err
	}
	if err := validateTemplateAnalysisConfig(analysisCfg); err != nil {
		return nil, err
	}

	t := &domain.MappingTemplate{
		ID:              uuid.New().String(),
		UserEmail:       owner,
		TemplateName:    trimmedName,
		HeaderSignature: domain.EncodeHeaderSignature(headers),
		MappingConfig:   mapping,
		AnalysisConfig:  analysisCfg,
		CreatedAt:       time.Now(),
	}

	created, err := s.store.CreateTemplate(ctx, t)
	if err != nil {
		s.logger.Error("failed to save template",
			zap.String("owner", owner),
			zap.String("template_name", trimmedName),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("template saved",
		zap.String("template_id", created.ID),
		zap.String("owner", owner),
		zap.String("template_name", created.TemplateName),
	)
	return created, nil
}

// Update applies a partial update to a template the caller owns.
func (s *TemplateService) Update(ctx context.Context, id, owner string, patch *domain.TemplatePatch) error {
	ctx, span := templateTracer.Start(ctx, "TemplateService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("template.id", id))

	if id == "" {
		return &domain.ErrValidation{Field: "templateId", Message: "required"}
	}
	if owner == "" {
		return &domain.ErrValidation{Field: "user_email", Message: "required"}
	}
	if patch == nil {
		return &domain.ErrValidation{Field: "body", Message: "no fields to update"}
	}
	if patch.TemplateName != nil {
		trimmed, err := validateTemplateName(*patch.TemplateName)
		if err != nil {
			return err
		}
		patch.TemplateName = &trimmed
	}
	if patch.MappingConfig != nil {
		if err := validateMappingEntries(patch.MappingConfig); err != nil {
			return err
		}
	}
	if err := validateTemplateAnalysisConfig(patch.AnalysisConfig); err != nil {
		return err
	}

	if err := s.store.UpdateTemplate(ctx, id, owner, patch); err != nil {
		return err
	}

	s.logger.Info("template updated",
		zap.String("template_id", id),
		zap.String("owner", owner),
	)
	return nil
}

// Delete removes a template the caller owns. Deleting a template that no
// longer exists succeeds, so retries are safe.
func (s *TemplateService) Delete(ctx context.Context, id, owner string) error {
	ctx, span := templateTracer.Start(ctx, "TemplateService.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("template.id", id))

	if id == "" {
		return &domain.ErrValidation{Field: "templateId", Message: "required"}
	}
	if owner == "" {
		return &domain.ErrValidation{Field: "owner", Message: "required"}
	}

	if err := s.store.DeleteTemplate(ctx, id, owner); err != nil {
		s.logger.Error("failed to delete template",
			zap.String("template_id", id),
			zap.String("owner", owner),
			zap.Error(err),
		)
		return err
	}

	s.logger.Info("template deleted",
		zap.String("template_id", id),
		zap.String("owner", owner),
	)
	return nil
}
