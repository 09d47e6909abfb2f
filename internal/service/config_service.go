package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/plantmetrics/mfg-insights-api/internal/domain"
	"github.com/plantmetrics/mfg-insights-api/internal/infra/observability"
	"github.com/plantmetrics/mfg-insights-api/internal/port"
)

var configTracer = otel.Tracer("service/config")

// ConfigService serves and versions per-customer analysis configuration.
type ConfigService struct {
	store   port.AnalysisConfigStore
	cache   port.Cache[*domain.CustomerAnalysisConfig]
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewConfigService creates the config service with dependencies injected.
func NewConfigService(store port.AnalysisConfigStore, cache port.Cache[*domain.CustomerAnalysisConfig], metrics *observability.Metrics, logger *zap.Logger) *ConfigService {
	return &ConfigService{
		store:   store,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
	}
}

// GetEffective returns the customer's stored config, or the synthesized
// default when none exists. The default is never written back; a customer
// who has never customized anything has no row.
func (s *ConfigService) GetEffective(ctx context.Context, customerProfileID string) (*domain.CustomerAnalysisConfig, error) {
	ctx, span := configTracer.Start(ctx, "ConfigService.GetEffective")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerProfileID))

	if customerProfileID == "" {
		return nil, &domain.ErrValidation{Field: "customerId", Message: "required"}
	}

	cacheKey := fmt.Sprintf("analysis_config:%s", customerProfileID)
	if cached, ok := s.cache.Get(cacheKey); ok {
		s.metrics.IncrCacheHit("analysis_config")
		return cached, nil
	}
	s.metrics.IncrCacheMiss("analysis_config")

	cfg, err := s.store.GetConfig(ctx, customerProfileID)
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			return domain.DefaultAnalysisConfig(customerProfileID), nil
		}
		s.metrics.IncrExternalError("configs")
		return nil, err
	}

	s.cache.Set(cacheKey, cfg)
	return cfg, nil
}

// Upsert merges a patch over the customer's current effective config and
// persists the result. The first write for a customer stores version 1;
// each later write increments the stored version by exactly 1.
//
// The read-then-write is not atomic: two concurrent upserts for the same
// customer can race, and the last writer wins. Acceptable for a config
// edited by a human through a settings screen.
func (s *ConfigService) Upsert(ctx context.Context, customerProfileID string, patch *domain.AnalysisConfigPatch) (*domain.CustomerAnalysisConfig, error) {
	ctx, span := configTracer.Start(ctx, "ConfigService.Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerProfileID))

	if customerProfileID == "" {
		return nil, &domain.ErrValidation{Field: "customerId", Message: "required"}
	}
	if err := validateConfigPatch(patch); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("config_upsert", time.Since(start))
	}()

	cacheKey := fmt.Sprintf("analysis_config:%s", customerProfileID)

	existing, err := s.store.GetConfig(ctx, customerProfileID)
	if err != nil {
		var notFound *domain.ErrNotFound
		if !errors.As(err, &notFound) {
			s.metrics.IncrExternalError("configs")
			return nil, err
		}

		// First customization: default + patch, stored as version 1.
		cfg := domain.DefaultAnalysisConfig(customerProfileID)
		cfg.Apply(patch)
		cfg.Version = 1

		created, err := s.store.InsertConfig(ctx, cfg)
		if err != nil {
			s.logger.Error("failed to insert analysis config",
				zap.String("customer_id", customerProfileID),
				zap.Error(err),
			)
			return nil, err
		}

		s.cache.Delete(cacheKey)
		s.logger.Info("analysis config created",
			zap.String("customer_id", customerProfileID),
			zap.Int("version", created.Version),
		)
		return created, nil
	}

	existing.Apply(patch)
	existing.Version++

	updated, err := s.store.UpdateConfig(ctx, existing)
	if err != nil {
		s.logger.Error("failed to update analysis config",
			zap.String("customer_id", customerProfileID),
			zap.Error(err),
		)
		return nil, err
	}

	s.cache.Delete(cacheKey)
	s.logger.Info("analysis config updated",
		zap.String("customer_id", customerProfileID),
		zap.Int("version", updated.Version),
	)
	return updated, nil
}
