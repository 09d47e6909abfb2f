// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/plantmetrics/mfg-insights-api/internal/domain"
)

// TemplateStore owns MappingTemplate records. Ownership is enforced inside
// the store by combined id+owner filters, not by a separate authorization
// layer, so a caller can never touch another user's template.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, t *domain.MappingTemplate) (*domain.MappingTemplate, error)
	UpdateTemplate(ctx context.Context, id, owner string, patch *domain.TemplatePatch) error
	DeleteTemplate(ctx context.Context, id, owner string) error
	ListTemplates(ctx context.Context, owner string) ([]domain.MappingTemplate, error)
	TouchTemplate(ctx context.Context, id string) error
}

// AnalysisConfigStore persists the versioned per-customer analysis
// configuration. Get returns domain.ErrNotFound when no record exists; the
// service synthesizes the default in that case.
type AnalysisConfigStore interface {
	GetConfig(ctx context.Context, customerProfileID string) (*domain.CustomerAnalysisConfig, error)
	InsertConfig(ctx context.Context, cfg *domain.CustomerAnalysisConfig) (*domain.CustomerAnalysisConfig, error)
	UpdateConfig(ctx context.Context, cfg *domain.CustomerAnalysisConfig) (*domain.CustomerAnalysisConfig, error)
}

// WorkOrderStore persists normalized upload batches.
type WorkOrderStore interface {
	InsertWorkOrders(ctx context.Context, orders []domain.WorkOrder) (int, error)
}

// MappingSuggester asks the AI service for a best-effort column mapping.
type MappingSuggester interface {
	Suggest(ctx context.Context, req *domain.SuggestRequest) (*domain.SuggestResponse, error)
}

// AnalysisCaller invokes the external analysis service for a stored batch.
type AnalysisCaller interface {
	Analyze(ctx context.Context, req *domain.AnalysisRequest) (*domain.AnalysisResponse, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
