package service

import (
	"strings"

	"github.com/plantmetrics/mfg-insights-api/internal/domain"
)

// ============================================================
// Input validation shared by template and config operations
// ============================================================

// validateTemplateName checks and normalizes a template name.
// Returns the trimmed name.
func validateTemplateName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", &domain.ErrValidation{Field: "template_name", Message: "required"}
	}
	if len(trimmed) > domain.MaxTemplateNameLen {
		return "", &domain.ErrValidation{Field: "template_name", Message: "must be at most 50 characters"}
	}
	return trimmed, nil
}

// validateMappingEntries rejects an empty mapping or entries with blank
// endpoints. A mapping that doesn't say which column feeds which field is
// useless to the matcher.
func validateMappingEntries(entries []domain.MappingEntry) error {
	if len(entries) == 0 {
		return &domain.ErrValidation{Field: "mapping_config", Message: "at least one mapping entry is required"}
	}
	for _, e := range entries {
		if strings.TrimSpace(e.SourceColumn) == "" {
			return &domain.ErrValidation{Field: "mapping_config", Message: "source_column must not be empty"}
		}
		if strings.TrimSpace(e.TargetField) == "" {
			return &domain.ErrValidation{Field: "mapping_config", Message: "target_field must not be empty"}
		}
	}
	return nil
}

// validateTemplateAnalysisConfig checks an optional per-template override.
// Omitting the whole config is fine, but a config that is present must carry
// both labor_rate_hourly and scrap_cost_per_unit: a missing or zero rate
// would silently wipe out every cost calculation downstream.
func validateTemplateAnalysisConfig(cfg *domain.TemplateAnalysisConfig) error {
	if cfg == nil {
		return nil
	}
	if cfg.LaborRateHourly == nil {
		return &domain.ErrValidation{Field: "labor_rate_hourly", Message: "required when analysis_config is provided"}
	}
	if *cfg.LaborRateHourly <= 0 {
		return &domain.ErrValidation{Field: "labor_rate_hourly", Message: "must be greater than zero"}
	}
	if cfg.ScrapCostPerUnit == nil {
		return &domain.ErrValidation{Field: "scrap_cost_per_unit", Message: "required when analysis_config is provided"}
	}
	if *cfg.ScrapCostPerUnit <= 0 {
		return &domain.ErrValidation{Field: "scrap_cost_per_unit", Message: "must be greater than zero"}
	}
	if cfg.VarianceThresholdPct != nil && *cfg.VarianceThresholdPct <= 0 {
		return &domain.ErrValidation{Field: "variance_threshold_pct", Message: "must be greater than zero"}
	}
	if cfg.PatternMinOrders != nil && *cfg.PatternMinOrders < 1 {
		return &domain.ErrValidation{Field: "pattern_min_orders", Message: "must be at least 1"}
	}
	return nil
}

// validateConfigPatch checks a customer analysis config patch before merge.
func validateConfigPatch(p *domain.AnalysisConfigPatch) error {
	if p == nil {
		return nil
	}
	if p.CostLaborRateHourly != nil && *p.CostLaborRateHourly <= 0 {
		return &domain.ErrValidation{Field: "cost_labor_rate_hourly", Message: "must be greater than zero"}
	}
	if p.QualityScrapCostPerUnit != nil && *p.QualityScrapCostPerUnit <= 0 {
		return &domain.ErrValidation{Field: "quality_scrap_cost_per_unit", Message: "must be greater than zero"}
	}
	if p.CostVarianceThresholdPct != nil && *p.CostVarianceThresholdPct <= 0 {
		return &domain.ErrValidation{Field: "cost_variance_threshold_pct", Message: "must be greater than zero"}
	}
	if p.CostMinVarianceAmount != nil && *p.CostMinVarianceAmount < 0 {
		return &domain.ErrValidation{Field: "cost_min_variance_amount", Message: "must not be negative"}
	}
	if p.ConfidenceMinPct != nil && (*p.ConfidenceMinPct < 0 || *p.ConfidenceMinPct > 100) {
		return &domain.ErrValidation{Field: "confidence_min_pct", Message: "must be between 0 and 100"}
	}
	if p.AnnualProjectionFactor != nil && *p.AnnualProjectionFactor <= 0 {
		return &domain.ErrValidation{Field: "annual_projection_factor", Message: "must be greater than zero"}
	}
	if p.PatternMinOrders != nil && *p.PatternMinOrders < 1 {
		return &domain.ErrValidation{Field: "pattern_min_orders", Message: "must be at least 1"}
	}
	return nil
}
