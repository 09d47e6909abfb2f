package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/plantmetrics/mfg-insights-api/internal/domain"
	"github.com/plantmetrics/mfg-insights-api/internal/infra/resilience"
)

// ============================================================
// Customer analysis config store — one versioned row per customer
// ============================================================

const configsTable = "customer_analysis_configs"

// configRow maps customer_analysis_configs columns.
type configRow struct {
	CustomerProfileID string `json:"customer_profile_id"`
	Version           int    `json:"version"`

	RunCostAnalysis       bool `json:"run_cost_analysis"`
	RunQualityAnalysis    bool `json:"run_quality_analysis"`
	RunEquipmentAnalysis  bool `json:"run_equipment_analysis"`
	RunEfficiencyAnalysis bool `json:"run_efficiency_analysis"`

	CostLaborRateHourly      float64 `json:"cost_labor_rate_hourly"`
	CostVarianceThresholdPct float64 `json:"cost_variance_threshold_pct"`
	CostMinVarianceAmount    float64 `json:"cost_min_variance_amount"`
	QualityScrapCostPerUnit  float64 `json:"quality_scrap_cost_per_unit"`
	ConfidenceMinPct         float64 `json:"confidence_min_pct"`
	AnnualProjectionFactor   float64 `json:"annual_projection_factor"`
	PatternMinOrders         int     `json:"pattern_min_orders"`

	ExcludedSuppliers []string `json:"excluded_suppliers"`
	ExcludedMaterials []string `json:"excluded_materials"`
	ExcludedMachines  []string `json:"excluded_machines"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func (r *configRow) toDomain() *domain.CustomerAnalysisConfig {
	cfg := &domain.CustomerAnalysisConfig{
		CustomerProfileID: r.CustomerProfileID,
		Version:           r.Version,

		RunCostAnalysis:       r.RunCostAnalysis,
		RunQualityAnalysis:    r.RunQualityAnalysis,
		RunEquipmentAnalysis:  r.RunEquipmentAnalysis,
		RunEfficiencyAnalysis: r.RunEfficiencyAnalysis,

		CostLaborRateHourly:      r.CostLaborRateHourly,
		CostVarianceThresholdPct: r.CostVarianceThresholdPct,
		CostMinVarianceAmount:    r.CostMinVarianceAmount,
		QualityScrapCostPerUnit:  r.QualityScrapCostPerUnit,
		ConfidenceMinPct:         r.ConfidenceMinPct,
		AnnualProjectionFactor:   r.AnnualProjectionFactor,
		PatternMinOrders:         r.PatternMinOrders,

		ExcludedSuppliers: r.ExcludedSuppliers,
		ExcludedMaterials: r.ExcludedMaterials,
		ExcludedMachines:  r.ExcludedMachines,

		CreatedAt: parseTimestamp(r.CreatedAt),
		UpdatedAt: parseTimestamp(r.UpdatedAt),
	}
	if cfg.ExcludedSuppliers == nil {
		cfg.ExcludedSuppliers = []string{}
	}
	if cfg.ExcludedMaterials == nil {
		cfg.ExcludedMaterials = []string{}
	}
	if cfg.ExcludedMachines == nil {
		cfg.ExcludedMachines = []string{}
	}
	return cfg
}

func configPayload(cfg *domain.CustomerAnalysisConfig, now time.Time) map[string]any {
	return map[string]any{
		"customer_profile_id": cfg.CustomerProfileID,
		"version":             cfg.Version,

		"run_cost_analysis":       cfg.RunCostAnalysis,
		"run_quality_analysis":    cfg.RunQualityAnalysis,
		"run_equipment_analysis":  cfg.RunEquipmentAnalysis,
		"run_efficiency_analysis": cfg.RunEfficiencyAnalysis,

		"cost_labor_rate_hourly":      cfg.CostLaborRateHourly,
		"cost_variance_threshold_pct": cfg.CostVarianceThresholdPct,
		"cost_min_variance_amount":    cfg.CostMinVarianceAmount,
		"quality_scrap_cost_per_unit": cfg.QualityScrapCostPerUnit,
		"confidence_min_pct":          cfg.ConfidenceMinPct,
		"annual_projection_factor":    cfg.AnnualProjectionFactor,
		"pattern_min_orders":          cfg.PatternMinOrders,

		"excluded_suppliers": cfg.ExcludedSuppliers,
		"excluded_materials": cfg.ExcludedMaterials,
		"excluded_machines":  cfg.ExcludedMachines,

		"updated_at": now.UTC().Format(time.RFC3339),
	}
}

// GetConfig fetches the stored config for a customer. Returns ErrNotFound
// when no row exists so the service can synthesize the default.
func (c *Client) GetConfig(ctx context.Context, customerProfileID string) (*domain.CustomerAnalysisConfig, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetConfig")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", customerProfileID))

	var cfg *domain.CustomerAnalysisConfig

	err := resilience.Execute(ctx, c.cfg, c.cb, func() error {
		path := fmt.Sprintf("%s?customer_profile_id=eq.%s&limit=1", configsTable, url.QueryEscape(customerProfileID))
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}

		if body == nil || string(body) == "[]" {
			cfg = nil
			return nil
		}

		var rows []configRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode customer_analysis_configs: %w", err)
		}
		if len(rows) == 0 {
			cfg = nil
			return nil
		}

		cfg = rows[0].toDomain()
		return nil
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/configs", Err: err}
	}
	if cfg == nil {
		return nil, &domain.ErrNotFound{Resource: "analysis_config", ID: customerProfileID}
	}

	return cfg, nil
}

// InsertConfig creates the first stored config for a customer.
func (c *Client) InsertConfig(ctx context.Context, cfg *domain.CustomerAnalysisConfig) (*domain.CustomerAnalysisConfig, error) {
	ctx, span := tracer.Start(ctx, "Supabase.InsertConfig")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", cfg.CustomerProfileID))

	now := time.Now()
	data := configPayload(cfg, now)
	data["created_at"] = now.UTC().Format(time.RFC3339)

	body, err := c.doPost(ctx, configsTable, data)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/configs", Err: err}
	}

	var rows []configRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode config insert: %w", err)
	}
	if len(rows) == 0 {
		return cfg, nil
	}
	return rows[0].toDomain(), nil
}

// UpdateConfig overwrites the stored config row for a customer. The caller
// has already bumped the version.
func (c *Client) UpdateConfig(ctx context.Context, cfg *domain.CustomerAnalysisConfig) (*domain.CustomerAnalysisConfig, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateConfig")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", cfg.CustomerProfileID))

	data := configPayload(cfg, time.Now())
	delete(data, "customer_profile_id")

	path := fmt.Sprintf("%s?customer_profile_id=eq.%s", configsTable, url.QueryEscape(cfg.CustomerProfileID))
	body, err := c.doPatch(ctx, path, data)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/configs", Err: err}
	}

	if len(body) == 0 || string(body) == "[]" {
		return nil, &domain.ErrNotFound{Resource: "analysis_config", ID: cfg.CustomerProfileID}
	}

	var rows []configRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode config update: %w", err)
	}
	if len(rows) == 0 {
		return cfg, nil
	}
	return rows[0].toDomain(), nil
}
