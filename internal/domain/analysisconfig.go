package domain

import "time"

// CustomerAnalysisConfig controls how a customer's uploaded data is scored.
// One record per customer profile, versioned: the first insert is version 1
// and every subsequent update increments the version by exactly 1.
type CustomerAnalysisConfig struct {
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

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AnalysisConfigPatch is a partial configuration update. Nil fields are left
// untouched by an upsert.
type AnalysisConfigPatch struct {
	RunCostAnalysis       *bool `json:"run_cost_analysis,omitempty"`
	RunQualityAnalysis    *bool `json:"run_quality_analysis,omitempty"`
	RunEquipmentAnalysis  *bool `json:"run_equipment_analysis,omitempty"`
	RunEfficiencyAnalysis *bool `json:"run_efficiency_analysis,omitempty"`

	CostLaborRateHourly      *float64 `json:"cost_labor_rate_hourly,omitempty"`
	CostVarianceThresholdPct *float64 `json:"cost_variance_threshold_pct,omitempty"`
	CostMinVarianceAmount    *float64 `json:"cost_min_variance_amount,omitempty"`
	QualityScrapCostPerUnit  *float64 `json:"quality_scrap_cost_per_unit,omitempty"`
	ConfidenceMinPct         *float64 `json:"confidence_min_pct,omitempty"`
	AnnualProjectionFactor   *float64 `json:"annual_projection_factor,omitempty"`
	PatternMinOrders         *int     `json:"pattern_min_orders,omitempty"`

	ExcludedSuppliers []string `json:"excluded_suppliers,omitempty"`
	ExcludedMaterials []string `json:"excluded_materials,omitempty"`
	ExcludedMachines  []string `json:"excluded_machines,omitempty"`
}

// DefaultAnalysisConfig synthesizes the complete default configuration for a
// customer with no stored record. It is built per read and never persisted.
func DefaultAnalysisConfig(customerProfileID string) *CustomerAnalysisConfig {
	return &CustomerAnalysisConfig{
		CustomerProfileID: customerProfileID,
		Version:           0,

		RunCostAnalysis:       true,
		RunQualityAnalysis:    true,
		RunEquipmentAnalysis:  true,
		RunEfficiencyAnalysis: true,

		CostLaborRateHourly:      200,
		CostVarianceThresholdPct: 15,
		CostMinVarianceAmount:    1000,
		QualityScrapCostPerUnit:  75,
		ConfidenceMinPct:         70,
		AnnualProjectionFactor:   12,
		PatternMinOrders:         3,

		ExcludedSuppliers: []string{},
		ExcludedMaterials: []string{},
		ExcludedMachines:  []string{},
	}
}

// Apply merges the patch over the config in place. Only provided fields are
// replaced.
func (c *CustomerAnalysisConfig) Apply(p *AnalysisConfigPatch) {
	if p == nil {
		return
	}
	if p.RunCostAnalysis != nil {
		c.RunCostAnalysis = *p.RunCostAnalysis
	}
	if p.RunQualityAnalysis != nil {
		c.RunQualityAnalysis = *p.RunQualityAnalysis
	}
	if p.RunEquipmentAnalysis != nil {
		c.RunEquipmentAnalysis = *p.RunEquipmentAnalysis
	}
	if p.RunEfficiencyAnalysis != nil {
		c.RunEfficiencyAnalysis = *p.RunEfficiencyAnalysis
	}
	if p.CostLaborRateHourly != nil {
		c.CostLaborRateHourly = *p.CostLaborRateHourly
	}
	if p.CostVarianceThresholdPct != nil {
		c.CostVarianceThresholdPct = *p.CostVarianceThresholdPct
	}
	if p.CostMinVarianceAmount != nil {
		c.CostMinVarianceAmount = *p.CostMinVarianceAmount
	}
	if p.QualityScrapCostPerUnit != nil {
		c.QualityScrapCostPerUnit = *p.QualityScrapCostPerUnit
	}
	if p.ConfidenceMinPct != nil {
		c.ConfidenceMinPct = *p.ConfidenceMinPct
	}
	if p.AnnualProjectionFactor != nil {
		c.AnnualProjectionFactor = *p.AnnualProjectionFactor
	}
	if p.PatternMinOrders != nil {
		c.PatternMinOrders = *p.PatternMinOrders
	}
	if p.ExcludedSuppliers != nil {
		c.ExcludedSuppliers = p.ExcludedSuppliers
	}
	if p.ExcludedMaterials != nil {
		c.ExcludedMaterials = p.ExcludedMaterials
	}
	if p.ExcludedMachines != nil {
		c.ExcludedMachines = p.ExcludedMachines
	}
}
