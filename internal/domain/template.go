package domain

import (
	"encoding/json"
	"time"
)

// MaxTemplateNameLen is the longest accepted template name after trimming.
const MaxTemplateNameLen = 50

// MappingEntry maps one source CSV column to one schema target field.
type MappingEntry struct {
	SourceColumn string  `json:"source_column"`
	TargetField  string  `json:"target_field"`
	Confidence   float64 `json:"confidence,omitempty"`
	DataType     string  `json:"data_type,omitempty"`
}

// TemplateAnalysisConfig is the optional per-template analysis override.
// Pointer fields distinguish "not set" from zero; a zero labor rate or scrap
// cost is treated as missing and rejected on write.
type TemplateAnalysisConfig struct {
	LaborRateHourly      *float64 `json:"labor_rate_hourly,omitempty"`
	ScrapCostPerUnit     *float64 `json:"scrap_cost_per_unit,omitempty"`
	VarianceThresholdPct *float64 `json:"variance_threshold_pct,omitempty"`
	PatternMinOrders     *int     `json:"pattern_min_orders,omitempty"`
}

// MappingTemplate is a saved, reusable column mapping owned by one user.
// HeaderSignature is the ordered JSON array of the headers the template was
// saved from; it is stored verbatim and compared by set equality on match.
type MappingTemplate struct {
	ID              string                  `json:"id"`
	UserEmail       string                  `json:"user_email"`
	TemplateName    string                  `json:"template_name"`
	HeaderSignature json.RawMessage         `json:"header_signature"`
	MappingConfig   []MappingEntry          `json:"mapping_config"`
	AnalysisConfig  *TemplateAnalysisConfig `json:"analysis_config,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	LastUsedAt      *time.Time              `json:"last_used_at,omitempty"`
}

// TemplatePatch is a partial template update. Nil fields are left untouched.
type TemplatePatch struct {
	TemplateName   *string                 `json:"template_name,omitempty"`
	MappingConfig  []MappingEntry          `json:"mapping_config,omitempty"`
	AnalysisConfig *TemplateAnalysisConfig `json:"analysis_config,omitempty"`
}

// TemplateMatch is the outcome of matching uploaded headers against the
// owner's saved templates.
type TemplateMatch struct {
	Found          bool                    `json:"found"`
	TemplateID     string                  `json:"template_id,omitempty"`
	TemplateName   string                  `json:"template_name,omitempty"`
	MappingConfig  []MappingEntry          `json:"mapping_config,omitempty"`
	AnalysisConfig *TemplateAnalysisConfig `json:"analysis_config,omitempty"`
}
