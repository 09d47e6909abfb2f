package domain

// ParsedCSV is the result of parsing an uploaded file.
type ParsedCSV struct {
	Headers   []string
	Rows      []map[string]string
	RowCount  int
	Delimiter rune
}

// WorkOrder is one normalized row ready for insertion. Keys are schema field
// names; values are already coerced to their storage types.
type WorkOrder map[string]any

// UploadRequest carries an upload through the pipeline.
type UploadRequest struct {
	UserEmail        string         `json:"user_email"`
	CustomerID       string         `json:"customer_id"`
	Filename         string         `json:"filename"`
	Content          string         `json:"content"`
	TemplateName     string         `json:"template_name,omitempty"`
	ConfirmedMapping []MappingEntry `json:"confirmed_mapping,omitempty"`

	// AnalysisConfig is stored on the template saved from this upload, when
	// template_name is set. It never alters the customer-level config.
	AnalysisConfig *TemplateAnalysisConfig `json:"analysis_config,omitempty"`
}

// UploadResult is the final outcome of an upload.
type UploadResult struct {
	Success       bool              `json:"success"`
	RowsInserted  int               `json:"rows_inserted"`
	BatchID       string            `json:"batch_id,omitempty"`
	TemplateID    string            `json:"template_id,omitempty"`
	TemplateUsed  string            `json:"template_used,omitempty"`
	MappingUsed   []MappingEntry    `json:"mapping_used,omitempty"`
	Confidence    float64           `json:"confidence"`
	Tier          *DataTier         `json:"tier,omitempty"`
	Analysis      *AnalysisResponse `json:"analysis,omitempty"`
	AnalysisNote  string            `json:"analysis_note,omitempty"`
	Error         string            `json:"error,omitempty"`
	Suggestions   []string          `json:"suggestions,omitempty"`
	NeedsMapping  bool              `json:"needs_mapping,omitempty"`
	SuggestedMap  []MappingEntry    `json:"suggested_mapping,omitempty"`
	UnmappedCols  []string          `json:"unmapped_columns,omitempty"`
	MissingFields []string          `json:"missing_required,omitempty"`
}

// MappingReport is returned by the analyze-only endpoint: suggestions for the
// mapping modal, without writing anything.
type MappingReport struct {
	Success       bool                `json:"success"`
	Headers       []string            `json:"headers"`
	SampleRows    []map[string]string `json:"sample_rows"`
	Suggestions   []MappingEntry      `json:"mapping_suggestions"`
	UnmappedCols  []string            `json:"unmapped_columns"`
	MissingFields []string            `json:"missing_required"`
	Confidence    float64             `json:"confidence"`
	Source        string              `json:"source"`
	Message       string              `json:"message"`
}

// DataTier describes what analysis depth the uploaded columns support.
type DataTier struct {
	Tier         int      `json:"tier"`
	TierName     string   `json:"tier_name"`
	Capabilities []string `json:"capabilities"`
	Analyzers    []string `json:"available_analyzers"`
}

// SuggestRequest is sent to the AI mapping-suggestion service.
type SuggestRequest struct {
	Headers    []string            `json:"headers"`
	SampleRows []map[string]string `json:"sample_rows"`
}

// SuggestResponse is the AI service's best-effort mapping guess. A failure of
// the service degrades to an empty, zero-confidence suggestion.
type SuggestResponse struct {
	Mappings   []MappingEntry `json:"mappings"`
	Confidence float64        `json:"confidence"`
}
