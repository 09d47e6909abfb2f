package domain

// AnalysisRequest is the payload forwarded to the external analysis service:
// the normalized batch plus the effective configuration for the customer.
// Configuration is always passed by value; the analysis service holds no
// per-customer state of its own.
type AnalysisRequest struct {
	CustomerID string                  `json:"customer_id"`
	BatchID    string                  `json:"batch_id"`
	Headers    []string                `json:"headers"`
	WorkOrders []WorkOrder             `json:"work_orders"`
	Config     *CustomerAnalysisConfig `json:"config"`
}

// AnalysisInsight is a single finding from an analyzer.
type AnalysisInsight struct {
	Type            string  `json:"type"`
	Severity        string  `json:"severity"`
	WorkOrder       string  `json:"work_order,omitempty"`
	Equipment       string  `json:"equipment,omitempty"`
	Material        string  `json:"material,omitempty"`
	Description     string  `json:"description"`
	FinancialImpact float64 `json:"financial_impact"`
}

// AnalysisSummary aggregates the run.
type AnalysisSummary struct {
	TotalFinancialImpact float64 `json:"total_financial_impact"`
	UrgentCount          int     `json:"urgent_count"`
	NotableCount         int     `json:"notable_count"`
}

// AnalysisResponse is what the analysis service returns for a batch.
type AnalysisResponse struct {
	Success      bool              `json:"success"`
	BatchID      string            `json:"batch_id"`
	AnalyzersRun []string          `json:"analyzers_run"`
	Urgent       []AnalysisInsight `json:"urgent"`
	Notable      []AnalysisInsight `json:"notable"`
	Summary      AnalysisSummary   `json:"summary"`
}
