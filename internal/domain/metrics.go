package domain

// IngestMetrics is the snapshot served by GET /v1/metrics/ingest.
type IngestMetrics struct {
	TotalUploads      int64   `json:"total_uploads"`
	RowsIngested      int64   `json:"rows_ingested"`
	TemplateMatchRate float64 `json:"template_match_rate"`
	ErrorRate         float64 `json:"error_rate"`
	CacheHitRate      float64 `json:"cache_hit_rate"`
	Period            string  `json:"period"`
}
