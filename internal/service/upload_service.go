package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/plantmetrics/mfg-insights-api/internal/domain"
	"github.com/plantmetrics/mfg-insights-api/internal/infra/observability"
	"github.com/plantmetrics/mfg-insights-api/internal/infra/resilience"
	"github.com/plantmetrics/mfg-insights-api/internal/port"
)

var uploadTracer = otel.Tracer("service/upload")

// maxSampleRows limits how many rows are sent to the AI suggester.
const maxSampleRows = 5

// UploadService runs the CSV ingestion pipeline: parse, map columns,
// validate, transform, store, then trigger analysis.
type UploadService struct {
	templates  *TemplateService
	configs    *ConfigService
	workOrders port.WorkOrderStore
	suggester  port.MappingSuggester
	analyzer   port.AnalysisCaller
	bulkhead   *resilience.Bulkhead
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewUploadService creates the upload service with dependencies injected.
func NewUploadService(
	templates *TemplateService,
	configs *ConfigService,
	workOrders port.WorkOrderStore,
	suggester port.MappingSuggester,
	analyzer port.AnalysisCaller,
	bulkhead *resilience.Bulkhead,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *UploadService {
	return &UploadService{
		templates:  templates,
		configs:    configs,
		workOrders: workOrders,
		suggester:  suggester,
		analyzer:   analyzer,
		bulkhead:   bulkhead,
		metrics:    metrics,
		logger:     logger,
	}
}

// ParseCSV reads the raw upload into headers and rows. The delimiter is
// sniffed from the header line since ERP exports commonly use semicolons or
// tabs instead of commas.
func ParseCSV(content string) (*domain.ParsedCSV, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, &domain.ErrValidation{Field: "content", Message: "file is empty"}
	}

	delimiter := sniffDelimiter(trimmed)

	r := csv.NewReader(strings.NewReader(trimmed))
	r.Comma = delimiter
	r.TrimLeadingSpace = true
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, &domain.ErrValidation{Field: "content", Message: fmt.Sprintf("could not parse CSV: %v", err)}
	}
	if len(records) == 0 {
		return nil, &domain.ErrValidation{Field: "content", Message: "file has no header row"}
	}

	headers := make([]string, 0, len(records[0]))
	for _, h := range records[0] {
		headers = append(headers, strings.TrimSpace(h))
	}

	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(headers))
		empty := true
		for i, h := range headers {
			if i < len(record) {
				v := strings.TrimSpace(record[i])
				row[h] = v
				if v != "" {
					empty = false
				}
			}
		}
		if !empty {
			rows = append(rows, row)
		}
	}

	if len(rows) == 0 {
		return nil, &domain.ErrValidation{Field: "content", Message: "file has no data rows"}
	}

	return &domain.ParsedCSV{
		Headers:   headers,
		Rows:      rows,
		RowCount:  len(rows),
		Delimiter: delimiter,
	}, nil
}

// sniffDelimiter picks the separator that splits the header line into the
// most fields.
func sniffDelimiter(content string) rune {
	headerLine := content
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		headerLine = content[:idx]
	}

	best := ','
	bestCount := strings.Count(headerLine, ",")
	for _, candidate := range []rune{';', '\t'} {
		if count := strings.Count(headerLine, string(candidate)); count > bestCount {
			best = candidate
			bestCount = count
		}
	}
	return best
}

// Analyze inspects an upload without storing anything: it parses the file
// and returns mapping suggestions for the user to confirm.
func (s *UploadService) Analyze(ctx context.Context, req *domain.UploadRequest) (*domain.MappingReport, error) {
	ctx, span := uploadTracer.Start(ctx, "UploadService.Analyze")
	defer span.End()

	parsed, err := ParseCSV(req.Content)
	if err != nil {
		return nil, err
	}

	entries, source := s.suggestMapping(ctx, parsed)
	missing := missingRequiredFields(entries)

	report := &domain.MappingReport{
		Success:       len(missing) == 0,
		Headers:       parsed.Headers,
		SampleRows:    sampleRows(parsed.Rows),
		Suggestions:   entries,
		UnmappedCols:  unmappedColumns(parsed.Headers, entries),
		MissingFields: missing,
		Confidence:    mappingConfidence(entries),
		Source:        source,
	}
	if report.Success {
		report.Message = "All required columns successfully mapped."
	} else {
		report.Message = "Missing required fields: " + strings.Join(missing, ", ")
	}
	return report, nil
}

// Upload runs the full ingestion pipeline. Analysis failures never undo a
// successful store: the rows stay and the result carries a note instead.
func (s *UploadService) Upload(ctx context.Context, req *domain.UploadRequest) (*domain.UploadResult, error) {
	ctx, span := uploadTracer.Start(ctx, "UploadService.Upload")
	defer span.End()
	span.SetAttributes(
		attribute.String("customer.id", req.CustomerID),
		attribute.String("upload.filename", req.Filename),
	)

	if req.UserEmail == "" {
		return nil, &domain.ErrValidation{Field: "user_email", Message: "required"}
	}
	if req.CustomerID == "" {
		return nil, &domain.ErrValidation{Field: "customer_id", Message: "required"}
	}
	if req.Filename == "" {
		return nil, &domain.ErrValidation{Field: "filename", Message: "required"}
	}

	if err := s.bulkhead.Acquire(ctx); err != nil {
		return nil, &domain.ErrTimeout{Operation: "upload"}
	}
	defer s.bulkhead.Release()

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("upload", time.Since(start))
	}()

	parsed, err := ParseCSV(req.Content)
	if err != nil {
		s.metrics.IncrUpload("error")
		return nil, err
	}

	// Template match and effective config don't depend on each other.
	var (
		match  *domain.TemplateMatch
		config *domain.CustomerAnalysisConfig
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := s.templates.FindMatch(gCtx, req.UserEmail, parsed.Headers)
		if err != nil {
			return fmt.Errorf("template match: %w", err)
		}
		match = m
		return nil
	})
	g.Go(func() error {
		c, err := s.configs.GetEffective(gCtx, req.CustomerID)
		if err != nil {
			return fmt.Errorf("config fetch: %w", err)
		}
		config = c
		return nil
	})
	if err := g.Wait(); err != nil {
		s.metrics.IncrUpload("error")
		return nil, err
	}

	mapping, source := s.resolveMapping(ctx, req, parsed, match)

	if missing := missingRequiredFields(mapping); len(missing) > 0 {
		s.metrics.IncrUpload("needs_mapping")
		s.logger.Info("upload needs manual mapping",
			zap.String("customer_id", req.CustomerID),
			zap.Strings("missing", missing),
		)
		return &domain.UploadResult{
			Success:       false,
			NeedsMapping:  true,
			SuggestedMap:  mapping,
			UnmappedCols:  unmappedColumns(parsed.Headers, mapping),
			MissingFields: missing,
			Confidence:    mappingConfidence(mapping),
			Suggestions:   fieldSuggestions(missing),
			Error:         "missing required fields: " + strings.Join(missing, ", "),
		}, nil
	}

	batchID := makeBatchID(req.Filename, time.Now())
	orders := transformRows(parsed.Rows, mapping, req, batchID)

	inserted, err := s.workOrders.InsertWorkOrders(ctx, orders)
	if err != nil {
		s.metrics.IncrUpload("error")
		s.metrics.IncrExternalError("work_orders")
		s.logger.Error("failed to store work orders",
			zap.String("customer_id", req.CustomerID),
			zap.String("batch_id", batchID),
			zap.Error(err),
		)
		return nil, err
	}
	s.metrics.IncrUpload("success")
	s.metrics.AddRowsIngested(inserted)

	result := &domain.UploadResult{
		Success:      true,
		RowsInserted: inserted,
		BatchID:      batchID,
		MappingUsed:  mapping,
		Confidence:   mappingConfidence(mapping),
		Tier:         detectTier(mapping),
	}
	if match.Found {
		result.TemplateID = match.TemplateID
		result.TemplateUsed = match.TemplateName
	}

	// Optionally persist the mapping as a template for next time.
	if req.TemplateName != "" && !match.Found {
		saved, err := s.templates.Save(ctx, req.UserEmail, req.TemplateName, parsed.Headers, mapping, req.AnalysisConfig)
		if err != nil {
			s.logger.Warn("failed to save template from upload",
				zap.String("owner", req.UserEmail),
				zap.String("template_name", req.TemplateName),
				zap.Error(err),
			)
		} else {
			result.TemplateID = saved.ID
			result.TemplateUsed = saved.TemplateName
		}
	}

	s.logger.Info("upload stored",
		zap.String("customer_id", req.CustomerID),
		zap.String("batch_id", batchID),
		zap.Int("rows", inserted),
		zap.String("mapping_source", source),
		zap.Int("tier", result.Tier.Tier),
	)

	// Auto-analysis is best-effort: data is already stored.
	result.Analysis, result.AnalysisNote = s.runAnalysis(ctx, req.CustomerID, batchID, parsed.Headers, orders, config, match)

	return result, nil
}

// resolveMapping picks the column mapping for this upload: an explicit
// confirmed mapping wins, then a matched template, then suggestions.
func (s *UploadService) resolveMapping(ctx context.Context, req *domain.UploadRequest, parsed *domain.ParsedCSV, match *domain.TemplateMatch) ([]domain.MappingEntry, string) {
	if len(req.ConfirmedMapping) > 0 {
		return req.ConfirmedMapping, "confirmed"
	}
	if match.Found {
		return match.MappingConfig, "template"
	}
	return s.suggestMapping(ctx, parsed)
}

// suggestMapping runs the heuristic mapper and, when required fields are
// still missing, asks the AI service to fill the gaps. A suggester failure
// degrades to the heuristic result.
func (s *UploadService) suggestMapping(ctx context.Context, parsed *domain.ParsedCSV) ([]domain.MappingEntry, string) {
	entries := heuristicMapping(parsed.Headers)
	if len(missingRequiredFields(entries)) == 0 {
		return entries, "heuristic"
	}

	resp, err := s.suggester.Suggest(ctx, &domain.SuggestRequest{
		Headers:    parsed.Headers,
		SampleRows: sampleRows(parsed.Rows),
	})
	if err != nil {
		s.metrics.IncrExternalError("suggest")
		s.logger.Warn("mapping suggestion service unavailable, using heuristics only",
			zap.Error(err),
		)
		return entries, "heuristic"
	}

	return mergeMappings(entries, resp.Mappings), "heuristic+ai"
}

// mergeMappings adds AI suggestions for fields and columns the heuristics
// left unassigned. Heuristic entries always win a conflict.
func mergeMappings(heuristic, suggested []domain.MappingEntry) []domain.MappingEntry {
	mappedFields := make(map[string]bool, len(heuristic))
	usedColumns := make(map[string]bool, len(heuristic))
	for _, e := range heuristic {
		mappedFields[e.TargetField] = true
		usedColumns[e.SourceColumn] = true
	}

	merged := append([]domain.MappingEntry{}, heuristic...)
	for _, e := range suggested {
		if mappedFields[e.TargetField] || usedColumns[e.SourceColumn] {
			continue
		}
		if e.DataType == "" {
			e.DataType = fieldDataType(e.TargetField)
		}
		merged = append(merged, e)
		mappedFields[e.TargetField] = true
		usedColumns[e.SourceColumn] = true
	}
	return merged
}

// runAnalysis calls the analysis service for a stored batch and degrades
// gracefully: any failure turns into a note on the result.
func (s *UploadService) runAnalysis(ctx context.Context, customerID, batchID string, headers []string, orders []domain.WorkOrder, config *domain.CustomerAnalysisConfig, match *domain.TemplateMatch) (*domain.AnalysisResponse, string) {
	effective := *config
	applyTemplateOverrides(&effective, match)

	analysisStart := time.Now()
	resp, err := s.analyzer.Analyze(ctx, &domain.AnalysisRequest{
		CustomerID: customerID,
		BatchID:    batchID,
		Headers:    headers,
		WorkOrders: orders,
		Config:     &effective,
	})
	s.metrics.RecordRequestDuration("analysis", time.Since(analysisStart))

	if err != nil {
		s.metrics.IncrExternalError("analysis")
		s.logger.Warn("analysis unavailable for stored batch",
			zap.String("customer_id", customerID),
			zap.String("batch_id", batchID),
			zap.Error(err),
		)
		return nil, "data stored successfully, but analysis is temporarily unavailable"
	}
	return resp, ""
}

// applyTemplateOverrides layers a matched template's per-template analysis
// settings over the customer's effective config.
func applyTemplateOverrides(cfg *domain.CustomerAnalysisConfig, match *domain.TemplateMatch) {
	if match == nil || match.AnalysisConfig == nil {
		return
	}
	o := match.AnalysisConfig
	if o.LaborRateHourly != nil {
		cfg.CostLaborRateHourly = *o.LaborRateHourly
	}
	if o.ScrapCostPerUnit != nil {
		cfg.QualityScrapCostPerUnit = *o.ScrapCostPerUnit
	}
	if o.VarianceThresholdPct != nil {
		cfg.CostVarianceThresholdPct = *o.VarianceThresholdPct
	}
	if o.PatternMinOrders != nil {
		cfg.PatternMinOrders = *o.PatternMinOrders
	}
}

// transformRows converts parsed CSV rows into normalized work orders.
// Numeric fields tolerate currency symbols and thousand separators; date
// fields accept the layouts ERP exports actually produce.
func transformRows(rows []map[string]string, mapping []domain.MappingEntry, req *domain.UploadRequest, batchID string) []domain.WorkOrder {
	orders := make([]domain.WorkOrder, 0, len(rows))
	for _, row := range rows {
		order := domain.WorkOrder{
			"batch_id":            batchID,
			"customer_profile_id": req.CustomerID,
			"uploaded_by":         req.UserEmail,
		}
		for _, e := range mapping {
			raw, ok := row[e.SourceColumn]
			if !ok || raw == "" {
				continue
			}
			order[e.TargetField] = coerceValue(e.TargetField, raw)
		}
		orders = append(orders, order)
	}
	return orders
}

func coerceValue(field, raw string) any {
	switch {
	case numericFields[field]:
		if f, ok := parseNumeric(raw); ok {
			return f
		}
		return raw
	case dateFields[field]:
		if t, ok := parseDate(raw); ok {
			return t.Format("2006-01-02")
		}
		return raw
	default:
		return raw
	}
}

func parseNumeric(raw string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '$', ',', ' ':
			return -1
		}
		return r
	}, raw)
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"02.01.2006",
}

func parseDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// makeBatchID builds a batch identifier from the upload time and a
// sanitized filename, e.g. "1756720000_orders_sep.csv".
func makeBatchID(filename string, now time.Time) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, filename)
	return fmt.Sprintf("%d_%s", now.Unix(), sanitized)
}

func sampleRows(rows []map[string]string) []map[string]string {
	if len(rows) <= maxSampleRows {
		return rows
	}
	return rows[:maxSampleRows]
}
