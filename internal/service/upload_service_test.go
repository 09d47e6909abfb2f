package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/plantmetrics/mfg-insights-api/internal/domain"
	"github.com/plantmetrics/mfg-insights-api/internal/infra/cache"
	"github.com/plantmetrics/mfg-insights-api/internal/infra/observability"
	"github.com/plantmetrics/mfg-insights-api/internal/infra/resilience"
	"github.com/plantmetrics/mfg-insights-api/internal/service"
)

// --- Mocks ---

type mockWorkOrderStore struct {
	inserted  []domain.WorkOrder
	insertErr error
}

func (m *mockWorkOrderStore) InsertWorkOrders(_ context.Context, orders []domain.WorkOrder) (int, error) {
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.inserted = append(m.inserted, orders...)
	return len(orders), nil
}

type mockSuggester struct {
	response *domain.SuggestResponse
	err      error
	called   bool
}

func (m *mockSuggester) Suggest(_ context.Context, _ *domain.SuggestRequest) (*domain.SuggestResponse, error) {
	m.called = true
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

type mockAnalyzer struct {
	response *domain.AnalysisResponse
	err      error
	lastReq  *domain.AnalysisRequest
}

func (m *mockAnalyzer) Analyze(_ context.Context, req *domain.AnalysisRequest) (*domain.AnalysisResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

type uploadFixture struct {
	svc        *service.UploadService
	templates  *mockTemplateStore
	configs    *mockConfigStore
	workOrders *mockWorkOrderStore
	suggester  *mockSuggester
	analyzer   *mockAnalyzer
}

func newUploadFixture() *uploadFixture {
	f := &uploadFixture{
		templates:  &mockTemplateStore{},
		configs:    &mockConfigStore{},
		workOrders: &mockWorkOrderStore{},
		suggester:  &mockSuggester{err: errors.New("unavailable")},
		analyzer:   &mockAnalyzer{response: &domain.AnalysisResponse{Success: true, AnalyzersRun: []string{"cost_analyzer"}}},
	}
	metrics := observability.NewMetrics()
	logger := zap.NewNop()
	f.svc = service.NewUploadService(
		service.NewTemplateService(f.templates, metrics, logger),
		service.NewConfigService(f.configs, cache.New[*domain.CustomerAnalysisConfig](5*time.Minute), metrics, logger),
		f.workOrders,
		f.suggester,
		f.analyzer,
		resilience.NewBulkhead(10),
		metrics,
		logger,
	)
	return f
}

const goodCSV = `Work Order Number,Material Code,Planned Material Cost,Actual Material Cost,Planned Labor Hours,Actual Labor Hours
WO-1001,MAT-7,"$1,500.00",1620.50,40,44.5
WO-1002,MAT-9,900,875,20,19
`

func uploadReq(content string) *domain.UploadRequest {
	return &domain.UploadRequest{
		UserEmail:  "ops@plant.example",
		CustomerID: "cust-1",
		Filename:   "september orders.csv",
		Content:    content,
	}
}

// --- ParseCSV ---

func TestParseCSV_SniffsDelimiter(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    rune
	}{
		{"comma", "a,b,c\n1,2,3\n", ','},
		{"semicolon", "a;b;c\n1;2;3\n", ';'},
		{"tab", "a\tb\tc\n1\t2\t3\n", '\t'},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := service.ParseCSV(tc.content)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if parsed.Delimiter != tc.want {
				t.Errorf("expected delimiter %q, got %q", tc.want, parsed.Delimiter)
			}
			if len(parsed.Headers) != 3 || parsed.RowCount != 1 {
				t.Errorf("expected 3 headers and 1 row, got %d/%d", len(parsed.Headers), parsed.RowCount)
			}
		})
	}
}

func TestParseCSV_RejectsEmptyInput(t *testing.T) {
	for _, content := range []string{"", "   \n  ", "only,a,header\n"} {
		_, err := service.ParseCSV(content)
		var verr *domain.ErrValidation
		if !errors.As(err, &verr) {
			t.Errorf("ParseCSV(%q): expected validation error, got %v", content, err)
		}
	}
}

func TestParseCSV_SkipsBlankRows(t *testing.T) {
	parsed, err := service.ParseCSV("a,b\n1,2\n,\n3,4\n")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.RowCount != 2 {
		t.Errorf("expected blank row skipped, got %d rows", parsed.RowCount)
	}
}

// --- Upload ---

func TestUpload_HeuristicHappyPath(t *testing.T) {
	f := newUploadFixture()

	result, err := f.svc.Upload(context.Background(), uploadReq(goodCSV))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.RowsInserted != 2 {
		t.Errorf("expected 2 rows inserted, got %d", result.RowsInserted)
	}
	if !strings.HasSuffix(result.BatchID, "_september_orders.csv") {
		t.Errorf("expected batch id to end with sanitized filename, got %q", result.BatchID)
	}
	if result.Tier == nil || result.Tier.Tier != 2 {
		t.Errorf("expected tier 2 (material codes present), got %+v", result.Tier)
	}

	// Currency formatting should be stripped during coercion.
	first := f.workOrders.inserted[0]
	if got, ok := first["planned_material_cost"].(float64); !ok || got != 1500 {
		t.Errorf("expected planned_material_cost 1500.0, got %v", first["planned_material_cost"])
	}
	if first["batch_id"] != result.BatchID {
		t.Errorf("expected rows stamped with batch id")
	}
	if first["customer_profile_id"] != "cust-1" {
		t.Errorf("expected rows stamped with customer id")
	}
}

func TestUpload_NeedsMappingWhenRequiredFieldsMissing(t *testing.T) {
	f := newUploadFixture()

	csv := "Order Ref,Some Column\nX-1,foo\n"
	result, err := f.svc.Upload(context.Background(), uploadReq(csv))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if result.Success {
		t.Fatal("expected needs-mapping result, not success")
	}
	if !result.NeedsMapping {
		t.Fatal("expected NeedsMapping to be set")
	}
	if len(result.MissingFields) == 0 {
		t.Error("expected missing fields to be named")
	}
	if len(result.Suggestions) == 0 {
		t.Error("expected rename suggestions for missing fields")
	}
	if len(f.workOrders.inserted) != 0 {
		t.Error("expected no rows stored for an incomplete mapping")
	}
	if !f.suggester.called {
		t.Error("expected AI suggester to be consulted before giving up")
	}
}

func TestUpload_AISuggestionsFillGaps(t *testing.T) {
	f := newUploadFixture()
	f.suggester = &mockSuggester{response: &domain.SuggestResponse{
		Mappings: []domain.MappingEntry{
			{SourceColumn: "Ref", TargetField: "work_order_number", Confidence: 0.9},
			{SourceColumn: "Budget", TargetField: "planned_material_cost", Confidence: 0.85},
			{SourceColumn: "Spent", TargetField: "actual_material_cost", Confidence: 0.85},
			{SourceColumn: "Est Hrs", TargetField: "planned_labor_hours", Confidence: 0.8},
			{SourceColumn: "Used Hrs", TargetField: "actual_labor_hours", Confidence: 0.8},
		},
		Confidence: 0.85,
	}}
	metrics := observability.NewMetrics()
	logger := zap.NewNop()
	f.svc = service.NewUploadService(
		service.NewTemplateService(f.templates, metrics, logger),
		service.NewConfigService(f.configs, cache.New[*domain.CustomerAnalysisConfig](5*time.Minute), metrics, logger),
		f.workOrders, f.suggester, f.analyzer,
		resilience.NewBulkhead(10), metrics, logger,
	)

	csv := "Ref,Budget,Spent,Est Hrs,Used Hrs\nX-1,100,110,5,6\n"
	result, err := f.svc.Upload(context.Background(), uploadReq(csv))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !result.Success {
		t.Fatalf("expected AI-completed mapping to succeed, got %+v", result)
	}
	if result.RowsInserted != 1 {
		t.Errorf("expected 1 row inserted, got %d", result.RowsInserted)
	}
}

func TestUpload_MatchedTemplateMappingWins(t *testing.T) {
	f := newUploadFixture()

	headers := []string{"Work Order Number", "Material Code", "Planned Material Cost", "Actual Material Cost", "Planned Labor Hours", "Actual Labor Hours"}
	tpl := templateWith("tpl-1", "sap monthly", headers, nil)
	tpl.MappingConfig = []domain.MappingEntry{
		{SourceColumn: "Work Order Number", TargetField: "work_order_number"},
		{SourceColumn: "Planned Material Cost", TargetField: "planned_material_cost"},
		{SourceColumn: "Actual Material Cost", TargetField: "actual_material_cost"},
		{SourceColumn: "Planned Labor Hours", TargetField: "planned_labor_hours"},
		{SourceColumn: "Actual Labor Hours", TargetField: "actual_labor_hours"},
	}
	f.templates.templates = []domain.MappingTemplate{tpl}

	result, err := f.svc.Upload(context.Background(), uploadReq(goodCSV))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.TemplateID != "tpl-1" || result.TemplateUsed != "sap monthly" {
		t.Errorf("expected matched template reported, got %q/%q", result.TemplateID, result.TemplateUsed)
	}
	if len(f.templates.touchedIDs) != 1 {
		t.Error("expected matched template's last_used_at refreshed")
	}
}

func TestUpload_AnalysisFailureDoesNotUndoStore(t *testing.T) {
	f := newUploadFixture()
	f.analyzer.err = &domain.ErrExternalService{Service: "analysis", Err: errors.New("503")}

	result, err := f.svc.Upload(context.Background(), uploadReq(goodCSV))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !result.Success {
		t.Fatal("expected upload to succeed despite analysis failure")
	}
	if result.Analysis != nil {
		t.Error("expected no analysis payload")
	}
	if result.AnalysisNote == "" {
		t.Error("expected an analysis-unavailable note")
	}
	if len(f.workOrders.inserted) != 2 {
		t.Errorf("expected stored rows kept, got %d", len(f.workOrders.inserted))
	}
}

func TestUpload_AnalysisReceivesEffectiveConfig(t *testing.T) {
	f := newUploadFixture()
	stored := domain.DefaultAnalysisConfig("cust-1")
	stored.Version = 2
	stored.CostLaborRateHourly = 175
	f.configs.stored = stored

	if _, err := f.svc.Upload(context.Background(), uploadReq(goodCSV)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if f.analyzer.lastReq == nil {
		t.Fatal("expected analyzer to be called")
	}
	if f.analyzer.lastReq.Config.CostLaborRateHourly != 175 {
		t.Errorf("expected stored config passed to analyzer, got %v", f.analyzer.lastReq.Config.CostLaborRateHourly)
	}
}

func TestUpload_SavesTemplateWhenRequested(t *testing.T) {
	f := newUploadFixture()

	req := uploadReq(goodCSV)
	req.TemplateName = "monthly sap export"

	result, err := f.svc.Upload(context.Background(), req)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if f.templates.created == nil {
		t.Fatal("expected a template to be saved")
	}
	if f.templates.created.TemplateName != "monthly sap export" {
		t.Errorf("unexpected template name %q", f.templates.created.TemplateName)
	}
	if result.TemplateUsed != "monthly sap export" {
		t.Errorf("expected saved template reported on result, got %q", result.TemplateUsed)
	}
}

func TestUpload_SavedTemplateCarriesAnalysisConfig(t *testing.T) {
	f := newUploadFixture()
	rate := 250.0
	scrap := 90.0

	req := uploadReq(goodCSV)
	req.TemplateName = "sap with overrides"
	req.AnalysisConfig = &domain.TemplateAnalysisConfig{
		LaborRateHourly:  &rate,
		ScrapCostPerUnit: &scrap,
	}

	result, err := f.svc.Upload(context.Background(), req)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if f.templates.created == nil || f.templates.created.AnalysisConfig == nil {
		t.Fatal("expected saved template to carry the supplied analysis config")
	}
	if got := *f.templates.created.AnalysisConfig.LaborRateHourly; got != 250 {
		t.Errorf("expected labor rate 250 on saved template, got %v", got)
	}

	// An incomplete override fails template validation but never the upload.
	f2 := newUploadFixture()
	req2 := uploadReq(goodCSV)
	req2.TemplateName = "half configured"
	req2.AnalysisConfig = &domain.TemplateAnalysisConfig{LaborRateHourly: &rate}

	result2, err := f2.svc.Upload(context.Background(), req2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !result2.Success {
		t.Fatal("expected rows stored despite rejected template config")
	}
	if f2.templates.created != nil {
		t.Error("expected no template saved with an incomplete analysis config")
	}
}

func TestUpload_StoreFailureFailsUpload(t *testing.T) {
	f := newUploadFixture()
	f.workOrders.insertErr = &domain.ErrExternalService{Service: "supabase/work_orders", Err: errors.New("500")}

	_, err := f.svc.Upload(context.Background(), uploadReq(goodCSV))
	if err == nil {
		t.Fatal("expected error when rows cannot be stored")
	}
}

func TestUpload_RejectsMissingIdentity(t *testing.T) {
	f := newUploadFixture()

	req := uploadReq(goodCSV)
	req.UserEmail = ""
	_, err := f.svc.Upload(context.Background(), req)
	var verr *domain.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

// --- Analyze ---

func TestAnalyze_ReportsWithoutStoring(t *testing.T) {
	f := newUploadFixture()

	report, err := f.svc.Analyze(context.Background(), uploadReq(goodCSV))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !report.Success {
		t.Errorf("expected mappable file to report success, got %+v", report)
	}
	if len(report.Suggestions) == 0 {
		t.Error("expected mapping suggestions")
	}
	if len(f.workOrders.inserted) != 0 {
		t.Error("analyze must not store rows")
	}
}
