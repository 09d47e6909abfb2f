package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/plantmetrics/mfg-insights-api/internal/domain"
	"github.com/plantmetrics/mfg-insights-api/internal/infra/observability"
	"github.com/plantmetrics/mfg-insights-api/internal/service"
)

// --- Mocks ---

type mockTemplateStore struct {
	templates  []domain.MappingTemplate
	listErr    error
	created    *domain.MappingTemplate
	createErr  error
	updateErr  error
	deleteErr  error
	deleted    []string
	touchedIDs []string
	touchErr   error
}

func (m *mockTemplateStore) CreateTemplate(_ context.Context, t *domain.MappingTemplate) (*domain.MappingTemplate, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created = t
	return t, nil
}

func (m *mockTemplateStore) UpdateTemplate(_ context.Context, _, _ string, _ *domain.TemplatePatch) error {
	return m.updateErr
}

func (m *mockTemplateStore) DeleteTemplate(_ context.Context, id, _ string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockTemplateStore) ListTemplates(_ context.Context, _ string) ([]domain.MappingTemplate, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.templates, nil
}

func (m *mockTemplateStore) TouchTemplate(_ context.Context, id string) error {
	if m.touchErr != nil {
		return m.touchErr
	}
	m.touchedIDs = append(m.touchedIDs, id)
	return nil
}

func newTemplateService(store *mockTemplateStore) *service.TemplateService {
	return service.NewTemplateService(store, observability.NewMetrics(), zap.NewNop())
}

func templateWith(id, name string, headers []string, lastUsed *time.Time) domain.MappingTemplate {
	return domain.MappingTemplate{
		ID:              id,
		UserEmail:       "ops@plant.example",
		TemplateName:    name,
		HeaderSignature: domain.EncodeHeaderSignature(headers),
		MappingConfig: []domain.MappingEntry{
			{SourceColumn: headers[0], TargetField: "work_order_number"},
		},
		CreatedAt:  time.Now(),
		LastUsedAt: lastUsed,
	}
}

// --- FindMatch ---

func TestFindMatch_FreshestMatchingTemplateWins(t *testing.T) {
	recent := time.Now().Add(-1 * time.Hour)
	older := time.Now().Add(-48 * time.Hour)

	headers := []string{"WO Number", "Actual Hours"}

	// Store returns templates already in freshness order; both match.
	store := &mockTemplateStore{templates: []domain.MappingTemplate{
		templateWith("tpl-recent", "sap-export", headers, &recent),
		templateWith("tpl-older", "legacy-export", headers, &older),
	}}
	svc := newTemplateService(store)

	match, err := svc.FindMatch(context.Background(), "ops@plant.example", []string{"Actual Hours", "WO Number"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !match.Found {
		t.Fatal("expected a match")
	}
	if match.TemplateID != "tpl-recent" {
		t.Errorf("expected freshest template to win, got '%s'", match.TemplateID)
	}
	if len(store.touchedIDs) != 1 || store.touchedIDs[0] != "tpl-recent" {
		t.Errorf("expected last_used_at refresh on tpl-recent, got %v", store.touchedIDs)
	}
}

func TestFindMatch_OrderInsensitiveButCardinalitySensitive(t *testing.T) {
	headers := []string{"A", "B", "C"}
	store := &mockTemplateStore{templates: []domain.MappingTemplate{
		templateWith("tpl-1", "abc", headers, nil),
	}}
	svc := newTemplateService(store)

	match, err := svc.FindMatch(context.Background(), "ops@plant.example", []string{"C", "A", "B"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !match.Found {
		t.Error("expected reordered headers to match")
	}

	match, err = svc.FindMatch(context.Background(), "ops@plant.example", []string{"A", "B"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if match.Found {
		t.Error("expected subset of headers not to match")
	}
}

func TestFindMatch_SkipsCorruptSignature(t *testing.T) {
	headers := []string{"WO", "Hours"}
	corrupt := templateWith("tpl-corrupt", "broken", headers, nil)
	corrupt.HeaderSignature = json.RawMessage(`{"not":"an array"}`)

	good := templateWith("tpl-good", "working", headers, nil)

	store := &mockTemplateStore{templates: []domain.MappingTemplate{corrupt, good}}
	svc := newTemplateService(store)

	match, err := svc.FindMatch(context.Background(), "ops@plant.example", headers)
	if err != nil {
		t.Fatalf("expected corrupt record to be skipped, got %v", err)
	}
	if !match.Found || match.TemplateID != "tpl-good" {
		t.Errorf("expected tpl-good to match past the corrupt one, got %+v", match)
	}
}

func TestFindMatch_NoMatch(t *testing.T) {
	store := &mockTemplateStore{templates: []domain.MappingTemplate{
		templateWith("tpl-1", "other", []string{"X", "Y"}, nil),
	}}
	svc := newTemplateService(store)

	match, err := svc.FindMatch(context.Background(), "ops@plant.example", []string{"A", "B"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if match.Found {
		t.Error("expected no match")
	}
	if len(store.touchedIDs) != 0 {
		t.Errorf("expected no touch without a match, got %v", store.touchedIDs)
	}
}

func TestFindMatch_TouchFailureDoesNotFailMatch(t *testing.T) {
	headers := []string{"WO"}
	store := &mockTemplateStore{
		templates: []domain.MappingTemplate{templateWith("tpl-1", "t", headers, nil)},
		touchErr:  errors.New("connection reset"),
	}
	svc := newTemplateService(store)

	match, err := svc.FindMatch(context.Background(), "ops@plant.example", headers)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !match.Found {
		t.Error("expected match despite touch failure")
	}
}

// --- Save ---

func TestSave_ValidTemplate(t *testing.T) {
	store := &mockTemplateStore{}
	svc := newTemplateService(store)

	created, err := svc.Save(context.Background(), "ops@plant.example", "  monthly export  ",
		[]string{"WO Number", "Hours"},
		[]domain.MappingEntry{{SourceColumn: "WO Number", TargetField: "work_order_number"}},
		nil,
	)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if created.TemplateName != "monthly export" {
		t.Errorf("expected trimmed name, got '%s'", created.TemplateName)
	}
	if created.ID == "" {
		t.Error("expected generated template ID")
	}

	decoded, err := domain.DecodeHeaderSignature(created.HeaderSignature)
	if err != nil {
		t.Fatalf("expected decodable signature, got %v", err)
	}
	if len(decoded) != 2 || decoded[0] != "WO Number" {
		t.Errorf("expected signature to preserve header order, got %v", decoded)
	}
}

func TestSave_RejectsBadInput(t *testing.T) {
	svc := newTemplateService(&mockTemplateStore{})
	zero := 0.0

	cases := []struct {
		name     string
		tplName  string
		headers  []string
		mapping  []domain.MappingEntry
		analysis *domain.TemplateAnalysisConfig
	}{
		{"empty name", "   ", []string{"A"}, []domain.MappingEntry{{SourceColumn: "A", TargetField: "f"}}, nil},
		{"name too long", string(make([]byte, 51)), []string{"A"}, []domain.MappingEntry{{SourceColumn: "A", TargetField: "f"}}, nil},
		{"no headers", "t", nil, []domain.MappingEntry{{SourceColumn: "A", TargetField: "f"}}, nil},
		{"empty mapping", "t", []string{"A"}, nil, nil},
		{"blank target field", "t", []string{"A"}, []domain.MappingEntry{{SourceColumn: "A", TargetField: " "}}, nil},
		{"zero labor rate", "t", []string{"A"}, []domain.MappingEntry{{SourceColumn: "A", TargetField: "f"}}, &domain.TemplateAnalysisConfig{LaborRateHourly: &zero}},
		{"zero scrap cost", "t", []string{"A"}, []domain.MappingEntry{{SourceColumn: "A", TargetField: "f"}}, &domain.TemplateAnalysisConfig{ScrapCostPerUnit: &zero}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Save(context.Background(), "ops@plant.example", tc.tplName, tc.headers, tc.mapping, tc.analysis)
			var verr *domain.ErrValidation
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSave_AnalysisConfigRequiresBothRates(t *testing.T) {
	svc := newTemplateService(&mockTemplateStore{})
	rate := 150.0
	scrap := 80.0
	threshold := 10.0
	mapping := []domain.MappingEntry{{SourceColumn: "A", TargetField: "work_order_number"}}

	rejected := []struct {
		name     string
		analysis *domain.TemplateAnalysisConfig
	}{
		{"empty config", &domain.TemplateAnalysisConfig{}},
		{"labor rate only", &domain.TemplateAnalysisConfig{LaborRateHourly: &rate}},
		{"scrap cost only", &domain.TemplateAnalysisConfig{ScrapCostPerUnit: &scrap}},
		{"threshold without rates", &domain.TemplateAnalysisConfig{VarianceThresholdPct: &threshold}},
	}
	for _, tc := range rejected {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Save(context.Background(), "ops@plant.example", "t", []string{"A"}, mapping, tc.analysis)
			var verr *domain.ErrValidation
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	// Both rates present is the minimal valid override.
	created, err := svc.Save(context.Background(), "ops@plant.example", "t", []string{"A"}, mapping,
		&domain.TemplateAnalysisConfig{LaborRateHourly: &rate, ScrapCostPerUnit: &scrap})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if created.AnalysisConfig == nil || *created.AnalysisConfig.LaborRateHourly != 150 {
		t.Errorf("expected analysis config stored, got %+v", created.AnalysisConfig)
	}
}

// --- Delete ---

func TestDelete_Idempotent(t *testing.T) {
	store := &mockTemplateStore{}
	svc := newTemplateService(store)

	// Store treats missing rows as success, so repeated deletes succeed.
	for i := 0; i < 2; i++ {
		if err := svc.Delete(context.Background(), "tpl-1", "ops@plant.example"); err != nil {
			t.Fatalf("delete %d: expected no error, got %v", i+1, err)
		}
	}
	if len(store.deleted) != 2 {
		t.Errorf("expected 2 delete calls, got %d", len(store.deleted))
	}
}

func TestDelete_RequiresOwner(t *testing.T) {
	svc := newTemplateService(&mockTemplateStore{})

	err := svc.Delete(context.Background(), "tpl-1", "")
	var verr *domain.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
