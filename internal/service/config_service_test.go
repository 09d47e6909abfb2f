package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/plantmetrics/mfg-insights-api/internal/domain"
	"github.com/plantmetrics/mfg-insights-api/internal/infra/cache"
	"github.com/plantmetrics/mfg-insights-api/internal/infra/observability"
	"github.com/plantmetrics/mfg-insights-api/internal/service"
)

// --- Mocks ---

type mockConfigStore struct {
	stored    *domain.CustomerAnalysisConfig
	getErr    error
	insertErr error
	updateErr error
	inserts   int
	updates   int
}

func (m *mockConfigStore) GetConfig(_ context.Context, customerProfileID string) (*domain.CustomerAnalysisConfig, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.stored == nil {
		return nil, &domain.ErrNotFound{Resource: "analysis_config", ID: customerProfileID}
	}
	cp := *m.stored
	return &cp, nil
}

func (m *mockConfigStore) InsertConfig(_ context.Context, cfg *domain.CustomerAnalysisConfig) (*domain.CustomerAnalysisConfig, error) {
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	m.inserts++
	cp := *cfg
	m.stored = &cp
	return cfg, nil
}

func (m *mockConfigStore) UpdateConfig(_ context.Context, cfg *domain.CustomerAnalysisConfig) (*domain.CustomerAnalysisConfig, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	m.updates++
	cp := *cfg
	m.stored = &cp
	return cfg, nil
}

func newConfigService(store *mockConfigStore) *service.ConfigService {
	return service.NewConfigService(store, cache.New[*domain.CustomerAnalysisConfig](5*time.Minute), observability.NewMetrics(), zap.NewNop())
}

func float64p(v float64) *float64 { return &v }
func boolp(v bool) *bool          { return &v }

// --- GetEffective ---

func TestGetEffective_SynthesizesDefaultWithoutPersisting(t *testing.T) {
	store := &mockConfigStore{}
	svc := newConfigService(store)

	cfg, err := svc.GetEffective(context.Background(), "cust-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.Version != 0 {
		t.Errorf("expected synthesized default version 0, got %d", cfg.Version)
	}
	if !cfg.RunCostAnalysis || !cfg.RunQualityAnalysis || !cfg.RunEquipmentAnalysis || !cfg.RunEfficiencyAnalysis {
		t.Error("expected all analyzers enabled by default")
	}
	if cfg.CostLaborRateHourly != 200 {
		t.Errorf("expected default labor rate 200, got %v", cfg.CostLaborRateHourly)
	}
	if cfg.QualityScrapCostPerUnit != 75 {
		t.Errorf("expected default scrap cost 75, got %v", cfg.QualityScrapCostPerUnit)
	}
	if store.inserts != 0 || store.updates != 0 {
		t.Error("default must never be written back")
	}
}

func TestGetEffective_ReturnsStoredConfig(t *testing.T) {
	stored := domain.DefaultAnalysisConfig("cust-1")
	stored.Version = 3
	stored.CostLaborRateHourly = 150
	store := &mockConfigStore{stored: stored}
	svc := newConfigService(store)

	cfg, err := svc.GetEffective(context.Background(), "cust-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Version != 3 || cfg.CostLaborRateHourly != 150 {
		t.Errorf("expected stored config, got version=%d rate=%v", cfg.Version, cfg.CostLaborRateHourly)
	}
}

func TestGetEffective_PropagatesStoreFailure(t *testing.T) {
	store := &mockConfigStore{getErr: &domain.ErrExternalService{Service: "supabase/configs", Err: errors.New("timeout")}}
	svc := newConfigService(store)

	_, err := svc.GetEffective(context.Background(), "cust-1")
	if err == nil {
		t.Fatal("expected store failure to propagate, not default to be served")
	}
}

// --- Upsert ---

func TestUpsert_FirstWriteIsVersionOne(t *testing.T) {
	store := &mockConfigStore{}
	svc := newConfigService(store)

	cfg, err := svc.Upsert(context.Background(), "cust-1", &domain.AnalysisConfigPatch{
		CostLaborRateHourly: float64p(250),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("expected version 1 on first write, got %d", cfg.Version)
	}
	if cfg.CostLaborRateHourly != 250 {
		t.Errorf("expected patched labor rate 250, got %v", cfg.CostLaborRateHourly)
	}
	// Unpatched fields keep their defaults.
	if cfg.QualityScrapCostPerUnit != 75 {
		t.Errorf("expected default scrap cost preserved, got %v", cfg.QualityScrapCostPerUnit)
	}
	if store.inserts != 1 || store.updates != 0 {
		t.Errorf("expected 1 insert and 0 updates, got %d/%d", store.inserts, store.updates)
	}
}

func TestUpsert_VersionIncrementsByOne(t *testing.T) {
	store := &mockConfigStore{}
	svc := newConfigService(store)

	for want := 1; want <= 3; want++ {
		cfg, err := svc.Upsert(context.Background(), "cust-1", &domain.AnalysisConfigPatch{
			CostVarianceThresholdPct: float64p(float64(10 + want)),
		})
		if err != nil {
			t.Fatalf("upsert %d: expected no error, got %v", want, err)
		}
		if cfg.Version != want {
			t.Errorf("upsert %d: expected version %d, got %d", want, want, cfg.Version)
		}
	}
}

func TestUpsert_PatchMergePreservesEarlierCustomization(t *testing.T) {
	store := &mockConfigStore{}
	svc := newConfigService(store)

	if _, err := svc.Upsert(context.Background(), "cust-1", &domain.AnalysisConfigPatch{
		CostLaborRateHourly: float64p(300),
	}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	cfg, err := svc.Upsert(context.Background(), "cust-1", &domain.AnalysisConfigPatch{
		RunEquipmentAnalysis: boolp(false),
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if cfg.CostLaborRateHourly != 300 {
		t.Errorf("expected earlier labor rate 300 preserved, got %v", cfg.CostLaborRateHourly)
	}
	if cfg.RunEquipmentAnalysis {
		t.Error("expected equipment analysis disabled")
	}
	if cfg.Version != 2 {
		t.Errorf("expected version 2, got %d", cfg.Version)
	}
}

func TestUpsert_RejectsInvalidPatch(t *testing.T) {
	svc := newConfigService(&mockConfigStore{})

	cases := []struct {
		name  string
		patch *domain.AnalysisConfigPatch
	}{
		{"zero labor rate", &domain.AnalysisConfigPatch{CostLaborRateHourly: float64p(0)}},
		{"negative scrap cost", &domain.AnalysisConfigPatch{QualityScrapCostPerUnit: float64p(-5)}},
		{"confidence above 100", &domain.AnalysisConfigPatch{ConfidenceMinPct: float64p(120)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Upsert(context.Background(), "cust-1", tc.patch)
			var verr *domain.ErrValidation
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestUpsert_InvalidatesCachedConfig(t *testing.T) {
	store := &mockConfigStore{}
	svc := newConfigService(store)

	// Prime the cache with the stored config.
	stored := domain.DefaultAnalysisConfig("cust-1")
	stored.Version = 1
	store.stored = stored
	if _, err := svc.GetEffective(context.Background(), "cust-1"); err != nil {
		t.Fatalf("prime: %v", err)
	}

	if _, err := svc.Upsert(context.Background(), "cust-1", &domain.AnalysisConfigPatch{
		CostLaborRateHourly: float64p(400),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	cfg, err := svc.GetEffective(context.Background(), "cust-1")
	if err != nil {
		t.Fatalf("read after upsert: %v", err)
	}
	if cfg.CostLaborRateHourly != 400 {
		t.Errorf("expected fresh config after upsert, got stale rate %v", cfg.CostLaborRateHourly)
	}
}
