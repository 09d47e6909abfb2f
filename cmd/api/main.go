package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/plantmetrics/mfg-insights-api/internal/config"
	"github.com/plantmetrics/mfg-insights-api/internal/domain"
	"github.com/plantmetrics/mfg-insights-api/internal/handler"
	"github.com/plantmetrics/mfg-insights-api/internal/infra/cache"
	"github.com/plantmetrics/mfg-insights-api/internal/infra/client"
	"github.com/plantmetrics/mfg-insights-api/internal/infra/observability"
	"github.com/plantmetrics/mfg-insights-api/internal/infra/resilience"
	"github.com/plantmetrics/mfg-insights-api/internal/infra/supabase"
	"github.com/plantmetrics/mfg-insights-api/internal/service"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("suggest_api_url", cfg.SuggestAPIURL),
		zap.String("analysis_api_url", cfg.AnalysisAPIURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
	)

	if cfg.SupabaseURL == "" {
		logger.Fatal("SUPABASE_URL is required")
	}

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "mfg-insights-api")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	configCache := cache.New[*domain.CustomerAnalysisConfig](cfg.CacheTTL)
	defer configCache.Stop()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	supabaseCB := resilience.NewCircuitBreaker("supabase")
	suggestCB := resilience.NewCircuitBreaker("suggest-api")
	analysisCB := resilience.NewCircuitBreaker("analysis-api")
	uploadBulkhead := resilience.NewBulkhead(cfg.MaxConcurrency)

	// --- Clients ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	supabaseClient := supabase.NewClient(
		httpClient,
		cfg.SupabaseURL,
		cfg.SupabaseAnonKey,
		cfg.SupabaseServiceKey,
		supabaseCB,
		resilienceCfg,
		logger,
	)
	suggesterClient := client.NewSuggesterClient(httpClient, cfg.SuggestAPIURL, suggestCB, resilienceCfg)
	analysisClient := client.NewAnalysisClient(httpClient, cfg.AnalysisAPIURL, analysisCB, resilienceCfg)

	// --- Services ---
	templateSvc := service.NewTemplateService(supabaseClient, metrics, logger)
	configSvc := service.NewConfigService(supabaseClient, configCache, metrics, logger)
	uploadSvc := service.NewUploadService(
		templateSvc,
		configSvc,
		supabaseClient,
		suggesterClient,
		analysisClient,
		uploadBulkhead,
		metrics,
		logger,
	)

	// --- Router ---
	router := handler.NewRouter(templateSvc, configSvc, uploadSvc, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
