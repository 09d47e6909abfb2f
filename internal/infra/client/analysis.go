package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"github.com/plantmetrics/mfg-insights-api/internal/domain"
	"github.com/plantmetrics/mfg-insights-api/internal/infra/resilience"
)

// AnalysisClient calls the batch analysis service.
type AnalysisClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewAnalysisClient creates a new AnalysisClient.
func NewAnalysisClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *AnalysisClient {
	return &AnalysisClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
	}
}

// Analyze runs the configured analyzers over a stored batch. The upload
// pipeline treats a failure here as non-fatal: data stays stored and the
// caller reports the analysis as unavailable.
func (c *AnalysisClient) Analyze(ctx context.Context, req *domain.AnalysisRequest) (*domain.AnalysisResponse, error) {
	ctx, span := tracer.Start(ctx, "AnalysisClient.Analyze")
	defer span.End()
	span.SetAttributes(
		attribute.String("customer.id", req.CustomerID),
		attribute.String("batch.id", req.BatchID),
	)

	var analysisResp domain.AnalysisResponse

	result, err := c.cb.Execute(func() (any, error) {
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := json.Marshal(req)
			if err != nil {
				return err
			}

			url := fmt.Sprintf("%s/v1/analysis/run", c.baseURL)
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			httpReq.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("analysis API returned status %d", resp.StatusCode)
			}

			return json.NewDecoder(resp.Body).Decode(&analysisResp)
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return &analysisResp, nil
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "analysis", Err: err}
	}

	return result.(*domain.AnalysisResponse), nil
}
