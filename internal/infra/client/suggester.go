// Package client holds HTTP clients for the Python ML services: column
// mapping suggestions and batch analysis.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/plantmetrics/mfg-insights-api/internal/domain"
	"github.com/plantmetrics/mfg-insights-api/internal/infra/resilience"
)

var tracer = otel.Tracer("client")

// SuggesterClient calls the AI column-mapping suggestion service.
type SuggesterClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewSuggesterClient creates a new SuggesterClient.
func NewSuggesterClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *SuggesterClient {
	return &SuggesterClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
	}
}

// Suggest asks the AI service for a best-effort mapping of unrecognized
// headers. Callers degrade to heuristics when this fails.
func (c *SuggesterClient) Suggest(ctx context.Context, req *domain.SuggestRequest) (*domain.SuggestResponse, error) {
	ctx, span := tracer.Start(ctx, "SuggesterClient.Suggest")
	defer span.End()
	span.SetAttributes(attribute.Int("headers.count", len(req.Headers)))

	var suggestResp domain.SuggestResponse

	result, err := c.cb.Execute(func() (any, error) {
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := json.Marshal(req)
			if err != nil {
				return err
			}

			url := fmt.Sprintf("%s/v1/mapping/suggest", c.baseURL)
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
				return fmt.Errorf("suggest API returned status %d", resp.StatusCode)
			}

			return json.NewDecoder(resp.Body).Decode(&suggestResp)
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return &suggestResp, nil
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "suggest", Err: err}
	}

	return result.(*domain.SuggestResponse), nil
}
