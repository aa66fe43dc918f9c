package fxrate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPSource fetches daily rates from the configured provider endpoint. The
// caller (the resolver) owns timeouts through the request context; the source
// makes exactly one attempt.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource constructs the provider client.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type quoteResponse struct {
	Rate   decimal.Decimal `json:"rate"`
	Date   string          `json:"date"`
	Source string          `json:"source"`
}

// Fetch requests the rate for a date.
func (s *HTTPSource) Fetch(ctx context.Context, date time.Time) (Quote, error) {
	url := fmt.Sprintf("%s?date=%s", s.baseURL, date.Format("2006-01-02"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("fxrate: build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("fxrate: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("fxrate: provider returned %d", resp.StatusCode)
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("fxrate: decode response: %w", err)
	}

	sourceDate, err := time.Parse("2006-01-02", body.Date)
	if err != nil {
		sourceDate = date
	}
	return Quote{Value: body.Rate, SourceDate: sourceDate, Provider: body.Source}, nil
}
