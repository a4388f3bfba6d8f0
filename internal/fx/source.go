package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPSource fetches per-base daily rate tables from the free currency-api
// CDN. The endpoint shape is {baseURL}/{base}.json returning
// {"date": "...", "{base}": {"{quote}": rate, ...}} with lowercase codes.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates a source with a short request timeout so a slow
// provider falls through to the cached-rate path instead of hanging callers.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSource{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchRates implements RateSource.
func (s *HTTPSource) FetchRates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	lower := strings.ToLower(base)
	url := fmt.Sprintf("%s/%s.json", s.baseURL, lower)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("FetchRates: building request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("FetchRates: %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("FetchRates: %s: rate API returned %d", base, resp.StatusCode)
	}

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("FetchRates: %s: decoding payload: %w", base, err)
	}
	raw, ok := payload[lower]
	if !ok {
		return nil, fmt.Errorf("FetchRates: %s: payload missing base table", base)
	}
	var table map[string]float64
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("FetchRates: %s: decoding rate table: %w", base, err)
	}

	out := make(map[string]decimal.Decimal, len(table))
	for quote, rate := range table {
		out[strings.ToUpper(quote)] = decimal.NewFromFloat(rate)
	}
	return out, nil
}
