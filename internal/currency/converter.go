// Package currency provides conversion between currencies via an
// external rates provider.
package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/portfolio-tracker/internal/config"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/retry"
	"github.com/portfolio-tracker/internal/types"
)

// Converter converts amounts between currencies.
type Converter interface {
	// Convert returns amount expressed in the target currency. It never
	// fabricates a rate: a missing or invalid rate is an error.
	Convert(ctx context.Context, amount float64, from, to types.CurrencyCode) (float64, error)
	// ValidCode reports whether the provider knows the currency code,
	// i.e. returns a non-empty rate table for it.
	ValidCode(ctx context.Context, code types.CurrencyCode) (bool, error)
}

// RateCache caches per-currency rate tables.
type RateCache interface {
	GetRates(ctx context.Context, base types.CurrencyCode) (map[string]float64, bool, error)
	SetRates(ctx context.Context, base types.CurrencyCode, rates map[string]float64) error
}

// Client is the HTTP rates-provider client. Rate tables are cached with
// a short TTL; FX rates move slowly relative to the refresh interval.
type Client struct {
	baseURL string
	client  *http.Client
	cache   RateCache
	retry   *retry.Config
}

// NewClient creates a rates client. cache may be nil, in which case
// every conversion hits the provider.
func NewClient(cfg *config.CurrencyConfig, cache RateCache) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		cache:   cache,
		retry:   retry.DefaultConfig(),
	}
}

// Convert converts amount from one currency to another.
// Zero amounts and same-currency conversions short-circuit without
// calling the provider.
func (c *Client) Convert(ctx context.Context, amount float64, from, to types.CurrencyCode) (float64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, fmt.Errorf("invalid amount")
	}
	if !from.Valid() || !to.Valid() {
		return 0, &types.ServiceError{
			Code:    types.ErrInvalidCurrency,
			Message: fmt.Sprintf("invalid currency code: %s -> %s", from, to),
		}
	}
	if amount == 0 {
		return 0, nil
	}
	if from == to {
		return amount, nil
	}

	rates, err := c.rates(ctx, from)
	if err != nil {
		return 0, err
	}

	rate, ok := rates[string(to)]
	if !ok || math.IsNaN(rate) || rate <= 0 {
		return 0, &types.ServiceError{
			Code:    types.ErrConversionFailed,
			Message: fmt.Sprintf("no rate from %s to %s", from, to),
		}
	}

	result := amount * rate
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, &types.ServiceError{
			Code:    types.ErrConversionFailed,
			Message: fmt.Sprintf("conversion from %s to %s produced an invalid result", from, to),
		}
	}
	return result, nil
}

// ValidCode reports whether the provider resolves the code to at least
// one real rate.
func (c *Client) ValidCode(ctx context.Context, code types.CurrencyCode) (bool, error) {
	if !code.Valid() {
		return false, nil
	}
	rates, err := c.rates(ctx, code)
	if err != nil {
		return false, err
	}
	return len(rates) > 0, nil
}

// rates returns the rate table for a base currency, cached when possible
func (c *Client) rates(ctx context.Context, base types.CurrencyCode) (map[string]float64, error) {
	if c.cache != nil {
		rates, hit, err := c.cache.GetRates(ctx, base)
		if err != nil {
			logging.FromContext(ctx).WithError(err).Warn("Rate cache read failed")
		} else if hit {
			return rates, nil
		}
	}

	var rates map[string]float64
	err := retry.Do(ctx, c.retry, func(ctx context.Context, attempt int) error {
		r, err := c.fetchRates(ctx, base)
		if err != nil {
			return err
		}
		rates = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.SetRates(ctx, base, rates); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("Rate cache write failed")
		}
	}
	return rates, nil
}

// fetchRates fetches the raw rate table for a base currency.
// The provider responds with {"date": "...", "<base>": {"usd": 1.1, ...}}.
func (c *Client) fetchRates(ctx context.Context, base types.CurrencyCode) (map[string]float64, error) {
	endpoint := fmt.Sprintf("%s/v1/currencies/%s.json", c.baseURL, base)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rates request for %s failed: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Unknown currency: an empty table, not a transport error
		return map[string]float64{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode rates: %w", err)
	}

	raw, ok := payload[string(base)]
	if !ok {
		return map[string]float64{}, nil
	}

	var rates map[string]float64
	if err := json.Unmarshal(raw, &rates); err != nil {
		return nil, fmt.Errorf("failed to decode rate table for %s: %w", base, err)
	}
	return rates, nil
}
