package marketdata

import (
	"context"

	"github.com/portfolio-tracker/internal/circuitbreaker"
	"github.com/portfolio-tracker/internal/retry"
)

// ResilientProvider wraps a Provider with retry and a circuit breaker.
// The upstream is untrusted: transient failures are retried with
// backoff, sustained failures open the circuit and fail fast.
type ResilientProvider struct {
	inner   Provider
	breaker *circuitbreaker.CircuitBreaker
	retry   *retry.Config
}

// NewResilientProvider wraps the given provider
func NewResilientProvider(inner Provider) *ResilientProvider {
	return &ResilientProvider{
		inner:   inner,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("market-data")),
		retry:   retry.DefaultConfig(),
	}
}

// Quote fetches a quote through the breaker, retrying transient failures
func (p *ResilientProvider) Quote(ctx context.Context, symbol string) (*Quote, error) {
	var quote *Quote
	err := p.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, p.retry, func(ctx context.Context, attempt int) error {
			q, err := p.inner.Quote(ctx, symbol)
			if err != nil {
				return err
			}
			quote = q
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

// Search runs a symbol search through the breaker, retrying transient failures
func (p *ResilientProvider) Search(ctx context.Context, query string) ([]SearchResult, error) {
	var results []SearchResult
	err := p.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, p.retry, func(ctx context.Context, attempt int) error {
			r, err := p.inner.Search(ctx, query)
			if err != nil {
				return err
			}
			results = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
