package marketdata

import (
	"context"

	"github.com/portfolio-tracker/internal/logging"
)

// CachedProvider serves quotes from a short-TTL cache before hitting the
// upstream. Search results are not cached: searches are interactive and
// rare compared to the per-share quote traffic of a valuation sweep.
type CachedProvider struct {
	inner Provider
	cache QuoteCache
}

// NewCachedProvider wraps a provider with a quote cache
func NewCachedProvider(inner Provider, cache QuoteCache) *CachedProvider {
	return &CachedProvider{inner: inner, cache: cache}
}

// Quote returns a cached quote when fresh, otherwise fetches and caches
func (p *CachedProvider) Quote(ctx context.Context, symbol string) (*Quote, error) {
	quote, hit, err := p.cache.GetQuote(ctx, symbol)
	if err != nil {
		// Cache trouble is not a reason to fail the lookup
		logging.FromContext(ctx).WithError(err).Warn("Quote cache read failed")
	} else if hit {
		return quote, nil
	}

	quote, err = p.inner.Quote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if err := p.cache.SetQuote(ctx, symbol, quote); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Quote cache write failed")
	}
	return quote, nil
}

// Search passes through to the upstream provider
func (p *CachedProvider) Search(ctx context.Context, query string) ([]SearchResult, error) {
	return p.inner.Search(ctx, query)
}
