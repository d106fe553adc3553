// Package marketdata provides the market-data provider client: quote
// lookups and symbol search against an external, possibly-failing API.
package marketdata

import (
	"context"

	"github.com/portfolio-tracker/internal/types"
)

// Quote is the normalized quote shape returned by the provider.
// A closed market reports both ask and bid as zero.
type Quote struct {
	Symbol    string             `json:"symbol"`
	ShortName string             `json:"shortName"`
	Ask       float64            `json:"ask"`
	Bid       float64            `json:"bid"`
	Currency  types.CurrencyCode `json:"currency"`
}

// MarketClosed reports whether the quote indicates a closed market:
// both ask and bid at zero.
func (q *Quote) MarketClosed() bool {
	return q.Ask == 0 && q.Bid == 0
}

// SearchResult is one hit from a symbol search.
type SearchResult struct {
	Symbol    string `json:"symbol"`
	ShortName string `json:"shortName"`
}

// Provider is the quote provider consumed by the service layer.
type Provider interface {
	Quote(ctx context.Context, symbol string) (*Quote, error)
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// QuoteCache caches quotes for a short TTL so a valuation sweep does not
// hammer the provider with one request per share of the same ticker.
type QuoteCache interface {
	GetQuote(ctx context.Context, symbol string) (*Quote, bool, error)
	SetQuote(ctx context.Context, symbol string, quote *Quote) error
}
