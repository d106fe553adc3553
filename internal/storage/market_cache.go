package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/portfolio-tracker/internal/marketdata"
	"github.com/portfolio-tracker/internal/types"
)

// MarketCache caches quotes and currency rate tables in Redis. Quotes
// are cached briefly so a refresh sweep touching many holdings of the
// same ticker issues one provider call; rate tables live longer since
// FX rates move slowly.
type MarketCache struct {
	redis    *RedisCache
	quoteTTL time.Duration
	rateTTL  time.Duration
}

// NewMarketCache creates a market cache with the given TTLs.
func NewMarketCache(redis *RedisCache, quoteTTL, rateTTL time.Duration) *MarketCache {
	return &MarketCache{
		redis:    redis,
		quoteTTL: quoteTTL,
		rateTTL:  rateTTL,
	}
}

func quoteKey(symbol string) string {
	return fmt.Sprintf("quote:%s", symbol)
}

func ratesKey(base types.CurrencyCode) string {
	return fmt.Sprintf("rates:%s", base)
}

// GetQuote retrieves a cached quote. The second return value reports a
// cache hit; a miss is not an error.
func (c *MarketCache) GetQuote(ctx context.Context, symbol string) (*marketdata.Quote, bool, error) {
	data, err := c.redis.Get(ctx, quoteKey(symbol))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cached quote: %w", err)
	}

	var quote marketdata.Quote
	if err := json.Unmarshal([]byte(data), &quote); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached quote: %w", err)
	}
	return &quote, true, nil
}

// SetQuote caches a quote with the quote TTL.
func (c *MarketCache) SetQuote(ctx context.Context, symbol string, quote *marketdata.Quote) error {
	data, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("failed to marshal quote: %w", err)
	}
	if err := c.redis.Set(ctx, quoteKey(symbol), data, c.quoteTTL); err != nil {
		return fmt.Errorf("failed to cache quote: %w", err)
	}
	return nil
}

// GetRates retrieves a cached rate table for a base currency.
func (c *MarketCache) GetRates(ctx context.Context, base types.CurrencyCode) (map[string]float64, bool, error) {
	data, err := c.redis.Get(ctx, ratesKey(base))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cached rates: %w", err)
	}

	var rates map[string]float64
	if err := json.Unmarshal([]byte(data), &rates); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached rates: %w", err)
	}
	return rates, true, nil
}

// SetRates caches a rate table with the rates TTL.
func (c *MarketCache) SetRates(ctx context.Context, base types.CurrencyCode, rates map[string]float64) error {
	data, err := json.Marshal(rates)
	if err != nil {
		return fmt.Errorf("failed to marshal rates: %w", err)
	}
	if err := c.redis.Set(ctx, ratesKey(base), data, c.rateTTL); err != nil {
		return fmt.Errorf("failed to cache rates: %w", err)
	}
	return nil
}
