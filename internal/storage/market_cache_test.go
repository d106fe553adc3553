package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-tracker/internal/marketdata"
)

func newTestMarketCache(t *testing.T) (*MarketCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewMarketCache(NewRedisCacheFromClient(client), 20*time.Second, 10*time.Minute), mr
}

func TestMarketCacheQuoteRoundTrip(t *testing.T) {
	cache, _ := newTestMarketCache(t)
	ctx := context.Background()

	_, hit, err := cache.GetQuote(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, hit)

	quote := &marketdata.Quote{
		Symbol:    "AAPL",
		ShortName: "Apple Inc.",
		Ask:       190.5,
		Bid:       190.2,
		Currency:  "usd",
	}
	require.NoError(t, cache.SetQuote(ctx, "AAPL", quote))

	got, hit, err := cache.GetQuote(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, quote, got)
}

func TestMarketCacheQuoteExpires(t *testing.T) {
	cache, mr := newTestMarketCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetQuote(ctx, "MSFT", &marketdata.Quote{Symbol: "MSFT", Ask: 400}))
	mr.FastForward(time.Minute)

	_, hit, err := cache.GetQuote(ctx, "MSFT")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestMarketCacheRatesRoundTrip(t *testing.T) {
	cache, _ := newTestMarketCache(t)
	ctx := context.Background()

	_, hit, err := cache.GetRates(ctx, "usd")
	require.NoError(t, err)
	assert.False(t, hit)

	rates := map[string]float64{"eur": 0.92, "gbp": 0.79}
	require.NoError(t, cache.SetRates(ctx, "usd", rates))

	got, hit, err := cache.GetRates(ctx, "usd")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, rates, got)
}
