package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-tracker/internal/types"
)

func TestBuyWithMoneyAmount(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	user := w.store.addUser("u1", 1000, "usd")
	w.store.addPortfolio("p1", "u1", true, "usd")
	w.quotes.set("AAPL", 10, 9.5, "usd")

	result, err := w.settlement.Buy(ctx, TradeRequest{
		OwnerID: "u1",
		Ticker:  "aapl",
		Money:   moneyPtr(100),
	})
	require.NoError(t, err)

	assert.Equal(t, types.SideBuy, result.Side)
	assert.Equal(t, "AAPL", result.Ticker)
	assert.InDelta(t, 10.0, result.Quantity, 1e-9)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(100)))
	assert.True(t, user.Cash.Equal(decimal.NewFromInt(900)))

	share, err := w.store.FindHolding(ctx, "p1", "AAPL")
	require.NoError(t, err)
	assert.InDelta(t, 10.0, share.AmountOwned, 1e-9)
	assert.InDelta(t, 100.0, share.TotalInvested, 1e-9)
	assert.Equal(t, "AAPL Inc.", share.CompanyName)

	require.Len(t, w.store.logs, 1)
	entry := w.store.logs[0]
	assert.Equal(t, types.SideBuy, entry.Side)
	assert.InDelta(t, 10.0, entry.Quantity, 1e-9)
	assert.Equal(t, "p1", entry.PortfolioID)
}

func TestBuyWithShareQuantity(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	user := w.store.addUser("u1", 1000, "usd")
	w.store.addPortfolio("p1", "u1", true, "usd")
	w.quotes.set("AAPL", 12, 11.5, "usd")

	result, err := w.settlement.Buy(ctx, TradeRequest{
		OwnerID:  "u1",
		Ticker:   "AAPL",
		Quantity: floatPtr(5),
	})
	require.NoError(t, err)

	assert.True(t, result.Amount.Equal(decimal.NewFromInt(60)))
	assert.True(t, user.Cash.Equal(decimal.NewFromInt(940)))
}

func TestSellPartialProportionalCostReduction(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	user := w.store.addUser("u1", 0, "usd")
	w.store.addPortfolio("p1", "u1", true, "usd")
	share := w.store.addShare("p1", "u1", "AAPL", 10, 100, "usd")
	w.quotes.set("AAPL", 5.2, 5, "usd")

	result, err := w.settlement.Sell(ctx, TradeRequest{
		OwnerID:  "u1",
		Ticker:   "AAPL",
		Quantity: floatPtr(4),
	})
	require.NoError(t, err)

	assert.InDelta(t, 4.0, result.Quantity, 1e-9)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(20)))
	assert.InDelta(t, 6.0, share.AmountOwned, 1e-9)
	assert.InDelta(t, 60.0, share.TotalInvested, 1e-9)
	assert.True(t, user.Cash.Equal(decimal.NewFromInt(20)))

	require.Len(t, w.store.logs, 1)
	assert.Equal(t, types.SideSell, w.store.logs[0].Side)
}

func TestSellFullLiquidationRemovesHolding(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	w.store.addUser("u1", 0, "usd")
	w.store.addPortfolio("p1", "u1", true, "usd")
	w.store.addShare("p1", "u1", "AAPL", 10, 100, "usd")
	w.quotes.set("AAPL", 5.2, 5, "usd")

	_, err := w.settlement.Sell(ctx, TradeRequest{
		OwnerID:  "u1",
		Ticker:   "AAPL",
		Quantity: floatPtr(10),
	})
	require.NoError(t, err)

	_, err = w.store.FindHolding(ctx, "p1", "AAPL")
	assert.True(t, IsServiceError(err, types.ErrHoldingNotFound))
}

func TestSellClampsToOwnedQuantity(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	user := w.store.addUser("u1", 0, "usd")
	w.store.addPortfolio("p1", "u1", true, "usd")
	w.store.addShare("p1", "u1", "AAPL", 6, 60, "usd")
	w.quotes.set("AAPL", 5.2, 5, "usd")

	result, err := w.settlement.Sell(ctx, TradeRequest{
		OwnerID:  "u1",
		Ticker:   "AAPL",
		Quantity: floatPtr(100),
	})
	require.NoError(t, err)

	// Settles for exactly what was owned
	assert.InDelta(t, 6.0, result.Quantity, 1e-9)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(30)))
	assert.True(t, user.Cash.Equal(decimal.NewFromInt(30)))

	_, err = w.store.FindHolding(ctx, "p1", "AAPL")
	assert.True(t, IsServiceError(err, types.ErrHoldingNotFound))
}

func TestBuyRejectsBothQuantityAndMoney(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	user := w.store.addUser("u1", 1000, "usd")
	w.store.addPortfolio("p1", "u1", true, "usd")
	w.quotes.set("AAPL", 10, 9.5, "usd")

	_, err := w.settlement.Buy(ctx, TradeRequest{
		OwnerID:  "u1",
		Ticker:   "AAPL",
		Quantity: floatPtr(5),
		Money:    moneyPtr(100),
	})
	assert.True(t, IsServiceError(err, types.ErrInvalidInput))

	_, err = w.settlement.Buy(ctx, TradeRequest{OwnerID: "u1", Ticker: "AAPL"})
	assert.True(t, IsServiceError(err, types.ErrInvalidInput))

	// Nothing moved
	assert.True(t, user.Cash.Equal(decimal.NewFromInt(1000)))
	assert.Empty(t, w.store.shares)
	assert.Empty(t, w.store.logs)
}

func TestSellAmbiguousPortfolio(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	user := w.store.addUser("u1", 0, "usd")
	w.store.addPortfolio("p1", "u1", true, "usd")
	w.store.addPortfolio("p2", "u1", false, "usd")
	w.store.addShare("p1", "u1", "AAPL", 10, 100, "usd")
	w.store.addShare("p2", "u1", "AAPL", 5, 50, "usd")
	w.quotes.set("AAPL", 5.2, 5, "usd")

	_, err := w.settlement.Sell(ctx, TradeRequest{
		OwnerID:  "u1",
		Ticker:   "AAPL",
		Quantity: floatPtr(2),
	})
	assert.True(t, IsServiceError(err, types.ErrAmbiguousPortfolio))
	assert.True(t, user.Cash.IsZero())
	assert.Empty(t, w.store.logs)

	// Naming the portfolio resolves the ambiguity
	result, err := w.settlement.Sell(ctx, TradeRequest{
		OwnerID:     "u1",
		Ticker:      "AAPL",
		PortfolioID: "p2",
		Quantity:    floatPtr(2),
	})
	require.NoError(t, err)
	assert.Equal(t, "p2", result.PortfolioID)
}

func TestSellWithoutHolding(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	w.store.addUser("u1", 0, "usd")
	w.store.addPortfolio("p1", "u1", true, "usd")
	w.quotes.set("AAPL", 5.2, 5, "usd")

	_, err := w.settlement.Sell(ctx, TradeRequest{
		OwnerID:  "u1",
		Ticker:   "AAPL",
		Quantity: floatPtr(2),
	})
	assert.True(t, IsServiceError(err, types.ErrHoldingNotFound))
}

func TestBuyInsufficientFunds(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	user := w.store.addUser("u1", 50, "usd")
	w.store.addPortfolio("p1", "u1", true, "usd")
	w.quotes.set("AAPL", 10, 9.5, "usd")

	_, err := w.settlement.Buy(ctx, TradeRequest{
		OwnerID: "u1",
		Ticker:  "AAPL",
		Money:   moneyPtr(100),
	})
	assert.True(t, IsServiceError(err, types.ErrInsufficientFunds))

	assert.True(t, user.Cash.Equal(decimal.NewFromInt(50)))
	assert.Empty(t, w.store.shares)
	assert.Empty(t, w.store.logs)
}

func TestBuyMarketClosed(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	w.store.addUser("u1", 1000, "usd")
	w.store.addPortfolio("p1", "u1", true, "usd")
	w.quotes.set("AAPL", 0, 0, "usd")

	_, err := w.settlement.Buy(ctx, TradeRequest{
		OwnerID: "u1",
		Ticker:  "AAPL",
		Money:   moneyPtr(100),
	})
	assert.True(t, IsServiceError(err, types.ErrMarketClosed))
}

func TestBuyWithoutDefaultPortfolio(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	w.store.addUser("u1", 1000, "usd")
	w.quotes.set("AAPL", 10, 9.5, "usd")

	_, err := w.settlement.Buy(ctx, TradeRequest{
		OwnerID: "u1",
		Ticker:  "AAPL",
		Money:   moneyPtr(100),
	})
	assert.True(t, IsServiceError(err, types.ErrNoPortfolio))
}

func TestBuyRejectsForeignPortfolio(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	w.store.addUser("u1", 1000, "usd")
	w.store.addUser("u2", 1000, "usd")
	w.store.addPortfolio("p2", "u2", true, "usd")
	w.quotes.set("AAPL", 10, 9.5, "usd")

	_, err := w.settlement.Buy(ctx, TradeRequest{
		OwnerID:     "u1",
		Ticker:      "AAPL",
		PortfolioID: "p2",
		Money:       moneyPtr(100),
	})
	assert.True(t, IsServiceError(err, types.ErrPortfolioNotFound))
}

func TestBuyConvertsQuoteCurrency(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	user := w.store.addUser("u1", 1000, "gbp")
	w.store.addPortfolio("p1", "u1", true, "gbp")
	w.quotes.set("AAPL", 10, 9.5, "usd")
	w.converter.rates["usd:gbp"] = 0.8

	result, err := w.settlement.Buy(ctx, TradeRequest{
		OwnerID:  "u1",
		Ticker:   "AAPL",
		Quantity: floatPtr(5),
	})
	require.NoError(t, err)

	// Ask 10 usd converts to 8 gbp
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(40)), "got %s", result.Amount)
	assert.Equal(t, types.CurrencyCode("gbp"), result.Currency)
	assert.True(t, user.Cash.Equal(decimal.NewFromInt(960)))
}

func TestConcurrentSellsCannotOversell(t *testing.T) {
	w := newWorld()
	ctx := context.Background()
	user := w.store.addUser("u1", 0, "usd")
	w.store.addPortfolio("p1", "u1", true, "usd")
	w.store.addShare("p1", "u1", "AAPL", 10, 100, "usd")
	w.quotes.set("AAPL", 5.2, 5, "usd")

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := w.settlement.Sell(ctx, TradeRequest{
				OwnerID:  "u1",
				Ticker:   "AAPL",
				Quantity: floatPtr(10),
			})
			done <- err
		}()
	}
	first, second := <-done, <-done

	// One sell settles the full position, the other finds no holding
	errs := 0
	for _, err := range []error{first, second} {
		if err != nil {
			assert.True(t, IsServiceError(err, types.ErrHoldingNotFound))
			errs++
		}
	}
	assert.Equal(t, 1, errs)
	// Proceeds credited exactly once
	assert.True(t, user.Cash.Equal(decimal.NewFromInt(50)), "got %s", user.Cash)
}
