package service

import (
	"context"
	"errors"
	"math"

	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/storage"
	"github.com/portfolio-tracker/internal/types"
)

// quantityTolerance is the floating tolerance for treating a sell as a
// full liquidation. Quantities derived from money amounts carry float
// noise, so exact equality would strand dust positions.
const quantityTolerance = 1e-9

// BuyFill describes one settled buy to apply to the ledger. Cost and
// prices are already normalized to the settlement currency.
type BuyFill struct {
	PortfolioID string
	OwnerID     string
	Ticker      string
	CompanyName string
	Quantity    float64
	Cost        float64
	Ask         float64
	Bid         float64
	Currency    types.CurrencyCode
}

// ApplyBuy adds a fill to the holding for (portfolio, ticker), creating
// the holding on first buy. Both amount owned and total invested only
// ever increase here; the weighted-average cost falls out implicitly.
func ApplyBuy(ctx context.Context, tx storage.TradeTx, fill BuyFill) (*models.Share, error) {
	share, err := tx.GetHolding(ctx, fill.PortfolioID, fill.Ticker)
	if err != nil {
		var svcErr *types.ServiceError
		if !errors.As(err, &svcErr) || svcErr.Code != types.ErrHoldingNotFound {
			return nil, err
		}
		share = &models.Share{
			PortfolioID: fill.PortfolioID,
			OwnerID:     fill.OwnerID,
			Ticker:      fill.Ticker,
			CompanyName: fill.CompanyName,
		}
		revalue(share, fill.Quantity, fill.Cost, fill)
		if err := tx.CreateHolding(ctx, share); err != nil {
			return nil, err
		}
		return share, nil
	}

	revalue(share, share.AmountOwned+fill.Quantity, share.TotalInvested+fill.Cost, fill)
	if err := tx.UpdateHolding(ctx, share); err != nil {
		return nil, err
	}
	return share, nil
}

// ApplySell removes quantity from the holding. Selling the full amount,
// within tolerance, deletes the holding outright. A partial sell reduces
// the cost basis proportionally: selling a fraction f of the position
// removes exactly f of total invested, so the remainder keeps its
// average cost.
func ApplySell(ctx context.Context, tx storage.TradeTx, share *models.Share, quantity float64, bid float64) (removed bool, err error) {
	if quantity >= share.AmountOwned-quantityTolerance {
		if err := tx.DeleteHolding(ctx, share.ID); err != nil {
			return false, err
		}
		return true, nil
	}

	remaining := 1 - quantity/share.AmountOwned
	share.TotalInvested = sanitize(share.TotalInvested*remaining, 0)
	share.AmountOwned = sanitize(share.AmountOwned-quantity, 0)
	share.Bid = sanitize(bid, share.Bid)
	share.TotalValue = sanitize(share.Bid*share.AmountOwned, share.TotalValue)

	if err := tx.UpdateHolding(ctx, share); err != nil {
		return false, err
	}
	return false, nil
}

// ClampSellQuantity caps a requested sell at what is actually owned.
// Overshooting is a policy clamp, not an error.
func ClampSellQuantity(share *models.Share, requested float64) float64 {
	if requested > share.AmountOwned {
		return share.AmountOwned
	}
	return requested
}

func revalue(share *models.Share, amount, invested float64, fill BuyFill) {
	share.AmountOwned = sanitize(amount, 0)
	share.TotalInvested = sanitize(invested, 0)
	share.Ask = sanitize(fill.Ask, share.Ask)
	share.Bid = sanitize(fill.Bid, share.Bid)
	share.TotalValue = sanitize(share.Bid*share.AmountOwned, 0)
	share.Currency = fill.Currency
	share.MarketClosed = false
}

// sanitize collapses NaN and infinities to a fallback so they never
// reach storage.
func sanitize(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
