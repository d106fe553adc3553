package models

import (
	"time"

	"github.com/portfolio-tracker/internal/types"
)

// Share represents one open position: a ticker held within one portfolio.
// AmountOwned may be fractional. TotalInvested is the cost basis and is
// reduced proportionally on partial sells; a share whose amount reaches
// zero is deleted, never retained. Ask/Bid are the last prices seen by
// the valuation refresher, in Currency. MarketClosed records that the
// last quote came back with both ask and bid at zero, in which case the
// stored prices were preserved instead of overwritten.
type Share struct {
	ID            int64              `json:"id" db:"id"`
	PortfolioID   string             `json:"portfolioId" db:"portfolio_id"`
	OwnerID       string             `json:"ownerId" db:"owner_id"`
	Ticker        string             `json:"ticker" db:"ticker"`
	CompanyName   string             `json:"companyName" db:"company_name"`
	AmountOwned   float64            `json:"amountOwned" db:"amount_owned"`
	TotalInvested float64            `json:"totalInvested" db:"total_invested"`
	Ask           float64            `json:"ask" db:"ask"`
	Bid           float64            `json:"bid" db:"bid"`
	TotalValue    float64            `json:"totalValue" db:"total_value"`
	Currency      types.CurrencyCode `json:"currency" db:"currency"`
	MarketClosed  bool               `json:"marketClosed" db:"market_closed"`
	CreatedAt     time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time          `json:"updatedAt" db:"updated_at"`
}

// AverageCost returns the weighted-average cost per share. It is always
// derived, never stored.
func (s *Share) AverageCost() float64 {
	if s.AmountOwned == 0 {
		return 0
	}
	return s.TotalInvested / s.AmountOwned
}
