package models

import (
	"time"

	"github.com/portfolio-tracker/internal/types"
	"github.com/shopspring/decimal"
)

// TradeLog is the immutable record of one settled trade. Entries are
// append-only: never updated, never deleted. Owner and portfolio are
// denormalized onto the row for query convenience.
type TradeLog struct {
	ID          int64              `json:"id" db:"id"`
	Side        types.Side         `json:"side" db:"side"`
	Amount      decimal.Decimal    `json:"amount" db:"amount"`
	Quantity    float64            `json:"quantity" db:"quantity"`
	PricePer    float64            `json:"pricePer" db:"price_per"`
	Currency    types.CurrencyCode `json:"currency" db:"currency"`
	Ticker      string             `json:"ticker" db:"ticker"`
	PortfolioID string             `json:"portfolioId" db:"portfolio_id"`
	OwnerID     string             `json:"ownerId" db:"owner_id"`
	CreatedAt   time.Time          `json:"createdAt" db:"created_at"`
}
