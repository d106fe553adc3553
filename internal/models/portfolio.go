package models

import (
	"time"

	"github.com/portfolio-tracker/internal/types"
)

// Portfolio represents a named group of holdings owned by one user.
// Value and Invested are maintained by the valuation refresher and are
// denominated in the portfolio's currency. Each user has at most one
// portfolio with IsDefault set.
type Portfolio struct {
	ID        string             `json:"id" db:"id"`
	OwnerID   string             `json:"ownerId" db:"owner_id"`
	Name      string             `json:"name" db:"name"`
	Value     float64            `json:"value" db:"value"`
	Invested  float64            `json:"invested" db:"invested"`
	Currency  types.CurrencyCode `json:"currency" db:"currency"`
	IsDefault bool               `json:"isDefault" db:"is_default"`
	CreatedAt time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time          `json:"updatedAt" db:"updated_at"`
}
