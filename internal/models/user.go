// Package models provides data models for the portfolio tracker.
package models

import (
	"time"

	"github.com/portfolio-tracker/internal/types"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// User represents a registered user. Cash is held to two decimal places
// in the user's preferred currency.
type User struct {
	ID                string             `json:"id" db:"id"`
	Username          string             `json:"username" db:"username"`
	PasswordHash      string             `json:"-" db:"password_hash"`
	FirstName         string             `json:"firstName" db:"first_name"`
	LastName          string             `json:"lastName" db:"last_name"`
	Cash              decimal.Decimal    `json:"cash" db:"cash"`
	PreferredCurrency types.CurrencyCode `json:"preferredCurrency" db:"preferred_currency"`
	CreatedAt         time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time          `json:"updatedAt" db:"updated_at"`
}

// SetPassword hashes the plaintext password onto the user.
func (u *User) SetPassword(plain string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword reports whether the plaintext password matches the stored hash.
func (u *User) CheckPassword(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plain)) == nil
}
