// Package types provides common type definitions for the portfolio tracker.
package types

import "strings"

// Side represents the direction of a trade.
type Side string

const (
	// SideBuy represents a buy trade
	SideBuy Side = "buy"
	// SideSell represents a sell trade
	SideSell Side = "sell"
)

// CurrencyCode is a lowercase ISO-4217 style currency code (e.g. "usd").
// The quote and rates providers both speak lowercase codes, so codes are
// normalized on the way in.
type CurrencyCode string

// NormalizeCurrency lowercases and trims a currency code.
func NormalizeCurrency(code string) CurrencyCode {
	return CurrencyCode(strings.ToLower(strings.TrimSpace(code)))
}

// Valid reports whether the code is shaped like a three-letter currency
// code. Whether it actually resolves to a rate is the converter's job.
func (c CurrencyCode) Valid() bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Common service error codes used across the service layer.
const (
	ErrInvalidInput       = "INVALID_INPUT"
	ErrNoPortfolio        = "NO_PORTFOLIO"
	ErrAmbiguousPortfolio = "AMBIGUOUS_PORTFOLIO"
	ErrHoldingNotFound    = "HOLDING_NOT_FOUND"
	ErrPortfolioNotFound  = "PORTFOLIO_NOT_FOUND"
	ErrUserNotFound       = "USER_NOT_FOUND"
	ErrUsernameTaken      = "USERNAME_TAKEN"
	ErrMarketClosed       = "MARKET_CLOSED"
	ErrInsufficientFunds  = "INSUFFICIENT_FUNDS"
	ErrPortfolioNotEmpty  = "PORTFOLIO_NOT_EMPTY"
	ErrInvalidCurrency    = "INVALID_CURRENCY"
	ErrQuoteUnavailable   = "QUOTE_UNAVAILABLE"
	ErrConversionFailed   = "CONVERSION_FAILED"
	ErrUnauthorized       = "UNAUTHORIZED"
)
