package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
)

// UserService handles cash movement and account-level reads
type UserService struct {
	users     UserRepository
	shares    ShareRepository
	tradeLogs TradeLogRepository
	valuation *ValuationService
}

// NewUserService creates a new user service
func NewUserService(users UserRepository, shares ShareRepository, tradeLogs TradeLogRepository, valuation *ValuationService) *UserService {
	return &UserService{
		users:     users,
		shares:    shares,
		tradeLogs: tradeLogs,
		valuation: valuation,
	}
}

// Deposit adds cash to the user's balance and returns the new balance
func (s *UserService) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, invalidInput("deposit amount must be positive")
	}
	return s.users.AdjustCash(ctx, userID, amount.Round(2))
}

// Withdraw removes cash from the user's balance and returns the new
// balance. Overdrafts are rejected.
func (s *UserService) Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, invalidInput("withdrawal amount must be positive")
	}
	return s.users.AdjustCash(ctx, userID, amount.Round(2).Neg())
}

// Balance returns the user's current cash balance
func (s *UserService) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return s.users.CashBalance(ctx, userID)
}

// Shares returns all of the user's holdings, freshly valued. The
// refresh is best-effort: listing still succeeds on stale prices.
func (s *UserService) Shares(ctx context.Context, userID string) ([]*models.Share, error) {
	if err := s.valuation.RefreshOwner(ctx, userID); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("user_id", userID).Warn("Pre-read valuation refresh failed")
	}
	return s.shares.ListByOwner(ctx, userID)
}

// TradeLogPage is one page of trade log entries
type TradeLogPage struct {
	Entries []*models.TradeLog `json:"entries"`
	Total   int64              `json:"total"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
}

// TradeLogs returns a page of the user's trade log, newest first
func (s *UserService) TradeLogs(ctx context.Context, userID string, limit, offset int) (*TradeLogPage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.tradeLogs.ListByOwner(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.tradeLogs.CountByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &TradeLogPage{
		Entries: entries,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}, nil
}
