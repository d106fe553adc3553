package service

import (
	"context"
	"fmt"

	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
)

// PortfolioService handles portfolio management and valuation reads
type PortfolioService struct {
	users      UserRepository
	portfolios PortfolioRepository
	shares     ShareRepository
	valuation  *ValuationService
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(users UserRepository, portfolios PortfolioRepository, shares ShareRepository, valuation *ValuationService) *PortfolioService {
	return &PortfolioService{
		users:      users,
		portfolios: portfolios,
		shares:     shares,
		valuation:  valuation,
	}
}

// CreatePortfolioInput represents input for creating a portfolio
type CreatePortfolioInput struct {
	OwnerID   string
	Name      string
	IsDefault bool
}

// Create creates a portfolio denominated in the owner's preferred
// currency.
func (s *PortfolioService) Create(ctx context.Context, in CreatePortfolioInput) (*models.Portfolio, error) {
	if in.Name == "" {
		return nil, invalidInput("portfolio name is required")
	}

	user, err := s.users.GetByID(ctx, in.OwnerID)
	if err != nil {
		return nil, err
	}

	portfolio := &models.Portfolio{
		OwnerID:   in.OwnerID,
		Name:      in.Name,
		Currency:  user.PreferredCurrency,
		IsDefault: in.IsDefault,
	}
	if err := s.portfolios.Create(ctx, portfolio); err != nil {
		return nil, err
	}
	return portfolio, nil
}

// List returns all of the owner's portfolios
func (s *PortfolioService) List(ctx context.Context, ownerID string) ([]*models.Portfolio, error) {
	return s.portfolios.ListByOwner(ctx, ownerID)
}

// Get returns one portfolio, verifying ownership
func (s *PortfolioService) Get(ctx context.Context, ownerID, id string) (*models.Portfolio, error) {
	portfolio, err := s.portfolios.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if portfolio.OwnerID != ownerID {
		return nil, &types.ServiceError{
			Code:    types.ErrPortfolioNotFound,
			Message: fmt.Sprintf("portfolio not found: %s", id),
		}
	}
	return portfolio, nil
}

// Rename renames a portfolio
func (s *PortfolioService) Rename(ctx context.Context, ownerID, id, name string) error {
	if name == "" {
		return invalidInput("portfolio name is required")
	}
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	return s.portfolios.UpdateName(ctx, id, name)
}

// SetDefault marks a portfolio as the owner's default
func (s *PortfolioService) SetDefault(ctx context.Context, ownerID, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	return s.portfolios.SetDefault(ctx, ownerID, id)
}

// Delete removes an empty portfolio. One that still holds shares is
// rejected.
func (s *PortfolioService) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	return s.portfolios.Delete(ctx, id)
}

// Holdings lists the shares in a portfolio
func (s *PortfolioService) Holdings(ctx context.Context, ownerID, id string) ([]*models.Share, error) {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.shares.ListByPortfolio(ctx, id)
}

// PortfolioValue is a freshly refreshed portfolio valuation
type PortfolioValue struct {
	PortfolioID string             `json:"portfolioId"`
	Value       float64            `json:"value"`
	Invested    float64            `json:"invested"`
	Gain        float64            `json:"gain"`
	GainPercent float64            `json:"gainPercent"`
	Currency    types.CurrencyCode `json:"currency"`
}

// Value refreshes the portfolio and returns its current valuation and
// return on investment.
func (s *PortfolioService) Value(ctx context.Context, ownerID, id string) (*PortfolioValue, error) {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}

	portfolio, err := s.valuation.RefreshPortfolio(ctx, id)
	if err != nil {
		return nil, err
	}

	v := &PortfolioValue{
		PortfolioID: portfolio.ID,
		Value:       portfolio.Value,
		Invested:    portfolio.Invested,
		Gain:        portfolio.Value - portfolio.Invested,
		Currency:    portfolio.Currency,
	}
	if portfolio.Invested > 0 {
		v.GainPercent = sanitize(v.Gain/portfolio.Invested*100, 0)
	}
	return v, nil
}
