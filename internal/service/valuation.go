// Package service implements the core business logic: the holding
// ledger, trade settlement and portfolio valuation.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/portfolio-tracker/internal/currency"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/marketdata"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/storage"
	"github.com/portfolio-tracker/internal/types"
)

// Repository interfaces for dependency injection

// UserRepository interface for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	CashBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	AdjustCash(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error)
	UpdatePreferredCurrency(ctx context.Context, userID string, currency types.CurrencyCode) error
	Delete(ctx context.Context, id string) error
}

// PortfolioRepository interface for portfolio data operations
type PortfolioRepository interface {
	Create(ctx context.Context, portfolio *models.Portfolio) error
	GetByID(ctx context.Context, id string) (*models.Portfolio, error)
	GetDefault(ctx context.Context, ownerID string) (*models.Portfolio, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Portfolio, error)
	ListAllIDs(ctx context.Context) ([]string, error)
	UpdateName(ctx context.Context, id, name string) error
	SetDefault(ctx context.Context, ownerID, id string) error
	UpdateAggregates(ctx context.Context, id string, value, invested float64) error
	UpdateOwnerCurrency(ctx context.Context, ownerID string, currency types.CurrencyCode) error
	Delete(ctx context.Context, id string) error
}

// ShareRepository interface for share data operations
type ShareRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Share, error)
	FindHolding(ctx context.Context, portfolioID, ticker string) (*models.Share, error)
	ListByPortfolio(ctx context.Context, portfolioID string) ([]*models.Share, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Share, error)
	PortfoliosHolding(ctx context.Context, ownerID, ticker string) ([]string, error)
	CountByPortfolio(ctx context.Context, portfolioID string) (int64, error)
	UpdateValuation(ctx context.Context, share *models.Share) error
}

// TradeLogRepository interface for trade log reads
type TradeLogRepository interface {
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.TradeLog, error)
	CountByOwner(ctx context.Context, ownerID string) (int64, error)
}

// SettlementStore runs settlement writes in one transaction
type SettlementStore interface {
	ExecTx(ctx context.Context, fn func(tx storage.TradeTx) error) error
}

// ValuationService re-prices holdings from the quote provider and keeps
// portfolio aggregates current, converting into each owner's preferred
// currency.
type ValuationService struct {
	users       UserRepository
	portfolios  PortfolioRepository
	shares      ShareRepository
	quotes      marketdata.Provider
	converter   currency.Converter
	concurrency int
}

// NewValuationService creates a new valuation service. concurrency
// bounds how many portfolios a sweep refreshes in parallel.
func NewValuationService(
	users UserRepository,
	portfolios PortfolioRepository,
	shares ShareRepository,
	quotes marketdata.Provider,
	converter currency.Converter,
	concurrency int,
) *ValuationService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ValuationService{
		users:       users,
		portfolios:  portfolios,
		shares:      shares,
		quotes:      quotes,
		converter:   converter,
		concurrency: concurrency,
	}
}

// RefreshShare re-prices one holding and returns its current value.
func (s *ValuationService) RefreshShare(ctx context.Context, shareID int64) (float64, error) {
	share, err := s.shares.GetByID(ctx, shareID)
	if err != nil {
		return 0, err
	}

	user, err := s.users.GetByID(ctx, share.OwnerID)
	if err != nil {
		return 0, err
	}

	return s.refreshLoaded(ctx, share, user.PreferredCurrency)
}

// refreshLoaded re-prices an already-loaded holding. A closed market
// (ask and bid both zero) keeps the stored prices and only flips the
// closed flag; a conversion failure keeps the prior values rather than
// writing garbage.
func (s *ValuationService) refreshLoaded(ctx context.Context, share *models.Share, preferred types.CurrencyCode) (float64, error) {
	quote, err := s.quotes.Quote(ctx, share.Ticker)
	if err != nil {
		return 0, &types.ServiceError{
			Code:    types.ErrQuoteUnavailable,
			Message: fmt.Sprintf("quote unavailable for %s", share.Ticker),
			Details: map[string]interface{}{"reason": err.Error()},
		}
	}

	// Stored prices and cost basis are denominated in share.Currency;
	// fresh prices arrive in the quote's currency.
	priceCurrency := share.Currency
	if quote.MarketClosed() {
		share.MarketClosed = true
	} else {
		share.Ask = sanitize(quote.Ask, share.Ask)
		share.Bid = sanitize(quote.Bid, share.Bid)
		priceCurrency = quote.Currency
		share.MarketClosed = false
	}

	if preferred.Valid() {
		s.convertShare(ctx, share, priceCurrency, preferred)
	}

	share.TotalValue = sanitize(share.Bid*share.AmountOwned, share.TotalValue)

	if err := s.shares.UpdateValuation(ctx, share); err != nil {
		return 0, err
	}
	return share.TotalValue, nil
}

// convertShare re-denominates the share's values into the preferred
// currency. Prices convert from priceCurrency (the quote's currency for
// a fresh quote, the stored one on a closed market) while the cost
// basis converts from the currency it is already stored in. Converting
// the basis from the quote currency would re-apply the rate on every
// sweep. All three values convert or none do.
func (s *ValuationService) convertShare(ctx context.Context, share *models.Share, priceCurrency, preferred types.CurrencyCode) {
	ask, askErr := s.converter.Convert(ctx, share.Ask, priceCurrency, preferred)
	bid, bidErr := s.converter.Convert(ctx, share.Bid, priceCurrency, preferred)
	invested, invErr := s.converter.Convert(ctx, share.TotalInvested, share.Currency, preferred)

	if askErr != nil || bidErr != nil || invErr != nil {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"ticker": share.Ticker,
			"from":   string(priceCurrency),
			"to":     string(preferred),
		}).Warn("Currency conversion failed, keeping prior valuation")
		return
	}

	share.Ask = sanitize(ask, share.Ask)
	share.Bid = sanitize(bid, share.Bid)
	share.TotalInvested = sanitize(invested, share.TotalInvested)
	share.Currency = preferred
}

// RefreshPortfolio re-prices every holding in the portfolio and persists
// the summed value and invested aggregates. One share failing does not
// abort the rest; its stored values feed the sums instead.
func (s *ValuationService) RefreshPortfolio(ctx context.Context, portfolioID string) (*models.Portfolio, error) {
	portfolio, err := s.portfolios.GetByID(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, portfolio.OwnerID)
	if err != nil {
		return nil, err
	}

	shares, err := s.shares.ListByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	var value, invested float64
	for _, share := range shares {
		shareValue, err := s.refreshLoaded(ctx, share, user.PreferredCurrency)
		if err != nil {
			logging.FromContext(ctx).WithError(err).WithFields(map[string]interface{}{
				"portfolio_id": portfolioID,
				"ticker":       share.Ticker,
			}).Warn("Share refresh failed, using stored valuation")
			shareValue = share.TotalValue
		}
		value += shareValue
		invested += share.TotalInvested
	}

	portfolio.Value = sanitize(value, portfolio.Value)
	portfolio.Invested = sanitize(invested, portfolio.Invested)

	if err := s.portfolios.UpdateAggregates(ctx, portfolio.ID, portfolio.Value, portfolio.Invested); err != nil {
		return nil, err
	}
	return portfolio, nil
}

// RefreshOwner refreshes every portfolio the user owns
func (s *ValuationService) RefreshOwner(ctx context.Context, ownerID string) error {
	portfolios, err := s.portfolios.ListByOwner(ctx, ownerID)
	if err != nil {
		return err
	}

	for _, p := range portfolios {
		if _, err := s.RefreshPortfolio(ctx, p.ID); err != nil {
			logging.FromContext(ctx).WithError(err).WithField("portfolio_id", p.ID).Warn("Portfolio refresh failed")
		}
	}
	return nil
}

// RefreshAll sweeps every portfolio with bounded concurrency. Failures
// are logged per portfolio and never abort the sweep.
func (s *ValuationService) RefreshAll(ctx context.Context) error {
	ids, err := s.portfolios.ListAllIDs(ctx)
	if err != nil {
		return err
	}

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := s.RefreshPortfolio(ctx, id); err != nil {
				logging.FromContext(ctx).WithError(err).WithField("portfolio_id", id).Warn("Portfolio refresh failed")
			}
		}(id)
	}
	wg.Wait()

	return ctx.Err()
}

// ChangePreferredCurrency validates the new code against the rates
// provider, writes it onto the user and their portfolios, then refreshes
// the owner so every holding is re-denominated. A failed step aborts
// the rest.
func (s *ValuationService) ChangePreferredCurrency(ctx context.Context, userID string, code types.CurrencyCode) error {
	code = types.NormalizeCurrency(string(code))
	if !code.Valid() {
		return invalidCurrency(code)
	}

	ok, err := s.converter.ValidCode(ctx, code)
	if err != nil {
		return err
	}
	if !ok {
		return invalidCurrency(code)
	}

	if err := s.users.UpdatePreferredCurrency(ctx, userID, code); err != nil {
		return err
	}
	if err := s.portfolios.UpdateOwnerCurrency(ctx, userID, code); err != nil {
		return err
	}

	// Holdings keep their stored currency; the refresh converts their
	// prices and cost basis into the new preferred code.
	return s.RefreshOwner(ctx, userID)
}

func invalidCurrency(code types.CurrencyCode) error {
	return &types.ServiceError{
		Code:    types.ErrInvalidCurrency,
		Message: fmt.Sprintf("unknown currency code: %s", code),
	}
}
