package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/portfolio-tracker/internal/currency"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/marketdata"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/storage"
	"github.com/portfolio-tracker/internal/types"
)

// TradeRequest is one validated buy or sell order. Exactly one of
// Quantity (shares) and Money (spend/proceeds amount) must be set.
// PortfolioID and Currency are optional; the default portfolio (buy) or
// the unique holding portfolio (sell), and the user's preferred
// currency, are used when absent.
type TradeRequest struct {
	OwnerID     string
	Ticker      string
	PortfolioID string
	Quantity    *float64
	Money       *decimal.Decimal
	Currency    types.CurrencyCode
}

// TradeResult reports one settled trade
type TradeResult struct {
	Side        types.Side         `json:"side"`
	Ticker      string             `json:"ticker"`
	CompanyName string             `json:"companyName"`
	Quantity    float64            `json:"quantity"`
	Amount      decimal.Decimal    `json:"amount"`
	Currency    types.CurrencyCode `json:"currency"`
	PortfolioID string             `json:"portfolioId"`
	Balance     decimal.Decimal    `json:"balance"`
}

// SettlementService orchestrates trades: it validates the order,
// resolves the portfolio, prices against the quote provider, then
// settles the holding mutation, cash movement and trade log entry in a
// single transaction. Trades on the same (portfolio, ticker) pair are
// serialized.
type SettlementService struct {
	users      UserRepository
	portfolios PortfolioRepository
	shares     ShareRepository
	quotes     marketdata.Provider
	converter  currency.Converter
	store      SettlementStore
	valuation  *ValuationService
	locks      *keyedMutex
}

// NewSettlementService creates a new settlement service
func NewSettlementService(
	users UserRepository,
	portfolios PortfolioRepository,
	shares ShareRepository,
	quotes marketdata.Provider,
	converter currency.Converter,
	store SettlementStore,
	valuation *ValuationService,
) *SettlementService {
	return &SettlementService{
		users:      users,
		portfolios: portfolios,
		shares:     shares,
		quotes:     quotes,
		converter:  converter,
		store:      store,
		valuation:  valuation,
		locks:      newKeyedMutex(),
	}
}

// Buy settles a buy order
func (s *SettlementService) Buy(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	return s.settle(ctx, types.SideBuy, req)
}

// Sell settles a sell order
func (s *SettlementService) Sell(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	return s.settle(ctx, types.SideSell, req)
}

func (s *SettlementService) settle(ctx context.Context, side types.Side, req TradeRequest) (*TradeResult, error) {
	if err := validateTradeRequest(&req); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, req.OwnerID)
	if err != nil {
		return nil, err
	}

	settleCurrency := req.Currency
	if settleCurrency == "" {
		settleCurrency = user.PreferredCurrency
	}
	if !settleCurrency.Valid() {
		return nil, invalidCurrency(settleCurrency)
	}

	portfolio, err := s.resolvePortfolio(ctx, side, &req)
	if err != nil {
		return nil, err
	}

	// Serialize trades per (portfolio, ticker) so two concurrent sells
	// cannot both read the same owned amount.
	lockKey := portfolio.ID + "|" + req.Ticker
	s.locks.Lock(lockKey)
	defer s.locks.Unlock(lockKey)

	quote, err := s.quotes.Quote(ctx, req.Ticker)
	if err != nil {
		return nil, &types.ServiceError{
			Code:    types.ErrQuoteUnavailable,
			Message: fmt.Sprintf("quote unavailable for %s", req.Ticker),
			Details: map[string]interface{}{"reason": err.Error()},
		}
	}
	if quote.MarketClosed() {
		return nil, &types.ServiceError{
			Code:    types.ErrMarketClosed,
			Message: fmt.Sprintf("market closed for %s", req.Ticker),
		}
	}

	ask, bid, err := s.normalizePrices(ctx, quote, settleCurrency)
	if err != nil {
		return nil, err
	}

	price := ask
	if side == types.SideSell {
		price = bid
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return nil, &types.ServiceError{
			Code:    types.ErrQuoteUnavailable,
			Message: fmt.Sprintf("no usable %s price for %s", side, req.Ticker),
		}
	}

	quantity, money := resolveOrder(&req, price)

	result := &TradeResult{
		Side:        side,
		Ticker:      req.Ticker,
		CompanyName: quote.ShortName,
		Currency:    settleCurrency,
		PortfolioID: portfolio.ID,
	}

	err = s.store.ExecTx(ctx, func(tx storage.TradeTx) error {
		switch side {
		case types.SideBuy:
			return s.settleBuy(ctx, tx, req, quote, settleCurrency, ask, bid, quantity, money, result)
		default:
			return s.settleSell(ctx, tx, portfolio.ID, req, settleCurrency, bid, price, quantity, result)
		}
	})
	if err != nil {
		return nil, err
	}

	// Aggregates are derived; settling the trade must not fail because a
	// follow-up refresh did.
	if _, err := s.valuation.RefreshPortfolio(ctx, portfolio.ID); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("portfolio_id", portfolio.ID).Warn("Post-trade portfolio refresh failed")
	}

	return result, nil
}

func (s *SettlementService) settleBuy(
	ctx context.Context,
	tx storage.TradeTx,
	req TradeRequest,
	quote *marketdata.Quote,
	settleCurrency types.CurrencyCode,
	ask, bid, quantity float64,
	money decimal.Decimal,
	result *TradeResult,
) error {
	// Debiting first makes the cash check and the spend one atomic step
	balance, err := tx.AdjustCash(ctx, req.OwnerID, money.Neg())
	if err != nil {
		return err
	}

	if _, err := ApplyBuy(ctx, tx, BuyFill{
		PortfolioID: result.PortfolioID,
		OwnerID:     req.OwnerID,
		Ticker:      req.Ticker,
		CompanyName: quote.ShortName,
		Quantity:    quantity,
		Cost:        money.InexactFloat64(),
		Ask:         ask,
		Bid:         bid,
		Currency:    settleCurrency,
	}); err != nil {
		return err
	}

	if err := tx.AppendLog(ctx, &models.TradeLog{
		Side:        types.SideBuy,
		Amount:      money,
		Quantity:    quantity,
		PricePer:    ask,
		Currency:    settleCurrency,
		Ticker:      req.Ticker,
		PortfolioID: result.PortfolioID,
		OwnerID:     req.OwnerID,
	}); err != nil {
		return err
	}

	result.Quantity = quantity
	result.Amount = money
	result.Balance = balance
	return nil
}

func (s *SettlementService) settleSell(
	ctx context.Context,
	tx storage.TradeTx,
	portfolioID string,
	req TradeRequest,
	settleCurrency types.CurrencyCode,
	bid, price, quantity float64,
	result *TradeResult,
) error {
	share, err := tx.GetHolding(ctx, portfolioID, req.Ticker)
	if err != nil {
		return err
	}

	// Overshooting the position settles for what is owned, and the
	// proceeds are recomputed from the clamped quantity.
	quantity = ClampSellQuantity(share, quantity)
	money := decimal.NewFromFloat(price * quantity).Round(2)

	if result.CompanyName == "" {
		result.CompanyName = share.CompanyName
	}

	if _, err := ApplySell(ctx, tx, share, quantity, bid); err != nil {
		return err
	}

	balance, err := tx.AdjustCash(ctx, req.OwnerID, money)
	if err != nil {
		return err
	}

	if err := tx.AppendLog(ctx, &models.TradeLog{
		Side:        types.SideSell,
		Amount:      money,
		Quantity:    quantity,
		PricePer:    price,
		Currency:    settleCurrency,
		Ticker:      req.Ticker,
		PortfolioID: portfolioID,
		OwnerID:     req.OwnerID,
	}); err != nil {
		return err
	}

	result.Quantity = quantity
	result.Amount = money
	result.Balance = balance
	return nil
}

// resolvePortfolio picks the portfolio a trade applies to. A buy with no
// explicit portfolio goes to the default; a sell with no explicit
// portfolio goes to the single portfolio holding the ticker, and more
// than one match must be disambiguated by the caller.
func (s *SettlementService) resolvePortfolio(ctx context.Context, side types.Side, req *TradeRequest) (*models.Portfolio, error) {
	if req.PortfolioID != "" {
		portfolio, err := s.portfolios.GetByID(ctx, req.PortfolioID)
		if err != nil {
			return nil, err
		}
		if portfolio.OwnerID != req.OwnerID {
			return nil, &types.ServiceError{
				Code:    types.ErrPortfolioNotFound,
				Message: fmt.Sprintf("portfolio not found: %s", req.PortfolioID),
			}
		}
		if side == types.SideSell {
			// The named portfolio must actually hold the ticker
			if _, err := s.shares.FindHolding(ctx, portfolio.ID, req.Ticker); err != nil {
				return nil, err
			}
		}
		return portfolio, nil
	}

	if side == types.SideBuy {
		return s.portfolios.GetDefault(ctx, req.OwnerID)
	}

	ids, err := s.shares.PortfoliosHolding(ctx, req.OwnerID, req.Ticker)
	if err != nil {
		return nil, err
	}
	switch len(ids) {
	case 0:
		return nil, &types.ServiceError{
			Code:    types.ErrHoldingNotFound,
			Message: fmt.Sprintf("no holding of %s", req.Ticker),
		}
	case 1:
		return s.portfolios.GetByID(ctx, ids[0])
	default:
		return nil, &types.ServiceError{
			Code:    types.ErrAmbiguousPortfolio,
			Message: fmt.Sprintf("%s is held in %d portfolios, specify one", req.Ticker, len(ids)),
		}
	}
}

// normalizePrices converts the quote's ask and bid into the settlement
// currency.
func (s *SettlementService) normalizePrices(ctx context.Context, quote *marketdata.Quote, settleCurrency types.CurrencyCode) (ask, bid float64, err error) {
	if quote.Currency == settleCurrency || quote.Currency == "" {
		return quote.Ask, quote.Bid, nil
	}

	ask, err = s.converter.Convert(ctx, quote.Ask, quote.Currency, settleCurrency)
	if err != nil {
		return 0, 0, err
	}
	bid, err = s.converter.Convert(ctx, quote.Bid, quote.Currency, settleCurrency)
	if err != nil {
		return 0, 0, err
	}
	return ask, bid, nil
}

// resolveOrder derives the missing side of the quantity/money pair from
// the normalized price.
func resolveOrder(req *TradeRequest, price float64) (quantity float64, money decimal.Decimal) {
	if req.Quantity != nil {
		quantity = *req.Quantity
		money = decimal.NewFromFloat(price * quantity).Round(2)
		return quantity, money
	}
	money = req.Money.Round(2)
	quantity = money.InexactFloat64() / price
	return quantity, money
}

func validateTradeRequest(req *TradeRequest) error {
	req.Ticker = strings.ToUpper(strings.TrimSpace(req.Ticker))
	if req.Ticker == "" {
		return invalidInput("ticker is required")
	}

	if (req.Quantity == nil) == (req.Money == nil) {
		return invalidInput("exactly one of share quantity and money amount must be set")
	}
	if req.Quantity != nil {
		q := *req.Quantity
		if q <= 0 || math.IsNaN(q) || math.IsInf(q, 0) {
			return invalidInput("share quantity must be a positive number")
		}
	}
	if req.Money != nil && !req.Money.IsPositive() {
		return invalidInput("money amount must be positive")
	}

	if req.Currency != "" {
		req.Currency = types.NormalizeCurrency(string(req.Currency))
		if !req.Currency.Valid() {
			return invalidCurrency(req.Currency)
		}
	}
	return nil
}

func invalidInput(msg string) error {
	return &types.ServiceError{
		Code:    types.ErrInvalidInput,
		Message: msg,
	}
}

// IsServiceError reports whether err carries the given service error code
func IsServiceError(err error, code string) bool {
	var svcErr *types.ServiceError
	return errors.As(err, &svcErr) && svcErr.Code == code
}
