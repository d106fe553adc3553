package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
)

// TradeTx is the set of writes available inside one settlement
// transaction. Holding mutation, cash movement and the trade log entry
// either all commit or none do.
type TradeTx interface {
	// GetHolding locks and returns the holding for a ticker within a
	// portfolio, or a HOLDING_NOT_FOUND service error.
	GetHolding(ctx context.Context, portfolioID, ticker string) (*models.Share, error)
	// CreateHolding inserts a new holding
	CreateHolding(ctx context.Context, share *models.Share) error
	// UpdateHolding writes the holding's amount, cost basis and valuation
	UpdateHolding(ctx context.Context, share *models.Share) error
	// DeleteHolding removes a holding whose amount reached zero
	DeleteHolding(ctx context.Context, id int64) error
	// AdjustCash applies a signed delta to the owner's cash and returns
	// the new balance. Overdrafts fail with INSUFFICIENT_FUNDS.
	AdjustCash(ctx context.Context, ownerID string, delta decimal.Decimal) (decimal.Decimal, error)
	// AppendLog records the settled trade
	AppendLog(ctx context.Context, entry *models.TradeLog) error
}

// SettlementStore runs settlement work in a single database transaction.
type SettlementStore struct {
	db *PostgresDB
}

// NewSettlementStore creates a new settlement store
func NewSettlementStore(db *PostgresDB) *SettlementStore {
	return &SettlementStore{db: db}
}

// ExecTx runs fn inside a transaction, committing on nil and rolling
// back on error or panic.
func (s *SettlementStore) ExecTx(ctx context.Context, fn func(tx TradeTx) error) error {
	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin settlement transaction: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck // rollback after commit is a no-op

	if err := fn(&tradeTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit settlement: %w", err)
	}
	return nil
}

// tradeTx implements TradeTx over a pgx transaction
type tradeTx struct {
	tx pgx.Tx
}

func (t *tradeTx) GetHolding(ctx context.Context, portfolioID, ticker string) (*models.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE portfolio_id = $1 AND ticker = $2 FOR UPDATE`

	share, err := scanShareRow(t.tx.QueryRow(ctx, query, portfolioID, ticker))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, holdingNotFound(ticker)
		}
		return nil, err
	}
	return share, nil
}

func (t *tradeTx) CreateHolding(ctx context.Context, share *models.Share) error {
	now := time.Now()
	share.CreatedAt = now
	share.UpdatedAt = now

	query := `
		INSERT INTO shares (portfolio_id, owner_id, ticker, company_name, amount_owned, total_invested, ask, bid, total_value, currency, market_closed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`

	err := t.tx.QueryRow(ctx, query,
		share.PortfolioID,
		share.OwnerID,
		share.Ticker,
		share.CompanyName,
		share.AmountOwned,
		share.TotalInvested,
		share.Ask,
		share.Bid,
		share.TotalValue,
		share.Currency,
		share.MarketClosed,
		share.CreatedAt,
		share.UpdatedAt,
	).Scan(&share.ID)

	if err != nil {
		return fmt.Errorf("failed to create holding: %w", err)
	}
	return nil
}

func (t *tradeTx) UpdateHolding(ctx context.Context, share *models.Share) error {
	query := `
		UPDATE shares
		SET amount_owned = $2, total_invested = $3, ask = $4, bid = $5, total_value = $6, currency = $7, market_closed = $8, updated_at = $9
		WHERE id = $1
	`

	share.UpdatedAt = time.Now()
	result, err := t.tx.Exec(ctx, query,
		share.ID,
		share.AmountOwned,
		share.TotalInvested,
		share.Ask,
		share.Bid,
		share.TotalValue,
		share.Currency,
		share.MarketClosed,
		share.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update holding: %w", err)
	}
	if result.RowsAffected() == 0 {
		return holdingNotFound(share.Ticker)
	}
	return nil
}

func (t *tradeTx) DeleteHolding(ctx context.Context, id int64) error {
	result, err := t.tx.Exec(ctx, `DELETE FROM shares WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete holding: %w", err)
	}
	if result.RowsAffected() == 0 {
		return &types.ServiceError{
			Code:    types.ErrHoldingNotFound,
			Message: fmt.Sprintf("holding not found: %d", id),
		}
	}
	return nil
}

func (t *tradeTx) AdjustCash(ctx context.Context, ownerID string, delta decimal.Decimal) (decimal.Decimal, error) {
	return adjustCash(ctx, t.tx, ownerID, delta)
}

func (t *tradeTx) AppendLog(ctx context.Context, entry *models.TradeLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO trade_log (side, amount, quantity, price_per, currency, ticker, portfolio_id, owner_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := t.tx.QueryRow(ctx, query,
		entry.Side,
		entry.Amount,
		entry.Quantity,
		entry.PricePer,
		entry.Currency,
		entry.Ticker,
		entry.PortfolioID,
		entry.OwnerID,
		entry.CreatedAt,
	).Scan(&entry.ID)

	if err != nil {
		return fmt.Errorf("failed to append trade log entry: %w", err)
	}
	return nil
}
