package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
)

// ShareRepository handles share (holding) data persistence
type ShareRepository struct {
	db *PostgresDB
}

// NewShareRepository creates a new share repository
func NewShareRepository(db *PostgresDB) *ShareRepository {
	return &ShareRepository{db: db}
}

const shareColumns = `id, portfolio_id, owner_id, ticker, company_name, amount_owned, total_invested, ask, bid, total_value, currency, market_closed, created_at, updated_at`

// GetByID retrieves a share by ID
func (r *ShareRepository) GetByID(ctx context.Context, id int64) (*models.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE id = $1`
	return scanShare(r.db.Pool().QueryRow(ctx, query, id))
}

// FindHolding retrieves the share for a ticker within a portfolio.
// Tickers are unique per portfolio.
func (r *ShareRepository) FindHolding(ctx context.Context, portfolioID, ticker string) (*models.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE portfolio_id = $1 AND ticker = $2`
	return scanShare(r.db.Pool().QueryRow(ctx, query, portfolioID, ticker))
}

// ListByPortfolio retrieves all shares in a portfolio, ordered by ticker
func (r *ShareRepository) ListByPortfolio(ctx context.Context, portfolioID string) ([]*models.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE portfolio_id = $1 ORDER BY ticker`
	return r.queryShares(ctx, query, portfolioID)
}

// ListByOwner retrieves all shares owned by a user across portfolios
func (r *ShareRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Share, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE owner_id = $1 ORDER BY portfolio_id, ticker`
	return r.queryShares(ctx, query, ownerID)
}

// PortfoliosHolding returns the IDs of the owner's portfolios that hold
// the ticker. Used to resolve which portfolio a sell without an explicit
// portfolio refers to.
func (r *ShareRepository) PortfoliosHolding(ctx context.Context, ownerID, ticker string) ([]string, error) {
	query := `SELECT portfolio_id FROM shares WHERE owner_id = $1 AND ticker = $2`

	rows, err := r.db.Pool().Query(ctx, query, ownerID, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to find portfolios holding %s: %w", ticker, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio ids: %w", err)
	}

	return ids, nil
}

// CountByPortfolio returns how many shares a portfolio holds
func (r *ShareRepository) CountByPortfolio(ctx context.Context, portfolioID string) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM shares WHERE portfolio_id = $1`

	if err := r.db.Pool().QueryRow(ctx, query, portfolioID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count shares: %w", err)
	}
	return count, nil
}

// UpdateValuation writes the share's refreshed prices, value, invested
// total, currency and market-closed flag. Invested is included because
// a currency change re-denominates the cost basis.
func (r *ShareRepository) UpdateValuation(ctx context.Context, share *models.Share) error {
	query := `
		UPDATE shares
		SET ask = $2, bid = $3, total_value = $4, total_invested = $5, currency = $6, market_closed = $7, updated_at = $8
		WHERE id = $1
	`

	share.UpdatedAt = time.Now()
	result, err := r.db.Pool().Exec(ctx, query,
		share.ID,
		share.Ask,
		share.Bid,
		share.TotalValue,
		share.TotalInvested,
		share.Currency,
		share.MarketClosed,
		share.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update share valuation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return holdingNotFound(share.Ticker)
	}
	return nil
}

func (r *ShareRepository) queryShares(ctx context.Context, query string, args ...any) ([]*models.Share, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	defer rows.Close()

	var shares []*models.Share
	for rows.Next() {
		share, err := scanShareRow(rows)
		if err != nil {
			return nil, err
		}
		shares = append(shares, share)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shares: %w", err)
	}

	return shares, nil
}

func scanShare(row pgx.Row) (*models.Share, error) {
	share, err := scanShareRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, holdingNotFound("")
		}
		return nil, err
	}
	return share, nil
}

func scanShareRow(row pgx.Row) (*models.Share, error) {
	var s models.Share
	err := row.Scan(
		&s.ID,
		&s.PortfolioID,
		&s.OwnerID,
		&s.Ticker,
		&s.CompanyName,
		&s.AmountOwned,
		&s.TotalInvested,
		&s.Ask,
		&s.Bid,
		&s.TotalValue,
		&s.Currency,
		&s.MarketClosed,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan share: %w", err)
	}
	return &s, nil
}

func holdingNotFound(ticker string) error {
	msg := "holding not found"
	if ticker != "" {
		msg = fmt.Sprintf("holding not found: %s", ticker)
	}
	return &types.ServiceError{
		Code:    types.ErrHoldingNotFound,
		Message: msg,
	}
}
