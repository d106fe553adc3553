package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
)

// PortfolioRepository handles portfolio data persistence
type PortfolioRepository struct {
	db *PostgresDB
}

// NewPortfolioRepository creates a new portfolio repository
func NewPortfolioRepository(db *PostgresDB) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

const portfolioColumns = `id, owner_id, name, value, invested, currency, is_default, created_at, updated_at`

// Create creates a new portfolio. A portfolio created as default demotes
// the owner's previous default inside the same transaction.
func (r *PortfolioRepository) Create(ctx context.Context, portfolio *models.Portfolio) error {
	if portfolio.ID == "" {
		portfolio.ID = uuid.New().String()
	}

	now := time.Now()
	portfolio.CreatedAt = now
	portfolio.UpdatedAt = now

	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck // rollback after commit is a no-op

	if portfolio.IsDefault {
		demote := `UPDATE portfolios SET is_default = FALSE, updated_at = $2 WHERE owner_id = $1 AND is_default`
		if _, err := tx.Exec(ctx, demote, portfolio.OwnerID, now); err != nil {
			return fmt.Errorf("failed to demote previous default portfolio: %w", err)
		}
	}

	insert := `
		INSERT INTO portfolios (` + portfolioColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = tx.Exec(ctx, insert,
		portfolio.ID,
		portfolio.OwnerID,
		portfolio.Name,
		portfolio.Value,
		portfolio.Invested,
		portfolio.Currency,
		portfolio.IsDefault,
		portfolio.CreatedAt,
		portfolio.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit portfolio creation: %w", err)
	}
	return nil
}

// GetByID retrieves a portfolio by ID
func (r *PortfolioRepository) GetByID(ctx context.Context, id string) (*models.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE id = $1`
	return r.scanPortfolio(r.db.Pool().QueryRow(ctx, query, id), id)
}

// GetDefault retrieves the owner's default portfolio
func (r *PortfolioRepository) GetDefault(ctx context.Context, ownerID string) (*models.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE owner_id = $1 AND is_default`

	portfolio, err := r.scanPortfolio(r.db.Pool().QueryRow(ctx, query, ownerID), ownerID)
	if err != nil {
		var svcErr *types.ServiceError
		if errors.As(err, &svcErr) && svcErr.Code == types.ErrPortfolioNotFound {
			return nil, &types.ServiceError{
				Code:    types.ErrNoPortfolio,
				Message: "no default portfolio",
			}
		}
		return nil, err
	}
	return portfolio, nil
}

// ListByOwner retrieves all portfolios owned by a user, oldest first
func (r *PortfolioRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Portfolio, error) {
	query := `
		SELECT ` + portfolioColumns + `
		FROM portfolios
		WHERE owner_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.Pool().Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []*models.Portfolio
	for rows.Next() {
		var p models.Portfolio
		if err := rows.Scan(
			&p.ID,
			&p.OwnerID,
			&p.Name,
			&p.Value,
			&p.Invested,
			&p.Currency,
			&p.IsDefault,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}

	return portfolios, nil
}

// ListAllIDs returns the IDs of every portfolio. Used by the refresh
// sweep.
func (r *PortfolioRepository) ListAllIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT id FROM portfolios ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolio ids: %w", err)
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

// UpdateOwnerCurrency relabels every portfolio of an owner with a new
// currency code.
func (r *PortfolioRepository) UpdateOwnerCurrency(ctx context.Context, ownerID string, currency types.CurrencyCode) error {
	query := `UPDATE portfolios SET currency = $2, updated_at = $3 WHERE owner_id = $1`

	if _, err := r.db.Pool().Exec(ctx, query, ownerID, currency, time.Now()); err != nil {
		return fmt.Errorf("failed to update owner portfolio currency: %w", err)
	}
	return nil
}

// UpdateName renames a portfolio
func (r *PortfolioRepository) UpdateName(ctx context.Context, id, name string) error {
	query := `UPDATE portfolios SET name = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.Pool().Exec(ctx, query, id, name, time.Now())
	if err != nil {
		return fmt.Errorf("failed to rename portfolio: %w", err)
	}
	if result.RowsAffected() == 0 {
		return portfolioNotFound(id)
	}
	return nil
}

// SetDefault marks the portfolio as the owner's default, demoting any
// previous default.
func (r *PortfolioRepository) SetDefault(ctx context.Context, ownerID, id string) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck // rollback after commit is a no-op

	now := time.Now()
	demote := `UPDATE portfolios SET is_default = FALSE, updated_at = $2 WHERE owner_id = $1 AND is_default`
	if _, err := tx.Exec(ctx, demote, ownerID, now); err != nil {
		return fmt.Errorf("failed to demote previous default portfolio: %w", err)
	}

	promote := `UPDATE portfolios SET is_default = TRUE, updated_at = $3 WHERE id = $1 AND owner_id = $2`
	result, err := tx.Exec(ctx, promote, id, ownerID, now)
	if err != nil {
		return fmt.Errorf("failed to promote portfolio: %w", err)
	}
	if result.RowsAffected() == 0 {
		return portfolioNotFound(id)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit default change: %w", err)
	}
	return nil
}

// UpdateAggregates writes the portfolio's refreshed value and invested
// totals.
func (r *PortfolioRepository) UpdateAggregates(ctx context.Context, id string, value, invested float64) error {
	query := `UPDATE portfolios SET value = $2, invested = $3, updated_at = $4 WHERE id = $1`

	result, err := r.db.Pool().Exec(ctx, query, id, value, invested, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update portfolio aggregates: %w", err)
	}
	if result.RowsAffected() == 0 {
		return portfolioNotFound(id)
	}
	return nil
}

// UpdateCurrency changes the currency the portfolio's aggregates are
// denominated in.
func (r *PortfolioRepository) UpdateCurrency(ctx context.Context, id string, currency types.CurrencyCode) error {
	query := `UPDATE portfolios SET currency = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.Pool().Exec(ctx, query, id, currency, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update portfolio currency: %w", err)
	}
	if result.RowsAffected() == 0 {
		return portfolioNotFound(id)
	}
	return nil
}

// Delete removes an empty portfolio. A portfolio that still holds shares
// is never deleted.
func (r *PortfolioRepository) Delete(ctx context.Context, id string) error {
	query := `
		DELETE FROM portfolios
		WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM shares WHERE portfolio_id = $1)
	`

	result, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete portfolio: %w", err)
	}
	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.db.Pool().QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM portfolios WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check portfolio existence: %w", err)
		}
		if exists {
			return &types.ServiceError{
				Code:    types.ErrPortfolioNotEmpty,
				Message: "portfolio still holds shares",
			}
		}
		return portfolioNotFound(id)
	}
	return nil
}

func (r *PortfolioRepository) scanPortfolio(row pgx.Row, ref string) (*models.Portfolio, error) {
	var p models.Portfolio
	err := row.Scan(
		&p.ID,
		&p.OwnerID,
		&p.Name,
		&p.Value,
		&p.Invested,
		&p.Currency,
		&p.IsDefault,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, portfolioNotFound(ref)
		}
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return &p, nil
}

func portfolioNotFound(ref string) error {
	return &types.ServiceError{
		Code:    types.ErrPortfolioNotFound,
		Message: fmt.Sprintf("portfolio not found: %s", ref),
	}
}
