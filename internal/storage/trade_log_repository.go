package storage

import (
	"context"
	"fmt"

	"github.com/portfolio-tracker/internal/models"
)

// TradeLogRepository reads the append-only trade log. Writes happen
// inside settlement transactions via the settlement store, so this
// repository is read-only.
type TradeLogRepository struct {
	db *PostgresDB
}

// NewTradeLogRepository creates a new trade log repository
func NewTradeLogRepository(db *PostgresDB) *TradeLogRepository {
	return &TradeLogRepository{db: db}
}

const tradeLogColumns = `id, side, amount, quantity, price_per, currency, ticker, portfolio_id, owner_id, created_at`

// ListByOwner retrieves the owner's trade log, most recent first
func (r *TradeLogRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.TradeLog, error) {
	query := `
		SELECT ` + tradeLogColumns + `
		FROM trade_log
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool().Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list trade log: %w", err)
	}
	defer rows.Close()

	var logs []*models.TradeLog
	for rows.Next() {
		var l models.TradeLog
		if err := rows.Scan(
			&l.ID,
			&l.Side,
			&l.Amount,
			&l.Quantity,
			&l.PricePer,
			&l.Currency,
			&l.Ticker,
			&l.PortfolioID,
			&l.OwnerID,
			&l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade log entry: %w", err)
		}
		logs = append(logs, &l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade log: %w", err)
	}

	return logs, nil
}

// CountByOwner returns the number of trade log entries for an owner
func (r *TradeLogRepository) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM trade_log WHERE owner_id = $1`

	if err := r.db.Pool().QueryRow(ctx, query, ownerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count trade log entries: %w", err)
	}
	return count, nil
}
