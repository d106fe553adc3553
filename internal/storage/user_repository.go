package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
)

// uniqueViolation is the Postgres error code for unique constraint violations
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// UserRepository handles user data persistence
type UserRepository struct {
	db *PostgresDB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *PostgresDB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user. Usernames are unique; a taken username is
// reported as a service error, not a raw database error.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, username, password_hash, first_name, last_name, cash, preferred_currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.Cash,
		user.PreferredCurrency,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return &types.ServiceError{
				Code:    types.ErrUsernameTaken,
				Message: fmt.Sprintf("username already taken: %s", user.Username),
			}
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
		SELECT id, username, password_hash, first_name, last_name, cash, preferred_currency, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	return r.scanUser(r.db.Pool().QueryRow(ctx, query, id), id)
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT id, username, password_hash, first_name, last_name, cash, preferred_currency, created_at, updated_at
		FROM users
		WHERE username = $1
	`

	return r.scanUser(r.db.Pool().QueryRow(ctx, query, username), username)
}

func (r *UserRepository) scanUser(row pgx.Row, ref string) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Cash,
		&user.PreferredCurrency,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &types.ServiceError{
				Code:    types.ErrUserNotFound,
				Message: fmt.Sprintf("user not found: %s", ref),
			}
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// CashBalance returns the user's current cash balance
func (r *UserRepository) CashBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var cash decimal.Decimal
	query := `SELECT cash FROM users WHERE id = $1`

	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(&cash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, &types.ServiceError{
				Code:    types.ErrUserNotFound,
				Message: fmt.Sprintf("user not found: %s", userID),
			}
		}
		return decimal.Zero, fmt.Errorf("failed to get cash balance: %w", err)
	}

	return cash, nil
}

// AdjustCash applies a signed delta to the user's cash balance and
// returns the new balance. The balance is never allowed below zero.
func (r *UserRepository) AdjustCash(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	return adjustCash(ctx, r.db.Pool(), userID, delta)
}

// querier is the subset of pgxpool.Pool and pgx.Tx used by shared query
// helpers, so cash adjustments behave identically inside and outside a
// settlement transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func adjustCash(ctx context.Context, q querier, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	query := `
		UPDATE users
		SET cash = cash + $2, updated_at = $3
		WHERE id = $1 AND cash + $2 >= 0
		RETURNING cash
	`

	var cash decimal.Decimal
	err := q.QueryRow(ctx, query, userID, delta, time.Now()).Scan(&cash)
	if err == nil {
		return cash, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("failed to adjust cash: %w", err)
	}

	// No row matched: either the user is missing or the delta would
	// overdraw the balance. Distinguish the two for the caller.
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return decimal.Zero, fmt.Errorf("failed to check user existence: %w", err)
	}
	if !exists {
		return decimal.Zero, &types.ServiceError{
			Code:    types.ErrUserNotFound,
			Message: fmt.Sprintf("user not found: %s", userID),
		}
	}
	return decimal.Zero, &types.ServiceError{
		Code:    types.ErrInsufficientFunds,
		Message: "insufficient funds",
		Details: map[string]interface{}{
			"requested": delta.Neg().String(),
		},
	}
}

// UpdatePreferredCurrency sets the user's preferred display currency
func (r *UserRepository) UpdatePreferredCurrency(ctx context.Context, userID string, currency types.CurrencyCode) error {
	query := `
		UPDATE users
		SET preferred_currency = $2, updated_at = $3
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, userID, currency, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update preferred currency: %w", err)
	}

	if result.RowsAffected() == 0 {
		return &types.ServiceError{
			Code:    types.ErrUserNotFound,
			Message: fmt.Sprintf("user not found: %s", userID),
		}
	}

	return nil
}

// Delete removes a user row. Used to back out a registration whose
// default-portfolio write failed.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Pool().Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	if result.RowsAffected() == 0 {
		return &types.ServiceError{
			Code:    types.ErrUserNotFound,
			Message: fmt.Sprintf("user not found: %s", id),
		}
	}

	return nil
}

// Exists checks if a user exists by ID
func (r *UserRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`

	err := r.db.Pool().QueryRow(ctx, query, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}

	return exists, nil
}
