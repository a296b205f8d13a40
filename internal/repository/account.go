package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/transfer-service/internal/domain"
)

const accountColumns = `id, email, password_hash, balance, created_at, updated_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", translateError(err))
	}
	return a, nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByEmail: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetByEmail: %w", translateError(err))
	}
	return a, nil
}

// Create inserts the account and fills in its id and timestamps.
func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO accounts (email, password_hash, balance)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		a.Email, a.PasswordHash, a.Balance,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("Create: %w", translateError(err))
	}
	return nil
}

func (r *AccountRepository) GetBalance(ctx context.Context, tx *sql.Tx, id int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE id = $1`, id,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("GetBalance: %w", domain.ErrAccountNotFound)
		}
		return decimal.Zero, fmt.Errorf("GetBalance: %w", translateError(err))
	}
	return balance, nil
}

func (r *AccountRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*domain.Account, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", translateError(err))
	}
	return a, nil
}

// AdjustBalance adds delta to the balance unless the result would be
// negative, in which case nothing is written.
func (r *AccountRepository) AdjustBalance(ctx context.Context, tx *sql.Tx, id int64, delta decimal.Decimal) (*domain.BalanceChange, error) {
	var after decimal.Decimal
	err := tx.QueryRowContext(ctx,
		`UPDATE accounts SET balance = balance + $1, updated_at = now()
		WHERE id = $2 AND balance + $1 >= 0
		RETURNING balance`,
		delta, id,
	).Scan(&after)
	if err == nil {
		return &domain.BalanceChange{AccountID: id, Before: after.Sub(delta), After: after}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("AdjustBalance: %w", translateError(err))
	}

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("AdjustBalance: %w", translateError(err))
	}
	if !exists {
		return nil, fmt.Errorf("AdjustBalance: %w", domain.ErrAccountNotFound)
	}
	return nil, fmt.Errorf("AdjustBalance: %w", domain.ErrInsufficientFunds)
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	err := s.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Balance,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
