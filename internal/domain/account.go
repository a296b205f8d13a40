package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	ID           int64
	Email        string
	PasswordHash string
	Balance      decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Party is the identity summary attached to a transaction for each side.
type Party struct {
	ID    int64
	Email string
}

// BalanceChange is the outcome of a single balance adjustment.
type BalanceChange struct {
	AccountID int64
	Before    decimal.Decimal
	After     decimal.Decimal
}
