package repository

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ledgerline/transfer-service/internal/domain"
)

const (
	pqUniqueViolation      = "23505"
	pqForeignKeyViolation  = "23503"
	pqCheckViolation       = "23514"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

var constraintErrors = map[string]error{
	"accounts_email_key":                  domain.ErrAccountExists,
	"accounts_balance_check":              domain.ErrInsufficientFunds,
	"transactions_sender_idempotency_key": domain.ErrDuplicateTransfer,
	"transactions_distinct_parties":       domain.ErrSelfTransfer,
	"transactions_amount_check":           domain.ErrInvalidAmount,
	"reversals_transaction_id_key":        domain.ErrAlreadyReversed,
}

// translateError maps driver failures onto domain sentinels. Errors it does
// not recognise are returned unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	if sentinel, ok := constraintErrors[pqErr.Constraint]; ok {
		return fmt.Errorf("%w: %w", sentinel, err)
	}

	switch pqErr.Code {
	case pqForeignKeyViolation:
		return fmt.Errorf("%w: %w", domain.ErrAccountNotFound, err)
	case pqSerializationFailure, pqDeadlockDetected:
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	if pqErr.Code.Class() == "08" {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	return err
}
