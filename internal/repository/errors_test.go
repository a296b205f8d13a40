package repository

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/ledgerline/transfer-service/internal/domain"
)

func TestTranslateError(t *testing.T) {
	plain := errors.New("syntax error")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"duplicate email", &pq.Error{Code: "23505", Constraint: "accounts_email_key"}, domain.ErrAccountExists},
		{"balance check", &pq.Error{Code: "23514", Constraint: "accounts_balance_check"}, domain.ErrInsufficientFunds},
		{"duplicate idempotency key", &pq.Error{Code: "23505", Constraint: "transactions_sender_idempotency_key"}, domain.ErrDuplicateTransfer},
		{"self transfer", &pq.Error{Code: "23514", Constraint: "transactions_distinct_parties"}, domain.ErrSelfTransfer},
		{"non-positive amount", &pq.Error{Code: "23514", Constraint: "transactions_amount_check"}, domain.ErrInvalidAmount},
		{"second reversal row", &pq.Error{Code: "23505", Constraint: "reversals_transaction_id_key"}, domain.ErrAlreadyReversed},
		{"dangling account", &pq.Error{Code: "23503", Constraint: "transactions_sender_id_fkey"}, domain.ErrAccountNotFound},
		{"serialization failure", &pq.Error{Code: "40001"}, domain.ErrStoreUnavailable},
		{"deadlock", &pq.Error{Code: "40P01"}, domain.ErrStoreUnavailable},
		{"connection failure", &pq.Error{Code: "08006"}, domain.ErrStoreUnavailable},
		{"bad connection", fmt.Errorf("query: %w", driver.ErrBadConn), domain.ErrStoreUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := translateError(tc.err)
			assert.ErrorIs(t, got, tc.want)
			assert.ErrorIs(t, got, tc.err)
		})
	}

	assert.Same(t, plain, translateError(plain))
	unknown := &pq.Error{Code: "42601"}
	assert.Equal(t, error(unknown), translateError(unknown))
	assert.NoError(t, translateError(nil))
}
