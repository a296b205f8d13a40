package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/transfer-service/internal/domain"
	"github.com/ledgerline/transfer-service/internal/repository/memory"
	"github.com/ledgerline/transfer-service/internal/service/ledger"
)

func seed(t *testing.T, store *memory.Store, email, balance string) int64 {
	t.Helper()
	a := &domain.Account{Email: email, PasswordHash: "x", Balance: decimal.RequireFromString(balance)}
	require.NoError(t, store.Create(context.Background(), a))
	return a.ID
}

func TestAccountService_GetAccount(t *testing.T) {
	store := memory.New()
	svc := NewAccountService(store, store, 50, 100)
	id := seed(t, store, "a@test.com", "12.50")

	acct, err := svc.GetAccount(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "a@test.com", acct.Email)
	assert.True(t, decimal.RequireFromString("12.50").Equal(acct.Balance))

	_, err = svc.GetAccount(context.Background(), 999)
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestAccountService_Statement(t *testing.T) {
	store := memory.New()
	engine := ledger.NewEngine(store, store.Reader(), ledger.WithClock(func() time.Time {
		return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}))
	svc := NewAccountService(store, store, 2, 3)
	ctx := context.Background()

	a := seed(t, store, "a@test.com", "100")
	b := seed(t, store, "b@test.com", "0")
	for _, amt := range []string{"1", "2", "3", "4"} {
		_, err := engine.Transfer(ctx, ledger.TransferRequest{SenderID: a, ReceiverID: b, Amount: decimal.RequireFromString(amt)})
		require.NoError(t, err)
	}

	entries, total, applied, err := svc.Statement(ctx, a, ledger.Page{})
	require.NoError(t, err)
	assert.Equal(t, ledger.Page{Limit: 2}, applied)
	assert.Equal(t, 4, total)
	require.Len(t, entries, 2)
	assert.True(t, decimal.RequireFromString("4").Equal(entries[0].Amount))
	assert.Equal(t, domain.EntryTypeDebit, entries[0].EntryType)
	assert.True(t, decimal.RequireFromString("90").Equal(entries[0].BalanceAfter))

	entries, _, applied, err = svc.Statement(ctx, b, ledger.Page{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, ledger.Page{Limit: 3}, applied)
	assert.Len(t, entries, 3)

	_, _, _, err = svc.Statement(ctx, a, ledger.Page{Offset: -1})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, _, _, err = svc.Statement(ctx, 999, ledger.Page{})
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}
