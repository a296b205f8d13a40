package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/transfer-service/internal/domain"
	"github.com/ledgerline/transfer-service/internal/repository/memory"
	"github.com/ledgerline/transfer-service/internal/service/ledger"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, opts ...ledger.Option) (*ledger.Engine, *memory.Store) {
	t.Helper()
	store := memory.New()
	opts = append([]ledger.Option{ledger.WithClock(func() time.Time { return fixedNow })}, opts...)
	return ledger.NewEngine(store, store.Reader(), opts...), store
}

func seedAccount(t *testing.T, store *memory.Store, email, balance string) int64 {
	t.Helper()
	a := &domain.Account{Email: email, PasswordHash: "x", Balance: dec(balance)}
	require.NoError(t, store.Create(context.Background(), a))
	return a.ID
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertBalance(t *testing.T, store *memory.Store, id int64, want string) {
	t.Helper()
	assert.True(t, dec(want).Equal(store.Balance(id)), "account %d: want %s, got %s", id, want, store.Balance(id))
}

func TestTransferThenReverse_RestoresBalances(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()

	a := seedAccount(t, store, "a@test.com", "500")
	b := seedAccount(t, store, "b@test.com", "0")

	txn, err := engine.Transfer(ctx, ledger.TransferRequest{
		SenderID: a, ReceiverID: b, Amount: dec("100"), Description: "test",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, txn.Status)
	assert.Equal(t, domain.TransactionTypeTransfer, txn.Type)
	assert.True(t, dec("100").Equal(txn.Amount))
	require.NotNil(t, txn.Description)
	assert.Equal(t, "test", *txn.Description)
	assert.NotZero(t, txn.ID)
	assert.Equal(t, fixedNow, txn.CreatedAt)

	assertBalance(t, store, a, "400")
	assertBalance(t, store, b, "100")

	rev, err := engine.Reverse(ctx, ledger.ReverseRequest{TransactionID: txn.ID, Reason: "mistake", ActorID: a})
	require.NoError(t, err)
	assert.Equal(t, domain.ReversalStatusApproved, rev.Status)
	assert.Equal(t, txn.ID, rev.TransactionID)
	assert.Equal(t, "mistake", rev.Reason)

	assertBalance(t, store, a, "500")
	assertBalance(t, store, b, "0")

	got, err := engine.FindByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusReversed, got.Status)
	require.NotNil(t, got.Reversal)
	assert.Equal(t, rev.ID, got.Reversal.ID)
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()

	a := seedAccount(t, store, "a@test.com", "50")
	b := seedAccount(t, store, "b@test.com", "10")

	_, err := engine.Transfer(ctx, ledger.TransferRequest{SenderID: a, ReceiverID: b, Amount: dec("100")})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, domain.KindInsufficientFunds, domain.KindOf(err))

	assertBalance(t, store, a, "50")
	assertBalance(t, store, b, "10")
	assert.Empty(t, store.Entries())

	txns, total, _, err := engine.FindAllForUser(ctx, a, ledger.Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, txns)
}

func TestTransfer_ExactBalanceIsAllowed(t *testing.T) {
	engine, store := newEngine(t)
	a := seedAccount(t, store, "a@test.com", "75.25")
	b := seedAccount(t, store, "b@test.com", "0")

	_, err := engine.Transfer(context.Background(), ledger.TransferRequest{SenderID: a, ReceiverID: b, Amount: dec("75.25")})
	require.NoError(t, err)

	assertBalance(t, store, a, "0")
	assertBalance(t, store, b, "75.25")
}

func TestTransfer_Conservation(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()

	a := seedAccount(t, store, "a@test.com", "1000")
	b := seedAccount(t, store, "b@test.com", "250.50")
	before := store.TotalBalance()

	amounts := []string{"0.01", "10", "99.99", "300", "0.50"}
	for _, amt := range amounts {
		balA, balB := store.Balance(a), store.Balance(b)

		_, err := engine.Transfer(ctx, ledger.TransferRequest{SenderID: a, ReceiverID: b, Amount: dec(amt)})
		require.NoError(t, err)

		assert.True(t, store.Balance(a).Add(dec(amt)).Equal(balA))
		assert.True(t, store.Balance(b).Sub(dec(amt)).Equal(balB))
	}

	assert.True(t, before.Equal(store.TotalBalance()))
}

func TestTransfer_Validation(t *testing.T) {
	engine, store := newEngine(t)
	a := seedAccount(t, store, "a@test.com", "100")
	b := seedAccount(t, store, "b@test.com", "100")

	tests := []struct {
		name     string
		req      ledger.TransferRequest
		wantErr  error
		wantKind domain.Kind
	}{
		{
			name:     "zero amount",
			req:      ledger.TransferRequest{SenderID: a, ReceiverID: b, Amount: decimal.Zero},
			wantErr:  domain.ErrInvalidAmount,
			wantKind: domain.KindValidation,
		},
		{
			name:     "negative amount",
			req:      ledger.TransferRequest{SenderID: a, ReceiverID: b, Amount: dec("-5")},
			wantErr:  domain.ErrInvalidAmount,
			wantKind: domain.KindValidation,
		},
		{
			name:     "too many decimal places",
			req:      ledger.TransferRequest{SenderID: a, ReceiverID: b, Amount: dec("1.005")},
			wantErr:  domain.ErrInvalidAmount,
			wantKind: domain.KindValidation,
		},
		{
			name:     "self transfer",
			req:      ledger.TransferRequest{SenderID: a, ReceiverID: a, Amount: dec("1")},
			wantErr:  domain.ErrSelfTransfer,
			wantKind: domain.KindValidation,
		},
		{
			name:     "unknown sender",
			req:      ledger.TransferRequest{SenderID: 999, ReceiverID: b, Amount: dec("1")},
			wantErr:  domain.ErrSenderNotFound,
			wantKind: domain.KindNotFound,
		},
		{
			name:     "unknown receiver",
			req:      ledger.TransferRequest{SenderID: a, ReceiverID: 999, Amount: dec("1")},
			wantErr:  domain.ErrReceiverNotFound,
			wantKind: domain.KindNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Transfer(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantKind, domain.KindOf(err))
			assertBalance(t, store, a, "100")
			assertBalance(t, store, b, "100")
		})
	}
}

func TestTransfer_DuplicateIdempotencyKey(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()
	a := seedAccount(t, store, "a@test.com", "100")
	b := seedAccount(t, store, "b@test.com", "0")

	req := ledger.TransferRequest{SenderID: a, ReceiverID: b, Amount: dec("10"), IdempotencyKey: "key-1"}
	_, err := engine.Transfer(ctx, req)
	require.NoError(t, err)

	_, err = engine.Transfer(ctx, req)
	require.ErrorIs(t, err, domain.ErrDuplicateTransfer)

	assertBalance(t, store, a, "90")
	assertBalance(t, store, b, "10")
}

func TestTransfer_IdempotencyKeyScopedToSender(t *testing.T) {
	engine, store := newEngine(t)
	ctx := context.Background()
	a := seedAccount(t, store, "a@test.com", "100")
	b := seedAccount(t, store, "b@test.com", "100")
	c := seedAccount(t, store, "c@test.com", "0")

	first, err := engine.Transfer(ctx, ledger.TransferRequest{SenderID: a, ReceiverID: c, Amount: dec("10"), IdempotencyKey: "order-1"})
	require.NoError(t, err)
	second, err := engine.Transfer(ctx, ledger.TransferRequest{SenderID: b, ReceiverID: c, Amount: dec("20"), IdempotencyKey: "order-1"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	_, err = engine.Transfer(ctx, ledger.TransferRequest{SenderID: b, ReceiverID: c, Amount: dec("20"), IdempotencyKey: "order-1"})
	require.ErrorIs(t, err, domain.ErrDuplicateTransfer)

	assertBalance(t, store, a, "90")
	assertBalance(t, store, b, "80")
	assertBalance(t, store, c, "30")
}

func TestTransfer_WritesEntriesAndEvent(t *testing.T) {
	engine, store := newEngine(t)
	a := seedAccount(t, store, "a@test.com", "500")
	b := seedAccount(t, store, "b@test.com", "20")

	txn, err := engine.Transfer(context.Background(), ledger.TransferRequest{SenderID: a, ReceiverID: b, Amount: dec("120")})
	require.NoError(t, err)

	entries := store.Entries()
	require.Len(t, entries, 2)

	debit, credit := entries[0], entries[1]
	assert.Equal(t, domain.EntryTypeDebit, debit.EntryType)
	assert.Equal(t, a, debit.AccountID)
	assert.True(t, dec("500").Equal(debit.BalanceBefore))
	assert.True(t, dec("380").Equal(debit.BalanceAfter))

	assert.Equal(t, domain.EntryTypeCredit, credit.EntryType)
	assert.Equal(t, b, credit.AccountID)
	assert.True(t, dec("20").Equal(credit.BalanceBefore))
	assert.True(t, dec("140").Equal(credit.BalanceAfter))

	for _, e := range entries {
		assert.Equal(t, txn.ID, e.TransactionID)
		assert.True(t, dec("120").Equal(e.Amount))
	}

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.TransactionEventTypeCompleted, events[0].EventType)
	assert.Equal(t, txn.ID, events[0].TransactionID)
	assert.Contains(t, events[0].Actor, "user:")
	assert.JSONEq(t, `{"sender_id":1,"receiver_id":2,"amount":"120.00"}`, string(events[0].Payload))
}

func TestTransfer_AtomicUnderStoreFailure(t *testing.T) {
	failures := []memory.Op{
		memory.OpAdjustBalance,
		memory.OpCreateTransaction,
		memory.OpAppendEntry,
		memory.OpAppendEvent,
		memory.OpCommit,
	}

	for _, op := range failures {
		t.Run(string(op), func(t *testing.T) {
			engine, store := newEngine(t)
			ctx := context.Background()
			a := seedAccount(t, store, "a@test.com", "500")
			b := seedAccount(t, store, "b@test.com", "0")

			store.FailOn(op, errors.New("connection reset"))

			_, err := engine.Transfer(ctx, ledger.TransferRequest{SenderID: a, ReceiverID: b, Amount: dec("100")})
			require.ErrorIs(t, err, domain.ErrStoreUnavailable)
			assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))

			store.ClearFaults()
			assertBalance(t, store, a, "500")
			assertBalance(t, store, b, "0")
			assert.Empty(t, store.Entries())
			assert.Empty(t, store.Events())

			txns, total, _, err := engine.FindAllForUser(ctx, a, ledger.Page{})
			require.NoError(t, err)
			assert.Zero(t, total)
			assert.Empty(t, txns)
		})
	}
}

func TestTransfer_CancelledContext(t *testing.T) {
	engine, store := newEngine(t)
	a := seedAccount(t, store, "a@test.com", "500")
	b := seedAccount(t, store, "b@test.com", "0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Transfer(ctx, ledger.TransferRequest{SenderID: a, ReceiverID: b, Amount: dec("1")})
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assertBalance(t, store, a, "500")
}

func TestTransfer_ConcurrentOverdraft(t *testing.T) {
	engine, store := newEngine(t)
	a := seedAccount(t, store, "a@test.com", "100")
	b := seedAccount(t, store, "b@test.com", "0")

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Transfer(context.Background(), ledger.TransferRequest{SenderID: a, ReceiverID: b, Amount: dec("80")})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, insufficient int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)
	assertBalance(t, store, a, "20")
	assertBalance(t, store, b, "80")
}

func TestTransfer_OppositeDirectionsConcurrently(t *testing.T) {
	engine, store := newEngine(t)
	a := seedAccount(t, store, "a@test.com", "1000")
	b := seedAccount(t, store, "b@test.com", "1000")

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := a, b
			if i%2 == 1 {
				from, to = b, a
			}
			_, err := engine.Transfer(context.Background(), ledger.TransferRequest{SenderID: from, ReceiverID: to, Amount: dec("10")})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assertBalance(t, store, a, "1000")
	assertBalance(t, store, b, "1000")
	assert.Len(t, store.Entries(), 40)
}
