package ledger_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/transfer-service/internal/domain"
	"github.com/ledgerline/transfer-service/internal/repository"
	"github.com/ledgerline/transfer-service/internal/service/ledger"
	"github.com/ledgerline/transfer-service/internal/testutil"
)

func setupPostgresEngine(t *testing.T) (*ledger.Engine, *sql.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return ledger.NewEngine(repository.NewUnitOfWork(db), repository.NewTransactionRepository(db)), db
}

func assertPGBalance(t *testing.T, db *sql.DB, id int64, want string) {
	t.Helper()
	got := testutil.GetAccountBalance(t, db, id)
	assert.True(t, dec(want).Equal(got), "account %d: want %s, got %s", id, want, got)
}

func TestPostgres_TransferThenReverse(t *testing.T) {
	engine, db := setupPostgresEngine(t)
	ctx := context.Background()

	a := testutil.SeedAccount(t, db, "a@test.com", "500")
	b := testutil.SeedAccount(t, db, "b@test.com", "0")

	txn, err := engine.Transfer(ctx, ledger.TransferRequest{
		SenderID: a.ID, ReceiverID: b.ID, Amount: dec("100"), Description: "test",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, txn.Status)
	assertPGBalance(t, db, a.ID, "400")
	assertPGBalance(t, db, b.ID, "100")
	assert.Equal(t, 2, testutil.CountLedgerEntries(t, db, txn.ID))

	_, err = engine.Reverse(ctx, ledger.ReverseRequest{TransactionID: txn.ID, Reason: "mistake", ActorID: a.ID})
	require.NoError(t, err)
	assertPGBalance(t, db, a.ID, "500")
	assertPGBalance(t, db, b.ID, "0")
	assert.Equal(t, domain.TransactionStatusReversed, testutil.TransactionStatus(t, db, txn.ID))
	assert.Equal(t, 4, testutil.CountLedgerEntries(t, db, txn.ID))

	got, err := engine.FindByID(ctx, txn.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Reversal)
	assert.Equal(t, "mistake", got.Reversal.Reason)
	assert.Equal(t, "a@test.com", got.Sender.Email)
	assert.Equal(t, "b@test.com", got.Receiver.Email)

	_, err = engine.Reverse(ctx, ledger.ReverseRequest{TransactionID: txn.ID, Reason: "again"})
	require.ErrorIs(t, err, domain.ErrAlreadyReversed)
}

func TestPostgres_InsufficientFundsLeavesNoTrace(t *testing.T) {
	engine, db := setupPostgresEngine(t)
	ctx := context.Background()

	a := testutil.SeedAccount(t, db, "a@test.com", "50")
	b := testutil.SeedAccount(t, db, "b@test.com", "0")

	_, err := engine.Transfer(ctx, ledger.TransferRequest{SenderID: a.ID, ReceiverID: b.ID, Amount: dec("100")})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assertPGBalance(t, db, a.ID, "50")
	assertPGBalance(t, db, b.ID, "0")
	assert.Zero(t, testutil.CountTransactions(t, db))
}

func TestPostgres_MissingParties(t *testing.T) {
	engine, db := setupPostgresEngine(t)
	ctx := context.Background()

	a := testutil.SeedAccount(t, db, "a@test.com", "50")

	_, err := engine.Transfer(ctx, ledger.TransferRequest{SenderID: a.ID, ReceiverID: a.ID + 100, Amount: dec("1")})
	require.ErrorIs(t, err, domain.ErrReceiverNotFound)

	_, err = engine.Transfer(ctx, ledger.TransferRequest{SenderID: a.ID + 100, ReceiverID: a.ID, Amount: dec("1")})
	require.ErrorIs(t, err, domain.ErrSenderNotFound)

	_, err = engine.Reverse(ctx, ledger.ReverseRequest{TransactionID: 424242, Reason: "x"})
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestPostgres_DuplicateIdempotencyKey(t *testing.T) {
	engine, db := setupPostgresEngine(t)
	ctx := context.Background()

	a := testutil.SeedAccount(t, db, "a@test.com", "100")
	b := testutil.SeedAccount(t, db, "b@test.com", "0")
	req := ledger.TransferRequest{SenderID: a.ID, ReceiverID: b.ID, Amount: dec("10"), IdempotencyKey: uuid.NewString()}

	_, err := engine.Transfer(ctx, req)
	require.NoError(t, err)
	_, err = engine.Transfer(ctx, req)
	require.ErrorIs(t, err, domain.ErrDuplicateTransfer)

	assertPGBalance(t, db, a.ID, "90")
	assert.Equal(t, 1, testutil.CountTransactions(t, db))
}

func TestPostgres_IdempotencyKeyScopedToSender(t *testing.T) {
	engine, db := setupPostgresEngine(t)
	ctx := context.Background()

	a := testutil.SeedAccount(t, db, "a@test.com", "100")
	b := testutil.SeedAccount(t, db, "b@test.com", "100")
	c := testutil.SeedAccount(t, db, "c@test.com", "0")
	key := uuid.NewString()

	_, err := engine.Transfer(ctx, ledger.TransferRequest{SenderID: a.ID, ReceiverID: c.ID, Amount: dec("10"), IdempotencyKey: key})
	require.NoError(t, err)
	_, err = engine.Transfer(ctx, ledger.TransferRequest{SenderID: b.ID, ReceiverID: c.ID, Amount: dec("20"), IdempotencyKey: key})
	require.NoError(t, err)

	assertPGBalance(t, db, a.ID, "90")
	assertPGBalance(t, db, b.ID, "80")
	assertPGBalance(t, db, c.ID, "30")
	assert.Equal(t, 2, testutil.CountTransactions(t, db))
}

func TestPostgres_ReversalWouldOverdraw(t *testing.T) {
	engine, db := setupPostgresEngine(t)
	ctx := context.Background()

	a := testutil.SeedAccount(t, db, "a@test.com", "100")
	b := testutil.SeedAccount(t, db, "b@test.com", "0")
	c := testutil.SeedAccount(t, db, "c@test.com", "0")

	txn, err := engine.Transfer(ctx, ledger.TransferRequest{SenderID: a.ID, ReceiverID: b.ID, Amount: dec("100")})
	require.NoError(t, err)
	_, err = engine.Transfer(ctx, ledger.TransferRequest{SenderID: b.ID, ReceiverID: c.ID, Amount: dec("60")})
	require.NoError(t, err)

	_, err = engine.Reverse(ctx, ledger.ReverseRequest{TransactionID: txn.ID, Reason: "chargeback"})
	require.ErrorIs(t, err, domain.ErrReversalWouldOverdraw)

	assertPGBalance(t, db, a.ID, "0")
	assertPGBalance(t, db, b.ID, "40")
	assert.Equal(t, domain.TransactionStatusCompleted, testutil.TransactionStatus(t, db, txn.ID))
}

func TestPostgres_ConcurrentOverdraft(t *testing.T) {
	engine, db := setupPostgresEngine(t)
	ctx := context.Background()

	a := testutil.SeedAccount(t, db, "a@test.com", "100")
	b := testutil.SeedAccount(t, db, "b@test.com", "0")
	c := testutil.SeedAccount(t, db, "c@test.com", "0")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, to := range []int64{b.ID, c.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = engine.Transfer(ctx, ledger.TransferRequest{SenderID: a.ID, ReceiverID: to, Amount: dec("80")})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	}
	assert.Equal(t, 1, succeeded)
	assertPGBalance(t, db, a.ID, "20")
}

func TestPostgres_OppositeDirectionsDoNotDeadlock(t *testing.T) {
	engine, db := setupPostgresEngine(t)
	ctx := context.Background()

	a := testutil.SeedAccount(t, db, "a@test.com", "1000")
	b := testutil.SeedAccount(t, db, "b@test.com", "1000")

	const rounds = 20
	var wg sync.WaitGroup
	errs := make(chan error, 2*rounds)
	for range rounds {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := engine.Transfer(ctx, ledger.TransferRequest{SenderID: a.ID, ReceiverID: b.ID, Amount: dec("1.25")})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := engine.Transfer(ctx, ledger.TransferRequest{SenderID: b.ID, ReceiverID: a.ID, Amount: dec("1.25")})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assertPGBalance(t, db, a.ID, "1000")
	assertPGBalance(t, db, b.ID, "1000")
}

func TestPostgres_ConcurrentDoubleReversal(t *testing.T) {
	engine, db := setupPostgresEngine(t)
	ctx := context.Background()

	a := testutil.SeedAccount(t, db, "a@test.com", "100")
	b := testutil.SeedAccount(t, db, "b@test.com", "0")

	txn, err := engine.Transfer(ctx, ledger.TransferRequest{SenderID: a.ID, ReceiverID: b.ID, Amount: dec("100")})
	require.NoError(t, err)

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = engine.Reverse(ctx, ledger.ReverseRequest{TransactionID: txn.ID, Reason: "race"})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, domain.ErrAlreadyReversed)
	}
	assert.Equal(t, 1, succeeded)
	assertPGBalance(t, db, a.ID, "100")
	assertPGBalance(t, db, b.ID, "0")
}

func TestPostgres_ListPagination(t *testing.T) {
	engine, db := setupPostgresEngine(t)
	ctx := context.Background()

	a := testutil.SeedAccount(t, db, "a@test.com", "100")
	b := testutil.SeedAccount(t, db, "b@test.com", "0")

	var ids []int64
	for range 5 {
		txn, err := engine.Transfer(ctx, ledger.TransferRequest{SenderID: a.ID, ReceiverID: b.ID, Amount: dec("1")})
		require.NoError(t, err)
		ids = append(ids, txn.ID)
	}

	page, total, _, err := engine.FindAllForUser(ctx, b.ID, ledger.Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, ids[3], page[0].ID)
	assert.Equal(t, ids[2], page[1].ID)
}
