package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/transfer-service/internal/domain"
	"github.com/ledgerline/transfer-service/internal/logging"
	"github.com/ledgerline/transfer-service/internal/service/ledger"
)

// UnitOfWork runs ledger mutations inside one read-committed database
// transaction. Isolation between concurrent units comes from row locks
// taken through AccountStore.Lock and Journal.GetForUpdate.
type UnitOfWork struct {
	db           *sql.DB
	accounts     *AccountRepository
	transactions *TransactionRepository
	reversals    *ReversalRepository
	ledger       *LedgerRepository
	events       *TransactionEventRepository
}

func NewUnitOfWork(db *sql.DB) *UnitOfWork {
	return &UnitOfWork{
		db:           db,
		accounts:     NewAccountRepository(db),
		transactions: NewTransactionRepository(db),
		reversals:    NewReversalRepository(db),
		ledger:       NewLedgerRepository(db),
		events:       NewTransactionEventRepository(db),
	}
}

func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, accounts ledger.AccountStore, journal ledger.Journal) error) error {
	tx, err := u.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("Do: begin tx: %w: %w", domain.ErrStoreUnavailable, err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			logging.FromContext(ctx).Warn("rollback failed", "error", err)
		}
	}()

	if err := fn(ctx, &txAccounts{repo: u.accounts, tx: tx}, &txJournal{u: u, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Do: commit: %w: %w", domain.ErrStoreUnavailable, translateError(err))
	}
	return nil
}

type txAccounts struct {
	repo *AccountRepository
	tx   *sql.Tx
}

func (a *txAccounts) GetBalance(ctx context.Context, id int64) (decimal.Decimal, error) {
	return a.repo.GetBalance(ctx, a.tx, id)
}

func (a *txAccounts) Lock(ctx context.Context, id int64) (*domain.Account, error) {
	return a.repo.GetForUpdate(ctx, a.tx, id)
}

func (a *txAccounts) AdjustBalance(ctx context.Context, id int64, delta decimal.Decimal) (*domain.BalanceChange, error) {
	return a.repo.AdjustBalance(ctx, a.tx, id, delta)
}

type txJournal struct {
	u  *UnitOfWork
	tx *sql.Tx
}

func (j *txJournal) CreateTransaction(ctx context.Context, t *domain.Transaction) error {
	return j.u.transactions.Create(ctx, j.tx, t)
}

func (j *txJournal) GetForUpdate(ctx context.Context, id int64) (*domain.Transaction, error) {
	return j.u.transactions.GetForUpdate(ctx, j.tx, id)
}

func (j *txJournal) MarkReversed(ctx context.Context, id int64, at time.Time) error {
	return j.u.transactions.MarkReversed(ctx, j.tx, id, at)
}

func (j *txJournal) CreateReversal(ctx context.Context, r *domain.Reversal) error {
	return j.u.reversals.Create(ctx, j.tx, r)
}

func (j *txJournal) AppendEntry(ctx context.Context, e *domain.LedgerEntry) error {
	return j.u.ledger.Create(ctx, j.tx, e)
}

func (j *txJournal) AppendEvent(ctx context.Context, e *domain.TransactionEvent) error {
	return j.u.events.Create(ctx, j.tx, e)
}
