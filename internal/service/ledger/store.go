package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/transfer-service/internal/domain"
)

// AccountStore is the balance side of an atomic unit. Every method is only
// valid inside UnitOfWork.Do.
type AccountStore interface {
	GetBalance(ctx context.Context, id int64) (decimal.Decimal, error)
	// Lock reads the account and holds a row lock until the unit ends.
	Lock(ctx context.Context, id int64) (*domain.Account, error)
	// AdjustBalance applies delta and fails with domain.ErrInsufficientFunds
	// if the resulting balance would be negative.
	AdjustBalance(ctx context.Context, id int64, delta decimal.Decimal) (*domain.BalanceChange, error)
}

// Journal is the append-only transaction record inside an atomic unit.
type Journal interface {
	CreateTransaction(ctx context.Context, t *domain.Transaction) error
	GetForUpdate(ctx context.Context, id int64) (*domain.Transaction, error)
	MarkReversed(ctx context.Context, id int64, at time.Time) error
	CreateReversal(ctx context.Context, r *domain.Reversal) error
	AppendEntry(ctx context.Context, e *domain.LedgerEntry) error
	AppendEvent(ctx context.Context, e *domain.TransactionEvent) error
}

// UnitOfWork runs fn as one atomic, isolated unit. fn's effects commit
// together when it returns nil and are discarded otherwise.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, accounts AccountStore, journal Journal) error) error
}

// TransactionReader is the read path of the journal.
type TransactionReader interface {
	GetByID(ctx context.Context, id int64) (*domain.Transaction, error)
	ListByParticipant(ctx context.Context, accountID int64, limit, offset int) ([]domain.Transaction, int, error)
}
