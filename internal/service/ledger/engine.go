package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ledgerline/transfer-service/internal/domain"
)

// Page sizes used by FindAllForUser when no WithListLimits option is given.
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// Engine moves money between accounts and serves transaction history. Every
// write runs inside a single UnitOfWork that locks the touched accounts.
type Engine struct {
	uow      UnitOfWork
	reader   TransactionReader
	now      func() time.Time
	defLimit int
	maxLimit int
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithClock overrides the time source used for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithListLimits sets the default and maximum page size for FindAllForUser.
func WithListLimits(def, max int) Option {
	return func(e *Engine) {
		if def > 0 {
			e.defLimit = def
		}
		if max > 0 {
			e.maxLimit = max
		}
	}
}

// NewEngine builds an Engine over the given unit of work and reader. A
// default page size larger than the maximum is lowered to the maximum.
func NewEngine(uow UnitOfWork, reader TransactionReader, opts ...Option) *Engine {
	e := &Engine{
		uow:      uow,
		reader:   reader,
		now:      func() time.Time { return time.Now().UTC() },
		defLimit: DefaultListLimit,
		maxLimit: MaxListLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.defLimit > e.maxLimit {
		e.defLimit = e.maxLimit
	}
	return e
}

// classify leaves domain errors untouched and marks everything else as a
// store failure, so callers can always tell business rejections from
// infrastructure faults.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if domain.KindOf(err) != domain.KindUnknown {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}

type lockTarget struct {
	id      int64
	missing error
}

// lockInOrder takes row locks in ascending id order so two units touching
// the same pair in opposite directions cannot deadlock. A missing account is
// reported with the target's own sentinel.
func lockInOrder(ctx context.Context, accounts AccountStore, targets ...lockTarget) (map[int64]*domain.Account, error) {
	sorted := make([]lockTarget, len(targets))
	copy(sorted, targets)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].id < sorted[j].id })

	result := make(map[int64]*domain.Account, len(targets))
	for _, t := range sorted {
		if _, ok := result[t.id]; ok {
			continue
		}
		acct, err := accounts.Lock(ctx, t.id)
		if err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) || errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("lockInOrder: %d: %w", t.id, t.missing)
			}
			return nil, fmt.Errorf("lockInOrder: %d: %w", t.id, err)
		}
		result[t.id] = acct
	}
	return result, nil
}
