// Package memory is an in-process implementation of the ledger store
// contracts. Units of work run one at a time against a private copy of the
// state, which replaces the shared state only when the unit succeeds.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/transfer-service/internal/domain"
	"github.com/ledgerline/transfer-service/internal/service/ledger"
)

// Op names a store call that can be made to fail.
type Op string

const (
	OpLock              Op = "lock"
	OpGetBalance        Op = "get_balance"
	OpAdjustBalance     Op = "adjust_balance"
	OpCreateTransaction Op = "create_transaction"
	OpGetForUpdate      Op = "get_for_update"
	OpMarkReversed      Op = "mark_reversed"
	OpCreateReversal    Op = "create_reversal"
	OpAppendEntry       Op = "append_entry"
	OpAppendEvent       Op = "append_event"
	OpCommit            Op = "commit"
	OpRead              Op = "read"
)

// idemKey scopes idempotency keys to the sending account.
type idemKey struct {
	sender int64
	key    string
}

type state struct {
	accounts     map[int64]domain.Account
	transactions map[int64]domain.Transaction
	reversals    map[int64]domain.Reversal
	idemKeys     map[idemKey]int64
	entries      []domain.LedgerEntry
	events       []domain.TransactionEvent

	nextAccountID     int64
	nextTransactionID int64
	nextReversalID    int64
}

func newState() *state {
	return &state{
		accounts:          make(map[int64]domain.Account),
		transactions:      make(map[int64]domain.Transaction),
		reversals:         make(map[int64]domain.Reversal),
		idemKeys:          make(map[idemKey]int64),
		nextAccountID:     1,
		nextTransactionID: 1,
		nextReversalID:    1,
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts:          make(map[int64]domain.Account, len(s.accounts)),
		transactions:      make(map[int64]domain.Transaction, len(s.transactions)),
		reversals:         make(map[int64]domain.Reversal, len(s.reversals)),
		idemKeys:          make(map[idemKey]int64, len(s.idemKeys)),
		entries:           append([]domain.LedgerEntry(nil), s.entries...),
		events:            append([]domain.TransactionEvent(nil), s.events...),
		nextAccountID:     s.nextAccountID,
		nextTransactionID: s.nextTransactionID,
		nextReversalID:    s.nextReversalID,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.reversals {
		c.reversals[k] = v
	}
	for k, v := range s.idemKeys {
		c.idemKeys[k] = v
	}
	return c
}

type Store struct {
	mu     sync.Mutex
	state  *state
	faults map[Op]error
	now    func() time.Time
}

func New() *Store {
	return &Store{
		state:  newState(),
		faults: make(map[Op]error),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// FailOn makes every later call of op return err until ClearFaults.
func (s *Store) FailOn(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = err
}

func (s *Store) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[Op]error)
}

func (s *Store) fault(op Op) error {
	if err, ok := s.faults[op]; ok {
		return fmt.Errorf("memory: %s: %w", op, err)
	}
	return nil
}

func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, accounts ledger.AccountStore, journal ledger.Journal) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("Do: %w: %w", domain.ErrStoreUnavailable, err)
	}

	work := s.state.clone()
	u := &unit{store: s, st: work}
	if err := fn(ctx, u, u); err != nil {
		return err
	}

	if err := s.fault(OpCommit); err != nil {
		return fmt.Errorf("Do: commit: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("Do: commit: %w: %w", domain.ErrStoreUnavailable, err)
	}
	s.state = work
	return nil
}

// Create inserts a new account and fills in its id and timestamps.
func (s *Store) Create(_ context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.Balance.IsNegative() {
		return fmt.Errorf("Create: %w", domain.ErrInsufficientFunds)
	}
	for _, existing := range s.state.accounts {
		if strings.EqualFold(existing.Email, a.Email) {
			return fmt.Errorf("Create: %w", domain.ErrAccountExists)
		}
	}

	now := s.now()
	a.ID = s.state.nextAccountID
	a.CreatedAt = now
	a.UpdatedAt = now
	s.state.nextAccountID++
	s.state.accounts[a.ID] = *a
	return nil
}

func (s *Store) GetByID(_ context.Context, id int64) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fault(OpRead); err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	a, ok := s.state.accounts[id]
	if !ok {
		return nil, fmt.Errorf("GetByID: %w", domain.ErrAccountNotFound)
	}
	return &a, nil
}

func (s *Store) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.state.accounts {
		if strings.EqualFold(a.Email, email) {
			return &a, nil
		}
	}
	return nil, fmt.Errorf("GetByEmail: %w", domain.ErrAccountNotFound)
}

// Balance returns the committed balance, or zero for an unknown account.
func (s *Store) Balance(id int64) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.accounts[id].Balance
}

// TotalBalance sums every committed balance.
func (s *Store) TotalBalance() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, a := range s.state.accounts {
		total = total.Add(a.Balance)
	}
	return total
}

func (s *Store) Entries() []domain.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.LedgerEntry(nil), s.state.entries...)
}

func (s *Store) Events() []domain.TransactionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TransactionEvent(nil), s.state.events...)
}

func (s *Store) GetByTransactionID(_ context.Context, transactionID int64) ([]domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.LedgerEntry
	for _, e := range s.state.entries {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetByAccountID returns the account's ledger entries newest first.
func (s *Store) GetByAccountID(_ context.Context, accountID int64, limit, offset int) ([]domain.LedgerEntry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fault(OpRead); err != nil {
		return nil, 0, fmt.Errorf("GetByAccountID: %w", err)
	}

	var matched []domain.LedgerEntry
	for i := len(s.state.entries) - 1; i >= 0; i-- {
		if e := s.state.entries[i]; e.AccountID == accountID {
			matched = append(matched, e)
		}
	}
	return paginate(matched, limit, offset), len(matched), nil
}

// Reader exposes the journal read path.
func (s *Store) Reader() *Reader { return &Reader{store: s} }

type Reader struct {
	store *Store
}

func (r *Reader) GetByID(_ context.Context, id int64) (*domain.Transaction, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fault(OpRead); err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	t, ok := s.state.transactions[id]
	if !ok {
		return nil, fmt.Errorf("GetByID: %w", domain.ErrTransactionNotFound)
	}
	return s.state.detailed(t), nil
}

func (r *Reader) ListByParticipant(_ context.Context, accountID int64, limit, offset int) ([]domain.Transaction, int, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fault(OpRead); err != nil {
		return nil, 0, fmt.Errorf("ListByParticipant: %w", err)
	}

	var matched []domain.Transaction
	for _, t := range s.state.transactions {
		if t.Involves(accountID) {
			matched = append(matched, *s.state.detailed(t))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	return paginate(matched, limit, offset), len(matched), nil
}

func (st *state) detailed(t domain.Transaction) *domain.Transaction {
	if a, ok := st.accounts[t.SenderID]; ok {
		t.Sender = &domain.Party{ID: a.ID, Email: a.Email}
	}
	if a, ok := st.accounts[t.ReceiverID]; ok {
		t.Receiver = &domain.Party{ID: a.ID, Email: a.Email}
	}
	if rev, ok := st.reversals[t.ID]; ok {
		t.Reversal = &rev
	}
	return &t
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

// unit is the view of one in-flight unit of work. It serves both the
// account and journal sides.
type unit struct {
	store *Store
	st    *state
}

func (u *unit) GetBalance(_ context.Context, id int64) (decimal.Decimal, error) {
	if err := u.store.fault(OpGetBalance); err != nil {
		return decimal.Zero, err
	}
	a, ok := u.st.accounts[id]
	if !ok {
		return decimal.Zero, fmt.Errorf("GetBalance: %w", domain.ErrAccountNotFound)
	}
	return a.Balance, nil
}

func (u *unit) Lock(_ context.Context, id int64) (*domain.Account, error) {
	if err := u.store.fault(OpLock); err != nil {
		return nil, err
	}
	a, ok := u.st.accounts[id]
	if !ok {
		return nil, fmt.Errorf("Lock: %w", domain.ErrAccountNotFound)
	}
	return &a, nil
}

func (u *unit) AdjustBalance(_ context.Context, id int64, delta decimal.Decimal) (*domain.BalanceChange, error) {
	if err := u.store.fault(OpAdjustBalance); err != nil {
		return nil, err
	}
	a, ok := u.st.accounts[id]
	if !ok {
		return nil, fmt.Errorf("AdjustBalance: %w", domain.ErrAccountNotFound)
	}
	after := a.Balance.Add(delta)
	if after.IsNegative() {
		return nil, fmt.Errorf("AdjustBalance: %w", domain.ErrInsufficientFunds)
	}
	change := &domain.BalanceChange{AccountID: id, Before: a.Balance, After: after}
	a.Balance = after
	a.UpdatedAt = u.store.now()
	u.st.accounts[id] = a
	return change, nil
}

func (u *unit) CreateTransaction(_ context.Context, t *domain.Transaction) error {
	if err := u.store.fault(OpCreateTransaction); err != nil {
		return err
	}
	if t.SenderID == t.ReceiverID {
		return fmt.Errorf("CreateTransaction: %w", domain.ErrSelfTransfer)
	}
	if t.IdempotencyKey != nil {
		if _, dup := u.st.idemKeys[idemKey{t.SenderID, *t.IdempotencyKey}]; dup {
			return fmt.Errorf("CreateTransaction: %w", domain.ErrDuplicateTransfer)
		}
	}
	t.ID = u.st.nextTransactionID
	u.st.nextTransactionID++
	stored := *t
	stored.Sender, stored.Receiver, stored.Reversal = nil, nil, nil
	u.st.transactions[t.ID] = stored
	if t.IdempotencyKey != nil {
		u.st.idemKeys[idemKey{t.SenderID, *t.IdempotencyKey}] = t.ID
	}
	return nil
}

func (u *unit) GetForUpdate(_ context.Context, id int64) (*domain.Transaction, error) {
	if err := u.store.fault(OpGetForUpdate); err != nil {
		return nil, err
	}
	t, ok := u.st.transactions[id]
	if !ok {
		return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrTransactionNotFound)
	}
	return &t, nil
}

func (u *unit) MarkReversed(_ context.Context, id int64, at time.Time) error {
	if err := u.store.fault(OpMarkReversed); err != nil {
		return err
	}
	t, ok := u.st.transactions[id]
	if !ok {
		return fmt.Errorf("MarkReversed: %w", domain.ErrTransactionNotFound)
	}
	if t.Status != domain.TransactionStatusCompleted {
		return fmt.Errorf("MarkReversed: %w", domain.ErrAlreadyReversed)
	}
	t.Status = domain.TransactionStatusReversed
	t.UpdatedAt = at
	u.st.transactions[id] = t
	return nil
}

func (u *unit) CreateReversal(_ context.Context, r *domain.Reversal) error {
	if err := u.store.fault(OpCreateReversal); err != nil {
		return err
	}
	if _, exists := u.st.reversals[r.TransactionID]; exists {
		return fmt.Errorf("CreateReversal: %w", domain.ErrAlreadyReversed)
	}
	r.ID = u.st.nextReversalID
	u.st.nextReversalID++
	u.st.reversals[r.TransactionID] = *r
	return nil
}

func (u *unit) AppendEntry(_ context.Context, e *domain.LedgerEntry) error {
	if err := u.store.fault(OpAppendEntry); err != nil {
		return err
	}
	if !e.Amount.IsPositive() {
		return errors.New("AppendEntry: amount must be positive")
	}
	u.st.entries = append(u.st.entries, *e)
	return nil
}

func (u *unit) AppendEvent(_ context.Context, e *domain.TransactionEvent) error {
	if err := u.store.fault(OpAppendEvent); err != nil {
		return err
	}
	u.st.events = append(u.st.events, *e)
	return nil
}
