package service

import (
	"context"
	"fmt"

	"github.com/ledgerline/transfer-service/internal/domain"
	"github.com/ledgerline/transfer-service/internal/service/ledger"
)

type accountReader interface {
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
}

type entryReader interface {
	GetByAccountID(ctx context.Context, accountID int64, limit, offset int) ([]domain.LedgerEntry, int, error)
}

// AccountService serves balance and statement reads.
type AccountService struct {
	accounts     accountReader
	entries      entryReader
	defaultLimit int
	maxLimit     int
}

func NewAccountService(accounts accountReader, entries entryReader, defaultLimit, maxLimit int) *AccountService {
	return &AccountService{
		accounts:     accounts,
		entries:      entries,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

func (s *AccountService) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return account, nil
}

// Statement lists the account's ledger entries newest first. The returned
// page is the one applied after defaults and caps.
func (s *AccountService) Statement(ctx context.Context, id int64, page ledger.Page) ([]domain.LedgerEntry, int, ledger.Page, error) {
	p, err := page.Normalize(s.defaultLimit, s.maxLimit)
	if err != nil {
		return nil, 0, ledger.Page{}, fmt.Errorf("Statement: %w", err)
	}

	if _, err := s.accounts.GetByID(ctx, id); err != nil {
		return nil, 0, ledger.Page{}, fmt.Errorf("Statement: %w", err)
	}

	entries, total, err := s.entries.GetByAccountID(ctx, id, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, ledger.Page{}, fmt.Errorf("Statement: %w", err)
	}
	return entries, total, p, nil
}
