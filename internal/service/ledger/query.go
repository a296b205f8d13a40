package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgerline/transfer-service/internal/domain"
)

type Page struct {
	Limit  int
	Offset int
}

// Normalize applies a default and maximum page size. A non-positive limit
// means the default; a negative offset is rejected.
func (p Page) Normalize(defaultLimit, maxLimit int) (Page, error) {
	if p.Offset < 0 {
		return Page{}, fmt.Errorf("offset must not be negative: %w", domain.ErrInvalidRequest)
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p, nil
}

// FindAllForUser lists the transactions the user sent or received, newest
// first, together with the total number of matches and the page actually
// applied after defaults and caps.
func (e *Engine) FindAllForUser(ctx context.Context, userID int64, page Page) ([]domain.Transaction, int, Page, error) {
	p, err := page.Normalize(e.defLimit, e.maxLimit)
	if err != nil {
		return nil, 0, Page{}, fmt.Errorf("FindAllForUser: %w", err)
	}

	txns, total, err := e.reader.ListByParticipant(ctx, userID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, Page{}, fmt.Errorf("FindAllForUser: %w", classify(err))
	}
	return txns, total, p, nil
}

func (e *Engine) FindByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	t, err := e.reader.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("FindByID: %w", domain.ErrTransactionNotFound)
		}
		return nil, fmt.Errorf("FindByID: %w", classify(err))
	}
	return t, nil
}

// FindForParticipant behaves like FindByID but hides transactions the user
// took no part in.
func (e *Engine) FindForParticipant(ctx context.Context, id, userID int64) (*domain.Transaction, error) {
	t, err := e.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("FindForParticipant: %w", err)
	}
	if !t.Involves(userID) {
		return nil, fmt.Errorf("FindForParticipant: %w", domain.ErrTransactionNotFound)
	}
	return t, nil
}
