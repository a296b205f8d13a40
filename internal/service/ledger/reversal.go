package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledgerline/transfer-service/internal/domain"
	"github.com/ledgerline/transfer-service/internal/logging"
)

type ReverseRequest struct {
	TransactionID int64
	Reason        string
	// ActorID is recorded on the audit event. Zero means the system.
	ActorID int64
}

// Reverse undoes a completed transfer in full: the original sender is
// credited, the original receiver is debited and the transaction becomes
// REVERSED. A transaction can be reversed at most once.
func (e *Engine) Reverse(ctx context.Context, req ReverseRequest) (*domain.Reversal, error) {
	log := logging.FromContext(ctx)

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, fmt.Errorf("Reverse: reason is required: %w", domain.ErrInvalidRequest)
	}

	var rev *domain.Reversal
	err := e.uow.Do(ctx, func(ctx context.Context, accounts AccountStore, journal Journal) error {
		r, err := e.executeReversal(ctx, accounts, journal, req.TransactionID, reason, req.ActorID)
		if err != nil {
			return err
		}
		rev = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Reverse: %w", classify(err))
	}

	log.Info("transaction reversed",
		"transaction_id", rev.TransactionID,
		"reversal_id", rev.ID,
	)

	return rev, nil
}

func (e *Engine) executeReversal(ctx context.Context, accounts AccountStore, journal Journal, transactionID int64, reason string, actorID int64) (*domain.Reversal, error) {
	t, err := journal.GetForUpdate(ctx, transactionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("executeReversal: %w", domain.ErrTransactionNotFound)
		}
		return nil, fmt.Errorf("executeReversal: %w", err)
	}

	if t.Status == domain.TransactionStatusReversed {
		return nil, fmt.Errorf("executeReversal: %w", domain.ErrAlreadyReversed)
	}

	locked, err := lockInOrder(ctx, accounts,
		lockTarget{id: t.SenderID, missing: domain.ErrAccountNotFound},
		lockTarget{id: t.ReceiverID, missing: domain.ErrAccountNotFound},
	)
	if err != nil {
		return nil, fmt.Errorf("executeReversal: %w", err)
	}

	if locked[t.ReceiverID].Balance.LessThan(t.Amount) {
		return nil, fmt.Errorf("executeReversal: %w", domain.ErrReversalWouldOverdraw)
	}

	debit, err := accounts.AdjustBalance(ctx, t.ReceiverID, t.Amount.Neg())
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return nil, fmt.Errorf("executeReversal: %w", domain.ErrReversalWouldOverdraw)
		}
		return nil, fmt.Errorf("executeReversal: debit receiver: %w", err)
	}
	credit, err := accounts.AdjustBalance(ctx, t.SenderID, t.Amount)
	if err != nil {
		return nil, fmt.Errorf("executeReversal: credit sender: %w", err)
	}

	now := e.now()
	if err := journal.MarkReversed(ctx, t.ID, now); err != nil {
		return nil, fmt.Errorf("executeReversal: mark reversed: %w", err)
	}

	rev := &domain.Reversal{
		TransactionID: t.ID,
		Reason:        reason,
		Status:        domain.ReversalStatusApproved,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := journal.CreateReversal(ctx, rev); err != nil {
		return nil, fmt.Errorf("executeReversal: create reversal: %w", err)
	}

	if err := writeEntries(ctx, journal, t.ID, t.Amount, now, debitOf(debit), creditOf(credit)); err != nil {
		return nil, fmt.Errorf("executeReversal: %w", err)
	}

	payload := map[string]any{
		"reversal_id": rev.ID,
		"reason":      reason,
	}
	if err := writeEvent(ctx, journal, t.ID, domain.TransactionEventTypeReversed, actorFor(actorID), payload, now); err != nil {
		return nil, fmt.Errorf("executeReversal: %w", err)
	}

	return rev, nil
}
