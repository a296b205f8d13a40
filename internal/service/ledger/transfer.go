package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/transfer-service/internal/domain"
	"github.com/ledgerline/transfer-service/internal/logging"
)

type TransferRequest struct {
	SenderID       int64
	ReceiverID     int64
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
}

func (e *Engine) Transfer(ctx context.Context, req TransferRequest) (*domain.Transaction, error) {
	log := logging.FromContext(ctx)

	if err := validateTransfer(req); err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}

	var txn *domain.Transaction
	err := e.uow.Do(ctx, func(ctx context.Context, accounts AccountStore, journal Journal) error {
		t, err := e.executeTransfer(ctx, accounts, journal, req)
		if err != nil {
			return err
		}
		txn = t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Transfer: %w", classify(err))
	}

	log.Info("transfer completed",
		"transaction_id", txn.ID,
		"sender_id", txn.SenderID,
		"receiver_id", txn.ReceiverID,
		"amount", txn.Amount.StringFixed(domain.AmountScale),
	)

	return txn, nil
}

func validateTransfer(req TransferRequest) error {
	if !domain.ValidAmount(req.Amount) {
		return fmt.Errorf("validateTransfer: %w", domain.ErrInvalidAmount)
	}
	if req.SenderID == req.ReceiverID {
		return fmt.Errorf("validateTransfer: %w", domain.ErrSelfTransfer)
	}
	return nil
}

func (e *Engine) executeTransfer(ctx context.Context, accounts AccountStore, journal Journal, req TransferRequest) (*domain.Transaction, error) {
	locked, err := lockInOrder(ctx, accounts,
		lockTarget{id: req.SenderID, missing: domain.ErrSenderNotFound},
		lockTarget{id: req.ReceiverID, missing: domain.ErrReceiverNotFound},
	)
	if err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", err)
	}

	if locked[req.SenderID].Balance.LessThan(req.Amount) {
		return nil, fmt.Errorf("executeTransfer: %w", domain.ErrInsufficientFunds)
	}

	debit, err := accounts.AdjustBalance(ctx, req.SenderID, req.Amount.Neg())
	if err != nil {
		return nil, fmt.Errorf("executeTransfer: debit sender: %w", err)
	}
	credit, err := accounts.AdjustBalance(ctx, req.ReceiverID, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("executeTransfer: credit receiver: %w", err)
	}

	now := e.now()
	t := &domain.Transaction{
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		Amount:     req.Amount,
		Type:       domain.TransactionTypeTransfer,
		Status:     domain.TransactionStatusCompleted,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if d := strings.TrimSpace(req.Description); d != "" {
		t.Description = &d
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		t.IdempotencyKey = &key
	}

	if err := journal.CreateTransaction(ctx, t); err != nil {
		return nil, fmt.Errorf("executeTransfer: create transaction: %w", err)
	}

	if err := writeEntries(ctx, journal, t.ID, req.Amount, now, debitOf(debit), creditOf(credit)); err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", err)
	}

	payload := map[string]any{
		"sender_id":   t.SenderID,
		"receiver_id": t.ReceiverID,
		"amount":      t.Amount.StringFixed(domain.AmountScale),
	}
	if err := writeEvent(ctx, journal, t.ID, domain.TransactionEventTypeCompleted, actorFor(req.SenderID), payload, now); err != nil {
		return nil, fmt.Errorf("executeTransfer: %w", err)
	}

	return t, nil
}

type entryMove struct {
	entryType domain.EntryType
	change    *domain.BalanceChange
}

func debitOf(c *domain.BalanceChange) entryMove  { return entryMove{domain.EntryTypeDebit, c} }
func creditOf(c *domain.BalanceChange) entryMove { return entryMove{domain.EntryTypeCredit, c} }

func writeEntries(ctx context.Context, journal Journal, transactionID int64, amount decimal.Decimal, now time.Time, moves ...entryMove) error {
	for _, m := range moves {
		entry := &domain.LedgerEntry{
			ID:            uuid.New(),
			TransactionID: transactionID,
			AccountID:     m.change.AccountID,
			EntryType:     m.entryType,
			Amount:        amount,
			BalanceBefore: m.change.Before,
			BalanceAfter:  m.change.After,
			CreatedAt:     now,
		}
		if err := journal.AppendEntry(ctx, entry); err != nil {
			return fmt.Errorf("writeEntries: %s %d: %w", m.entryType, m.change.AccountID, err)
		}
	}
	return nil
}

func writeEvent(ctx context.Context, journal Journal, transactionID int64, eventType domain.TransactionEventType, actor string, payload map[string]any, now time.Time) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("writeEvent: marshal payload: %w", err)
	}
	event := &domain.TransactionEvent{
		ID:            uuid.New(),
		TransactionID: transactionID,
		EventType:     eventType,
		Actor:         actor,
		Payload:       raw,
		CreatedAt:     now,
	}
	if err := journal.AppendEvent(ctx, event); err != nil {
		return fmt.Errorf("writeEvent: %w", err)
	}
	return nil
}

func actorFor(accountID int64) string {
	if accountID == 0 {
		return domain.ActorSystem
	}
	return fmt.Sprintf("user:%d", accountID)
}
