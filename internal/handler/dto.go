package handler

import (
	"time"

	"github.com/ledgerline/transfer-service/internal/domain"
)

type partyDTO struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

type reversalDTO struct {
	ID            int64     `json:"id"`
	TransactionID int64     `json:"transaction_id"`
	Reason        string    `json:"reason"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type transactionDTO struct {
	ID          int64        `json:"id"`
	SenderID    int64        `json:"sender_id"`
	ReceiverID  int64        `json:"receiver_id"`
	Amount      string       `json:"amount"`
	Description *string      `json:"description"`
	Type        string       `json:"type"`
	Status      string       `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Sender      *partyDTO    `json:"sender,omitempty"`
	Receiver    *partyDTO    `json:"receiver,omitempty"`
	Reversal    *reversalDTO `json:"reversal"`
}

type accountDTO struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Balance   string    `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

type entryDTO struct {
	ID            string    `json:"id"`
	TransactionID int64     `json:"transaction_id"`
	EntryType     string    `json:"entry_type"`
	Amount        string    `json:"amount"`
	BalanceBefore string    `json:"balance_before"`
	BalanceAfter  string    `json:"balance_after"`
	CreatedAt     time.Time `json:"created_at"`
}

type pageDTO[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func toPartyDTO(p *domain.Party) *partyDTO {
	if p == nil {
		return nil
	}
	return &partyDTO{ID: p.ID, Email: p.Email}
}

func toReversalDTO(r *domain.Reversal) *reversalDTO {
	if r == nil {
		return nil
	}
	return &reversalDTO{
		ID:            r.ID,
		TransactionID: r.TransactionID,
		Reason:        r.Reason,
		Status:        string(r.Status),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func toTransactionDTO(t *domain.Transaction) transactionDTO {
	return transactionDTO{
		ID:          t.ID,
		SenderID:    t.SenderID,
		ReceiverID:  t.ReceiverID,
		Amount:      t.Amount.StringFixed(domain.AmountScale),
		Description: t.Description,
		Type:        string(t.Type),
		Status:      string(t.Status),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		Sender:      toPartyDTO(t.Sender),
		Receiver:    toPartyDTO(t.Receiver),
		Reversal:    toReversalDTO(t.Reversal),
	}
}

func toAccountDTO(a *domain.Account) accountDTO {
	return accountDTO{
		ID:        a.ID,
		Email:     a.Email,
		Balance:   a.Balance.StringFixed(domain.AmountScale),
		CreatedAt: a.CreatedAt,
	}
}

func toEntryDTO(e *domain.LedgerEntry) entryDTO {
	return entryDTO{
		ID:            e.ID.String(),
		TransactionID: e.TransactionID,
		EntryType:     string(e.EntryType),
		Amount:        e.Amount.StringFixed(domain.AmountScale),
		BalanceBefore: e.BalanceBefore.StringFixed(domain.AmountScale),
		BalanceAfter:  e.BalanceAfter.StringFixed(domain.AmountScale),
		CreatedAt:     e.CreatedAt,
	}
}
