package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeTransfer TransactionType = "TRANSFER"
)

type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusReversed  TransactionStatus = "REVERSED"
)

type Transaction struct {
	ID             int64
	SenderID       int64
	ReceiverID     int64
	Amount         decimal.Decimal
	Description    *string
	Type           TransactionType
	Status         TransactionStatus
	IdempotencyKey *string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Populated on the read path only.
	Sender   *Party
	Receiver *Party
	Reversal *Reversal
}

// Involves reports whether the account is the sender or the receiver.
func (t *Transaction) Involves(accountID int64) bool {
	return t.SenderID == accountID || t.ReceiverID == accountID
}

type ReversalStatus string

const (
	ReversalStatusApproved ReversalStatus = "APPROVED"
)

type Reversal struct {
	ID            int64
	TransactionID int64
	Reason        string
	Status        ReversalStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
