package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type TransactionEventType string

const (
	TransactionEventTypeCompleted TransactionEventType = "completed"
	TransactionEventTypeReversed  TransactionEventType = "reversed"
)

type TransactionEvent struct {
	ID            uuid.UUID
	TransactionID int64
	EventType     TransactionEventType
	Actor         string
	Payload       json.RawMessage
	CreatedAt     time.Time
}

const ActorSystem = "system"
