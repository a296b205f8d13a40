package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ledgerline/transfer-service/internal/domain"
)

type TransactionEventRepository struct {
	db *sql.DB
}

func NewTransactionEventRepository(db *sql.DB) *TransactionEventRepository {
	return &TransactionEventRepository{db: db}
}

func (r *TransactionEventRepository) Create(ctx context.Context, tx *sql.Tx, event *domain.TransactionEvent) error {
	var payload any
	if len(event.Payload) > 0 {
		payload = string(event.Payload)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transaction_events (id, transaction_id, event_type, actor, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.TransactionID, event.EventType, event.Actor,
		payload, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", translateError(err))
	}
	return nil
}

func (r *TransactionEventRepository) GetByTransactionID(ctx context.Context, transactionID int64) ([]domain.TransactionEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, transaction_id, event_type, actor, payload, created_at
		FROM transaction_events
		WHERE transaction_id = $1 ORDER BY created_at`, transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByTransactionID: %w", translateError(err))
	}
	defer rows.Close()

	var events []domain.TransactionEvent
	for rows.Next() {
		var (
			e       domain.TransactionEvent
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.EventType, &e.Actor, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("GetByTransactionID: scan: %w", err)
		}
		e.Payload = payload
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByTransactionID: rows: %w", err)
	}
	return events, nil
}
