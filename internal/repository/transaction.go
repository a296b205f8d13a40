package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerline/transfer-service/internal/domain"
)

const transactionColumns = `id, sender_id, receiver_id, amount, description, type, status,
	idempotency_key, created_at, updated_at`

// detailedSelect joins the identity summary of both parties and the
// reversal, if any.
const detailedSelect = `SELECT t.id, t.sender_id, t.receiver_id, t.amount, t.description,
	t.type, t.status, t.idempotency_key, t.created_at, t.updated_at,
	s.email, rc.email,
	rv.id, rv.reason, rv.status, rv.created_at, rv.updated_at
	FROM transactions t
	JOIN accounts s ON s.id = t.sender_id
	JOIN accounts rc ON rc.id = t.receiver_id
	LEFT JOIN reversals rv ON rv.transaction_id = t.id`

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts t and fills in its id.
func (r *TransactionRepository) Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO transactions (
			sender_id, receiver_id, amount, description, type, status,
			idempotency_key, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		t.SenderID, t.ReceiverID, t.Amount, t.Description, t.Type, t.Status,
		t.IdempotencyKey, t.CreatedAt, t.UpdatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("Create: %w", translateError(err))
	}
	return nil
}

func (r *TransactionRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*domain.Transaction, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrTransactionNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", translateError(err))
	}
	return t, nil
}

// MarkReversed flips a COMPLETED transaction to REVERSED. Any other current
// status is reported as domain.ErrAlreadyReversed.
func (r *TransactionRepository) MarkReversed(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE transactions SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		domain.TransactionStatusReversed, at, id, domain.TransactionStatusCompleted,
	)
	if err != nil {
		return fmt.Errorf("MarkReversed: %w", translateError(err))
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkReversed: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MarkReversed: %w", domain.ErrAlreadyReversed)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx, detailedSelect+` WHERE t.id = $1`, id)
	t, err := scanDetailedTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrTransactionNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", translateError(err))
	}
	return t, nil
}

func (r *TransactionRepository) ListByParticipant(ctx context.Context, accountID int64, limit, offset int) ([]domain.Transaction, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE sender_id = $1 OR receiver_id = $1`, accountID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByParticipant: count: %w", translateError(err))
	}

	rows, err := r.db.QueryContext(ctx,
		detailedSelect+` WHERE t.sender_id = $1 OR t.receiver_id = $1
		ORDER BY t.created_at DESC, t.id DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListByParticipant: %w", translateError(err))
	}
	defer rows.Close()

	txns := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		t, err := scanDetailedTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListByParticipant: scan: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListByParticipant: rows: %w", translateError(err))
	}
	return txns, total, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var t domain.Transaction
	err := s.Scan(
		&t.ID, &t.SenderID, &t.ReceiverID, &t.Amount, &t.Description,
		&t.Type, &t.Status, &t.IdempotencyKey, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanDetailedTransaction(s scanner) (*domain.Transaction, error) {
	var (
		t             domain.Transaction
		senderEmail   string
		receiverEmail string
		revID         sql.NullInt64
		revReason     sql.NullString
		revStatus     sql.NullString
		revCreatedAt  sql.NullTime
		revUpdatedAt  sql.NullTime
	)
	err := s.Scan(
		&t.ID, &t.SenderID, &t.ReceiverID, &t.Amount, &t.Description,
		&t.Type, &t.Status, &t.IdempotencyKey, &t.CreatedAt, &t.UpdatedAt,
		&senderEmail, &receiverEmail,
		&revID, &revReason, &revStatus, &revCreatedAt, &revUpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Sender = &domain.Party{ID: t.SenderID, Email: senderEmail}
	t.Receiver = &domain.Party{ID: t.ReceiverID, Email: receiverEmail}
	if revID.Valid {
		t.Reversal = &domain.Reversal{
			ID:            revID.Int64,
			TransactionID: t.ID,
			Reason:        revReason.String,
			Status:        domain.ReversalStatus(revStatus.String),
			CreatedAt:     revCreatedAt.Time,
			UpdatedAt:     revUpdatedAt.Time,
		}
	}
	return &t, nil
}

type scanner interface {
	Scan(dest ...any) error
}
