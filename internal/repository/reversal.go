package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ledgerline/transfer-service/internal/domain"
)

type ReversalRepository struct {
	db *sql.DB
}

func NewReversalRepository(db *sql.DB) *ReversalRepository {
	return &ReversalRepository{db: db}
}

// Create inserts rev and fills in its id. A second reversal for the same
// transaction fails with domain.ErrAlreadyReversed.
func (r *ReversalRepository) Create(ctx context.Context, tx *sql.Tx, rev *domain.Reversal) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO reversals (transaction_id, reason, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		rev.TransactionID, rev.Reason, rev.Status, rev.CreatedAt, rev.UpdatedAt,
	).Scan(&rev.ID)
	if err != nil {
		return fmt.Errorf("Create: %w", translateError(err))
	}
	return nil
}
