package testutil

import (
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/ledgerline/transfer-service/internal/domain"
)

const TestPassword = "password123"

func SeedAccount(t *testing.T, db *sql.DB, email, balance string) *domain.Account {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	a := &domain.Account{
		Email:        email,
		PasswordHash: string(hash),
		Balance:      decimal.RequireFromString(balance),
	}
	err = db.QueryRow(
		`INSERT INTO accounts (email, password_hash, balance)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		a.Email, a.PasswordHash, a.Balance,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		t.Fatalf("seed account %s: %v", email, err)
	}
	return a
}

func GetAccountBalance(t *testing.T, db *sql.DB, accountID int64) decimal.Decimal {
	t.Helper()

	var balance decimal.Decimal
	err := db.QueryRow(`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		t.Fatalf("get account balance %d: %v", accountID, err)
	}
	return balance
}

func CountLedgerEntries(t *testing.T, db *sql.DB, transactionID int64) int {
	t.Helper()

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM ledger_entries WHERE transaction_id = $1`, transactionID).Scan(&count)
	if err != nil {
		t.Fatalf("count ledger entries for transaction %d: %v", transactionID, err)
	}
	return count
}

func CountTransactions(t *testing.T, db *sql.DB) int {
	t.Helper()

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM transactions`).Scan(&count); err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	return count
}

func TransactionStatus(t *testing.T, db *sql.DB, transactionID int64) domain.TransactionStatus {
	t.Helper()

	var status domain.TransactionStatus
	err := db.QueryRow(`SELECT status FROM transactions WHERE id = $1`, transactionID).Scan(&status)
	if err != nil {
		t.Fatalf("get transaction status %d: %v", transactionID, err)
	}
	return status
}
