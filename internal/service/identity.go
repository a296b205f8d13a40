package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/ledgerline/transfer-service/internal/domain"
	"github.com/ledgerline/transfer-service/internal/logging"
)

const minPasswordLength = 8

type accountWriter interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
}

// IdentityService registers account holders and checks their credentials.
type IdentityService struct {
	accounts   accountWriter
	bcryptCost int
}

func NewIdentityService(accounts accountWriter, bcryptCost int) *IdentityService {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &IdentityService{accounts: accounts, bcryptCost: bcryptCost}
}

type RegisterRequest struct {
	Email          string
	Password       string
	InitialBalance decimal.Decimal
}

func (s *IdentityService) Register(ctx context.Context, req RegisterRequest) (*domain.Account, error) {
	log := logging.FromContext(ctx)

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, fmt.Errorf("Register: %w", err)
	}
	if len(req.Password) < minPasswordLength {
		return nil, fmt.Errorf("Register: password shorter than %d characters: %w", minPasswordLength, domain.ErrInvalidRequest)
	}
	if req.InitialBalance.IsNegative() || !req.InitialBalance.Equal(req.InitialBalance.Truncate(domain.AmountScale)) {
		return nil, fmt.Errorf("Register: initial balance: %w", domain.ErrInvalidAmount)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("Register: hash password: %w", err)
	}

	account := &domain.Account{
		Email:        email,
		PasswordHash: string(hash),
		Balance:      req.InitialBalance,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("Register: %w", err)
	}

	log.Info("account registered", "account_id", account.ID)
	return account, nil
}

// Authenticate returns the account whose credentials match. Unknown emails
// and wrong passwords fail the same way.
func (s *IdentityService) Authenticate(ctx context.Context, email, password string) (*domain.Account, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, fmt.Errorf("Authenticate: %w", domain.ErrInvalidCredentials)
	}

	account, err := s.accounts.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) || errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("Authenticate: %w", domain.ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("Authenticate: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("Authenticate: %w", domain.ErrInvalidCredentials)
	}
	return account, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("invalid email: %w", domain.ErrInvalidRequest)
	}
	return email, nil
}
