package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/transfer-service/internal/domain"
	"github.com/ledgerline/transfer-service/internal/logging"
	"github.com/ledgerline/transfer-service/internal/service"
)

type identityService interface {
	Register(ctx context.Context, req service.RegisterRequest) (*domain.Account, error)
	Authenticate(ctx context.Context, email, password string) (*domain.Account, error)
}

type tokenIssuer interface {
	Generate(accountID int64, email string) (string, error)
	Expiry() time.Duration
}

type AuthHandler struct {
	identity identityService
	tokens   tokenIssuer
}

func NewAuthHandler(identity identityService, tokens tokenIssuer) *AuthHandler {
	return &AuthHandler{identity: identity, tokens: tokens}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Email == "" {
		errs = append(errs, FieldError{Field: "email", Message: "required"})
	}
	if r.Password == "" {
		errs = append(errs, FieldError{Field: "password", Message: "required"})
	}
	return errs
}

type registerRequest struct {
	Email          string           `json:"email"`
	Password       string           `json:"password"`
	InitialBalance *decimal.Decimal `json:"initial_balance"`
}

func (r registerRequest) Validate() []FieldError {
	errs := loginRequest{Email: r.Email, Password: r.Password}.Validate()
	if r.InitialBalance != nil && r.InitialBalance.IsNegative() {
		errs = append(errs, FieldError{Field: "initial_balance", Message: "must not be negative"})
	}
	return errs
}

type tokenResponse struct {
	Token     string     `json:"token"`
	ExpiresIn int64      `json:"expires_in"`
	Account   accountDTO `json:"account"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	balance := decimal.Zero
	if req.InitialBalance != nil {
		balance = *req.InitialBalance
	}

	account, err := h.identity.Register(r.Context(), service.RegisterRequest{
		Email:          req.Email,
		Password:       req.Password,
		InitialBalance: balance,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("registration failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	h.respondWithToken(w, r, http.StatusCreated, account)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	account, err := h.identity.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	h.respondWithToken(w, r, http.StatusOK, account)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, account *domain.Account) {
	token, err := h.tokens.Generate(account.ID, account.Email)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to sign token", "error", err)
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	RespondSuccess(w, status, tokenResponse{
		Token:     token,
		ExpiresIn: int64(h.tokens.Expiry().Seconds()),
		Account:   toAccountDTO(account),
	})
}
