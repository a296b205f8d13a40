package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/transfer-service/internal/domain"
	"github.com/ledgerline/transfer-service/internal/logging"
	"github.com/ledgerline/transfer-service/internal/service/ledger"
)

const maxDescriptionLength = 255

type ledgerEngine interface {
	Transfer(ctx context.Context, req ledger.TransferRequest) (*domain.Transaction, error)
	Reverse(ctx context.Context, req ledger.ReverseRequest) (*domain.Reversal, error)
	FindAllForUser(ctx context.Context, userID int64, page ledger.Page) ([]domain.Transaction, int, ledger.Page, error)
	FindForParticipant(ctx context.Context, id, userID int64) (*domain.Transaction, error)
}

type TransactionHandler struct {
	engine ledgerEngine
}

func NewTransactionHandler(engine ledgerEngine) *TransactionHandler {
	return &TransactionHandler{engine: engine}
}

type createTransactionRequest struct {
	ReceiverID  int64            `json:"receiver_id"`
	Amount      *decimal.Decimal `json:"amount"`
	Description string           `json:"description"`
}

func (r createTransactionRequest) Validate() []FieldError {
	var errs []FieldError

	if r.ReceiverID <= 0 {
		errs = append(errs, FieldError{Field: "receiver_id", Message: "required"})
	}

	if r.Amount == nil {
		errs = append(errs, FieldError{Field: "amount", Message: "required"})
	} else if !domain.ValidAmount(*r.Amount) {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0 with at most 2 decimal places"})
	}

	if len(r.Description) > maxDescriptionLength {
		errs = append(errs, FieldError{Field: "description", Message: fmt.Sprintf("must be at most %d characters", maxDescriptionLength)})
	}

	return errs
}

type createReversalRequest struct {
	TransactionID int64  `json:"transaction_id"`
	Reason        string `json:"reason"`
}

func (r createReversalRequest) Validate() []FieldError {
	var errs []FieldError
	if r.TransactionID <= 0 {
		errs = append(errs, FieldError{Field: "transaction_id", Message: "required"})
	}
	if strings.TrimSpace(r.Reason) == "" {
		errs = append(errs, FieldError{Field: "reason", Message: "required"})
	}
	return errs
}

func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	txn, err := h.engine.Transfer(r.Context(), ledger.TransferRequest{
		SenderID:       userID,
		ReceiverID:     req.ReceiverID,
		Amount:         *req.Amount,
		Description:    req.Description,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		log.Warn("transfer failed", "error", err, "error_kind", domain.KindOf(err).String())
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/transactions/%d", txn.ID))
	RespondSuccess(w, http.StatusCreated, toTransactionDTO(txn))
}

func (h *TransactionHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req createReversalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	if _, err := h.engine.FindForParticipant(r.Context(), req.TransactionID, userID); err != nil {
		log.Warn("reversal lookup failed", "error", err, "transaction_id", req.TransactionID)
		RespondDomainError(w, err)
		return
	}

	rev, err := h.engine.Reverse(r.Context(), ledger.ReverseRequest{
		TransactionID: req.TransactionID,
		Reason:        req.Reason,
		ActorID:       userID,
	})
	if err != nil {
		log.Warn("reversal failed", "error", err, "error_kind", domain.KindOf(err).String(), "transaction_id", req.TransactionID)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusCreated, toReversalDTO(rev))
}

func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	page, fields := pageFromQuery(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	txns, total, applied, err := h.engine.FindAllForUser(r.Context(), userID, page)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list transactions", "error", err)
		RespondDomainError(w, err)
		return
	}

	items := make([]transactionDTO, len(txns))
	for i := range txns {
		items[i] = toTransactionDTO(&txns[i])
	}

	RespondSuccess(w, http.StatusOK, pageDTO[transactionDTO]{
		Items:  items,
		Total:  total,
		Limit:  applied.Limit,
		Offset: applied.Offset,
	})
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	id, ok := idFromPath(r, "id")
	if !ok {
		RespondAppError(w, ErrTransactionNotFound, nil)
		return
	}

	txn, err := h.engine.FindForParticipant(r.Context(), id, userID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("transaction lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransactionDTO(txn))
}
