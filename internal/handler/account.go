package handler

import (
	"context"
	"net/http"

	"github.com/ledgerline/transfer-service/internal/domain"
	"github.com/ledgerline/transfer-service/internal/logging"
	"github.com/ledgerline/transfer-service/internal/service/ledger"
)

type accountService interface {
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	Statement(ctx context.Context, id int64, page ledger.Page) ([]domain.LedgerEntry, int, ledger.Page, error)
}

type AccountHandler struct {
	accounts accountService
}

func NewAccountHandler(accounts accountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, appErr := callerID(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	account, err := h.accounts.GetAccount(r.Context(), userID)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to get account", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(account))
}

func (h *AccountHandler) Entries(w http.ResponseWriter, r *http.Request) {
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

	entries, total, applied, err := h.accounts.Statement(r.Context(), userID, page)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list ledger entries", "error", err)
		RespondDomainError(w, err)
		return
	}

	items := make([]entryDTO, len(entries))
	for i := range entries {
		items[i] = toEntryDTO(&entries[i])
	}

	RespondSuccess(w, http.StatusOK, pageDTO[entryDTO]{
		Items:  items,
		Total:  total,
		Limit:  applied.Limit,
		Offset: applied.Offset,
	})
}
