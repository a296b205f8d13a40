package handler

import (
	"net/http"
	"strconv"

	"github.com/ledgerline/transfer-service/internal/auth"
	"github.com/ledgerline/transfer-service/internal/service/ledger"
)

func callerID(r *http.Request) (int64, *AppError) {
	id, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		return 0, ErrMissingToken
	}
	return id, nil
}

func idFromPath(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// pageFromQuery reads limit and offset. Missing values are left zero so the
// service applies its defaults.
func pageFromQuery(r *http.Request) (ledger.Page, []FieldError) {
	var (
		page ledger.Page
		errs []FieldError
	)
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errs = append(errs, FieldError{Field: "limit", Message: "must be a positive integer"})
		}
		page.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, FieldError{Field: "offset", Message: "must be a non-negative integer"})
		}
		page.Offset = n
	}
	return page, errs
}
