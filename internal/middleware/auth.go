package middleware

import (
	"net/http"
	"strings"

	"github.com/ledgerline/transfer-service/internal/auth"
	"github.com/ledgerline/transfer-service/internal/handler"
	"github.com/ledgerline/transfer-service/internal/logging"
)

type tokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

func Auth(tokens tokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || token == "" {
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			claims, err := tokens.Validate(token)
			if err != nil {
				logging.FromContext(r.Context()).Debug("token rejected", "error", err)
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			if holder := accountHolderFrom(r.Context()); holder != nil {
				holder.id, holder.set = claims.AccountID, true
			}

			ctx := auth.ContextWithAccountID(r.Context(), claims.AccountID)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With("user_id", claims.AccountID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
