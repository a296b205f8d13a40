package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

type accountHolderKey struct{}

type accountHolder struct {
	id  int64
	set bool
}

func withAccountHolder(ctx context.Context, h *accountHolder) context.Context {
	return context.WithValue(ctx, accountHolderKey{}, h)
}

func accountHolderFrom(ctx context.Context) *accountHolder {
	h, _ := ctx.Value(accountHolderKey{}).(*accountHolder)
	return h
}

// Tracing assigns every request an id, reusing the caller's X-Request-ID.
func Tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.New().String()
		}

		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
