package main

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ledgerline/transfer-service/internal/handler"
	"github.com/ledgerline/transfer-service/internal/middleware"
)

const serviceName = "transfer-service"

type handlers struct {
	auth         *handler.AuthHandler
	accounts     *handler.AccountHandler
	transactions *handler.TransactionHandler
	health       *handler.HealthHandler
}

// newRouter registers the routes. authn guards every /api route except
// register and login; idempotent additionally wraps the money-moving writes.
func newRouter(h handlers, authn, idempotent func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health.Liveness)
	mux.HandleFunc("GET /health/ready", h.health.Readiness)

	mux.HandleFunc("POST /api/auth/register", h.auth.Register)
	mux.HandleFunc("POST /api/auth/login", h.auth.Login)

	protected := func(f http.HandlerFunc) http.Handler { return authn(f) }
	write := func(f http.HandlerFunc) http.Handler { return authn(idempotent(f)) }

	mux.Handle("GET /api/accounts/me", protected(h.accounts.Me))
	mux.Handle("GET /api/accounts/me/entries", protected(h.accounts.Entries))

	mux.Handle("POST /api/transactions", write(h.transactions.Create))
	mux.Handle("POST /api/transactions/reversal", write(h.transactions.Reverse))
	mux.Handle("GET /api/transactions", protected(h.transactions.List))
	mux.Handle("GET /api/transactions/{id}", protected(h.transactions.Get))

	var root http.Handler = mux
	root = middleware.Recovery(root)
	root = middleware.Logging(root)
	root = middleware.Tracing(root)
	return otelhttp.NewHandler(root, serviceName,
		otelhttp.WithFilter(func(r *http.Request) bool {
			return !strings.HasPrefix(r.URL.Path, "/health")
		}),
	)
}
