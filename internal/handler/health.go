package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db     pinger
	checks map[string]func(ctx context.Context) error
}

func NewHealthHandler(db pinger) *HealthHandler {
	return &HealthHandler{db: db, checks: make(map[string]func(ctx context.Context) error)}
}

// WithCheck adds a named dependency to the readiness probe.
func (h *HealthHandler) WithCheck(name string, check func(ctx context.Context) error) *HealthHandler {
	h.checks[name] = check
	return h
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"database": "ok"}
	httpStatus := http.StatusOK

	if err := h.db.PingContext(ctx); err != nil {
		slog.Warn("readiness check failed: database unreachable", "error", err)
		checks["database"] = "down"
		httpStatus = http.StatusServiceUnavailable
	}

	for name, check := range h.checks {
		checks[name] = "ok"
		if err := check(ctx); err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			checks[name] = "down"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	overallStatus := "ok"
	if httpStatus != http.StatusOK {
		overallStatus = "down"
	}

	RespondJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}
