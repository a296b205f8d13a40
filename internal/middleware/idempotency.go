package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/ledgerline/transfer-service/internal/auth"
	"github.com/ledgerline/transfer-service/internal/handler"
	"github.com/ledgerline/transfer-service/internal/logging"
	"github.com/ledgerline/transfer-service/internal/repository"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "X-Idempotent-Replayed"

	idempotencyTTL  = 24 * time.Hour
	processingLease = 30 * time.Second
)

type idempotencyStore interface {
	Get(ctx context.Context, key string, accountID int64) (*repository.IdempotencyCacheEntry, error)
	Set(ctx context.Context, entry *repository.IdempotencyCacheEntry) error
}

// processingLocker is implemented by stores that can hold a short lease on a
// key while the first request with it is still running.
type processingLocker interface {
	Acquire(ctx context.Context, key string, accountID int64, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string, accountID int64) error
}

// Idempotency replays the stored response for a repeated (key, account)
// pair. Requests reusing a key with a different body are rejected. Only
// non-5xx responses are stored so a transient failure can be retried.
func Idempotency(store idempotencyStore) func(http.Handler) http.Handler {
	locker, _ := store.(processingLocker)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			log := logging.FromContext(r.Context())

			key := r.Header.Get(IdempotencyHeader)
			if key == "" {
				handler.RespondAppError(w, handler.ErrMissingIdempotencyKey, nil)
				return
			}

			accountID, ok := auth.AccountIDFromContext(r.Context())
			if !ok {
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			reqHash := computeHash(r.Method, r.URL.Path, body)

			if replay(w, r, store, key, accountID, reqHash) {
				return
			}

			if locker != nil {
				acquired, err := locker.Acquire(r.Context(), key, accountID, processingLease)
				if err != nil {
					log.Error("idempotency lock failed", "error", err, "idempotency_key", key)
					handler.RespondAppError(w, handler.ErrServiceUnavailable, nil)
					return
				}
				if !acquired {
					handler.RespondAppError(w, handler.ErrIdempotencyInProgress, nil)
					return
				}
				defer func() {
					if err := locker.Release(context.WithoutCancel(r.Context()), key, accountID); err != nil {
						log.Warn("idempotency lock release failed", "error", err, "idempotency_key", key)
					}
				}()

				// The first request may have finished between the lookup and the lock.
				if replay(w, r, store, key, accountID, reqHash) {
					return
				}
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= http.StatusInternalServerError {
				return
			}

			now := time.Now().UTC()
			entry := &repository.IdempotencyCacheEntry{
				Key:          key,
				AccountID:    accountID,
				RequestHash:  reqHash,
				StatusCode:   rec.statusCode,
				ResponseBody: rec.body.Bytes(),
				CreatedAt:    now,
				ExpiresAt:    now.Add(idempotencyTTL),
			}
			if err := store.Set(context.WithoutCancel(r.Context()), entry); err != nil {
				log.Error("idempotency cache store failed", "error", err, "idempotency_key", key)
			}
		})
	}
}

// replay writes a cached response and reports whether the request was handled.
func replay(w http.ResponseWriter, r *http.Request, store idempotencyStore, key string, accountID int64, reqHash string) bool {
	cached, err := store.Get(r.Context(), key, accountID)
	if err != nil {
		logging.FromContext(r.Context()).Error("idempotency cache lookup failed", "error", err, "idempotency_key", key)
		handler.RespondAppError(w, handler.ErrServiceUnavailable, nil)
		return true
	}
	if cached == nil {
		return false
	}

	if cached.RequestHash != reqHash {
		handler.RespondAppError(w, handler.ErrIdempotencyConflict, nil)
		return true
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(cached.StatusCode)
	if _, err := w.Write(cached.ResponseBody); err != nil {
		logging.FromContext(r.Context()).Error("failed to write idempotent replay", "error", err, "idempotency_key", key)
	}
	return true
}

func computeHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
