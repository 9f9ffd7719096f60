package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/auth"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/handler"
	"github.com/josh-kwaku/grey-ledger/internal/idempotency"
	"github.com/josh-kwaku/grey-ledger/internal/logging"
)

type IdempotencyStore interface {
	Reserve(ctx context.Context, key string, userID *uuid.UUID, requestHash string) (*idempotency.Reservation, error)
	Complete(ctx context.Context, key string, reservationID uuid.UUID, resp idempotency.Response) error
	Release(ctx context.Context, key string, reservationID uuid.UUID) error
}

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "X-Idempotent-Replayed"
	maxIdempotencyKeyLen = 255
)

// Idempotency makes mutating requests at-most-once per Idempotency-Key. The
// first request runs and its response is cached; a retry with the same body
// gets the cached response, a concurrent one gets REQUEST_IN_FLIGHT, and a
// reuse with a different body gets DUPLICATE_REQUEST. Server errors and
// panics release the key so the client can retry.
func Idempotency(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(idempotencyKeyHeader)
			if key == "" || len(key) > maxIdempotencyKeyLen {
				handler.RespondAppError(w, handler.ErrMissingIdempotencyKey, nil)
				return
			}

			actor, ok := auth.ActorFromContext(r.Context())
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

			log := logging.FromContext(r.Context()).With("idempotency_key", key)
			reqHash := computeHash(r.Method, r.URL.Path, body)

			res, err := store.Reserve(r.Context(), key, &actor.ID, reqHash)
			if err != nil {
				switch {
				case errors.Is(err, domain.ErrRequestInFlight):
					handler.RespondAppError(w, handler.ErrRequestInFlight, nil)
				case errors.Is(err, domain.ErrDuplicateRequest):
					handler.RespondAppError(w, handler.ErrDuplicateRequest, nil)
				default:
					log.Error("idempotency reservation failed", "error", err)
					handler.RespondAppError(w, handler.ErrInternalError, nil)
				}
				return
			}

			if !res.IsNew {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(replayedHeader, "true")
				w.WriteHeader(res.Cached.StatusCode)
				if _, err := w.Write(res.Cached.Body); err != nil {
					log.Error("failed to write idempotent replay", "error", err)
				}
				return
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			release := func() {
				if err := store.Release(context.WithoutCancel(r.Context()), key, res.ID); err != nil {
					log.Error("idempotency release failed", "error", err)
				}
			}

			// Work past the deadline is cancelled and rolled back before the
			// key can be taken over by a retry.
			execCtx := r.Context()
			if !res.Deadline.IsZero() {
				var cancel context.CancelFunc
				execCtx, cancel = context.WithDeadline(execCtx, res.Deadline)
				defer cancel()
			}

			finished := false
			defer func() {
				// A panic leaves no cacheable outcome.
				if !finished {
					release()
				}
			}()

			next.ServeHTTP(rec, r.WithContext(execCtx))
			finished = true

			if rec.statusCode >= http.StatusInternalServerError {
				release()
				return
			}

			// The outcome may already be committed, so the key is never
			// released from here on: retries see REQUEST_IN_FLIGHT rather
			// than running the operation again.
			resp := idempotency.Response{StatusCode: rec.statusCode, Body: rec.body.Bytes()}
			if err := completeWithRetry(context.WithoutCancel(r.Context()), store, key, res.ID, resp); err != nil {
				log.Error("idempotency cache store failed, key stays in flight", "error", err)
			}
		})
	}
}

const (
	completeAttempts = 3
	completeBackoff  = 50 * time.Millisecond
)

func completeWithRetry(ctx context.Context, store IdempotencyStore, key string, id uuid.UUID, resp idempotency.Response) error {
	var err error
	for attempt := 1; attempt <= completeAttempts; attempt++ {
		err = store.Complete(ctx, key, id, resp)
		if err == nil || errors.Is(err, domain.ErrInvalidState) {
			return err
		}
		if attempt < completeAttempts {
			time.Sleep(time.Duration(attempt) * completeBackoff)
		}
	}
	return err
}

func computeHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	return fmt.Sprintf("%x", h.Sum(nil))
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
