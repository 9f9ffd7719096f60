package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/josh-kwaku/grey-ledger/internal/handler"
	"github.com/josh-kwaku/grey-ledger/internal/logging"
)

// Recovery turns a panic into INTERNAL_ERROR. A panic inside a money
// movement has already rolled back its database transaction through the
// deferred Rollback, so nothing partial is left behind.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				log := logging.FromContext(r.Context())
				log.Error("panic recovered",
					"error", err,
					"request_id", TraceIDFromContext(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				handler.RespondAppError(w, handler.ErrInternalError, nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
