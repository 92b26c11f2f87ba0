package middleware

import (
	"net/http"

	"go.uber.org/zap"
)

// Recover turns a handler panic into a call to onPanic. http.ErrAbortHandler
// is re-raised so the server can abort the connection.
func Recover(logger *zap.Logger, onPanic http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
					panic(rec)
				}
				logger.Error("handler panicked",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path),
					zap.String("request_id", RequestIDFromContext(r.Context())),
					zap.Stack("stack"),
				)
				onPanic(w, r)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
