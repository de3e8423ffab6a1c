package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	apperrors "auctionworker/pkg/errors"
	"auctionworker/pkg/logger"
)

// Recovery turns a panic in the handler chain into a 500. A panic raised
// with an error value keeps that error as the cause.
func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				cause, ok := rec.(error)
				if !ok {
					cause = fmt.Errorf("panic: %v", rec)
				}
				log.Error("Panic recovered",
					logger.RequestID, RequestID(r.Context()),
					"error", cause,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				_ = apperrors.WriteError(w, apperrors.Internal("Internal server error", cause))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
