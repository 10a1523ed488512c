package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/hongminglow/aria-characters/internal/http/apierr"
	"github.com/hongminglow/aria-characters/internal/http/respond"
)

// Recovery turns a handler panic into a logged 500 envelope.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.ErrorContext(r.Context(), "panic recovered",
						slog.Any("error", err),
						slog.String("stack", string(debug.Stack())),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
					)
					respond.Error(w, http.StatusInternalServerError, apierr.CodeInternalError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
