package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hongminglow/aria-characters/internal/auth"
	"github.com/hongminglow/aria-characters/internal/http/apierr"
)

type contextKey string

const identityContextKey contextKey = "identity"

// TokenVerifier resolves a bearer token to the caller's identity.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// Auth rejects requests without a valid token with 401 and attaches the
// caller's identity to the context otherwise. The cookie named cookieName
// is checked first, then the Authorization: Bearer header.
func Auth(tokens TokenVerifier, cookieName string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r, cookieName)
			if token == "" {
				apierr.Write(r.Context(), w, logger, apierr.Unauthenticated())
				return
			}

			identity, err := tokens.Verify(token)
			if err != nil {
				logger.DebugContext(r.Context(), "token rejected", "error", err)
				apierr.Write(r.Context(), w, logger, apierr.Unauthenticated())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// ExtractToken returns the raw token from the cookie or the bearer header.
func ExtractToken(r *http.Request, cookieName string) string {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// WithIdentity stores identity in ctx.
func WithIdentity(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFrom returns the authenticated identity from ctx.
func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(auth.Identity)
	return identity, ok && identity.UserID != ""
}
