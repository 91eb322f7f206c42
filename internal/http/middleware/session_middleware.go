package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/licensebot/licensebot/internal/http/response"
	"github.com/licensebot/licensebot/internal/security"
	"github.com/licensebot/licensebot/internal/service"
)

type contextKey string

const (
	SessionContextKey contextKey = "session"
)

type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*service.Session, error)
}

// RequireSession admits requests carrying a cookie for a live authenticated
// session and puts that session in the request context.
func RequireSession(sessions SessionAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := security.GetCookie(r, security.SessionCookieName)
			session, err := sessions.Authenticate(r.Context(), raw)
			if err != nil {
				if errors.Is(err, service.ErrUnauthenticated) {
					response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
					return
				}
				slog.ErrorContext(r.Context(), "session lookup failed", "error", err)
				response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "Failed to verify session")
				return
			}
			ctx := context.WithValue(r.Context(), SessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func SessionFromContext(ctx context.Context) (*service.Session, bool) {
	s, ok := ctx.Value(SessionContextKey).(*service.Session)
	return s, ok
}
