package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/timekeeper-hq/authcore/internal/http/response"
	"github.com/timekeeper-hq/authcore/internal/security"
	"github.com/timekeeper-hq/authcore/internal/service"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

// AuthMiddleware authenticates bearer tokens. Validation goes through the
// session service, so a structurally valid JWT whose session was revoked is
// still rejected.
func AuthMiddleware(sessions *service.SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token")
				return
			}
			claims, err := sessions.Authenticate(r.Context(), raw)
			if err != nil {
				// A store outage is not the caller's fault.
				if errors.Is(err, service.ErrInfrastructureUnavailable) {
					response.FromError(w, r, err)
					return
				}
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token")
				return
			}
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*security.AccessClaims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.AccessClaims)
	return c, ok
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
