package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/http/response"
)

type contextKey string

const AccessTokenContextKey contextKey = "access_token"

// RequireBearer rejects requests without an Authorization bearer token and
// stores the raw token for the handler. Signature and type checks happen in
// the service so that the same rules apply to every caller.
func RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := BearerToken(r)
		if raw == "" {
			response.Error(w, r, http.StatusUnauthorized, "INVALID_TOKEN", "missing access token", nil)
			return
		}
		ctx := context.WithValue(r.Context(), AccessTokenContextKey, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func AccessTokenFromContext(ctx context.Context) (string, bool) {
	raw, ok := ctx.Value(AccessTokenContextKey).(string)
	return raw, ok && raw != ""
}
