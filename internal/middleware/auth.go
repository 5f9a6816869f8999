package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ideahub/backend/internal/models"
)

type contextKey string

const ctxPrincipalKey contextKey = "principal"

// TokenValidator resolves a bearer token. Implemented by auth.Service.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (models.Principal, error)
}

// Authenticate resolves the Bearer token into a Principal and places it on
// the request context. Requests without a valid token get 401.
func Authenticate(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				unauthorized(w, "missing or malformed Authorization header")
				return
			}
			p, err := tokens.ValidateToken(r.Context(), raw)
			if err != nil {
				unauthorized(w, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// PrincipalFromCtx returns the authenticated caller.
func PrincipalFromCtx(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(ctxPrincipalKey).(models.Principal)
	return p, ok
}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, ctxPrincipalKey, p)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Unauthorized","message":"` + msg + `"}`))
}
