package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/telhawk-systems/agent-events/common/httputil"
	"github.com/telhawk-systems/agent-events/common/logging"
)

type contextKey string

const claimsKey contextKey = "claims"

// anonymous is attached to requests when authentication is disabled.
var anonymous = &Claims{UserID: "anonymous", Roles: []string{RoleAgent, RoleConsole}}

// Middleware authenticates bearer tokens and enforces roles.
type Middleware struct {
	tokens  *TokenManager
	enabled bool
	logger  *logging.Logger
}

// NewMiddleware creates a Middleware. When enabled is false every request is
// treated as an anonymous caller holding all roles.
func NewMiddleware(tokens *TokenManager, enabled bool, logger *logging.Logger) *Middleware {
	return &Middleware{tokens: tokens, enabled: enabled, logger: logging.OrDefault(logger)}
}

// RequireAuth rejects requests without a valid bearer token.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), anonymous)))
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			httputil.WriteError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := m.tokens.Validate(token)
		if err != nil {
			m.logger.WarnContext(r.Context(), "rejected token", logging.Error(err))
			httputil.WriteError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	}
}

// RequireRole rejects callers that hold none of roles.
func (m *Middleware) RequireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok || !claims.HasAnyRole(roles...) {
				httputil.WriteError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithClaims attaches claims to ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the claims of the authenticated caller.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

func bearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(authz, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
