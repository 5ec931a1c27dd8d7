package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/authguard"
	"github.com/MrEthical07/authguard/jwt"
	"github.com/MrEthical07/authguard/user"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by [Guard].
func ClaimsFromContext(ctx context.Context) (*jwt.Claims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*jwt.Claims)
	return c, ok && c != nil
}

// Guard rejects requests without a valid access token. The client IP and
// User-Agent are attached to the request context so security events emitted
// further down carry them.
func Guard(m *authguard.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := authguard.WithClientIP(r.Context(), clientIP(r))
			ctx = authguard.WithUserAgent(ctx, r.UserAgent())

			claims, err := m.VerifyToken(ctx, token)
			if err != nil {
				writeError(w, err)
				return
			}

			ctx = context.WithValue(ctx, claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole wraps Guard and additionally demands a role at or above atLeast.
func RequireRole(m *authguard.Manager, atLeast user.Role) func(http.Handler) http.Handler {
	return chain(Guard(m), func(c *jwt.Claims) bool {
		role, err := user.ParseRole(c.Role)
		return err == nil && role.AtLeast(atLeast)
	})
}

// RequireMFA wraps Guard and additionally demands an MFA-verified token.
func RequireMFA(m *authguard.Manager) func(http.Handler) http.Handler {
	return chain(Guard(m), func(c *jwt.Claims) bool { return c.MFAVerified })
}

func chain(guard func(http.Handler) http.Handler, allow func(*jwt.Claims) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := ClaimsFromContext(r.Context())
			if !ok || !allow(c) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch authguard.KindOf(err) {
	case authguard.KindUnavailable:
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	case authguard.KindInternal:
		http.Error(w, "internal error", http.StatusInternalServerError)
	default:
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(value[len(bearer):])
	return token, token != ""
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
