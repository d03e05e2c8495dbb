package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Gazel/SecureKasir/internal/platform/httpx"
	"github.com/Gazel/SecureKasir/internal/shared"
	"github.com/Gazel/SecureKasir/internal/users"
)

// AccountLookup reloads the account behind a token. Service satisfies it.
type AccountLookup interface {
	Current(ctx context.Context, p shared.Principal) (users.User, error)
}

// Middleware wires bearer-token authentication and role checks for HTTP
// handlers.
type Middleware struct {
	Tokens *TokenManager
	// Accounts, when set, is consulted on every request so disabled or
	// demoted users lose access before their token expires.
	Accounts AccountLookup
	Logger   *slog.Logger
}

// Authenticate requires a valid bearer token and stores its principal in
// the request context.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		claims, err := m.Tokens.Parse(raw)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Debug("reject token", slog.String("path", r.URL.Path), slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		principal := claims.Principal()
		if m.Accounts != nil {
			user, err := m.Accounts.Current(r.Context(), principal)
			if err != nil {
				if !errors.Is(err, shared.ErrUnauthenticated) && m.Logger != nil {
					m.Logger.Error("load account", slog.String("user", principal.UserID), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			principal = shared.Principal{UserID: user.ID, Username: user.Username, Role: user.Role}
		}
		ctx := shared.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole ensures the authenticated principal holds one of roles.
func (m Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			if _, ok := allowed[p.Role]; !ok {
				if m.Logger != nil {
					m.Logger.Warn("role denied", slog.String("user", p.Username), slog.String("role", p.Role), slog.String("path", r.URL.Path))
				}
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
