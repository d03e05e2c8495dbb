package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Gazel/SecureKasir/internal/auth"
	"github.com/Gazel/SecureKasir/internal/shared"
	"github.com/Gazel/SecureKasir/internal/storage/memory"
	"github.com/Gazel/SecureKasir/internal/users"
	_ "github.com/Gazel/SecureKasir/testing"
)

type fixture struct {
	router  http.Handler
	users   *users.Service
	tokens  *auth.TokenManager
	cashier users.User
	admin   users.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	userService := users.NewService(store, nil).WithHashCost(bcrypt.MinCost)
	if _, err := userService.EnsureSeed(context.Background(), users.SeedConfig{
		AdminUsername:   "admin",
		AdminPassword:   "admin123",
		CashierUsername: "kasir",
		CashierPassword: "kasir123",
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cashier, err := userService.FindByUsername(context.Background(), "kasir")
	if err != nil {
		t.Fatalf("find cashier: %v", err)
	}
	admin, err := userService.FindByUsername(context.Background(), "admin")
	if err != nil {
		t.Fatalf("find admin: %v", err)
	}
	tokens, err := auth.NewTokenManager("auth-handler-secret-1", time.Hour)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	service := auth.NewService(userService, tokens)
	guard := auth.Middleware{Tokens: tokens, Accounts: service}
	handler := auth.NewHandler(nil, service, guard)

	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	r.Group(func(r chi.Router) {
		r.Use(guard.Authenticate)
		r.With(guard.RequireRole(shared.RoleAdmin)).Get("/admin-only", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})
	return fixture{router: r, users: userService, tokens: tokens, cashier: cashier, admin: admin}
}

func (f fixture) serve(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func TestLoginIssuesToken(t *testing.T) {
	f := newFixture(t)
	res := f.serve(http.MethodPost, "/auth/login", "", `{"username":"kasir","password":"kasir123"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var session auth.Session
	if err := json.NewDecoder(res.Body).Decode(&session); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if session.Token == "" || session.User.Username != "kasir" || session.User.Role != shared.RoleCashier {
		t.Fatalf("unexpected session %+v", session)
	}
	if strings.Contains(res.Body.String(), "passwordHash") || strings.Contains(res.Body.String(), "$2a$") {
		t.Fatalf("password hash leaked: %s", res.Body.String())
	}

	me := f.serve(http.MethodGet, "/auth/me", session.Token, "")
	if me.Code != http.StatusOK {
		t.Fatalf("expected 200 from /me, got %d", me.Code)
	}
	if !strings.Contains(me.Body.String(), `"username":"kasir"`) {
		t.Fatalf("unexpected /me body %s", me.Body.String())
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	cases := map[string]string{
		"wrong password": `{"username":"kasir","password":"nope"}`,
		"unknown user":   `{"username":"ghost","password":"kasir123"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			res := f.serve(http.MethodPost, "/auth/login", "", body)
			if res.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", res.Code)
			}
			if !strings.Contains(res.Body.String(), "Username atau password salah") {
				t.Fatalf("unexpected body %s", res.Body.String())
			}
		})
	}
}

func TestLoginValidatesPayload(t *testing.T) {
	f := newFixture(t)
	res := f.serve(http.MethodPost, "/auth/login", "", `{"username":""}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestDisabledUserLosesAccess(t *testing.T) {
	f := newFixture(t)
	token, _, err := f.tokens.Issue(shared.Principal{UserID: f.cashier.ID, Username: "kasir", Role: shared.RoleCashier})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := f.users.Disable(context.Background(), f.cashier.ID); err != nil {
		t.Fatalf("disable: %v", err)
	}

	if res := f.serve(http.MethodGet, "/auth/me", token, ""); res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for disabled user, got %d", res.Code)
	}
	if res := f.serve(http.MethodPost, "/auth/login", "", `{"username":"kasir","password":"kasir123"}`); res.Code != http.StatusUnauthorized {
		t.Fatalf("expected login of inactive user to fail, got %d", res.Code)
	}
}

func TestMiddlewareRejectsMissingAndForgedTokens(t *testing.T) {
	f := newFixture(t)
	if res := f.serve(http.MethodGet, "/admin-only", "", ""); res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.Code)
	}

	other, err := auth.NewTokenManager("a-completely-different-secret", time.Hour)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	forged, _, err := other.Issue(shared.Principal{UserID: "x", Username: "x", Role: shared.RoleAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if res := f.serve(http.MethodGet, "/admin-only", forged, ""); res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for forged token, got %d", res.Code)
	}
}

func TestRequireRole(t *testing.T) {
	f := newFixture(t)
	cashier, _, err := f.tokens.Issue(shared.Principal{UserID: f.cashier.ID, Username: "kasir", Role: shared.RoleCashier})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if res := f.serve(http.MethodGet, "/admin-only", cashier, ""); res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", res.Code)
	}
	admin, _, err := f.tokens.Issue(shared.Principal{UserID: f.admin.ID, Username: "admin", Role: shared.RoleAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if res := f.serve(http.MethodGet, "/admin-only", admin, ""); res.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for admin, got %d", res.Code)
	}
}
