package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Gazel/SecureKasir/internal/platform/httpx"
	"github.com/Gazel/SecureKasir/internal/shared"
)

// Handler exposes login endpoints.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	middleware Middleware
}

// NewHandler creates a new auth handler.
func NewHandler(logger *slog.Logger, service *Service, middleware Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, middleware: middleware}
}

// MountRoutes registers auth routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.login)
	r.With(h.middleware.Authenticate).Get("/me", h.me)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := shared.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	session, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Warn("login failed", slog.String("username", req.Username))
			httpx.Error(w, http.StatusUnauthorized, "Username atau password salah")
			return
		}
		h.logger.Error("login", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	user, err := h.service.Current(r.Context(), p)
	if err != nil {
		if !errors.Is(err, shared.ErrUnauthenticated) {
			h.logger.Error("load current user", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}
