package transactions

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Gazel/SecureKasir/internal/auth"
	"github.com/Gazel/SecureKasir/internal/platform/httpx"
	"github.com/Gazel/SecureKasir/internal/sequence"
	"github.com/Gazel/SecureKasir/internal/shared"
)

// IdempotencyHeader lets clients make checkout retries safe.
const IdempotencyHeader = "Idempotency-Key"

const (
	msgSaveFailed = "Failed to save transaction"
	msgExhausted  = "Daily transaction limit reached"
	msgLoadFailed = "Failed to load transactions"
)

// Handler wires HTTP endpoints for sales.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   auth.Middleware
}

// NewHandler constructs transactions handler.
func NewHandler(logger *slog.Logger, service *Service, guard auth.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers transaction routes behind authentication.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRole(shared.RoleAdmin, shared.RoleCashier))
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/receipt", h.receipt)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireRole(shared.RoleAdmin))
		r.Post("/{id}/cancel", h.cancel)
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	opts := CreateOptions{IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyHeader))}
	if p, ok := shared.PrincipalFromContext(r.Context()); ok {
		opts.CashierID = p.UserID
	}
	result, err := h.service.Create(r.Context(), req, opts)
	if err != nil {
		var payloadErr *PayloadError
		switch {
		case errors.As(err, &payloadErr):
			httpx.Error(w, http.StatusBadRequest, payloadErr.Error())
		case errors.Is(err, sequence.ErrSequenceExhausted):
			h.logger.Error("sequence exhausted", slog.Any("error", err))
			httpx.Error(w, http.StatusConflict, msgExhausted)
		default:
			httpx.Error(w, http.StatusInternalServerError, msgSaveFailed)
		}
		return
	}
	if result.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	httpx.JSON(w, http.StatusOK, CreateResponse{Success: true, ID: result.ID})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r, h.service.Location())
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	txns, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list transactions", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, msgLoadFailed)
		return
	}
	httpx.JSON(w, http.StatusOK, txns)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	txn, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondReadError(w, "get transaction", err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) receipt(w http.ResponseWriter, r *http.Request) {
	body, err := h.service.Receipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondReadError(w, "render receipt", err)
		return
	}
	httpx.Text(w, http.StatusOK, body)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	txn, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondReadError(w, "cancel transaction", err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondReadError(w, "delete transaction", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) respondReadError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, ErrNotFound) {
		httpx.Error(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Error(op, slog.Any("error", err))
	httpx.Error(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

func parseListFilter(r *http.Request, loc *time.Location) (ListFilter, error) {
	q := r.URL.Query()
	var filter ListFilter
	var err error
	if filter.From, err = parseBound(q.Get("from"), loc, false); err != nil {
		return ListFilter{}, err
	}
	if filter.To, err = parseBound(q.Get("to"), loc, true); err != nil {
		return ListFilter{}, err
	}
	switch status := Status(strings.ToUpper(strings.TrimSpace(q.Get("status")))); status {
	case "", StatusSuccess, StatusCancelled:
		filter.Status = status
	default:
		return ListFilter{}, shared.Invalid("status must be SUCCESS or CANCELLED")
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return ListFilter{}, shared.Invalid("limit must be a non-negative integer")
		}
		filter.Limit = limit
	}
	return filter, nil
}

// parseBound accepts YYYY-MM-DD (whole business day) or RFC 3339.
func parseBound(raw string, loc *time.Location, end bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if day, err := time.ParseInLocation("2006-01-02", raw, loc); err == nil {
		if end {
			return day.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
		}
		return day, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, shared.Invalid("invalid date %q", raw)
	}
	return t, nil
}
