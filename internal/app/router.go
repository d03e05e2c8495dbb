package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Gazel/SecureKasir/internal/auth"
	"github.com/Gazel/SecureKasir/internal/catalog"
	"github.com/Gazel/SecureKasir/internal/dashboard"
	"github.com/Gazel/SecureKasir/internal/observability"
	"github.com/Gazel/SecureKasir/internal/platform/httpx"
	"github.com/Gazel/SecureKasir/internal/shared"
	"github.com/Gazel/SecureKasir/internal/transactions"
	"github.com/Gazel/SecureKasir/internal/users"
	"github.com/Gazel/SecureKasir/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Guard   auth.Middleware
	Metrics *observability.Metrics
	Clock   func() time.Time

	AuthHandler         *auth.Handler
	UsersHandler        *users.Handler
	CatalogHandler      *catalog.Handler
	TransactionsHandler *transactions.Handler
	DashboardHandler    *dashboard.Handler
	JobHandler          *jobs.Handler
}

type healthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// NewRouter constructs the chi.Router with SecureKasir defaults. API routes
// are served at the root and again under /api for the web client.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Error(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Group(func(r chi.Router) { mountAPI(r, params) })
	r.Route("/api", func(r chi.Router) { mountAPI(r, params) })

	return r
}

func mountAPI(r chi.Router, params RouterParams) {
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, healthResponse{Status: "ok", Time: clock().UTC()})
	})

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}

	r.Group(func(r chi.Router) {
		r.Use(params.Guard.Authenticate)
		if params.CatalogHandler != nil {
			r.Route("/products", params.CatalogHandler.MountRoutes)
		}
		if params.TransactionsHandler != nil {
			r.Route("/transactions", params.TransactionsHandler.MountRoutes)
		}
		if params.DashboardHandler != nil {
			r.Route("/dashboard", params.DashboardHandler.MountRoutes)
		}
		if params.UsersHandler != nil {
			r.Route("/users", func(r chi.Router) {
				r.Use(params.Guard.RequireRole(shared.RoleAdmin))
				params.UsersHandler.MountRoutes(r)
			})
		}
	})
}
