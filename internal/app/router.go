package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/odyssey-erp/backoffice/internal/audit/http"
	"github.com/odyssey-erp/backoffice/internal/auth"
	"github.com/odyssey-erp/backoffice/internal/bom"
	"github.com/odyssey-erp/backoffice/internal/budget"
	"github.com/odyssey-erp/backoffice/internal/forecast"
	"github.com/odyssey-erp/backoffice/internal/grn"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/orders"
	periodshttp "github.com/odyssey-erp/backoffice/internal/periods/http"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/products"
	"github.com/odyssey-erp/backoffice/internal/purchases"
	"github.com/odyssey-erp/backoffice/internal/qc"
	"github.com/odyssey-erp/backoffice/internal/tenants"
	"github.com/odyssey-erp/backoffice/internal/users"
	"github.com/odyssey-erp/backoffice/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	Tokens  auth.TokenParser

	AuthHandler      *auth.Handler
	PeriodsHandler   *periodshttp.Handler
	AuditHandler     *audithttp.Handler
	TenantsHandler   *tenants.Handler
	UsersHandler     *users.Handler
	PurchasesHandler *purchases.Handler
	OrdersHandler    *orders.Handler
	ProductsHandler  *products.Handler
	BOMHandler       *bom.Handler
	BudgetHandler    *budget.Handler
	ForecastHandler  *forecast.Handler
	GRNHandler       *grn.Handler
	QCHandler        *qc.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with back office defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.AuthHandler != nil {
		params.AuthHandler.MountRoutes(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(params.Tokens, logger))

		if params.PeriodsHandler != nil {
			params.PeriodsHandler.MountRoutes(r)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
		if params.TenantsHandler != nil {
			params.TenantsHandler.MountRoutes(r)
		}
		if params.UsersHandler != nil {
			params.UsersHandler.MountRoutes(r)
		}
		if params.PurchasesHandler != nil {
			params.PurchasesHandler.MountRoutes(r)
		}
		if params.OrdersHandler != nil {
			params.OrdersHandler.MountRoutes(r)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}

		r.Route("/api", func(r chi.Router) {
			if params.ProductsHandler != nil {
				params.ProductsHandler.MountRoutes(r)
			}
			if params.BOMHandler != nil {
				params.BOMHandler.MountRoutes(r)
			}
			if params.BudgetHandler != nil {
				params.BudgetHandler.MountRoutes(r)
			}
			if params.ForecastHandler != nil {
				params.ForecastHandler.MountRoutes(r)
			}
			if params.GRNHandler != nil {
				params.GRNHandler.MountRoutes(r)
			}
			if params.QCHandler != nil {
				params.QCHandler.MountRoutes(r)
			}
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	return r
}
