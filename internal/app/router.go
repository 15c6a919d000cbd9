package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/storeledger/internal/audit"
	"github.com/odyssey-erp/storeledger/internal/cash"
	"github.com/odyssey-erp/storeledger/internal/inventory"
	"github.com/odyssey-erp/storeledger/internal/masterdata"
	"github.com/odyssey-erp/storeledger/internal/observability"
	"github.com/odyssey-erp/storeledger/internal/platform/httpx"
	"github.com/odyssey-erp/storeledger/internal/purchases"
	"github.com/odyssey-erp/storeledger/internal/reports"
	"github.com/odyssey-erp/storeledger/internal/sales"
	"github.com/odyssey-erp/storeledger/internal/settings"
	"github.com/odyssey-erp/storeledger/jobs"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Database          Pinger
	InventoryHandler  *inventory.Handler
	CashHandler       *cash.Handler
	SalesHandler      *sales.Handler
	PurchasesHandler  *purchases.Handler
	MasterDataHandler *masterdata.Handler
	ReportsHandler    *reports.Handler
	AuditHandler      *audit.Handler
	SettingsHandler   *settings.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with storeledger defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Database != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.Database.Ping(ctx); err != nil {
				params.Logger.Warn("healthz database ping", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.InventoryHandler != nil {
		r.Route("/inventory", params.InventoryHandler.MountRoutes)
	}
	if params.CashHandler != nil {
		r.Route("/cash", params.CashHandler.MountRoutes)
	}
	if params.SalesHandler != nil {
		r.Route("/sales", params.SalesHandler.MountRoutes)
	}
	if params.PurchasesHandler != nil {
		r.Route("/purchases", params.PurchasesHandler.MountRoutes)
	}
	if params.MasterDataHandler != nil {
		r.Route("/masterdata", params.MasterDataHandler.MountRoutes)
	}
	if params.ReportsHandler != nil {
		r.Route("/reports", params.ReportsHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.SettingsHandler != nil {
		r.Route("/settings", params.SettingsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
