package reports

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/storeledger/internal/ledger"
	"github.com/odyssey-erp/storeledger/internal/platform/httpx"
)

// Handler exposes read-only report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/dashboard", h.dashboard)
	r.Get("/low-stock", h.lowStock)
	r.Get("/low-stock/export.xlsx", h.lowStockExport)
	r.Get("/profit", h.profit)
	r.Get("/inventory-value", h.inventoryValue)
	r.Get("/top-products", h.topProducts)
	r.Get("/top-products/export.xlsx", h.topProductsExport)
	r.Get("/top-customers", h.topCustomers)
	r.Get("/sales-trend", h.salesTrend)
	r.Get("/kpis", h.kpis)
}

func (h *Handler) respond(w http.ResponseWriter, report string, payload any, err error) {
	if err != nil {
		h.logger.Error("report failed", slog.String("report", report), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payload)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Dashboard(r.Context())
	h.respond(w, ReportDashboard, out, err)
}

func (h *Handler) kpis(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.KPIs(r.Context())
	h.respond(w, ReportKPIs, out, err)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.LowStock(r.Context())
	h.respond(w, ReportLowStock, out, err)
}

func (h *Handler) lowStockExport(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.LowStock(r.Context())
	if err != nil {
		h.respond(w, ReportLowStock, nil, err)
		return
	}
	h.spreadsheet(w, "low-stock", []string{"Code", "Name", "Category", "Quantity", "Minimum", "Status"}, lowStockRows(out))
}

func (h *Handler) topProductsExport(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.TopProducts(r.Context(), limit)
	if err != nil {
		h.respond(w, ReportTopProducts, nil, err)
		return
	}
	h.spreadsheet(w, "top-products", []string{"Product", "Quantity sold", "Revenue", "Profit"}, topProductRows(out))
}

func (h *Handler) spreadsheet(w http.ResponseWriter, name string, headings []string, rows [][]any) {
	body, err := WriteXLSX(name, headings, rows)
	if err != nil {
		h.logger.Error("encode xlsx", slog.String("report", name), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", XLSXContentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+name+".xlsx\"")
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("write xlsx", slog.Any("error", err))
	}
}

func (h *Handler) profit(w http.ResponseWriter, r *http.Request) {
	from, err := dateQuery(r, "from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	to, err := dateQuery(r, "to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.Profit(r.Context(), from, to)
	h.respond(w, ReportProfit, out, err)
}

func (h *Handler) inventoryValue(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.InventoryValue(r.Context())
	h.respond(w, ReportInventoryValue, out, err)
}

func (h *Handler) topProducts(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.TopProducts(r.Context(), limit)
	h.respond(w, ReportTopProducts, out, err)
}

func (h *Handler) topCustomers(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.TopCustomers(r.Context(), limit)
	h.respond(w, ReportTopCustomers, out, err)
}

func (h *Handler) salesTrend(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "days")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.SalesTrend(r.Context(), days)
	h.respond(w, ReportSalesTrend, out, err)
}

func dateQuery(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(ledger.DateLayout, raw)
	if err != nil {
		return nil, ledger.Invalid(name, "expected YYYY-MM-DD")
	}
	return &t, nil
}

func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ledger.Invalid(name, "must be an integer")
	}
	return v, nil
}
