package masterdata

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/storeledger/internal/platform/httpx"
	"github.com/odyssey-erp/storeledger/internal/shared"
)

// Handler manages master data endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	// Products
	r.Get("/products", h.listProducts)
	r.Post("/products", h.createProduct)
	r.Get("/products/{id}", h.showProduct)
	r.Put("/products/{id}", h.updateProduct)
	r.Delete("/products/{id}", h.deleteProduct)

	// Customers and suppliers
	for _, entity := range []Entity{EntityCustomer, EntitySupplier} {
		prefix := "/" + string(entity)
		r.Get(prefix, h.listParties(entity))
		r.Post(prefix, h.createParty(entity))
		r.Get(prefix+"/{id}", h.showParty(entity))
		r.Put(prefix+"/{id}", h.updateParty(entity))
		r.Delete(prefix+"/{id}", h.deleteParty(entity))
	}

	// Categories
	r.Get("/categories", h.listCategories)
	r.Post("/categories", h.createCategory)
	r.Get("/categories/{id}", h.showCategory)
	r.Put("/categories/{id}", h.updateCategory)
	r.Delete("/categories/{id}", h.deleteCategory)
}

func filtersFromRequest(r *http.Request) ListFilters {
	q := r.URL.Query()
	return ListFilters{Search: q.Get("search"), Page: shared.PageFromQuery(q)}
}

func respondList[T any](w http.ResponseWriter, items []T, total int, page shared.Page) {
	if items == nil {
		items = []T{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data": items,
		"meta": shared.NewPagination(page.Offset/page.Limit+1, page.Limit, total),
	})
}

func (h *Handler) fail(w http.ResponseWriter, action string, err error) {
	h.logger.Warn(action, slog.Any("error", err))
	httpx.RespondError(w, err)
}

// Product handlers

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	filters := filtersFromRequest(r)
	products, total, err := h.service.ListProducts(r.Context(), filters)
	if err != nil {
		h.fail(w, "list products", err)
		return
	}
	respondList(w, products, total, filters.Page)
}

func (h *Handler) showProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var input Product
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.CreateProduct(r.Context(), input, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "create product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input Product
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), id, input, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "update product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteProduct(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.fail(w, "delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Customer and supplier handlers

func (h *Handler) listParties(entity Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters := filtersFromRequest(r)
		parties, total, err := h.service.ListParties(r.Context(), entity, filters)
		if err != nil {
			h.fail(w, "list "+string(entity), err)
			return
		}
		respondList(w, parties, total, filters.Page)
	}
}

func (h *Handler) showParty(entity Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		party, err := h.service.GetParty(r.Context(), entity, id)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, party)
	}
}

func (h *Handler) createParty(entity Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input Party
		if err := httpx.DecodeJSON(r, &input); err != nil {
			httpx.RespondError(w, err)
			return
		}
		party, err := h.service.CreateParty(r.Context(), entity, input, shared.ActorFromContext(r.Context()))
		if err != nil {
			h.fail(w, "create "+entity.Singular(), err)
			return
		}
		httpx.JSON(w, http.StatusCreated, party)
	}
}

func (h *Handler) updateParty(entity Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		var input Party
		if err := httpx.DecodeJSON(r, &input); err != nil {
			httpx.RespondError(w, err)
			return
		}
		party, err := h.service.UpdateParty(r.Context(), entity, id, input, shared.ActorFromContext(r.Context()))
		if err != nil {
			h.fail(w, "update "+entity.Singular(), err)
			return
		}
		httpx.JSON(w, http.StatusOK, party)
	}
}

func (h *Handler) deleteParty(entity Entity) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if err := h.service.DeleteParty(r.Context(), entity, id, shared.ActorFromContext(r.Context())); err != nil {
			h.fail(w, "delete "+entity.Singular(), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Category handlers

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	filters := filtersFromRequest(r)
	categories, total, err := h.service.ListCategories(r.Context(), filters)
	if err != nil {
		h.fail(w, "list categories", err)
		return
	}
	respondList(w, categories, total, filters.Page)
}

func (h *Handler) showCategory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	category, err := h.service.GetCategory(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, category)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var input Category
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	category, err := h.service.CreateCategory(r.Context(), input, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "create category", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, category)
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input Category
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	category, err := h.service.UpdateCategory(r.Context(), id, input, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "update category", err)
		return
	}
	httpx.JSON(w, http.StatusOK, category)
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteCategory(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.fail(w, "delete category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
