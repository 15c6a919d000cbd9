package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/storeledger/internal/platform/httpx"
	"github.com/odyssey-erp/storeledger/internal/shared"
)

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/movements", h.listMovements)
	r.Post("/adjustments", h.adjust)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.OptionalInt64Query(r, "product_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	movements, err := h.service.ListMovements(r.Context(), productID, shared.PageFromQuery(r.URL.Query()))
	if err != nil {
		h.logger.Error("list movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if movements == nil {
		movements = []Movement{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": movements})
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var input AdjustmentInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.Actor = shared.ActorFromContext(r.Context())
	movement, err := h.service.Adjust(r.Context(), input)
	if err != nil {
		h.logger.Warn("inventory adjustment", slog.Int64("product_id", input.ProductID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}
