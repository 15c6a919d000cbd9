package cash

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/storeledger/internal/ledger"
	"github.com/odyssey-erp/storeledger/internal/platform/httpx"
	"github.com/odyssey-erp/storeledger/internal/shared"
)

// Handler wires HTTP endpoints for the cash register.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs cash handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers cash routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balance", h.balance)
	r.Get("/transactions", h.listTransactions)
	r.Get("/affordability", h.affordability)
	r.Post("/deposit", h.deposit)
	r.Post("/withdraw", h.withdraw)
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.service.Balance(r.Context())
	if err != nil {
		h.logger.Error("cash balance", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balance": balance})
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	var kind *TransactionType
	if raw := r.URL.Query().Get("type"); raw != "" {
		parsed, err := ParseTransactionType(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		kind = &parsed
	}
	txns, err := h.service.ListTransactions(r.Context(), kind, shared.PageFromQuery(r.URL.Query()))
	if err != nil {
		h.logger.Error("list cash transactions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if txns == nil {
		txns = []Transaction{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": txns})
}

func (h *Handler) affordability(w http.ResponseWriter, r *http.Request) {
	amount, err := ledger.ParseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.CheckAffordability(r.Context(), amount, shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	h.manual(w, r, h.service.Deposit)
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	h.manual(w, r, h.service.Withdraw)
}

func (h *Handler) manual(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, input MovementInput) (Transaction, error)) {
	var input MovementInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.Actor = shared.ActorFromContext(r.Context())
	txn, err := op(r.Context(), input)
	if err != nil {
		h.logger.Warn("cash movement", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}
