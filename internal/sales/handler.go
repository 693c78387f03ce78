package sales

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// Handler manages order endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers order routes on an /orders router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listOrders)
	r.Post("/", h.createOrder)
	r.Get("/extended", h.listExtended)
	r.Post("/backfill-completion", h.backfillCompletion)

	r.Get("/{id}", h.showOrder)
	r.Delete("/{id}", h.deleteOrder)
	r.Put("/{id}/status", h.updateStatus)
	r.Put("/{id}/discount", h.setDiscount)
	r.Post("/{id}/hold", h.setHold)
	r.Delete("/{id}/hold", h.removeHold)
	r.Get("/{id}/lock", h.lockInfo)
	r.Post("/{id}/lock", h.lock)
	r.Post("/{id}/unlock", h.unlock)

	r.Post("/{id}/items", h.addItem)
	r.Put("/{id}/items/{itemID}", h.updateItem)
	r.Delete("/{id}/items/{itemID}", h.deleteItem)
}

// ============================================================================
// ORDERS
// ============================================================================

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	filter := parseListFilter(r)
	orders, total, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.fail(w, "list orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       orders,
		"pagination": shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) listExtended(w http.ResponseWriter, r *http.Request) {
	filter := parseListFilter(r)
	summaries, total, err := h.service.ListExtended(r.Context(), filter)
	if err != nil {
		h.fail(w, "list orders extended", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       summaries,
		"pagination": shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.CreateOrder(r.Context(), req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "create order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) showOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r, "id")
	if !ok {
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.fail(w, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r, "id")
	if !ok {
		return
	}
	confirm, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	result, err := h.service.DeleteOrder(r.Context(), id, DeleteOptions{Confirm: confirm}, shared.ActorFromContext(r.Context()))
	if errors.Is(err, shared.ErrConfirmationRequired) {
		httpx.JSON(w, http.StatusConflict, map[string]any{
			"title":  "Confirmation Required",
			"detail": "repeat the request with confirm=true to delete",
			"plan":   result.Plan,
		})
		return
	}
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		h.logger.Error("delete order", slog.Any("error", err))
		httpx.JSON(w, http.StatusInternalServerError, map[string]any{
			"title":            "Partial Deletion",
			"detail":           "deletion stopped; completed steps are kept and a retry is scheduled",
			"failed_step":      stepErr.Step,
			"failed_step_name": stepErr.Name,
			"completed_steps":  result.CompletedSteps,
		})
		return
	}
	if err != nil {
		h.fail(w, "delete order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) backfillCompletion(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.BackfillCompletion(r.Context(), shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "backfill completion", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"updated": n})
}

// ============================================================================
// LIFECYCLE
// ============================================================================

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r, "id")
	if !ok {
		return
	}
	var req StatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.UpdateStatus(r.Context(), id, req.Status, shared.ActorFromContext(r.Context()))
	h.respond(w, "update status", order, err)
}

func (h *Handler) setDiscount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r, "id")
	if !ok {
		return
	}
	var req DiscountRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.SetDiscount(r.Context(), id, req.DiscountAmount, shared.ActorFromContext(r.Context()))
	h.respond(w, "set discount", order, err)
}

func (h *Handler) setHold(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r, "id")
	if !ok {
		return
	}
	var req ReasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.SetOnHold(r.Context(), id, req.Reason, shared.ActorFromContext(r.Context()))
	h.respond(w, "set hold", order, err)
}

func (h *Handler) removeHold(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r, "id")
	if !ok {
		return
	}
	order, err := h.service.RemoveHold(r.Context(), id, shared.ActorFromContext(r.Context()))
	h.respond(w, "remove hold", order, err)
}

func (h *Handler) lockInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r, "id")
	if !ok {
		return
	}
	info, err := h.service.LockInfo(r.Context(), id)
	h.respond(w, "lock info", info, err)
}

func (h *Handler) lock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r, "id")
	if !ok {
		return
	}
	order, err := h.service.Lock(r.Context(), id, shared.ActorFromContext(r.Context()))
	h.respond(w, "lock order", order, err)
}

func (h *Handler) unlock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r, "id")
	if !ok {
		return
	}
	var req ReasonRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.Unlock(r.Context(), id, req.Reason, shared.ActorFromContext(r.Context()))
	h.respond(w, "unlock order", order, err)
}

// ============================================================================
// LINE ITEMS
// ============================================================================

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r, "id")
	if !ok {
		return
	}
	var req ItemInput
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.AddItem(r.Context(), id, req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "add item", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := h.id(w, r, "itemID")
	if !ok {
		return
	}
	var req ItemInput
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.service.UpdateItem(r.Context(), id, itemID, req, shared.ActorFromContext(r.Context()))
	h.respond(w, "update item", item, err)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := h.id(w, r, "itemID")
	if !ok {
		return
	}
	if err := h.service.DeleteItem(r.Context(), id, itemID, shared.ActorFromContext(r.Context())); err != nil {
		h.fail(w, "delete item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// HELPERS
// ============================================================================

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := httpx.Validate(h.validator, target); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) id(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := httpx.IDParam(r, name)
	if err != nil {
		httpx.RespondError(w, err)
		return 0, false
	}
	return id, true
}

func (h *Handler) respond(w http.ResponseWriter, op string, body any, err error) {
	if err != nil {
		h.fail(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, body)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseListFilter(r *http.Request) ListFilter {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status"))}
	filter.CustomerID, _ = strconv.ParseInt(q.Get("customer_id"), 10, 64)
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	if v, err := strconv.ParseBool(q.Get("on_hold")); err == nil {
		filter.OnHold = &v
	}
	if v, err := strconv.ParseBool(q.Get("locked")); err == nil {
		filter.Locked = &v
	}
	return filter
}
