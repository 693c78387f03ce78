package payments

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// Handler exposes payment endpoints under /orders.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers payment routes on an /orders router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}/payments", h.list)
	r.Post("/{id}/payments", h.create)
	r.Put("/{id}/payments/{paymentID}", h.update)
	r.Delete("/{id}/payments/{paymentID}", h.delete)
	r.Get("/{id}/payment-status", h.status)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payments, err := h.service.ListPayments(r.Context(), orderID)
	if err != nil {
		h.fail(w, "list payments", err)
		return
	}
	if payments == nil {
		payments = []Payment{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": payments})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	payment, err := h.service.CreatePayment(r.Context(), orderID, req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "create payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	paymentID, err := httpx.IDParam(r, "paymentID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	payment, err := h.service.UpdatePayment(r.Context(), orderID, paymentID, req, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "update payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	paymentID, err := httpx.IDParam(r, "paymentID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeletePayment(r.Context(), orderID, paymentID, shared.ActorFromContext(r.Context())); err != nil {
		h.fail(w, "delete payment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.Status(r.Context(), orderID)
	if err != nil {
		h.fail(w, "payment status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (PaymentRequest, bool) {
	var req PaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return req, false
	}
	if err := httpx.Validate(h.validator, req); err != nil {
		httpx.RespondError(w, err)
		return req, false
	}
	return req, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
