package delivery

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

const maxEvidenceBytes = 10 << 20

// Handler exposes delivery endpoints under /orders.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers delivery routes on an /orders router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Put("/{id}/items/{itemID}/delivery", h.recordDelivery)
	r.Get("/{id}/deliveries", h.listDispatches)
}

// recordDelivery accepts JSON or a multipart form carrying an evidence file.
func (h *Handler) recordDelivery(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	itemID, err := httpx.IDParam(r, "itemID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := RecordDeliveryInput{OrderID: orderID, LineItemID: itemID}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxEvidenceBytes); err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: malformed form: %v", shared.ErrValidation, err))
			return
		}
		qty, err := strconv.ParseFloat(r.FormValue("quantity_delivered"), 64)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: quantity_delivered must be a number", shared.ErrValidation))
			return
		}
		in.QuantityDelivered = qty
		if raw := r.FormValue("delivery_date"); raw != "" {
			date, err := time.Parse(time.DateOnly, raw)
			if err != nil {
				httpx.RespondError(w, fmt.Errorf("%w: delivery_date must be YYYY-MM-DD", shared.ErrValidation))
				return
			}
			in.DeliveryDate = &date
		}
		if file, header, err := r.FormFile("evidence"); err == nil {
			defer file.Close()
			in.Evidence = file
			in.EvidenceName = header.Filename
		}
	} else {
		var req DeliveryRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if err := httpx.Validate(h.validator, req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		in.QuantityDelivered = *req.QuantityDelivered
		in.DeliveryDate = req.DeliveryDate
	}

	result, err := h.service.RecordDelivery(r.Context(), in, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "record delivery", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) listDispatches(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	dispatches, err := h.service.ListDispatches(r.Context(), orderID)
	if err != nil {
		h.fail(w, "list deliveries", err)
		return
	}
	if dispatches == nil {
		dispatches = []Dispatch{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": dispatches})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
