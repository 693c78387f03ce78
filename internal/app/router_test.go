package app_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/app"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/audit"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/delivery"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/inventory"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/observability"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/payments"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/sales"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/testing/memstore"
	_ "github.com/odyssey-erp/odyssey-fulfillment/testing"
)

type client struct {
	t       *testing.T
	handler http.Handler
}

func (c client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(app.HeaderActorID, "5")
	req.Header.Set(app.HeaderActorName, "Budi")
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func newClient(t *testing.T) (client, *memstore.Engine) {
	t.Helper()
	e := memstore.NewEngine(time.Date(2025, 10, 6, 9, 0, 0, 0, time.UTC))
	logger := slog.New(slog.DiscardHandler)
	metrics := observability.NewMetrics()
	e.Inventory.SetObserver(metrics)
	e.Orders.SetObserver(metrics)
	e.Deliveries.SetObserver(metrics)
	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           &app.Config{AppEnv: "test", RateLimitPerMinute: 1000},
		InventoryHandler: inventory.NewHandler(logger, e.Inventory),
		SalesHandler:     sales.NewHandler(logger, e.Orders),
		DeliveryHandler:  delivery.NewHandler(logger, e.Deliveries),
		PaymentHandler:   payments.NewHandler(logger, e.Payments),
		AuditHandler:     audit.NewHandler(logger, e.Audit),
		Metrics:          metrics,
	})
	return client{t: t, handler: router}, e
}

func TestOrderFlowOverHTTP(t *testing.T) {
	c, e := newClient(t)

	rec := c.do(http.MethodPost, "/lots", inventory.CreateLotRequest{
		ProductType: "Rendang", BatchReference: "RD-10", Unit: "kg", QuantityCreated: 100,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	lot := decode[inventory.StockLot](t, rec)

	rec = c.do(http.MethodPost, "/orders", sales.CreateOrderRequest{
		CustomerID: 1,
		Items:      []sales.ItemInput{{StockLotID: lot.ID, Quantity: 40, UnitPrice: 25}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[sales.Order](t, rec)
	require.Equal(t, "Budi (#5)", order.CreatedBy)

	rec = c.do(http.MethodPost, "/orders", sales.CreateOrderRequest{
		CustomerID: 1,
		Items:      []sales.ItemInput{{StockLotID: lot.ID, Quantity: 61, UnitPrice: 25}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "available 60 kg")

	rec = c.do(http.MethodPut, fmt.Sprintf("/orders/%d/items/%d/delivery", order.ID, order.Items[0].ID),
		map[string]any{"quantity_delivered": 25})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.do(http.MethodPost, fmt.Sprintf("/orders/%d/payments", order.ID), payments.PaymentRequest{
		AmountReceived: 1000, PaymentDate: time.Date(2025, 10, 6, 0, 0, 0, 0, time.UTC), Mode: payments.ModeBankTransfer,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = c.do(http.MethodGet, fmt.Sprintf("/orders/%d/payment-status", order.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, sales.PaymentFull, decode[payments.StatusView](t, rec).Status)

	rec = c.do(http.MethodPost, fmt.Sprintf("/orders/%d/lock", order.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.do(http.MethodPost, fmt.Sprintf("/orders/%d/hold", order.ID), sales.ReasonRequest{Reason: "audit"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "Order Locked", decode[map[string]any](t, rec)["title"])

	e.Clock.Advance(8 * 24 * time.Hour)
	rec = c.do(http.MethodPost, fmt.Sprintf("/orders/%d/unlock", order.ID), sales.ReasonRequest{Reason: "typo"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "Unlock Window Expired", decode[map[string]any](t, rec)["title"])

	rec = c.do(http.MethodGet, fmt.Sprintf("/orders/%d/audit", order.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, decode[audit.Result](t, rec).Events)
}

func TestDeleteOrderNeedsConfirmationOverHTTP(t *testing.T) {
	c, _ := newClient(t)
	lot := decode[inventory.StockLot](t, c.do(http.MethodPost, "/lots", inventory.CreateLotRequest{
		ProductType: "Rendang", BatchReference: "RD-11", Unit: "kg", QuantityCreated: 50,
	}))
	order := decode[sales.Order](t, c.do(http.MethodPost, "/orders", sales.CreateOrderRequest{
		CustomerID: 1,
		Items:      []sales.ItemInput{{StockLotID: lot.ID, Quantity: 10, UnitPrice: 5}},
	}))

	rec := c.do(http.MethodDelete, fmt.Sprintf("/orders/%d", order.ID), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode[struct {
		Plan sales.DeletionPlan `json:"plan"`
	}](t, rec)
	require.Equal(t, 1, body.Plan.LineItems)

	rec = c.do(http.MethodDelete, fmt.Sprintf("/orders/%d?confirm=true", order.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, http.StatusNotFound, c.do(http.MethodGet, fmt.Sprintf("/orders/%d", order.ID), nil).Code)
}

func TestUpdateStatusToCompletedIsRejected(t *testing.T) {
	c, _ := newClient(t)
	lot := decode[inventory.StockLot](t, c.do(http.MethodPost, "/lots", inventory.CreateLotRequest{
		ProductType: "Rendang", BatchReference: "RD-12", Unit: "kg", QuantityCreated: 5,
	}))
	order := decode[sales.Order](t, c.do(http.MethodPost, "/orders", sales.CreateOrderRequest{
		CustomerID: 1,
		Items:      []sales.ItemInput{{StockLotID: lot.ID, Quantity: 1, UnitPrice: 5}},
	}))

	rec := c.do(http.MethodPut, fmt.Sprintf("/orders/%d/status", order.ID), sales.StatusRequest{Status: sales.StatusCompleted})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	c, _ := newClient(t)

	rec := c.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	c.do(http.MethodGet, "/orders/999", nil)
	rec = c.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `route="/orders/{id}"`), rec.Body.String())
}

func TestActorMiddleware(t *testing.T) {
	var got string
	h := app.ActorMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.ActorFromContext(r.Context()).String()
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "system", got)

	req.Header.Set(app.HeaderActorID, "12")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "user#12", got)
}

func TestHarnessEnablesTestMode(t *testing.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())
}
