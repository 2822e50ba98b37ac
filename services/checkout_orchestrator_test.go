package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	apperrors "github.com/avion-commerce/storefront-backend/common/errors"
	"github.com/avion-commerce/storefront-backend/models"
	"github.com/avion-commerce/storefront-backend/pkg/metrics"
	"github.com/avion-commerce/storefront-backend/services"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const eventsTopic = "arn:aws:sns:us-east-1:000000000000:checkout-events"

type checkoutFixture struct {
	catalog   *fakeCatalog
	gateway   *fakeGateway
	orders    *fakeOrders
	customers *fakeCustomers
	events    *fakePublisher
	metrics   *metrics.CheckoutMetrics
	stock     *services.StockService
	payments  *services.PaymentService
	orderSvc  *services.OrderService
}

func newCheckoutFixture(products ...models.Product) *checkoutFixture {
	f := &checkoutFixture{
		catalog:   newFakeCatalog(products...),
		gateway:   &fakeGateway{},
		orders:    &fakeOrders{},
		customers: newFakeCustomers(),
		events:    &fakePublisher{},
		metrics:   metrics.NewCheckoutMetrics(),
	}
	f.stock = services.NewStockService(f.catalog, zap.NewNop())
	f.payments = services.NewPaymentService(f.gateway, "usd", "https://shop.example.com/success", "https://shop.example.com/cart", zap.NewNop())
	f.orderSvc = services.NewOrderService(f.customers, f.orders, f.catalog, zap.NewNop())
	return f
}

func (f *checkoutFixture) orchestrator(compensate bool) *services.CheckoutOrchestrator {
	return services.NewCheckoutOrchestrator(services.CheckoutDeps{
		Stock:    f.stock,
		Payments: f.payments,
		Orders:   f.orderSvc,
		Restorer: f.stock,
		Expirer:  f.payments,
		Events:   f.events,
		Metrics:  f.metrics,
	}, services.OrchestratorConfig{
		RetryAttempts:  3,
		RetryBackoff:   time.Millisecond,
		Compensate:     compensate,
		EventsTopicARN: eventsTopic,
	}, zap.NewNop())
}

func cartWith(lines ...models.CartLine) *models.Cart {
	c := models.NewCart("sess-1")
	for _, l := range lines {
		_ = c.Add(l)
	}
	return c
}

func TestCheckout_HappyPath(t *testing.T) {
	f := newCheckoutFixture(chair(5))
	cart := cartWith(models.CartLine{ProductID: "p1", Name: "Library Stool Chair", UnitPrice: 50, Quantity: 2})

	res := f.orchestrator(false).Run(context.Background(), cart, validBilling())

	require.Equal(t, models.StateSuccess, res.State, res.Message)
	assert.Equal(t, 3, f.catalog.stock("p1"))

	require.Len(t, f.gateway.requests, 1)
	assert.Equal(t, []models.PaymentLineItem{{Name: "Library Stool Chair", UnitAmount: 5000, Quantity: 2}}, f.gateway.requests[0].LineItems)

	require.Len(t, f.orders.orders, 1)
	order := f.orders.orders[0]
	assert.Equal(t, 100.0, order.TotalAmount)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, res.SessionID, order.PaymentSessionID)

	assert.Equal(t, "AvionOID-01", res.OrderID)
	assert.NotEmpty(t, res.RedirectURL)
	assert.True(t, cart.IsEmpty())
	assert.Empty(t, f.events.messages)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Outcomes.WithLabelValues("Success", "", "")))
}

func TestCheckout_InsufficientStockHaltsBeforePayment(t *testing.T) {
	f := newCheckoutFixture(models.Product{ID: "p2", Name: "Vase", Price: 20, Stock: 2})
	cart := cartWith(models.CartLine{ProductID: "p2", Name: "Vase", UnitPrice: 20, Quantity: 3})

	res := f.orchestrator(false).Run(context.Background(), cart, validBilling())

	assert.Equal(t, models.StateFailed, res.State)
	assert.Equal(t, models.StateReservingStock, res.Step)
	assert.Equal(t, string(apperrors.KindInsufficientStock), res.Kind)
	assert.Equal(t, "p2", res.ProductID)
	assert.Equal(t, "Vase", res.ProductName)
	assert.Contains(t, res.Message, "ReservingStock")

	assert.Empty(t, f.gateway.requests)
	assert.Empty(t, f.orders.orders)
	assert.Equal(t, 2, f.catalog.stock("p2"))
	assert.False(t, cart.IsEmpty())
	assert.Empty(t, f.events.messages, "nothing was changed, nothing to reconcile")
}

func TestCheckout_InvalidFormMakesNoCalls(t *testing.T) {
	f := newCheckoutFixture(chair(5))
	cart := cartWith(models.CartLine{ProductID: "p1", Name: "Library Stool Chair", UnitPrice: 50, Quantity: 1})
	billing := validBilling()
	billing.Email = "not-an-email"
	billing.Phone = "12345"

	res := f.orchestrator(false).Run(context.Background(), cart, billing)

	assert.Equal(t, models.StateValidatingForm, res.State)
	assert.Contains(t, res.FieldErrors, "email")
	assert.Contains(t, res.FieldErrors, "phone")
	assert.Equal(t, 5, f.catalog.stock("p1"))
	assert.Empty(t, f.gateway.requests)
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newCheckoutFixture()
	res := f.orchestrator(false).Run(context.Background(), models.NewCart("sess-1"), validBilling())
	assert.Equal(t, models.StateValidatingForm, res.State)
	assert.Contains(t, res.FieldErrors, "cart")
}

func TestCheckout_StopsAtFirstFailingLine(t *testing.T) {
	f := newCheckoutFixture(
		chair(5),
		models.Product{ID: "p2", Name: "Vase", Price: 20, Stock: 0},
		models.Product{ID: "p3", Name: "Rug", Price: 80, Stock: 9},
	)
	cart := cartWith(
		models.CartLine{ProductID: "p1", Name: "Library Stool Chair", UnitPrice: 50, Quantity: 1},
		models.CartLine{ProductID: "p2", Name: "Vase", UnitPrice: 20, Quantity: 1},
		models.CartLine{ProductID: "p3", Name: "Rug", UnitPrice: 80, Quantity: 1},
	)

	res := f.orchestrator(false).Run(context.Background(), cart, validBilling())

	assert.Equal(t, "p2", res.ProductID)
	assert.Equal(t, 4, f.catalog.stock("p1"), "earlier lines stay reserved without compensation")
	assert.Equal(t, 9, f.catalog.stock("p3"), "later lines are never attempted")

	require.Len(t, f.events.messages, 1)
	assert.Equal(t, services.EventReconciliationRequired, f.events.eventType)
	var evt map[string]interface{}
	require.NoError(t, json.Unmarshal(f.events.messages[0], &evt))
	assert.Equal(t, "ReservingStock", evt["step"])
}

func TestCheckout_RetriesConcurrencyConflicts(t *testing.T) {
	f := newCheckoutFixture(chair(5))
	conflicts := 2
	f.catalog.beforeWrite = func(id string) {
		if conflicts > 0 {
			conflicts--
			f.catalog.bump(id, 0)
		}
	}
	cart := cartWith(models.CartLine{ProductID: "p1", Name: "Library Stool Chair", UnitPrice: 50, Quantity: 2})

	res := f.orchestrator(false).Run(context.Background(), cart, validBilling())

	require.Equal(t, models.StateSuccess, res.State, res.Message)
	assert.Equal(t, 3, f.catalog.stock("p1"))
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.Reservations.WithLabelValues("conflict_retry")))
}

func TestCheckout_ConflictRetriesAreBounded(t *testing.T) {
	f := newCheckoutFixture(chair(5))
	attempts := 0
	f.catalog.beforeWrite = func(id string) {
		attempts++
		f.catalog.bump(id, 0)
	}
	cart := cartWith(models.CartLine{ProductID: "p1", Name: "Library Stool Chair", UnitPrice: 50, Quantity: 2})

	res := f.orchestrator(false).Run(context.Background(), cart, validBilling())

	assert.Equal(t, models.StateFailed, res.State)
	assert.Equal(t, string(apperrors.KindConcurrencyConflict), res.Kind)
	assert.Equal(t, 3, attempts)
	assert.Empty(t, f.gateway.requests)
}

func TestCheckout_SessionFailure(t *testing.T) {
	t.Run("without compensation reports reconciliation", func(t *testing.T) {
		f := newCheckoutFixture(chair(5))
		f.gateway.createErr = errors.New("api_key_expired")
		cart := cartWith(models.CartLine{ProductID: "p1", Name: "Library Stool Chair", UnitPrice: 50, Quantity: 2})

		res := f.orchestrator(false).Run(context.Background(), cart, validBilling())

		assert.Equal(t, models.StateCreatingSession, res.Step)
		assert.Equal(t, string(apperrors.KindSessionCreationFailed), res.Kind)
		assert.Empty(t, f.orders.orders)
		assert.Equal(t, 3, f.catalog.stock("p1"))
		assert.Len(t, f.events.messages, 1)
		assert.Equal(t, eventsTopic, f.events.topic)
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Reconciliation.WithLabelValues("CreatingSession")))
	})

	t.Run("with compensation restores stock", func(t *testing.T) {
		f := newCheckoutFixture(chair(5))
		f.gateway.createErr = errors.New("api_key_expired")
		cart := cartWith(models.CartLine{ProductID: "p1", Name: "Library Stool Chair", UnitPrice: 50, Quantity: 2})

		res := f.orchestrator(true).Run(context.Background(), cart, validBilling())

		assert.Equal(t, models.StateFailed, res.State)
		assert.Equal(t, 5, f.catalog.stock("p1"))
		assert.Empty(t, f.events.messages)
	})
}

func TestCheckout_OrderFailureAfterSession(t *testing.T) {
	t.Run("without compensation", func(t *testing.T) {
		f := newCheckoutFixture(chair(5))
		f.orders.createErrs = []error{errors.New("write concern error")}
		cart := cartWith(models.CartLine{ProductID: "p1", Name: "Library Stool Chair", UnitPrice: 50, Quantity: 2})

		res := f.orchestrator(false).Run(context.Background(), cart, validBilling())

		assert.Equal(t, models.StatePersistingOrder, res.Step)
		assert.Equal(t, string(apperrors.KindPersistenceFailed), res.Kind)
		assert.Empty(t, f.gateway.expired)

		require.Len(t, f.events.messages, 1)
		var evt map[string]interface{}
		require.NoError(t, json.Unmarshal(f.events.messages[0], &evt))
		assert.Equal(t, "cs_test_1", evt["sessionId"])
		assert.Equal(t, false, evt["compensated"])
	})

	t.Run("with compensation expires session and restocks", func(t *testing.T) {
		f := newCheckoutFixture(chair(5))
		f.orders.createErrs = []error{errors.New("write concern error")}
		cart := cartWith(models.CartLine{ProductID: "p1", Name: "Library Stool Chair", UnitPrice: 50, Quantity: 2})

		f.orchestrator(true).Run(context.Background(), cart, validBilling())

		assert.Equal(t, []string{"cs_test_1"}, f.gateway.expired)
		assert.Equal(t, 5, f.catalog.stock("p1"))
		assert.Empty(t, f.events.messages)
	})

	t.Run("failed compensator still reports", func(t *testing.T) {
		f := newCheckoutFixture(chair(5))
		f.orders.createErrs = []error{errors.New("write concern error")}
		f.gateway.expireErr = errors.New("session already completed")
		cart := cartWith(models.CartLine{ProductID: "p1", Name: "Library Stool Chair", UnitPrice: 50, Quantity: 2})

		f.orchestrator(true).Run(context.Background(), cart, validBilling())

		assert.Equal(t, 5, f.catalog.stock("p1"), "remaining compensators still run")
		require.Len(t, f.events.messages, 1)
	})
}

func TestCheckout_ChargesCatalogPriceNotCartPrice(t *testing.T) {
	f := newCheckoutFixture(models.Product{ID: "p1", Name: "Library Stool Chair", Price: 40, Stock: 5})
	cart := cartWith(models.CartLine{ProductID: "p1", Name: "Library Stool Chair", UnitPrice: 50, Quantity: 2})

	res := f.orchestrator(false).Run(context.Background(), cart, validBilling())

	require.Equal(t, models.StateSuccess, res.State, res.Message)
	require.Len(t, f.gateway.requests, 1)
	assert.Equal(t, []models.PaymentLineItem{{Name: "Library Stool Chair", UnitAmount: 4000, Quantity: 2}}, f.gateway.requests[0].LineItems)
	require.Len(t, f.orders.orders, 1)
	assert.Equal(t, 80.0, f.orders.orders[0].TotalAmount)
}

func TestCheckout_PriceChangeAfterSessionFails(t *testing.T) {
	f := newCheckoutFixture(chair(5))
	f.catalog.beforeWrite = func(id string) { f.catalog.setPrice(id, 45) }
	cart := cartWith(models.CartLine{ProductID: "p1", Name: "Library Stool Chair", UnitPrice: 50, Quantity: 2})

	res := f.orchestrator(false).Run(context.Background(), cart, validBilling())

	assert.Equal(t, models.StateFailed, res.State)
	assert.Equal(t, models.StatePersistingOrder, res.Step)
	assert.Equal(t, string(apperrors.KindPersistenceFailed), res.Kind)
	assert.Equal(t, "AvionOID-01", res.OrderID)
	assert.Equal(t, int64(5000), f.gateway.requests[0].LineItems[0].UnitAmount)
	assert.False(t, cart.IsEmpty())

	require.Len(t, f.events.messages, 1)
	var evt map[string]interface{}
	require.NoError(t, json.Unmarshal(f.events.messages[0], &evt))
	assert.Equal(t, "AvionOID-01", evt["orderId"])
}

func TestCheckout_RestockRetriesLostRace(t *testing.T) {
	f := newCheckoutFixture(chair(5))
	f.gateway.createErr = errors.New("api_key_expired")
	writes := 0
	f.catalog.beforeWrite = func(id string) {
		writes++
		if writes == 2 {
			f.catalog.bump(id, 0)
		}
	}
	cart := cartWith(models.CartLine{ProductID: "p1", Name: "Library Stool Chair", UnitPrice: 50, Quantity: 2})

	res := f.orchestrator(true).Run(context.Background(), cart, validBilling())

	assert.Equal(t, models.StateFailed, res.State)
	assert.Equal(t, 5, f.catalog.stock("p1"))
	assert.Equal(t, 3, writes)
	assert.Empty(t, f.events.messages)
}

func TestCheckout_MissingRedirectURL(t *testing.T) {
	f := newCheckoutFixture(chair(5))
	f.gateway.noURL = true
	cart := cartWith(models.CartLine{ProductID: "p1", Name: "Library Stool Chair", UnitPrice: 50, Quantity: 2})

	res := f.orchestrator(false).Run(context.Background(), cart, validBilling())

	assert.Equal(t, models.StateFailed, res.State)
	assert.Equal(t, models.StateRedirectingToPayment, res.Step)
	assert.Equal(t, "AvionOID-01", res.OrderID)
	assert.Len(t, f.events.messages, 1)
	assert.False(t, cart.IsEmpty())
}

func TestCompensationLog_UnwindsNewestFirst(t *testing.T) {
	var order []string
	var log services.CompensationLog
	log.Record("first", func(context.Context) error { order = append(order, "first"); return nil })
	log.Record("second", func(context.Context) error { order = append(order, "second"); return errors.New("boom") })
	log.Record("third", func(context.Context) error { order = append(order, "third"); return nil })

	failed := log.Unwind(context.Background(), zap.NewNop())

	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{"third", "second", "first"}, order)
	steps := log.Steps()
	assert.Equal(t, services.SagaStepCompensated, steps[0].Status)
	assert.Equal(t, services.SagaStepFailed, steps[1].Status)
	assert.Equal(t, "boom", steps[1].Error)
}
