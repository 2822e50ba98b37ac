package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/avion-commerce/storefront-backend/models"
	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v80"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func doJSON(r http.Handler, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

type mockStock struct {
	res *models.StockReservationResult
	err error
}

func (m *mockStock) Reserve(_ context.Context, productID string, _ int) (*models.StockReservationResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.res, nil
}

type mockPayments struct {
	items   []models.PaymentItem
	session *models.PaymentSession
	err     error
}

func (m *mockPayments) CreateSession(_ context.Context, items []models.PaymentItem) (*models.PaymentSession, error) {
	m.items = items
	return m.session, m.err
}

type mockOrders struct {
	placed    *models.CreateOrderRequest
	order     *models.Order
	err       error
	changed   bool
	paid      []string
	cancelled []string
}

func (m *mockOrders) PlaceOrder(_ context.Context, req *models.CreateOrderRequest) (*models.Order, error) {
	m.placed = req
	return m.order, m.err
}

func (m *mockOrders) GetOrder(_ context.Context, _ string) (*models.Order, error) {
	return m.order, m.err
}

func (m *mockOrders) MarkPaid(_ context.Context, sessionID string) (*models.Order, bool, error) {
	m.paid = append(m.paid, sessionID)
	return m.order, m.changed, m.err
}

func (m *mockOrders) MarkCancelled(_ context.Context, sessionID string) (*models.Order, bool, error) {
	m.cancelled = append(m.cancelled, sessionID)
	return m.order, m.changed, m.err
}

type mockNotifier struct {
	reqs  []models.OrderConfirmationRequest
	err   error
	logs  []models.NotificationLog
	total int64
	filt  models.NotificationFilter
}

func (m *mockNotifier) SendOrderConfirmation(_ context.Context, req *models.OrderConfirmationRequest) error {
	m.reqs = append(m.reqs, *req)
	return m.err
}

func (m *mockNotifier) GetLogs(_ context.Context, f models.NotificationFilter) ([]models.NotificationLog, int64, error) {
	m.filt = f
	return m.logs, m.total, m.err
}

type mockQueue struct {
	bodies []string
	err    error
}

func (m *mockQueue) SendMessage(_ context.Context, body string) error {
	m.bodies = append(m.bodies, body)
	return m.err
}

type mockParser struct {
	event stripe.Event
	err   error
}

func (m *mockParser) ParseWebhook([]byte, string) (stripe.Event, error) {
	return m.event, m.err
}

type mockRunner struct {
	calls  int
	result *models.CheckoutResult
	clear  bool
}

func (m *mockRunner) Run(_ context.Context, cart *models.Cart, _ models.BillingDetails) *models.CheckoutResult {
	m.calls++
	if m.clear {
		cart.Clear()
	}
	return m.result
}

type mockCarts struct {
	cart  *models.Cart
	err   error
	saved []*models.Cart
}

func (m *mockCarts) GetCart(context.Context, string) (*models.Cart, error) {
	return m.cart, m.err
}

func (m *mockCarts) Save(_ context.Context, cart *models.Cart) error {
	m.saved = append(m.saved, cart)
	return nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	vals map[string]string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{vals: map[string]string{}}
}

func (m *memoryIdempotency) ClaimIdempotency(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vals[key]; ok {
		return false, nil
	}
	m.vals[key] = "pending"
	return true, nil
}

func (m *memoryIdempotency) GetIdempotency(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vals[key], nil
}

func (m *memoryIdempotency) SetIdempotency(_ context.Context, key, response string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = response
	return nil
}

func (m *memoryIdempotency) ReleaseIdempotency(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vals, key)
	return nil
}
