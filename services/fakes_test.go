package services_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/avion-commerce/storefront-backend/models"
	"github.com/avion-commerce/storefront-backend/repository"
	"github.com/avion-commerce/storefront-backend/sender"
	"github.com/avion-commerce/storefront-backend/services"
)

// ---- in-memory catalog with revision guard ----

type fakeCatalog struct {
	mu          sync.Mutex
	items       map[string]*models.Product
	rev         int
	beforeWrite func(id string)
	findErr     error
	writeErr    error
	reviews     map[string][]models.Review
}

func newFakeCatalog(products ...models.Product) *fakeCatalog {
	c := &fakeCatalog{items: map[string]*models.Product{}, reviews: map[string][]models.Review{}}
	for _, p := range products {
		if p.Collection == "" {
			p.Collection = models.CollectionProduct
		}
		p.InStock = p.Stock > 0
		c.rev++
		p.Revision = fmt.Sprintf("r%d", c.rev)
		c.items[p.ID] = &p
	}
	return c
}

func (c *fakeCatalog) FindByID(_ context.Context, id string) (repository.CatalogItem, error) {
	if c.findErr != nil {
		return nil, c.findErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return repository.NewCatalogItem(&cp), nil
}

func (c *fakeCatalog) SetStock(_ context.Context, item repository.CatalogItem, newStock int) (string, error) {
	if c.beforeWrite != nil {
		c.beforeWrite(item.ItemID())
	}
	if c.writeErr != nil {
		return "", c.writeErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.items[item.ItemID()]
	if !ok || p.Revision != item.Revision() {
		return "", repository.ErrRevisionMismatch
	}
	c.rev++
	p.Stock = newStock
	p.InStock = newStock > 0
	p.Revision = fmt.Sprintf("r%d", c.rev)
	return p.Revision, nil
}

func (c *fakeCatalog) Create(_ context.Context, p *models.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.ID == "" {
		p.ID = fmt.Sprintf("new-%d", len(c.items)+1)
	}
	if _, ok := c.items[p.ID]; ok {
		return repository.ErrDuplicateKey
	}
	cp := *p
	c.items[p.ID] = &cp
	return nil
}

func (c *fakeCatalog) AppendReview(_ context.Context, id string, review models.Review) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; !ok {
		return repository.ErrNotFound
	}
	c.reviews[id] = append(c.reviews[id], review)
	return nil
}

// bump changes a product's revision as a concurrent writer would.
func (c *fakeCatalog) bump(id string, stockDelta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rev++
	c.items[id].Stock += stockDelta
	c.items[id].Revision = fmt.Sprintf("r%d", c.rev)
}

func (c *fakeCatalog) setPrice(id string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[id].Price = price
}

func (c *fakeCatalog) stock(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items[id].Stock
}

// ---- customers / orders ----

type fakeCustomers struct {
	byKey     map[string]*models.Customer
	findErr   error
	createErr error
	created   int

	// createdElsewhere is inserted by a competing writer just before Create,
	// which then fails on the unique index.
	createdElsewhere *models.Customer
}

func newFakeCustomers() *fakeCustomers {
	return &fakeCustomers{byKey: map[string]*models.Customer{}}
}

func (f *fakeCustomers) FindByEmailAndName(_ context.Context, email, name string) (*models.Customer, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if c, ok := f.byKey[email+"|"+name]; ok {
		return c, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeCustomers) Create(_ context.Context, c *models.Customer) error {
	if f.createErr != nil {
		return f.createErr
	}
	if other := f.createdElsewhere; other != nil {
		f.createdElsewhere = nil
		f.byKey[other.Email+"|"+other.FullName] = other
		return repository.ErrDuplicateKey
	}
	f.created++
	c.ID = fmt.Sprintf("cust-%d", f.created)
	f.byKey[c.Email+"|"+c.FullName] = c
	return nil
}

type fakeOrders struct {
	mu           sync.Mutex
	orders       []*models.Order
	latest       string
	latestErr    error
	createErrs   []error
	createCalls  int
	updateErr    error
	updateCalled int
}

func (f *fakeOrders) LatestOrderID(context.Context) (string, error) {
	if f.latestErr != nil {
		return "", f.latestErr
	}
	return f.latest, nil
}

func (f *fakeOrders) Create(_ context.Context, o *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return err
		}
	}
	o.ID = fmt.Sprintf("doc-%d", len(f.orders)+1)
	cp := *o
	f.orders = append(f.orders, &cp)
	f.latest = o.OrderID
	return nil
}

func (f *fakeOrders) FindByOrderID(_ context.Context, id string) (*models.Order, error) {
	for _, o := range f.orders {
		if o.OrderID == id {
			cp := *o
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeOrders) FindByPaymentSessionID(_ context.Context, id string) (*models.Order, error) {
	for _, o := range f.orders {
		if o.PaymentSessionID == id {
			cp := *o
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id string, from, to models.OrderStatus) error {
	f.updateCalled++
	if f.updateErr != nil {
		return f.updateErr
	}
	for _, o := range f.orders {
		if o.ID == id {
			if o.Status != from {
				return repository.ErrRevisionMismatch
			}
			o.Status = to
			return nil
		}
	}
	return repository.ErrRevisionMismatch
}

// ---- payment gateway ----

type fakeGateway struct {
	requests  []services.CheckoutSessionRequest
	createErr error
	noURL     bool
	expired   []string
	expireErr error
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req services.CheckoutSessionRequest) (*services.CheckoutSessionResponse, error) {
	g.requests = append(g.requests, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	id := fmt.Sprintf("cs_test_%d", len(g.requests))
	resp := &services.CheckoutSessionResponse{ID: id, URL: "https://checkout.stripe.com/c/pay/" + id}
	if g.noURL {
		resp.URL = ""
	}
	return resp, nil
}

func (g *fakeGateway) ExpireCheckoutSession(_ context.Context, id string) error {
	g.expired = append(g.expired, id)
	return g.expireErr
}

// ---- email + notification log ----

type fakeSender struct {
	mu    sync.Mutex
	errs  []error
	sent  []string
	calls int
}

func (s *fakeSender) SendEmail(_ context.Context, to, _, body string) (sender.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return sender.SendResult{}, err
		}
	}
	s.sent = append(s.sent, body)
	return sender.SendResult{MessageID: fmt.Sprintf("msg-%d", s.calls)}, nil
}

type fakeNotificationRepo struct {
	logs    []models.NotificationLog
	saveErr error
}

func (r *fakeNotificationRepo) SaveLog(_ context.Context, l *models.NotificationLog) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.logs = append(r.logs, *l)
	return nil
}

func (r *fakeNotificationRepo) GetLogs(context.Context, models.NotificationFilter) ([]models.NotificationLog, int64, error) {
	return r.logs, int64(len(r.logs)), nil
}

// ---- SNS ----

type fakePublisher struct {
	topic     string
	eventType string
	messages  [][]byte
	err       error
}

func (p *fakePublisher) PublishEvent(_ context.Context, topicArn, eventType string, msg []byte) error {
	p.topic, p.eventType = topicArn, eventType
	p.messages = append(p.messages, msg)
	return p.err
}
