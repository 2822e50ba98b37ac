package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/avion-commerce/storefront-backend/common/errors"
	"github.com/avion-commerce/storefront-backend/common/logger"
	"github.com/avion-commerce/storefront-backend/models"
	"github.com/avion-commerce/storefront-backend/pkg/metrics"
	"go.uber.org/zap"
)

type StockReserver interface {
	Reserve(ctx context.Context, productID string, quantity int) (*models.StockReservationResult, error)
}

type SessionCreator interface {
	CreateSession(ctx context.Context, items []models.PaymentItem) (*models.PaymentSession, error)
}

type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error)
}

type StockRestorer interface {
	Restock(ctx context.Context, productID string, quantity int) error
}

type SessionExpirer interface {
	ExpireSession(ctx context.Context, sessionID string) error
}

// EventPublisher is satisfied by the SNS client.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topicArn, eventType string, message []byte) error
}

const EventReconciliationRequired = "checkout.reconciliation_required"

// CheckoutDeps are the collaborators of a checkout run. Restorer, Expirer,
// Events and Metrics are optional.
type CheckoutDeps struct {
	Stock    StockReserver
	Payments SessionCreator
	Orders   OrderPlacer
	Restorer StockRestorer
	Expirer  SessionExpirer
	Events   EventPublisher
	Metrics  *metrics.CheckoutMetrics
}

type OrchestratorConfig struct {
	RetryAttempts  int
	RetryBackoff   time.Duration
	Compensate     bool
	EventsTopicARN string
}

// CheckoutOrchestrator drives one checkout attempt through validation,
// stock reservation, payment session creation and order persistence, in
// that order, stopping at the first failure.
type CheckoutOrchestrator struct {
	deps      CheckoutDeps
	cfg       OrchestratorConfig
	validator *BillingValidator
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewCheckoutOrchestrator(deps CheckoutDeps, cfg OrchestratorConfig, logger *zap.Logger) *CheckoutOrchestrator {
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	return &CheckoutOrchestrator{
		deps:      deps,
		cfg:       cfg,
		validator: NewBillingValidator(),
		logger:    logger,
		sleep:     sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// reservedLine is a reserved cart line priced from the catalog at
// reservation time. The payment session and the order are both built from it.
type reservedLine struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	ImageRef  string  `json:"-"`
}

// checkoutRun is the state of a single attempt.
type checkoutRun struct {
	state    models.CheckoutState
	started  time.Time
	lines    []models.CartLine
	reserved []reservedLine
	session  *models.PaymentSession
	order    *models.Order
	saga     CompensationLog
	log      *zap.Logger
}

func (r *checkoutRun) enter(s models.CheckoutState) {
	r.log.Debug("checkout state", zap.String("from", string(r.state)), zap.String("to", string(s)))
	r.state = s
}

// Run executes a checkout for cart. The cart is cleared only when the run
// ends in Success.
func (o *CheckoutOrchestrator) Run(ctx context.Context, cart *models.Cart, billing models.BillingDetails) *models.CheckoutResult {
	run := &checkoutRun{
		state:   models.StateIdle,
		started: time.Now(),
		log:     logger.FromContext(ctx, o.logger).With(zap.String("cart_session_id", cart.SessionID)),
	}

	run.enter(models.StateValidatingForm)
	if fields := o.validator.Validate(billing); fields != nil {
		return o.invalid(run, "Please correct the highlighted fields", fields)
	}
	if cart.IsEmpty() {
		return o.invalid(run, "Your cart is empty", map[string]string{"cart": "is empty"})
	}
	run.lines = cart.Snapshot()

	run.enter(models.StateReservingStock)
	for _, line := range run.lines {
		res, err := o.reserve(ctx, run, line)
		if err != nil {
			return o.fail(ctx, run, err, &line)
		}
		run.reserved = append(run.reserved, priceLine(run.log, line, res))
		run.saga.Record(fmt.Sprintf("restore %d units to %s", line.Quantity, line.ProductID), func(ctx context.Context) error {
			if o.deps.Restorer == nil {
				return fmt.Errorf("no stock restorer configured")
			}
			return o.retryConflicts(ctx, run.log, line.ProductID, nil, func() error {
				return o.deps.Restorer.Restock(ctx, line.ProductID, line.Quantity)
			})
		})
	}

	run.enter(models.StateCreatingSession)
	items := make([]models.PaymentItem, 0, len(run.reserved))
	for _, l := range run.reserved {
		items = append(items, models.PaymentItem{Name: l.Name, Price: l.UnitPrice, Quantity: l.Quantity})
	}
	session, err := o.deps.Payments.CreateSession(ctx, items)
	if err == nil && (session == nil || session.SessionID == "") {
		err = apperrors.SessionCreationFailed("Payment provider returned no session", nil)
	}
	if err != nil {
		return o.fail(ctx, run, err, nil)
	}
	run.session = session
	run.saga.Record("expire session "+session.SessionID, func(ctx context.Context) error {
		if o.deps.Expirer == nil {
			return fmt.Errorf("no session expirer configured")
		}
		return o.deps.Expirer.ExpireSession(ctx, session.SessionID)
	})

	run.enter(models.StatePersistingOrder)
	order, err := o.deps.Orders.PlaceOrder(ctx, o.orderRequest(run, billing))
	if err != nil {
		return o.fail(ctx, run, err, nil)
	}
	run.order = order
	if charged, recorded := chargedMinorUnits(run.reserved), recordedMinorUnits(order); charged != recorded {
		return o.fail(ctx, run, apperrors.PersistenceFailed(
			fmt.Sprintf("Order total %.2f does not match the amount charged %.2f", float64(recorded)/100, float64(charged)/100), nil), nil)
	}

	run.enter(models.StateRedirectingToPayment)
	if session.URL == "" {
		return o.fail(ctx, run, apperrors.SessionCreationFailed("Payment session has no redirect URL", nil), nil)
	}

	cart.Clear()
	run.enter(models.StateSuccess)
	o.observe(run, "", "")
	run.log.Info("checkout succeeded",
		zap.String("order_id", order.OrderID),
		zap.String("session_id", session.SessionID),
		zap.Float64("total", order.TotalAmount),
	)
	return &models.CheckoutResult{
		State:       models.StateSuccess,
		SessionID:   session.SessionID,
		RedirectURL: session.URL,
		OrderID:     order.OrderID,
	}
}

// priceLine takes the name and price the reservation read from the catalog.
// The cart's cached values are only used when the stock service reports none.
func priceLine(log *zap.Logger, line models.CartLine, res *models.StockReservationResult) reservedLine {
	priced := reservedLine{
		ProductID: line.ProductID,
		Name:      line.Name,
		Quantity:  line.Quantity,
		UnitPrice: line.UnitPrice,
		ImageRef:  line.ImageRef,
	}
	if res == nil || res.Name == "" {
		return priced
	}
	if res.UnitPrice != line.UnitPrice {
		log.Info("cart price refreshed from catalog",
			zap.String("product_id", line.ProductID),
			zap.Float64("cart_price", line.UnitPrice),
			zap.Float64("catalog_price", res.UnitPrice),
		)
	}
	priced.Name = res.Name
	priced.UnitPrice = res.UnitPrice
	return priced
}

func chargedMinorUnits(lines []reservedLine) int64 {
	var total int64
	for _, l := range lines {
		total += ToMinorUnits(l.UnitPrice) * int64(l.Quantity)
	}
	return total
}

func recordedMinorUnits(order *models.Order) int64 {
	var total int64
	for _, it := range order.Items {
		total += ToMinorUnits(it.UnitPrice) * int64(it.Quantity)
	}
	return total
}

func (o *CheckoutOrchestrator) orderRequest(run *checkoutRun, billing models.BillingDetails) *models.CreateOrderRequest {
	products := make([]models.OrderProductInput, 0, len(run.reserved))
	var total float64
	for _, l := range run.reserved {
		price := l.UnitPrice
		total += models.RoundMoney(price * float64(l.Quantity))
		products = append(products, models.OrderProductInput{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: &price,
			Quantity:  l.Quantity,
			ImageRef:  l.ImageRef,
		})
	}
	return &models.CreateOrderRequest{
		FullName:         billing.FullName,
		Email:            billing.Email,
		Address:          billing.Address,
		Phone:            billing.Phone,
		City:             billing.City,
		TotalAmount:      models.RoundMoney(total),
		PaymentSessionID: run.session.SessionID,
		Products:         products,
	}
}

// reserve calls the stock service for one line, retrying only lost races.
func (o *CheckoutOrchestrator) reserve(ctx context.Context, run *checkoutRun, line models.CartLine) (*models.StockReservationResult, error) {
	var res *models.StockReservationResult
	err := o.retryConflicts(ctx, run.log, line.ProductID, func() { o.countReservation("conflict_retry") }, func() error {
		var err error
		res, err = o.deps.Stock.Reserve(ctx, line.ProductID, line.Quantity)
		return err
	})
	if err != nil {
		o.countReservation(string(apperrors.KindOf(err)))
		return nil, err
	}
	o.countReservation("ok")
	return res, nil
}

// retryConflicts runs op until it succeeds, fails with anything other than a
// concurrency conflict, or has used RetryAttempts attempts. Backoff doubles
// from RetryBackoff. onRetry, if set, runs before each backoff.
func (o *CheckoutOrchestrator) retryConflicts(ctx context.Context, log *zap.Logger, productID string, onRetry func(), op func() error) error {
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if apperrors.KindOf(err) != apperrors.KindConcurrencyConflict || attempt >= o.cfg.RetryAttempts {
			return err
		}

		if onRetry != nil {
			onRetry()
		}
		delay := o.cfg.RetryBackoff << (attempt - 1)
		log.Warn("stock write conflict, retrying",
			zap.String("product_id", productID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
		)
		if err := o.sleep(ctx, delay); err != nil {
			return apperrors.Internal("Checkout cancelled", err)
		}
	}
}

func (o *CheckoutOrchestrator) invalid(run *checkoutRun, msg string, fields map[string]string) *models.CheckoutResult {
	o.observe(run, models.StateValidatingForm, apperrors.KindValidation)
	return &models.CheckoutResult{
		State:       models.StateValidatingForm,
		FieldErrors: fields,
		Step:        models.StateValidatingForm,
		Kind:        string(apperrors.KindValidation),
		Message:     msg,
	}
}

// fail ends the run in Failed. Side effects already applied are either
// compensated or reported for manual reconciliation.
func (o *CheckoutOrchestrator) fail(ctx context.Context, run *checkoutRun, err error, line *models.CartLine) *models.CheckoutResult {
	step := run.state
	kind := apperrors.KindOf(err)
	result := &models.CheckoutResult{
		State:   models.StateFailed,
		Step:    step,
		Kind:    string(kind),
		Message: fmt.Sprintf("%s: %s", step, apperrors.MessageOf(err)),
	}
	if line != nil {
		result.ProductID = line.ProductID
		result.ProductName = line.Name
	}
	if run.order != nil {
		result.OrderID = run.order.OrderID
	}

	fields := []zap.Field{
		zap.String("step", string(step)),
		zap.String("kind", string(kind)),
		zap.Error(err),
	}
	if line != nil {
		fields = append(fields, zap.String("product_id", line.ProductID))
	}
	run.log.Warn("checkout failed", fields...)

	if run.saga.Len() > 0 {
		compensated := false
		if o.cfg.Compensate {
			compensated = run.saga.Unwind(context.WithoutCancel(ctx), run.log) == 0
		}
		if !compensated {
			o.reconcile(ctx, run, step, kind)
		}
	}

	run.enter(models.StateFailed)
	o.observe(run, step, kind)
	return result
}

type reconciliationEvent struct {
	Type        string         `json:"type"`
	Step        string         `json:"step"`
	Kind        string         `json:"kind"`
	SessionID   string         `json:"sessionId,omitempty"`
	OrderID     string         `json:"orderId,omitempty"`
	Reserved    []reservedLine `json:"reserved"`
	Saga        []SagaStep     `json:"saga,omitempty"`
	Compensated bool           `json:"compensated"`
	OccurredAt  time.Time      `json:"occurredAt"`
}

// reconcile surfaces side effects that outlived a failed checkout.
func (o *CheckoutOrchestrator) reconcile(ctx context.Context, run *checkoutRun, step models.CheckoutState, kind apperrors.Kind) {
	evt := reconciliationEvent{
		Type:       EventReconciliationRequired,
		Step:       string(step),
		Kind:       string(kind),
		Reserved:   run.reserved,
		OccurredAt: time.Now().UTC(),
	}
	if run.session != nil {
		evt.SessionID = run.session.SessionID
	}
	if run.order != nil {
		evt.OrderID = run.order.OrderID
	}
	if o.cfg.Compensate {
		evt.Saga = run.saga.Steps()
	}

	run.log.Error("checkout left side effects behind, manual reconciliation required",
		zap.String("step", evt.Step),
		zap.String("session_id", evt.SessionID),
		zap.String("order_id", evt.OrderID),
		zap.Any("reserved", evt.Reserved),
	)
	if o.deps.Metrics != nil {
		o.deps.Metrics.Reconciliation.WithLabelValues(evt.Step).Inc()
	}

	if o.deps.Events == nil || o.cfg.EventsTopicARN == "" {
		return
	}
	payload, _ := json.Marshal(evt)
	if err := o.deps.Events.PublishEvent(context.WithoutCancel(ctx), o.cfg.EventsTopicARN, EventReconciliationRequired, payload); err != nil {
		run.log.Error("failed to publish reconciliation event", zap.Error(err))
	}
}

func (o *CheckoutOrchestrator) observe(run *checkoutRun, step models.CheckoutState, kind apperrors.Kind) {
	if o.deps.Metrics == nil {
		return
	}
	state := run.state
	o.deps.Metrics.Outcomes.WithLabelValues(string(state), string(step), string(kind)).Inc()
	o.deps.Metrics.DurationMS.WithLabelValues(string(state)).Observe(float64(time.Since(run.started).Milliseconds()))
}

func (o *CheckoutOrchestrator) countReservation(result string) {
	if o.deps.Metrics != nil {
		o.deps.Metrics.Reservations.WithLabelValues(result).Inc()
	}
}
