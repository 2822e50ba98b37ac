package services

import (
	"context"
	"errors"
	"math"
	"strings"

	apperrors "github.com/avion-commerce/storefront-backend/common/errors"
	"github.com/avion-commerce/storefront-backend/models"
	"github.com/avion-commerce/storefront-backend/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CustomerStore interface {
	FindByEmailAndName(ctx context.Context, email, fullName string) (*models.Customer, error)
	Create(ctx context.Context, c *models.Customer) error
}

type OrderStore interface {
	LatestOrderID(ctx context.Context) (string, error)
	Create(ctx context.Context, o *models.Order) error
	FindByOrderID(ctx context.Context, orderID string) (*models.Order, error)
	FindByPaymentSessionID(ctx context.Context, sessionID string) (*models.Order, error)
	UpdateStatus(ctx context.Context, id string, from, to models.OrderStatus) error
}

type ProductLookup interface {
	FindByID(ctx context.Context, id string) (repository.CatalogItem, error)
}

// orderIDAttempts bounds retries when two writers pick the same order id.
const orderIDAttempts = 3

// totalTolerance is the largest client/server total difference accepted
// silently.
const totalTolerance = 0.005

type OrderService struct {
	customers CustomerStore
	orders    OrderStore
	catalog   ProductLookup
	logger    *zap.Logger
}

func NewOrderService(customers CustomerStore, orders OrderStore, catalog ProductLookup, logger *zap.Logger) *OrderService {
	return &OrderService{customers: customers, orders: orders, catalog: catalog, logger: logger}
}

// PlaceOrder records a pending order for req, creating the customer on
// first purchase.
func (s *OrderService) PlaceOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error) {
	if err := validateOrderRequest(req); err != nil {
		return nil, err
	}

	customer, err := s.findOrCreateCustomer(ctx, req)
	if err != nil {
		return nil, err
	}

	items, total, err := s.buildItems(ctx, req.Products)
	if err != nil {
		return nil, err
	}
	if req.TotalAmount != 0 && math.Abs(req.TotalAmount-total) > totalTolerance {
		s.logger.Warn("client total differs from computed total",
			zap.Float64("client_total", req.TotalAmount),
			zap.Float64("computed_total", total),
			zap.String("email", req.Email),
		)
	}

	order := &models.Order{
		CustomerRef:      customer.ID,
		CustomerName:     customer.FullName,
		Items:            items,
		TotalAmount:      total,
		ShippingAddress:  req.Address,
		City:             req.City,
		ContactEmail:     req.Email,
		ContactPhone:     req.Phone,
		PaymentSessionID: req.PaymentSessionID,
		Status:           models.OrderStatusPending,
	}

	for attempt := 1; ; attempt++ {
		last, err := s.orders.LatestOrderID(ctx)
		if err != nil {
			s.logger.Error("failed to read latest order", zap.Error(err))
			return nil, apperrors.PersistenceFailed("Failed to save order", err)
		}
		order.OrderID = NextOrderID(last)

		err = s.orders.Create(ctx, order)
		if err == nil {
			break
		}
		if errors.Is(err, repository.ErrDuplicateKey) && attempt < orderIDAttempts {
			s.logger.Warn("order id taken, retrying", zap.String("order_id", order.OrderID), zap.Int("attempt", attempt))
			order.ID = ""
			continue
		}
		s.logger.Error("failed to create order",
			zap.String("order_id", order.OrderID),
			zap.String("payment_session_id", req.PaymentSessionID),
			zap.Error(err),
		)
		return nil, apperrors.PersistenceFailed("Failed to save order", err)
	}

	s.logger.Info("order created",
		zap.String("order_id", order.OrderID),
		zap.String("customer_id", customer.ID),
		zap.Float64("total", total),
		zap.Int("items", len(items)),
	)
	return order, nil
}

func validateOrderRequest(req *models.CreateOrderRequest) error {
	fields := map[string]string{}
	if strings.TrimSpace(req.FullName) == "" {
		fields["fullName"] = "required"
	}
	if strings.TrimSpace(req.Email) == "" {
		fields["email"] = "required"
	}
	if strings.TrimSpace(req.Address) == "" {
		fields["address"] = "required"
	}
	if strings.TrimSpace(req.Phone) == "" {
		fields["phone"] = "required"
	}
	if len(req.Products) == 0 {
		fields["products"] = "at least one product is required"
	}
	for _, p := range req.Products {
		if p.Quantity < 1 {
			fields["products"] = "every product needs a quantity of at least 1"
			break
		}
	}
	if len(fields) > 0 {
		return apperrors.Validation("Missing required fields", fields)
	}
	return nil
}

func (s *OrderService) findOrCreateCustomer(ctx context.Context, req *models.CreateOrderRequest) (*models.Customer, error) {
	customer, err := s.customers.FindByEmailAndName(ctx, req.Email, req.FullName)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("customer lookup failed", zap.String("email", req.Email), zap.Error(err))
		return nil, apperrors.PersistenceFailed("Failed to save order", err)
	}

	customer = &models.Customer{
		FullName:    req.FullName,
		Email:       req.Email,
		PhoneNumber: req.Phone,
		Address:     req.Address,
		City:        req.City,
	}
	err = s.customers.Create(ctx, customer)
	if errors.Is(err, repository.ErrDuplicateKey) {
		existing, findErr := s.customers.FindByEmailAndName(ctx, req.Email, req.FullName)
		if findErr == nil {
			s.logger.Info("customer created concurrently, reusing it", zap.String("customer_id", existing.ID))
			return existing, nil
		}
		err = findErr
	}
	if err != nil {
		s.logger.Error("failed to create customer", zap.String("email", req.Email), zap.Error(err))
		return nil, apperrors.PersistenceFailed("Failed to save order", err)
	}
	s.logger.Info("customer created", zap.String("customer_id", customer.ID))
	return customer, nil
}

// buildItems prices every line from the catalog. Client-supplied names and
// prices are only used for products the catalog no longer resolves.
func (s *OrderService) buildItems(ctx context.Context, products []models.OrderProductInput) ([]models.OrderItem, float64, error) {
	items := make([]models.OrderItem, 0, len(products))
	var total float64
	for _, p := range products {
		name, unitPrice, imageRef := p.Name, 0.0, p.ImageRef

		item, err := s.catalog.FindByID(ctx, p.ProductID)
		switch {
		case err == nil:
			prod := item.Product()
			name, unitPrice = prod.Name, prod.EffectivePrice()
			if imageRef == "" {
				imageRef = prod.ImageRef
			}
		case errors.Is(err, repository.ErrNotFound):
			if p.UnitPrice == nil || name == "" {
				return nil, 0, apperrors.Validation("Unknown product", map[string]string{"products": "unknown product " + p.ProductID})
			}
			unitPrice = *p.UnitPrice
			s.logger.Warn("pricing order line from client values", zap.String("product_id", p.ProductID))
		default:
			s.logger.Error("catalog lookup failed", zap.String("product_id", p.ProductID), zap.Error(err))
			return nil, 0, apperrors.PersistenceFailed("Failed to save order", err)
		}

		line := models.RoundMoney(unitPrice * float64(p.Quantity))
		total += line
		items = append(items, models.OrderItem{
			Key:        uuid.NewString(),
			ProductRef: p.ProductID,
			Name:       name,
			ImageRef:   imageRef,
			Quantity:   p.Quantity,
			UnitPrice:  unitPrice,
			TotalPrice: line,
		})
	}
	return items, models.RoundMoney(total), nil
}

// GetOrder returns an order by its human-readable id.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	o, err := s.orders.FindByOrderID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Order not found")
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to load order", err)
	}
	return o, nil
}

// MarkPaid moves the order created for sessionID to paid. It reports
// whether this call made the change, so duplicate webhooks are no-ops.
func (s *OrderService) MarkPaid(ctx context.Context, sessionID string) (*models.Order, bool, error) {
	return s.transition(ctx, sessionID, models.OrderStatusPaid)
}

func (s *OrderService) MarkCancelled(ctx context.Context, sessionID string) (*models.Order, bool, error) {
	return s.transition(ctx, sessionID, models.OrderStatusCancelled)
}

func (s *OrderService) transition(ctx context.Context, sessionID string, to models.OrderStatus) (*models.Order, bool, error) {
	o, err := s.orders.FindByPaymentSessionID(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, apperrors.NotFound("Order not found for payment session")
	}
	if err != nil {
		return nil, false, apperrors.Internal("Failed to load order", err)
	}

	if !o.Status.CanTransitionTo(to) {
		s.logger.Info("skipping order status change",
			zap.String("order_id", o.OrderID),
			zap.String("status", string(o.Status)),
			zap.String("requested", string(to)),
		)
		return o, false, nil
	}

	err = s.orders.UpdateStatus(ctx, o.ID, o.Status, to)
	if errors.Is(err, repository.ErrRevisionMismatch) {
		s.logger.Info("order status changed concurrently", zap.String("order_id", o.OrderID))
		return o, false, nil
	}
	if err != nil {
		s.logger.Error("failed to update order status", zap.String("order_id", o.OrderID), zap.Error(err))
		return nil, false, apperrors.PersistenceFailed("Failed to update order", err)
	}

	s.logger.Info("order status updated",
		zap.String("order_id", o.OrderID),
		zap.String("from", string(o.Status)),
		zap.String("to", string(to)),
	)
	o.Status = to
	return o, true, nil
}
