package models

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusPaid, OrderStatusCancelled},
}

// CanTransitionTo reports whether an order in status s may move to next.
// Paid and cancelled are terminal.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrderItem is a line of a persisted order.
type OrderItem struct {
	Key        string  `json:"key" bson:"_key"`
	ProductRef string  `json:"productRef" bson:"productRef"`
	Name       string  `json:"name" bson:"name"`
	ImageRef   string  `json:"imageRef,omitempty" bson:"imageRef,omitempty"`
	Quantity   int     `json:"quantity" bson:"quantity"`
	UnitPrice  float64 `json:"unitPrice" bson:"unitPrice"`
	TotalPrice float64 `json:"totalPrice" bson:"totalPrice"`
}

type Order struct {
	ID               string      `json:"id" bson:"_id"`
	OrderID          string      `json:"orderId" bson:"orderId"`
	CustomerRef      string      `json:"customerRef" bson:"customerRef"`
	CustomerName     string      `json:"customerName,omitempty" bson:"customerName,omitempty"`
	Items            []OrderItem `json:"items" bson:"items"`
	TotalAmount      float64     `json:"totalAmount" bson:"totalAmount"`
	ShippingAddress  string      `json:"shippingAddress" bson:"shippingAddress"`
	City             string      `json:"city,omitempty" bson:"city,omitempty"`
	ContactEmail     string      `json:"contactEmail" bson:"contactEmail"`
	ContactPhone     string      `json:"contactPhone" bson:"contactPhone"`
	PaymentSessionID string      `json:"paymentSessionId,omitempty" bson:"paymentSessionId,omitempty"`
	Status           OrderStatus `json:"status" bson:"status"`
	CreatedAt        time.Time   `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt" bson:"updatedAt"`
}

// OrderProductInput is one product line of an order request. Name and
// UnitPrice are fallbacks used only when the product cannot be resolved in
// the catalog.
type OrderProductInput struct {
	ProductID string   `json:"productId"`
	Name      string   `json:"name"`
	UnitPrice *float64 `json:"unitPrice"`
	Quantity  int      `json:"quantity"`
	ImageRef  string   `json:"imageRef"`
}

type CreateOrderRequest struct {
	FullName         string              `json:"fullName"`
	Email            string              `json:"email"`
	Address          string              `json:"address"`
	Phone            string              `json:"phone"`
	City             string              `json:"city"`
	TotalAmount      float64             `json:"totalAmount"`
	PaymentSessionID string              `json:"paymentSessionId"`
	Products         []OrderProductInput `json:"products"`
}
