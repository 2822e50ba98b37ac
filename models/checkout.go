package models

// CheckoutState is a step of the checkout state machine.
type CheckoutState string

const (
	StateIdle                 CheckoutState = "Idle"
	StateValidatingForm       CheckoutState = "ValidatingForm"
	StateReservingStock       CheckoutState = "ReservingStock"
	StateCreatingSession      CheckoutState = "CreatingSession"
	StatePersistingOrder      CheckoutState = "PersistingOrder"
	StateRedirectingToPayment CheckoutState = "RedirectingToPayment"
	StateSuccess              CheckoutState = "Success"
	StateFailed               CheckoutState = "Failed"
)

// BillingDetails is the checkout form.
type BillingDetails struct {
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Address  string `json:"address" validate:"required"`
	Phone    string `json:"phone" validate:"required,phonedigits"`
	City     string `json:"city"`
}

type CheckoutRequest struct {
	CartSessionID string         `json:"cartSessionId" binding:"required"`
	Billing       BillingDetails `json:"billing"`
}

// CheckoutResult is what a checkout run reports back to the storefront.
type CheckoutResult struct {
	State       CheckoutState     `json:"state"`
	SessionID   string            `json:"sessionId,omitempty"`
	RedirectURL string            `json:"redirectUrl,omitempty"`
	OrderID     string            `json:"orderId,omitempty"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
	Step        CheckoutState     `json:"step,omitempty"`
	Kind        string            `json:"kind,omitempty"`
	ProductID   string            `json:"productId,omitempty"`
	ProductName string            `json:"productName,omitempty"`
	Message     string            `json:"message,omitempty"`
}

type StockReservationRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// StockReservationResult carries the catalog name and effective unit price
// read by the reservation, so the caller can charge what was reserved.
type StockReservationResult struct {
	ProductID string  `json:"productId"`
	NewStock  int     `json:"newStock"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
}
