package models

// PaymentItem is a priced line handed to the payment provider, in major
// currency units.
type PaymentItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// PaymentLineItem is a PaymentItem converted to minor units.
type PaymentLineItem struct {
	Name       string `json:"name"`
	UnitAmount int64  `json:"unitAmount"`
	Quantity   int64  `json:"quantity"`
}

type PaymentSession struct {
	SessionID  string            `json:"sessionId"`
	URL        string            `json:"url,omitempty"`
	Currency   string            `json:"currency"`
	LineItems  []PaymentLineItem `json:"lineItems"`
	SuccessURL string            `json:"successUrl"`
	CancelURL  string            `json:"cancelUrl"`
}

type CreateSessionRequest struct {
	CartItems []PaymentItem `json:"cartItems"`
}
