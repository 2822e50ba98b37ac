package models

import "time"

const (
	ChannelEmail = "email"

	StatusSent   = "sent"
	StatusFailed = "failed"

	TypeOrderConfirmation = "order_confirmation"
)

type NotificationLog struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderID    string    `json:"order_id,omitempty" gorm:"index"`
	Recipient  string    `json:"recipient"`
	Type       string    `json:"type"`
	Channel    string    `json:"channel"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	RetryCount int       `json:"retry_count"`
	MessageID  string    `json:"message_id,omitempty"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

type NotificationFilter struct {
	OrderID  string
	Status   string
	Channel  string
	Page     int
	PageSize int
}

// OrderConfirmationRequest is the payload of a confirmation email.
type OrderConfirmationRequest struct {
	Email      string        `json:"email"`
	Name       string        `json:"name"`
	CartItems  []PaymentItem `json:"cartItems"`
	TotalPrice float64       `json:"totalPrice"`
	OrderID    string        `json:"orderId,omitempty"`
}

// NotificationJob is the message put on the notification queue.
type NotificationJob struct {
	Type    string                   `json:"type"`
	Payload OrderConfirmationRequest `json:"payload"`
}
