package services

import (
	"context"
	"fmt"

	"github.com/avion-commerce/storefront-backend/models"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"github.com/stripe/stripe-go/v80/webhook"
)

// StripeClient is the Stripe-hosted checkout gateway.
type StripeClient struct {
	WebhookKey string
}

func NewStripeClient(secretKey, webhookKey string) *StripeClient {
	stripe.Key = secretKey
	return &StripeClient{WebhookKey: webhookKey}
}

func (s *StripeClient) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSessionResponse, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
	}
	params.Context = ctx
	for _, li := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(li.Name),
				},
				UnitAmount: stripe.Int64(li.UnitAmount),
			},
			Quantity: stripe.Int64(li.Quantity),
		})
	}
	if len(req.Metadata) > 0 {
		params.Metadata = req.Metadata
	}

	sess, err := session.New(params)
	if err != nil {
		return nil, err
	}
	return &CheckoutSessionResponse{ID: sess.ID, URL: sess.URL}, nil
}

func (s *StripeClient) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	_, err := session.Expire(sessionID, params)
	return err
}

// ParseWebhook verifies the Stripe-Signature header against the raw payload.
func (s *StripeClient) ParseWebhook(payload []byte, signature string) (stripe.Event, error) {
	if s.WebhookKey == "" {
		return stripe.Event{}, fmt.Errorf("stripe webhook secret not configured")
	}
	return webhook.ConstructEventWithOptions(payload, signature, s.WebhookKey, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

// CheckoutSessionRequest is a provider-neutral hosted checkout request.
type CheckoutSessionRequest struct {
	LineItems  []models.PaymentLineItem
	Currency   string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

type CheckoutSessionResponse struct {
	ID  string
	URL string
}
