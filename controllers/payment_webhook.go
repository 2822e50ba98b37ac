package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	apperrors "github.com/avion-commerce/storefront-backend/common/errors"
	"github.com/avion-commerce/storefront-backend/models"
	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
)

const maxWebhookBody = int64(65536)

type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (stripe.Event, error)
}

// OrderStatusUpdater moves orders located by payment session id.
type OrderStatusUpdater interface {
	MarkPaid(ctx context.Context, sessionID string) (*models.Order, bool, error)
	MarkCancelled(ctx context.Context, sessionID string) (*models.Order, bool, error)
}

// JobQueue is satisfied by the SQS queue wrapper.
type JobQueue interface {
	SendMessage(ctx context.Context, body string) error
}

type ConfirmationSender interface {
	SendOrderConfirmation(ctx context.Context, req *models.OrderConfirmationRequest) error
}

type WebhookController struct {
	parser   WebhookParser
	orders   OrderStatusUpdater
	jobs     JobQueue
	notifier ConfirmationSender
	logger   *zap.Logger
}

// NewWebhookController wires POST /webhooks/stripe. When jobs is nil the
// confirmation email is sent inline through notifier.
func NewWebhookController(parser WebhookParser, orders OrderStatusUpdater, jobs JobQueue, notifier ConfirmationSender, logger *zap.Logger) *WebhookController {
	return &WebhookController{parser: parser, orders: orders, jobs: jobs, notifier: notifier, logger: logger}
}

// StripeWebhook receives and dispatches Stripe webhook events.
func (wc *WebhookController) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook"})
		return
	}

	event, err := wc.parser.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		wc.logger.Warn("Stripe webhook signature verification failed", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook"})
		return
	}

	wc.logger.Info("Processing Stripe webhook",
		zap.String("event_type", string(event.Type)),
		zap.String("event_id", event.ID),
	)

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		err = wc.handleCheckoutCompleted(c.Request.Context(), event)
	case stripe.EventTypeCheckoutSessionExpired:
		err = wc.handleCheckoutExpired(c.Request.Context(), event)
	default:
		wc.logger.Info("Unhandled webhook event type", zap.String("event_type", string(event.Type)))
	}

	// Unknown sessions are acknowledged so Stripe stops retrying them;
	// storage failures are not.
	if err != nil && apperrors.KindOf(err) != apperrors.KindNotFound {
		wc.logger.Error("Failed to handle Stripe webhook", zap.String("event_id", event.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook handling failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

func decodeSession(event stripe.Event) (*stripe.CheckoutSession, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, apperrors.Validation("malformed checkout session", nil)
	}
	return &sess, nil
}

func (wc *WebhookController) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	sess, err := decodeSession(event)
	if err != nil {
		wc.logger.Error("Failed to unmarshal checkout session", zap.Error(err))
		return nil
	}

	order, changed, err := wc.orders.MarkPaid(ctx, sess.ID)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			wc.logger.Warn("No order for completed checkout session", zap.String("session_id", sess.ID))
		}
		return err
	}
	if !changed {
		wc.logger.Info("Skipping duplicate checkout webhook",
			zap.String("order_id", order.OrderID),
			zap.String("status", string(order.Status)),
		)
		return nil
	}

	wc.dispatchConfirmation(ctx, confirmationFor(order, sess))
	return nil
}

func (wc *WebhookController) handleCheckoutExpired(ctx context.Context, event stripe.Event) error {
	sess, err := decodeSession(event)
	if err != nil {
		wc.logger.Error("Failed to unmarshal checkout session", zap.Error(err))
		return nil
	}
	_, _, err = wc.orders.MarkCancelled(ctx, sess.ID)
	return err
}

func confirmationFor(order *models.Order, sess *stripe.CheckoutSession) *models.OrderConfirmationRequest {
	req := &models.OrderConfirmationRequest{
		Email:      order.ContactEmail,
		Name:       order.CustomerName,
		TotalPrice: order.TotalAmount,
		OrderID:    order.OrderID,
	}
	if req.Name == "" && sess.CustomerDetails != nil {
		req.Name = sess.CustomerDetails.Name
	}
	if req.Name == "" {
		req.Name = order.ContactEmail
	}
	for _, it := range order.Items {
		req.CartItems = append(req.CartItems, models.PaymentItem{Name: it.Name, Price: it.UnitPrice, Quantity: it.Quantity})
	}
	return req
}

// dispatchConfirmation queues the email, falling back to sending it inline.
// Failures are logged only; the order is already paid.
func (wc *WebhookController) dispatchConfirmation(ctx context.Context, req *models.OrderConfirmationRequest) {
	log := wc.logger.With(zap.String("order_id", req.OrderID))
	if wc.jobs != nil {
		body, _ := json.Marshal(models.NotificationJob{Type: models.TypeOrderConfirmation, Payload: *req})
		err := wc.jobs.SendMessage(ctx, string(body))
		if err == nil {
			log.Info("order confirmation queued")
			return
		}
		log.Error("failed to queue order confirmation, sending inline", zap.Error(err))
	}
	if wc.notifier == nil {
		log.Warn("no notification path configured, confirmation skipped")
		return
	}
	if err := wc.notifier.SendOrderConfirmation(context.WithoutCancel(ctx), req); err != nil {
		log.Error("order confirmation not sent", zap.Error(err))
	}
}
