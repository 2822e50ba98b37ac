package consumer

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/avion-commerce/storefront-backend/common/errors"
	awspkg "github.com/avion-commerce/storefront-backend/pkg/aws"
	"github.com/avion-commerce/storefront-backend/models"
	"go.uber.org/zap"
)

// Queue is the subset of the SQS wrapper the consumer needs.
type Queue interface {
	Receive(ctx context.Context, waitSeconds int32) ([]awspkg.Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// ConfirmationSender delivers order confirmation emails.
type ConfirmationSender interface {
	SendOrderConfirmation(ctx context.Context, req *models.OrderConfirmationRequest) error
}

// SQSConsumer drains the notification queue and sends the emails it
// describes. Messages are deleted only after a successful send, so failed
// sends come back after the visibility timeout.
type SQSConsumer struct {
	queue      Queue
	sender     ConfirmationSender
	logger     *zap.Logger
	waitTime   int32
	errBackoff time.Duration
}

func NewSQSConsumer(queue Queue, sender ConfirmationSender, logger *zap.Logger) *SQSConsumer {
	return &SQSConsumer{
		queue:      queue,
		sender:     sender,
		logger:     logger,
		waitTime:   5, // long polling
		errBackoff: 5 * time.Second,
	}
}

func (c *SQSConsumer) Start(ctx context.Context) {
	c.logger.Info("SQS consumer started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("SQS consumer shutting down")
			return
		default:
			c.Poll(ctx)
		}
	}
}

// Poll receives one batch and processes every message in it.
func (c *SQSConsumer) Poll(ctx context.Context) {
	msgs, err := c.queue.Receive(ctx, c.waitTime)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Error("SQS receive error", zap.Error(err))
		select {
		case <-ctx.Done():
		case <-time.After(c.errBackoff):
		}
		return
	}

	for _, msg := range msgs {
		c.processMessage(ctx, msg)
	}
}

// snsEnvelope unwraps the SNS → SQS message wrapper
type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

func (c *SQSConsumer) processMessage(ctx context.Context, msg awspkg.Message) {
	log := c.logger.With(zap.String("message_id", msg.ID))
	if msg.Body == "" {
		log.Error("received empty SQS message body")
		return
	}

	body := []byte(msg.Body)
	var envelope snsEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Type == "Notification" && envelope.Message != "" {
		body = []byte(envelope.Message)
	}

	var job models.NotificationJob
	if err := json.Unmarshal(body, &job); err != nil {
		log.Error("failed to unmarshal notification job", zap.Error(err))
		c.deleteMessage(ctx, msg.ReceiptHandle) // unparseable, would loop forever
		return
	}
	if job.Type != models.TypeOrderConfirmation {
		log.Warn("skipping unknown notification type", zap.String("type", job.Type))
		c.deleteMessage(ctx, msg.ReceiptHandle)
		return
	}

	if err := c.sender.SendOrderConfirmation(ctx, &job.Payload); err != nil {
		log.Error("failed to process notification job",
			zap.String("order_id", job.Payload.OrderID),
			zap.String("kind", string(apperrors.KindOf(err))),
			zap.Error(err),
		)
		if !apperrors.Retryable(err) {
			c.deleteMessage(ctx, msg.ReceiptHandle)
		}
		return
	}
	c.deleteMessage(ctx, msg.ReceiptHandle)
}

func (c *SQSConsumer) deleteMessage(ctx context.Context, receiptHandle string) {
	if err := c.queue.Delete(ctx, receiptHandle); err != nil {
		c.logger.Error("failed to delete SQS message", zap.Error(err))
	}
}
