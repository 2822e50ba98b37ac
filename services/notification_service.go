package services

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	apperrors "github.com/avion-commerce/storefront-backend/common/errors"
	"github.com/avion-commerce/storefront-backend/models"
	"github.com/avion-commerce/storefront-backend/repository"
	"github.com/avion-commerce/storefront-backend/sender"
	"go.uber.org/zap"
)

//go:embed templates/order_confirmation.html
var orderConfirmationHTML string

const (
	OrderConfirmationSubject = "Thank you for your purchase!"
	sendAttempts             = 3
)

type confirmationView struct {
	Name    string
	OrderID string
	Items   []models.PaymentItem
	Total   float64
}

type NotificationService struct {
	repo        repository.NotificationRepository
	emailSender sender.EmailSender
	tmpl        *template.Template
	retryDelay  time.Duration
	logger      *zap.Logger
}

func NewNotificationService(repo repository.NotificationRepository, emailSender sender.EmailSender, logger *zap.Logger) (*NotificationService, error) {
	tmpl, err := template.New("order_confirmation").
		Funcs(template.FuncMap{"money": func(v float64) string { return fmt.Sprintf("%.2f", v) }}).
		Parse(orderConfirmationHTML)
	if err != nil {
		return nil, fmt.Errorf("failed to parse order confirmation template: %w", err)
	}
	return &NotificationService{
		repo:        repo,
		emailSender: emailSender,
		tmpl:        tmpl,
		retryDelay:  time.Second,
		logger:      logger,
	}, nil
}

// SetRetryDelay changes the base of the linear backoff between attempts.
func (s *NotificationService) SetRetryDelay(d time.Duration) {
	s.retryDelay = d
}

// Render produces the itemized confirmation body for req.
func (s *NotificationService) Render(req *models.OrderConfirmationRequest) (string, error) {
	var buf bytes.Buffer
	err := s.tmpl.Execute(&buf, confirmationView{
		Name:    req.Name,
		OrderID: req.OrderID,
		Items:   req.CartItems,
		Total:   req.TotalPrice,
	})
	if err != nil {
		return "", fmt.Errorf("template render failed: %w", err)
	}
	return buf.String(), nil
}

// SendOrderConfirmation emails the itemized confirmation. Failures are
// logged and returned as NotificationFailed; nothing else is affected.
func (s *NotificationService) SendOrderConfirmation(ctx context.Context, req *models.OrderConfirmationRequest) error {
	if strings.TrimSpace(req.Email) == "" {
		return apperrors.Validation("email is required", map[string]string{"email": "required"})
	}

	body, err := s.Render(req)
	if err != nil {
		s.logger.Error("failed to render confirmation", zap.Error(err))
		return apperrors.NotificationFailed("Failed to send email", err)
	}

	if err := s.sendWithRetry(ctx, req, body); err != nil {
		return apperrors.NotificationFailed("Failed to send email", err)
	}
	return nil
}

func (s *NotificationService) sendWithRetry(ctx context.Context, req *models.OrderConfirmationRequest, body string) error {
	var lastErr error
	var messageID string
	attempts := 0

	for attempt := 0; attempt < sendAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(time.Duration(attempt) * s.retryDelay):
			}
			if ctx.Err() != nil {
				break
			}
		}

		attempts++
		var result sender.SendResult
		result, lastErr = s.emailSender.SendEmail(ctx, req.Email, OrderConfirmationSubject, body)
		if lastErr == nil {
			messageID = result.MessageID
			break
		}

		s.logger.Warn("send attempt failed",
			zap.String("channel", models.ChannelEmail),
			zap.String("order_id", req.OrderID),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	status := models.StatusSent
	errMsg := ""
	if lastErr != nil {
		status = models.StatusFailed
		errMsg = lastErr.Error()
	}

	s.logger.Info("notification processed",
		zap.String("type", models.TypeOrderConfirmation),
		zap.String("order_id", req.OrderID),
		zap.String("status", status),
		zap.String("message_id", messageID),
	)

	entry := &models.NotificationLog{
		OrderID:    req.OrderID,
		Recipient:  req.Email,
		Type:       models.TypeOrderConfirmation,
		Channel:    models.ChannelEmail,
		Status:     status,
		Error:      errMsg,
		RetryCount: attempts - 1,
		MessageID:  messageID,
	}
	if err := s.repo.SaveLog(ctx, entry); err != nil {
		s.logger.Error("failed to save notification log", zap.Error(err))
	}
	return lastErr
}

func (s *NotificationService) GetLogs(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationLog, int64, error) {
	logs, total, err := s.repo.GetLogs(ctx, filter)
	if err != nil {
		return nil, 0, apperrors.Internal("Failed to load notification logs", err)
	}
	return logs, total, nil
}
