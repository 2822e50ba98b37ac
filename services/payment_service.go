package services

import (
	"context"
	"fmt"
	"math"
	"strings"

	apperrors "github.com/avion-commerce/storefront-backend/common/errors"
	"github.com/avion-commerce/storefront-backend/models"
	"go.uber.org/zap"
)

// PaymentGateway creates and expires hosted checkout sessions.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSessionResponse, error)
	ExpireCheckoutSession(ctx context.Context, sessionID string) error
}

type PaymentService struct {
	gateway    PaymentGateway
	currency   string
	successURL string
	cancelURL  string
	logger     *zap.Logger
}

func NewPaymentService(gateway PaymentGateway, currency, successURL, cancelURL string, logger *zap.Logger) *PaymentService {
	if currency == "" {
		currency = "usd"
	}
	return &PaymentService{
		gateway:    gateway,
		currency:   strings.ToLower(currency),
		successURL: successURL,
		cancelURL:  cancelURL,
		logger:     logger,
	}
}

// ToMinorUnits converts a major-unit price to integer cents, rounding half
// away from zero.
func ToMinorUnits(price float64) int64 {
	return int64(math.Round(price * 100))
}

// ToLineItems converts priced items to minor units and rejects lists the
// provider would refuse anyway.
func ToLineItems(items []models.PaymentItem) ([]models.PaymentLineItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("no items to charge")
	}

	lines := make([]models.PaymentLineItem, 0, len(items))
	var total int64
	for i, it := range items {
		if strings.TrimSpace(it.Name) == "" {
			return nil, fmt.Errorf("item %d has no name", i)
		}
		if it.Quantity < 1 {
			return nil, fmt.Errorf("item %q has quantity %d", it.Name, it.Quantity)
		}
		amount := ToMinorUnits(it.Price)
		if amount < 0 {
			return nil, fmt.Errorf("item %q has a negative price", it.Name)
		}
		total += amount * int64(it.Quantity)
		lines = append(lines, models.PaymentLineItem{
			Name:       it.Name,
			UnitAmount: amount,
			Quantity:   int64(it.Quantity),
		})
	}
	if total == 0 {
		return nil, fmt.Errorf("total is zero")
	}
	return lines, nil
}

// CreateSession opens a hosted checkout session for items.
func (s *PaymentService) CreateSession(ctx context.Context, items []models.PaymentItem) (*models.PaymentSession, error) {
	lines, err := ToLineItems(items)
	if err != nil {
		s.logger.Warn("payment session rejected", zap.Error(err))
		return nil, apperrors.SessionCreationFailed("Failed to create checkout session", err)
	}

	resp, err := s.gateway.CreateCheckoutSession(ctx, CheckoutSessionRequest{
		LineItems:  lines,
		Currency:   s.currency,
		SuccessURL: s.successURL,
		CancelURL:  s.cancelURL,
	})
	if err != nil {
		s.logger.Error("payment provider rejected session", zap.Int("line_items", len(lines)), zap.Error(err))
		return nil, apperrors.SessionCreationFailed("Failed to create checkout session", err)
	}

	s.logger.Info("payment session created", zap.String("session_id", resp.ID), zap.Int("line_items", len(lines)))
	return &models.PaymentSession{
		SessionID:  resp.ID,
		URL:        resp.URL,
		Currency:   s.currency,
		LineItems:  lines,
		SuccessURL: s.successURL,
		CancelURL:  s.cancelURL,
	}, nil
}

// ExpireSession voids an unpaid session.
func (s *PaymentService) ExpireSession(ctx context.Context, sessionID string) error {
	if err := s.gateway.ExpireCheckoutSession(ctx, sessionID); err != nil {
		return apperrors.Internal("Failed to expire checkout session", err)
	}
	s.logger.Info("payment session expired", zap.String("session_id", sessionID))
	return nil
}
