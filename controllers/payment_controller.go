package controllers

import (
	"context"
	"net/http"

	apperrors "github.com/avion-commerce/storefront-backend/common/errors"
	"github.com/avion-commerce/storefront-backend/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type SessionCreator interface {
	CreateSession(ctx context.Context, items []models.PaymentItem) (*models.PaymentSession, error)
}

type PaymentController struct {
	payments SessionCreator
	logger   *zap.Logger
}

func NewPaymentController(payments SessionCreator, logger *zap.Logger) *PaymentController {
	return &PaymentController{payments: payments, logger: logger}
}

// respondError logs a warning and writes a JSON error response in the
// {error} shape checkout session clients expect.
func (pc *PaymentController) respondError(c *gin.Context, status int, msg string, err error) {
	if err != nil {
		pc.logger.Warn(msg, zap.Error(err))
	}
	c.JSON(status, gin.H{"error": msg})
}

// CreateSession handles POST /checkout/session.
func (pc *PaymentController) CreateSession(c *gin.Context) {
	var req models.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		pc.respondError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	session, err := pc.payments.CreateSession(c.Request.Context(), req.CartItems)
	if err != nil {
		pc.respondError(c, http.StatusInternalServerError, apperrors.MessageOf(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": session.SessionID, "url": session.URL})
}
