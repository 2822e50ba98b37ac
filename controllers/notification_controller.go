package controllers

import (
	"context"
	"math"
	"net/http"
	"strconv"

	apperrors "github.com/avion-commerce/storefront-backend/common/errors"
	"github.com/avion-commerce/storefront-backend/common/middleware"
	"github.com/avion-commerce/storefront-backend/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type NotificationService interface {
	SendOrderConfirmation(ctx context.Context, req *models.OrderConfirmationRequest) error
	GetLogs(ctx context.Context, filter models.NotificationFilter) ([]models.NotificationLog, int64, error)
}

type NotificationController struct {
	notificationService NotificationService
	logger              *zap.Logger
}

func NewNotificationController(svc NotificationService, logger *zap.Logger) *NotificationController {
	return &NotificationController{notificationService: svc, logger: logger}
}

const (
	maxPageSize     = 100
	defaultPage     = 1
	defaultPageSize = 20
)

func parsePaginationParams(ctx *gin.Context) (int, int) {
	page := defaultPage
	pageSize := defaultPageSize

	if p, err := strconv.Atoi(ctx.DefaultQuery("page", "1")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(ctx.DefaultQuery("page_size", "20")); err == nil && l > 0 {
		pageSize = l
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}
	}
	return page, pageSize
}

// SendOrderConfirmation handles POST /notifications/order-confirmation.
func (nc *NotificationController) SendOrderConfirmation(ctx *gin.Context) {
	var req models.OrderConfirmationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid payload"})
		return
	}

	if err := nc.notificationService.SendOrderConfirmation(ctx.Request.Context(), &req); err != nil {
		nc.logger.Warn("order confirmation not sent", zap.String("order_id", req.OrderID), zap.Error(err))
		ctx.JSON(apperrors.StatusOf(err), gin.H{"success": false, "message": apperrors.MessageOf(err)})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true})
}

// GetNotificationLogs handles GET /admin/notifications.
func (nc *NotificationController) GetNotificationLogs(ctx *gin.Context) {
	page, pageSize := parsePaginationParams(ctx)

	filter := models.NotificationFilter{
		OrderID:  ctx.Query("order_id"),
		Status:   ctx.Query("status"),
		Channel:  ctx.Query("channel"),
		Page:     page,
		PageSize: pageSize,
	}

	logs, total, err := nc.notificationService.GetLogs(ctx.Request.Context(), filter)
	if err != nil {
		nc.logger.Error("failed to get notification logs",
			zap.Error(err),
			zap.String("requested_by", ctx.GetString(middleware.SubjectContextKey)),
		)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))

	ctx.JSON(http.StatusOK, gin.H{
		"data":        logs,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": totalPages,
	})
}
