package controllers

import (
	"context"
	"net/http"

	"github.com/avion-commerce/storefront-backend/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
}

type OrderController struct {
	orders OrderService
	logger *zap.Logger
}

func NewOrderController(orders OrderService, logger *zap.Logger) *OrderController {
	return &OrderController{orders: orders, logger: logger}
}

// CreateOrder handles POST /orders.
func (oc *OrderController) CreateOrder(c *gin.Context) {
	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}

	order, err := oc.orders.PlaceOrder(c.Request.Context(), &req)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Order created successfully", "order": order})
}

// GetOrder handles GET /admin/orders/:orderId.
func (oc *OrderController) GetOrder(c *gin.Context) {
	order, err := oc.orders.GetOrder(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
