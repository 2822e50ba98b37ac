package controllers

import (
	"context"
	"net/http"

	"github.com/avion-commerce/storefront-backend/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type StockReserver interface {
	Reserve(ctx context.Context, productID string, quantity int) (*models.StockReservationResult, error)
}

type StockController struct {
	stock  StockReserver
	logger *zap.Logger
}

func NewStockController(stock StockReserver, logger *zap.Logger) *StockController {
	return &StockController{stock: stock, logger: logger}
}

// Reserve handles POST /stock/reserve.
func (sc *StockController) Reserve(c *gin.Context) {
	var req models.StockReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}

	res, err := sc.stock.Reserve(c.Request.Context(), req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, sc.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"newStock":  res.NewStock,
		"name":      res.Name,
		"unitPrice": res.UnitPrice,
	})
}
