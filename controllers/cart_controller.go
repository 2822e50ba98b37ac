package controllers

import (
	"context"
	"net/http"

	"github.com/avion-commerce/storefront-backend/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CartService interface {
	GetCart(ctx context.Context, sessionID string) (*models.Cart, error)
	AddItem(ctx context.Context, sessionID, productID string, quantity int) (*models.Cart, error)
	UpdateQuantity(ctx context.Context, sessionID, productID string, quantity int) (*models.Cart, error)
	RemoveItem(ctx context.Context, sessionID, productID string) (*models.Cart, error)
	Clear(ctx context.Context, sessionID string) error
}

type CartController struct {
	carts  CartService
	logger *zap.Logger
}

func NewCartController(carts CartService, logger *zap.Logger) *CartController {
	return &CartController{carts: carts, logger: logger}
}

type cartView struct {
	*models.Cart
	Total float64 `json:"total"`
}

func viewOf(cart *models.Cart) cartView {
	return cartView{Cart: cart, Total: cart.Total()}
}

// GetCart returns the cart for a browsing session; an unknown session has
// an empty cart.
func (cc *CartController) GetCart(c *gin.Context) {
	cart, err := cc.carts.GetCart(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respondError(c, cc.logger, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(cart))
}

// AddItem adds a catalog product to the cart at its current price.
func (cc *CartController) AddItem(c *gin.Context) {
	var req models.AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}

	cart, err := cc.carts.AddItem(c.Request.Context(), c.Param("sessionId"), req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, cc.logger, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(cart))
}

func (cc *CartController) UpdateItem(c *gin.Context) {
	var req models.UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}

	cart, err := cc.carts.UpdateQuantity(c.Request.Context(), c.Param("sessionId"), c.Param("productId"), *req.Quantity)
	if err != nil {
		respondError(c, cc.logger, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(cart))
}

func (cc *CartController) RemoveItem(c *gin.Context) {
	cart, err := cc.carts.RemoveItem(c.Request.Context(), c.Param("sessionId"), c.Param("productId"))
	if err != nil {
		respondError(c, cc.logger, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(cart))
}

func (cc *CartController) ClearCart(c *gin.Context) {
	if err := cc.carts.Clear(c.Request.Context(), c.Param("sessionId")); err != nil {
		respondError(c, cc.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cart cleared"})
}
