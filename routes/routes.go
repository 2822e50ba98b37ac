package routes

import (
	"net/http"

	"github.com/avion-commerce/storefront-backend/common/auth"
	"github.com/avion-commerce/storefront-backend/common/middleware"
	"github.com/avion-commerce/storefront-backend/controllers"
	"github.com/gin-gonic/gin"
)

// Controllers groups every handler the router mounts.
type Controllers struct {
	Stock        *controllers.StockController
	Payment      *controllers.PaymentController
	Webhook      *controllers.WebhookController
	Order        *controllers.OrderController
	Notification *controllers.NotificationController
	Cart         *controllers.CartController
	Checkout     *controllers.CheckoutController
	Product      *controllers.ProductController
}

// RegisterRoutes mounts the storefront API on router. limiter guards the
// endpoints that touch stock or payments; metrics may be nil.
func RegisterRoutes(router *gin.Engine, c Controllers, verifier *auth.TokenVerifier, limiter *middleware.RateLimiter, metrics http.Handler, service string) {
	// Public
	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "OK", "service": service})
	})
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	// Stripe calls this with its own signature, outside the rate limit.
	router.POST("/webhooks/stripe", c.Webhook.StripeWebhook)

	cart := router.Group("/cart/:sessionId")
	{
		cart.GET("", c.Cart.GetCart)
		cart.DELETE("", c.Cart.ClearCart)
		cart.POST("/items", c.Cart.AddItem)
		cart.PUT("/items/:productId", c.Cart.UpdateItem)
		cart.DELETE("/items/:productId", c.Cart.RemoveItem)
	}

	router.POST("/products/:id/reviews", c.Product.AddReview)

	limited := router.Group("/", middleware.RateLimitMiddleware(limiter))
	{
		limited.POST("/stock/reserve", c.Stock.Reserve)
		limited.POST("/checkout/session", c.Payment.CreateSession)
		limited.POST("/checkout", c.Checkout.Checkout)
		limited.POST("/orders", c.Order.CreateOrder)
		limited.POST("/notifications/order-confirmation", c.Notification.SendOrderConfirmation)
	}

	// Admin only
	admin := router.Group("/admin", middleware.AdminOnly(verifier))
	{
		admin.POST("/products", c.Product.CreateProduct)
		admin.GET("/orders/:orderId", c.Order.GetOrder)
		admin.GET("/notifications", c.Notification.GetNotificationLogs)
	}
}
