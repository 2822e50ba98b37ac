package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	apperrors "github.com/avion-commerce/storefront-backend/common/errors"
	"github.com/avion-commerce/storefront-backend/common/logger"
	"github.com/avion-commerce/storefront-backend/models"
	"github.com/avion-commerce/storefront-backend/repository"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const IdempotencyHeader = "Idempotency-Key"

type CheckoutRunner interface {
	Run(ctx context.Context, cart *models.Cart, billing models.BillingDetails) *models.CheckoutResult
}

type CartLoader interface {
	GetCart(ctx context.Context, sessionID string) (*models.Cart, error)
	Save(ctx context.Context, cart *models.Cart) error
}

// IdempotencyStore is satisfied by the Redis cart repository.
type IdempotencyStore interface {
	ClaimIdempotency(ctx context.Context, key string, ttl time.Duration) (bool, error)
	GetIdempotency(ctx context.Context, key string) (string, error)
	SetIdempotency(ctx context.Context, key, response string, ttl time.Duration) error
	ReleaseIdempotency(ctx context.Context, key string) error
}

type CheckoutController struct {
	runner CheckoutRunner
	carts  CartLoader
	idem   IdempotencyStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewCheckoutController wires POST /checkout. idem may be nil, in which case
// Idempotency-Key headers are ignored.
func NewCheckoutController(runner CheckoutRunner, carts CartLoader, idem IdempotencyStore, ttl time.Duration, logger *zap.Logger) *CheckoutController {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CheckoutController{runner: runner, carts: carts, idem: idem, ttl: ttl, logger: logger}
}

type storedCheckout struct {
	Status int                    `json:"status"`
	Result *models.CheckoutResult `json:"result"`
}

// Checkout handles POST /checkout.
func (cc *CheckoutController) Checkout(c *gin.Context) {
	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}
	ctx := c.Request.Context()
	log := logger.FromContext(ctx, cc.logger).With(zap.String("cart_session_id", req.CartSessionID))

	key := c.GetHeader(IdempotencyHeader)
	if key != "" && cc.idem != nil {
		if replayed := cc.claim(c, log, key); replayed {
			return
		}
	}

	cart, err := cc.carts.GetCart(ctx, req.CartSessionID)
	if err != nil {
		cc.release(ctx, log, key)
		respondError(c, cc.logger, err)
		return
	}

	res := cc.runner.Run(ctx, cart, req.Billing)
	status := checkoutStatus(res)

	if res.State == models.StateSuccess {
		if err := cc.carts.Save(ctx, cart); err != nil {
			log.Error("failed to clear cart after checkout", zap.Error(err))
		}
		cc.remember(ctx, log, key, status, res)
	} else {
		cc.release(ctx, log, key)
	}

	c.JSON(status, res)
}

// claim reserves key for this request. It reports true when a response
// was already written: either the stored result of an earlier run or a
// conflict because the same key is still in flight.
func (cc *CheckoutController) claim(c *gin.Context, log *zap.Logger, key string) bool {
	ctx := c.Request.Context()
	ok, err := cc.idem.ClaimIdempotency(ctx, key, cc.ttl)
	if err != nil {
		log.Warn("idempotency store unavailable, continuing without it", zap.Error(err))
		return false
	}
	if ok {
		return false
	}

	stored, err := cc.idem.GetIdempotency(ctx, key)
	if err != nil {
		log.Warn("failed to read idempotency record", zap.Error(err))
	}
	if stored == "" || repository.IsIdempotencyPending(stored) {
		c.JSON(http.StatusConflict, gin.H{
			"message": "A checkout with this idempotency key is already in progress",
			"kind":    apperrors.KindConcurrencyConflict,
		})
		return true
	}

	var prev storedCheckout
	if err := json.Unmarshal([]byte(stored), &prev); err != nil || prev.Result == nil {
		log.Error("corrupt idempotency record", zap.String("key", key), zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{
			"message": "A checkout with this idempotency key already completed",
			"kind":    apperrors.KindConcurrencyConflict,
		})
		return true
	}
	log.Info("replaying checkout result", zap.String("key", key))
	c.JSON(prev.Status, prev.Result)
	return true
}

func (cc *CheckoutController) remember(ctx context.Context, log *zap.Logger, key string, status int, res *models.CheckoutResult) {
	if key == "" || cc.idem == nil {
		return
	}
	payload, _ := json.Marshal(storedCheckout{Status: status, Result: res})
	if err := cc.idem.SetIdempotency(context.WithoutCancel(ctx), key, string(payload), cc.ttl); err != nil {
		log.Error("failed to store idempotency record", zap.String("key", key), zap.Error(err))
	}
}

func (cc *CheckoutController) release(ctx context.Context, log *zap.Logger, key string) {
	if key == "" || cc.idem == nil {
		return
	}
	if err := cc.idem.ReleaseIdempotency(context.WithoutCancel(ctx), key); err != nil {
		log.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(err))
	}
}

func checkoutStatus(res *models.CheckoutResult) int {
	switch res.State {
	case models.StateSuccess:
		return http.StatusOK
	case models.StateValidatingForm:
		return http.StatusBadRequest
	default:
		return apperrors.StatusOf(apperrors.New(apperrors.Kind(res.Kind), res.Message, nil))
	}
}
