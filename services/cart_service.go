package services

import (
	"context"
	"fmt"

	apperrors "github.com/avion-commerce/storefront-backend/common/errors"
	"github.com/avion-commerce/storefront-backend/models"
	"go.uber.org/zap"
)

type CartStore interface {
	GetCart(ctx context.Context, sessionID string) (*models.Cart, error)
	SaveCart(ctx context.Context, cart *models.Cart) error
	DeleteCart(ctx context.Context, sessionID string) error
}

type productGetter interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
}

// CartService edits session carts. Line prices always come from the catalog.
type CartService struct {
	store    CartStore
	products productGetter
	logger   *zap.Logger
}

func NewCartService(store CartStore, products productGetter, logger *zap.Logger) *CartService {
	return &CartService{store: store, products: products, logger: logger}
}

func (s *CartService) GetCart(ctx context.Context, sessionID string) (*models.Cart, error) {
	cart, err := s.store.GetCart(ctx, sessionID)
	if err != nil {
		s.logger.Error("failed to load cart", zap.String("session_id", sessionID), zap.Error(err))
		return nil, apperrors.Internal("Failed to load cart", err)
	}
	return cart, nil
}

func (s *CartService) AddItem(ctx context.Context, sessionID, productID string, quantity int) (*models.Cart, error) {
	if quantity < 1 {
		return nil, apperrors.Validation(models.ErrInvalidQuantity.Error(), map[string]string{"quantity": "must be at least 1"})
	}
	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.InStock || product.Stock <= 0 {
		return nil, apperrors.InsufficientStock(fmt.Sprintf("%s is out of stock", product.Name))
	}

	cart, err := s.GetCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	err = cart.Add(models.CartLine{
		ProductID:      product.ID,
		Name:           product.Name,
		UnitPrice:      product.EffectivePrice(),
		Quantity:       quantity,
		ImageRef:       product.ImageRef,
		InStock:        product.InStock,
		AvailableStock: product.Stock,
	})
	if err != nil {
		return nil, apperrors.Validation(err.Error(), map[string]string{"quantity": err.Error()})
	}
	return cart, s.save(ctx, cart)
}

// UpdateQuantity sets a line's quantity; zero or less removes it.
func (s *CartService) UpdateQuantity(ctx context.Context, sessionID, productID string, quantity int) (*models.Cart, error) {
	cart, err := s.GetCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !cart.SetQuantity(productID, quantity) {
		return nil, apperrors.NotFound("Product is not in the cart")
	}
	return cart, s.save(ctx, cart)
}

func (s *CartService) RemoveItem(ctx context.Context, sessionID, productID string) (*models.Cart, error) {
	cart, err := s.GetCart(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cart.Remove(productID)
	return cart, s.save(ctx, cart)
}

func (s *CartService) Clear(ctx context.Context, sessionID string) error {
	if err := s.store.DeleteCart(ctx, sessionID); err != nil {
		return apperrors.Internal("Failed to clear cart", err)
	}
	return nil
}

// Save persists a cart that was edited outside the service, such as one
// cleared by a successful checkout.
func (s *CartService) Save(ctx context.Context, cart *models.Cart) error {
	if cart.IsEmpty() {
		return s.Clear(ctx, cart.SessionID)
	}
	return s.save(ctx, cart)
}

func (s *CartService) save(ctx context.Context, cart *models.Cart) error {
	if err := s.store.SaveCart(ctx, cart); err != nil {
		s.logger.Error("failed to save cart", zap.String("session_id", cart.SessionID), zap.Error(err))
		return apperrors.Internal("Failed to save cart", err)
	}
	return nil
}
