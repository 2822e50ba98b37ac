package services

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/avion-commerce/storefront-backend/common/errors"
	"github.com/avion-commerce/storefront-backend/models"
	"github.com/avion-commerce/storefront-backend/repository"
	"go.uber.org/zap"
)

// CatalogStore is the slice of the content store the stock and order
// services need.
type CatalogStore interface {
	FindByID(ctx context.Context, id string) (repository.CatalogItem, error)
	SetStock(ctx context.Context, item repository.CatalogItem, newStock int) (string, error)
}

type StockService struct {
	catalog CatalogStore
	logger  *zap.Logger
}

func NewStockService(catalog CatalogStore, logger *zap.Logger) *StockService {
	return &StockService{catalog: catalog, logger: logger}
}

// Reserve decrements the stock of productID by quantity. The write only
// lands if the item is unchanged since it was read; a lost race is reported
// as a concurrency conflict and never retried here.
func (s *StockService) Reserve(ctx context.Context, productID string, quantity int) (*models.StockReservationResult, error) {
	if productID == "" {
		return nil, apperrors.Validation("productId is required", map[string]string{"productId": "required"})
	}
	if quantity <= 0 {
		return nil, apperrors.Validation("quantity must be greater than zero", map[string]string{"quantity": "must be > 0"})
	}

	item, err := s.resolve(ctx, productID)
	if err != nil {
		return nil, err
	}

	newStock := item.CurrentStock() - quantity
	if newStock < 0 {
		s.logger.Info("reservation rejected, insufficient stock",
			zap.String("product_id", productID),
			zap.Int("requested", quantity),
			zap.Int("available", item.CurrentStock()),
		)
		return nil, apperrors.InsufficientStock(fmt.Sprintf("Insufficient stock for %s", item.Product().Name))
	}

	if _, err := s.catalog.SetStock(ctx, item, newStock); err != nil {
		return nil, s.writeError(productID, err)
	}

	s.logger.Info("stock reserved",
		zap.String("product_id", productID),
		zap.String("collection", item.Collection()),
		zap.Int("quantity", quantity),
		zap.Int("new_stock", newStock),
	)
	prod := item.Product()
	return &models.StockReservationResult{
		ProductID: productID,
		NewStock:  newStock,
		Name:      prod.Name,
		UnitPrice: prod.EffectivePrice(),
	}, nil
}

// Restock returns quantity units to productID. It is the inverse of
// Reserve and uses the same revision guard.
func (s *StockService) Restock(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return apperrors.Validation("quantity must be greater than zero", map[string]string{"quantity": "must be > 0"})
	}
	item, err := s.resolve(ctx, productID)
	if err != nil {
		return err
	}
	if _, err := s.catalog.SetStock(ctx, item, item.CurrentStock()+quantity); err != nil {
		return s.writeError(productID, err)
	}
	s.logger.Info("stock restored", zap.String("product_id", productID), zap.Int("quantity", quantity))
	return nil
}

func (s *StockService) resolve(ctx context.Context, productID string) (repository.CatalogItem, error) {
	item, err := s.catalog.FindByID(ctx, productID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Product not found")
	}
	if err != nil {
		s.logger.Error("catalog lookup failed", zap.String("product_id", productID), zap.Error(err))
		return nil, apperrors.Internal("Failed to update stock", err)
	}
	return item, nil
}

func (s *StockService) writeError(productID string, err error) error {
	if errors.Is(err, repository.ErrRevisionMismatch) {
		s.logger.Warn("stock write lost a race", zap.String("product_id", productID))
		return apperrors.ConcurrencyConflict("Stock changed concurrently, please retry", err)
	}
	s.logger.Error("stock write failed", zap.String("product_id", productID), zap.Error(err))
	return apperrors.Internal("Failed to update stock", err)
}
