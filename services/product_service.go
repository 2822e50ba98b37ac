package services

import (
	"context"
	"errors"
	"strings"
	"time"

	apperrors "github.com/avion-commerce/storefront-backend/common/errors"
	"github.com/avion-commerce/storefront-backend/models"
	"github.com/avion-commerce/storefront-backend/repository"
	"go.uber.org/zap"
)

type ProductStore interface {
	FindByID(ctx context.Context, id string) (repository.CatalogItem, error)
	Create(ctx context.Context, p *models.Product) error
	AppendReview(ctx context.Context, id string, review models.Review) error
}

// ProductService covers catalog data entry and customer reviews.
type ProductService struct {
	store  ProductStore
	logger *zap.Logger
}

func NewProductService(store ProductStore, logger *zap.Logger) *ProductService {
	return &ProductService{store: store, logger: logger}
}

func (s *ProductService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	item, err := s.store.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Product not found")
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to load product", err)
	}
	return item.Product(), nil
}

// CreateProduct enters a new catalog item. A discount price that is not
// strictly below the list price is rejected here rather than at read time.
func (s *ProductService) CreateProduct(ctx context.Context, req *models.CreateProductRequest) (*models.Product, error) {
	collection := req.Collection
	if collection == "" {
		collection = models.CollectionProduct
	}
	p := &models.Product{
		Collection:    collection,
		Name:          strings.TrimSpace(req.Name),
		Description:   req.Description,
		Price:         req.Price,
		DiscountPrice: req.DiscountPrice,
		Stock:         req.Stock,
		ImageRef:      req.ImageRef,
	}
	if p.Name == "" {
		return nil, apperrors.Validation("name is required", map[string]string{"name": "required"})
	}
	if err := p.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error(), map[string]string{productField(err): err.Error()})
	}

	if err := s.store.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, apperrors.Validation("product already exists", map[string]string{"id": "duplicate"})
		}
		s.logger.Error("failed to create product", zap.String("name", p.Name), zap.Error(err))
		return nil, apperrors.PersistenceFailed("Failed to create product", err)
	}
	s.logger.Info("product created", zap.String("product_id", p.ID), zap.String("collection", p.Collection))
	return p, nil
}

func productField(err error) string {
	switch {
	case errors.Is(err, models.ErrDiscountNotLower):
		return "discountPrice"
	case errors.Is(err, models.ErrNegativePrice):
		return "price"
	case errors.Is(err, models.ErrNegativeStock):
		return "stock"
	default:
		return "collection"
	}
}

// AddReview appends a dated review to productID in whichever catalog
// collection holds it.
func (s *ProductService) AddReview(ctx context.Context, productID string, req *models.CreateReviewRequest) (*models.Review, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, apperrors.Validation(models.ErrInvalidReviewRating.Error(), map[string]string{"rating": "must be between 1 and 5"})
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperrors.Validation("name is required", map[string]string{"name": "required"})
	}

	review := models.Review{
		Name:    strings.TrimSpace(req.Name),
		Rating:  req.Rating,
		Comment: req.Comment,
		Date:    time.Now().UTC(),
	}
	err := s.store.AppendReview(ctx, productID, review)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("Product not found")
	}
	if err != nil {
		s.logger.Error("failed to add review", zap.String("product_id", productID), zap.Error(err))
		return nil, apperrors.PersistenceFailed("Failed to add review", err)
	}
	return &review, nil
}
