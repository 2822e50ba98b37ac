package controllers

import (
	"context"
	"net/http"

	"github.com/avion-commerce/storefront-backend/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ProductService interface {
	CreateProduct(ctx context.Context, req *models.CreateProductRequest) (*models.Product, error)
	AddReview(ctx context.Context, productID string, req *models.CreateReviewRequest) (*models.Review, error)
}

type ProductController struct {
	products ProductService
	logger   *zap.Logger
}

func NewProductController(products ProductService, logger *zap.Logger) *ProductController {
	return &ProductController{products: products, logger: logger}
}

// AddReview handles POST /products/:id/reviews.
func (pc *ProductController) AddReview(c *gin.Context) {
	var req models.CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}

	review, err := pc.products.AddReview(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, pc.logger, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

// CreateProduct handles POST /admin/products.
func (pc *ProductController) CreateProduct(c *gin.Context) {
	var req models.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c, err)
		return
	}

	product, err := pc.products.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		respondError(c, pc.logger, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}
