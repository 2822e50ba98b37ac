package models

import (
	"errors"
	"time"
)

// Content store collections that can hold a purchasable item.
const (
	CollectionProduct        = "product"
	CollectionCatalogListing = "catalog-listing"
)

// Product is the normalized view of a catalog item, whichever collection it
// was loaded from.
type Product struct {
	ID            string    `json:"id"`
	Collection    string    `json:"collection"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Price         float64   `json:"price"`
	DiscountPrice *float64  `json:"discountPrice,omitempty"`
	Stock         int       `json:"stock"`
	InStock       bool      `json:"inStock"`
	ImageRef      string    `json:"imageRef,omitempty"`
	Reviews       []Review  `json:"reviews,omitempty"`
	Revision      string    `json:"-"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// EffectivePrice is the discount price when one is set and lower than the
// list price, otherwise the list price.
func (p *Product) EffectivePrice() float64 {
	return EffectivePrice(p.Price, p.DiscountPrice)
}

func EffectivePrice(price float64, discount *float64) float64 {
	if discount != nil && *discount < price {
		return *discount
	}
	return price
}

var (
	ErrNegativePrice       = errors.New("price must not be negative")
	ErrNegativeStock       = errors.New("stock must not be negative")
	ErrDiscountNotLower    = errors.New("discountPrice must be lower than price")
	ErrUnknownCollection   = errors.New("collection must be product or catalog-listing")
	ErrInvalidReviewRating = errors.New("rating must be between 1 and 5")
)

// Validate enforces the data-entry rules for catalog items.
func (p *Product) Validate() error {
	if p.Collection != CollectionProduct && p.Collection != CollectionCatalogListing {
		return ErrUnknownCollection
	}
	if p.Price < 0 {
		return ErrNegativePrice
	}
	if p.Stock < 0 {
		return ErrNegativeStock
	}
	if p.DiscountPrice != nil && *p.DiscountPrice >= p.Price {
		return ErrDiscountNotLower
	}
	return nil
}

// CreateProductRequest is the admin data-entry payload.
type CreateProductRequest struct {
	Collection    string   `json:"collection"`
	Name          string   `json:"name" binding:"required"`
	Description   string   `json:"description"`
	Price         float64  `json:"price" binding:"gte=0"`
	DiscountPrice *float64 `json:"discountPrice" binding:"omitempty,gte=0"`
	Stock         int      `json:"stock" binding:"gte=0"`
	ImageRef      string   `json:"imageRef"`
}

// Review is a customer review appended to a catalog item.
type Review struct {
	Name    string    `json:"name" bson:"name"`
	Rating  int       `json:"rating" bson:"rating"`
	Comment string    `json:"comment" bson:"comment"`
	Date    time.Time `json:"date" bson:"date"`
}

type CreateReviewRequest struct {
	Name    string `json:"name" binding:"required"`
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
	Comment string `json:"comment" binding:"max=2000"`
}
