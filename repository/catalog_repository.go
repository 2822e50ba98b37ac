package repository

import (
	"context"
	"errors"
	"time"

	"github.com/avion-commerce/storefront-backend/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CatalogItem is a purchasable document from either catalog collection. The
// two collections store stock under different field names, so writes go
// through stockFields.
type CatalogItem interface {
	ItemID() string
	Collection() string
	Revision() string
	CurrentStock() int
	Product() *models.Product
	stockFields(newStock int) bson.M
}

type productDocument struct {
	ID            string          `bson:"_id"`
	Type          string          `bson:"_type"`
	Name          string          `bson:"name"`
	Description   string          `bson:"description,omitempty"`
	Price         float64         `bson:"price"`
	DiscountPrice *float64        `bson:"discountPrice,omitempty"`
	Stock         int             `bson:"stock"`
	InStock       bool            `bson:"inStock"`
	ImageRef      string          `bson:"imageRef,omitempty"`
	Reviews       []models.Review `bson:"reviews,omitempty"`
	Rev           string          `bson:"_rev,omitempty"`
	UpdatedAt     time.Time       `bson:"_updatedAt"`
}

func (d *productDocument) ItemID() string     { return d.ID }
func (d *productDocument) Collection() string { return models.CollectionProduct }
func (d *productDocument) Revision() string   { return d.Rev }
func (d *productDocument) CurrentStock() int  { return d.Stock }

func (d *productDocument) stockFields(newStock int) bson.M {
	return bson.M{"stock": newStock, "inStock": newStock > 0}
}

func (d *productDocument) Product() *models.Product {
	return &models.Product{
		ID:            d.ID,
		Collection:    models.CollectionProduct,
		Name:          d.Name,
		Description:   d.Description,
		Price:         d.Price,
		DiscountPrice: d.DiscountPrice,
		Stock:         d.Stock,
		InStock:       d.InStock,
		ImageRef:      d.ImageRef,
		Reviews:       d.Reviews,
		Revision:      d.Rev,
		UpdatedAt:     d.UpdatedAt,
	}
}

// listingDocument is the older catalog shape, still carrying some of the
// sellable inventory.
type listingDocument struct {
	ID                string          `bson:"_id"`
	Type              string          `bson:"_type"`
	Title             string          `bson:"title"`
	Summary           string          `bson:"summary,omitempty"`
	ListPrice         float64         `bson:"listPrice"`
	SalePrice         *float64        `bson:"salePrice,omitempty"`
	QuantityAvailable int             `bson:"quantityAvailable"`
	Available         bool            `bson:"available"`
	Image             string          `bson:"image,omitempty"`
	Reviews           []models.Review `bson:"reviews,omitempty"`
	Rev               string          `bson:"_rev,omitempty"`
	UpdatedAt         time.Time       `bson:"_updatedAt"`
}

func (d *listingDocument) ItemID() string     { return d.ID }
func (d *listingDocument) Collection() string { return models.CollectionCatalogListing }
func (d *listingDocument) Revision() string   { return d.Rev }
func (d *listingDocument) CurrentStock() int  { return d.QuantityAvailable }

func (d *listingDocument) stockFields(newStock int) bson.M {
	return bson.M{"quantityAvailable": newStock, "available": newStock > 0}
}

func (d *listingDocument) Product() *models.Product {
	return &models.Product{
		ID:            d.ID,
		Collection:    models.CollectionCatalogListing,
		Name:          d.Title,
		Description:   d.Summary,
		Price:         d.ListPrice,
		DiscountPrice: d.SalePrice,
		Stock:         d.QuantityAvailable,
		InStock:       d.Available,
		ImageRef:      d.Image,
		Reviews:       d.Reviews,
		Revision:      d.Rev,
		UpdatedAt:     d.UpdatedAt,
	}
}

// NewCatalogItem wraps p in the document shape of its collection. It lets
// callers outside the store (fixtures, the HTTP-backed catalog) hand items
// to code that expects a resolved CatalogItem.
func NewCatalogItem(p *models.Product) CatalogItem {
	if p.Collection == models.CollectionCatalogListing {
		return &listingDocument{
			ID: p.ID, Type: models.CollectionCatalogListing, Title: p.Name, Summary: p.Description,
			ListPrice: p.Price, SalePrice: p.DiscountPrice, QuantityAvailable: p.Stock,
			Available: p.InStock, Image: p.ImageRef, Reviews: p.Reviews, Rev: p.Revision, UpdatedAt: p.UpdatedAt,
		}
	}
	return &productDocument{
		ID: p.ID, Type: models.CollectionProduct, Name: p.Name, Description: p.Description,
		Price: p.Price, DiscountPrice: p.DiscountPrice, Stock: p.Stock,
		InStock: p.InStock, ImageRef: p.ImageRef, Reviews: p.Reviews, Rev: p.Revision, UpdatedAt: p.UpdatedAt,
	}
}

// CatalogRepository resolves and updates catalog items in the content store.
type CatalogRepository struct {
	products *mongo.Collection
	listings *mongo.Collection
}

func NewCatalogRepository(db *mongo.Database) *CatalogRepository {
	return &CatalogRepository{
		products: db.Collection(models.CollectionProduct),
		listings: db.Collection(models.CollectionCatalogListing),
	}
}

// FindByID looks the id up in the product collection first and falls back
// to catalog listings.
func (r *CatalogRepository) FindByID(ctx context.Context, id string) (CatalogItem, error) {
	var p productDocument
	err := r.products.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	var l listingDocument
	err = r.listings.FindOne(ctx, bson.M{"_id": id}).Decode(&l)
	if err == nil {
		return &l, nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	return nil, err
}

// SetStock writes newStock to item if nobody changed the document since it
// was read.
func (r *CatalogRepository) SetStock(ctx context.Context, item CatalogItem, newStock int) (string, error) {
	return compareAndSwap(ctx, r.collection(item.Collection()), item.ItemID(), item.Revision(), item.stockFields(newStock))
}

// Create inserts p into its collection, assigning an id when empty.
func (r *CatalogRepository) Create(ctx context.Context, p *models.Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Revision = uuid.NewString()
	p.UpdatedAt = time.Now().UTC()
	p.InStock = p.Stock > 0

	_, err := r.collection(p.Collection).InsertOne(ctx, NewCatalogItem(p))
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateKey
	}
	return err
}

// AppendReview pushes review onto the item's review list in whichever
// collection holds it.
func (r *CatalogRepository) AppendReview(ctx context.Context, id string, review models.Review) error {
	update := bson.M{
		"$push": bson.M{"reviews": review},
		"$set":  bson.M{"_rev": uuid.NewString(), "_updatedAt": time.Now().UTC()},
	}
	for _, coll := range []*mongo.Collection{r.products, r.listings} {
		res, err := coll.UpdateOne(ctx, bson.M{"_id": id}, update)
		if err != nil {
			return err
		}
		if res.MatchedCount > 0 {
			return nil
		}
	}
	return ErrNotFound
}

func (r *CatalogRepository) collection(name string) *mongo.Collection {
	if name == models.CollectionCatalogListing {
		return r.listings
	}
	return r.products
}
