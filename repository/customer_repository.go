package repository

import (
	"context"
	"errors"
	"time"

	"github.com/avion-commerce/storefront-backend/database"
	"github.com/avion-commerce/storefront-backend/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type CustomerRepository struct {
	collection *mongo.Collection
}

func NewCustomerRepository(db *mongo.Database) *CustomerRepository {
	return &CustomerRepository{collection: db.Collection(database.CollectionCustomer)}
}

// FindByEmailAndName matches both fields exactly.
func (r *CustomerRepository) FindByEmailAndName(ctx context.Context, email, fullName string) (*models.Customer, error) {
	var c models.Customer
	err := r.collection.FindOne(ctx, bson.M{"email": email, "fullName": fullName}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts the customer. Another customer with the same email and
// name yields ErrDuplicateKey.
func (r *CustomerRepository) Create(ctx context.Context, c *models.Customer) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := r.collection.InsertOne(ctx, c)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateKey
	}
	return err
}
