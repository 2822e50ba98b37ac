package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/avion-commerce/storefront-backend/models"
	"github.com/avion-commerce/storefront-backend/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestOrderRepository_LatestOrderID(t *testing.T) {
	mt := newMockMongo(t)

	mt.Run("no orders yet", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "avion.order", mtest.FirstBatch))

		id, err := repository.NewOrderRepository(mt.DB).LatestOrderID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "", id)
	})

	mt.Run("latest order", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "avion.order", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "o7"}, {Key: "orderId", Value: "AvionOID-07"}}))

		id, err := repository.NewOrderRepository(mt.DB).LatestOrderID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "AvionOID-07", id)
	})
}

func TestOrderRepository_Create(t *testing.T) {
	mt := newMockMongo(t)

	mt.Run("inserts with timestamps", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		o := &models.Order{OrderID: "AvionOID-01", Status: models.OrderStatusPending}
		require.NoError(t, repository.NewOrderRepository(mt.DB).Create(context.Background(), o))
		assert.NotEmpty(t, o.ID)
		assert.WithinDuration(t, time.Now(), o.CreatedAt, time.Minute)
	})

	mt.Run("order id taken", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "E11000 duplicate key error"}))

		err := repository.NewOrderRepository(mt.DB).Create(context.Background(), &models.Order{OrderID: "AvionOID-01"})
		assert.ErrorIs(t, err, repository.ErrDuplicateKey)
	})
}

func TestOrderRepository_FindAndUpdateStatus(t *testing.T) {
	mt := newMockMongo(t)

	mt.Run("find by session", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "avion.order", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "o1"},
			{Key: "orderId", Value: "AvionOID-01"},
			{Key: "paymentSessionId", Value: "cs_test_1"},
			{Key: "status", Value: "pending"},
			{Key: "totalAmount", Value: 100.0},
		}))

		o, err := repository.NewOrderRepository(mt.DB).FindByPaymentSessionID(context.Background(), "cs_test_1")
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusPending, o.Status)
		assert.Equal(t, 100.0, o.TotalAmount)
	})

	mt.Run("find missing", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "avion.order", mtest.FirstBatch))

		_, err := repository.NewOrderRepository(mt.DB).FindByOrderID(context.Background(), "AvionOID-99")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	mt.Run("status already moved", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		err := repository.NewOrderRepository(mt.DB).UpdateStatus(context.Background(), "o1", models.OrderStatusPending, models.OrderStatusPaid)
		assert.ErrorIs(t, err, repository.ErrRevisionMismatch)
	})

	mt.Run("status updated", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		err := repository.NewOrderRepository(mt.DB).UpdateStatus(context.Background(), "o1", models.OrderStatusPending, models.OrderStatusPaid)
		assert.NoError(t, err)
	})
}

func TestCustomerRepository(t *testing.T) {
	mt := newMockMongo(t)

	mt.Run("found by exact email and name", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "avion.customer", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "c1"},
			{Key: "fullName", Value: "Jane Doe"},
			{Key: "email", Value: "jane@example.com"},
		}))

		c, err := repository.NewCustomerRepository(mt.DB).FindByEmailAndName(context.Background(), "jane@example.com", "Jane Doe")
		require.NoError(t, err)
		assert.Equal(t, "c1", c.ID)
	})

	mt.Run("not found then created", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "avion.customer", mtest.FirstBatch),
			mtest.CreateSuccessResponse(),
		)
		repo := repository.NewCustomerRepository(mt.DB)

		_, err := repo.FindByEmailAndName(context.Background(), "jane@example.com", "Jane D.")
		assert.ErrorIs(t, err, repository.ErrNotFound)

		c := &models.Customer{FullName: "Jane D.", Email: "jane@example.com"}
		require.NoError(t, repo.Create(context.Background(), c))
		assert.NotEmpty(t, c.ID)
	})
}
