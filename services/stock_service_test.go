package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	apperrors "github.com/avion-commerce/storefront-backend/common/errors"
	"github.com/avion-commerce/storefront-backend/models"
	"github.com/avion-commerce/storefront-backend/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chair(stock int) models.Product {
	return models.Product{ID: "p1", Name: "Library Stool Chair", Price: 50, Stock: stock}
}

func TestReserve_Success(t *testing.T) {
	catalog := newFakeCatalog(chair(5))
	svc := services.NewStockService(catalog, zap.NewNop())

	res, err := svc.Reserve(context.Background(), "p1", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, res.NewStock)
	assert.Equal(t, 3, catalog.stock("p1"))
	assert.Equal(t, "Library Stool Chair", res.Name)
	assert.Equal(t, 50.0, res.UnitPrice)
}

func TestReserve_ReportsDiscountedPrice(t *testing.T) {
	discount := 42.5
	p := chair(5)
	p.DiscountPrice = &discount
	svc := services.NewStockService(newFakeCatalog(p), zap.NewNop())

	res, err := svc.Reserve(context.Background(), "p1", 1)
	require.NoError(t, err)
	assert.Equal(t, 42.5, res.UnitPrice)
}

func TestReserve_ListingCollection(t *testing.T) {
	catalog := newFakeCatalog(models.Product{ID: "l1", Collection: models.CollectionCatalogListing, Name: "Desk Lamp", Price: 20, Stock: 4})
	svc := services.NewStockService(catalog, zap.NewNop())

	res, err := svc.Reserve(context.Background(), "l1", 4)
	require.NoError(t, err)
	assert.Equal(t, 0, res.NewStock)
}

func TestReserve_InsufficientStockLeavesStock(t *testing.T) {
	catalog := newFakeCatalog(models.Product{ID: "p2", Name: "Vase", Price: 20, Stock: 2})
	svc := services.NewStockService(catalog, zap.NewNop())

	_, err := svc.Reserve(context.Background(), "p2", 3)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
	assert.Equal(t, 2, catalog.stock("p2"))
}

func TestReserve_Errors(t *testing.T) {
	tests := []struct {
		name      string
		productID string
		qty       int
		setup     func(c *fakeCatalog)
		want      apperrors.Kind
	}{
		{"empty product id", "", 1, nil, apperrors.KindValidation},
		{"zero quantity", "p1", 0, nil, apperrors.KindValidation},
		{"unknown product", "nope", 1, nil, apperrors.KindNotFound},
		{"lookup failure", "p1", 1, func(c *fakeCatalog) { c.findErr = errors.New("connection reset") }, apperrors.KindInternal},
		{"revision moved", "p1", 1, func(c *fakeCatalog) { c.beforeWrite = func(id string) { c.bump(id, 0) } }, apperrors.KindConcurrencyConflict},
		{"write failure", "p1", 1, func(c *fakeCatalog) { c.writeErr = errors.New("timeout") }, apperrors.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := newFakeCatalog(chair(5))
			if tt.setup != nil {
				tt.setup(catalog)
			}
			svc := services.NewStockService(catalog, zap.NewNop())

			_, err := svc.Reserve(context.Background(), tt.productID, tt.qty)
			require.Error(t, err)
			assert.Equal(t, tt.want, apperrors.KindOf(err))
		})
	}
}

func TestReserve_ConflictDoesNotWrite(t *testing.T) {
	catalog := newFakeCatalog(chair(5))
	catalog.beforeWrite = func(id string) {
		catalog.beforeWrite = nil
		catalog.bump(id, -1)
	}
	svc := services.NewStockService(catalog, zap.NewNop())

	_, err := svc.Reserve(context.Background(), "p1", 2)
	assert.ErrorIs(t, err, apperrors.ErrConcurrencyConflict)
	assert.Equal(t, 4, catalog.stock("p1"))
}

// reserveUntilSettled retries conflicts the way a caller is expected to.
func reserveUntilSettled(svc *services.StockService, id string, qty int) error {
	for {
		_, err := svc.Reserve(context.Background(), id, qty)
		if apperrors.KindOf(err) != apperrors.KindConcurrencyConflict {
			return err
		}
	}
}

func TestReserve_ConcurrentReservationsSerialize(t *testing.T) {
	t.Run("combined demand fits", func(t *testing.T) {
		catalog := newFakeCatalog(chair(5))
		svc := services.NewStockService(catalog, zap.NewNop())

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, qty := range []int{2, 3} {
			wg.Add(1)
			go func(i, qty int) {
				defer wg.Done()
				errs[i] = reserveUntilSettled(svc, "p1", qty)
			}(i, qty)
		}
		wg.Wait()

		assert.NoError(t, errs[0])
		assert.NoError(t, errs[1])
		assert.Equal(t, 0, catalog.stock("p1"))
	})

	t.Run("combined demand exceeds stock", func(t *testing.T) {
		catalog := newFakeCatalog(chair(5))
		svc := services.NewStockService(catalog, zap.NewNop())

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = reserveUntilSettled(svc, "p1", 3)
			}(i)
		}
		wg.Wait()

		failed := 0
		for _, err := range errs {
			if err != nil {
				assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
				failed++
			}
		}
		assert.Equal(t, 1, failed)
		assert.Equal(t, 2, catalog.stock("p1"))
	})
}

func TestRestock(t *testing.T) {
	catalog := newFakeCatalog(chair(3))
	svc := services.NewStockService(catalog, zap.NewNop())

	require.NoError(t, svc.Restock(context.Background(), "p1", 2))
	assert.Equal(t, 5, catalog.stock("p1"))

	err := svc.Restock(context.Background(), "p1", 0)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}
