package database_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/avion-commerce/storefront-backend/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := database.NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	mr.CheckGet(t, "k", "v")
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := database.NewRedisClient(context.Background(), "not-a-url://")
	require.Error(t, err)
}

func TestEnsureIndexes_CustomerIdentityIsUnique(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("create", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(), mtest.CreateSuccessResponse())

		require.NoError(t, database.EnsureIndexes(context.Background(), mt.DB))

		evt := mt.GetStartedEvent()
		require.NotNil(t, evt)
		assert.Equal(t, "createIndexes", evt.CommandName)
		assert.Equal(t, database.CollectionCustomer, evt.Command.Lookup("createIndexes").StringValue())
		unique, ok := evt.Command.Lookup("indexes", "0", "unique").BooleanOK()
		assert.True(t, ok)
		assert.True(t, unique)
	})
}
