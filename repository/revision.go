package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNotFound         = errors.New("document not found")
	ErrRevisionMismatch = errors.New("document revision changed")
	ErrDuplicateKey     = errors.New("duplicate key")
)

// revisionFilter matches id only while its revision is still rev. Documents
// written before revisions existed carry no _rev field.
func revisionFilter(id, rev string) bson.M {
	if rev == "" {
		return bson.M{"_id": id, "_rev": bson.M{"$exists": false}}
	}
	return bson.M{"_id": id, "_rev": rev}
}

// compareAndSwap applies set to document id only if its revision is still
// rev, stamping a fresh revision. It returns the new revision, or
// ErrRevisionMismatch when another writer got there first.
func compareAndSwap(ctx context.Context, coll *mongo.Collection, id, rev string, set bson.M) (string, error) {
	next := uuid.NewString()
	update := bson.M{}
	for k, v := range set {
		update[k] = v
	}
	update["_rev"] = next
	update["_updatedAt"] = time.Now().UTC()

	res, err := coll.UpdateOne(ctx, revisionFilter(id, rev), bson.M{"$set": update})
	if err != nil {
		return "", err
	}
	if res.MatchedCount == 0 {
		return "", ErrRevisionMismatch
	}
	return next, nil
}
