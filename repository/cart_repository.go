package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avion-commerce/storefront-backend/models"
	"github.com/redis/go-redis/v9"
)

// CartRepository keeps session carts in Redis with a sliding TTL.
type CartRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCartRepository(client *redis.Client, ttl time.Duration) *CartRepository {
	return &CartRepository{client: client, ttl: ttl}
}

func (r *CartRepository) key(sessionID string) string {
	return fmt.Sprintf("cart:session:%s", sessionID)
}

// GetCart returns the stored cart, or an empty one for an unknown session.
func (r *CartRepository) GetCart(ctx context.Context, sessionID string) (*models.Cart, error) {
	data, err := r.client.Get(ctx, r.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.NewCart(sessionID), nil
	}
	if err != nil {
		return nil, err
	}

	var cart models.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, err
	}
	if cart.Lines == nil {
		cart.Lines = []models.CartLine{}
	}
	return &cart, nil
}

func (r *CartRepository) SaveCart(ctx context.Context, cart *models.Cart) error {
	cart.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(cart.SessionID), data, r.ttl).Err()
}

func (r *CartRepository) DeleteCart(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, r.key(sessionID)).Err()
}

func (r *CartRepository) idemKey(key string) string {
	return "idem:checkout:" + key
}

// GetIdempotency returns the stored response for key, or "" when unseen.
func (r *CartRepository) GetIdempotency(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.idemKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

// ClaimIdempotency marks key as in flight. It reports false when the key is
// already claimed or completed.
func (r *CartRepository) ClaimIdempotency(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.idemKey(key), idempotencyPending, ttl).Result()
}

func (r *CartRepository) SetIdempotency(ctx context.Context, key, response string, ttl time.Duration) error {
	return r.client.Set(ctx, r.idemKey(key), response, ttl).Err()
}

func (r *CartRepository) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.idemKey(key)).Err()
}

const idempotencyPending = "pending"

// IsIdempotencyPending reports whether a stored idempotency value marks a
// request still in flight.
func IsIdempotencyPending(v string) bool {
	return v == idempotencyPending
}
