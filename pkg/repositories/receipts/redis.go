package receipts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fadedpez/spinz/pkg/entities"
	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache on Redis with a fixed TTL per entry
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache creates a cache storing entries for ttl
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: "spinz:receipt"}
}

// key length-prefixes the account so ids containing ':' cannot collide
func (c *RedisCache) key(accountID, idempotencyKey string) string {
	return fmt.Sprintf("%s:%d:%s:%s", c.prefix, len(accountID), accountID, idempotencyKey)
}

// Get returns the cached receipt for an account and key
func (c *RedisCache) Get(ctx context.Context, accountID, idempotencyKey string) (*entities.Receipt, string, error) {
	data, err := c.client.Get(ctx, c.key(accountID, idempotencyKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, "", ErrCacheMiss
	}
	if err != nil {
		return nil, "", fmt.Errorf("error reading receipt cache: %w", err)
	}

	var cached cachedReceipt
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, "", fmt.Errorf("error decoding cached receipt: %w", err)
	}
	if cached.Receipt == nil {
		return nil, "", ErrCacheMiss
	}
	return cached.Receipt, cached.RequestHash, nil
}

// Put stores a receipt. An existing entry is kept, the first settlement wins.
func (c *RedisCache) Put(ctx context.Context, accountID, idempotencyKey, requestHash string, receipt *entities.Receipt) error {
	data, err := json.Marshal(cachedReceipt{RequestHash: requestHash, Receipt: receipt})
	if err != nil {
		return fmt.Errorf("error encoding receipt: %w", err)
	}
	if err := c.client.SetNX(ctx, c.key(accountID, idempotencyKey), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("error writing receipt cache: %w", err)
	}
	return nil
}
