package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketplace-service/internal/models"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// CacheToken caches an auth token -> user mapping with a TTL
func (c *Client) CacheToken(ctx context.Context, key string, user *models.User, ttl time.Duration) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, fmt.Sprintf("token:%s", key), data, ttl).Err()
}

// GetTokenUser resolves a cached token to its user. Returns (nil, nil) on a
// cache miss.
func (c *Client) GetTokenUser(ctx context.Context, key string) (*models.User, error) {
	data, err := c.rdb.Get(ctx, fmt.Sprintf("token:%s", key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteToken evicts a token from the cache
func (c *Client) DeleteToken(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("token:%s", key)).Err()
}

const productListKey = "catalog:products"

// CacheProductList caches the rendered product list with a short TTL
func (c *Client) CacheProductList(ctx context.Context, payload []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, productListKey, payload, ttl).Err()
}

// GetProductList returns the cached product list, or nil on a miss
func (c *Client) GetProductList(ctx context.Context) ([]byte, error) {
	data, err := c.rdb.Get(ctx, productListKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return data, err
}

// InvalidateProductList drops the cached product list. Called after imports
// and price updates.
func (c *Client) InvalidateProductList(ctx context.Context) error {
	return c.rdb.Del(ctx, productListKey).Err()
}
