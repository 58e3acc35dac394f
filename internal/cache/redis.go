package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opensource-finance/harrier/internal/domain"
)

// RedisCache implements Cache using Redis.
// Used as the Pro tier cache and as L2 in two-phase caching.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.makeKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.makeKey(key), value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.makeKey(key)).Err()
}

// GetActivity retrieves a cached account activity snapshot.
func (c *RedisCache) GetActivity(ctx context.Context, address string) (*domain.AccountActivity, error) {
	data, err := c.Get(ctx, activityKey(address))
	if err != nil || data == nil {
		return nil, err
	}

	var activity domain.AccountActivity
	if err := json.Unmarshal(data, &activity); err != nil {
		return nil, err
	}
	return &activity, nil
}

// SetActivity caches a fetched account activity snapshot.
func (c *RedisCache) SetActivity(ctx context.Context, address string, activity *domain.AccountActivity, ttl time.Duration) error {
	bytes, err := json.Marshal(activity)
	if err != nil {
		return err
	}
	return c.Set(ctx, activityKey(address), bytes, ttl)
}

// GetDecision retrieves a recent decision for an address.
func (c *RedisCache) GetDecision(ctx context.Context, address string) (*domain.ScoreDecision, error) {
	data, err := c.Get(ctx, decisionKey(address))
	if err != nil || data == nil {
		return nil, err
	}

	var decision domain.ScoreDecision
	if err := json.Unmarshal(data, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

// SetDecision caches a finished decision.
func (c *RedisCache) SetDecision(ctx context.Context, address string, decision *domain.ScoreDecision, ttl time.Duration) error {
	bytes, err := json.Marshal(decision)
	if err != nil {
		return err
	}
	return c.Set(ctx, decisionKey(address), bytes, ttl)
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) makeKey(key string) string {
	return "harrier:" + key
}
