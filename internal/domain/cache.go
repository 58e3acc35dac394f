package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetActivity retrieves a cached account activity snapshot.
	GetActivity(ctx context.Context, address string) (*AccountActivity, error)

	// SetActivity caches a fetched account activity snapshot so a
	// re-score within the TTL skips the ledger fetch.
	SetActivity(ctx context.Context, address string, activity *AccountActivity, ttl time.Duration) error

	// GetDecision retrieves a recent decision for an address.
	GetDecision(ctx context.Context, address string) (*ScoreDecision, error)

	// SetDecision caches a finished decision.
	SetDecision(ctx context.Context, address string, decision *ScoreDecision, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
