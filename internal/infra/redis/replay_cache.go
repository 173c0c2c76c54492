package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/centledger/centledger/pkg/logger"
)

const (
	// ReplayTTL matches the database retention for finalized idempotency
	// records, so the cache never outlives the authoritative row.
	ReplayTTL = 24 * time.Hour

	// KeyPrefix namespaces idempotent replay entries
	KeyPrefix = "idem:"
)

// ReplayCache stores finalized posting response envelopes keyed by
// idempotency key. Only finalized envelopes are ever written here; a hit is
// always safe to return without touching the database.
type ReplayCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewReplayCache creates a replay cache with the default TTL
func NewReplayCache(client *redis.Client, log *logger.Logger) *ReplayCache {
	return &ReplayCache{
		client: client,
		ttl:    ReplayTTL,
		logger: log.WithField("component", "replay_cache"),
	}
}

// Get retrieves a cached response envelope for an idempotency key
func (c *ReplayCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, KeyPrefix+key).Bytes()
	if err == redis.Nil {
		c.logger.Debug("replay cache miss", "key", key)
		return nil, false, nil
	}
	if err != nil {
		c.logger.Error("cache error", "operation", "get", "key", key, "error", err)
		return nil, false, fmt.Errorf("failed to get cached response: %w", err)
	}

	c.logger.Debug("replay cache hit", "key", key)
	return val, true, nil
}

// Set stores a finalized response envelope
func (c *ReplayCache) Set(ctx context.Context, key string, response []byte) error {
	if err := c.client.Set(ctx, KeyPrefix+key, response, c.ttl).Err(); err != nil {
		c.logger.Error("cache error", "operation", "set", "key", key, "error", err)
		return fmt.Errorf("failed to set cached response: %w", err)
	}
	return nil
}

// NewClient connects to Redis and verifies the connection
func NewClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}
