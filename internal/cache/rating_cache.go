// Package cache provides a Redis-backed short-TTL cache for freshly
// computed ratings, keeping repeat API reads off the engine.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tokenwatch/rater/internal/model"
)

// ErrMiss is returned when no cached rating exists for the token.
var ErrMiss = errors.New("rating cache miss")

// RatingCache stores the latest rating per token under a TTL.
type RatingCache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewRatingCache connects a cache over the given Redis address.
func NewRatingCache(addr string, db int, ttl time.Duration, logger zerolog.Logger) *RatingCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RatingCache{
		client: redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		ttl:    ttl,
		log:    logger.With().Str("component", "rating_cache").Logger(),
	}
}

// NewRatingCacheWithClient wraps an existing client; used by tests.
func NewRatingCacheWithClient(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RatingCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RatingCache{client: client, ttl: ttl, log: logger.With().Str("component", "rating_cache").Logger()}
}

func ratingKey(tokenAddress string) string {
	return "rater:rating:" + tokenAddress
}

// Get returns the cached rating, ErrMiss when absent or expired.
func (c *RatingCache) Get(ctx context.Context, tokenAddress string) (model.RatingResult, error) {
	raw, err := c.client.Get(ctx, ratingKey(tokenAddress)).Result()
	if errors.Is(err, redis.Nil) {
		return model.RatingResult{}, ErrMiss
	}
	if err != nil {
		return model.RatingResult{}, fmt.Errorf("rating cache get: %w", err)
	}

	var result model.RatingResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		// A corrupt entry behaves like a miss; it will be overwritten.
		c.log.Warn().Err(err).Str("token", tokenAddress).Msg("corrupt cache entry dropped")
		return model.RatingResult{}, ErrMiss
	}
	return result, nil
}

// Set stores the rating under the configured TTL.
func (c *RatingCache) Set(ctx context.Context, result model.RatingResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("rating cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, ratingKey(result.TokenAddress), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("rating cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached rating for a token.
func (c *RatingCache) Invalidate(ctx context.Context, tokenAddress string) error {
	return c.client.Del(ctx, ratingKey(tokenAddress)).Err()
}

// Close releases the underlying client.
func (c *RatingCache) Close() error {
	return c.client.Close()
}
