// Package redisstore implements the momentum history store on Redis lists,
// letting streak state survive process restarts and be shared across
// replicas.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/tokenwatch/rater/internal/model"
	"github.com/tokenwatch/rater/internal/persistence"
)

// MomentumStore keeps per-token per-timeframe momentum periods in a Redis
// list, oldest first, trimmed to the retention bound.
type MomentumStore struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

var _ persistence.MomentumHistoryStore = (*MomentumStore)(nil)

// NewMomentumStore connects a store over the given Redis address. Keys
// expire after ttl of inactivity; zero disables expiry.
func NewMomentumStore(addr string, db int, ttl time.Duration, logger zerolog.Logger) *MomentumStore {
	return NewMomentumStoreWithClient(redis.NewClient(&redis.Options{Addr: addr, DB: db}), ttl, logger)
}

// NewMomentumStoreWithClient wraps an existing client; used by tests.
func NewMomentumStoreWithClient(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *MomentumStore {
	return &MomentumStore{
		client: client,
		ttl:    ttl,
		log:    logger.With().Str("component", "redis_momentum_store").Logger(),
	}
}

func momentumKey(tokenAddress, timeframe string) string {
	return fmt.Sprintf("rater:momentum:%s:%s", tokenAddress, timeframe)
}

// AppendPeriod pushes the period, trims to retention, and returns the full
// ordered history including the new period.
func (s *MomentumStore) AppendPeriod(ctx context.Context, tokenAddress, timeframe string, period model.MomentumPeriod) ([]model.MomentumPeriod, error) {
	key := momentumKey(tokenAddress, timeframe)

	payload, err := json.Marshal(period)
	if err != nil {
		return nil, fmt.Errorf("momentum store marshal: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, int64(-persistence.RetainedPeriods), -1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("momentum store append: %w", err)
	}

	return s.fetch(ctx, key, persistence.RetainedPeriods)
}

// RecentPeriods returns up to limit periods, oldest first.
func (s *MomentumStore) RecentPeriods(ctx context.Context, tokenAddress, timeframe string, limit int) ([]model.MomentumPeriod, error) {
	if limit <= 0 || limit > persistence.RetainedPeriods {
		limit = persistence.RetainedPeriods
	}
	return s.fetch(ctx, momentumKey(tokenAddress, timeframe), limit)
}

// Reset drops the token's streak history for the timeframe.
func (s *MomentumStore) Reset(ctx context.Context, tokenAddress, timeframe string) error {
	if err := s.client.Del(ctx, momentumKey(tokenAddress, timeframe)).Err(); err != nil {
		return fmt.Errorf("momentum store reset: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *MomentumStore) Close() error {
	return s.client.Close()
}

func (s *MomentumStore) fetch(ctx context.Context, key string, limit int) ([]model.MomentumPeriod, error) {
	raw, err := s.client.LRange(ctx, key, int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("momentum store range: %w", err)
	}

	periods := make([]model.MomentumPeriod, 0, len(raw))
	for _, item := range raw {
		var p model.MomentumPeriod
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			// A corrupt entry is skipped rather than poisoning the streak.
			s.log.Warn().Err(err).Str("key", key).Msg("corrupt momentum period skipped")
			continue
		}
		periods = append(periods, p)
	}
	return periods, nil
}
