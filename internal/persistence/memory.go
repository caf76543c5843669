package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/tokenwatch/rater/internal/model"
)

// MemoryStore is the in-process implementation of both stores. Updates are
// serialized per token key: concurrent cycles for the same token never
// interleave reads and writes of its history, while different tokens run
// fully independently.
type MemoryStore struct {
	mu      sync.Mutex
	tokens  map[string]*sync.Mutex
	ratings map[string][]RatingRecord
	periods map[string][]model.MomentumPeriod
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:  make(map[string]*sync.Mutex),
		ratings: make(map[string][]RatingRecord),
		periods: make(map[string][]model.MomentumPeriod),
	}
}

// tokenLock returns the per-token mutex, creating it on first use.
func (s *MemoryStore) tokenLock(tokenAddress string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.tokens[tokenAddress]
	if !ok {
		lock = &sync.Mutex{}
		s.tokens[tokenAddress] = lock
	}
	return lock
}

// AppendRating stores a result, trimming to RetainedRatings.
func (s *MemoryStore) AppendRating(ctx context.Context, tokenAddress string, result model.RatingResult, breakdown map[string]float64) error {
	lock := s.tokenLock(tokenAddress)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	history := append(s.ratings[tokenAddress], RatingRecord{
		Result:    result,
		Breakdown: breakdown,
		CreatedAt: time.Now().UTC(),
	})
	if len(history) > RetainedRatings {
		history = history[len(history)-RetainedRatings:]
	}
	s.ratings[tokenAddress] = history
	return nil
}

// Latest returns the most recent stored rating, or nil.
func (s *MemoryStore) Latest(ctx context.Context, tokenAddress string) (*model.RatingResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.ratings[tokenAddress]
	if len(history) == 0 {
		return nil, nil
	}
	result := history[len(history)-1].Result
	return &result, nil
}

// ListByToken returns up to limit recent ratings, newest first.
func (s *MemoryStore) ListByToken(ctx context.Context, tokenAddress string, limit int) ([]RatingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.ratings[tokenAddress]
	if limit <= 0 || limit > len(history) {
		limit = len(history)
	}
	out := make([]RatingRecord, 0, limit)
	for i := len(history) - 1; i >= len(history)-limit; i-- {
		out = append(out, history[i])
	}
	return out, nil
}

func periodKey(tokenAddress, timeframe string) string {
	return tokenAddress + "|" + timeframe
}

// AppendPeriod appends the current period and returns the ordered history.
func (s *MemoryStore) AppendPeriod(ctx context.Context, tokenAddress, timeframe string, period model.MomentumPeriod) ([]model.MomentumPeriod, error) {
	lock := s.tokenLock(tokenAddress)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	key := periodKey(tokenAddress, timeframe)
	history := append(s.periods[key], period)
	if len(history) > RetainedPeriods {
		history = history[len(history)-RetainedPeriods:]
	}
	s.periods[key] = history

	out := make([]model.MomentumPeriod, len(history))
	copy(out, history)
	return out, nil
}

// RecentPeriods returns the ordered history without appending.
func (s *MemoryStore) RecentPeriods(ctx context.Context, tokenAddress, timeframe string, limit int) ([]model.MomentumPeriod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.periods[periodKey(tokenAddress, timeframe)]
	if limit > 0 && limit < len(history) {
		history = history[len(history)-limit:]
	}
	out := make([]model.MomentumPeriod, len(history))
	copy(out, history)
	return out, nil
}

// Reset clears the streak history for token+timeframe.
func (s *MemoryStore) Reset(ctx context.Context, tokenAddress, timeframe string) error {
	lock := s.tokenLock(tokenAddress)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.periods, periodKey(tokenAddress, timeframe))
	return nil
}

// NullMomentumStore deterministically disables the consecutive-momentum
// subsystem: appends are dropped and history is always empty.
type NullMomentumStore struct{}

// NewNullMomentumStore creates a NullMomentumStore.
func NewNullMomentumStore() NullMomentumStore { return NullMomentumStore{} }

func (NullMomentumStore) AppendPeriod(ctx context.Context, tokenAddress, timeframe string, period model.MomentumPeriod) ([]model.MomentumPeriod, error) {
	return nil, nil
}

func (NullMomentumStore) RecentPeriods(ctx context.Context, tokenAddress, timeframe string, limit int) ([]model.MomentumPeriod, error) {
	return nil, nil
}

func (NullMomentumStore) Reset(ctx context.Context, tokenAddress, timeframe string) error {
	return nil
}

var _ RatingHistoryStore = (*MemoryStore)(nil)
var _ MomentumHistoryStore = (*MemoryStore)(nil)
var _ MomentumHistoryStore = NullMomentumStore{}
