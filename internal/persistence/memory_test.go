package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenwatch/rater/internal/model"
)

func TestMemoryStore_AppendAndLatest(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	latest, err := store.Latest(ctx, "0xabc")
	require.NoError(t, err)
	assert.Nil(t, latest)

	first := model.RatingResult{TokenAddress: "0xabc", Rating: 6.5}
	second := model.RatingResult{TokenAddress: "0xabc", Rating: 7.2}
	require.NoError(t, store.AppendRating(ctx, "0xabc", first, nil))
	require.NoError(t, store.AppendRating(ctx, "0xabc", second, map[string]float64{"technical": 80}))

	latest, err = store.Latest(ctx, "0xabc")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 7.2, latest.Rating)
}

func TestMemoryStore_RetentionBounded(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < RetainedRatings+20; i++ {
		require.NoError(t, store.AppendRating(ctx, "0xabc", model.RatingResult{Rating: float64(i)}, nil))
	}

	records, err := store.ListByToken(ctx, "0xabc", 0)
	require.NoError(t, err)
	assert.Len(t, records, RetainedRatings)
	// Newest first.
	assert.Equal(t, float64(RetainedRatings+19), records[0].Result.Rating)
}

func TestMemoryStore_PeriodsOrderedAndTrimmed(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var history []model.MomentumPeriod
	var err error
	for i := 0; i < RetainedPeriods+10; i++ {
		history, err = store.AppendPeriod(ctx, "0xabc", "1h", model.MomentumPeriod{Index: i, Timestamp: time.Now()})
		require.NoError(t, err)
	}

	assert.Len(t, history, RetainedPeriods)
	// Oldest first, current period last.
	assert.Equal(t, RetainedPeriods+9, history[len(history)-1].Index)
	assert.Less(t, history[0].Index, history[1].Index)
}

func TestMemoryStore_ResetClearsTimeframeOnly(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.AppendPeriod(ctx, "0xabc", "1h", model.MomentumPeriod{Index: 1})
	require.NoError(t, err)
	_, err = store.AppendPeriod(ctx, "0xabc", "4h", model.MomentumPeriod{Index: 1})
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx, "0xabc", "1h"))

	oneHour, err := store.RecentPeriods(ctx, "0xabc", "1h", 0)
	require.NoError(t, err)
	fourHour, err := store.RecentPeriods(ctx, "0xabc", "4h", 0)
	require.NoError(t, err)
	assert.Empty(t, oneHour)
	assert.Len(t, fourHour, 1)
}

func TestMemoryStore_ConcurrentTokensIndependent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, token := range []string{"0xaaa", "0xbbb", "0xccc", "0xddd"} {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, _ = store.AppendPeriod(ctx, token, "1h", model.MomentumPeriod{Index: i})
				_ = store.AppendRating(ctx, token, model.RatingResult{Rating: float64(i)}, nil)
			}
		}(token)
	}
	wg.Wait()

	for _, token := range []string{"0xaaa", "0xbbb", "0xccc", "0xddd"} {
		periods, err := store.RecentPeriods(ctx, token, "1h", 0)
		require.NoError(t, err)
		assert.Len(t, periods, RetainedPeriods)
	}
}

func TestNullMomentumStore_DisablesSubsystem(t *testing.T) {
	store := NewNullMomentumStore()
	ctx := context.Background()

	history, err := store.AppendPeriod(ctx, "0xabc", "1h", model.MomentumPeriod{Index: 1})
	require.NoError(t, err)
	assert.Empty(t, history)

	recent, err := store.RecentPeriods(ctx, "0xabc", "1h", 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
	assert.NoError(t, store.Reset(ctx, "0xabc", "1h"))
}
