package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_NilMarketContext(t *testing.T) {
	ctx := AnalysisContext{TokenData: TokenData{Address: "0xabc"}}

	out := ctx.Normalize()

	assert.NotNil(t, out.MarketContext)
	assert.Equal(t, MarketSideways, out.MarketContext.OverallTrend)
	assert.Equal(t, 50.0, out.MarketContext.VolatilityIndex)
	assert.Equal(t, 50.0, out.MarketContext.MarketSentiment)
}

func TestNormalize_InvalidFieldsDefaulted(t *testing.T) {
	ctx := AnalysisContext{
		MarketContext: &MarketContext{
			OverallTrend:    MarketTrend("unknown"),
			VolatilityIndex: -3,
			MarketSentiment: 250,
		},
	}

	out := ctx.Normalize()

	assert.Equal(t, MarketSideways, out.MarketContext.OverallTrend)
	assert.Equal(t, 50.0, out.MarketContext.VolatilityIndex)
	assert.Equal(t, 50.0, out.MarketContext.MarketSentiment)
}

func TestNormalize_PreservesValidContext(t *testing.T) {
	ctx := AnalysisContext{
		MarketContext:      &MarketContext{OverallTrend: MarketBull, VolatilityIndex: 32, MarketSentiment: 71},
		HistoricalAccuracy: 0.85,
	}

	out := ctx.Normalize()

	assert.Equal(t, MarketBull, out.MarketContext.OverallTrend)
	assert.Equal(t, 32.0, out.MarketContext.VolatilityIndex)
	assert.Equal(t, 0.85, out.HistoricalAccuracy)
}

func TestNormalize_HistoricalAccuracyDefault(t *testing.T) {
	out := AnalysisContext{}.Normalize()
	assert.Equal(t, 0.7, out.HistoricalAccuracy)
}

func TestRecommendFor(t *testing.T) {
	testCases := []struct {
		name       string
		rating     float64
		confidence float64
		expected   Recommendation
	}{
		{"low_confidence_forces_hold", 9.5, 40, RecHold},
		{"strong_buy", 8.2, 80, RecStrongBuy},
		{"buy", 7.0, 65, RecBuy},
		{"hold", 5.5, 70, RecHold},
		{"sell", 3.4, 60, RecSell},
		{"strong_sell", 1.2, 90, RecStrongSell},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, RecommendFor(tc.rating, tc.confidence))
		})
	}
}

func TestLevelForPenalty(t *testing.T) {
	assert.Equal(t, ExhaustionNone, LevelForPenalty(0))
	assert.Equal(t, ExhaustionNone, LevelForPenalty(-5))
	assert.Equal(t, ExhaustionMild, LevelForPenalty(-10))
	assert.Equal(t, ExhaustionModerate, LevelForPenalty(-20))
	assert.Equal(t, ExhaustionSevere, LevelForPenalty(-30))
	assert.Equal(t, ExhaustionExtreme, LevelForPenalty(-50))
}
