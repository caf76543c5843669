package confidence

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/tokenwatch/rater/internal/model"
	"github.com/tokenwatch/rater/internal/timeframe"
)

func testCalc() *Calculator {
	return New(zerolog.Nop())
}

func richContext() model.AnalysisContext {
	bars := make([]model.Candle, 150)
	for i := range bars {
		bars[i] = model.Candle{Timestamp: time.Now(), Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1000}
	}
	history := make([]model.RatingResult, 10)
	for i := range history {
		history[i] = model.RatingResult{Rating: 7 + float64(i%2)*0.2}
	}
	mc := model.MarketContext{OverallTrend: model.MarketBull, VolatilityIndex: 30, MarketSentiment: 65}
	return model.AnalysisContext{
		TokenData:         model.TokenData{Address: "0xabc"},
		ChartData:         bars,
		HistoricalRatings: history,
		MarketContext:     &mc,
	}
}

func TestWeights_SumToOne(t *testing.T) {
	sum := weightDataQuality + weightSampleSize + weightHistoricalAccuracy +
		weightFactorAgreement + weightModelStability + weightMarketConditions +
		weightTimeframeAlignment + weightConsecutiveMoment + weightExhaustionRisk
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestCalculate_AlwaysInBand(t *testing.T) {
	// Worst case: empty everything, catastrophic exhaustion.
	worst := Inputs{
		Scores:     model.ScoreComponents{Technical: 90, Momentum: 5, Volume: 95, Risk: 10},
		Context:    model.AnalysisContext{},
		Exhaustion: &model.ExhaustionPenaltyResult{TotalPenalty: -50},
	}
	// Best case: rich data, aligned everything.
	tfRes := timeframe.Result{ConsensusStrength: 1, Timeframes: []timeframe.TimeframeBreakdown{{Timeframe: "4h"}}}
	best := Inputs{
		Scores:             model.ScoreComponents{Technical: 80, Momentum: 78, Volume: 82, Risk: 75},
		Context:            richContext(),
		HistoricalAccuracy: 0.95,
		Timeframes:         &tfRes,
		Streak:             &model.ConsecutiveMomentumTracking{ConsecutiveCount: 4},
		Exhaustion:         &model.ExhaustionPenaltyResult{TotalPenalty: 0},
	}

	low := testCalc().Calculate(worst)
	high := testCalc().Calculate(best)

	assert.GreaterOrEqual(t, low, MinConfidence)
	assert.LessOrEqual(t, high, MaxConfidence)
	assert.Greater(t, high, low)
	assert.Greater(t, high, 60.0)
}

func TestCalculate_NeverCertainNeverZero(t *testing.T) {
	assert.GreaterOrEqual(t, testCalc().Calculate(Inputs{}), 10.0)

	perfect := Inputs{
		Scores:             model.ScoreComponents{Technical: 80, Momentum: 80, Volume: 80, Risk: 80},
		Context:            richContext(),
		HistoricalAccuracy: 1.0,
		Streak:             &model.ConsecutiveMomentumTracking{ConsecutiveCount: 6},
	}
	assert.LessOrEqual(t, testCalc().Calculate(perfect), 95.0)
}

func TestFactorAgreement_DispersionLowers(t *testing.T) {
	agreed := factorAgreement(model.ScoreComponents{Technical: 72, Momentum: 70, Volume: 75, Risk: 68})
	dispersed := factorAgreement(model.ScoreComponents{Technical: 95, Momentum: 20, Volume: 80, Risk: 15})

	assert.Greater(t, agreed, dispersed)
	// Directional consensus bonus applies to the aligned set.
	assert.Greater(t, agreed, 0.9)
}

func TestMarketConditions(t *testing.T) {
	bull := model.MarketContext{OverallTrend: model.MarketBull, VolatilityIndex: 20, MarketSentiment: 70}
	choppy := model.MarketContext{OverallTrend: model.MarketSideways, VolatilityIndex: 90, MarketSentiment: 40}

	bullScore := marketConditions(model.AnalysisContext{MarketContext: &bull})
	choppyScore := marketConditions(model.AnalysisContext{MarketContext: &choppy})

	assert.Greater(t, bullScore, choppyScore)
}

func TestTimeframeAlignment_NeutralWithoutData(t *testing.T) {
	assert.Equal(t, 0.7, timeframeAlignment(nil))

	full := timeframe.Result{ConsensusStrength: 1, Timeframes: []timeframe.TimeframeBreakdown{{}}}
	assert.InDelta(t, 1.0, timeframeAlignment(&full), 1e-9)
}

func TestConsecutiveMomentum_FlagsPenalize(t *testing.T) {
	clean := consecutiveMomentum(&model.ConsecutiveMomentumTracking{ConsecutiveCount: 4})
	exhausted := consecutiveMomentum(&model.ConsecutiveMomentumTracking{ConsecutiveCount: 4, ExhaustionWarning: true, DiminishingReturns: true})

	assert.Greater(t, clean, exhausted)
}

func TestExhaustionRisk_Inverse(t *testing.T) {
	assert.Equal(t, 1.0, exhaustionRisk(nil))
	assert.Equal(t, 1.0, exhaustionRisk(&model.ExhaustionPenaltyResult{TotalPenalty: 0}))
	assert.InDelta(t, 0.5, exhaustionRisk(&model.ExhaustionPenaltyResult{TotalPenalty: -25}), 1e-9)
	assert.Equal(t, 0.0, exhaustionRisk(&model.ExhaustionPenaltyResult{TotalPenalty: -50}))
}

func TestCalculateDetailed_IntervalAndReliability(t *testing.T) {
	in := Inputs{
		Scores:             model.ScoreComponents{Technical: 75, Momentum: 72, Volume: 78, Risk: 70},
		Context:            richContext(),
		HistoricalAccuracy: 0.8,
	}

	detailed := testCalc().CalculateDetailed(in, 7.5)

	assert.LessOrEqual(t, detailed.IntervalLow, 7.5)
	assert.GreaterOrEqual(t, detailed.IntervalHigh, 7.5)
	assert.GreaterOrEqual(t, detailed.IntervalLow, 1.0)
	assert.LessOrEqual(t, detailed.IntervalHigh, 10.0)
	assert.NotEmpty(t, detailed.Reliability)

	// Higher confidence narrows the interval.
	weak := testCalc().CalculateDetailed(Inputs{Exhaustion: &model.ExhaustionPenaltyResult{TotalPenalty: -50}}, 7.5)
	assert.Greater(t, weak.IntervalHigh-weak.IntervalLow, detailed.IntervalHigh-detailed.IntervalLow)
}
