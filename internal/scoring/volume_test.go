package scoring

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/tokenwatch/rater/internal/model"
)

func TestScoreSpikeFactor_Curve(t *testing.T) {
	// Anchor points from the tuned curve.
	assert.InDelta(t, 55, ScoreSpikeFactor(1.5), 2)
	assert.InDelta(t, 82, ScoreSpikeFactor(3.0), 2)
	assert.InDelta(t, 90, ScoreSpikeFactor(5.0), 2)
	assert.InDelta(t, 98, ScoreSpikeFactor(10.0), 2)
}

func TestScoreSpikeFactor_StrictlyIncreasing(t *testing.T) {
	prev := -1.0
	for _, factor := range []float64{0.5, 1.0, 1.5, 2.0, 3.0, 3.5, 5.0, 7.0, 10.0, 15.0, 20.0} {
		s := ScoreSpikeFactor(factor)
		assert.Greater(t, s, prev, "factor %.1f", factor)
		prev = s
	}
}

func TestScoreSpikeFactor_ManipulationPenalty(t *testing.T) {
	// Implausibly extreme ratios read as manipulation and drop hard.
	assert.Less(t, ScoreSpikeFactor(40), ScoreSpikeFactor(10))
	assert.GreaterOrEqual(t, ScoreSpikeFactor(1000), 25.0)
}

func TestScoreVolumeFlow(t *testing.T) {
	accumulation := scoreVolumeFlow(model.VolumeProfile{BuyPressure: 0.8, SellPressure: 0.2, NetFlow: 0.6})
	distribution := scoreVolumeFlow(model.VolumeProfile{BuyPressure: 0.2, SellPressure: 0.8, NetFlow: -0.6})

	assert.Greater(t, accumulation, 70.0)
	assert.Less(t, distribution, 30.0)
}

func TestSpikePersistence_RealHistoryOnly(t *testing.T) {
	// Without history the subscore stays neutral instead of guessing.
	assert.Equal(t, NeutralScore, scoreSpikePersistence(nil))

	confirmed := []model.MomentumPeriod{
		{VolumeConfirmed: true}, {VolumeConfirmed: true}, {VolumeConfirmed: true}, {VolumeConfirmed: false},
	}
	assert.InDelta(t, 75, scoreSpikePersistence(confirmed), 1)

	none := []model.MomentumPeriod{{VolumeConfirmed: false}, {VolumeConfirmed: false}}
	assert.InDelta(t, 30, scoreSpikePersistence(none), 1)
}

func TestVolumeConsistency(t *testing.T) {
	steady := []model.MomentumPeriod{
		{Volume: 100, AverageVolume: 100},
		{Volume: 105, AverageVolume: 100},
		{Volume: 98, AverageVolume: 100},
	}
	erratic := []model.MomentumPeriod{
		{Volume: 20, AverageVolume: 100},
		{Volume: 500, AverageVolume: 100},
		{Volume: 5, AverageVolume: 100},
	}

	assert.Greater(t, scoreVolumeConsistency(steady), scoreVolumeConsistency(erratic))
	assert.Equal(t, NeutralScore, scoreVolumeConsistency(nil))
}

func TestVolumeCalculator_ScenarioSubscore(t *testing.T) {
	calc := NewVolumeCalculator(zerolog.Nop())
	v := model.VolumeAnalysis{
		AverageVolume:     100000,
		CurrentVolume:     350000,
		VolumeSpike:       true,
		VolumeSpikeFactor: 3.5,
		VolumeProfile:     model.VolumeProfile{BuyPressure: 0.75, SellPressure: 0.25, NetFlow: 0.8},
		LiquidityScore:    85,
	}

	score := calc.Calculate(v, model.AnalysisContext{}.Normalize())

	assert.Greater(t, score, 75.0)
	assert.LessOrEqual(t, score, 100.0)
}

func TestVolumeCalculator_DetailMatchesScore(t *testing.T) {
	calc := NewVolumeCalculator(zerolog.Nop())
	v := model.VolumeAnalysis{VolumeSpikeFactor: 2.0, LiquidityScore: 50}
	ctx := model.AnalysisContext{}.Normalize()

	detail := calc.Analyze(v, ctx, nil)

	assert.Equal(t, calc.CalculateWithHistory(v, ctx, nil), detail.Score)

	var weightSum float64
	for _, f := range detail.Factors {
		weightSum += f.Weight
	}
	assert.InDelta(t, 1.0, weightSum, 1e-9)
}
