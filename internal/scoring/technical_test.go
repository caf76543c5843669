package scoring

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/tokenwatch/rater/internal/model"
)

func TestScoreRSI_OptimalZone(t *testing.T) {
	// Healthy bullish band scores highest.
	assert.GreaterOrEqual(t, scoreRSI(55), 95.0)
	assert.GreaterOrEqual(t, scoreRSI(50), 90.0)
	assert.GreaterOrEqual(t, scoreRSI(62), 90.0)

	// Both extremes decay.
	assert.Less(t, scoreRSI(78), scoreRSI(55))
	assert.Less(t, scoreRSI(22), scoreRSI(55))
}

func TestScoreRSI_OversoldBeatsDeepOverbought(t *testing.T) {
	// Oversold signals reversal opportunity; deep overbought is a blow-off.
	assert.Greater(t, scoreRSI(25), scoreRSI(88))
	assert.Greater(t, scoreRSI(28), scoreRSI(92))
}

func TestScoreRSI_Bounds(t *testing.T) {
	for rsi := 0.0; rsi <= 100; rsi += 2.5 {
		s := scoreRSI(rsi)
		assert.GreaterOrEqual(t, s, 0.0, "rsi %.1f", rsi)
		assert.LessOrEqual(t, s, 100.0, "rsi %.1f", rsi)
	}
}

func TestScoreMACD_BullishCrossover(t *testing.T) {
	bullish := scoreMACD(model.MACDValues{MACD: 0.025, Signal: 0.018, Histogram: 0.007})
	bearish := scoreMACD(model.MACDValues{MACD: -0.025, Signal: -0.018, Histogram: -0.007})

	assert.Greater(t, bullish, 75.0)
	assert.Less(t, bearish, 35.0)
	assert.Equal(t, NeutralScore, scoreMACD(model.MACDValues{MACD: math.NaN()}))
}

func TestScoreBollinger_Curve(t *testing.T) {
	// Upper-middle band preferred, extension past 0.95 penalized.
	assert.Greater(t, scoreBollinger(model.BollingerValues{Position: 0.65}), 85.0)
	assert.Greater(t, scoreBollinger(model.BollingerValues{Position: 0.68}), 80.0)
	assert.Less(t, scoreBollinger(model.BollingerValues{Position: 0.99}), 50.0)
	assert.Less(t, scoreBollinger(model.BollingerValues{Position: 0.05}), 50.0)
}

func TestScoreMAAlignment(t *testing.T) {
	aligned := map[int]float64{9: 110, 21: 105, 50: 100}
	inverted := map[int]float64{9: 100, 21: 105, 50: 110}

	assert.Equal(t, 95.0, scoreMAAlignment(aligned, nil))
	assert.Equal(t, 20.0, scoreMAAlignment(inverted, nil))
	// Falls back to SMA when EMA is too thin, neutral when both are.
	assert.Equal(t, 95.0, scoreMAAlignment(nil, aligned))
	assert.Equal(t, NeutralScore, scoreMAAlignment(nil, nil))
}

func TestTechnicalCalculator_ScenarioSubscore(t *testing.T) {
	calc := NewTechnicalCalculator(zerolog.Nop())
	ind := model.TechnicalIndicators{
		RSI:       58,
		MACD:      model.MACDValues{MACD: 0.025, Signal: 0.018, Histogram: 0.007},
		Bollinger: model.BollingerValues{Position: 0.68},
	}

	score := calc.Calculate(ind, model.AnalysisContext{}.Normalize())

	assert.Greater(t, score, 70.0)
	assert.LessOrEqual(t, score, 100.0)
}

func TestTechnicalCalculator_DetailMatchesScore(t *testing.T) {
	calc := NewTechnicalCalculator(zerolog.Nop())
	ind := model.TechnicalIndicators{RSI: 58, Bollinger: model.BollingerValues{Position: 0.5}}
	ctx := model.AnalysisContext{}.Normalize()

	detail := calc.Analyze(ind, ctx)

	assert.Equal(t, calc.Calculate(ind, ctx), detail.Score)
	assert.Len(t, detail.Factors, 5)

	var weightSum float64
	for _, f := range detail.Factors {
		weightSum += f.Weight
	}
	assert.InDelta(t, 1.0, weightSum, 1e-9)
}

func TestTechnicalCalculator_NaNInputsNeutral(t *testing.T) {
	calc := NewTechnicalCalculator(zerolog.Nop())
	ind := model.TechnicalIndicators{
		RSI:       math.NaN(),
		MACD:      model.MACDValues{MACD: math.NaN(), Signal: math.NaN(), Histogram: math.NaN()},
		Bollinger: model.BollingerValues{Position: math.NaN()},
	}

	score := calc.Calculate(ind, model.AnalysisContext{}.Normalize())

	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 100.0)
}
