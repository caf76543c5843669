package scoring

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/tokenwatch/rater/internal/mathutil"
	"github.com/tokenwatch/rater/internal/model"
)

// Fixed internal weights for the momentum factor blend.
const (
	momentumWeightTrend      = 0.35
	momentumWeightRate       = 0.25
	momentumWeightVolatility = 0.15
	momentumWeightBreakout   = 0.15
	momentumWeightStructure  = 0.10
)

// MomentumCalculator scores a momentum snapshot.
type MomentumCalculator struct {
	log zerolog.Logger
}

// NewMomentumCalculator creates a MomentumCalculator.
func NewMomentumCalculator(logger zerolog.Logger) *MomentumCalculator {
	return &MomentumCalculator{log: logger.With().Str("calculator", "momentum").Logger()}
}

// Calculate returns the 0-100 momentum subscore. Never panics.
func (c *MomentumCalculator) Calculate(m model.MomentumAnalysis, ctx model.AnalysisContext) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn().Interface("panic", r).Msg("momentum calculator recovered, using neutral score")
			score = NeutralScore
		}
	}()
	return c.Analyze(m, ctx).Score
}

// Analyze returns the subscore with its per-factor breakdown.
func (c *MomentumCalculator) Analyze(m model.MomentumAnalysis, ctx model.AnalysisContext) DetailedAnalysis {
	trend := scoreTrendStrength(m.Trend, m.Strength)
	rate := scoreMomentumRate(m.Momentum)
	vol := scoreVolatilityFit(m.Volatility)
	breakout := scoreBreakout(m.PriceAction)
	structure := scorePriceStructure(m)

	factors := []FactorScore{
		{Name: "trend_strength", Score: trend, Weight: momentumWeightTrend, Signal: signalForScore(trend),
			Description: fmt.Sprintf("%s trend at strength %.0f", m.Trend, m.Strength)},
		{Name: "momentum_rate", Score: rate, Weight: momentumWeightRate, Signal: signalForScore(rate),
			Description: fmt.Sprintf("rate of change %.2f", m.Momentum)},
		{Name: "volatility_fit", Score: vol, Weight: momentumWeightVolatility, Signal: signalForScore(vol),
			Description: fmt.Sprintf("volatility %.1f%%", m.Volatility)},
		{Name: "breakout", Score: breakout, Weight: momentumWeightBreakout, Signal: signalForScore(breakout),
			Description: fmt.Sprintf("breakout potential %.2f", m.PriceAction.BreakoutPotential)},
		{Name: "price_structure", Score: structure, Weight: momentumWeightStructure, Signal: signalForScore(structure),
			Description: "support/resistance structure"},
	}

	return DetailedAnalysis{
		Component: "momentum",
		Score:     mathutil.ClampScore(weightedTotal(factors)),
		Factors:   factors,
	}
}

// scoreTrendStrength maps directional strength. Bearish trends invert the
// strength axis; neutral trends pin near the middle.
func scoreTrendStrength(trend model.TrendDirection, strength float64) float64 {
	strength = mathutil.Clamp(strength, 0, 100)
	switch trend {
	case model.TrendBullish:
		return 50 + strength/2 // 50 -> 100
	case model.TrendBearish:
		return 50 - strength/2 // 50 -> 0
	default:
		return mathutil.Clamp(45+strength/10, 40, 55)
	}
}

// scoreMomentumRate squashes the signed rate of change with tanh so large
// moves saturate instead of dominating.
func scoreMomentumRate(momentum float64) float64 {
	if !mathutil.IsFiniteNumber(momentum) {
		return NeutralScore
	}
	return mathutil.ClampScore(50 + math.Tanh(momentum/10)*45)
}

// scoreVolatilityFit prefers a 15-25% band: enough movement to trade, not
// enough to be chaos. Decays on both sides.
func scoreVolatilityFit(volatility float64) float64 {
	if !mathutil.IsFiniteNumber(volatility) || volatility < 0 {
		return NeutralScore
	}
	switch {
	case volatility >= 15 && volatility <= 25:
		return 95
	case volatility < 15:
		return 40 + (volatility/15)*55 // 40 -> 95
	default:
		excess := volatility - 25
		return mathutil.Clamp(95-excess*2, 15, 95)
	}
}

func scoreBreakout(pa model.PriceAction) float64 {
	score := mathutil.Clamp01(pa.BreakoutPotential) * 100
	if pa.Consolidation && pa.BreakoutPotential > 0.5 {
		// Coiled consolidation ahead of a breakout reads stronger.
		score = mathutil.ClampScore(score + 10)
	}
	return score
}

// scorePriceStructure reads support/resistance proximity and reversal flags.
func scorePriceStructure(m model.MomentumAnalysis) float64 {
	score := 50.0
	if len(m.Support) > 0 {
		score += 10 // defined downside structure
	}
	if len(m.Resistance) == 0 && m.Trend == model.TrendBullish {
		score += 15 // blue sky, no overhead supply
	}
	if m.PriceAction.ReversalSignal {
		if m.Trend == model.TrendBearish {
			score += 20 // reversal against a downtrend is the opportunity
		} else {
			score -= 15 // reversal against an uptrend is the warning
		}
	}
	return mathutil.ClampScore(score)
}
