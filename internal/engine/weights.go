package engine

import (
	"github.com/tokenwatch/rater/internal/model"
)

// AdjustWeights adapts the configured base weights to current conditions:
// trending markets lean on technicals, high-volatility markets lean on risk,
// and an exceptional volume subscore earns volume extra say. The result is
// renormalized to sum to 1.0. Pure function; the base weights are not
// mutated.
func AdjustWeights(base model.Weights, mc model.MarketContext, scores model.ScoreComponents) model.Weights {
	adjusted := base

	if mc.OverallTrend != model.MarketSideways {
		adjusted.Technical += 0.05
	}
	if mc.VolatilityIndex > 70 {
		adjusted.Risk += 0.08
	}
	if scores.Volume > 85 {
		adjusted.Volume += 0.05
	}

	sum := adjusted.Sum()
	if sum <= 0 {
		return base
	}
	adjusted.Technical /= sum
	adjusted.Momentum /= sum
	adjusted.Volume /= sum
	adjusted.Risk /= sum
	return adjusted
}
