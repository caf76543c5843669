package scoring

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tokenwatch/rater/internal/mathutil"
	"github.com/tokenwatch/rater/internal/model"
)

// Fixed internal weights for the volume factor blend.
const (
	volumeWeightSpike       = 0.35
	volumeWeightFlow        = 0.25
	volumeWeightLiquidity   = 0.15
	volumeWeightPersistence = 0.15
	volumeWeightConsistency = 0.10
)

// VolumeCalculator scores a volume snapshot. Spike persistence and
// consistency are computed over real historical periods when the caller
// supplies them; without history both resolve to the neutral score.
type VolumeCalculator struct {
	log zerolog.Logger
}

// NewVolumeCalculator creates a VolumeCalculator.
func NewVolumeCalculator(logger zerolog.Logger) *VolumeCalculator {
	return &VolumeCalculator{log: logger.With().Str("calculator", "volume").Logger()}
}

// Calculate returns the 0-100 volume subscore without history context.
func (c *VolumeCalculator) Calculate(v model.VolumeAnalysis, ctx model.AnalysisContext) float64 {
	return c.CalculateWithHistory(v, ctx, nil)
}

// CalculateWithHistory returns the subscore using recent momentum periods as
// the historical volume sample. Never panics.
func (c *VolumeCalculator) CalculateWithHistory(v model.VolumeAnalysis, ctx model.AnalysisContext, recent []model.MomentumPeriod) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn().Interface("panic", r).Msg("volume calculator recovered, using neutral score")
			score = NeutralScore
		}
	}()
	return c.Analyze(v, ctx, recent).Score
}

// Analyze returns the subscore with its per-factor breakdown.
func (c *VolumeCalculator) Analyze(v model.VolumeAnalysis, ctx model.AnalysisContext, recent []model.MomentumPeriod) DetailedAnalysis {
	spike := ScoreSpikeFactor(v.VolumeSpikeFactor)
	flow := scoreVolumeFlow(v.VolumeProfile)
	liq := scoreLiquidity(v.LiquidityScore)
	persistence := scoreSpikePersistence(recent)
	consistency := scoreVolumeConsistency(recent)

	factors := []FactorScore{
		{Name: "spike", Score: spike, Weight: volumeWeightSpike, Signal: signalForScore(spike),
			Description: fmt.Sprintf("%.1fx average volume", v.VolumeSpikeFactor)},
		{Name: "flow", Score: flow, Weight: volumeWeightFlow, Signal: signalForScore(flow),
			Description: fmt.Sprintf("net flow %.2f, buy pressure %.2f", v.VolumeProfile.NetFlow, v.VolumeProfile.BuyPressure)},
		{Name: "liquidity", Score: liq, Weight: volumeWeightLiquidity, Signal: signalForScore(liq),
			Description: fmt.Sprintf("liquidity score %.0f", v.LiquidityScore)},
		{Name: "persistence", Score: persistence, Weight: volumeWeightPersistence, Signal: signalForScore(persistence),
			Description: fmt.Sprintf("spike persistence over %d periods", len(recent))},
		{Name: "consistency", Score: consistency, Weight: volumeWeightConsistency, Signal: signalForScore(consistency),
			Description: "volume consistency vs average"},
	}

	return DetailedAnalysis{
		Component: "volume",
		Score:     mathutil.ClampScore(weightedTotal(factors)),
		Factors:   factors,
	}
}

// ScoreSpikeFactor maps the current/average volume ratio onto 0-100.
// Ratios of 3x and above are rewarded most heavily; implausibly extreme
// ratios beyond 20x read as likely manipulation and are penalized. The curve
// is strictly increasing on [0, 20].
func ScoreSpikeFactor(factor float64) float64 {
	if !mathutil.IsFiniteNumber(factor) || factor <= 0 {
		return 30
	}
	switch {
	case factor < 1:
		return 30 + 20*factor // 30 -> 50
	case factor < 2:
		return 50 + 10*(factor-1) // 1.5x -> 55
	case factor < 3:
		return 60 + 22*(factor-2) // 3x -> 82
	case factor < 5:
		return 82 + 4*(factor-3) // 5x -> 90
	case factor < 10:
		return 90 + 1.6*(factor-5) // 10x -> 98
	case factor <= 20:
		return 98 + 0.1*(factor-10) // saturates toward 99
	default:
		// Manipulation territory.
		return mathutil.Clamp(70-(factor-20), 25, 70)
	}
}

// scoreVolumeFlow reads directional pressure from the volume profile.
func scoreVolumeFlow(p model.VolumeProfile) float64 {
	net := mathutil.Clamp(p.NetFlow, -1, 1)
	buy := mathutil.Clamp01(p.BuyPressure)

	score := 50 + net*35 // [-1,1] -> [15,85]
	if buy > 0.7 {
		score += 10
	} else if buy < 0.3 {
		score -= 10
	}
	return mathutil.ClampScore(score)
}

func scoreLiquidity(liquidity float64) float64 {
	if !mathutil.IsFiniteNumber(liquidity) {
		return NeutralScore
	}
	return mathutil.Clamp(liquidity, 0, 100)
}

// scoreSpikePersistence measures how often recent periods confirmed volume.
// Requires real history; with none it stays neutral rather than guessing.
func scoreSpikePersistence(recent []model.MomentumPeriod) float64 {
	if len(recent) == 0 {
		return NeutralScore
	}
	confirmed := 0
	for _, p := range recent {
		if p.VolumeConfirmed {
			confirmed++
		}
	}
	frac := float64(confirmed) / float64(len(recent))
	return mathutil.ClampScore(30 + frac*60) // 30 (none) -> 90 (all)
}

// scoreVolumeConsistency rewards a stable volume/average ratio across recent
// periods; erratic volume scores low.
func scoreVolumeConsistency(recent []model.MomentumPeriod) float64 {
	ratios := make([]float64, 0, len(recent))
	for _, p := range recent {
		if p.AverageVolume > 0 {
			ratios = append(ratios, p.Volume/p.AverageVolume)
		}
	}
	if len(ratios) < 2 {
		return NeutralScore
	}
	mean := mathutil.Mean(ratios)
	if mean <= 0 {
		return NeutralScore
	}
	cv := mathutil.StdDev(ratios) / mean // coefficient of variation
	return mathutil.Clamp(90-cv*60, 20, 90)
}
