// Package confidence aggregates data-quality, stability, market-condition,
// and subsystem-agreement factors into one confidence percentage with an
// optional statistical interval.
package confidence

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/tokenwatch/rater/internal/mathutil"
	"github.com/tokenwatch/rater/internal/model"
	"github.com/tokenwatch/rater/internal/timeframe"
)

// Factor weights. They must sum to 1.0.
const (
	weightDataQuality        = 0.16
	weightSampleSize         = 0.14
	weightHistoricalAccuracy = 0.14
	weightFactorAgreement    = 0.12
	weightModelStability     = 0.12
	weightMarketConditions   = 0.12
	weightTimeframeAlignment = 0.10
	weightConsecutiveMoment  = 0.06
	weightExhaustionRisk     = 0.04
)

// Confidence is clamped to [10,95]: never certain, never worthless.
const (
	MinConfidence = 10.0
	MaxConfidence = 95.0
)

// Reliability labels the confidence band for the detailed path.
type Reliability string

const (
	ReliabilityVeryHigh Reliability = "very_high"
	ReliabilityHigh     Reliability = "high"
	ReliabilityModerate Reliability = "moderate"
	ReliabilityLow      Reliability = "low"
	ReliabilityVeryLow  Reliability = "very_low"
)

// Inputs bundles everything the calculator reads. Optional subsystem
// results may be nil.
type Inputs struct {
	Scores             model.ScoreComponents
	Context            model.AnalysisContext
	HistoricalAccuracy float64 // [0,1]
	Timeframes         *timeframe.Result
	Streak             *model.ConsecutiveMomentumTracking
	Exhaustion         *model.ExhaustionPenaltyResult
}

// Factors exposes the nine [0,1] sub-factors for explainability.
type Factors struct {
	DataQuality        float64 `json:"data_quality"`
	SampleSize         float64 `json:"sample_size"`
	ModelStability     float64 `json:"model_stability"`
	MarketConditions   float64 `json:"market_conditions"`
	FactorAgreement    float64 `json:"factor_agreement"`
	HistoricalAccuracy float64 `json:"historical_accuracy"`
	TimeframeAlignment float64 `json:"timeframe_alignment"`
	ConsecutiveMoment  float64 `json:"consecutive_momentum"`
	ExhaustionRisk     float64 `json:"exhaustion_risk"`
}

// Detailed is the extended output with a confidence interval around the
// weighted rating.
type Detailed struct {
	Confidence   float64     `json:"confidence"`
	Factors      Factors     `json:"factors"`
	IntervalLow  float64     `json:"interval_low"`
	IntervalHigh float64     `json:"interval_high"`
	Reliability  Reliability `json:"reliability"`
}

// Calculator computes confidence.
type Calculator struct {
	log zerolog.Logger
}

// New creates a Calculator.
func New(logger zerolog.Logger) *Calculator {
	return &Calculator{log: logger.With().Str("calculator", "confidence").Logger()}
}

// Calculate returns the confidence percentage in [10,95].
func (c *Calculator) Calculate(in Inputs) float64 {
	factors := c.factors(in)
	weighted := factors.DataQuality*weightDataQuality +
		factors.SampleSize*weightSampleSize +
		factors.HistoricalAccuracy*weightHistoricalAccuracy +
		factors.FactorAgreement*weightFactorAgreement +
		factors.ModelStability*weightModelStability +
		factors.MarketConditions*weightMarketConditions +
		factors.TimeframeAlignment*weightTimeframeAlignment +
		factors.ConsecutiveMoment*weightConsecutiveMoment +
		factors.ExhaustionRisk*weightExhaustionRisk

	// Sub-linear power keeps mid confidences from collapsing while still
	// penalizing the weak end.
	pct := math.Pow(mathutil.Clamp01(weighted), 0.9) * 100
	return mathutil.Clamp(pct, MinConfidence, MaxConfidence)
}

// CalculateDetailed additionally produces an interval around the weighted
// rating using a z-score approximation, plus a reliability label.
func (c *Calculator) CalculateDetailed(in Inputs, rating float64) Detailed {
	conf := c.Calculate(in)
	factors := c.factors(in)

	// Spread narrows as confidence rises; 1.96 approximates the 95% z.
	spread := 1.96 * (1 - conf/100) * 2.0
	return Detailed{
		Confidence:   conf,
		Factors:      factors,
		IntervalLow:  mathutil.Clamp(rating-spread, 1, 10),
		IntervalHigh: mathutil.Clamp(rating+spread, 1, 10),
		Reliability:  reliabilityFor(conf),
	}
}

func reliabilityFor(conf float64) Reliability {
	switch {
	case conf >= 85:
		return ReliabilityVeryHigh
	case conf >= 70:
		return ReliabilityHigh
	case conf >= 55:
		return ReliabilityModerate
	case conf >= 40:
		return ReliabilityLow
	default:
		return ReliabilityVeryLow
	}
}

func (c *Calculator) factors(in Inputs) Factors {
	ctx := in.Context
	return Factors{
		DataQuality:        dataQuality(ctx),
		SampleSize:         sampleSize(ctx),
		ModelStability:     modelStability(in.Scores, ctx),
		MarketConditions:   marketConditions(ctx),
		FactorAgreement:    factorAgreement(in.Scores),
		HistoricalAccuracy: mathutil.Clamp01(in.HistoricalAccuracy),
		TimeframeAlignment: timeframeAlignment(in.Timeframes),
		ConsecutiveMoment:  consecutiveMomentum(in.Streak),
		ExhaustionRisk:     exhaustionRisk(in.Exhaustion),
	}
}

// dataQuality reads chart completeness and field consistency.
func dataQuality(ctx model.AnalysisContext) float64 {
	quality := 0.3 // floor for having any snapshot at all

	if n := len(ctx.ChartData); n > 0 {
		quality += 0.3 * mathutil.Clamp01(float64(n)/100)
		// Consistency: bars must be sane (high >= low, positive close).
		sane := 0
		for _, bar := range ctx.ChartData {
			if bar.High >= bar.Low && bar.Close > 0 {
				sane++
			}
		}
		quality += 0.2 * float64(sane) / float64(n)
	}
	if len(ctx.MultiTimeframeData) > 0 {
		quality += 0.1
	}
	if ctx.TokenData.Address != "" {
		quality += 0.1
	}
	return mathutil.Clamp01(quality)
}

// sampleSize reads history length plus chart length.
func sampleSize(ctx model.AnalysisContext) float64 {
	hist := mathutil.Clamp01(float64(len(ctx.HistoricalRatings)) / 20)
	chart := mathutil.Clamp01(float64(len(ctx.ChartData)) / 200)
	return mathutil.Clamp01(0.2 + hist*0.5 + chart*0.3)
}

// modelStability falls with variance of the current subscores and variance
// of the token's recent ratings.
func modelStability(scores model.ScoreComponents, ctx model.AnalysisContext) float64 {
	current := []float64{scores.Technical, scores.Momentum, scores.Volume, scores.Risk}
	scoreVar := mathutil.StdDev(current) // 0..~50

	stability := 1 - mathutil.Clamp01(scoreVar/50)

	if len(ctx.HistoricalRatings) >= 3 {
		ratings := make([]float64, 0, len(ctx.HistoricalRatings))
		for _, r := range ctx.HistoricalRatings {
			ratings = append(ratings, r.Rating)
		}
		// Rating scale is 1-10; a stddev of 3 is already chaotic.
		ratingVar := mathutil.Clamp01(mathutil.StdDev(ratings) / 3)
		stability = stability*0.6 + (1-ratingVar)*0.4
	}
	return mathutil.Clamp01(stability)
}

// marketConditions favors bull trend and low volatility; sideways and
// high-volatility tapes read less trustworthy.
func marketConditions(ctx model.AnalysisContext) float64 {
	mc := ctx.MarketContext
	if mc == nil {
		return 0.5
	}
	cond := 0.5
	switch mc.OverallTrend {
	case model.MarketBull:
		cond += 0.2
	case model.MarketBear:
		cond -= 0.1
	default: // sideways cuts conviction
		cond -= 0.05
	}
	cond += (50 - mc.VolatilityIndex) / 200 // +-0.25
	cond += (mc.MarketSentiment - 50) / 500 // +-0.1
	return mathutil.Clamp01(cond)
}

// factorAgreement rewards low dispersion among the active subscores with a
// bonus for directional consensus.
func factorAgreement(scores model.ScoreComponents) float64 {
	active := []float64{scores.Technical, scores.Momentum, scores.Volume, scores.Risk}
	spread := mathutil.StdDev(active)
	agreement := 1 - mathutil.Clamp01(spread/40)

	// Directional consensus: all four leaning the same side of neutral.
	above, below := 0, 0
	for _, s := range active {
		if s >= 55 {
			above++
		} else if s <= 45 {
			below++
		}
	}
	if above == len(active) || below == len(active) {
		agreement = mathutil.Clamp01(agreement + 0.15)
	}
	return agreement
}

// timeframeAlignment derives from consensus strength, neutral 0.7 when no
// multi-timeframe data is present.
func timeframeAlignment(res *timeframe.Result) float64 {
	if res == nil || len(res.Timeframes) == 0 {
		return 0.7
	}
	return mathutil.Clamp01(0.3 + res.ConsensusStrength*0.7)
}

// consecutiveMomentum rises with streak length, penalized by exhaustion and
// diminishing-returns flags.
func consecutiveMomentum(tracking *model.ConsecutiveMomentumTracking) float64 {
	if tracking == nil {
		return 0.5
	}
	conf := 0.4 + mathutil.Clamp01(float64(tracking.ConsecutiveCount)/6)*0.5
	if tracking.ExhaustionWarning {
		conf -= 0.25
	}
	if tracking.DiminishingReturns {
		conf -= 0.1
	}
	return mathutil.Clamp01(conf)
}

// exhaustionRisk is the inverse of the normalized penalty magnitude.
func exhaustionRisk(res *model.ExhaustionPenaltyResult) float64 {
	if res == nil {
		return 1
	}
	return mathutil.Clamp01(1 - math.Abs(res.TotalPenalty)/50)
}
