// Package timeframe combines per-timeframe indicator snapshots into one
// weighted score with an alignment bonus and an exhaustion penalty.
package timeframe

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/tokenwatch/rater/internal/mathutil"
	"github.com/tokenwatch/rater/internal/model"
)

// TimeframeBreakdown is one timeframe's contribution to the blend.
type TimeframeBreakdown struct {
	Timeframe  string               `json:"timeframe"`
	Score      float64              `json:"score"`      // [0,100]
	Confidence float64              `json:"confidence"` // [0,100]
	Weight     float64              `json:"weight"`     // renormalized
	Alignment  model.TrendDirection `json:"alignment"`
	Exhausted  bool                 `json:"exhausted"`
}

// Result is the multi-timeframe blend output.
type Result struct {
	FinalScore        float64              `json:"final_score"` // [0,100]
	Confidence        float64              `json:"confidence"`  // [0,100]
	WeightedScore     float64              `json:"weighted_score"`
	AlignmentBonus    float64              `json:"alignment_bonus"`
	ExhaustionPenalty float64              `json:"exhaustion_penalty"`
	Dominant          model.TrendDirection `json:"dominant"`
	ConsensusStrength float64              `json:"consensus_strength"` // [0,1], weighted agreement
	Timeframes        []TimeframeBreakdown `json:"timeframes"`
}

// NeutralResult is the fallback when no timeframe carries valid indicators.
func NeutralResult() Result {
	return Result{
		FinalScore: 50,
		Confidence: 20,
		Dominant:   model.TrendNeutral,
		Timeframes: []TimeframeBreakdown{},
	}
}

// Calculator blends timeframe snapshots. Longer timeframes carry the higher
// configured weight (60/40 for the default 4h/1h pair); weights generalize
// to N timeframes and are renormalized over the valid ones.
type Calculator struct {
	log zerolog.Logger
}

// New creates a Calculator.
func New(logger zerolog.Logger) *Calculator {
	return &Calculator{log: logger.With().Str("calculator", "timeframe").Logger()}
}

// Calculate blends all valid timeframes. Zero valid timeframes returns the
// neutral fallback rather than an error.
func (c *Calculator) Calculate(data map[string]model.TimeframeIndicators, ctx model.AnalysisContext) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn().Interface("panic", r).Msg("timeframe calculator recovered, using neutral result")
			res = NeutralResult()
		}
	}()

	breakdowns := make([]TimeframeBreakdown, 0, len(data))
	var weightSum float64
	for label, tf := range data {
		if !hasValidIndicators(tf.Indicators) {
			continue
		}
		w := tf.Weight
		if w <= 0 {
			w = 1
		}
		breakdowns = append(breakdowns, TimeframeBreakdown{
			Timeframe:  label,
			Score:      scoreTimeframe(tf.Indicators),
			Confidence: timeframeConfidence(tf),
			Weight:     w,
			Alignment:  classifyAlignment(tf.Indicators),
			Exhausted:  tf.Exhaustion.Flagged,
		})
		weightSum += w
	}

	if len(breakdowns) == 0 {
		return NeutralResult()
	}

	// Stable output ordering regardless of map iteration.
	sort.Slice(breakdowns, func(i, j int) bool { return breakdowns[i].Timeframe < breakdowns[j].Timeframe })
	for i := range breakdowns {
		breakdowns[i].Weight /= weightSum
	}

	var weightedScore, weightedConf, exhaustedFrac float64
	for _, b := range breakdowns {
		weightedScore += b.Score * b.Weight
		weightedConf += b.Confidence * b.Weight
		if b.Exhausted {
			exhaustedFrac += b.Weight
		}
	}

	dominant, consensus := consensusStrength(breakdowns)
	bonus := alignmentBonus(consensus)
	penalty := exhaustionPenalty(exhaustedFrac)

	confidence := weightedConf + consensus*20
	if sufficientData(breakdowns) {
		confidence += 10
	} else {
		confidence -= 10
	}

	return Result{
		FinalScore:        mathutil.ClampScore(weightedScore + bonus + penalty),
		Confidence:        mathutil.ClampScore(confidence),
		WeightedScore:     weightedScore,
		AlignmentBonus:    bonus,
		ExhaustionPenalty: penalty,
		Dominant:          dominant,
		ConsensusStrength: consensus,
		Timeframes:        breakdowns,
	}
}

// hasValidIndicators reports whether at least one of RSI, MACD, Bollinger,
// or EMA carries a well-formed number.
func hasValidIndicators(ind model.TechnicalIndicators) bool {
	if mathutil.IsFiniteNumber(ind.RSI) && ind.RSI > 0 {
		return true
	}
	if mathutil.IsFiniteNumber(ind.MACD.MACD) && (ind.MACD.MACD != 0 || ind.MACD.Histogram != 0) {
		return true
	}
	if mathutil.IsFiniteNumber(ind.Bollinger.Position) && ind.Bollinger.Upper > ind.Bollinger.Lower {
		return true
	}
	for _, v := range ind.EMA {
		if mathutil.IsFiniteNumber(v) && v > 0 {
			return true
		}
	}
	return false
}

// scoreTimeframe folds RSI position, MACD thrust, band position, and EMA
// ordering into one 0-100 score for a single timeframe.
func scoreTimeframe(ind model.TechnicalIndicators) float64 {
	score := 50.0

	if mathutil.IsFiniteNumber(ind.RSI) && ind.RSI > 0 {
		switch {
		case ind.RSI >= 45 && ind.RSI <= 65:
			score += 15
		case ind.RSI > 65 && ind.RSI <= 75:
			score += 5
		case ind.RSI > 75:
			score -= 10
		case ind.RSI >= 30 && ind.RSI < 45:
			score -= 2
		default:
			score -= 8
		}
	}

	if mathutil.IsFiniteNumber(ind.MACD.Histogram) {
		if ind.MACD.Histogram > 0 {
			score += 12
		} else if ind.MACD.Histogram < 0 {
			score -= 12
		}
		if ind.MACD.MACD > ind.MACD.Signal {
			score += 5
		}
	}

	pos := ind.Bollinger.Position
	if mathutil.IsFiniteNumber(pos) && ind.Bollinger.Upper > ind.Bollinger.Lower {
		switch {
		case pos >= 0.5 && pos <= 0.85:
			score += 10
		case pos > 0.95:
			score -= 10
		case pos < 0.15:
			score -= 5
		}
	}

	if frac := emaAlignmentFraction(ind.EMA); frac >= 0 {
		score += (frac - 0.5) * 16 // -8..+8
	}

	return mathutil.ClampScore(score)
}

func emaAlignmentFraction(ema map[int]float64) float64 {
	periods := make([]int, 0, len(ema))
	for p, v := range ema {
		if mathutil.IsFiniteNumber(v) && v > 0 {
			periods = append(periods, p)
		}
	}
	if len(periods) < 2 {
		return -1
	}
	sort.Ints(periods)
	aligned := 0
	for i := 0; i < len(periods)-1; i++ {
		if ema[periods[i]] > ema[periods[i+1]] {
			aligned++
		}
	}
	return float64(aligned) / float64(len(periods)-1)
}

// classifyAlignment takes the majority read of RSI, MACD, and Bollinger.
func classifyAlignment(ind model.TechnicalIndicators) model.TrendDirection {
	bullish, bearish := 0, 0

	if ind.RSI >= 55 {
		bullish++
	} else if ind.RSI > 0 && ind.RSI < 45 {
		bearish++
	}
	if ind.MACD.Histogram > 0 {
		bullish++
	} else if ind.MACD.Histogram < 0 {
		bearish++
	}
	if ind.Bollinger.Position >= 0.6 {
		bullish++
	} else if ind.Bollinger.Position > 0 && ind.Bollinger.Position < 0.4 {
		bearish++
	}

	if bullish >= 2 && bullish > bearish {
		return model.TrendBullish
	}
	if bearish >= 2 && bearish > bullish {
		return model.TrendBearish
	}
	return model.TrendNeutral
}

// timeframeConfidence reads data sufficiency and signal clarity, minus an
// exhaustion haircut.
func timeframeConfidence(tf model.TimeframeIndicators) float64 {
	conf := 40.0

	switch {
	case tf.DataPoints >= 100:
		conf += 30
	case tf.DataPoints >= 50:
		conf += 20
	case tf.DataPoints >= 20:
		conf += 10
	}

	// Clear directional signals read as higher confidence than a mixed bag.
	if classifyAlignment(tf.Indicators) != model.TrendNeutral {
		conf += 15
	}

	if tf.Exhaustion.Flagged {
		conf -= 15 * mathutil.Clamp01(tf.Exhaustion.Severity+0.5)
	}

	return mathutil.ClampScore(conf)
}

// consensusStrength returns the dominant direction and the weighted fraction
// of timeframes agreeing with it.
func consensusStrength(breakdowns []TimeframeBreakdown) (model.TrendDirection, float64) {
	byDir := map[model.TrendDirection]float64{}
	for _, b := range breakdowns {
		byDir[b.Alignment] += b.Weight
	}

	dominant := model.TrendNeutral
	best := 0.0
	for _, dir := range []model.TrendDirection{model.TrendBullish, model.TrendBearish, model.TrendNeutral} {
		if byDir[dir] > best {
			dominant = dir
			best = byDir[dir]
		}
	}
	return dominant, best
}

// alignmentBonus converts consensus strength into the fixed bonus tiers.
func alignmentBonus(consensus float64) float64 {
	switch {
	case consensus >= 0.75:
		return 25
	case consensus >= 0.60:
		return 15
	case consensus >= 0.50:
		return 8
	case consensus < 0.30:
		return -5 // divergence penalty
	default:
		return 0
	}
}

// exhaustionPenalty converts the weighted exhausted fraction into the fixed
// penalty tiers.
func exhaustionPenalty(exhaustedFrac float64) float64 {
	switch {
	case exhaustedFrac >= 0.60:
		return -50
	case exhaustedFrac >= 0.40:
		return -30
	case exhaustedFrac >= 0.20:
		return -15
	default:
		return 0
	}
}

// sufficientData reports whether every timeframe carries a workable sample.
func sufficientData(breakdowns []TimeframeBreakdown) bool {
	for _, b := range breakdowns {
		if b.Confidence < 50 {
			return false
		}
	}
	return true
}
