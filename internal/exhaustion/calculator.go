// Package exhaustion detects overextension across RSI, volume, momentum
// divergence, and price-extension families, producing a bounded negative
// penalty. Results are recomputed fresh every cycle; nothing persists.
package exhaustion

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/tokenwatch/rater/internal/mathutil"
	"github.com/tokenwatch/rater/internal/model"
)

// MaxPenalty is the hard floor on the summed penalty.
const MaxPenalty = -50.0

// Calculator produces exhaustion penalties. Must never fail: internal errors
// resolve to the zero-signal default.
type Calculator struct {
	log zerolog.Logger
}

// New creates a Calculator.
func New(logger zerolog.Logger) *Calculator {
	return &Calculator{log: logger.With().Str("calculator", "exhaustion").Logger()}
}

// CalculatePenalty evaluates all signal families and clamps the summed
// penalty to [-50, 0]. multiTimeframe may be nil.
func (c *Calculator) CalculatePenalty(
	ind model.TechnicalIndicators,
	momentum model.MomentumAnalysis,
	volume model.VolumeAnalysis,
	multiTimeframe map[string]model.TimeframeIndicators,
	ctx model.AnalysisContext,
) (res model.ExhaustionPenaltyResult) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn().Interface("panic", r).Msg("exhaustion calculator recovered, returning no-penalty result")
			res = model.NoExhaustion()
		}
	}()

	signals := make([]model.ExhaustionSignal, 0, 8)
	signals = append(signals, rsiSignals(ind.RSI)...)
	signals = append(signals, volumeSignals(volume)...)
	signals = append(signals, divergenceSignals(ind.MACD, momentum)...)
	signals = append(signals, extensionSignals(ind.Bollinger, momentum.Volatility)...)

	breakdown := map[string]float64{}
	signals = append(signals, multiTimeframeSignals(multiTimeframe, breakdown)...)

	var total float64
	for _, s := range signals {
		total += s.Penalty
	}
	total = mathutil.Clamp(total, MaxPenalty, 0)

	result := model.ExhaustionPenaltyResult{
		TotalPenalty: total,
		Signals:      signals,
		Level:        model.LevelForPenalty(total),
	}
	if len(breakdown) > 0 {
		result.TimeframeBreakdown = breakdown
	}
	result.Reasoning = reasoningFor(result)
	result.Recommendations = recommendationsFor(result)
	return result
}

// rsiSignals emits tiered overbought/oversold signals.
func rsiSignals(rsi float64) []model.ExhaustionSignal {
	if !mathutil.IsFiniteNumber(rsi) || rsi <= 0 {
		return nil
	}
	switch {
	case rsi > 85:
		return []model.ExhaustionSignal{{
			Type: model.SignalRSIOverbought, Severity: "severe", Penalty: -18, Confidence: 0.9,
			Detail: fmt.Sprintf("RSI %.1f deep overbought", rsi),
		}}
	case rsi > 80:
		return []model.ExhaustionSignal{{
			Type: model.SignalRSIOverbought, Severity: "moderate", Penalty: -12, Confidence: 0.8,
			Detail: fmt.Sprintf("RSI %.1f overbought", rsi),
		}}
	case rsi > 70:
		return []model.ExhaustionSignal{{
			Type: model.SignalRSIOverbought, Severity: "mild", Penalty: -6, Confidence: 0.65,
			Detail: fmt.Sprintf("RSI %.1f stretched", rsi),
		}}
	case rsi < 15:
		return []model.ExhaustionSignal{{
			Type: model.SignalRSIOversold, Severity: "severe", Penalty: -12, Confidence: 0.85,
			Detail: fmt.Sprintf("RSI %.1f capitulation zone", rsi),
		}}
	case rsi < 20:
		return []model.ExhaustionSignal{{
			Type: model.SignalRSIOversold, Severity: "moderate", Penalty: -8, Confidence: 0.75,
			Detail: fmt.Sprintf("RSI %.1f deeply oversold", rsi),
		}}
	case rsi < 30:
		return []model.ExhaustionSignal{{
			Type: model.SignalRSIOversold, Severity: "mild", Penalty: -4, Confidence: 0.6,
			Detail: fmt.Sprintf("RSI %.1f oversold", rsi),
		}}
	}
	return nil
}

// volumeSignals reads post-spike collapse, sustained drought, and
// high-spike distribution patterns.
func volumeSignals(v model.VolumeAnalysis) []model.ExhaustionSignal {
	if v.AverageVolume <= 0 {
		return nil
	}
	var signals []model.ExhaustionSignal
	ratio := v.CurrentVolume / v.AverageVolume

	// Volume collapsing after a spike: the move ran out of fuel.
	if v.VolumeSpike && ratio < 0.5 {
		signals = append(signals, model.ExhaustionSignal{
			Type: model.SignalVolumeCollapse, Severity: "moderate", Penalty: -10, Confidence: 0.75,
			Detail: fmt.Sprintf("volume %.0f%% of average after spike", ratio*100),
		})
	} else if ratio < 0.3 {
		signals = append(signals, model.ExhaustionSignal{
			Type: model.SignalVolumeDrought, Severity: "mild", Penalty: -6, Confidence: 0.6,
			Detail: fmt.Sprintf("sustained volume at %.0f%% of average", ratio*100),
		})
	}

	// Heavy spike with net selling is a distribution pattern.
	if v.VolumeSpikeFactor >= 3 && v.VolumeProfile.NetFlow < -0.2 {
		signals = append(signals, model.ExhaustionSignal{
			Type: model.SignalDistribution, Severity: "severe", Penalty: -14, Confidence: 0.8,
			Detail: fmt.Sprintf("%.1fx spike with net flow %.2f", v.VolumeSpikeFactor, v.VolumeProfile.NetFlow),
		})
	}
	return signals
}

// divergenceSignals reads MACD histogram collapse and trend/strength
// mismatch.
func divergenceSignals(macd model.MACDValues, momentum model.MomentumAnalysis) []model.ExhaustionSignal {
	var signals []model.ExhaustionSignal

	// Histogram collapsing toward zero while the MACD line is extended.
	ref := math.Abs(macd.MACD)
	if ref > 1e-9 && mathutil.IsFiniteNumber(macd.Histogram) {
		if math.Abs(macd.Histogram)/ref < 0.1 {
			signals = append(signals, model.ExhaustionSignal{
				Type: model.SignalMomentumDivergence, Severity: "moderate", Penalty: -8, Confidence: 0.7,
				Detail: "MACD histogram collapsing toward zero",
			})
		}
	}

	// A strong labeled trend with weak measured strength is a mismatch.
	if momentum.Trend != model.TrendNeutral && momentum.Strength < 25 {
		signals = append(signals, model.ExhaustionSignal{
			Type: model.SignalTrendMismatch, Severity: "mild", Penalty: -5, Confidence: 0.6,
			Detail: fmt.Sprintf("%s trend with strength %.0f", momentum.Trend, momentum.Strength),
		})
	}
	return signals
}

// extensionSignals reads Bollinger extension, amplified by high volatility.
func extensionSignals(b model.BollingerValues, volatility float64) []model.ExhaustionSignal {
	pos := b.Position
	if !mathutil.IsFiniteNumber(pos) || b.Upper <= b.Lower {
		return nil
	}

	var penalty float64
	var severity string
	switch {
	case pos > 0.95:
		penalty, severity = -12, "severe"
	case pos > 0.85:
		penalty, severity = -6, "mild"
	default:
		return nil
	}
	if volatility > 40 {
		penalty *= 1.5 // extension in a volatile tape unwinds harder
		severity = "severe"
	}
	return []model.ExhaustionSignal{{
		Type: model.SignalPriceExtension, Severity: severity, Penalty: penalty,
		Confidence: 0.7,
		Detail:     fmt.Sprintf("band position %.2f", pos),
	}}
}

// multiTimeframeSignals folds per-timeframe exhaustion flags in, weighted by
// each timeframe's configured weight.
func multiTimeframeSignals(data map[string]model.TimeframeIndicators, breakdown map[string]float64) []model.ExhaustionSignal {
	if len(data) == 0 {
		return nil
	}
	var weightSum float64
	for _, tf := range data {
		w := tf.Weight
		if w <= 0 {
			w = 1
		}
		weightSum += w
	}
	if weightSum == 0 {
		return nil
	}

	var signals []model.ExhaustionSignal
	for label, tf := range data {
		if !tf.Exhaustion.Flagged {
			breakdown[label] = 0
			continue
		}
		w := tf.Weight
		if w <= 0 {
			w = 1
		}
		penalty := -12 * (w / weightSum) * (0.5 + mathutil.Clamp01(tf.Exhaustion.Severity))
		breakdown[label] = mathutil.RoundTo(penalty, 2)
		signals = append(signals, model.ExhaustionSignal{
			Type:       exhaustionTypeFor(tf.Exhaustion),
			Severity:   severityFor(tf.Exhaustion.Severity),
			Timeframe:  label,
			Penalty:    penalty,
			Confidence: mathutil.Clamp(0.5+tf.Exhaustion.Severity/2, 0.5, 0.95),
			Detail:     fmt.Sprintf("%s flagged exhausted", label),
		})
	}
	return signals
}

func exhaustionTypeFor(s model.ExhaustionSummary) model.ExhaustionSignalType {
	switch {
	case s.RSIOverbought:
		return model.SignalRSIOverbought
	case s.RSIOversold:
		return model.SignalRSIOversold
	case s.VolumeFading:
		return model.SignalVolumeCollapse
	default:
		return model.SignalMomentumDivergence
	}
}

func severityFor(severity float64) string {
	switch {
	case severity >= 0.7:
		return "severe"
	case severity >= 0.4:
		return "moderate"
	default:
		return "mild"
	}
}

func reasoningFor(res model.ExhaustionPenaltyResult) []string {
	if len(res.Signals) == 0 {
		return nil
	}
	reasons := []string{
		fmt.Sprintf("%d exhaustion signal(s), level %s, penalty %.1f", len(res.Signals), res.Level, res.TotalPenalty),
	}
	for _, s := range res.Signals {
		if s.Severity == "severe" {
			reasons = append(reasons, s.Detail)
		}
	}
	return reasons
}

func recommendationsFor(res model.ExhaustionPenaltyResult) []string {
	switch res.Level {
	case model.ExhaustionExtreme:
		return []string{"avoid new entries until exhaustion clears"}
	case model.ExhaustionSevere:
		return []string{"reduce position sizing, momentum likely spent"}
	case model.ExhaustionModerate:
		return []string{"wait for a pullback before entering"}
	default:
		return nil
	}
}
