package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/tokenwatch/rater/internal/mathutil"
	"github.com/tokenwatch/rater/internal/model"
)

// Fixed internal weights for the technical factor blend.
const (
	technicalWeightRSI        = 0.25
	technicalWeightMACD       = 0.25
	technicalWeightBollinger  = 0.20
	technicalWeightMAAlign    = 0.20
	technicalWeightConfluence = 0.10
)

// NeutralScore is the fallback subscore when a calculator fails.
const NeutralScore = 50.0

// TechnicalCalculator scores an indicator snapshot.
type TechnicalCalculator struct {
	log zerolog.Logger
}

// NewTechnicalCalculator creates a TechnicalCalculator.
func NewTechnicalCalculator(logger zerolog.Logger) *TechnicalCalculator {
	return &TechnicalCalculator{log: logger.With().Str("calculator", "technical").Logger()}
}

// Calculate returns the 0-100 technical subscore. Never panics; internal
// failures resolve to the neutral score.
func (c *TechnicalCalculator) Calculate(ind model.TechnicalIndicators, ctx model.AnalysisContext) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn().Interface("panic", r).Msg("technical calculator recovered, using neutral score")
			score = NeutralScore
		}
	}()
	return c.Analyze(ind, ctx).Score
}

// Analyze returns the subscore with its per-factor breakdown.
func (c *TechnicalCalculator) Analyze(ind model.TechnicalIndicators, ctx model.AnalysisContext) DetailedAnalysis {
	rsi := scoreRSI(ind.RSI)
	macd := scoreMACD(ind.MACD)
	boll := scoreBollinger(ind.Bollinger)
	align := scoreMAAlignment(ind.EMA, ind.SMA)
	confl := scoreConfluence(rsi, macd, boll, align)

	factors := []FactorScore{
		{Name: "rsi", Score: rsi, Weight: technicalWeightRSI, Signal: signalForScore(rsi),
			Description: fmt.Sprintf("RSI %.1f", ind.RSI)},
		{Name: "macd", Score: macd, Weight: technicalWeightMACD, Signal: signalForScore(macd),
			Description: fmt.Sprintf("MACD %.4f vs signal %.4f, histogram %.4f", ind.MACD.MACD, ind.MACD.Signal, ind.MACD.Histogram)},
		{Name: "bollinger", Score: boll, Weight: technicalWeightBollinger, Signal: signalForScore(boll),
			Description: fmt.Sprintf("band position %.2f", ind.Bollinger.Position)},
		{Name: "ma_alignment", Score: align, Weight: technicalWeightMAAlign, Signal: signalForScore(align),
			Description: "moving-average ordering"},
		{Name: "confluence", Score: confl, Weight: technicalWeightConfluence, Signal: signalForScore(confl),
			Description: "multi-indicator agreement"},
	}

	return DetailedAnalysis{
		Component: "technical",
		Score:     mathutil.ClampScore(weightedTotal(factors)),
		Factors:   factors,
	}
}

// scoreRSI rewards the 45-65 healthy-bullish band most and decays on both
// sides. Oversold still scores better than deep overbought because it
// signals a reversal opportunity rather than a blow-off top.
func scoreRSI(rsi float64) float64 {
	if !mathutil.IsFiniteNumber(rsi) {
		return NeutralScore
	}
	rsi = mathutil.Clamp(rsi, 0, 100)

	switch {
	case rsi >= 45 && rsi <= 65:
		// Peak at 55, 90-100 across the band.
		return 100 - math.Abs(rsi-55)
	case rsi >= 35 && rsi < 45:
		return 70 + 2*(rsi-35) // 70 -> 90
	case rsi > 65 && rsi <= 70:
		return 90 - 4*(rsi-65) // 90 -> 70
	case rsi >= 30 && rsi < 35:
		return 55 + 3*(rsi-30) // 55 -> 70
	case rsi > 70 && rsi <= 80:
		return 65 - 2.5*(rsi-70) // 65 -> 40
	case rsi >= 20 && rsi < 30:
		return 45 + 1*(rsi-20) // 45 -> 55, reversal opportunity
	case rsi > 80:
		return mathutil.Clamp(35-1.5*(rsi-80), 5, 35) // deep overbought
	default: // rsi < 20
		return mathutil.Clamp(30+0.75*rsi, 25, 45)
	}
}

// scoreMACD reads the crossover state plus histogram thrust.
func scoreMACD(m model.MACDValues) float64 {
	if !mathutil.IsFiniteNumber(m.MACD) || !mathutil.IsFiniteNumber(m.Signal) || !mathutil.IsFiniteNumber(m.Histogram) {
		return NeutralScore
	}

	score := 50.0
	if m.MACD > m.Signal {
		score += 20
	} else if m.MACD < m.Signal {
		score -= 20
	}

	// Histogram thrust, scaled relative to the MACD line so small-priced
	// tokens are not penalized for small absolute values.
	ref := math.Max(math.Abs(m.MACD), 1e-9)
	thrust := math.Tanh(m.Histogram / ref * 2)
	score += thrust * 20

	// Bullish territory above the zero line gets a modest extra.
	if m.MACD > 0 && m.Histogram > 0 {
		score += 8
	}

	return mathutil.ClampScore(score)
}

// scoreBollinger prefers riding the upper-middle of the band. Extension past
// 0.95 reads as overextended, the lower band as a modest reversal setup.
func scoreBollinger(b model.BollingerValues) float64 {
	pos := b.Position
	if !mathutil.IsFiniteNumber(pos) {
		return NeutralScore
	}
	pos = mathutil.Clamp01(pos)

	switch {
	case pos >= 0.5 && pos <= 0.8:
		return 90 - 80*math.Abs(pos-0.65) // peak 90 at 0.65, 78 at the edges
	case pos > 0.8 && pos <= 0.95:
		return 78 - 187*(pos-0.8) // 78 -> 50
	case pos > 0.95:
		return mathutil.Clamp(50-400*(pos-0.95), 20, 50)
	case pos >= 0.3 && pos < 0.5:
		return 55 + 100*(pos-0.3) // 55 -> 75
	case pos >= 0.1 && pos < 0.3:
		return 45 + 50*(pos-0.1) // 45 -> 55
	default: // hugging the lower band
		return 40
	}
}

// scoreMAAlignment checks that shorter-period averages sit above longer ones.
func scoreMAAlignment(ema, sma map[int]float64) float64 {
	score := alignmentFraction(ema)
	if score < 0 {
		score = alignmentFraction(sma)
	}
	if score < 0 {
		return NeutralScore
	}
	// 0 aligned pairs -> 20, all aligned -> 95.
	return 20 + score*75
}

// alignmentFraction returns the fraction of adjacent MA pairs where the
// shorter period is above the longer, or -1 when under two valid entries.
func alignmentFraction(mas map[int]float64) float64 {
	periods := make([]int, 0, len(mas))
	for p, v := range mas {
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
		if mas[periods[i]] > mas[periods[i+1]] {
			aligned++
		}
	}
	return float64(aligned) / float64(len(periods)-1)
}

// scoreConfluence rewards several indicators agreeing at once.
func scoreConfluence(scores ...float64) float64 {
	bullish := 0
	bearish := 0
	for _, s := range scores {
		if s >= 65 {
			bullish++
		} else if s <= 35 {
			bearish++
		}
	}
	n := float64(len(scores))
	switch {
	case float64(bullish) >= n*0.75:
		return 90
	case float64(bullish) >= n*0.5:
		return 72
	case float64(bearish) >= n*0.75:
		return 10
	case float64(bearish) >= n*0.5:
		return 28
	default:
		return 50
	}
}
