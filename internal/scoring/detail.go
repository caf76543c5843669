// Package scoring implements the four base component calculators that map
// one signal domain each (technical, momentum, volume, risk) to a 0-100
// subscore. Calculators are pure over their inputs and never panic outward:
// internal failures resolve to the calculator's neutral score.
package scoring

// Signal labels a factor's categorical read for explainability output.
type Signal string

const (
	SignalVeryBullish Signal = "very_bullish"
	SignalBullish     Signal = "bullish"
	SignalNeutral     Signal = "neutral"
	SignalBearish     Signal = "bearish"
	SignalVeryBearish Signal = "very_bearish"
	SignalCaution     Signal = "caution"
)

// FactorScore is one named sub-score with its weight and read.
type FactorScore struct {
	Name        string  `json:"name"`
	Score       float64 `json:"score"`  // [0,100]
	Weight      float64 `json:"weight"` // fixed internal weight
	Signal      Signal  `json:"signal"`
	Description string  `json:"description"`
}

// DetailedAnalysis is the explainability breakdown for one calculator. The
// numeric Score and the Factors come from the same computation; there is no
// second scoring path to drift from.
type DetailedAnalysis struct {
	Component string        `json:"component"`
	Score     float64       `json:"score"` // [0,100]
	Factors   []FactorScore `json:"factors"`
}

func signalForScore(score float64) Signal {
	switch {
	case score >= 80:
		return SignalVeryBullish
	case score >= 65:
		return SignalBullish
	case score >= 40:
		return SignalNeutral
	case score >= 25:
		return SignalBearish
	default:
		return SignalVeryBearish
	}
}

// weightedTotal folds factor scores by their weights. Weights are expected
// to sum to 1.0; the constructors assert this in tests.
func weightedTotal(factors []FactorScore) float64 {
	var total float64
	for _, f := range factors {
		total += f.Score * f.Weight
	}
	return total
}
