package scoring

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tokenwatch/rater/internal/mathutil"
	"github.com/tokenwatch/rater/internal/model"
)

// Fixed internal weights for the risk factor blend.
const (
	riskWeightLiquidity     = 0.20
	riskWeightVolatility    = 0.15
	riskWeightConcentration = 0.20
	riskWeightMarketCap     = 0.15
	riskWeightAge           = 0.10
	riskWeightRugPull       = 0.20
)

// NeutralRiskScore is the risk fallback. It sits below the generic neutral
// because an unknown risk profile is assumed risky.
const NeutralRiskScore = 30.0

// RiskCalculator scores a risk assessment. Inputs arrive as higher = riskier
// and are inverted to higher = better before weighting. Rug-pull likelihood
// and holder concentration act as kill switches: past their thresholds the
// sub-score collapses instead of degrading linearly.
type RiskCalculator struct {
	log zerolog.Logger
}

// NewRiskCalculator creates a RiskCalculator.
func NewRiskCalculator(logger zerolog.Logger) *RiskCalculator {
	return &RiskCalculator{log: logger.With().Str("calculator", "risk").Logger()}
}

// Calculate returns the 0-100 risk subscore (higher = safer). Never panics;
// failures resolve to the risk-biased neutral of 30.
func (c *RiskCalculator) Calculate(r model.RiskAssessment, ctx model.AnalysisContext) (score float64) {
	defer func() {
		if rec := recover(); rec != nil {
			c.log.Warn().Interface("panic", rec).Msg("risk calculator recovered, using neutral score")
			score = NeutralRiskScore
		}
	}()
	return c.Analyze(r, ctx).Score
}

// Analyze returns the subscore with its per-factor breakdown.
func (c *RiskCalculator) Analyze(r model.RiskAssessment, ctx model.AnalysisContext) DetailedAnalysis {
	liq := invertRisk(r.Factors.Liquidity)
	vol := invertRisk(r.Factors.Volatility)
	conc := scoreConcentration(r.Factors.HolderConcentration)
	mcap := invertRisk(r.Factors.MarketCap)
	age := invertRisk(r.Factors.Age)
	rug := scoreRugPull(r.Factors.RugPullRisk)

	factors := []FactorScore{
		{Name: "liquidity", Score: liq, Weight: riskWeightLiquidity, Signal: signalForScore(liq),
			Description: fmt.Sprintf("liquidity risk %.0f", r.Factors.Liquidity)},
		{Name: "volatility", Score: vol, Weight: riskWeightVolatility, Signal: signalForScore(vol),
			Description: fmt.Sprintf("volatility risk %.0f", r.Factors.Volatility)},
		{Name: "concentration", Score: conc, Weight: riskWeightConcentration, Signal: signalForScore(conc),
			Description: fmt.Sprintf("holder concentration risk %.0f", r.Factors.HolderConcentration)},
		{Name: "market_cap", Score: mcap, Weight: riskWeightMarketCap, Signal: signalForScore(mcap),
			Description: fmt.Sprintf("market-cap stability risk %.0f", r.Factors.MarketCap)},
		{Name: "age", Score: age, Weight: riskWeightAge, Signal: signalForScore(age),
			Description: fmt.Sprintf("age risk %.0f", r.Factors.Age)},
		{Name: "rug_pull", Score: rug, Weight: riskWeightRugPull, Signal: signalForScore(rug),
			Description: fmt.Sprintf("rug-pull risk %.0f", r.Factors.RugPullRisk)},
	}

	// Blend the factor view with the assessor's overall read, which may
	// capture warnings the individual factors miss.
	factorScore := weightedTotal(factors)
	overallScore := invertRisk(r.Overall)
	blended := factorScore*0.7 + overallScore*0.3

	if r.RiskLevel == model.RiskExtreme {
		blended = mathutil.Clamp(blended, 0, 25)
	}

	return DetailedAnalysis{
		Component: "risk",
		Score:     mathutil.ClampScore(blended),
		Factors:   factors,
	}
}

// invertRisk converts a higher-is-riskier input to higher-is-better.
func invertRisk(risk float64) float64 {
	if !mathutil.IsFiniteNumber(risk) {
		return NeutralRiskScore
	}
	return 100 - mathutil.Clamp(risk, 0, 100)
}

// scoreConcentration applies a steep non-linear penalty above 60% risk:
// concentrated holdings are a kill switch, not a gradient.
func scoreConcentration(risk float64) float64 {
	if !mathutil.IsFiniteNumber(risk) {
		return NeutralRiskScore
	}
	risk = mathutil.Clamp(risk, 0, 100)
	switch {
	case risk <= 40:
		return 100 - risk*0.75 // 100 -> 70, gentle
	case risk <= 60:
		return 70 - (risk-40)*1.5 // 70 -> 40
	case risk <= 80:
		return 40 - (risk-60)*1.75 // 40 -> 5
	default:
		return mathutil.Clamp(5-(risk-80)*0.25, 0, 5)
	}
}

// scoreRugPull collapses to near zero above 80% likelihood.
func scoreRugPull(risk float64) float64 {
	if !mathutil.IsFiniteNumber(risk) {
		return NeutralRiskScore
	}
	risk = mathutil.Clamp(risk, 0, 100)
	switch {
	case risk <= 30:
		return 100 - risk // 100 -> 70
	case risk <= 60:
		return 70 - (risk-30)*1.2 // 70 -> 34
	case risk <= 80:
		return 34 - (risk-60)*1.5 // 34 -> 4
	default:
		return mathutil.Clamp(4-(risk-80)*0.2, 0, 4)
	}
}
