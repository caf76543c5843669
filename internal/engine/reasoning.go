package engine

import (
	"fmt"

	"github.com/tokenwatch/rater/internal/model"
	"github.com/tokenwatch/rater/internal/timeframe"
)

// buildReasoning produces the threshold-based explanation strings for one
// rating cycle.
func buildReasoning(
	scores model.ScoreComponents,
	tfRes *timeframe.Result,
	tracking *model.ConsecutiveMomentumTracking,
	exhaustion *model.ExhaustionPenaltyResult,
	degraded []string,
) []string {
	reasons := make([]string, 0, 8)

	switch {
	case scores.Technical >= 75:
		reasons = append(reasons, fmt.Sprintf("strong technical setup (%.0f/100)", scores.Technical))
	case scores.Technical >= 60:
		reasons = append(reasons, fmt.Sprintf("constructive technicals (%.0f/100)", scores.Technical))
	case scores.Technical <= 35:
		reasons = append(reasons, fmt.Sprintf("weak technical picture (%.0f/100)", scores.Technical))
	}

	switch {
	case scores.Momentum >= 75:
		reasons = append(reasons, fmt.Sprintf("momentum firmly positive (%.0f/100)", scores.Momentum))
	case scores.Momentum <= 35:
		reasons = append(reasons, fmt.Sprintf("momentum deteriorating (%.0f/100)", scores.Momentum))
	}

	switch {
	case scores.Volume >= 80:
		reasons = append(reasons, fmt.Sprintf("exceptional volume participation (%.0f/100)", scores.Volume))
	case scores.Volume >= 65:
		reasons = append(reasons, fmt.Sprintf("healthy volume support (%.0f/100)", scores.Volume))
	case scores.Volume <= 30:
		reasons = append(reasons, fmt.Sprintf("thin volume (%.0f/100)", scores.Volume))
	}

	switch {
	case scores.Risk <= 25:
		reasons = append(reasons, fmt.Sprintf("risk profile poor (%.0f/100)", scores.Risk))
	case scores.Risk >= 70:
		reasons = append(reasons, fmt.Sprintf("risk profile favorable (%.0f/100)", scores.Risk))
	}

	if tfRes != nil && len(tfRes.Timeframes) > 0 {
		if tfRes.ConsensusStrength >= 0.75 {
			reasons = append(reasons, fmt.Sprintf("%d timeframes aligned %s (consensus %.0f%%)",
				len(tfRes.Timeframes), tfRes.Dominant, tfRes.ConsensusStrength*100))
		} else if tfRes.ConsensusStrength < 0.3 {
			reasons = append(reasons, "timeframes diverging, conviction reduced")
		}
	}

	if tracking != nil && tracking.ConsecutiveCount >= 2 {
		msg := fmt.Sprintf("momentum sustained %d consecutive periods (+%.1f%% boost)",
			tracking.ConsecutiveCount, tracking.ScoreBoost)
		if tracking.DiminishingReturns {
			msg += ", boost flattening"
		}
		reasons = append(reasons, msg)
	}
	if tracking != nil && tracking.ExhaustionWarning {
		reasons = append(reasons, "momentum streak broke on exhaustion")
	}

	if exhaustion != nil && exhaustion.TotalPenalty < -5 {
		reasons = append(reasons, fmt.Sprintf("exhaustion %s, penalty %.0f", exhaustion.Level, exhaustion.TotalPenalty))
	}

	for _, d := range degraded {
		reasons = append(reasons, d)
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "mixed signals, no dominant factor")
	}
	return reasons
}

// buildAlerts produces the emoji-tagged, threshold-triggered alert strings.
func buildAlerts(
	result model.RatingResult,
	scores model.ScoreComponents,
	tracking *model.ConsecutiveMomentumTracking,
	exhaustion *model.ExhaustionPenaltyResult,
	confidenceThreshold float64,
) []string {
	var alerts []string

	if result.Confidence < confidenceThreshold {
		return alerts
	}

	if result.Rating >= 8 {
		alerts = append(alerts, fmt.Sprintf("🚀 rating %.1f/10 with %.0f%% confidence", result.Rating, result.Confidence))
	}
	if scores.Volume >= 85 {
		alerts = append(alerts, "📊 volume spike confirmed")
	}
	if tracking != nil && tracking.ConsecutiveCount >= 3 && !tracking.ExhaustionWarning {
		alerts = append(alerts, fmt.Sprintf("🔥 %d-period momentum streak", tracking.ConsecutiveCount))
	}
	if exhaustion != nil && (exhaustion.Level == model.ExhaustionSevere || exhaustion.Level == model.ExhaustionExtreme) {
		alerts = append(alerts, fmt.Sprintf("⚠️ %s exhaustion, momentum likely spent", exhaustion.Level))
	}
	if scores.Risk <= 20 {
		alerts = append(alerts, "🛑 elevated risk profile")
	}
	return alerts
}
