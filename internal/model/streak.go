package model

import "time"

// MomentumPeriod is one analysis cycle's momentum snapshot, appended to the
// per-token per-timeframe history by the momentum history store.
type MomentumPeriod struct {
	Index           int            `json:"index"`
	Timestamp       time.Time      `json:"timestamp"`
	RSI             float64        `json:"rsi"`
	MACDHistogram   float64        `json:"macd_histogram"`
	Volume          float64        `json:"volume"`
	AverageVolume   float64        `json:"average_volume"`
	VolumeConfirmed bool           `json:"volume_confirmed"`
	TrendDirection  TrendDirection `json:"trend_direction"`
	Strength        float64        `json:"strength"` // [0,100]
	ExhaustionRisk  bool           `json:"exhaustion_risk"`
}

// ConsecutiveMomentumTracking is the streak state derived from the ordered
// period history for one token+timeframe.
type ConsecutiveMomentumTracking struct {
	Periods            []MomentumPeriod `json:"periods"`
	ConsecutiveCount   int              `json:"consecutive_count"`
	ScoreBoost         float64          `json:"score_boost"` // percent, bounded, diminishing
	ExhaustionWarning  bool             `json:"exhaustion_warning"`
	TrendBreakReset    bool             `json:"trend_break_reset"`
	DiminishingReturns bool             `json:"diminishing_returns"`
}

// ExhaustionLevel buckets the clamped total penalty.
type ExhaustionLevel string

const (
	ExhaustionNone     ExhaustionLevel = "none"
	ExhaustionMild     ExhaustionLevel = "mild"
	ExhaustionModerate ExhaustionLevel = "moderate"
	ExhaustionSevere   ExhaustionLevel = "severe"
	ExhaustionExtreme  ExhaustionLevel = "extreme"
)

// ExhaustionSignalType names one family of overextension evidence.
type ExhaustionSignalType string

const (
	SignalRSIOverbought      ExhaustionSignalType = "rsi_overbought"
	SignalRSIOversold        ExhaustionSignalType = "rsi_oversold"
	SignalVolumeCollapse     ExhaustionSignalType = "volume_collapse"
	SignalVolumeDrought      ExhaustionSignalType = "volume_drought"
	SignalDistribution       ExhaustionSignalType = "distribution"
	SignalMomentumDivergence ExhaustionSignalType = "momentum_divergence"
	SignalTrendMismatch      ExhaustionSignalType = "trend_mismatch"
	SignalPriceExtension     ExhaustionSignalType = "price_extension"
)

// ExhaustionSignal is one detected overextension signal.
type ExhaustionSignal struct {
	Type       ExhaustionSignalType `json:"type"`
	Severity   string               `json:"severity"` // mild|moderate|severe
	Timeframe  string               `json:"timeframe,omitempty"`
	Penalty    float64              `json:"penalty"` // negative
	Confidence float64              `json:"confidence"` // [0,1]
	Detail     string               `json:"detail,omitempty"`
}

// ExhaustionPenaltyResult is the full recomputed-per-cycle exhaustion output.
// TotalPenalty is always within [-50, 0].
type ExhaustionPenaltyResult struct {
	TotalPenalty       float64            `json:"total_penalty"`
	Signals            []ExhaustionSignal `json:"signals"`
	Level              ExhaustionLevel    `json:"level"`
	TimeframeBreakdown map[string]float64 `json:"timeframe_breakdown,omitempty"`
	Reasoning          []string           `json:"reasoning,omitempty"`
	Recommendations    []string           `json:"recommendations,omitempty"`
}

// NoExhaustion returns the zero-signal default result used when the
// calculator fails or has nothing to report.
func NoExhaustion() ExhaustionPenaltyResult {
	return ExhaustionPenaltyResult{
		TotalPenalty: 0,
		Signals:      []ExhaustionSignal{},
		Level:        ExhaustionNone,
	}
}

// LevelForPenalty maps a clamped total penalty to its exhaustion level.
func LevelForPenalty(total float64) ExhaustionLevel {
	switch {
	case total >= -5:
		return ExhaustionNone
	case total >= -15:
		return ExhaustionMild
	case total >= -25:
		return ExhaustionModerate
	case total >= -40:
		return ExhaustionSevere
	default:
		return ExhaustionExtreme
	}
}
