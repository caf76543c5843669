package model

import "time"

// ScoreComponents carries the 0-100 subscores that feed the composite.
// Fundamentals is reserved and always 0.
type ScoreComponents struct {
	Technical    float64 `json:"technical"`
	Momentum     float64 `json:"momentum"`
	Volume       float64 `json:"volume"`
	Risk         float64 `json:"risk"`
	Pattern      float64 `json:"pattern"` // multi-timeframe score
	Fundamentals float64 `json:"fundamentals"`
}

// Recommendation is the final actionable label.
type Recommendation string

const (
	RecStrongBuy  Recommendation = "strong_buy"
	RecBuy        Recommendation = "buy"
	RecHold       Recommendation = "hold"
	RecSell       Recommendation = "sell"
	RecStrongSell Recommendation = "strong_sell"
)

// Weights maps component names to blend weights. Active weights must sum
// to 1.0 within tolerance; the engine validates this at construction.
type Weights struct {
	Technical float64 `json:"technical" yaml:"technical"`
	Momentum  float64 `json:"momentum" yaml:"momentum"`
	Volume    float64 `json:"volume" yaml:"volume"`
	Risk      float64 `json:"risk" yaml:"risk"`
}

// Sum returns the total of the four component weights.
func (w Weights) Sum() float64 {
	return w.Technical + w.Momentum + w.Volume + w.Risk
}

// RatingResult is one full rating cycle's output for one token.
type RatingResult struct {
	ID             string          `json:"id"`
	TokenAddress   string          `json:"token_address"`
	Timestamp      time.Time       `json:"timestamp"`
	Rating         float64         `json:"rating"`     // [1,10], one decimal
	Confidence     float64         `json:"confidence"` // [0,100]
	Components     ScoreComponents `json:"components"`
	Weights        Weights         `json:"weights"`
	Reasoning      []string        `json:"reasoning"`
	Alerts         []string        `json:"alerts,omitempty"`
	Recommendation Recommendation  `json:"recommendation"`
}

// AdvisoryOpinion is an external advisor's second opinion on a rating.
type AdvisoryOpinion struct {
	Rating    float64 `json:"rating"` // [1,10]
	Rationale string  `json:"rationale,omitempty"`
}

// HasAlerts reports whether this result carries any threshold-triggered alert.
func (r RatingResult) HasAlerts() bool {
	return len(r.Alerts) > 0
}

// RecommendFor maps a rating and confidence to the fixed recommendation
// bands. Low confidence forces hold regardless of the numeric rating.
func RecommendFor(rating, confidence float64) Recommendation {
	if confidence < 50 {
		return RecHold
	}
	switch {
	case rating >= 8:
		return RecStrongBuy
	case rating >= 7:
		return RecBuy
	case rating >= 5:
		return RecHold
	case rating >= 3:
		return RecSell
	default:
		return RecStrongSell
	}
}
