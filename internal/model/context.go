package model

import "time"

// MarketTrend classifies the broad market regime.
type MarketTrend string

const (
	MarketBull     MarketTrend = "bull"
	MarketBear     MarketTrend = "bear"
	MarketSideways MarketTrend = "sideways"
)

// MarketContext carries broad-market conditions used for adaptive weighting
// and confidence. Zero values are never passed into scoring; see Normalize.
type MarketContext struct {
	OverallTrend    MarketTrend `json:"overall_trend"`
	VolatilityIndex float64     `json:"volatility_index"` // [0,100]
	MarketSentiment float64     `json:"market_sentiment"` // [0,100]
}

// DefaultMarketContext returns the safe neutral context used whenever market
// conditions are absent: sideways trend, volatility 50, sentiment 50.
func DefaultMarketContext() MarketContext {
	return MarketContext{
		OverallTrend:    MarketSideways,
		VolatilityIndex: 50,
		MarketSentiment: 50,
	}
}

// Candle is one OHLCV bar.
type Candle struct {
	Timestamp time.Time `json:"ts"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// TokenData identifies the token under analysis.
type TokenData struct {
	Address   string  `json:"address"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	MarketCap float64 `json:"market_cap"`
	Volume24h float64 `json:"volume_24h"`
}

// ExhaustionSummary is the per-timeframe exhaustion snapshot carried inside
// multi-timeframe data.
type ExhaustionSummary struct {
	Flagged       bool    `json:"flagged"`
	RSIOverbought bool    `json:"rsi_overbought"`
	RSIOversold   bool    `json:"rsi_oversold"`
	VolumeFading  bool    `json:"volume_fading"`
	Severity      float64 `json:"severity"` // [0,1]
}

// TimeframeIndicators is one timeframe's indicator snapshot plus its blend
// weight and data sufficiency.
type TimeframeIndicators struct {
	Timeframe  string              `json:"timeframe"`
	Weight     float64             `json:"weight"`
	DataPoints int                 `json:"data_points"`
	Indicators TechnicalIndicators `json:"indicators"`
	Exhaustion ExhaustionSummary   `json:"exhaustion"`
}

// AnalysisContext bundles everything beyond the four base signals that a
// rating cycle may consume. All fields except TokenData are optional.
type AnalysisContext struct {
	TokenData          TokenData                      `json:"token_data"`
	ChartData          []Candle                       `json:"chart_data,omitempty"`
	MultiTimeframeData map[string]TimeframeIndicators `json:"multi_timeframe_data,omitempty"`
	HistoricalRatings  []RatingResult                 `json:"historical_ratings,omitempty"`
	HistoricalAccuracy float64                        `json:"historical_accuracy,omitempty"` // [0,1], 0 = unknown
	MarketContext      *MarketContext                 `json:"market_context,omitempty"`
}

// Normalize returns a copy with safe defaults filled in. A nil or absent
// market context always resolves to DefaultMarketContext; scoring never sees
// an undefined regime.
func (c AnalysisContext) Normalize() AnalysisContext {
	out := c
	if out.MarketContext == nil {
		mc := DefaultMarketContext()
		out.MarketContext = &mc
	} else {
		mc := *out.MarketContext
		if mc.OverallTrend != MarketBull && mc.OverallTrend != MarketBear && mc.OverallTrend != MarketSideways {
			mc.OverallTrend = MarketSideways
		}
		if mc.VolatilityIndex <= 0 || mc.VolatilityIndex > 100 {
			mc.VolatilityIndex = 50
		}
		if mc.MarketSentiment <= 0 || mc.MarketSentiment > 100 {
			mc.MarketSentiment = 50
		}
		out.MarketContext = &mc
	}
	if out.HistoricalAccuracy <= 0 || out.HistoricalAccuracy > 1 {
		out.HistoricalAccuracy = 0.7
	}
	return out
}
