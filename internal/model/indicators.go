// Package model defines the immutable market-signal snapshots and rating
// outputs shared by every calculator in the rating pipeline.
package model

// MACDValues holds one MACD reading.
type MACDValues struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// BollingerValues holds one Bollinger band reading. Position is the price
// location inside the band, 0 at the lower band and 1 at the upper band.
type BollingerValues struct {
	Upper    float64 `json:"upper"`
	Middle   float64 `json:"middle"`
	Lower    float64 `json:"lower"`
	Position float64 `json:"position"`
}

// TechnicalIndicators is an immutable indicator snapshot for one timeframe.
type TechnicalIndicators struct {
	RSI       float64            `json:"rsi"`
	MACD      MACDValues         `json:"macd"`
	Bollinger BollingerValues    `json:"bollinger"`
	EMA       map[int]float64    `json:"ema,omitempty"`
	SMA       map[int]float64    `json:"sma,omitempty"`
}

// TrendDirection classifies directional bias.
type TrendDirection string

const (
	TrendBullish TrendDirection = "bullish"
	TrendBearish TrendDirection = "bearish"
	TrendNeutral TrendDirection = "neutral"
)

// PriceAction summarizes short-horizon price structure.
type PriceAction struct {
	BreakoutPotential float64 `json:"breakout_potential"` // [0,1]
	Consolidation     bool    `json:"consolidation"`
	ReversalSignal    bool    `json:"reversal_signal"`
}

// MomentumAnalysis is one momentum snapshot.
type MomentumAnalysis struct {
	Trend       TrendDirection `json:"trend"`
	Strength    float64        `json:"strength"` // [0,100]
	Momentum    float64        `json:"momentum"` // signed rate of change
	Volatility  float64        `json:"volatility"` // percent
	Support     []float64      `json:"support,omitempty"`
	Resistance  []float64      `json:"resistance,omitempty"`
	PriceAction PriceAction    `json:"price_action"`
}

// VolumeProfile decomposes volume into directional pressure.
type VolumeProfile struct {
	BuyPressure  float64 `json:"buy_pressure"`  // [0,1]
	SellPressure float64 `json:"sell_pressure"` // [0,1]
	NetFlow      float64 `json:"net_flow"`      // [-1,1]
}

// VolumeAnalysis is one volume snapshot.
type VolumeAnalysis struct {
	AverageVolume     float64       `json:"average_volume"`
	CurrentVolume     float64       `json:"current_volume"`
	VolumeSpike       bool          `json:"volume_spike"`
	VolumeSpikeFactor float64       `json:"volume_spike_factor"` // current/average ratio
	VolumeProfile     VolumeProfile `json:"volume_profile"`
	LiquidityScore    float64       `json:"liquidity_score"` // [0,100]
}

// RiskLevel buckets overall risk.
type RiskLevel string

const (
	RiskLow     RiskLevel = "low"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
	RiskExtreme RiskLevel = "extreme"
)

// RiskFactors carries per-factor risk, each 0-100 with higher = riskier.
type RiskFactors struct {
	Liquidity           float64 `json:"liquidity"`
	Volatility          float64 `json:"volatility"`
	HolderConcentration float64 `json:"holder_concentration"`
	MarketCap           float64 `json:"market_cap"`
	Age                 float64 `json:"age"`
	RugPullRisk         float64 `json:"rug_pull_risk"`
}

// RiskAssessment is one risk snapshot. Overall is 0-100, higher = riskier.
type RiskAssessment struct {
	Overall   float64     `json:"overall"`
	Factors   RiskFactors `json:"factors"`
	Warnings  []string    `json:"warnings,omitempty"`
	RiskLevel RiskLevel   `json:"risk_level"`
}
