// Package normalize provides the statistical normalization and outlier
// handling shared by the score calculators. Each series key keeps its own
// bounded rolling history so z-scores and percentiles adapt to the data
// actually seen.
package normalize

import (
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tokenwatch/rater/internal/mathutil"
)

// Method selects the normalization transform.
type Method string

const (
	MethodZScore     Method = "zscore"
	MethodMinMax     Method = "minmax"
	MethodPercentile Method = "percentile"
	MethodSigmoid    Method = "sigmoid"
	MethodTanh       Method = "tanh"
)

// OutlierPolicy selects how flagged outliers are handled.
type OutlierPolicy string

const (
	OutlierClip      OutlierPolicy = "clip"
	OutlierWinsorize OutlierPolicy = "winsorize"
	OutlierNone      OutlierPolicy = "none"
)

// Config tunes one normalization call.
type Config struct {
	Method           Method
	Robust           bool // median/MAD instead of mean/stddev for zscore
	TargetMin        float64
	TargetMax        float64
	OutlierThreshold float64 // |z| beyond this is an outlier (default 2.5)
	OutlierPolicy    OutlierPolicy
}

// DefaultConfig returns z-score normalization into [0,100] with clipping.
func DefaultConfig() Config {
	return Config{
		Method:           MethodZScore,
		TargetMin:        0,
		TargetMax:        100,
		OutlierThreshold: 2.5,
		OutlierPolicy:    OutlierClip,
	}
}

// Result carries the normalized value plus advisory metadata. Confidence is
// informational only; callers never reject a value because of it.
type Result struct {
	NormalizedValue float64 `json:"normalized_value"`
	IsOutlier       bool    `json:"is_outlier"`
	Confidence      float64 `json:"confidence"` // [0,1]
	Method          Method  `json:"method"`
	SampleSize      int     `json:"sample_size"`
}

const historyCap = 1000

// Normalizer maintains per-series rolling history and applies the configured
// transform. Safe for concurrent use.
type Normalizer struct {
	mu     sync.Mutex
	series map[string][]float64
	log    zerolog.Logger
}

// New creates a Normalizer.
func New(logger zerolog.Logger) *Normalizer {
	return &Normalizer{
		series: make(map[string][]float64),
		log:    logger.With().Str("component", "normalizer").Logger(),
	}
}

// Normalize records value under seriesKey and returns its normalized form.
func (n *Normalizer) Normalize(value float64, seriesKey string, cfg Config) Result {
	if cfg.OutlierThreshold <= 0 {
		cfg.OutlierThreshold = 2.5
	}
	if cfg.TargetMax <= cfg.TargetMin {
		cfg.TargetMin, cfg.TargetMax = 0, 100
	}
	if cfg.Method == "" {
		cfg.Method = MethodZScore
	}

	if !mathutil.IsFiniteNumber(value) {
		n.log.Warn().Str("series", seriesKey).Msg("non-finite value, returning target midpoint")
		return Result{
			NormalizedValue: (cfg.TargetMin + cfg.TargetMax) / 2,
			Confidence:      0.1,
			Method:          cfg.Method,
		}
	}

	n.mu.Lock()
	hist := append(n.series[seriesKey], value)
	if len(hist) > historyCap {
		hist = hist[len(hist)-historyCap:]
	}
	n.series[seriesKey] = hist
	sample := make([]float64, len(hist))
	copy(sample, hist)
	n.mu.Unlock()

	outlier, adjusted := detectOutlier(value, sample, cfg)

	var unit float64 // position in [0,1] before target scaling
	switch cfg.Method {
	case MethodMinMax:
		unit = minMaxUnit(adjusted, sample)
	case MethodPercentile:
		unit = percentileUnit(adjusted, sample)
	case MethodSigmoid:
		unit = sigmoidUnit(adjusted, sample, cfg.Robust)
	case MethodTanh:
		unit = tanhUnit(adjusted, sample, cfg.Robust)
	default:
		unit = zscoreUnit(adjusted, sample, cfg.Robust)
	}

	normalized := cfg.TargetMin + mathutil.Clamp01(unit)*(cfg.TargetMax-cfg.TargetMin)

	return Result{
		NormalizedValue: normalized,
		IsOutlier:       outlier,
		Confidence:      normalizationConfidence(len(sample), outlier),
		Method:          cfg.Method,
		SampleSize:      len(sample),
	}
}

// HistoryLen returns the number of recorded samples for seriesKey.
func (n *Normalizer) HistoryLen(seriesKey string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.series[seriesKey])
}

// Reset drops the rolling history for seriesKey.
func (n *Normalizer) Reset(seriesKey string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.series, seriesKey)
}

func detectOutlier(value float64, sample []float64, cfg Config) (bool, float64) {
	if len(sample) < 5 {
		return false, value
	}

	var outlier bool
	var lo, hi float64
	if cfg.Robust {
		// IQR fences for the robust path.
		q1 := quantile(sample, 0.25)
		q3 := quantile(sample, 0.75)
		iqr := q3 - q1
		lo, hi = q1-1.5*iqr, q3+1.5*iqr
		outlier = value < lo || value > hi
	} else {
		mean := mathutil.Mean(sample)
		sd := mathutil.StdDev(sample)
		if sd == 0 {
			return false, value
		}
		z := (value - mean) / sd
		outlier = math.Abs(z) > cfg.OutlierThreshold
		lo = mean - cfg.OutlierThreshold*sd
		hi = mean + cfg.OutlierThreshold*sd
	}

	if !outlier {
		return false, value
	}

	switch cfg.OutlierPolicy {
	case OutlierClip:
		return true, mathutil.Clamp(value, lo, hi)
	case OutlierWinsorize:
		if value > hi {
			return true, quantile(sample, 0.95)
		}
		return true, quantile(sample, 0.05)
	default:
		return true, value
	}
}

func zscoreUnit(value float64, sample []float64, robust bool) float64 {
	center, scale := centerScale(sample, robust)
	if scale == 0 {
		return 0.5
	}
	z := (value - center) / scale
	// Map z in [-3,3] linearly onto [0,1].
	return mathutil.Clamp01((z + 3) / 6)
}

func minMaxUnit(value float64, sample []float64) float64 {
	lo, hi := sample[0], sample[0]
	for _, v := range sample {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return 0.5
	}
	return mathutil.Clamp01((value - lo) / (hi - lo))
}

func percentileUnit(value float64, sample []float64) float64 {
	if len(sample) == 1 {
		return 0.5
	}
	below := 0
	for _, v := range sample {
		if v < value {
			below++
		}
	}
	return float64(below) / float64(len(sample))
}

func sigmoidUnit(value float64, sample []float64, robust bool) float64 {
	center, scale := centerScale(sample, robust)
	if scale == 0 {
		return 0.5
	}
	z := (value - center) / scale
	return 1 / (1 + math.Exp(-z))
}

func tanhUnit(value float64, sample []float64, robust bool) float64 {
	center, scale := centerScale(sample, robust)
	if scale == 0 {
		return 0.5
	}
	z := (value - center) / scale
	return (math.Tanh(z/2) + 1) / 2
}

func centerScale(sample []float64, robust bool) (float64, float64) {
	if robust {
		med := quantile(sample, 0.5)
		dev := make([]float64, len(sample))
		for i, v := range sample {
			dev[i] = math.Abs(v - med)
		}
		// 1.4826 makes MAD consistent with stddev under normality.
		return med, quantile(dev, 0.5) * 1.4826
	}
	return mathutil.Mean(sample), mathutil.StdDev(sample)
}

func quantile(sample []float64, q float64) float64 {
	sorted := make([]float64, len(sample))
	copy(sorted, sample)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// normalizationConfidence degrades with a thin history and with outlier
// status. Advisory only.
func normalizationConfidence(sampleSize int, outlier bool) float64 {
	conf := mathutil.Clamp01(float64(sampleSize) / 30.0)
	if conf < 0.1 {
		conf = 0.1
	}
	if outlier {
		conf *= 0.6
	}
	return mathutil.RoundTo(conf, 3)
}
