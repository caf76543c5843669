package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/tokenwatch/rater/internal/model"
	"github.com/tokenwatch/rater/internal/streak"
)

// WeightSumTolerance is the permitted deviation of the component weight sum
// from 1.0.
const WeightSumTolerance = 0.01

// Config is the engine configuration, validated once at construction.
type Config struct {
	// Weights blends the four base component subscores; must sum to 1.0
	// within WeightSumTolerance.
	Weights model.Weights `yaml:"weights"`

	// MultiTimeframeWeight scales the pattern score added on top of the
	// base composite.
	MultiTimeframeWeight float64 `yaml:"multi_timeframe_weight"`
	// ConsecutiveMomentumWeight scales the streak boost contribution.
	ConsecutiveMomentumWeight float64 `yaml:"consecutive_momentum_weight"`

	AdaptiveWeighting bool `yaml:"adaptive_weighting"`
	RiskAdjustment    bool `yaml:"risk_adjustment"`

	// ConfidenceThreshold gates alert emission.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	// SmoothingFactor blends the new rating with the prior stored one.
	SmoothingFactor float64 `yaml:"smoothing_factor"`

	EnableMultiTimeframe      bool `yaml:"enable_multi_timeframe"`
	EnableConsecutiveMomentum bool `yaml:"enable_consecutive_momentum"`
	EnableExhaustionPenalty   bool `yaml:"enable_exhaustion_penalty"`

	// StreakTimeframe keys the momentum history used for streak tracking.
	StreakTimeframe string        `yaml:"streak_timeframe"`
	Streak          streak.Config `yaml:"streak"`

	// Per-suspension-point timeouts.
	ComponentTimeout time.Duration `yaml:"component_timeout"`
	SubsystemTimeout time.Duration `yaml:"subsystem_timeout"`
	OverallTimeout   time.Duration `yaml:"overall_timeout"`

	// Advisory blending: consulted only when the technical-only rating
	// reaches AdvisoryThreshold; AdvisoryWeight is the AI share.
	AdvisoryEnabled   bool    `yaml:"advisory_enabled"`
	AdvisoryThreshold float64 `yaml:"advisory_threshold"`
	AdvisoryWeight    float64 `yaml:"advisory_weight"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		Weights: model.Weights{
			Technical: 0.30,
			Momentum:  0.30,
			Volume:    0.20,
			Risk:      0.20,
		},
		MultiTimeframeWeight:      0.15,
		ConsecutiveMomentumWeight: 1.0,
		AdaptiveWeighting:         true,
		RiskAdjustment:            true,
		ConfidenceThreshold:       60,
		SmoothingFactor:           0.15,
		EnableMultiTimeframe:      true,
		EnableConsecutiveMomentum: true,
		EnableExhaustionPenalty:   true,
		StreakTimeframe:           "1h",
		Streak:                    streak.DefaultConfig(),
		ComponentTimeout:          5 * time.Second,
		SubsystemTimeout:          5 * time.Second,
		OverallTimeout:            30 * time.Second,
		AdvisoryEnabled:           false,
		AdvisoryThreshold:         7,
		AdvisoryWeight:            0.30,
	}
}

// Validate enforces the construction-time invariants.
func (c Config) Validate() error {
	w := c.Weights
	for name, v := range map[string]float64{
		"technical": w.Technical,
		"momentum":  w.Momentum,
		"volume":    w.Volume,
		"risk":      w.Risk,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s weight %.3f is negative", ErrConfigInvalid, name, v)
		}
	}
	if math.Abs(w.Sum()-1.0) > WeightSumTolerance {
		return fmt.Errorf("%w: component weights sum to %.3f, want 1.0", ErrConfigInvalid, w.Sum())
	}
	if c.SmoothingFactor < 0 || c.SmoothingFactor > 1 {
		return fmt.Errorf("%w: smoothing factor %.3f outside [0,1]", ErrConfigInvalid, c.SmoothingFactor)
	}
	if c.MultiTimeframeWeight < 0 || c.MultiTimeframeWeight > 1 {
		return fmt.Errorf("%w: multi-timeframe weight %.3f outside [0,1]", ErrConfigInvalid, c.MultiTimeframeWeight)
	}
	if c.AdvisoryWeight < 0 || c.AdvisoryWeight > 1 {
		return fmt.Errorf("%w: advisory weight %.3f outside [0,1]", ErrConfigInvalid, c.AdvisoryWeight)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 100 {
		return fmt.Errorf("%w: confidence threshold %.1f outside [0,100]", ErrConfigInvalid, c.ConfidenceThreshold)
	}
	if c.ComponentTimeout <= 0 || c.SubsystemTimeout <= 0 || c.OverallTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrConfigInvalid)
	}
	return nil
}
