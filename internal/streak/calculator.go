// Package streak tracks sustained directional momentum across analysis
// cycles and converts streak length into a bounded, diminishing score boost.
package streak

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/tokenwatch/rater/internal/mathutil"
	"github.com/tokenwatch/rater/internal/model"
	"github.com/tokenwatch/rater/internal/persistence"
)

// Config tunes streak detection.
type Config struct {
	// MinStrength is the floor below which a period does not extend the
	// streak.
	MinStrength float64 `yaml:"min_strength"`
	// RequireVolumeConfirm gates streak periods on volume confirmation.
	// Defaults OFF: requiring confirmation on every period starves the
	// streak and the calculator never triggers.
	RequireVolumeConfirm bool `yaml:"require_volume_confirm"`
	// StrengthDropReset resets the streak when strength falls this much
	// versus the prior period.
	StrengthDropReset float64 `yaml:"strength_drop_reset"`
	// MaxBoost caps the score boost percentage.
	MaxBoost float64 `yaml:"max_boost"`
	// RSIExhaustionHigh / RSIExhaustionLow are the in-streak exhaustion
	// re-validation thresholds.
	RSIExhaustionHigh float64 `yaml:"rsi_exhaustion_high"`
	RSIExhaustionLow  float64 `yaml:"rsi_exhaustion_low"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		MinStrength:          40,
		RequireVolumeConfirm: false,
		StrengthDropReset:    50,
		MaxBoost:             25,
		RSIExhaustionHigh:    80,
		RSIExhaustionLow:     20,
	}
}

// Calculator derives streak state from the injected momentum history store.
type Calculator struct {
	store persistence.MomentumHistoryStore
	cfg   Config
	log   zerolog.Logger
}

// New creates a Calculator. A nil store is replaced with the null store,
// which deterministically disables the subsystem.
func New(store persistence.MomentumHistoryStore, cfg Config, logger zerolog.Logger) *Calculator {
	if store == nil {
		store = persistence.NewNullMomentumStore()
	}
	if cfg.MinStrength <= 0 {
		cfg = DefaultConfig()
	}
	return &Calculator{
		store: store,
		cfg:   cfg,
		log:   logger.With().Str("calculator", "streak").Logger(),
	}
}

// CalculateBonus appends the current period and walks the history backward
// counting consecutive same-direction periods. Exhaustion, sharp strength
// drops, and direction flips reset the streak.
func (c *Calculator) CalculateBonus(ctx context.Context, tokenAddress, timeframe string, current model.MomentumPeriod) (model.ConsecutiveMomentumTracking, error) {
	history, err := c.store.AppendPeriod(ctx, tokenAddress, timeframe, current)
	if err != nil {
		return model.ConsecutiveMomentumTracking{}, err
	}
	if len(history) == 0 {
		// Null store: subsystem disabled.
		return model.ConsecutiveMomentumTracking{}, nil
	}

	tracking := c.walkStreak(history)
	tracking.Periods = history

	if tracking.TrendBreakReset || tracking.ExhaustionWarning {
		// Clear the dead streak, keeping the current period as the seed of
		// the next one.
		if err := c.store.Reset(ctx, tokenAddress, timeframe); err != nil {
			c.log.Warn().Err(err).Str("token", tokenAddress).Msg("streak reset failed")
		} else if _, err := c.store.AppendPeriod(ctx, tokenAddress, timeframe, current); err != nil {
			c.log.Warn().Err(err).Str("token", tokenAddress).Msg("streak reseed failed")
		}
	}

	return tracking, nil
}

// walkStreak counts backward from the most recent period.
func (c *Calculator) walkStreak(history []model.MomentumPeriod) model.ConsecutiveMomentumTracking {
	latest := history[len(history)-1]
	tracking := model.ConsecutiveMomentumTracking{}

	if latest.TrendDirection == model.TrendNeutral || latest.Strength < c.cfg.MinStrength {
		return tracking
	}
	if c.isExhausted(latest) {
		tracking.ExhaustionWarning = true
		return tracking
	}

	count := 0
	directionBroke := false
	for i := len(history) - 1; i >= 0; i-- {
		p := history[i]

		if p.TrendDirection != latest.TrendDirection {
			directionBroke = true
			break
		}
		if p.Strength < c.cfg.MinStrength {
			break
		}
		if c.cfg.RequireVolumeConfirm && !p.VolumeConfirmed {
			break
		}
		if c.isExhausted(p) {
			tracking.ExhaustionWarning = true
			break
		}
		if i < len(history)-1 {
			// Sharp strength collapse versus the following (newer) period
			// ends the run.
			if history[i+1].Strength-p.Strength < -c.cfg.StrengthDropReset {
				break
			}
		}
		count++
	}

	tracking.ConsecutiveCount = count
	tracking.ScoreBoost = c.boostFor(count)
	tracking.DiminishingReturns = count >= 4
	// A flip right behind the current period means the streak restarted
	// this cycle.
	tracking.TrendBreakReset = directionBroke && count == 1
	return tracking
}

func (c *Calculator) isExhausted(p model.MomentumPeriod) bool {
	if p.ExhaustionRisk {
		return true
	}
	if p.RSI >= c.cfg.RSIExhaustionHigh || (p.RSI > 0 && p.RSI <= c.cfg.RSIExhaustionLow) {
		return true
	}
	return false
}

// boostFor converts streak length into a bounded percentage with
// diminishing growth: nothing for a single period, rising fast to streak 3,
// then flattening toward the cap.
func (c *Calculator) boostFor(count int) float64 {
	if count <= 1 {
		return 0
	}
	// Saturating curve: 2 -> ~10%, 3 -> ~17%, 5 -> ~23%, never above cap.
	boost := c.cfg.MaxBoost * (1 - math.Exp(-0.45*float64(count-1)))
	return mathutil.RoundTo(mathutil.Clamp(boost, 0, c.cfg.MaxBoost), 2)
}
