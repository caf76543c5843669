// Package persistence defines the storage contracts the rating engine
// consumes. Implementations exist for memory, Postgres, and Redis; the
// engine treats all of them as best-effort collaborators.
package persistence

import (
	"context"
	"time"

	"github.com/tokenwatch/rater/internal/model"
)

// RetainedRatings bounds per-token rating history.
const RetainedRatings = 50

// RetainedPeriods bounds per-token-per-timeframe momentum history.
const RetainedPeriods = 50

// RatingRecord pairs a stored rating with its attribution breakdown.
type RatingRecord struct {
	Result    model.RatingResult `json:"result"`
	Breakdown map[string]float64 `json:"breakdown,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// RatingHistoryStore persists rating results. Used for temporal smoothing
// input and audit only; write failures are logged and swallowed by callers.
type RatingHistoryStore interface {
	// AppendRating stores a result with its score breakdown, trimming the
	// token's history to RetainedRatings entries.
	AppendRating(ctx context.Context, tokenAddress string, result model.RatingResult, breakdown map[string]float64) error

	// Latest returns the most recent stored rating for the token, or nil.
	Latest(ctx context.Context, tokenAddress string) (*model.RatingResult, error)

	// ListByToken returns up to limit recent ratings, newest first.
	ListByToken(ctx context.Context, tokenAddress string, limit int) ([]RatingRecord, error)
}

// MomentumHistoryStore tracks per-token per-timeframe momentum periods for
// the consecutive-momentum calculator. Optional: a nil or null store
// disables the subsystem, never the base rating.
type MomentumHistoryStore interface {
	// AppendPeriod appends the current period and returns the recent
	// ordered history (oldest first, current period last), trimmed to
	// RetainedPeriods entries.
	AppendPeriod(ctx context.Context, tokenAddress, timeframe string, period model.MomentumPeriod) ([]model.MomentumPeriod, error)

	// RecentPeriods returns the ordered history without appending.
	RecentPeriods(ctx context.Context, tokenAddress, timeframe string, limit int) ([]model.MomentumPeriod, error)

	// Reset clears the streak history after a trend break or exhaustion.
	Reset(ctx context.Context, tokenAddress, timeframe string) error
}
