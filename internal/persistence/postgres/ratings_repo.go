// Package postgres implements the rating history store on PostgreSQL for
// deployments that need durable, queryable rating audit trails.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tokenwatch/rater/internal/model"
	"github.com/tokenwatch/rater/internal/persistence"
)

// Schema is the DDL for the ratings table. Applied by migrations, kept here
// so operators can bootstrap by hand.
const Schema = `
CREATE TABLE IF NOT EXISTS ratings (
	id            TEXT PRIMARY KEY,
	token_address TEXT NOT NULL,
	ts            TIMESTAMPTZ NOT NULL,
	rating        DOUBLE PRECISION NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL,
	result        JSONB NOT NULL,
	breakdown     JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_ratings_token_ts ON ratings (token_address, ts DESC);`

// RatingsRepo persists rating results in PostgreSQL.
type RatingsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

var _ persistence.RatingHistoryStore = (*RatingsRepo)(nil)

// NewRatingsRepo creates the repository over an open connection pool.
func NewRatingsRepo(db *sqlx.DB, timeout time.Duration) *RatingsRepo {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RatingsRepo{db: db, timeout: timeout}
}

// AppendRating inserts the result and prunes the token's history beyond the
// retention bound.
func (r *RatingsRepo) AppendRating(ctx context.Context, tokenAddress string, result model.RatingResult, breakdown map[string]float64) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal rating result: %w", err)
	}
	var breakdownJSON []byte
	if breakdown != nil {
		if breakdownJSON, err = json.Marshal(breakdown); err != nil {
			return fmt.Errorf("marshal rating breakdown: %w", err)
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rating insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ratings (id, token_address, ts, rating, confidence, result, breakdown)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		result.ID, tokenAddress, result.Timestamp, result.Rating, result.Confidence,
		resultJSON, breakdownJSON)
	if err != nil {
		return fmt.Errorf("insert rating: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM ratings
		WHERE token_address = $1
		  AND id NOT IN (
			SELECT id FROM ratings
			WHERE token_address = $1
			ORDER BY ts DESC
			LIMIT $2
		  )`,
		tokenAddress, persistence.RetainedRatings)
	if err != nil {
		return fmt.Errorf("prune rating history: %w", err)
	}

	return tx.Commit()
}

// Latest returns the most recent rating for the token, nil when none exists.
func (r *RatingsRepo) Latest(ctx context.Context, tokenAddress string) (*model.RatingResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var resultJSON []byte
	err := r.db.QueryRowxContext(ctx, `
		SELECT result FROM ratings
		WHERE token_address = $1
		ORDER BY ts DESC
		LIMIT 1`,
		tokenAddress).Scan(&resultJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest rating: %w", err)
	}

	var result model.RatingResult
	if err := json.Unmarshal(resultJSON, &result); err != nil {
		return nil, fmt.Errorf("unmarshal latest rating: %w", err)
	}
	return &result, nil
}

// ListByToken returns up to limit recent ratings, newest first.
func (r *RatingsRepo) ListByToken(ctx context.Context, tokenAddress string, limit int) ([]persistence.RatingRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 || limit > persistence.RetainedRatings {
		limit = persistence.RetainedRatings
	}

	rows, err := r.db.QueryxContext(ctx, `
		SELECT result, breakdown, created_at FROM ratings
		WHERE token_address = $1
		ORDER BY ts DESC
		LIMIT $2`,
		tokenAddress, limit)
	if err != nil {
		return nil, fmt.Errorf("query rating history: %w", err)
	}
	defer rows.Close()

	var records []persistence.RatingRecord
	for rows.Next() {
		var (
			resultJSON    []byte
			breakdownJSON []byte
			createdAt     time.Time
		)
		if err := rows.Scan(&resultJSON, &breakdownJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan rating row: %w", err)
		}

		var rec persistence.RatingRecord
		rec.CreatedAt = createdAt
		if err := json.Unmarshal(resultJSON, &rec.Result); err != nil {
			return nil, fmt.Errorf("unmarshal rating row: %w", err)
		}
		if len(breakdownJSON) > 0 {
			if err := json.Unmarshal(breakdownJSON, &rec.Breakdown); err != nil {
				return nil, fmt.Errorf("unmarshal breakdown: %w", err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rating rows: %w", err)
	}
	return records, nil
}
