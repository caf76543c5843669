// Package advisory wraps an external rating advisor behind a circuit
// breaker and a rate limiter. The engine consults it only for high ratings
// and always survives its failure.
package advisory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/tokenwatch/rater/internal/model"
)

// ErrRateLimited is returned when the local limiter has no budget left.
var ErrRateLimited = errors.New("advisory rate limit exhausted")

// Config tunes the advisory client.
type Config struct {
	BaseURL string        `yaml:"base_url" validate:"omitempty,url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`

	// RequestsPerMinute bounds outbound calls; Burst allows short spikes.
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`

	// ConsecutiveFailures trips the breaker; OpenTimeout is the cool-down
	// before a probe request is allowed through.
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	OpenTimeout         time.Duration `yaml:"open_timeout"`
}

// DefaultConfig returns conservative client defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:             8 * time.Second,
		RequestsPerMinute:   30,
		Burst:               5,
		ConsecutiveFailures: 3,
		OpenTimeout:         60 * time.Second,
	}
}

// Client is an HTTP advisory client. Implements the engine's Advisor
// contract.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewClient builds the client with its breaker and limiter wired.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultConfig().Burst
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultConfig().ConsecutiveFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultConfig().OpenTimeout
	}

	log := logger.With().Str("component", "advisory").Logger()
	settings := gobreaker.Settings{
		Name:    "advisory",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("advisory breaker state change")
		},
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.Burst),
		log:     log,
	}
}

type adviseRequest struct {
	Token      model.TokenData       `json:"token"`
	Rating     float64               `json:"rating"`
	Confidence float64               `json:"confidence"`
	Components model.ScoreComponents `json:"components"`
	Reasoning  []string              `json:"reasoning"`
}

type adviseResponse struct {
	Rating    float64 `json:"rating"`
	Rationale string  `json:"rationale"`
}

// Advise posts the technical rating to the advisor and returns its 1-10
// opinion with rationale. Breaker-open, limiter, transport, and decode
// failures all return errors; the caller keeps its technical rating.
func (c *Client) Advise(ctx context.Context, token model.TokenData, result model.RatingResult) (model.AdvisoryOpinion, error) {
	if !c.limiter.Allow() {
		return model.AdvisoryOpinion{}, ErrRateLimited
	}

	payload, err := json.Marshal(adviseRequest{
		Token:      token,
		Rating:     result.Rating,
		Confidence: result.Confidence,
		Components: result.Components,
		Reasoning:  result.Reasoning,
	})
	if err != nil {
		return model.AdvisoryOpinion{}, fmt.Errorf("advisory: marshal request: %w", err)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, payload)
	})
	if err != nil {
		return model.AdvisoryOpinion{}, err
	}

	resp := out.(adviseResponse)
	if resp.Rating < 1 || resp.Rating > 10 {
		return model.AdvisoryOpinion{}, fmt.Errorf("advisory: rating %.2f outside 1-10", resp.Rating)
	}
	c.log.Debug().
		Str("token", token.Address).
		Float64("advised", resp.Rating).
		Msg("advisory opinion received")
	return model.AdvisoryOpinion{Rating: resp.Rating, Rationale: resp.Rationale}, nil
}

func (c *Client) post(ctx context.Context, payload []byte) (adviseResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/advise", bytes.NewReader(payload))
	if err != nil {
		return adviseResponse{}, fmt.Errorf("advisory: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return adviseResponse{}, fmt.Errorf("advisory: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return adviseResponse{}, fmt.Errorf("advisory: unexpected status %d", httpResp.StatusCode)
	}

	var resp adviseResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return adviseResponse{}, fmt.Errorf("advisory: decode response: %w", err)
	}
	return resp, nil
}
