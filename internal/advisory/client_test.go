package advisory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenwatch/rater/internal/model"
)

func testClient(baseURL string, mutate func(*Config)) *Client {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.RequestsPerMinute = 6000
	cfg.Burst = 100
	if mutate != nil {
		mutate(&cfg)
	}
	return NewClient(cfg, zerolog.Nop())
}

func TestAdvise_RoundTrip(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/advise", r.URL.Path)
		gotAuth.Store(r.Header.Get("Authorization"))

		var req adviseRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "0xabc", req.Token.Address)

		json.NewEncoder(w).Encode(adviseResponse{Rating: 8.5, Rationale: "fundamentals align"})
	}))
	defer srv.Close()

	c := testClient(srv.URL, func(cfg *Config) { cfg.APIKey = "secret" })

	opinion, err := c.Advise(context.Background(), model.TokenData{Address: "0xabc"}, model.RatingResult{Rating: 8})

	require.NoError(t, err)
	assert.Equal(t, 8.5, opinion.Rating)
	assert.Equal(t, "fundamentals align", opinion.Rationale)
	assert.Equal(t, "Bearer secret", gotAuth.Load())
}

func TestAdvise_RejectsOutOfRangeRating(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(adviseResponse{Rating: 42})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, nil).Advise(context.Background(), model.TokenData{}, model.RatingResult{})

	assert.Error(t, err)
}

func TestAdvise_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv.URL, func(cfg *Config) { cfg.ConsecutiveFailures = 2 })

	for i := 0; i < 5; i++ {
		_, err := c.Advise(context.Background(), model.TokenData{}, model.RatingResult{})
		assert.Error(t, err)
	}

	// Only the pre-trip requests reached the server.
	assert.Equal(t, int32(2), calls.Load())
}

func TestAdvise_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(adviseResponse{Rating: 7})
	}))
	defer srv.Close()

	c := testClient(srv.URL, func(cfg *Config) {
		cfg.RequestsPerMinute = 1
		cfg.Burst = 1
	})

	_, err := c.Advise(context.Background(), model.TokenData{}, model.RatingResult{})
	require.NoError(t, err)

	_, err = c.Advise(context.Background(), model.TokenData{}, model.RatingResult{})
	assert.ErrorIs(t, err, ErrRateLimited)
}
