package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenwatch/rater/internal/cache"
	"github.com/tokenwatch/rater/internal/engine"
	"github.com/tokenwatch/rater/internal/model"
)

func testServer(t *testing.T, opts Options) *Server {
	t.Helper()
	eng, err := engine.New(engine.DefaultConfig(), engine.Deps{Logger: zerolog.Nop()})
	require.NoError(t, err)
	s := NewServer(eng, opts, zerolog.Nop())
	t.Cleanup(s.Close)
	return s
}

func rateBody(t *testing.T, address string) *bytes.Buffer {
	t.Helper()
	req := rateRequest{
		Input: engine.Input{
			Technical: model.TechnicalIndicators{RSI: 55},
			Momentum:  model.MomentumAnalysis{Trend: model.TrendBullish, Strength: 60},
			Volume:    model.VolumeAnalysis{VolumeSpikeFactor: 1.5, LiquidityScore: 60},
			Risk:      model.RiskAssessment{Overall: 40},
			Context:   model.AnalysisContext{TokenData: model.TokenData{Address: address}},
		},
	}
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	return bytes.NewBuffer(payload)
}

func TestHandleRate(t *testing.T) {
	s := testServer(t, Options{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/rate", rateBody(t, "0xabc")))

	require.Equal(t, http.StatusOK, rec.Code)

	var result model.RatingResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, "0xabc", result.TokenAddress)
	assert.GreaterOrEqual(t, result.Rating, 1.0)
	assert.LessOrEqual(t, result.Rating, 10.0)
}

func TestHandleRate_RequiresAddress(t *testing.T) {
	s := testServer(t, Options{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/rate", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRate_RejectsBadJSON(t *testing.T) {
	s := testServer(t, Options{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/rate", strings.NewReader("{broken")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeCache struct {
	stored map[string]model.RatingResult
}

func (f *fakeCache) Get(_ context.Context, token string) (model.RatingResult, error) {
	if r, ok := f.stored[token]; ok {
		return r, nil
	}
	return model.RatingResult{}, cache.ErrMiss
}

func (f *fakeCache) Set(_ context.Context, result model.RatingResult) error {
	f.stored[result.TokenAddress] = result
	return nil
}

func TestHandleRate_ServesFromCache(t *testing.T) {
	fc := &fakeCache{stored: map[string]model.RatingResult{
		"0xabc": {ID: "cached", TokenAddress: "0xabc", Rating: 6.0},
	}}
	s := testServer(t, Options{Cache: fc})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/rate", rateBody(t, "0xabc")))

	require.Equal(t, http.StatusOK, rec.Code)
	var result model.RatingResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, "cached", result.ID)
}

func TestHandleRate_FillsCacheOnMiss(t *testing.T) {
	fc := &fakeCache{stored: map[string]model.RatingResult{}}
	s := testServer(t, Options{Cache: fc})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/rate", rateBody(t, "0xnew")))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, fc.stored, "0xnew")
}

type recordingMetrics struct {
	mu      sync.Mutex
	hits    int
	misses  int
	wsCount int
}

func (m *recordingMetrics) CacheHit() {
	m.mu.Lock()
	m.hits++
	m.mu.Unlock()
}

func (m *recordingMetrics) CacheMiss() {
	m.mu.Lock()
	m.misses++
	m.mu.Unlock()
}

func (m *recordingMetrics) WSClientCount(n int) {
	m.mu.Lock()
	m.wsCount = n
	m.mu.Unlock()
}

func (m *recordingMetrics) snapshot() (hits, misses, wsCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits, m.misses, m.wsCount
}

func TestHandleRate_CountsCacheHitsAndMisses(t *testing.T) {
	fc := &fakeCache{stored: map[string]model.RatingResult{}}
	rm := &recordingMetrics{}
	s := testServer(t, Options{Cache: fc, Metrics: rm})

	// First call misses and fills the cache; second call hits.
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/rate", rateBody(t, "0xcnt")))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/rate", rateBody(t, "0xcnt")))
	require.Equal(t, http.StatusOK, rec.Code)

	hits, misses, _ := rm.snapshot()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

func TestHandleHistory(t *testing.T) {
	s := testServer(t, Options{})

	// Compute one rating first so there is history to read.
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/rate", rateBody(t, "0xhist")))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ratings/0xhist", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "0xhist")
}

func TestHandleHealth(t *testing.T) {
	s := testServer(t, Options{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestAlertStream(t *testing.T) {
	s := testServer(t, Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/alerts"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	s.Hub().Publish(model.RatingResult{
		TokenAddress:   "0xhot",
		Rating:         9.1,
		Confidence:     88,
		Recommendation: model.RecStrongBuy,
		Alerts:         []string{"🚀 rating 9.1/10 with 88% confidence"},
		Timestamp:      time.Now().UTC(),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event AlertEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "0xhot", event.TokenAddress)
	assert.Equal(t, 9.1, event.Rating)
}

func TestAlertStream_TracksClientCount(t *testing.T) {
	rm := &recordingMetrics{}
	s := testServer(t, Options{Metrics: rm})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/alerts"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, _, n := rm.snapshot()
		return n == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool {
		_, _, n := rm.snapshot()
		return n == 0
	}, 2*time.Second, 10*time.Millisecond)
}
