package metrics

import (
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findMetric(t *testing.T, r *Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestRatingComputed(t *testing.T) {
	r := NewRegistry()

	r.RatingComputed("0xabc", 7.5, 120*time.Millisecond)
	r.RatingComputed("0xabc", 8.0, 80*time.Millisecond)

	total := findMetric(t, r, "rater_ratings_total")
	require.NotNil(t, total)
	assert.Equal(t, 2.0, total.GetMetric()[0].GetCounter().GetValue())

	dur := findMetric(t, r, "rater_rating_duration_seconds")
	require.NotNil(t, dur)
	assert.Equal(t, uint64(2), dur.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestComponentFallback(t *testing.T) {
	r := NewRegistry()

	r.ComponentFallback("technical")
	r.ComponentFallback("technical")
	r.ComponentFallback("volume")

	fam := findMetric(t, r, "rater_component_fallbacks_total")
	require.NotNil(t, fam)
	assert.Len(t, fam.GetMetric(), 2)
}

func TestAdvisoryOutcome(t *testing.T) {
	r := NewRegistry()

	r.AdvisoryOutcome(true)
	r.AdvisoryOutcome(false)
	r.AdvisoryOutcome(false)

	fam := findMetric(t, r, "rater_advisory_outcomes_total")
	require.NotNil(t, fam)

	byLabel := map[string]float64{}
	for _, m := range fam.GetMetric() {
		byLabel[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	assert.Equal(t, 1.0, byLabel["blended"])
	assert.Equal(t, 2.0, byLabel["failed"])
}

func TestCacheCounters(t *testing.T) {
	r := NewRegistry()

	r.CacheMiss()
	r.CacheHit()
	r.CacheHit()

	hits := findMetric(t, r, "rater_cache_hits_total")
	require.NotNil(t, hits)
	assert.Equal(t, 2.0, hits.GetMetric()[0].GetCounter().GetValue())

	misses := findMetric(t, r, "rater_cache_misses_total")
	require.NotNil(t, misses)
	assert.Equal(t, 1.0, misses.GetMetric()[0].GetCounter().GetValue())
}

func TestWSClientCount(t *testing.T) {
	r := NewRegistry()

	r.WSClientCount(3)
	r.WSClientCount(1)

	fam := findMetric(t, r, "rater_ws_clients")
	require.NotNil(t, fam)
	assert.Equal(t, 1.0, fam.GetMetric()[0].GetGauge().GetValue())
}

func TestHandlerServesScrape(t *testing.T) {
	r := NewRegistry()
	assert.NotNil(t, r.Handler())
}
