package mathutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	testCases := []struct {
		name     string
		v, lo, hi float64
		expected float64
	}{
		{"below", -10, 0, 100, 0},
		{"above", 150, 0, 100, 100},
		{"inside", 42, 0, 100, 42},
		{"at_lower", 0, 0, 100, 0},
		{"at_upper", 100, 0, 100, 100},
		{"negative_range", -60, -50, 0, -50},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Clamp(tc.v, tc.lo, tc.hi))
		})
	}
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 4.6, RoundTo(4.6000000001, 1))
	assert.Equal(t, 7.13, RoundTo(7.1349, 2))
	assert.Equal(t, -2.5, RoundTo(-2.54, 1))
}

func TestIsFiniteNumber(t *testing.T) {
	assert.True(t, IsFiniteNumber(1.5))
	assert.False(t, IsFiniteNumber(math.NaN()))
	assert.False(t, IsFiniteNumber(math.Inf(1)))
	assert.False(t, IsFiniteNumber(math.Inf(-1)))
}

func TestSafeDiv(t *testing.T) {
	assert.Equal(t, 2.0, SafeDiv(10, 5, 0))
	assert.Equal(t, 1.0, SafeDiv(10, 0, 1.0))
	assert.Equal(t, 0.0, SafeDiv(math.NaN(), 5, 0))
}

func TestStdDev(t *testing.T) {
	assert.InDelta(t, 2.0, StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
	assert.Equal(t, 0.0, StdDev([]float64{5}))
}
