package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFiltFiltZeroPhaseOnSymmetricImpulse(t *testing.T) {
	const n = 129
	x := make([]float64, n)
	mid := n / 2
	for i := range x {
		x[i] = 1.0 / (1.0 + math.Abs(float64(i-mid)))
	}

	sections := []Biquad{NotchBiquad(50, 250, 30)}
	y := FiltFilt(sections, x)

	for i := 0; i < n; i++ {
		require.InDelta(t, y[i], y[n-1-i], 1e-6, "zero-phase output must stay symmetric at index %d", i)
	}
}

func TestNotchCoeffCacheReusesInstance(t *testing.T) {
	cache := NewNotchCoeffCache()
	a := cache.Get(50, 250, 30)
	b := cache.Get(50, 250, 30)
	require.Equal(t, a, b)

	c := cache.Get(100, 250, 30)
	require.NotEqual(t, a, c)
}

func TestButterworthBandpassShapePreserving(t *testing.T) {
	sections := ButterworthBandpassSections(4, 0.5, 100, 250)
	require.NotEmpty(t, sections)
	x := make([]float64, 500)
	for i := range x {
		x[i] = math.Sin(2 * math.Pi * 10 * float64(i) / 250)
	}
	y := FiltFilt(sections, x)
	require.Len(t, y, len(x))
}
