package quality

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// cleanSignal is a 10 Hz sine under a slow 0.5 Hz amplitude envelope, so
// only a few percent of its samples lie near its extremes.
func cleanSignal(n int, fs float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / fs
		out[i] = 20 * (1 + 0.5*math.Sin(2*math.Pi*0.5*t)) * math.Sin(2*math.Pi*10*t)
	}
	return out
}

func TestAssessRatesCleanSignalHighly(t *testing.T) {
	const fs = 250.0
	block := make([][]float64, 4)
	for ch := range block {
		block[ch] = cleanSignal(500, fs)
	}
	a := NewAssessor(DefaultConfig())
	m := a.Assess(block, fs)

	require.GreaterOrEqual(t, m.CompositeScore, 0.8)
	require.Empty(t, m.FlatlineChannels)
}

func TestAssessFlagsFlatlineChannel(t *testing.T) {
	const fs = 250.0
	block := make([][]float64, 3)
	block[0] = cleanSignal(500, fs)
	block[1] = cleanSignal(500, fs)
	block[2] = make([]float64, 500) // all zero => flatline

	a := NewAssessor(DefaultConfig())
	m := a.Assess(block, fs)
	require.Contains(t, m.FlatlineChannels, 2)
	require.Less(t, m.PerChannelQuality[2], 0.01)
}

func TestAssessFlagsClippingChannel(t *testing.T) {
	const fs = 250.0
	n := 500
	clipped := make([]float64, n)
	for i := range clipped {
		if i%2 == 0 {
			clipped[i] = 100
		} else {
			clipped[i] = -100
		}
	}
	block := [][]float64{clipped}
	a := NewAssessor(DefaultConfig())
	m := a.Assess(block, fs)
	require.Contains(t, m.ClippingChannels, 0)
}

func TestAssessNoisySignalScoresLower(t *testing.T) {
	const fs = 250.0
	rng := rand.New(rand.NewSource(1))
	noisy := make([]float64, 500)
	for i := range noisy {
		noisy[i] = rng.NormFloat64() * 80
	}
	clean := cleanSignal(500, fs)

	a := NewAssessor(DefaultConfig())
	cleanScore := a.Assess([][]float64{clean, clean}, fs).CompositeScore
	noisyScore := a.Assess([][]float64{noisy, noisy}, fs).CompositeScore
	require.Less(t, noisyScore, cleanScore)
}

func TestRatingForThresholds(t *testing.T) {
	require.Equal(t, "excellent", ratingFor(0.9))
	require.Equal(t, "good", ratingFor(0.65))
	require.Equal(t, "acceptable", ratingFor(0.45))
	require.Equal(t, "poor", ratingFor(0.25))
	require.Equal(t, "unusable", ratingFor(0.1))
}
