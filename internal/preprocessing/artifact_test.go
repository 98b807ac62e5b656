package preprocessing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func sineSeries(n int, fs, freq float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 20 * math.Sin(2*math.Pi*freq*float64(i)/fs)
	}
	return out
}

func TestBandPowerFractionConcentratesOnSourceFrequency(t *testing.T) {
	const fs = 250.0
	comp := sineSeries(1000, fs, 2) // well within the 0.1-4Hz ocular band

	low := bandPowerFraction(comp, fs, 0.1, 4)
	high := bandPowerFraction(comp, fs, 20, 100)

	require.Greater(t, low, 0.9)
	require.Less(t, high, 0.1)
}

func TestIsArtifactComponentFlagsLowFrequencyDominance(t *testing.T) {
	const fs = 250.0
	ocular := sineSeries(1000, fs, 1.5)
	require.True(t, isArtifactComponent(ocular, fs))
}

func TestIsArtifactComponentFlagsHighFrequencyDominance(t *testing.T) {
	const fs = 250.0
	muscle := sineSeries(1000, fs, 45)
	require.True(t, isArtifactComponent(muscle, fs))
}

func TestIsArtifactComponentAcceptsMidBandSignal(t *testing.T) {
	const fs = 250.0
	alpha := sineSeries(1000, fs, 10)
	require.False(t, isArtifactComponent(alpha, fs))
}
