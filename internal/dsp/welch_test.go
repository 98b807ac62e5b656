package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWelchPSDPeaksAtToneFrequency(t *testing.T) {
	const fs = 250.0
	const n = 1000
	x := make([]float64, n)
	for i := range x {
		x[i] = 30e-6 * math.Sin(2*math.Pi*10*float64(i)/fs)
	}

	freqs, psd := WelchPSD(x, fs, 2*int(fs))
	require.Equal(t, len(freqs), len(psd))

	peakIdx := 0
	for i, p := range psd {
		if p > psd[peakIdx] {
			peakIdx = i
		}
	}
	require.InDelta(t, 10.0, freqs[peakIdx], 0.5)
}

func TestSimpsonIntegrateConstant(t *testing.T) {
	y := []float64{2, 2, 2, 2, 2}
	got := SimpsonIntegrate(y, 1)
	require.InDelta(t, 8.0, got, 1e-9)
}
