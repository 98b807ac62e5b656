package features

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrequencyDomainFeaturesPeaksInAlphaBand(t *testing.T) {
	fs := 250.0
	block := sineBlockN(1, int(4*fs), fs, 10)

	out := frequencyDomainFeatures(block, fs, 0.9)
	require.InDelta(t, 10, out["peak_frequency"][0], 1.5)
	require.Greater(t, out["rel_power_alpha"][0], out["rel_power_delta"][0])
	require.Contains(t, out, "spectral_entropy")
}

func TestFrequencyDomainFeaturesSkipsEntropyBelowQualityGate(t *testing.T) {
	fs := 250.0
	block := sineBlockN(1, int(2*fs), fs, 10)

	out := frequencyDomainFeatures(block, fs, 0.3)
	require.NotContains(t, out, "spectral_entropy")
}
