package features

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTimeDomainFeaturesBasicStats(t *testing.T) {
	fs := 250.0
	block := sineBlockN(2, int(2*fs), fs, 10)

	out := timeDomainFeatures(block, fs, 0.9)
	require.Len(t, out["mean"], 2)
	require.InDelta(t, 0, out["mean"][0], 0.05)
	require.Greater(t, out["rms"][0], float32(0))
	require.Contains(t, out, "hjorth_mobility")
}

func TestTimeDomainFeaturesSkipsComplexityBelowQualityGate(t *testing.T) {
	fs := 250.0
	block := sineBlockN(1, int(2*fs), fs, 10)

	out := timeDomainFeatures(block, fs, 0.5)
	require.NotContains(t, out, "hjorth_mobility")
	require.Contains(t, out, "mean")
}
