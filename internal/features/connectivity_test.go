package features

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectivityFeaturesHighPLVForPhaseLockedChannels(t *testing.T) {
	fs := 250.0
	nCh := 8
	block := sineBlockN(nCh, int(2*fs), fs, 10)
	// channel 1 is an exact copy of channel 0: phase-locked at every band.
	block[1] = append([]float64(nil), block[0]...)

	perCh, global := connectivityFeatures(block, fs)
	require.Len(t, perCh["node_strength"], nCh)
	require.Contains(t, global, "mean_plv_alpha")
	require.Greater(t, global["mean_plv_alpha"], float32(0))
}

func TestMutualInformationIsZeroForIndependentConstantSignals(t *testing.T) {
	a := make([]float64, 100)
	b := make([]float64, 100)
	for i := range a {
		a[i] = 1
		b[i] = 1
	}
	mi := mutualInformation(a, b, 4)
	require.GreaterOrEqual(t, mi, 0.0)
}

func TestPhaseLockingValueIsOneForIdenticalPhase(t *testing.T) {
	phases := make([]float64, 50)
	for i := range phases {
		phases[i] = float64(i) * 0.1
	}
	plv := phaseLockingValue(phases, phases)
	require.InDelta(t, 1.0, plv, 1e-9)
}
