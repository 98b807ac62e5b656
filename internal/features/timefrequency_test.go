package features

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTimeFrequencyFeaturesProducesDWTAndCWTKeys(t *testing.T) {
	fs := 250.0
	block := sineBlockN(2, int(2*fs), fs, 20)

	out := timeFrequencyFeatures(block, fs, 0.9, []float64{10, 20, 30})
	require.Contains(t, out, "dwt_energy_l1")
	require.Contains(t, out, "cwt_power_20hz")
	require.Contains(t, out, "hilbert_amp_mean")
	require.Contains(t, out, "imf_low_energy_ratio")
	require.Len(t, out["dwt_energy_l1"], 2)
}

func TestTimeFrequencyFeaturesSkipsCWTBelowQualityGate(t *testing.T) {
	fs := 250.0
	block := sineBlockN(1, int(2*fs), fs, 20)

	out := timeFrequencyFeatures(block, fs, 0.4, []float64{10})
	require.NotContains(t, out, "cwt_power_10hz")
}

func TestBandedIMFsProduceNonzeroEnergy(t *testing.T) {
	fs := 250.0
	block := sineBlockN(1, int(2*fs), fs, 20)
	low, mid, high := bandedIMFs(block[0], fs)
	total := energy(low) + energy(mid) + energy(high)
	require.Greater(t, total, 0.0)
}
