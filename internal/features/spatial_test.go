package features

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpatialFeaturesDetectsCorrelatedChannels(t *testing.T) {
	fs := 250.0
	block := sineBlockN(4, int(2*fs), fs, 10)
	// make channel 1 an exact copy of channel 0 so they are maximally correlated.
	block[1] = append([]float64(nil), block[0]...)

	perCh, global := spatialFeatures(block)
	require.Len(t, perCh["mean_abs_correlation"], 4)
	require.Greater(t, perCh["max_abs_correlation"][0], float32(0.9))
	require.Contains(t, global, "covariance_eigen_entropy")
	require.Contains(t, global, "effective_rank")
}

func TestCorrelationMatrixIsSymmetricWithUnitDiagonal(t *testing.T) {
	fs := 250.0
	block := sineBlockN(3, int(2*fs), fs, 10)
	corr := correlationMatrix(block)
	for i := 0; i < 3; i++ {
		require.InDelta(t, 1.0, corr.At(i, i), 1e-6)
		for j := 0; j < 3; j++ {
			require.InDelta(t, corr.At(i, j), corr.At(j, i), 1e-9)
		}
	}
}
