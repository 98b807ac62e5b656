package preprocessing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/identity-wael/neurascale-sub000/internal/config"
)

func TestRunLaplacianUsesDistanceWeightsWhenElectrodesConfigured(t *testing.T) {
	cfg := config.DefaultProcessor()
	cfg.SpatialFilterType = "laplacian"
	cfg.LaplacianRadiusCm = 5
	cfg.Electrodes = []config.ElectrodePosition{
		{Channel: 0, X: 0, Y: 0},
		{Channel: 1, X: 1, Y: 0},
		{Channel: 2, X: 10, Y: 10}, // out of radius, should not contribute
	}
	p := New(cfg)

	block := [][]float64{
		{1, 1, 1, 1},
		{2, 2, 2, 2},
		{3, 3, 3, 3},
	}
	out, info, err := p.runSpatialFilter(block, 250)
	require.NoError(t, err)
	require.Equal(t, "distance", info["weights"])
	// Channel 0's only in-radius neighbour is channel 1, so its Laplacian
	// output is ch0 - ch1 = -1 at every sample.
	for _, v := range out[0] {
		require.InDelta(t, -1.0, v, 1e-9)
	}
}

func TestRunLaplacianFallsBackToIndexWeightsWithoutElectrodes(t *testing.T) {
	cfg := config.DefaultProcessor()
	cfg.SpatialFilterType = "laplacian"
	p := New(cfg)

	block := [][]float64{{1, 1}, {2, 2}, {3, 3}}
	_, info, err := p.runSpatialFilter(block, 250)
	require.NoError(t, err)
	require.Equal(t, "index", info["weights"])
}
