package preprocessing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/identity-wael/neurascale-sub000/internal/config"
)

// sineBlock fills every channel with a sine under a slow 0.5 Hz amplitude
// envelope, so only a few percent of samples lie near the extremes.
func sineBlock(channels, n int, fs, freq float64) [][]float64 {
	out := make([][]float64, channels)
	for ch := range out {
		row := make([]float64, n)
		for i := range row {
			t := float64(i) / fs
			row[i] = 20 * (1 + 0.5*math.Sin(2*math.Pi*0.5*t)) * math.Sin(2*math.Pi*freq*t)
		}
		out[ch] = row
	}
	return out
}

func TestPipelineRunsConfiguredStagesAndPreservesShape(t *testing.T) {
	const fs = 250.0
	cfg := config.DefaultProcessor()
	cfg.PreprocessingSteps = []string{"notch", "bandpass"}
	p := New(cfg)

	block := sineBlock(4, 500, fs, 10)
	out, results := p.Run(block, fs)

	require.Len(t, out, 4)
	require.Len(t, out[0], 500)
	require.Len(t, results, 2)
	for _, r := range results {
		require.False(t, r.Failed)
	}
}

func TestBandpassRejectsInvalidRange(t *testing.T) {
	const fs = 250.0
	cfg := config.DefaultProcessor()
	cfg.PreprocessingSteps = []string{"bandpass"}
	cfg.BandpassHigh = fs // >= nyquist
	p := New(cfg)

	block := sineBlock(2, 256, fs, 10)
	_, results := p.Run(block, fs)
	require.True(t, results[0].Failed)
}

func TestChannelRepairFlagsAndReplacesFlatlineChannel(t *testing.T) {
	const fs = 250.0
	cfg := config.DefaultProcessor()
	cfg.PreprocessingSteps = []string{"channel_repair"}
	p := New(cfg)

	block := sineBlock(4, 500, fs, 10)
	block[1] = make([]float64, 500) // flatline

	out, results := p.Run(block, fs)
	info := results[0].Info
	require.Contains(t, info["bad_channels"], 1)
	require.NotEqual(t, 0.0, out[1][100])
}

func TestSpatialFilterCARZeroesSumAcrossChannels(t *testing.T) {
	const fs = 250.0
	cfg := config.DefaultProcessor()
	cfg.PreprocessingSteps = []string{"spatial_filter"}
	cfg.SpatialFilterType = "car"
	p := New(cfg)

	block := sineBlock(4, 100, fs, 10)
	block[0][0] += 50 // break symmetry
	out, _ := p.Run(block, fs)

	var sum float64
	for _, row := range out {
		sum += row[0]
	}
	require.InDelta(t, 0, sum, 1e-9)
}
