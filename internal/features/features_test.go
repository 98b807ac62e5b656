package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func sineBlockN(nCh, n int, fs, freq float64) [][]float64 {
	block := make([][]float64, nCh)
	for ch := 0; ch < nCh; ch++ {
		x := make([]float64, n)
		for i := 0; i < n; i++ {
			t := float64(i) / fs
			x[i] = math.Sin(2*math.Pi*freq*t) + 0.05*math.Sin(2*math.Pi*float64(ch+1)*t)
		}
		block[ch] = x
	}
	return block
}

func TestExtractRunsAllGroupsForHighQualityWideBlock(t *testing.T) {
	fs := 250.0
	block := sineBlockN(8, int(4*fs), fs, 10)

	e := NewExtractor()
	bundle := e.Extract(block, fs, 0.95)

	require.Empty(t, bundle.Errors)
	require.Contains(t, bundle.PerChannel, GroupTime)
	require.Contains(t, bundle.PerChannel, GroupFrequency)
	require.Contains(t, bundle.PerChannel, GroupTimeFrequency)
	require.Contains(t, bundle.PerChannel, GroupSpatial)
	require.Contains(t, bundle.PerChannel, GroupConnectivity)
	require.Len(t, bundle.PerChannel[GroupTime]["mean"], 8)
}

func TestExtractSkipsSpatialAndConnectivityBelowGates(t *testing.T) {
	fs := 250.0
	block := sineBlockN(2, int(2*fs), fs, 10)

	e := NewExtractor()
	bundle := e.Extract(block, fs, 0.5)

	require.NotContains(t, bundle.PerChannel, GroupSpatial)
	require.NotContains(t, bundle.PerChannel, GroupConnectivity)
	require.Contains(t, bundle.PerChannel, GroupTime)
}

func TestExtractHonorsDisabledGroups(t *testing.T) {
	fs := 250.0
	block := sineBlockN(2, int(2*fs), fs, 10)

	e := NewExtractor()
	e.Groups = map[Group]bool{GroupTime: true}
	bundle := e.Extract(block, fs, 0.95)

	require.Contains(t, bundle.PerChannel, GroupTime)
	require.NotContains(t, bundle.PerChannel, GroupFrequency)
	require.NotContains(t, bundle.PerChannel, GroupTimeFrequency)
}
