package preprocessing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/identity-wael/neurascale-sub000/internal/config"
)

func TestInterpolateFromPositionsWeightsCloserNeighbourMore(t *testing.T) {
	byChannel := map[int]config.ElectrodePosition{
		0: {Channel: 0, X: 0, Y: 0},
		1: {Channel: 1, X: 1, Y: 0},  // close
		2: {Channel: 2, X: 10, Y: 0}, // far
	}
	block := [][]float64{
		{0, 0},
		{10, 10},
		{100, 100},
	}
	out := interpolateFromPositions(block, 0, map[int]bool{0: true}, byChannel)
	// Closer channel 1 should dominate the weighted average, pulling the
	// result much nearer to 10 than to 100.
	require.Less(t, out[0], 50.0)
}

func TestInterpolateFromPositionsFallsBackWithoutOwnPosition(t *testing.T) {
	byChannel := map[int]config.ElectrodePosition{
		1: {Channel: 1, X: 1, Y: 0},
	}
	block := [][]float64{
		{0, 0},
		{10, 10},
	}
	out := interpolateFromPositions(block, 0, map[int]bool{0: true}, byChannel)
	require.Equal(t, interpolateFromNeighbours(block, 0, map[int]bool{0: true}), out)
}
