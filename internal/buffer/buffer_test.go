package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func makeBlock(channels, n int, start float32) [][]float32 {
	block := make([][]float32, channels)
	for c := 0; c < channels; c++ {
		row := make([]float32, n)
		for i := 0; i < n; i++ {
			row[i] = start + float32(i)
		}
		block[c] = row
	}
	return block
}

func TestAppendThenLatestYieldsOrderedTail(t *testing.T) {
	b := New(2, 100, 250)
	require.NoError(t, b.Append(makeBlock(2, 10, 0), 0))
	require.NoError(t, b.Append(makeBlock(2, 10, 10), 1))

	got, ok := b.Latest(10)
	require.True(t, ok)
	require.Equal(t, float32(10), got[0][0])
	require.Equal(t, float32(19), got[0][9])
	require.EqualValues(t, 20, b.TotalWritten())
}

func TestAppendTooLargeLeavesBufferUnchanged(t *testing.T) {
	b := New(1, 10, 250)
	require.NoError(t, b.Append(makeBlock(1, 5, 0), 0))
	err := b.Append(makeBlock(1, 11, 0), 0)
	require.ErrorIs(t, err, ErrTooLarge)
	require.Equal(t, 5, b.SampleCount())
}

func TestLatestMoreThanSampleCountReturnsNotOK(t *testing.T) {
	b := New(1, 10, 250)
	require.NoError(t, b.Append(makeBlock(1, 3, 0), 0))
	_, ok := b.Latest(4)
	require.False(t, ok)
}

func TestWindowsSlidingWindowDriver(t *testing.T) {
	const fs = 250.0
	b := New(1, CapacityFromSeconds(10, fs), fs)
	for i := 0; i < 300; i++ {
		require.NoError(t, b.Append(makeBlock(1, 5, float32(i*5)), float64(i*5)/fs))
	}

	windows := b.Windows(500, 250)
	require.Len(t, windows, 5)
	wantStarts := []uint64{0, 250, 500, 750, 1000}
	for i, w := range windows {
		require.Equal(t, wantStarts[i], w.StartIndex)
		require.Len(t, w.Data[0], 500)
	}

	// Idempotent: calling again with no new data yields nothing further.
	require.Empty(t, b.Windows(500, 250))
}

func TestWindowSizeGreaterThanSampleCountYieldsNothing(t *testing.T) {
	b := New(1, 100, 250)
	require.NoError(t, b.Append(makeBlock(1, 10, 0), 0))
	require.Empty(t, b.Windows(50, 10))
}

func TestOverflowCounterTracksDroppedChunks(t *testing.T) {
	const fs = 250.0
	b := New(1, CapacityFromSeconds(10, fs), fs) // 2500 samples capacity
	for i := 0; i < 30; i++ {
		require.NoError(t, b.Append(makeBlock(1, 100, 0), 0))
	}
	got, ok := b.Latest(2500)
	require.True(t, ok)
	require.Len(t, got[0], 2500)
	require.EqualValues(t, 5, b.OverflowCount())
}
