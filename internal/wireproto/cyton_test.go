package wireproto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleMicrovolts() [cytonNumEEGChan]float64 {
	var mv [cytonNumEEGChan]float64
	for ch := range mv {
		mv[ch] = float64(ch-4) * 1000 * microvoltsPerLSB * 1000
	}
	return mv
}

func TestCytonRoundTripIsBitExact(t *testing.T) {
	aux := [cytonNumAuxChan]int16{100, -200, 300}
	want := sampleMicrovolts()

	encoded, err := EncodeCytonFrame(42, want, aux)
	require.NoError(t, err)
	require.Len(t, encoded, cytonFrameLen)

	d := NewCytonDecoder()
	frames := d.Feed(encoded)
	require.Len(t, frames, 1)
	require.Equal(t, uint8(42), frames[0].SampleCounter)
	for ch := range want {
		require.InDelta(t, want[ch], frames[0].EEGMicrovolts[ch], 1e-9)
	}
	require.Equal(t, aux, frames[0].Aux)
	require.EqualValues(t, 0, d.DroppedBytes())
	require.EqualValues(t, 0, d.DroppedPackets())
	require.EqualValues(t, 1, d.FramesDecoded())
}

func TestCytonDecoderResyncsOnCorruption(t *testing.T) {
	mv := sampleMicrovolts()
	f1, err := EncodeCytonFrame(0, mv, [cytonNumAuxChan]int16{})
	require.NoError(t, err)
	f2, err := EncodeCytonFrame(1, mv, [cytonNumAuxChan]int16{})
	require.NoError(t, err)

	garbage := []byte{0x01, 0x02, 0x03}
	stream := append(append(append([]byte{}, garbage...), f1...), f2...)

	d := NewCytonDecoder()
	frames := d.Feed(stream)
	require.Len(t, frames, 2)
	require.EqualValues(t, len(garbage), d.DroppedBytes())
	require.EqualValues(t, 0, d.DroppedPackets())
}

func TestCytonDecoderCountsSkippedPackets(t *testing.T) {
	mv := sampleMicrovolts()
	f1, err := EncodeCytonFrame(0, mv, [cytonNumAuxChan]int16{})
	require.NoError(t, err)
	f2, err := EncodeCytonFrame(5, mv, [cytonNumAuxChan]int16{})
	require.NoError(t, err)

	d := NewCytonDecoder()
	d.Feed(f1)
	d.Feed(f2)
	require.EqualValues(t, 4, d.DroppedPackets())
}

func TestCytonEncodeRejectsOutOfRangeChannel(t *testing.T) {
	mv := sampleMicrovolts()
	mv[0] = 1e9
	_, err := EncodeCytonFrame(0, mv, [cytonNumAuxChan]int16{})
	require.Error(t, err)
}

func TestCytonDecoderFeedAcrossMultipleCalls(t *testing.T) {
	mv := sampleMicrovolts()
	encoded, err := EncodeCytonFrame(7, mv, [cytonNumAuxChan]int16{})
	require.NoError(t, err)

	d := NewCytonDecoder()
	require.Empty(t, d.Feed(encoded[:10]))
	frames := d.Feed(encoded[10:])
	require.Len(t, frames, 1)
	require.Equal(t, uint8(7), frames[0].SampleCounter)
}
