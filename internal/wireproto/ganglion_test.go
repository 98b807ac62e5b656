package wireproto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// packGanglionSamples builds a valid 20-byte Ganglion sample frame from 4
// raw 19-bit two's-complement values, mirroring decodeGanglionSamples's bit
// layout so tests can exercise Feed without a dedicated encoder.
func packGanglionSamples(typeByte byte, raw [4]int32) []byte {
	buf := make([]byte, ganglionFrameLen)
	buf[0] = typeByte

	var bits uint64
	var nbits uint
	pos := 1
	flush := func() {
		for nbits >= 8 {
			nbits -= 8
			buf[pos] = byte(bits >> nbits)
			pos++
		}
	}
	for _, r := range raw {
		bits = bits<<19 | uint64(uint32(r)&0x7FFFF)
		nbits += 19
		flush()
	}
	if nbits > 0 {
		buf[pos] = byte(bits << (8 - nbits))
	}
	return buf
}

func TestGanglionDecodesSampleFrame(t *testing.T) {
	raw := [4]int32{100, -100, 0, 262143 >> 1}
	frame := packGanglionSamples(50, raw)

	d := NewGanglionDecoder()
	packets := d.Feed(frame)
	require.Len(t, packets, 1)
	require.Equal(t, GanglionKindSamples, packets[0].Kind)
	for ch, r := range raw {
		want := float64(r) * ganglionScale
		require.InDelta(t, want, packets[0].Microvolts[ch], 1e-6)
	}
	require.EqualValues(t, 1, d.PacketsDecoded())
}

func TestGanglionImpedancePacketConsumesRemainder(t *testing.T) {
	payload := []byte{1, 2, 3, 4}
	stream := append([]byte{ganglionImpedanceID}, payload...)

	d := NewGanglionDecoder()
	packets := d.Feed(stream)
	require.Len(t, packets, 1)
	require.Equal(t, GanglionKindImpedance, packets[0].Kind)
	require.Equal(t, payload, packets[0].ImpedanceRaw)
}

func TestGanglionStatusPacketForUnknownType(t *testing.T) {
	stream := []byte{250, 9, 9}
	d := NewGanglionDecoder()
	packets := d.Feed(stream)
	require.Len(t, packets, 1)
	require.Equal(t, GanglionKindStatus, packets[0].Kind)
	require.Equal(t, []byte{9, 9}, packets[0].StatusPayload)
}

func TestGanglionIncompleteSampleFrameWaitsForMoreBytes(t *testing.T) {
	frame := packGanglionSamples(0, [4]int32{1, 2, 3, 4})
	d := NewGanglionDecoder()
	require.Empty(t, d.Feed(frame[:10]))
	packets := d.Feed(frame[10:])
	require.Len(t, packets, 1)
}

func TestSextNSignExtends19Bit(t *testing.T) {
	require.Equal(t, int32(-1), sextN(0x7FFFF, 19))
	require.Equal(t, int32(0), sextN(0, 19))
	require.Equal(t, int32(1), sextN(1, 19))
}
