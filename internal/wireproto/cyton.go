// Package wireproto implements the device-specific wire codecs of spec.md
// §4.A: the OpenBCI Cyton 33-byte packet framing and the OpenBCI Ganglion
// compressed packet framing. Both codecs are transport-agnostic stateful
// byte-stream scanners, in the spirit of a binary streaming
// backends that scan a buffered reader for framing markers and resync on
// mismatch rather than assuming byte-aligned delivery.
package wireproto

import "fmt"

const (
	cytonFrameLen   = 33
	cytonStartByte  = 0xA0
	cytonStopByte   = 0xC0
	cytonNumEEGChan = 8
	cytonNumAuxChan = 3

	// microvoltsPerLSB is 4.5V reference / (gain·(2^23-1)) · 1e6, with the
	// ADS1299 default gain of 24, per spec.md's bit-exact codec description.
	microvoltsPerLSB = 4.5 / (24.0 * (1<<23 - 1)) * 1e6
)

// CytonFrame is one decoded 33-byte Cyton packet.
type CytonFrame struct {
	SampleCounter uint8
	EEGMicrovolts [cytonNumEEGChan]float64
	Aux           [cytonNumAuxChan]int16
}

// CytonDecoder incrementally decodes a byte stream into CytonFrames,
// tracking dropped bytes/packets across resyncs and sample-counter gaps.
type CytonDecoder struct {
	buf             []byte
	haveLastCounter bool
	lastCounter     uint8

	droppedBytes   uint64
	droppedPackets uint64
	framesDecoded  uint64
}

// NewCytonDecoder creates an empty decoder.
func NewCytonDecoder() *CytonDecoder {
	return &CytonDecoder{}
}

// DroppedBytes returns the number of bytes discarded while resyncing.
func (d *CytonDecoder) DroppedBytes() uint64 { return d.droppedBytes }

// DroppedPackets returns the accumulated sample-counter gap, i.e. the
// number of packets inferred lost to corruption or resync.
func (d *CytonDecoder) DroppedPackets() uint64 { return d.droppedPackets }

// FramesDecoded returns the count of successfully decoded frames.
func (d *CytonDecoder) FramesDecoded() uint64 { return d.framesDecoded }

// Feed appends newly-received bytes and returns every complete, valid
// frame it can extract. Malformed framing is resynced by scanning forward
// to the next START byte that has a STOP byte 32 positions later; skipped
// bytes are counted as dropped.
func (d *CytonDecoder) Feed(data []byte) []CytonFrame {
	d.buf = append(d.buf, data...)

	var out []CytonFrame
	for {
		if len(d.buf) < cytonFrameLen {
			return out
		}
		if d.buf[0] != cytonStartByte || d.buf[cytonFrameLen-1] != cytonStopByte {
			d.droppedBytes++
			d.buf = d.buf[1:]
			continue
		}
		frame := decodeCytonFrame(d.buf[:cytonFrameLen])
		d.buf = d.buf[cytonFrameLen:]

		if d.haveLastCounter {
			expected := uint8(d.lastCounter + 1)
			if frame.SampleCounter != expected {
				gap := uint32(frame.SampleCounter) - uint32(expected)
				d.droppedPackets += uint64(gap & 0xFF)
			}
		}
		d.lastCounter = frame.SampleCounter
		d.haveLastCounter = true
		d.framesDecoded++

		out = append(out, frame)
	}
}

func decodeCytonFrame(b []byte) CytonFrame {
	var f CytonFrame
	f.SampleCounter = b[1]
	for ch := 0; ch < cytonNumEEGChan; ch++ {
		off := 2 + ch*3
		raw := sext24(b[off], b[off+1], b[off+2])
		f.EEGMicrovolts[ch] = float64(raw) * microvoltsPerLSB
	}
	for a := 0; a < cytonNumAuxChan; a++ {
		off := 26 + a*2
		f.Aux[a] = int16(uint16(b[off])<<8 | uint16(b[off+1]))
	}
	return f
}

// sext24 sign-extends a big-endian 24-bit two's-complement value to int32.
func sext24(b0, b1, b2 byte) int32 {
	v := uint32(b0)<<16 | uint32(b1)<<8 | uint32(b2)
	if v&0x800000 != 0 {
		v |= 0xFF000000
	}
	return int32(v)
}

// EncodeCytonFrame packs a sample counter and 8 EEG channel microvolt
// values into a bit-exact 33-byte Cyton frame. It is the Feed/decode
// round-trip inverse used by the synthetic adapter and by codec tests.
func EncodeCytonFrame(counter uint8, microvolts [cytonNumEEGChan]float64, aux [cytonNumAuxChan]int16) ([]byte, error) {
	buf := make([]byte, cytonFrameLen)
	buf[0] = cytonStartByte
	buf[1] = counter
	for ch := 0; ch < cytonNumEEGChan; ch++ {
		raw := int32(microvolts[ch] / microvoltsPerLSB)
		if raw > 1<<23-1 || raw < -(1<<23) {
			return nil, fmt.Errorf("wireproto: channel %d value out of 24-bit range", ch)
		}
		off := 2 + ch*3
		buf[off] = byte(raw >> 16)
		buf[off+1] = byte(raw >> 8)
		buf[off+2] = byte(raw)
	}
	for a := 0; a < cytonNumAuxChan; a++ {
		off := 26 + a*2
		v := uint16(aux[a])
		buf[off] = byte(v >> 8)
		buf[off+1] = byte(v)
	}
	buf[cytonFrameLen-1] = cytonStopByte
	return buf, nil
}
