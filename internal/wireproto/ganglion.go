package wireproto

const (
	ganglionFrameLen    = 20
	ganglionNumChannels = 4
	ganglionImpedanceID = 206

	// ganglionScale implements spec.md's literal Ganglion scaling constant
	// 1.2 · (2²³−1) / 10⁶, applied to each sign-extended 19-bit sample.
	ganglionScale = 1.2 * (1<<23 - 1) / 1e6
)

// GanglionPacketKind classifies a Ganglion packet by its type byte.
type GanglionPacketKind int

const (
	GanglionKindSamples GanglionPacketKind = iota
	GanglionKindImpedance
	GanglionKindStatus
)

// GanglionPacket is one decoded Ganglion packet.
type GanglionPacket struct {
	Kind          GanglionPacketKind
	TypeByte      byte
	Microvolts    [ganglionNumChannels]float64 // valid when Kind == GanglionKindSamples
	ImpedanceRaw  []byte                       // valid when Kind == GanglionKindImpedance
	StatusPayload []byte                       // valid when Kind == GanglionKindStatus
}

// GanglionDecoder incrementally decodes a Ganglion byte stream.
type GanglionDecoder struct {
	buf            []byte
	droppedBytes   uint64
	packetsDecoded uint64
}

// NewGanglionDecoder creates an empty decoder.
func NewGanglionDecoder() *GanglionDecoder { return &GanglionDecoder{} }

// DroppedBytes returns bytes discarded while resyncing.
func (d *GanglionDecoder) DroppedBytes() uint64 { return d.droppedBytes }

// PacketsDecoded returns the count of successfully decoded packets.
func (d *GanglionDecoder) PacketsDecoded() uint64 { return d.packetsDecoded }

// Feed appends newly received bytes and returns every complete packet it
// can extract. Sample packets (type byte 0..200) are fixed 20-byte frames;
// other packet kinds are treated as variable-length and consume the
// remaining buffered bytes as their payload, since Ganglion's text/status
// channel has no fixed framing.
func (d *GanglionDecoder) Feed(data []byte) []GanglionPacket {
	d.buf = append(d.buf, data...)

	var out []GanglionPacket
	for len(d.buf) > 0 {
		typeByte := d.buf[0]
		switch {
		case typeByte <= 200:
			if len(d.buf) < ganglionFrameLen {
				return out
			}
			pkt := decodeGanglionSamples(d.buf[:ganglionFrameLen], typeByte)
			d.buf = d.buf[ganglionFrameLen:]
			d.packetsDecoded++
			out = append(out, pkt)
		case typeByte == ganglionImpedanceID:
			payload := append([]byte(nil), d.buf[1:]...)
			d.buf = d.buf[:0]
			d.packetsDecoded++
			out = append(out, GanglionPacket{Kind: GanglionKindImpedance, TypeByte: typeByte, ImpedanceRaw: payload})
		default:
			payload := append([]byte(nil), d.buf[1:]...)
			d.buf = d.buf[:0]
			d.packetsDecoded++
			out = append(out, GanglionPacket{Kind: GanglionKindStatus, TypeByte: typeByte, StatusPayload: payload})
		}
	}
	return out
}

func decodeGanglionSamples(b []byte, typeByte byte) GanglionPacket {
	var pkt GanglionPacket
	pkt.Kind = GanglionKindSamples
	pkt.TypeByte = typeByte
	// 4 channels × 19 bits packed big-endian starting at byte 1, i.e. 76
	// bits total across bytes 1..10 (10 bytes hold 80 bits, 4 unused).
	bitReader := newBitReader(b[1:])
	for ch := 0; ch < ganglionNumChannels; ch++ {
		raw := bitReader.read(19)
		signed := sextN(raw, 19)
		pkt.Microvolts[ch] = float64(signed) * ganglionScale
	}
	return pkt
}

// sextN sign-extends an n-bit two's-complement value held in the low n
// bits of v to int32.
func sextN(v uint32, n uint) int32 {
	shift := 32 - n
	return int32(v<<shift) >> shift
}

type bitReader struct {
	data []byte
	pos  uint // bit offset from the start of data
}

func newBitReader(data []byte) *bitReader { return &bitReader{data: data} }

func (r *bitReader) read(n uint) uint32 {
	var out uint32
	for i := uint(0); i < n; i++ {
		byteIdx := (r.pos) / 8
		bitIdx := 7 - (r.pos % 8)
		var bit uint32
		if int(byteIdx) < len(r.data) {
			bit = uint32((r.data[byteIdx] >> bitIdx) & 1)
		}
		out = out<<1 | bit
		r.pos++
	}
	return out
}
