// Package frame defines the Sample Frame: one acquisition instant across all
// channels of a device, as produced by a device adapter and consumed by a
// stream buffer.
package frame

// Sample is one acquisition frame from a device. It is produced by an
// adapter and consumed by a buffer; it is not retained after insertion.
type Sample struct {
	// TimestampSeconds is a monotonic acquisition timestamp in seconds.
	TimestampSeconds float64
	// Channels holds one value per channel, in device channel order.
	Channels []float32
	// Index is the device's own sample counter; it wraps per device
	// (e.g. modulo 256 for Cyton).
	Index uint32
	// Aux holds optional auxiliary channel values (accelerometer, etc).
	Aux []float32
	// Marker is an optional event marker; zero means "no marker".
	Marker int32
}

// Clone returns a deep copy so the frame can outlive the adapter's reusable
// decode buffers.
func (s Sample) Clone() Sample {
	out := Sample{TimestampSeconds: s.TimestampSeconds, Index: s.Index, Marker: s.Marker}
	if s.Channels != nil {
		out.Channels = append([]float32(nil), s.Channels...)
	}
	if s.Aux != nil {
		out.Aux = append([]float32(nil), s.Aux...)
	}
	return out
}

// Block is a contiguous run of frames sharing a channel count, as handed to
// a buffer's append operation.
type Block struct {
	// Channels is channels×n, row-major: Channels[c][i] is channel c, sample i.
	Channels [][]float32
	// StartIndex is the device sample-counter value of the first column.
	StartIndex uint32
	// TimestampSeconds is the acquisition timestamp of the first column.
	TimestampSeconds float64
}

// NumSamples returns the number of sample columns in the block.
func (b Block) NumSamples() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// NumChannels returns the channel count of the block.
func (b Block) NumChannels() int { return len(b.Channels) }
