// Package buffer implements the per-session circular stream buffer: a
// fixed-capacity channels×samples ring that an adapter dispatcher appends
// to and a processing driver reads windows from.
package buffer

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrTooLarge is returned by Append when a block exceeds the buffer's
// capacity; the buffer is left unchanged.
var ErrTooLarge = errors.New("buffer: block larger than capacity")

// refPoint anchors a total-write index to a wall-clock timestamp so
// arbitrary sample indices can be extrapolated back to a timestamp after
// wraparound has discarded the original frame.
type refPoint struct {
	totalIndex uint64
	timestamp  float64
}

// Window is an immutable view produced by the buffer.
type Window struct {
	// Data is channels×size, row-major: Data[c][i].
	Data              [][]float32
	StartIndex        uint64
	EndIndex          uint64
	EstimatedTimeSecs float64
}

// Buffer is a fixed-capacity, lock-protected circular region owned
// exclusively by one session.
type Buffer struct {
	mu sync.Mutex

	channels     int
	capacity     int
	samplingRate float64

	data        [][]float32 // channels × capacity
	writePos    int
	sampleCount int
	totalWritten uint64

	nextWindowStart uint64

	refs       []refPoint
	maxRefs    int
	refStride  uint64 // write a new reference every refStride samples
	overflowed uint64
}

// New creates a buffer with the given channel count and capacity in
// samples. samplingRate is used for timestamp extrapolation.
func New(channels, capacitySamples int, samplingRate float64) *Buffer {
	if channels < 1 {
		channels = 1
	}
	if capacitySamples < 1 {
		capacitySamples = 1
	}
	data := make([][]float32, channels)
	for c := range data {
		data[c] = make([]float32, capacitySamples)
	}
	stride := uint64(samplingRate) // roughly one reference point per second
	if stride == 0 {
		stride = 1
	}
	return &Buffer{
		channels:     channels,
		capacity:     capacitySamples,
		samplingRate: samplingRate,
		data:         data,
		maxRefs:      64,
		refStride:    stride,
	}
}

// CapacityFromSeconds computes ⌈seconds·fs⌉, the capacity-in-samples formula
// from spec §4.B.
func CapacityFromSeconds(seconds, fs float64) int {
	return int(math.Ceil(seconds * fs))
}

// Channels returns the configured channel count.
func (b *Buffer) Channels() int { return b.channels }

// Capacity returns the buffer's fixed capacity in samples.
func (b *Buffer) Capacity() int { return b.capacity }

// RemainingCapacity returns capacity - sample_count.
func (b *Buffer) RemainingCapacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity - b.sampleCount
}

// TotalWritten returns the lifetime count of appended samples.
func (b *Buffer) TotalWritten() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalWritten
}

// SampleCount returns the number of samples currently held.
func (b *Buffer) SampleCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sampleCount
}

// OverflowCount returns how many times Append has had to drop the oldest
// samples to make room for an incoming block.
func (b *Buffer) OverflowCount() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overflowed
}

// Append writes a channels×n block into the ring, wrapping as needed. It
// fails if the block's channel count differs from the buffer's or n exceeds
// capacity; the buffer is left unchanged on failure.
func (b *Buffer) Append(block [][]float32, startTimestamp float64) error {
	if len(block) != b.channels {
		return fmt.Errorf("buffer: block has %d channels, want %d", len(block), b.channels)
	}
	n := 0
	if len(block) > 0 {
		n = len(block[0])
	}
	if n > b.capacity {
		return ErrTooLarge
	}
	if n == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sampleCount+n > b.capacity {
		b.overflowed++
	}

	for i := 0; i < n; i++ {
		pos := (b.writePos + i) % b.capacity
		for c := 0; c < b.channels; c++ {
			b.data[c][pos] = block[c][i]
		}
	}
	b.writePos = (b.writePos + n) % b.capacity
	b.sampleCount += n
	if b.sampleCount > b.capacity {
		b.sampleCount = b.capacity
	}

	totalBefore := b.totalWritten
	b.totalWritten += uint64(n)

	if totalBefore%b.refStride == 0 || len(b.refs) == 0 {
		b.refs = append(b.refs, refPoint{totalIndex: totalBefore, timestamp: startTimestamp})
		if len(b.refs) > b.maxRefs {
			b.refs = b.refs[len(b.refs)-b.maxRefs:]
		}
	}

	return nil
}

// Latest returns the last n samples per channel, or ok=false if n exceeds
// the number of samples currently held.
func (b *Buffer) Latest(n int) (data [][]float32, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > b.sampleCount {
		return nil, false
	}
	out := make([][]float32, b.channels)
	start := (b.writePos - n + b.capacity*2) % b.capacity
	for c := 0; c < b.channels; c++ {
		row := make([]float32, n)
		for i := 0; i < n; i++ {
			row[i] = b.data[c][(start+i)%b.capacity]
		}
		out[c] = row
	}
	return out, true
}

// Windows emits all windows of windowSize starting at or after the
// buffer's internal next-window cursor such that start+windowSize <=
// sample_count, advancing the cursor by step per emitted window. Order is
// monotonic by start index; repeated calls never re-emit a start index.
func (b *Buffer) Windows(windowSize, step int) []Window {
	if windowSize <= 0 || step <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Window
	oldestTotal := b.totalWritten - uint64(b.sampleCount)
	if b.totalWritten < uint64(b.sampleCount) {
		oldestTotal = 0
	}
	if b.nextWindowStart < oldestTotal {
		b.nextWindowStart = oldestTotal
	}

	for {
		startOffset := b.nextWindowStart - oldestTotal
		if startOffset+uint64(windowSize) > uint64(b.sampleCount) {
			break
		}
		win := b.extractLocked(int(startOffset), windowSize, b.nextWindowStart)
		out = append(out, win)
		b.nextWindowStart += uint64(step)
	}
	return out
}

func (b *Buffer) extractLocked(offset, size int, startTotal uint64) Window {
	base := (b.writePos - b.sampleCount + offset + b.capacity*2) % b.capacity
	data := make([][]float32, b.channels)
	for c := 0; c < b.channels; c++ {
		row := make([]float32, size)
		for i := 0; i < size; i++ {
			row[i] = b.data[c][(base+i)%b.capacity]
		}
		data[c] = row
	}
	return Window{
		Data:              data,
		StartIndex:        startTotal,
		EndIndex:          startTotal + uint64(size),
		EstimatedTimeSecs: b.estimateTimestampLocked(startTotal),
	}
}

func (b *Buffer) estimateTimestampLocked(index uint64) float64 {
	if len(b.refs) == 0 {
		return 0
	}
	best := b.refs[0]
	for _, r := range b.refs {
		if r.totalIndex <= index && r.totalIndex >= best.totalIndex {
			best = r
		}
	}
	if b.samplingRate <= 0 {
		return best.timestamp
	}
	delta := float64(index) - float64(best.totalIndex)
	return best.timestamp + delta/b.samplingRate
}

// Clear resets the buffer to empty, discarding all samples and resync
// reference points.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.data {
		for i := range b.data[c] {
			b.data[c][i] = 0
		}
	}
	b.writePos = 0
	b.sampleCount = 0
	b.totalWritten = 0
	b.nextWindowStart = 0
	b.refs = nil
	b.overflowed = 0
}
