package stream

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/identity-wael/neurascale-sub000/internal/config"
	"github.com/identity-wael/neurascale-sub000/internal/features"
	"github.com/identity-wael/neurascale-sub000/internal/preprocessing"
	"github.com/identity-wael/neurascale-sub000/internal/quality"
)

func newTestProcessor(channels int, fs float64, cfg Config) *Processor {
	pcfg := config.DefaultProcessor()
	pcfg.NumChannels = channels
	pcfg.SamplingRate = fs
	pipeline := preprocessing.New(pcfg)
	extractor := features.NewExtractor()
	assessor := quality.NewAssessor(quality.DefaultConfig())
	return New(channels, fs, cfg, pipeline, extractor, assessor, nil)
}

func sineChunk(channels, n int, fs, freq float64, offset int) [][]float32 {
	block := make([][]float32, channels)
	for ch := 0; ch < channels; ch++ {
		row := make([]float32, n)
		for i := 0; i < n; i++ {
			t := float64(offset+i) / fs
			row[i] = float32(math.Sin(2 * math.Pi * freq * t))
		}
		block[ch] = row
	}
	return block
}

func TestAppendChunkAndDrainEmitsProcessedWindow(t *testing.T) {
	fs := 250.0
	cfg := DefaultConfig()
	cfg.WindowSeconds = 1
	cfg.Overlap = 0.5
	cfg.MinSamplesToProcess = 32

	p := newTestProcessor(4, fs, cfg)
	require.NoError(t, p.AppendChunk(sineChunk(4, int(2*fs), fs, 10, 0), 0))

	p.drainWindows()
	select {
	case pw := <-p.Output():
		require.Len(t, pw.Preprocessed, 4)
		require.NotNil(t, pw.Features)
	default:
		t.Fatal("expected a processed window to be emitted")
	}
}

func TestStopDrainsFinalShortWindow(t *testing.T) {
	fs := 250.0
	cfg := DefaultConfig()
	cfg.WindowSeconds = 10
	cfg.MinSamplesToProcess = 50

	p := newTestProcessor(2, fs, cfg)
	p.Start(context.Background())
	require.NoError(t, p.AppendChunk(sineChunk(2, 100, fs, 10, 0), 0))

	status := p.Stop()
	require.GreaterOrEqual(t, status.SamplesProcessed, uint64(100))
}

func TestStartRunsDriverUntilStopped(t *testing.T) {
	fs := 250.0
	cfg := DefaultConfig()
	cfg.WindowSeconds = 0.5
	cfg.ProcessTick = 5 * time.Millisecond
	cfg.MinSamplesToProcess = 32

	p := newTestProcessor(2, fs, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	require.NoError(t, p.AppendChunk(sineChunk(2, int(3*fs), fs, 10, 0), 0))

	deadline := time.After(500 * time.Millisecond)
	select {
	case <-p.Output():
	case <-deadline:
		t.Fatal("expected at least one processed window within the deadline")
	}
	p.Stop()
}

func TestAppendChunkRejectsWhenDropOnOverflowDisabled(t *testing.T) {
	fs := 250.0
	cfg := DefaultConfig()
	cfg.BufferSeconds = 1
	cfg.DropOnOverflow = false

	p := newTestProcessor(2, fs, cfg)
	big := sineChunk(2, int(2*fs), fs, 10, 0)
	err := p.AppendChunk(big, 0)
	require.ErrorIs(t, err, ErrQueueFull)
}
