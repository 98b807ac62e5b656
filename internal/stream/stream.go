// Package stream implements the Stream Processor of spec.md §4.F: the
// real-time per-session driving loop that pulls windows from a buffer,
// runs Preprocessing → Quality → Features, and emits Processed Windows.
// It follows a single
// ticker-driven loop with a warmup phase, cancellation at stage
// boundaries, and cumulative counters surfaced to a reporter — retargeted
// from SDR monopulse tracking to the window-processing pipeline.
package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/identity-wael/neurascale-sub000/internal/buffer"
	"github.com/identity-wael/neurascale-sub000/internal/features"
	"github.com/identity-wael/neurascale-sub000/internal/logging"
	"github.com/identity-wael/neurascale-sub000/internal/preprocessing"
	"github.com/identity-wael/neurascale-sub000/internal/quality"
)

// ErrQueueFull is returned by AppendChunk when drop_on_overflow is false
// and the incoming block would exceed the buffer's capacity.
var ErrQueueFull = errors.New("stream: buffer full and drop_on_overflow is false")

// Config carries the Stream Processor's per-session tunables, defaulted
// per spec.md §4.F.
type Config struct {
	BufferSeconds       float64
	WindowSeconds       float64
	Overlap             float64
	ProcessTick         time.Duration
	MinSamplesToProcess int
	QueueBound          int
	DropOnOverflow      bool
}

// DefaultConfig matches spec.md §4.F's defaults.
func DefaultConfig() Config {
	return Config{
		BufferSeconds:       10,
		WindowSeconds:       2,
		Overlap:             0.5,
		ProcessTick:         100 * time.Millisecond,
		MinSamplesToProcess: 256,
		QueueBound:          5,
		DropOnOverflow:      true,
	}
}

// ProcessedWindow is the unit emitted to a session's consumer per
// spec.md §6's device streaming surface.
type ProcessedWindow struct {
	Preprocessed     [][]float32
	StagesFailed     []string
	Features         *features.Bundle
	Quality          quality.Metrics
	WindowStartTime  float64
	WindowEndTime    float64
	EmittedAt        time.Time
	LatencyMs        float64
	ProcessingTimeMs float64
	SamplesProcessed uint64
	SamplesDropped   uint64
}

// StreamMetrics is the status snapshot returned by get_stream_status.
type StreamMetrics struct {
	SamplesProcessed uint64
	SamplesDropped   uint64
	WindowsEmitted   uint64
	ChunksDropped    uint64
	LastLatencyMs    float64
}

// Processor drives the buffer->pipeline->quality->features loop for one
// session.
type Processor struct {
	cfg      Config
	fs       float64
	channels int

	buf        *buffer.Buffer
	pipeline   *preprocessing.Pipeline
	extractor  *features.Extractor
	assessor   *quality.Assessor
	logger     logging.Logger

	windowSize int
	step       int

	out chan ProcessedWindow

	samplesProcessed atomic.Uint64
	samplesDropped   atomic.Uint64
	windowsEmitted   atomic.Uint64
	chunksDropped    atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	running       bool
	lastLatencyMs float64
}

// New builds a Processor. channels and fs are fixed for the session's
// lifetime; cfg is validated and defaulted field-by-field.
func New(channels int, fs float64, cfg Config, pipeline *preprocessing.Pipeline, extractor *features.Extractor, assessor *quality.Assessor, logger logging.Logger) *Processor {
	cfg = normalizeConfig(cfg)
	if logger == nil {
		logger = logging.Default()
	}
	windowSize := buffer.CapacityFromSeconds(cfg.WindowSeconds, fs)
	step := int(float64(windowSize) * (1 - cfg.Overlap))
	if step < 1 {
		step = 1
	}
	capacity := buffer.CapacityFromSeconds(cfg.BufferSeconds, fs)
	return &Processor{
		cfg:        cfg,
		fs:         fs,
		channels:   channels,
		buf:        buffer.New(channels, capacity, fs),
		pipeline:   pipeline,
		extractor:  extractor,
		assessor:   assessor,
		logger:     logger,
		windowSize: windowSize,
		step:       step,
		out:        make(chan ProcessedWindow, cfg.QueueBound),
	}
}

func normalizeConfig(cfg Config) Config {
	d := DefaultConfig()
	if cfg.BufferSeconds <= 0 {
		cfg.BufferSeconds = d.BufferSeconds
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = d.WindowSeconds
	}
	if cfg.Overlap < 0 || cfg.Overlap >= 1 {
		cfg.Overlap = d.Overlap
	}
	if cfg.ProcessTick <= 0 {
		cfg.ProcessTick = d.ProcessTick
	}
	if cfg.MinSamplesToProcess <= 0 {
		cfg.MinSamplesToProcess = d.MinSamplesToProcess
	}
	if cfg.QueueBound <= 0 {
		cfg.QueueBound = d.QueueBound
	}
	return cfg
}

// Output returns the channel Processed Windows are emitted on.
func (p *Processor) Output() <-chan ProcessedWindow { return p.out }

// Start launches the processing driver goroutine, ticking at
// cfg.ProcessTick until ctx is canceled or Stop is called.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(runCtx)
}

func (p *Processor) run(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.ProcessTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.drainWindowsSafely() {
				p.mu.Lock()
				p.running = false
				p.mu.Unlock()
				return
			}
		}
	}
}

// drainWindowsSafely runs drainWindows with panic recovery, so a stage
// bug in one window turns into a logged, fatal stop of this session's
// driver rather than crashing the whole process.
func (p *Processor) drainWindowsSafely() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("stream processor stage panicked, stopping session driver", logging.Field{Key: "recovered", Value: r})
			ok = false
		}
	}()
	p.drainWindows()
	return true
}

func (p *Processor) drainWindows() {
	windows := p.buf.Windows(p.windowSize, p.step)
	for _, w := range windows {
		p.processWindow(w)
	}
}

func (p *Processor) processWindow(w buffer.Window) {
	start := time.Now()
	block := toFloat64(w.Data)

	preprocessed, stageResults := p.pipeline.Run(block, p.fs)
	metrics := p.assessor.Assess(preprocessed, p.fs)
	bundle := p.extractor.Extract(preprocessed, p.fs, metrics.CompositeScore)

	processingTime := time.Since(start)
	emittedAt := time.Now()
	latency := emittedAt.Sub(start).Seconds() * 1000

	var failedStages []string
	for _, sr := range stageResults {
		if sr.Failed {
			failedStages = append(failedStages, string(sr.Stage))
		}
	}

	actualSize := 0
	if len(block) > 0 {
		actualSize = len(block[0])
	}
	windowEndTime := w.EstimatedTimeSecs + float64(actualSize)/p.fs
	processed := p.samplesProcessed.Add(uint64(actualSize))
	dropped := p.samplesDropped.Load()

	pw := ProcessedWindow{
		Preprocessed:     toFloat32(preprocessed),
		StagesFailed:     failedStages,
		Features:         bundle,
		Quality:          metrics,
		WindowStartTime:  w.EstimatedTimeSecs,
		WindowEndTime:    windowEndTime,
		EmittedAt:        emittedAt,
		LatencyMs:        latency,
		ProcessingTimeMs: float64(processingTime.Microseconds()) / 1000,
		SamplesProcessed: processed,
		SamplesDropped:   dropped,
	}

	p.mu.Lock()
	p.lastLatencyMs = latency
	p.mu.Unlock()

	select {
	case p.out <- pw:
		p.windowsEmitted.Add(1)
	default:
		// consumer not keeping up: drop the oldest queued window to make
		// room, per the buffer's own drop-oldest overflow policy.
		select {
		case <-p.out:
			p.chunksDropped.Add(1)
		default:
		}
		select {
		case p.out <- pw:
			p.windowsEmitted.Add(1)
		default:
		}
	}
}

// AppendChunk extends the buffer with one block of channels×samples data
// at the given start timestamp, per spec.md §4.F step 2.
func (p *Processor) AppendChunk(block [][]float32, startTimestamp float64) error {
	n := 0
	if len(block) > 0 {
		n = len(block[0])
	}
	if !p.cfg.DropOnOverflow && p.buf.SampleCount()+n > p.buf.Capacity() {
		p.chunksDropped.Add(1)
		return ErrQueueFull
	}
	before := p.buf.OverflowCount()
	if err := p.buf.Append(block, startTimestamp); err != nil {
		return err
	}
	if p.buf.OverflowCount() > before {
		p.chunksDropped.Add(1)
		dropped := n
		if dropped < 0 {
			dropped = 0
		}
		p.samplesDropped.Add(uint64(dropped))
	}
	return nil
}

// Stop halts a running driver, drains any remaining data (processing a
// final short window if at least MinSamplesToProcess remain), and returns a
// final status summary. If the driver is not running (never started,
// already stopped, or stopped after a stage panic), Stop returns the
// current status without draining.
func (p *Processor) Stop() StreamMetrics {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return p.Status()
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()

	p.drainFinal()
	return p.Status()
}

func (p *Processor) drainFinal() {
	p.drainWindows()
	remaining := p.buf.SampleCount()
	if remaining < p.cfg.MinSamplesToProcess || remaining == 0 {
		return
	}
	data, ok := p.buf.Latest(remaining)
	if !ok {
		return
	}
	p.processWindow(buffer.Window{
		Data:              data,
		EstimatedTimeSecs: 0,
	})
}

// Status returns a point-in-time snapshot of cumulative counters.
func (p *Processor) Status() StreamMetrics {
	p.mu.Lock()
	latency := p.lastLatencyMs
	p.mu.Unlock()
	return StreamMetrics{
		SamplesProcessed: p.samplesProcessed.Load(),
		SamplesDropped:   p.samplesDropped.Load(),
		WindowsEmitted:   p.windowsEmitted.Load(),
		ChunksDropped:    p.chunksDropped.Load(),
		LastLatencyMs:    latency,
	}
}

func toFloat64(in [][]float32) [][]float64 {
	out := make([][]float64, len(in))
	for i, row := range in {
		conv := make([]float64, len(row))
		for j, v := range row {
			conv[j] = float64(v)
		}
		out[i] = conv
	}
	return out
}

func toFloat32(in [][]float64) [][]float32 {
	out := make([][]float32, len(in))
	for i, row := range in {
		conv := make([]float32, len(row))
		for j, v := range row {
			conv[j] = float32(v)
		}
		out[i] = conv
	}
	return out
}
