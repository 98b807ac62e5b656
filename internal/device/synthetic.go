package device

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/identity-wael/neurascale-sub000/internal/config"
	"github.com/identity-wael/neurascale-sub000/internal/frame"
)

// SyntheticSignal selects the waveform family generated per channel, per
// spec.md §4.A's synthetic adapter description.
type SyntheticSignal string

const (
	SignalSine        SyntheticSignal = "sine"
	SignalAlpha       SyntheticSignal = "alpha"
	SignalBeta        SyntheticSignal = "beta"
	SignalTheta       SyntheticSignal = "theta"
	SignalDelta       SyntheticSignal = "delta"
	SignalERPP300     SyntheticSignal = "erp_p300"
	SignalSSVEP       SyntheticSignal = "ssvep"
	SignalRealisticEEG SyntheticSignal = "realistic_eeg"
)

var bandRanges = map[SyntheticSignal][2]float64{
	SignalAlpha: {8, 13},
	SignalBeta:  {13, 30},
	SignalTheta: {4, 8},
	SignalDelta: {0.5, 4},
}

// SyntheticConfig describes the signal mixture and noise/transient model of
// spec.md §4.A's synthetic adapter.
type SyntheticConfig struct {
	Signal             SyntheticSignal
	BaseFrequencyHz    float64 // used by sine/ssvep
	NoiseRMS           float64 // additive Gaussian noise RMS, microvolts
	BlinkProbability    float64 // per-sample probability of a ×5 blink transient
	MuscleBurstProb     float64 // per-sample probability of a 30-100Hz burst
	ElectrodePopProb    float64 // per-sample probability of a ×10 spike
}

func defaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Signal:          SignalRealisticEEG,
		BaseFrequencyHz: 10,
		NoiseRMS:        2.0,
	}
}

// SyntheticAdapter generates deterministic-shape, stochastically-noised EEG
// data without hardware, built the way a MockSDR generator would be:
// same Init/RX-equivalent shape, a mutex-guarded Config, and a goroutine
// driving periodic sample production instead of on-demand RX.
type SyntheticAdapter struct {
	*baseAdapter

	mu     sync.Mutex
	cfg    SyntheticConfig
	rng    distuv.Normal
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sampleIndex uint32
	tElapsed    float64
	phaseAcc    float64
}

// NewSynthetic builds a synthetic adapter with the given id/channel count
// and sampling rate.
func NewSynthetic(id string, channels int, samplingRate float64) *SyntheticAdapter {
	d := Descriptor{ID: id, Kind: KindSynthetic, Name: "Synthetic Generator", Channels: channels, SamplingRate: samplingRate, State: StateDisconnected}
	return &SyntheticAdapter{
		baseAdapter: newBaseAdapter(d, 1024),
		cfg:         defaultSyntheticConfig(),
		rng:         distuv.Normal{Mu: 0, Sigma: 1},
	}
}

func (s *SyntheticAdapter) Connect(_ context.Context) error {
	s.setState(StateConnected)
	return nil
}

func (s *SyntheticAdapter) Configure(params config.Map) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := params["signal"]; ok {
		sig, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: signal must be a string", ErrBadParameter)
		}
		s.cfg.Signal = SyntheticSignal(sig)
	}
	if v, ok := params["base_frequency_hz"]; ok {
		f, ok := v.(float64)
		if !ok || f <= 0 {
			return fmt.Errorf("%w: base_frequency_hz must be a positive number", ErrBadParameter)
		}
		s.cfg.BaseFrequencyHz = f
	}
	if v, ok := params["noise_rms"]; ok {
		f, ok := v.(float64)
		if !ok || f < 0 {
			return fmt.Errorf("%w: noise_rms must be non-negative", ErrBadParameter)
		}
		s.cfg.NoiseRMS = f
	}
	if v, ok := params["blink_probability"]; ok {
		f, _ := v.(float64)
		s.cfg.BlinkProbability = f
	}
	if v, ok := params["muscle_burst_probability"]; ok {
		f, _ := v.(float64)
		s.cfg.MuscleBurstProb = f
	}
	if v, ok := params["electrode_pop_probability"]; ok {
		f, _ := v.(float64)
		s.cfg.ElectrodePopProb = f
	}
	return nil
}

func (s *SyntheticAdapter) StartStreaming(ctx context.Context) error {
	if err := s.requireState(StateConnected); err != nil {
		if err2 := s.requireState(StateStreaming); err2 == nil {
			return nil // idempotent
		}
		return err
	}
	s.setState(StateStreaming)

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(runCtx)
	return nil
}

func (s *SyntheticAdapter) StopStreaming() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return nil // idempotent
	}
	cancel()
	s.wg.Wait()
	s.setState(StateConnected)
	return nil
}

func (s *SyntheticAdapter) run(ctx context.Context) {
	defer s.wg.Done()
	fs := s.Descriptor().SamplingRate
	if fs <= 0 {
		fs = 250
	}
	tick := time.NewTicker(time.Duration(float64(time.Second) / fs))
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.push(s.nextSample())
		}
	}
}

func (s *SyntheticAdapter) nextSample() frame.Sample {
	s.mu.Lock()
	cfg := s.cfg
	fs := s.Descriptor().SamplingRate
	if fs <= 0 {
		fs = 250
	}
	idx := s.sampleIndex
	s.sampleIndex++
	t := s.tElapsed
	s.tElapsed += 1.0 / fs
	s.mu.Unlock()

	channels := s.Descriptor().Channels
	values := make([]float32, channels)
	for ch := 0; ch < channels; ch++ {
		v := baseWaveform(cfg, t)
		v += cfg.NoiseRMS * s.rng.Rand()
		v += transientContribution(cfg, t, s.rng.Rand())
		values[ch] = float32(v)
	}

	return frame.Sample{
		TimestampSeconds: t,
		Channels:         values,
		Index:            idx,
	}
}

func baseWaveform(cfg SyntheticConfig, t float64) float64 {
	switch cfg.Signal {
	case SignalSine, SignalSSVEP:
		return 20 * math.Sin(2*math.Pi*cfg.BaseFrequencyHz*t)
	case SignalAlpha, SignalBeta, SignalTheta, SignalDelta:
		r := bandRanges[cfg.Signal]
		center := (r[0] + r[1]) / 2
		return 15 * math.Sin(2*math.Pi*center*t)
	case SignalERPP300:
		phase := math.Mod(t, 1.0)
		if phase >= 0.3 && phase <= 0.4 {
			ramp := (phase - 0.3) / 0.1
			return 30 * math.Sin(math.Pi*ramp)
		}
		return 5 * math.Sin(2*math.Pi*10*t)
	case SignalRealisticEEG:
		fundamental := 10.0
		primary := 20 * math.Sin(2*math.Pi*fundamental*t)
		harmonic := 0.3 * 20 * math.Sin(2*math.Pi*2*fundamental*t)
		pinkProxy := 0.2 * 20 * math.Sin(2*math.Pi*1*t+0.5)
		return primary + harmonic + pinkProxy
	default:
		return 20 * math.Sin(2*math.Pi*cfg.BaseFrequencyHz*t)
	}
}

// transientContribution injects rare large-amplitude artifacts using a
// single standard-normal draw as the triggering random variable, matching
// the probability thresholds configured for each transient class. t is the
// sample's elapsed time, used to phase the oscillating transient classes.
func transientContribution(cfg SyntheticConfig, t, roll float64) float64 {
	u := cdfApprox(roll)
	switch {
	case cfg.BlinkProbability > 0 && u < cfg.BlinkProbability:
		return 5 * 100 // blink: ~5x a 100uV baseline deflection
	case cfg.ElectrodePopProb > 0 && u < cfg.ElectrodePopProb:
		return 10 * 100 // electrode pop: ~10x spike
	case cfg.MuscleBurstProb > 0 && u < cfg.MuscleBurstProb:
		return 40 * math.Sin(2*math.Pi*65*t) // 30-100Hz EMG burst, centered at 65Hz
	default:
		return 0
	}
}

// cdfApprox maps a standard-normal sample to a uniform (0,1) value via the
// error function, so transient probabilities can be compared against a
// single shared random draw per sample without a second distribution.
func cdfApprox(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func (s *SyntheticAdapter) ReadImpedance(_ context.Context) (map[string]float64, error) {
	if err := s.requireState(StateConnected); err != nil {
		if err2 := s.requireState(StateStreaming); err2 != nil {
			return nil, fmt.Errorf("%w", ErrNotConnected)
		}
	}
	out := make(map[string]float64, s.Descriptor().Channels)
	for ch := 0; ch < s.Descriptor().Channels; ch++ {
		out[fmt.Sprintf("ch%d", ch)] = 5.0
	}
	return out, nil
}

func (s *SyntheticAdapter) SelfTest(_ context.Context) (SelfTestReport, error) {
	start := time.Now()
	select {
	case sample := <-s.Frames():
		_ = sample
		return SelfTestReport{Connectivity: true, ChannelControl: true, DataFlowOK: true, PacketLossPct: 0, Duration: time.Since(start)}, nil
	case <-time.After(1 * time.Second):
		return SelfTestReport{Connectivity: true, ChannelControl: true, DataFlowOK: false, PacketLossPct: 100, Duration: time.Since(start)}, nil
	}
}

func (s *SyntheticAdapter) Close() error {
	_ = s.StopStreaming()
	s.setState(StateDisconnected)
	return nil
}
