// Package preprocessing implements the Preprocessing Pipeline of spec.md
// §4.C: a configurable ordered sequence of pure channels×samples stages.
// Stage bodies are built on internal/dsp biquad/FFT
// helpers (notch/bandpass) extended with gonum/mat for the matrix
// operations of artifact removal (ICA whitening, regression) an RF-only
// DSP package would have no need for.
package preprocessing

import (
	"math"

	"github.com/identity-wael/neurascale-sub000/internal/config"
	"github.com/identity-wael/neurascale-sub000/internal/dsp"
)

// StageName identifies a pipeline stage by the keys spec.md §4.C names.
type StageName string

const (
	StageNotch           StageName = "notch"
	StageBandpass        StageName = "bandpass"
	StageArtifactRemoval StageName = "artifact_removal"
	StageChannelRepair   StageName = "channel_repair"
	StageSpatialFilter   StageName = "spatial_filter"
)

// DefaultOrder is the pipeline's default stage sequence per spec.md §4.C.
var DefaultOrder = []StageName{StageNotch, StageBandpass, StageArtifactRemoval, StageChannelRepair, StageSpatialFilter}

// StageResult records one stage's outcome, used both as the "info record"
// spec.md requires per stage and as the stage_failed event payload.
type StageResult struct {
	Stage   StageName
	Failed  bool
	Error   string
	Info    map[string]any
}

// Pipeline runs the configured ordered stage sequence over a window,
// caching filter coefficients across calls the way spec.md §5 requires
// ("Pipeline state ... mutated only in configuration-update paths").
type Pipeline struct {
	cfg     config.Processor
	notches *dsp.NotchCoeffCache
	bands   *dsp.BandpassCoeffCache
}

// New builds a Pipeline from a validated processor configuration.
func New(cfg config.Processor) *Pipeline {
	return &Pipeline{cfg: cfg, notches: dsp.NewNotchCoeffCache(), bands: dsp.NewBandpassCoeffCache()}
}

// UpdateConfig replaces the pipeline's configuration; existing coefficient
// caches are kept since they're keyed by the parameters themselves.
func (p *Pipeline) UpdateConfig(cfg config.Processor) { p.cfg = cfg }

// Run executes every configured stage over block (channels×samples, not
// mutated) at the given sampling rate, returning the transformed data and
// one StageResult per configured stage. A stage that fails internally
// leaves the data unchanged for that stage and the pipeline continues,
// per spec.md §4.C.
func (p *Pipeline) Run(block [][]float64, fs float64) ([][]float64, []StageResult) {
	current := cloneBlock(block)
	results := make([]StageResult, 0, len(p.cfg.PreprocessingSteps))

	order := p.cfg.PreprocessingSteps
	if len(order) == 0 {
		order = stageNames(DefaultOrder)
	}

	for _, name := range order {
		stage := StageName(name)
		next, info, err := p.runStage(stage, current, fs)
		if err != nil {
			results = append(results, StageResult{Stage: stage, Failed: true, Error: err.Error()})
			continue
		}
		current = next
		results = append(results, StageResult{Stage: stage, Info: info})
	}
	return current, results
}

func (p *Pipeline) runStage(stage StageName, block [][]float64, fs float64) ([][]float64, map[string]any, error) {
	switch stage {
	case StageNotch:
		return p.runNotch(block, fs)
	case StageBandpass:
		return p.runBandpass(block, fs)
	case StageArtifactRemoval:
		return p.runArtifactRemoval(block, fs)
	case StageChannelRepair:
		return p.runChannelRepair(block, fs)
	case StageSpatialFilter:
		return p.runSpatialFilter(block, fs)
	default:
		return block, nil, nil
	}
}

func stageNames(stages []StageName) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = string(s)
	}
	return out
}

func cloneBlock(block [][]float64) [][]float64 {
	out := make([][]float64, len(block))
	for i, row := range block {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func variance(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	var sumSq float64
	for _, v := range x {
		d := v - mean
		sumSq += d * d
	}
	return sumSq / float64(len(x)-1)
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

func stddev(x []float64) float64 { return math.Sqrt(variance(x)) }

func rms(x []float64) float64 {
	var sumSq float64
	for _, v := range x {
		sumSq += v * v
	}
	if len(x) == 0 {
		return 0
	}
	return math.Sqrt(sumSq / float64(len(x)))
}
