package preprocessing

import (
	"fmt"

	"github.com/identity-wael/neurascale-sub000/internal/dsp"
)

func (p *Pipeline) runBandpass(block [][]float64, fs float64) ([][]float64, map[string]any, error) {
	lo, hi, order := p.cfg.BandpassLow, p.cfg.BandpassHigh, p.cfg.FilterOrder
	if lo == 0 {
		lo = 0.5
	}
	if hi == 0 {
		hi = 100
	}
	if order == 0 {
		order = 4
	}
	if lo <= 0 {
		return block, nil, fmt.Errorf("preprocessing: bandpass low must be > 0")
	}
	if hi >= fs/2 {
		return block, nil, fmt.Errorf("preprocessing: bandpass high must be < nyquist")
	}

	sections := p.bands.Get(order, lo, hi, fs)
	out := make([][]float64, len(block))
	for ch, x := range block {
		out[ch] = dsp.FiltFilt(sections, x)
	}
	return out, map[string]any{"lo": lo, "hi": hi, "order": order}, nil
}
