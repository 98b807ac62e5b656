package preprocessing

import "github.com/identity-wael/neurascale-sub000/internal/dsp"

func (p *Pipeline) runNotch(block [][]float64, fs float64) ([][]float64, map[string]any, error) {
	freqs := p.cfg.NotchFrequencies
	if len(freqs) == 0 {
		freqs = []float64{50, 100}
	}
	q := 30.0

	sections := make([]dsp.Biquad, 0, len(freqs))
	for _, f := range freqs {
		if f <= 0 || f >= fs/2 {
			continue
		}
		sections = append(sections, p.notches.Get(f, fs, q))
	}
	if len(sections) == 0 {
		return block, map[string]any{"applied_frequencies": []float64{}}, nil
	}

	out := make([][]float64, len(block))
	for ch, x := range block {
		out[ch] = dsp.FiltFilt(sections, x)
	}
	return out, map[string]any{"applied_frequencies": freqs, "q": q}, nil
}
