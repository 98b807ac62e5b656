package preprocessing

import (
	"math"

	"github.com/identity-wael/neurascale-sub000/internal/config"
)

// runSpatialFilter applies either Common Average Reference or a Laplacian
// filter per spec.md §4.C, selected by p.cfg.SpatialFilterType.
func (p *Pipeline) runSpatialFilter(block [][]float64, fs float64) ([][]float64, map[string]any, error) {
	switch p.cfg.SpatialFilterType {
	case "laplacian":
		return p.runLaplacian(block)
	default:
		return commonAverageReference(block), map[string]any{"type": "car"}, nil
	}
}

func commonAverageReference(block [][]float64) [][]float64 {
	nCh := len(block)
	if nCh == 0 {
		return block
	}
	n := len(block[0])
	avg := make([]float64, n)
	for _, row := range block {
		for s, v := range row {
			avg[s] += v / float64(nCh)
		}
	}
	out := make([][]float64, nCh)
	for ch, row := range block {
		out[ch] = make([]float64, n)
		for s, v := range row {
			out[ch][s] = v - avg[s]
		}
	}
	return out
}

// runLaplacian applies a distance-weighted Laplacian when electrode
// positions are configured, else an index-neighbour Hjorth-style Laplacian.
func (p *Pipeline) runLaplacian(block [][]float64) ([][]float64, map[string]any, error) {
	radius := p.cfg.LaplacianRadiusCm
	if radius <= 0 {
		radius = 3.0
	}
	nCh := len(block)
	weights := make([][]float64, nCh)
	weightType := "index"
	if byChannel := electrodesByChannel(p.cfg.Electrodes); len(byChannel) >= 2 {
		for ch := range weights {
			weights[ch] = distanceWeights(ch, nCh, byChannel, radius)
		}
		weightType = "distance"
	} else {
		for ch := range weights {
			weights[ch] = hjorthWeights(ch, nCh)
		}
	}

	out := make([][]float64, nCh)
	n := len(block[0])
	for ch := 0; ch < nCh; ch++ {
		out[ch] = make([]float64, n)
		for s := 0; s < n; s++ {
			var neighbourSum float64
			for other, w := range weights[ch] {
				neighbourSum += w * block[other][s]
			}
			out[ch][s] = block[ch][s] - neighbourSum
		}
	}
	return out, map[string]any{"type": "laplacian", "weights": weightType, "radius_cm": radius}, nil
}

// electrodesByChannel indexes known electrode positions by channel number.
func electrodesByChannel(electrodes []config.ElectrodePosition) map[int]config.ElectrodePosition {
	if len(electrodes) == 0 {
		return nil
	}
	out := make(map[int]config.ElectrodePosition, len(electrodes))
	for _, e := range electrodes {
		out[e.Channel] = e
	}
	return out
}

// distanceWeights computes inverse-distance (1/d) neighbour weights for ch
// over nCh total channels, restricted to other known electrodes within
// radius centimeters and normalized to sum to 1. Channels with no known
// position, or with no neighbour inside radius, get zero weight (the raw
// signal passes through unmodified on the Laplacian's subtraction step).
func distanceWeights(ch, nCh int, byChannel map[int]config.ElectrodePosition, radius float64) []float64 {
	out := make([]float64, nCh)
	self, ok := byChannel[ch]
	if !ok {
		return out
	}
	var total float64
	for other, pos := range byChannel {
		if other == ch || other < 0 || other >= nCh {
			continue
		}
		d := math.Hypot(pos.X-self.X, pos.Y-self.Y)
		if d <= 0 || d > radius {
			continue
		}
		w := 1 / d
		out[other] = w
		total += w
	}
	if total > 0 {
		for i := range out {
			out[i] /= total
		}
	}
	return out
}

// hjorthWeights produces row weights that sum to 1 across non-self
// channels and 0 on the diagonal, matching spec.md's normalization
// requirement for the position-free fallback.
func hjorthWeights(ch, nCh int) []float64 {
	out := make([]float64, nCh)
	if nCh <= 1 {
		return out
	}
	var total float64
	for i := 0; i < nCh; i++ {
		if i == ch {
			continue
		}
		d := math.Abs(float64(i - ch))
		w := 1 / d
		out[i] = w
		total += w
	}
	if total > 0 {
		for i := range out {
			out[i] /= total
		}
	}
	return out
}
