package preprocessing

import (
	"math"
	"sort"

	"github.com/identity-wael/neurascale-sub000/internal/config"
)

// runChannelRepair detects bad channels via the rules of spec.md §4.C and
// interpolates them from their nearest good neighbours: distance-weighted
// by scalp position when a montage is configured (p.cfg.Electrodes), else
// an index-distance proxy.
func (p *Pipeline) runChannelRepair(block [][]float64, fs float64) ([][]float64, map[string]any, error) {
	nCh := len(block)
	if nCh < 2 {
		return block, map[string]any{"bad_channels": []int{}}, nil
	}

	variances := make([]float64, nCh)
	for ch, x := range block {
		variances[ch] = variance(x)
	}
	zScores := zScore(variances)

	bad := make(map[int]bool)
	for ch := range block {
		if math.Abs(zScores[ch]) > 3 {
			bad[ch] = true
		}
		if meanAbsCorrelationWithNeighbours(block, ch) < 0.4 {
			bad[ch] = true
		}
		if rms(block[ch]) > 100 {
			bad[ch] = true
		}
		sd := stddev(block[ch])
		if sd < 0.5 {
			bad[ch] = true
		}
		if clippingFraction(block[ch]) >= 0.10 {
			bad[ch] = true
		}
	}

	byChannel := electrodesByChannel(p.cfg.Electrodes)
	out := cloneBlock(block)
	for ch := range bad {
		var candidate []float64
		if len(byChannel) >= 2 {
			candidate = interpolateFromPositions(block, ch, bad, byChannel)
		} else {
			candidate = interpolateFromNeighbours(block, ch, bad)
		}
		if acceptInterpolation(candidate, block[ch]) {
			out[ch] = candidate
		}
	}

	badList := make([]int, 0, len(bad))
	for ch := range bad {
		badList = append(badList, ch)
	}
	sort.Ints(badList)
	return out, map[string]any{"bad_channels": badList}, nil
}

func zScore(xs []float64) []float64 {
	m := mean(xs)
	sd := stddev(xs)
	out := make([]float64, len(xs))
	for i, v := range xs {
		if sd <= 0 {
			out[i] = 0
			continue
		}
		out[i] = (v - m) / sd
	}
	return out
}

func meanAbsCorrelationWithNeighbours(block [][]float64, ch int) float64 {
	neighbours := nearestIndices(ch, len(block), 3)
	if len(neighbours) == 0 {
		return 1
	}
	var sum float64
	for _, n := range neighbours {
		sum += math.Abs(pearsonCorrelation(block[ch], block[n]))
	}
	return sum / float64(len(neighbours))
}

func pearsonCorrelation(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	ma, mb := mean(a), mean(b)
	var num, da, db float64
	for i := 0; i < n; i++ {
		x := a[i] - ma
		y := b[i] - mb
		num += x * y
		da += x * x
		db += y * y
	}
	if da <= 0 || db <= 0 {
		return 0
	}
	return num / math.Sqrt(da*db)
}

func clippingFraction(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	mn, mx := x[0], x[0]
	for _, v := range x {
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	spanLo := mn + 0.05*(mx-mn)
	spanHi := mx - 0.05*(mx-mn)
	count := 0
	for _, v := range x {
		if v <= spanLo || v >= spanHi {
			count++
		}
	}
	return float64(count) / float64(len(x))
}

// nearestIndices returns up to k channel indices nearest ch by index
// distance, excluding ch itself: an Hjorth-style index-proximity proxy for
// electrode position when a montage is unavailable.
func nearestIndices(ch, nCh, k int) []int {
	type distIdx struct {
		idx  int
		dist int
	}
	var all []distIdx
	for i := 0; i < nCh; i++ {
		if i == ch {
			continue
		}
		d := i - ch
		if d < 0 {
			d = -d
		}
		all = append(all, distIdx{i, d})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].dist < all[j].dist })
	if len(all) > k {
		all = all[:k]
	}
	out := make([]int, len(all))
	for i, a := range all {
		out[i] = a.idx
	}
	return out
}

func interpolateFromNeighbours(block [][]float64, ch int, bad map[int]bool) []float64 {
	nCh := len(block)
	var good []int
	for i := 0; i < nCh; i++ {
		if i != ch && !bad[i] {
			good = append(good, i)
		}
	}
	if len(good) == 0 {
		return block[ch]
	}
	sort.Slice(good, func(i, j int) bool {
		di := good[i] - ch
		if di < 0 {
			di = -di
		}
		dj := good[j] - ch
		if dj < 0 {
			dj = -dj
		}
		return di < dj
	})
	if len(good) > 3 {
		good = good[:3]
	}
	n := len(block[ch])
	out := make([]float64, n)
	for _, g := range good {
		for s := 0; s < n; s++ {
			out[s] += block[g][s] / float64(len(good))
		}
	}
	return out
}

// interpolateFromPositions reconstructs a bad channel as an inverse-distance
// weighted (∝1/d) average of its good neighbours' scalp positions, the
// montage-aware counterpart of interpolateFromNeighbours's index-distance
// proxy. If ch has no known position, or no good neighbour has one, it
// falls back to the index-based estimate.
func interpolateFromPositions(block [][]float64, ch int, bad map[int]bool, byChannel map[int]config.ElectrodePosition) []float64 {
	self, ok := byChannel[ch]
	if !ok {
		return interpolateFromNeighbours(block, ch, bad)
	}
	type weighted struct {
		idx int
		w   float64
	}
	var candidates []weighted
	for other, pos := range byChannel {
		if other == ch || other >= len(block) || bad[other] {
			continue
		}
		d := math.Hypot(pos.X-self.X, pos.Y-self.Y)
		if d <= 0 {
			continue
		}
		candidates = append(candidates, weighted{idx: other, w: 1 / d})
	}
	if len(candidates) == 0 {
		return interpolateFromNeighbours(block, ch, bad)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].w > candidates[j].w })
	if len(candidates) > 4 {
		candidates = candidates[:4]
	}

	var total float64
	for _, c := range candidates {
		total += c.w
	}
	n := len(block[ch])
	out := make([]float64, n)
	for _, c := range candidates {
		weight := c.w / total
		for s := 0; s < n; s++ {
			out[s] += weight * block[c.idx][s]
		}
	}
	return out
}

func acceptInterpolation(candidate, original []float64) bool {
	for _, v := range candidate {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	sd := stddev(candidate)
	if sd < 0.5 || sd > 2*100 {
		return false
	}
	if identicalSlices(candidate, original) {
		return false
	}
	return true
}

func identicalSlices(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
