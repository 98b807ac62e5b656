package features

import (
	"math"
	"math/cmplx"

	"github.com/identity-wael/neurascale-sub000/internal/dsp"
)

var connectivityBands = []band{
	{"theta", 4, 8}, {"alpha", 8, 13}, {"beta", 13, 30},
}

// connectivityFeatures computes pairwise coherence, phase-locking, and
// phase-amplitude coupling summaries plus graph/network descriptors and
// an information-theoretic pair summary, per spec.md §4.D's connectivity
// group. Gated at the Extract() call site to nCh>=8 and quality_score>0.8.
func connectivityFeatures(block [][]float64, fs float64) (map[string][]float32, map[string]float32) {
	nCh := len(block)
	perCh := map[string][]float32{
		"node_strength": make([]float32, nCh),
		"node_degree_r05": make([]float32, nCh),
	}

	nperseg := int(2 * fs)
	phasesByBand := make(map[string][][]float64, len(connectivityBands))
	for _, b := range connectivityBands {
		phases := make([][]float64, nCh)
		for ch, x := range block {
			phases[ch] = phasesInBand(x, fs, b.lo, b.hi)
		}
		phasesByBand[b.name] = phases
	}

	ampHighBand := phasesInBandAmplitude(block, fs, 30, 45)

	var coherenceSum, plvSum, miSum, teSum float64
	var adjacency = make([][]float64, nCh)
	for i := range adjacency {
		adjacency[i] = make([]float64, nCh)
	}
	pairCount := 0

	global := map[string]float32{}
	for _, b := range connectivityBands {
		global["mean_plv_"+b.name] = 0
		global["mean_imag_coherence_"+b.name] = 0
	}

	plvAccum := map[string]float64{}
	icohAccum := map[string]float64{}

	for i := 0; i < nCh; i++ {
		for j := i + 1; j < nCh; j++ {
			coh, icoh := coherence(block[i], block[j], fs, nperseg)
			coherenceSum += coh
			adjacency[i][j] += coh
			adjacency[j][i] += coh

			for _, b := range connectivityBands {
				plv := phaseLockingValue(phasesByBand[b.name][i], phasesByBand[b.name][j])
				plvSum += plv
				plvAccum[b.name] += plv
				_, imagCoh := coherenceInBand(block[i], block[j], fs, nperseg, b.lo, b.hi)
				icohAccum[b.name] += imagCoh
			}

			mi := mutualInformation(block[i], block[j], 8)
			miSum += mi
			te := transferEntropyBinary(block[i], block[j], 8)
			teSum += te

			pairCount++
		}
	}

	pacMean := 0.0
	if len(ampHighBand) > 0 {
		var pacSum float64
		pacPairs := 0
		for i := 0; i < nCh; i++ {
			lowPhase := phasesByBand["theta"][i]
			for j := 0; j < nCh; j++ {
				if i == j {
					continue
				}
				pacSum += phaseAmplitudeCoupling(lowPhase, ampHighBand[j], 18)
				pacPairs++
			}
		}
		if pacPairs > 0 {
			pacMean = pacSum / float64(pacPairs)
		}
	}

	for i := 0; i < nCh; i++ {
		var strength float64
		var degree int
		for j := 0; j < nCh; j++ {
			if i == j {
				continue
			}
			strength += adjacency[i][j]
			if adjacency[i][j] >= 0.5 {
				degree++
			}
		}
		perCh["node_strength"][i] = float32(strength / float64(nCh-1))
		perCh["node_degree_r05"][i] = float32(degree)
	}

	if pairCount > 0 {
		global["mean_coherence"] = float32(coherenceSum / float64(pairCount))
		global["mean_plv"] = float32(plvSum / float64(pairCount*len(connectivityBands)))
		global["mean_mutual_information"] = float32(miSum / float64(pairCount))
		global["mean_transfer_entropy"] = float32(teSum / float64(pairCount))
		for _, b := range connectivityBands {
			global["mean_plv_"+b.name] = float32(plvAccum[b.name] / float64(pairCount))
			global["mean_imag_coherence_"+b.name] = float32(icohAccum[b.name] / float64(pairCount))
		}
	}
	global["mean_theta_gamma_pac"] = float32(pacMean)
	global["network_density_r05"] = float32(networkDensity(adjacency, 0.5))

	return perCh, global
}

// coherence returns the magnitude-squared coherence and the absolute
// imaginary part of the coherency from single-segment cross/auto spectra
// summed over every frequency bin of the segment (one segment per call
// site's already-windowed block).
func coherence(a, b []float64, fs float64, nperseg int) (coh, imagCoh float64) {
	fa := dsp.RealFFT(padSegment(a, nperseg))
	fb := dsp.RealFFT(padSegment(b, nperseg))
	n := len(fa)
	if n == 0 || n != len(fb) {
		return 0, 0
	}
	var sxy complex128
	var sxx, syy float64
	for i := 0; i < n; i++ {
		cross := fa[i] * cmplx.Conj(fb[i])
		sxy += cross
		sxx += real(fa[i] * cmplx.Conj(fa[i]))
		syy += real(fb[i] * cmplx.Conj(fb[i]))
	}
	if sxx <= 0 || syy <= 0 {
		return 0, 0
	}
	coh = (real(sxy)*real(sxy) + imag(sxy)*imag(sxy)) / (sxx * syy)
	imagCoh = math.Abs(imag(sxy)) / math.Sqrt(sxx*syy)
	return
}

func coherenceInBand(a, b []float64, fs float64, nperseg int, lo, hi float64) (coh, imagCoh float64) {
	fa := phasesInBand(a, fs, lo, hi)
	fb := phasesInBand(b, fs, lo, hi)
	n := len(fa)
	if n == 0 || n != len(fb) {
		return 0, 0
	}
	var sumSin, sumCos float64
	for i := 0; i < n; i++ {
		d := fa[i] - fb[i]
		sumSin += math.Sin(d)
		sumCos += math.Cos(d)
	}
	imagCoh = math.Abs(sumSin / float64(n))
	coh = math.Hypot(sumSin, sumCos) / float64(n)
	return
}

func padSegment(x []float64, n int) []float64 {
	if len(x) == n {
		return x
	}
	if len(x) > n {
		return x[:n]
	}
	out := make([]float64, n)
	copy(out, x)
	return out
}

func phaseLockingValue(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	var sumSin, sumCos float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sumSin += math.Sin(d)
		sumCos += math.Cos(d)
	}
	return math.Hypot(sumSin, sumCos) / float64(n)
}

// phasesInBandAmplitude returns the gamma-band analytic amplitude envelope
// for every channel, used as the "high-frequency amplitude" side of
// phase-amplitude coupling.
func phasesInBandAmplitude(block [][]float64, fs, lo, hi float64) [][]float64 {
	out := make([][]float64, len(block))
	for ch, x := range block {
		if hi >= fs/2 {
			hi = fs/2 - 0.01
		}
		sections := sharedBandCache.Get(4, lo, hi, fs)
		filtered := dsp.FiltFilt(sections, x)
		out[ch] = analyticAmplitude(filtered)
	}
	return out
}

// phaseAmplitudeCoupling computes Tort's modulation index: bins the
// amplitude envelope by low-frequency phase and measures the Shannon
// entropy deficit of the resulting distribution versus uniform.
func phaseAmplitudeCoupling(phase, amplitude []float64, nBins int) float64 {
	n := len(phase)
	if n == 0 || n != len(amplitude) {
		return 0
	}
	binSums := make([]float64, nBins)
	binCounts := make([]int, nBins)
	for i := 0; i < n; i++ {
		norm := (phase[i] + math.Pi) / (2 * math.Pi)
		idx := int(norm * float64(nBins))
		if idx >= nBins {
			idx = nBins - 1
		}
		if idx < 0 {
			idx = 0
		}
		binSums[idx] += amplitude[i]
		binCounts[idx]++
	}
	meanAmp := make([]float64, nBins)
	var total float64
	for i := range binSums {
		if binCounts[i] > 0 {
			meanAmp[i] = binSums[i] / float64(binCounts[i])
		}
		total += meanAmp[i]
	}
	if total <= 0 {
		return 0
	}
	var h float64
	for _, m := range meanAmp {
		if m <= 0 {
			continue
		}
		p := m / total
		h -= p * math.Log(p)
	}
	hMax := math.Log(float64(nBins))
	if hMax == 0 {
		return 0
	}
	return (hMax - h) / hMax
}

func mutualInformation(a, b []float64, nBins int) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	binA := discretize(a, nBins)
	binB := discretize(b, nBins)

	jointCounts := make(map[[2]int]int)
	countA := make([]int, nBins)
	countB := make([]int, nBins)
	for i := 0; i < n; i++ {
		jointCounts[[2]int{binA[i], binB[i]}]++
		countA[binA[i]]++
		countB[binB[i]]++
	}
	var mi float64
	fn := float64(n)
	for key, c := range jointCounts {
		pxy := float64(c) / fn
		px := float64(countA[key[0]]) / fn
		py := float64(countB[key[1]]) / fn
		if pxy > 0 && px > 0 && py > 0 {
			mi += pxy * math.Log(pxy/(px*py))
		}
	}
	if mi < 0 {
		mi = 0
	}
	return mi
}

// transferEntropyBinary is a coarse, binary-state transfer-entropy proxy
// T(a->b): discretizes both signals to 2 levels (below/above the midpoint
// of each signal's min..max range) and
// estimates the conditional-entropy reduction that a's past gives about
// b's present, given b's own past.
func transferEntropyBinary(a, b []float64, lag int) float64 {
	n := len(a)
	if n <= lag || n != len(b) {
		return 0
	}
	sa := discretize(a, 2)
	sb := discretize(b, 2)

	type triple struct{ bPast, aPast, bNow int }
	counts := make(map[triple]int)
	pairCounts := make(map[[2]int]int)
	for t := lag; t < n; t++ {
		tr := triple{sb[t-lag], sa[t-lag], sb[t]}
		counts[tr]++
		pairCounts[[2]int{sb[t-lag], sa[t-lag]}]++
	}
	bPastCounts := make(map[int]int)
	bPastNowCounts := make(map[[2]int]int)
	for t := lag; t < n; t++ {
		bPastCounts[sb[t-lag]]++
		bPastNowCounts[[2]int{sb[t-lag], sb[t]}]++
	}

	var te float64
	total := float64(n - lag)
	for tr, c := range counts {
		pJoint := float64(c) / total
		pCondNum := float64(c) / float64(pairCounts[[2]int{tr.bPast, tr.aPast}])
		pCondDen := float64(bPastNowCounts[[2]int{tr.bPast, tr.bNow}]) / float64(bPastCounts[tr.bPast])
		if pJoint > 0 && pCondNum > 0 && pCondDen > 0 {
			te += pJoint * math.Log(pCondNum/pCondDen)
		}
	}
	if te < 0 {
		te = 0
	}
	return te
}

func discretize(x []float64, nBins int) []int {
	lo, hi := minMax(x)
	span := hi - lo
	out := make([]int, len(x))
	for i, v := range x {
		if span <= 0 {
			out[i] = 0
			continue
		}
		norm := (v - lo) / span
		idx := int(norm * float64(nBins))
		if idx >= nBins {
			idx = nBins - 1
		}
		if idx < 0 {
			idx = 0
		}
		out[i] = idx
	}
	return out
}

func networkDensity(adjacency [][]float64, threshold float64) float64 {
	n := len(adjacency)
	if n < 2 {
		return 0
	}
	edges := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if adjacency[i][j] >= threshold {
				edges++
			}
		}
	}
	possible := n * (n - 1) / 2
	return float64(edges) / float64(possible)
}
