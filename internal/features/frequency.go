package features

import (
	"math"
	"sort"

	"github.com/identity-wael/neurascale-sub000/internal/dsp"
)

type band struct {
	name     string
	lo, hi   float64
}

var frequencyBands = []band{
	{"delta", 0.5, 4}, {"theta", 4, 8}, {"alpha", 8, 13},
	{"beta", 13, 30}, {"gamma_low", 30, 50}, {"gamma_high", 50, 100},
}

// frequencyDomainFeatures computes Welch-PSD-derived band powers and
// spectral shape descriptors per spec.md §4.D.
func frequencyDomainFeatures(block [][]float64, fs, qualityScore float64) map[string][]float32 {
	nCh := len(block)
	out := map[string][]float32{}
	for _, b := range frequencyBands {
		out["abs_power_"+b.name] = make([]float32, nCh)
		out["rel_power_"+b.name] = make([]float32, nCh)
	}
	extras := []string{"total_power", "peak_frequency", "spectral_centroid", "spectral_bandwidth", "spectral_edge_95",
		"theta_alpha_ratio", "theta_beta_ratio", "alpha_beta_ratio", "slow_fast_ratio"}
	for _, n := range extras {
		out[n] = make([]float32, nCh)
	}
	if qualityScore > 0.6 {
		out["spectral_entropy"] = make([]float32, nCh)
	}
	for _, b := range frequencyBands {
		out["phase_circular_mean_"+b.name] = make([]float32, nCh)
		out["phase_entropy_"+b.name] = make([]float32, nCh)
	}

	nperseg := int(2 * fs)
	capFreq := math.Min(fs/2, 100)

	for ch, x := range block {
		freqs, psd := dsp.WelchPSD(x, fs, nperseg)
		capped := cappedSpectrum(freqs, psd, capFreq)

		totalPower := dsp.SimpsonIntegrate(capped.psd, freqSpacing(capped.freqs))
		out["total_power"][ch] = float32(totalPower)

		for _, b := range frequencyBands {
			seg := bandSlice(capped.freqs, capped.psd, b.lo, b.hi)
			abs := dsp.SimpsonIntegrate(seg, freqSpacing(capped.freqs))
			out["abs_power_"+b.name][ch] = float32(abs)
			if totalPower > 0 {
				out["rel_power_"+b.name][ch] = float32(abs / totalPower)
			}
		}

		peakIdx := argMax(capped.psd)
		if peakIdx >= 0 {
			out["peak_frequency"][ch] = float32(capped.freqs[peakIdx])
		}
		out["spectral_centroid"][ch] = float32(spectralCentroid(capped.freqs, capped.psd))
		out["spectral_bandwidth"][ch] = float32(spectralBandwidth(capped.freqs, capped.psd))
		out["spectral_edge_95"][ch] = float32(spectralEdge(capped.freqs, capped.psd, 0.95))

		delta := float64(out["abs_power_delta"][ch])
		theta := float64(out["abs_power_theta"][ch])
		alpha := float64(out["abs_power_alpha"][ch])
		beta := float64(out["abs_power_beta"][ch])
		out["theta_alpha_ratio"][ch] = float32(safeDiv(theta, alpha))
		out["theta_beta_ratio"][ch] = float32(safeDiv(theta, beta))
		out["alpha_beta_ratio"][ch] = float32(safeDiv(alpha, beta))
		out["slow_fast_ratio"][ch] = float32(safeDiv(delta+theta, alpha+beta))

		if qualityScore > 0.6 {
			out["spectral_entropy"][ch] = float32(spectralEntropy(capped.psd))
		}

		for _, b := range frequencyBands {
			bandPhases := phasesInBand(x, fs, b.lo, b.hi)
			out["phase_circular_mean_"+b.name][ch] = float32(circularMean(bandPhases))
			out["phase_entropy_"+b.name][ch] = float32(phaseEntropy(bandPhases, 20))
		}
	}
	return out
}

type spectrum struct {
	freqs []float64
	psd   []float64
}

func cappedSpectrum(freqs, psd []float64, capFreq float64) spectrum {
	idx := sort.SearchFloat64s(freqs, capFreq)
	if idx > len(freqs) {
		idx = len(freqs)
	}
	return spectrum{freqs: freqs[:idx], psd: psd[:idx]}
}

func freqSpacing(freqs []float64) float64 {
	if len(freqs) < 2 {
		return 1
	}
	return freqs[1] - freqs[0]
}

func bandSlice(freqs, psd []float64, lo, hi float64) []float64 {
	var out []float64
	for i, f := range freqs {
		if f >= lo && f <= hi {
			out = append(out, psd[i])
		}
	}
	return out
}

func argMax(x []float64) int {
	if len(x) == 0 {
		return -1
	}
	best := 0
	for i, v := range x {
		if v > x[best] {
			best = i
		}
	}
	return best
}

func spectralCentroid(freqs, psd []float64) float64 {
	var num, den float64
	for i, p := range psd {
		num += freqs[i] * p
		den += p
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func spectralBandwidth(freqs, psd []float64) float64 {
	centroid := spectralCentroid(freqs, psd)
	var num, den float64
	for i, p := range psd {
		d := freqs[i] - centroid
		num += d * d * p
		den += p
	}
	if den == 0 {
		return 0
	}
	return math.Sqrt(num / den)
}

func spectralEdge(freqs, psd []float64, fraction float64) float64 {
	var total float64
	for _, p := range psd {
		total += p
	}
	if total == 0 {
		return 0
	}
	threshold := fraction * total
	var cum float64
	for i, p := range psd {
		cum += p
		if cum >= threshold {
			return freqs[i]
		}
	}
	if len(freqs) > 0 {
		return freqs[len(freqs)-1]
	}
	return 0
}

func spectralEntropy(psd []float64) float64 {
	var total float64
	for _, p := range psd {
		total += p
	}
	if total <= 0 {
		return 0
	}
	var h float64
	for _, p := range psd {
		if p <= 0 {
			continue
		}
		prob := p / total
		h -= prob * math.Log(prob)
	}
	return h
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

var sharedBandCache = dsp.NewBandpassCoeffCache()

// phasesInBand band-limits x to [lo,hi] via a zero-phase bandpass and
// returns the analytic phase of the filtered signal.
func phasesInBand(x []float64, fs, lo, hi float64) []float64 {
	if hi >= fs/2 {
		hi = fs/2 - 0.01
	}
	sections := sharedBandCache.Get(4, lo, hi, fs)
	filtered := dsp.FiltFilt(sections, x)
	return analyticPhase(filtered)
}
