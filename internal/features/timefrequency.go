package features

import (
	"math"

	"github.com/identity-wael/neurascale-sub000/internal/dsp"
)

// timeFrequencyFeatures computes the DWT/wavelet-packet energy summary,
// Morlet CWT band features, broadband Hilbert features, and a simplified
// Hilbert-Huang decomposition per spec.md §4.D. The Daubechies-4 and
// wavelet-packet transforms are implemented with a Haar-cascade
// approximation (documented in DESIGN.md) rather than a true db4 filter
// bank, since no wavelet library ships in the reference corpus.
func timeFrequencyFeatures(block [][]float64, fs, qualityScore float64, cwtFreqs []float64) map[string][]float32 {
	nCh := len(block)
	out := map[string][]float32{}

	maxLevels := 5
	// haarDWT returns up to maxLevels detail bands plus the final
	// approximation, so keys run to level maxLevels+1.
	for lvl := 1; lvl <= maxLevels+1; lvl++ {
		out[levelKey("dwt_energy", lvl)] = make([]float32, nCh)
		out[levelKey("dwt_std", lvl)] = make([]float32, nCh)
		out[levelKey("dwt_entropy", lvl)] = make([]float32, nCh)
		out[levelKey("dwt_rel_energy", lvl)] = make([]float32, nCh)
	}
	out["wavelet_packet_entropy"] = make([]float32, nCh)

	if qualityScore > 0.7 {
		for _, f := range cwtFreqs {
			out[freqKey("cwt_power", f)] = make([]float32, nCh)
			out[freqKey("cwt_amplitude_std", f)] = make([]float32, nCh)
			out[freqKey("cwt_phase_consistency", f)] = make([]float32, nCh)
		}
	}

	hilbertNames := []string{"hilbert_amp_mean", "hilbert_amp_std", "hilbert_amp_skew",
		"hilbert_freq_mean", "hilbert_freq_std", "hilbert_amp_freq_corr"}
	for _, n := range hilbertNames {
		out[n] = make([]float32, nCh)
	}

	imfNames := []string{"imf_low_energy_ratio", "imf_mid_energy_ratio", "imf_high_energy_ratio", "marginal_spectrum_peak_freq"}
	for _, n := range imfNames {
		out[n] = make([]float32, nCh)
	}

	for ch, x := range block {
		levels := haarDWT(x, maxLevels)
		var totalEnergy float64
		for _, lvl := range levels {
			totalEnergy += energy(lvl)
		}
		for i, lvl := range levels {
			lvlNum := i + 1
			e := energy(lvl)
			out[levelKey("dwt_energy", lvlNum)][ch] = float32(e)
			out[levelKey("dwt_std", lvlNum)][ch] = float32(stddevOf(lvl))
			out[levelKey("dwt_entropy", lvlNum)][ch] = float32(histogramEntropy(lvl, 20))
			if totalEnergy > 0 {
				out[levelKey("dwt_rel_energy", lvlNum)][ch] = float32(e / totalEnergy)
			}
		}
		out["wavelet_packet_entropy"][ch] = float32(waveletPacketEntropy(x, 4))

		if qualityScore > 0.7 {
			for _, f := range cwtFreqs {
				power, ampStd, phaseConsistency := morletCWT(x, fs, f)
				out[freqKey("cwt_power", f)][ch] = float32(power)
				out[freqKey("cwt_amplitude_std", f)][ch] = float32(ampStd)
				out[freqKey("cwt_phase_consistency", f)][ch] = float32(phaseConsistency)
			}
		}

		amp := analyticAmplitude(x)
		phase := analyticPhase(x)
		freqInst := instantaneousFrequency(phase, fs)
		ampM, ampSD := mean(amp), stddevOf(amp)
		out["hilbert_amp_mean"][ch] = float32(ampM)
		out["hilbert_amp_std"][ch] = float32(ampSD)
		out["hilbert_amp_skew"][ch] = float32(skewness(amp, ampM, ampSD))
		out["hilbert_freq_mean"][ch] = float32(mean(freqInst))
		out["hilbert_freq_std"][ch] = float32(stddevOf(freqInst))
		out["hilbert_amp_freq_corr"][ch] = float32(pearsonCorr(amp[:len(freqInst)], freqInst))

		low, mid, high := bandedIMFs(x, fs)
		eLow, eMid, eHigh := energy(low), energy(mid), energy(high)
		total := eLow + eMid + eHigh
		if total > 0 {
			out["imf_low_energy_ratio"][ch] = float32(eLow / total)
			out["imf_mid_energy_ratio"][ch] = float32(eMid / total)
			out["imf_high_energy_ratio"][ch] = float32(eHigh / total)
		}
		out["marginal_spectrum_peak_freq"][ch] = float32(marginalSpectrumPeak(low, mid, high, fs))
	}
	return out
}

func levelKey(prefix string, level int) string {
	return prefix + "_l" + itoa(level)
}

func freqKey(prefix string, f float64) string {
	return prefix + "_" + itoa(int(f)) + "hz"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func energy(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum
}

func stddevOf(x []float64) float64 { return math.Sqrt(variance(x)) }

// haarDWT decomposes x into up to maxLevels detail-coefficient bands using
// a Haar averaging/differencing cascade, the simplest orthogonal wavelet
// and a standard stand-in when a true db4 filter bank is unavailable. The
// final approximation band is appended after the detail bands.
func haarDWT(x []float64, maxLevels int) [][]float64 {
	var levels [][]float64
	current := append([]float64(nil), x...)
	for l := 0; l < maxLevels; l++ {
		if len(current) < 2 {
			break
		}
		n := len(current) / 2
		approx := make([]float64, n)
		detail := make([]float64, n)
		for i := 0; i < n; i++ {
			a, b := current[2*i], current[2*i+1]
			approx[i] = (a + b) / math.Sqrt2
			detail[i] = (a - b) / math.Sqrt2
		}
		levels = append(levels, detail)
		current = approx
	}
	levels = append(levels, current)
	return levels
}

// waveletPacketEntropy returns the Shannon entropy of the energy
// distribution over haarDWT's bands at the requested depth (the detail
// bands plus the final approximation). It does not build a full
// wavelet-packet tree and does not search for a best basis.
func waveletPacketEntropy(x []float64, depth int) float64 {
	levels := haarDWT(x, depth)
	energies := make([]float64, len(levels))
	var total float64
	for i, lvl := range levels {
		energies[i] = energy(lvl)
		total += energies[i]
	}
	if total <= 0 {
		return 0
	}
	var h float64
	for _, e := range energies {
		if e <= 0 {
			continue
		}
		p := e / total
		h -= p * math.Log(p)
	}
	return h
}

// morletCWT computes a Morlet-wavelet (omega0=6) convolution power,
// amplitude std, and phase consistency at a single center frequency.
func morletCWT(x []float64, fs, freq float64) (power, ampStd, phaseConsistency float64) {
	const omega0 = 6.0
	scale := omega0 / (2 * math.Pi * freq) * fs
	halfWidth := int(4 * scale)
	if halfWidth < 1 {
		halfWidth = 1
	}

	kernelRe := make([]float64, 2*halfWidth+1)
	kernelIm := make([]float64, 2*halfWidth+1)
	norm := 1 / (math.Sqrt(scale) * math.Pow(math.Pi, 0.25))
	for i := -halfWidth; i <= halfWidth; i++ {
		t := float64(i) / scale
		env := norm * math.Exp(-t*t/2)
		kernelRe[i+halfWidth] = env * math.Cos(omega0*t)
		kernelIm[i+halfWidth] = env * math.Sin(omega0*t)
	}

	n := len(x)
	amps := make([]float64, 0, n)
	phases := make([]float64, 0, n)
	for center := halfWidth; center < n-halfWidth; center++ {
		var re, im float64
		for k := -halfWidth; k <= halfWidth; k++ {
			v := x[center+k]
			re += v * kernelRe[k+halfWidth]
			im += v * kernelIm[k+halfWidth]
		}
		amps = append(amps, math.Hypot(re, im))
		phases = append(phases, math.Atan2(im, re))
	}
	if len(amps) == 0 {
		return 0, 0, 0
	}
	power = mean(squareAll(amps))
	ampStd = stddevOf(amps)

	var sumSin, sumCos float64
	for _, p := range phases {
		sumSin += math.Sin(p)
		sumCos += math.Cos(p)
	}
	n2 := float64(len(phases))
	phaseConsistency = math.Hypot(sumSin/n2, sumCos/n2)
	return
}

func squareAll(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v * v
	}
	return out
}

func pearsonCorr(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	ma, mb := mean(a), mean(b)
	var num, da, db float64
	for i := 0; i < n; i++ {
		x, y := a[i]-ma, b[i]-mb
		num += x * y
		da += x * x
		db += y * y
	}
	if da <= 0 || db <= 0 {
		return 0
	}
	return num / math.Sqrt(da*db)
}

// bandedIMFs produces three simplified intrinsic-mode-function proxies by
// banded filtering, per spec.md §4.D's "simplified" Hilbert-Huang gate.
func bandedIMFs(x []float64, fs float64) (low, mid, high []float64) {
	low = onePoleLowpass(x, fs, 5)
	midHi := onePoleLowpass(x, fs, 20)
	mid = subtract(midHi, low)
	high = subtract(x, midHi)
	return
}

func onePoleLowpass(x []float64, fs, cutoff float64) []float64 {
	lp := dsp.LowpassSinglePole(cutoff, fs)
	return dsp.FiltFilt([]dsp.Biquad{lp}, x)
}

func subtract(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

func marginalSpectrumPeak(low, mid, high []float64, fs float64) float64 {
	combined := make([]float64, len(low))
	for i := range combined {
		combined[i] = low[i] + mid[i] + high[i]
	}
	coeffs := dsp.RealFFT(combined)
	power := dsp.PowerSpectrum(coeffs, len(combined))
	freqs := dsp.Frequencies(len(combined), fs)
	idx := argMax(power)
	if idx < 0 || idx >= len(freqs) {
		return 0
	}
	return freqs[idx]
}
