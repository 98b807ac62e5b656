package dsp

import "gonum.org/v1/gonum/stat"

// WelchPSD estimates the power spectral density of samples sampled at fs
// using Welch's method: Hann-windowed segments of length nperseg with 50%
// overlap, averaged in power. Returns the one-sided frequency axis and PSD
// in units^2/Hz. Mirrors scipy.signal.welch(window='hann', noverlap=nperseg/2).
func WelchPSD(samples []float64, fs float64, nperseg int) (freqs []float64, psd []float64) {
	n := len(samples)
	if nperseg <= 0 || n == 0 {
		return nil, nil
	}
	if nperseg > n {
		nperseg = n
	}
	if nperseg%2 != 0 {
		nperseg--
	}
	if nperseg < 2 {
		return nil, nil
	}
	step := nperseg / 2
	win := Hann(nperseg)
	winPower := 0.0
	for _, w := range win {
		winPower += w * w
	}
	scale := 1.0 / (fs * winPower)

	freqs = Frequencies(nperseg, fs)
	psd = make([]float64, len(freqs))
	segments := 0
	for start := 0; start+nperseg <= n; start += step {
		seg := samples[start : start+nperseg]
		mean := stat.Mean(seg, nil)
		centered := make([]float64, nperseg)
		for i, v := range seg {
			centered[i] = v - mean
		}
		windowed := ApplyWindowReal(centered, win)
		coeffs := RealFFT(windowed)
		for i, c := range coeffs {
			p := (realPart(c)*realPart(c) + imagPart(c)*imagPart(c)) * scale
			if i != 0 && i != len(coeffs)-1 {
				p *= 2
			}
			psd[i] += p
		}
		segments++
	}
	if segments == 0 {
		// Fewer samples than one segment: treat the whole signal as one
		// (unwindowed-scale) segment so callers still get a usable estimate.
		windowed := ApplyWindowReal(padOrTrim(samples, nperseg), win)
		coeffs := RealFFT(windowed)
		for i, c := range coeffs {
			p := (realPart(c)*realPart(c) + imagPart(c)*imagPart(c)) * scale
			if i != 0 && i != len(coeffs)-1 {
				p *= 2
			}
			psd[i] = p
		}
		return freqs, psd
	}
	for i := range psd {
		psd[i] /= float64(segments)
	}
	return freqs, psd
}

func padOrTrim(x []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, x)
	return out
}

func realPart(c complex128) float64 { return real(c) }
func imagPart(c complex128) float64 { return imag(c) }
