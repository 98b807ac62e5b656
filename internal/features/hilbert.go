package features

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// analyticSignal computes the discrete analytic signal of x via the FFT
// construction of the Hilbert transform: zero negative frequencies, double
// positive frequencies, keep DC/Nyquist unscaled, inverse FFT.
func analyticSignal(x []float64) []complex128 {
	n := len(x)
	if n == 0 {
		return nil
	}
	seq := make([]complex128, n)
	for i, v := range x {
		seq[i] = complex(v, 0)
	}
	fft := fourier.NewCmplxFFT(n)
	coeffs := fft.Coefficients(nil, seq)

	h := make([]float64, n)
	h[0] = 1
	if n%2 == 0 {
		h[n/2] = 1
		for i := 1; i < n/2; i++ {
			h[i] = 2
		}
	} else {
		for i := 1; i <= (n-1)/2; i++ {
			h[i] = 2
		}
	}
	for i := range coeffs {
		coeffs[i] = coeffs[i] * complex(h[i], 0)
	}

	return fft.Sequence(nil, coeffs)
}

func analyticAmplitude(x []float64) []float64 {
	a := analyticSignal(x)
	out := make([]float64, len(a))
	for i, c := range a {
		out[i] = cmplx.Abs(c)
	}
	return out
}

func analyticPhase(x []float64) []float64 {
	a := analyticSignal(x)
	out := make([]float64, len(a))
	for i, c := range a {
		out[i] = cmplx.Phase(c)
	}
	return out
}

func instantaneousFrequency(phase []float64, fs float64) []float64 {
	if len(phase) < 2 {
		return nil
	}
	out := make([]float64, len(phase)-1)
	for i := 1; i < len(phase); i++ {
		d := unwrapDelta(phase[i] - phase[i-1])
		out[i-1] = d * fs / (2 * math.Pi)
	}
	return out
}

func unwrapDelta(d float64) float64 {
	for d > math.Pi {
		d -= 2 * math.Pi
	}
	for d < -math.Pi {
		d += 2 * math.Pi
	}
	return d
}

// circularMean returns the mean resultant angle of a set of phase angles in
// radians; phaseEntropy gives their binned entropy.
func circularMean(phases []float64) float64 {
	var sumSin, sumCos float64
	for _, p := range phases {
		sumSin += math.Sin(p)
		sumCos += math.Cos(p)
	}
	return math.Atan2(sumSin, sumCos)
}

func phaseEntropy(phases []float64, nBins int) float64 {
	if len(phases) == 0 {
		return 0
	}
	counts := make([]int, nBins)
	for _, p := range phases {
		norm := (p + math.Pi) / (2 * math.Pi)
		idx := int(norm * float64(nBins))
		if idx >= nBins {
			idx = nBins - 1
		}
		if idx < 0 {
			idx = 0
		}
		counts[idx]++
	}
	var h float64
	n := float64(len(phases))
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log(p)
	}
	return h
}
