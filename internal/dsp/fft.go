package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// FFTShift returns the FFT output shifted so that DC is centered. Used by
// time-frequency features when a two-sided complex spectrum is needed.
func FFTShift(data []complex128) []complex128 {
	n := len(data)
	if n == 0 {
		return []complex128{}
	}
	half := n / 2
	shifted := make([]complex128, n)
	copy(shifted, data[half:])
	copy(shifted[n-half:], data[:half])
	return shifted
}

// RealFFT computes the one-sided complex spectrum of a real signal of even
// length n, returning n/2+1 coefficients (DC through Nyquist).
func RealFFT(samples []float64) []complex128 {
	n := len(samples)
	if n == 0 {
		return nil
	}
	fft := fourier.NewFFT(n)
	return fft.Coefficients(nil, samples)
}

// PowerSpectrum converts one-sided FFT coefficients into a power spectrum
// normalized by 1/n so Parseval's relation holds for the windowed segment.
func PowerSpectrum(coeffs []complex128, n int) []float64 {
	out := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mag := cmplx.Abs(c)
		out[i] = (mag * mag) / float64(n)
	}
	return out
}

// Frequencies returns the frequency (Hz) of each one-sided FFT bin for a
// signal of length n sampled at fs.
func Frequencies(n int, fs float64) []float64 {
	bins := n/2 + 1
	out := make([]float64, bins)
	for i := 0; i < bins; i++ {
		out[i] = float64(i) * fs / float64(n)
	}
	return out
}

// SimpsonIntegrate integrates y over uniformly spaced x using the composite
// Simpson rule (for an even sample count, Simpson covers the first n-1
// points and the trapezoid rule covers the last interval),
// used by the frequency-domain feature group for absolute band power.
func SimpsonIntegrate(y []float64, dx float64) float64 {
	n := len(y)
	if n < 2 {
		return 0
	}
	if n%2 == 0 {
		// Even number of points: composite Simpson needs an odd count.
		// Integrate the first n-1 via Simpson and add a trapezoid tail.
		total := simpsonOdd(y[:n-1], dx)
		total += 0.5 * dx * (y[n-2] + y[n-1])
		return total
	}
	return simpsonOdd(y, dx)
}

func simpsonOdd(y []float64, dx float64) float64 {
	n := len(y)
	if n < 3 {
		if n == 2 {
			return 0.5 * dx * (y[0] + y[1])
		}
		return 0
	}
	sum := y[0] + y[n-1]
	for i := 1; i < n-1; i++ {
		if i%2 == 0 {
			sum += 2 * y[i]
		} else {
			sum += 4 * y[i]
		}
	}
	return sum * dx / 3
}

// EnergyToDBFS converts a linear magnitude to dBFS relative to fullScale,
// retained from spectrum-debug rendering for diagnostics.
func EnergyToDBFS(mag, fullScale float64) float64 {
	if mag <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(mag/fullScale)
}
