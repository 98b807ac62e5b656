package dsp

import (
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// CachedSpectral pre-computes and caches the Hann window and FFT plan for a
// fixed segment size, so a window-by-window real-time loop does not rebuild
// them on every window. Pipeline state like this is mutated only on
// configuration-update paths and read under a lock from the processing
// driver, per the concurrency model.
type CachedSpectral struct {
	mu        sync.RWMutex
	nperseg   int
	window    []float64
	windowPow float64
	fft       *fourier.FFT
}

// NewCachedSpectral builds a cached FFT/window plan for the given segment
// size (e.g. 2*fs for the Welch estimator used by the frequency-domain
// feature group).
func NewCachedSpectral(nperseg int) *CachedSpectral {
	c := &CachedSpectral{}
	c.rebuild(nperseg)
	return c
}

func (c *CachedSpectral) rebuild(nperseg int) {
	if nperseg < 2 {
		nperseg = 2
	}
	if nperseg%2 != 0 {
		nperseg--
	}
	win := Hann(nperseg)
	sum := 0.0
	for _, w := range win {
		sum += w * w
	}
	c.nperseg = nperseg
	c.window = win
	c.windowPow = sum
	c.fft = fourier.NewFFT(nperseg)
}

// UpdateSize recreates the cached window/FFT plan for a new segment size.
func (c *CachedSpectral) UpdateSize(nperseg int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if nperseg == c.nperseg {
		return
	}
	c.rebuild(nperseg)
}

// Size returns the segment size the cache currently plans for.
func (c *CachedSpectral) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nperseg
}

// Segment computes the one-sided power spectrum of one Hann-windowed,
// mean-removed segment of exactly Size() samples using the cached plan.
func (c *CachedSpectral) Segment(mean float64, segment []float64) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(segment) != c.nperseg {
		return nil
	}
	centered := make([]float64, c.nperseg)
	for i, v := range segment {
		centered[i] = v - mean
	}
	windowed := ApplyWindowReal(centered, c.window)
	coeffs := c.fft.Coefficients(nil, windowed)
	out := make([]float64, len(coeffs))
	for i, cf := range coeffs {
		re, im := real(cf), imag(cf)
		out[i] = (re*re + im*im)
	}
	return out
}

// WindowPower returns Σw² for the cached window, used to scale raw FFT
// power into a PSD (units²/Hz).
func (c *CachedSpectral) WindowPower() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.windowPow
}
