package dsp

import (
	"math"
	"sync"
)

// Biquad is a single second-order IIR section in transposed direct form II,
// the standard structure for cascaded notch/bandpass sections.
type Biquad struct {
	B0, B1, B2 float64
	A1, A2     float64 // a0 is normalized to 1
}

// Apply runs the section forward over x, returning a new slice.
func (b Biquad) Apply(x []float64) []float64 {
	y := make([]float64, len(x))
	var z1, z2 float64
	for i, xn := range x {
		yn := b.B0*xn + z1
		z1 = b.B1*xn - b.A1*yn + z2
		z2 = b.B2*xn - b.A2*yn
		y[i] = yn
	}
	return y
}

// Reverse returns x with its samples reversed, used to implement zero-phase
// (filtfilt) forward/backward filtering.
func Reverse(x []float64) []float64 {
	y := make([]float64, len(x))
	n := len(x)
	for i, v := range x {
		y[n-1-i] = v
	}
	return y
}

// FiltFilt applies a cascade of biquad sections forward then backward
// (zero-phase filtering), canceling the phase distortion a single causal
// pass would introduce.
func FiltFilt(sections []Biquad, x []float64) []float64 {
	y := append([]float64(nil), x...)
	for _, s := range sections {
		y = s.Apply(y)
	}
	y = Reverse(y)
	for _, s := range sections {
		y = s.Apply(y)
	}
	return Reverse(y)
}

// NotchBiquad designs an RBJ-style second-order IIR notch at freq Hz with
// quality factor q, sampled at fs. A higher q yields a narrower notch.
func NotchBiquad(freq, fs, q float64) Biquad {
	w0 := 2 * math.Pi * freq / fs
	alpha := math.Sin(w0) / (2 * q)
	cosW0 := math.Cos(w0)

	b0 := 1.0
	b1 := -2 * cosW0
	b2 := 1.0
	a0 := 1 + alpha
	a1 := -2 * cosW0
	a2 := 1 - alpha

	return Biquad{
		B0: b0 / a0,
		B1: b1 / a0,
		B2: b2 / a0,
		A1: a1 / a0,
		A2: a2 / a0,
	}
}

// NotchCoeffCache caches notch biquad coefficients by (frequency, fs, Q) so
// a session's notch stage does not re-derive trigonometry on every window,
// per the "coefficients cached by (frequency, fs, Q)" requirement.
type NotchCoeffCache struct {
	mu    sync.Mutex
	cache map[notchKey]Biquad
}

type notchKey struct {
	freq, fs, q float64
}

// NewNotchCoeffCache creates an empty cache.
func NewNotchCoeffCache() *NotchCoeffCache {
	return &NotchCoeffCache{cache: make(map[notchKey]Biquad)}
}

// Get returns the cached (or newly designed and cached) notch biquad.
func (c *NotchCoeffCache) Get(freq, fs, q float64) Biquad {
	key := notchKey{freq, fs, q}
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.cache[key]; ok {
		return b
	}
	b := NotchBiquad(freq, fs, q)
	c.cache[key] = b
	return b
}

// ButterworthBandpassSections designs a cascade of ⌈order/2⌉ second-order
// RBJ bandpass sections whose per-section Q values come from the pole angles
// of an order-N analog Butterworth lowpass prototype. Every section is
// centred at sqrt(lo·hi); the cascade is not a true Butterworth bandpass, so
// its passband is not maximally flat and lo/hi (in Hz) are not exact -3dB
// edges. fs is the sampling rate.
func ButterworthBandpassSections(order int, lo, hi, fs float64) []Biquad {
	if order < 1 {
		order = 1
	}
	center := math.Sqrt(lo * hi)
	bandwidth := hi - lo
	sectionCount := (order + 1) / 2

	sections := make([]Biquad, 0, sectionCount)
	for k := 0; k < sectionCount; k++ {
		// Butterworth pole angle for an order-N prototype, k-th conjugate pair.
		theta := math.Pi * (2*float64(k) + 1) / (2 * float64(order))
		q := 1 / (2 * math.Cos(theta))
		if q <= 0 || math.IsInf(q, 0) || math.IsNaN(q) {
			q = 0.707
		}
		sectionQ := center / bandwidth * 2 * math.Sin(theta)
		if sectionQ <= 0.05 {
			sectionQ = q
		}
		sections = append(sections, bandpassBiquad(center, fs, sectionQ))
	}
	return sections
}

// bandpassBiquad designs a constant skirt gain RBJ bandpass section.
func bandpassBiquad(freq, fs, q float64) Biquad {
	w0 := 2 * math.Pi * freq / fs
	alpha := math.Sin(w0) / (2 * q)
	cosW0 := math.Cos(w0)

	b0 := alpha
	b1 := 0.0
	b2 := -alpha
	a0 := 1 + alpha
	a1 := -2 * cosW0
	a2 := 1 - alpha

	return Biquad{
		B0: b0 / a0,
		B1: b1 / a0,
		B2: b2 / a0,
		A1: a1 / a0,
		A2: a2 / a0,
	}
}

// BandpassCoeffCache caches Butterworth bandpass section cascades by their
// design parameters.
type BandpassCoeffCache struct {
	mu    sync.Mutex
	cache map[bandpassKey][]Biquad
}

type bandpassKey struct {
	order      int
	lo, hi, fs float64
}

// NewBandpassCoeffCache creates an empty cache.
func NewBandpassCoeffCache() *BandpassCoeffCache {
	return &BandpassCoeffCache{cache: make(map[bandpassKey][]Biquad)}
}

// Get returns the cached (or newly designed) section cascade.
func (c *BandpassCoeffCache) Get(order int, lo, hi, fs float64) []Biquad {
	key := bandpassKey{order, lo, hi, fs}
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.cache[key]; ok {
		return s
	}
	s := ButterworthBandpassSections(order, lo, hi, fs)
	c.cache[key] = s
	return s
}

// LowpassSinglePole designs a simple one-pole IIR lowpass at cutoff Hz,
// used by baseline-drift estimation (0.5 Hz lowpass) where a full
// Butterworth cascade is unnecessary.
func LowpassSinglePole(cutoff, fs float64) Biquad {
	rc := 1 / (2 * math.Pi * cutoff)
	dt := 1 / fs
	alpha := dt / (rc + dt)
	return Biquad{B0: alpha, B1: 0, B2: 0, A1: -(1 - alpha), A2: 0}
}
