// Package quality implements the Quality Assessor of spec.md §4.E: a
// per-window signal-quality scoring pass that feeds both the Stream
// Processor's Processed Window and the Quality Monitor's alerting. It is
// built on internal/dsp (biquad filtering, FFT-based
// periodogram) reused for band-limited variance estimates, plus
// gonum/stat for the descriptive statistics a tracking loop would use for
// its own SNR/peak computations.
package quality

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/identity-wael/neurascale-sub000/internal/dsp"
)

// Config carries the thresholds used to classify channels and compute the
// composite score, defaulted per spec.md §4.E/§4.G.
type Config struct {
	LineFrequencyHz    float64
	SNRAcceptableDB    float64
	SNRGoodDB          float64
	MaxNoiseRMS        float64
	ArtifactWarnPct    float64
	ArtifactCriticalPct float64
	MaxDriftUVPerSec   float64
	GoodChannelRatioMin float64
}

// DefaultConfig matches the thresholds implied by spec.md §4.E/§4.G.
func DefaultConfig() Config {
	return Config{
		LineFrequencyHz:     50,
		SNRAcceptableDB:     5,
		SNRGoodDB:           10,
		MaxNoiseRMS:         50,
		ArtifactWarnPct:     5,
		ArtifactCriticalPct: 10,
		MaxDriftUVPerSec:    10,
		GoodChannelRatioMin: 0.8,
	}
}

// Metrics is the per-window Quality Metrics record of spec.md §4.E.
type Metrics struct {
	PerChannelSNRDB       []float64
	OverallSNRDB          float64
	NoiseRMS              float64
	LineNoiseAmplitude    float64
	ArtifactFractionPct   float64
	FlatlineChannels      []int
	ClippingChannels      []int
	HighImpedanceChannels []int
	BaselineDriftUVPerSec float64
	PerChannelQuality     []float64
	CompositeScore        float64
	Rating                string
	Issues                []string
	Recommendations       []string
}

// Assessor computes Metrics for channels×samples blocks at a fixed
// sampling rate.
type Assessor struct {
	cfg     Config
	notches *dsp.NotchCoeffCache
	bands   *dsp.BandpassCoeffCache
}

// NewAssessor builds an Assessor with the given config, reusing coefficient
// caches across windows the way the Preprocessing Pipeline does.
func NewAssessor(cfg Config) *Assessor {
	return &Assessor{cfg: cfg, notches: dsp.NewNotchCoeffCache(), bands: dsp.NewBandpassCoeffCache()}
}

// Assess computes the full Quality Metrics record for one window.
func (a *Assessor) Assess(block [][]float64, fs float64) Metrics {
	nCh := len(block)
	m := Metrics{
		PerChannelSNRDB:   make([]float64, nCh),
		PerChannelQuality: make([]float64, nCh),
	}

	noiseVars := make([]float64, nCh)
	for ch := 0; ch < nCh; ch++ {
		signalVar := bandLimitedVariance(a.bands, block[ch], fs, 1, 40)
		noiseHi := math.Min(100, fs/2-10)
		var noiseVar float64
		if fs <= 200 {
			noiseVar = savitzkyGolayResidualVariance(block[ch])
		} else {
			noiseVar = bandLimitedVariance(a.bands, block[ch], fs, 60, noiseHi)
		}
		noiseVars[ch] = noiseVar
		if noiseVar <= 0 {
			noiseVar = 1e-12
		}
		m.PerChannelSNRDB[ch] = 10 * math.Log10(signalVar/noiseVar)
	}
	m.OverallSNRDB = median(m.PerChannelSNRDB)

	noiseRMSPerCh := make([]float64, nCh)
	for ch, v := range noiseVars {
		noiseRMSPerCh[ch] = math.Sqrt(math.Max(v, 0))
	}
	m.NoiseRMS = median(noiseRMSPerCh)

	m.LineNoiseAmplitude = lineNoiseAmplitude(block, fs, a.cfg.LineFrequencyHz)
	m.ArtifactFractionPct = artifactFraction(block, fs)

	for ch := 0; ch < nCh; ch++ {
		if stddevOf(block[ch]) < 0.5 {
			m.FlatlineChannels = append(m.FlatlineChannels, ch)
		}
	}
	m.ClippingChannels = clippingChannels(block)
	m.HighImpedanceChannels = highImpedanceChannels(noiseRMSPerCh)
	m.BaselineDriftUVPerSec = median(driftPerChannel(a.bands, block, fs))

	for ch := 0; ch < nCh; ch++ {
		q := piecewiseSNRScore(m.PerChannelSNRDB[ch], a.cfg.SNRAcceptableDB, a.cfg.SNRGoodDB)
		if containsInt(m.FlatlineChannels, ch) {
			q = 0
		} else if containsInt(m.ClippingChannels, ch) {
			q *= 0.3
		} else if containsInt(m.HighImpedanceChannels, ch) {
			q *= 0.5
		}
		m.PerChannelQuality[ch] = q
	}

	base := piecewiseSNRScore(m.OverallSNRDB, a.cfg.SNRAcceptableDB, a.cfg.SNRGoodDB)
	if m.NoiseRMS > a.cfg.MaxNoiseRMS {
		base *= 0.8
	}
	switch {
	case m.ArtifactFractionPct > a.cfg.ArtifactCriticalPct:
		base *= 0.7
	case m.ArtifactFractionPct > a.cfg.ArtifactWarnPct:
		base *= 0.85
	}
	goodRatio := goodChannelRatio(m.PerChannelQuality)
	if goodRatio < a.cfg.GoodChannelRatioMin {
		base *= goodRatio
	}
	if math.Abs(m.BaselineDriftUVPerSec) > a.cfg.MaxDriftUVPerSec {
		base *= 0.9
	}
	m.CompositeScore = clamp01(base)
	m.Rating = ratingFor(m.CompositeScore)

	m.Issues, m.Recommendations = buildIssues(m, a.cfg)
	return m
}

func bandLimitedVariance(cache *dsp.BandpassCoeffCache, x []float64, fs, lo, hi float64) float64 {
	if len(x) < 4 || lo <= 0 || hi >= fs/2 {
		return varianceOf(x)
	}
	sections := cache.Get(4, lo, hi, fs)
	filtered := dsp.FiltFilt(sections, x)
	return varianceOf(filtered)
}

// savitzkyGolayResidualVariance smooths with an order-3 Savitzky-Golay
// filter (cubicLocalFit at each interior sample) over a fixed 5-sample
// window and returns the residual variance, per spec.md §4.E's low-fs
// fallback. The window length does not scale with the sampling rate.
func savitzkyGolayResidualVariance(x []float64) float64 {
	window := 5
	if window >= len(x) {
		return varianceOf(x)
	}
	half := window / 2
	residual := make([]float64, 0, len(x))
	for i := half; i < len(x)-half; i++ {
		seg := x[i-half : i+half+1]
		smoothed := cubicLocalFit(seg)
		residual = append(residual, x[i]-smoothed)
	}
	return varianceOf(residual)
}

// cubicLocalFit estimates the smoothed value at an odd-length window's
// center sample: the center point of a least-squares degree-3 polynomial
// fit, via the closed-form Savitzky-Golay weights
// 3(3m²+3m−1−5i²)/((4m²−1)(2m+3)) for half-width m and offset i. Windows
// shorter than 5 samples fall back to the window mean.
func cubicLocalFit(seg []float64) float64 {
	m := len(seg) / 2
	if m < 2 {
		return stat.Mean(seg, nil)
	}
	mf := float64(m)
	norm := (4*mf*mf - 1) * (2*mf + 3)
	var sum float64
	for k, v := range seg {
		i := float64(k - m)
		sum += 3 * (3*mf*mf + 3*mf - 1 - 5*i*i) / norm * v
	}
	return sum
}

func lineNoiseAmplitude(block [][]float64, fs, lineFreq float64) float64 {
	var amps []float64
	for _, ch := range block {
		if len(ch) < 4 {
			continue
		}
		coeffs := dsp.RealFFT(ch)
		power := dsp.PowerSpectrum(coeffs, len(ch))
		freqs := dsp.Frequencies(len(ch), fs)
		var peak float64
		for i, f := range freqs {
			if f >= lineFreq-2 && f <= lineFreq+2 {
				peak = math.Max(peak, math.Sqrt(power[i]))
			}
		}
		amps = append(amps, peak)
	}
	return median(amps)
}

func artifactFraction(block [][]float64, fs float64) float64 {
	if len(block) == 0 || len(block[0]) == 0 {
		return 0
	}
	n := len(block[0])
	flagged := make([]bool, n)
	winSize := int(0.1 * fs)
	if winSize < 1 {
		winSize = 1
	}
	for _, ch := range block {
		for i, v := range ch {
			if math.Abs(v) > 200 {
				flagged[i] = true
			}
		}
		for start := 0; start < n; start += winSize {
			end := start + winSize
			if end > n {
				end = n
			}
			seg := ch[start:end]
			if rms(seg) > 50 {
				for i := start; i < end; i++ {
					flagged[i] = true
				}
			}
		}
	}
	count := 0
	for _, f := range flagged {
		if f {
			count++
		}
	}
	return 100 * float64(count) / float64(n)
}

func clippingChannels(block [][]float64) []int {
	var out []int
	for ch, samples := range block {
		if len(samples) == 0 {
			continue
		}
		mn, mx := minMax(samples)
		spanLo := mn + 0.05*(mx-mn)
		spanHi := mx - 0.05*(mx-mn)
		count := 0
		for _, v := range samples {
			if v <= spanLo || v >= spanHi {
				count++
			}
		}
		if float64(count)/float64(len(samples)) >= 0.10 {
			out = append(out, ch)
		}
	}
	return out
}

func highImpedanceChannels(noiseRMS []float64) []int {
	med := median(noiseRMS)
	sd := stddevOf(noiseRMS)
	var out []int
	for ch, v := range noiseRMS {
		if v > med+2*sd {
			out = append(out, ch)
		}
	}
	return out
}

func driftPerChannel(cache *dsp.BandpassCoeffCache, block [][]float64, fs float64) []float64 {
	out := make([]float64, len(block))
	for ch, x := range block {
		lp := lowpass(cache, x, fs, 0.5)
		xs := make([]float64, len(lp))
		for i := range xs {
			xs[i] = float64(i) / fs
		}
		_, slope := stat.LinearRegression(xs, lp, nil, false)
		out[ch] = slope
	}
	return out
}

func lowpass(cache *dsp.BandpassCoeffCache, x []float64, fs, cutoff float64) []float64 {
	if cutoff >= fs/2 || len(x) < 4 {
		return x
	}
	sections := cache.Get(2, cutoff*0.01, cutoff, fs)
	return dsp.FiltFilt(sections, x)
}

func piecewiseSNRScore(snrDB, acceptable, good float64) float64 {
	switch {
	case snrDB <= acceptable:
		if acceptable == 0 {
			return 0
		}
		return clamp01(snrDB / acceptable * 0.5)
	case snrDB >= good:
		return 1.0
	default:
		frac := (snrDB - acceptable) / (good - acceptable)
		return 0.5 + 0.5*frac
	}
}

func ratingFor(score float64) string {
	switch {
	case score >= 0.8:
		return "excellent"
	case score >= 0.6:
		return "good"
	case score >= 0.4:
		return "acceptable"
	case score >= 0.2:
		return "poor"
	default:
		return "unusable"
	}
}

func buildIssues(m Metrics, cfg Config) (issues, recommendations []string) {
	if len(m.FlatlineChannels) > 0 {
		issues = append(issues, fmt.Sprintf("%d channel(s) flatlined", len(m.FlatlineChannels)))
		recommendations = append(recommendations, "check electrode contact on flatlined channels")
	}
	if len(m.ClippingChannels) > 0 {
		issues = append(issues, fmt.Sprintf("%d channel(s) clipping", len(m.ClippingChannels)))
		recommendations = append(recommendations, "reduce gain or reseat clipping channels")
	}
	if len(m.HighImpedanceChannels) > 0 {
		issues = append(issues, fmt.Sprintf("%d channel(s) show high impedance", len(m.HighImpedanceChannels)))
		recommendations = append(recommendations, "apply more gel/saline to high-impedance channels")
	}
	if m.ArtifactFractionPct > cfg.ArtifactWarnPct {
		issues = append(issues, fmt.Sprintf("artifact fraction %.1f%% exceeds warning threshold", m.ArtifactFractionPct))
		recommendations = append(recommendations, "ask subject to minimize movement and blinking")
	}
	if math.Abs(m.BaselineDriftUVPerSec) > cfg.MaxDriftUVPerSec {
		issues = append(issues, "baseline drift exceeds configured maximum")
		recommendations = append(recommendations, "allow longer settling time before recording")
	}
	return issues, recommendations
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return stat.Quantile(0.5, stat.Empirical, sorted, nil)
}

func varianceOf(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	_, v := stat.MeanVariance(xs, nil)
	return v
}

func stddevOf(xs []float64) float64 { return math.Sqrt(varianceOf(xs)) }

func rms(xs []float64) float64 {
	var sum float64
	for _, v := range xs {
		sum += v * v
	}
	if len(xs) == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(len(xs)))
}

func minMax(xs []float64) (float64, float64) {
	mn, mx := xs[0], xs[0]
	for _, v := range xs {
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	return mn, mx
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func goodChannelRatio(quality []float64) float64 {
	if len(quality) == 0 {
		return 1
	}
	good := 0
	for _, q := range quality {
		if q >= 0.6 {
			good++
		}
	}
	return float64(good) / float64(len(quality))
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

