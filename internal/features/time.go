package features

import (
	"math"
	"sort"
)

// timeDomainFeatures computes the always-cheap descriptive statistics for
// every channel, plus the complexity features gated on quality_score > 0.7,
// per spec.md §4.D.
func timeDomainFeatures(block [][]float64, fs, qualityScore float64) map[string][]float32 {
	nCh := len(block)
	out := map[string][]float32{}
	names := []string{"mean", "std", "variance", "skewness", "kurtosis", "p25", "p75", "iqr", "mad",
		"coefficient_of_variation", "rms", "peak_to_peak", "max_abs", "mean_abs"}
	for _, n := range names {
		out[n] = make([]float32, nCh)
	}

	complexityNames := []string{"hjorth_activity", "hjorth_mobility", "hjorth_complexity",
		"sample_entropy", "approximate_entropy", "hurst_exponent", "higuchi_fd",
		"zero_crossing_rate", "line_length", "nonlinear_energy", "histogram_entropy",
		"envelope_mean", "envelope_std", "envelope_skew"}
	if qualityScore > 0.7 {
		for _, n := range complexityNames {
			out[n] = make([]float32, nCh)
		}
	}

	for ch, x := range block {
		m := mean(x)
		v := variance(x)
		sd := math.Sqrt(v)
		out["mean"][ch] = float32(m)
		out["std"][ch] = float32(sd)
		out["variance"][ch] = float32(v)
		out["skewness"][ch] = float32(skewness(x, m, sd))
		out["kurtosis"][ch] = float32(excessKurtosis(x, m, sd))

		p25 := percentile(x, 25)
		p75 := percentile(x, 75)
		out["p25"][ch] = float32(p25)
		out["p75"][ch] = float32(p75)
		out["iqr"][ch] = float32(p75 - p25)
		out["mad"][ch] = float32(medianAbsoluteDeviation(x))
		if m != 0 {
			out["coefficient_of_variation"][ch] = float32(sd / math.Abs(m))
		}
		out["rms"][ch] = float32(rms(x))
		mn, mx := minMax(x)
		out["peak_to_peak"][ch] = float32(mx - mn)
		out["max_abs"][ch] = float32(maxAbs(x))
		out["mean_abs"][ch] = float32(meanAbs(x))

		if qualityScore > 0.7 {
			act, mob, comp := hjorthParameters(x)
			out["hjorth_activity"][ch] = float32(act)
			out["hjorth_mobility"][ch] = float32(mob)
			out["hjorth_complexity"][ch] = float32(comp)
			out["sample_entropy"][ch] = float32(sampleEntropy(x, 2, 0.2*sd, 100))
			out["approximate_entropy"][ch] = float32(approximateEntropy(x, 2, 0.2*sd, 100))
			out["hurst_exponent"][ch] = float32(hurstExponent(x))
			out["higuchi_fd"][ch] = float32(higuchiFractalDimension(x, 10))
			out["zero_crossing_rate"][ch] = float32(zeroCrossingRate(x) * fs)
			out["line_length"][ch] = float32(lineLength(x) * fs / float64(len(x)))
			out["nonlinear_energy"][ch] = float32(meanNonlinearEnergy(x))
			out["histogram_entropy"][ch] = float32(histogramEntropy(x, 50))

			envMean, envStd, envSkew := envelopeStats(x)
			out["envelope_mean"][ch] = float32(envMean)
			out["envelope_std"][ch] = float32(envStd)
			out["envelope_skew"][ch] = float32(envSkew)
		}
	}
	return out
}

func mean(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v
	}
	if len(x) == 0 {
		return 0
	}
	return sum / float64(len(x))
}

func variance(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	m := mean(x)
	var sum float64
	for _, v := range x {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(x)-1)
}

func skewness(x []float64, m, sd float64) float64 {
	if sd <= 0 || len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		d := (v - m) / sd
		sum += d * d * d
	}
	return sum / float64(len(x))
}

func excessKurtosis(x []float64, m, sd float64) float64 {
	if sd <= 0 || len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		d := (v - m) / sd
		sum += d * d * d * d
	}
	return sum/float64(len(x)) - 3
}

func percentile(x []float64, p float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func medianAbsoluteDeviation(x []float64) float64 {
	med := percentile(x, 50)
	devs := make([]float64, len(x))
	for i, v := range x {
		devs[i] = math.Abs(v - med)
	}
	return percentile(devs, 50)
}

func minMax(x []float64) (float64, float64) {
	if len(x) == 0 {
		return 0, 0
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
	return mn, mx
}

func maxAbs(x []float64) float64 {
	var m float64
	for _, v := range x {
		if math.Abs(v) > m {
			m = math.Abs(v)
		}
	}
	return m
}

func meanAbs(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += math.Abs(v)
	}
	if len(x) == 0 {
		return 0
	}
	return sum / float64(len(x))
}

func hjorthParameters(x []float64) (activity, mobility, complexity float64) {
	if len(x) < 3 {
		return variance(x), 0, 0
	}
	d1 := diff(x)
	d2 := diff(d1)
	v0, v1, v2 := variance(x), variance(d1), variance(d2)
	activity = v0
	if v0 > 0 {
		mobility = math.Sqrt(v1 / v0)
	}
	if v1 > 0 && mobility > 0 {
		mobility2 := math.Sqrt(v2 / v1)
		complexity = mobility2 / mobility
	}
	return
}

func diff(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		out[i-1] = x[i] - x[i-1]
	}
	return out
}

// sampleEntropy computes SampEn(m, r) over up to maxPatterns templates.
func sampleEntropy(x []float64, m int, r float64, maxPatterns int) float64 {
	return entropyRatio(x, m, r, maxPatterns, false)
}

// approximateEntropy computes ApEn(m, r) over up to maxPatterns templates.
func approximateEntropy(x []float64, m int, r float64, maxPatterns int) float64 {
	return entropyRatio(x, m, r, maxPatterns, true)
}

func entropyRatio(x []float64, m int, r float64, maxPatterns int, includeSelfMatch bool) float64 {
	n := len(x)
	if n <= m+1 || r <= 0 {
		return 0
	}
	limit := n - m
	if limit > maxPatterns {
		limit = maxPatterns
	}

	countMatches := func(length int) float64 {
		var total float64
		for i := 0; i < limit; i++ {
			matches := 0
			for j := 0; j < limit; j++ {
				if i == j && !includeSelfMatch {
					continue
				}
				if chebyshevWithin(x[i:i+length], x[j:j+length], r) {
					matches++
				}
			}
			denom := limit - 1
			if includeSelfMatch {
				denom = limit
			}
			if denom <= 0 {
				continue
			}
			p := float64(matches) / float64(denom)
			if p > 0 {
				total += math.Log(p)
			}
		}
		return total / float64(limit)
	}

	phiM := countMatches(m)
	phiM1 := countMatches(m + 1)
	return phiM - phiM1
}

func chebyshevWithin(a, b []float64, r float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > r {
			return false
		}
	}
	return true
}

// hurstExponent estimates H via rescaled-range analysis over lags 2..100.
func hurstExponent(x []float64) float64 {
	n := len(x)
	if n < 8 {
		return 0.5
	}
	maxLag := 100
	if maxLag > n/2 {
		maxLag = n / 2
	}
	if maxLag < 2 {
		return 0.5
	}

	var logLags, logRS []float64
	for lag := 2; lag <= maxLag; lag++ {
		rs := rescaledRange(x, lag)
		if rs > 0 {
			logLags = append(logLags, math.Log(float64(lag)))
			logRS = append(logRS, math.Log(rs))
		}
	}
	if len(logLags) < 2 {
		return 0.5
	}
	_, slope := linearFit(logLags, logRS)
	return slope
}

func rescaledRange(x []float64, lag int) float64 {
	n := len(x) / lag
	if n < 1 {
		return 0
	}
	var avgRS float64
	for seg := 0; seg < n; seg++ {
		chunk := x[seg*lag : (seg+1)*lag]
		m := mean(chunk)
		var cum, maxC, minC float64
		for i, v := range chunk {
			cum += v - m
			if i == 0 || cum > maxC {
				maxC = cum
			}
			if i == 0 || cum < minC {
				minC = cum
			}
		}
		sd := math.Sqrt(variance(chunk))
		if sd > 0 {
			avgRS += (maxC - minC) / sd
		}
	}
	return avgRS / float64(n)
}

func linearFit(x, y []float64) (intercept, slope float64) {
	n := float64(len(x))
	if n == 0 {
		return 0, 0
	}
	var sx, sy, sxy, sxx float64
	for i := range x {
		sx += x[i]
		sy += y[i]
		sxy += x[i] * y[i]
		sxx += x[i] * x[i]
	}
	denom := n*sxx - sx*sx
	if denom == 0 {
		return 0, 0
	}
	slope = (n*sxy - sx*sy) / denom
	intercept = (sy - slope*sx) / n
	return
}

// higuchiFractalDimension computes Higuchi's FD up to k_max.
func higuchiFractalDimension(x []float64, kMax int) float64 {
	n := len(x)
	if n < kMax+1 {
		kMax = n - 1
	}
	if kMax < 2 {
		return 1
	}
	var logK, logL []float64
	for k := 1; k <= kMax; k++ {
		var lk float64
		for m := 0; m < k; m++ {
			var lengthM float64
			count := 0
			for i := m + k; i < n; i += k {
				lengthM += math.Abs(x[i] - x[i-k])
				count++
			}
			if count > 0 {
				normFactor := float64(n-1) / (float64(count) * float64(k))
				lengthM = lengthM * normFactor / float64(k)
				lk += lengthM
			}
		}
		lk /= float64(k)
		if lk > 0 {
			logK = append(logK, math.Log(1/float64(k)))
			logL = append(logL, math.Log(lk))
		}
	}
	if len(logK) < 2 {
		return 1
	}
	_, slope := linearFit(logK, logL)
	return slope
}

func zeroCrossingRate(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(x); i++ {
		if (x[i-1] >= 0) != (x[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(x)-1)
}

func lineLength(x []float64) float64 {
	var sum float64
	for i := 1; i < len(x); i++ {
		sum += math.Abs(x[i] - x[i-1])
	}
	return sum
}

func meanNonlinearEnergy(x []float64) float64 {
	if len(x) < 3 {
		return 0
	}
	var sum float64
	for i := 1; i < len(x)-1; i++ {
		sum += x[i]*x[i] - x[i+1]*x[i-1]
	}
	return sum / float64(len(x)-2)
}

func histogramEntropy(x []float64, bins int) float64 {
	if len(x) == 0 {
		return 0
	}
	mn, mx := minMax(x)
	if mx == mn {
		return 0
	}
	counts := make([]int, bins)
	width := (mx - mn) / float64(bins)
	for _, v := range x {
		idx := int((v - mn) / width)
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		counts[idx]++
	}
	var h float64
	n := float64(len(x))
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log(p)
	}
	return h
}

// envelopeStats computes mean/std/skew of the analytic-signal amplitude
// envelope via a discrete Hilbert transform built from the real FFT.
func envelopeStats(x []float64) (m, sd, skew float64) {
	amp := analyticAmplitude(x)
	m = mean(amp)
	v := variance(amp)
	sd = math.Sqrt(v)
	skew = skewness(amp, m, sd)
	return
}
