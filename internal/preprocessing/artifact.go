package preprocessing

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/identity-wael/neurascale-sub000/internal/dsp"
)

// runArtifactRemoval applies ICA and/or regression-based artifact removal
// per spec.md §4.C, selected via p.cfg.ArtifactMethods.
func (p *Pipeline) runArtifactRemoval(block [][]float64, fs float64) ([][]float64, map[string]any, error) {
	methods := p.cfg.ArtifactMethods
	if len(methods) == 0 {
		methods = []string{"ica"}
	}
	current := block
	info := map[string]any{}

	for _, method := range methods {
		switch method {
		case "ica":
			out, icaInfo := p.runICA(current, fs)
			current = out
			info["ica"] = icaInfo
		case "regression":
			out, regInfo := p.runRegression(current)
			current = out
			info["regression"] = regInfo
		}
	}
	return current, info, nil
}

// runICA performs whitened parallel FastICA (tanh nonlinearity, symmetric
// decorrelation) and zeroes components classified as artifacts, per the
// variance-band and kurtosis rules of spec.md §4.C.
func (p *Pipeline) runICA(block [][]float64, fs float64) ([][]float64, map[string]any) {
	nCh := len(block)
	if nCh < 2 || len(block[0]) < 8 {
		return block, map[string]any{"skipped": "too few channels or samples"}
	}
	nSamples := len(block[0])

	k := p.cfg.ICAComponents
	if k <= 0 || k > nCh {
		k = nCh
	}
	if k > 20 {
		k = 20
	}

	X := mat.NewDense(nCh, nSamples, nil)
	for ch, row := range block {
		centered := centerRow(row)
		X.SetRow(ch, centered)
	}

	whitened, whitening, dewhitening := whiten(X, k)
	unmixing := fastICA(whitened, k, 500)

	sources := mat.NewDense(k, nSamples, nil)
	sources.Mul(unmixing, whitened)

	flagged := make([]bool, k)
	for c := 0; c < k; c++ {
		comp := mat.Row(nil, c, sources)
		flagged[c] = isArtifactComponent(comp, fs)
	}

	for c := 0; c < k; c++ {
		if flagged[c] {
			for s := 0; s < nSamples; s++ {
				sources.Set(c, s, 0)
			}
		}
	}

	// Reconstruct: mixing = pseudo-inverse(unmixing); X_clean = dewhitening * mixing * sources
	var mixing mat.Dense
	if err := mixing.Inverse(unmixing); err != nil {
		return block, map[string]any{"skipped": "unmixing matrix not invertible"}
	}
	var reconstructedWhite mat.Dense
	reconstructedWhite.Mul(&mixing, sources)
	var reconstructed mat.Dense
	reconstructed.Mul(dewhitening, &reconstructedWhite)

	out := make([][]float64, nCh)
	for ch := range out {
		row := mat.Row(nil, ch, &reconstructed)
		out[ch] = addOffset(row, mean(block[ch]))
	}
	_ = whitening

	nFlagged := 0
	for _, f := range flagged {
		if f {
			nFlagged++
		}
	}
	return out, map[string]any{"components": k, "flagged": nFlagged}
}

func centerRow(row []float64) []float64 {
	m := mean(row)
	out := make([]float64, len(row))
	for i, v := range row {
		out[i] = v - m
	}
	return out
}

func addOffset(row []float64, offset float64) []float64 {
	out := make([]float64, len(row))
	for i, v := range row {
		out[i] = v + offset
	}
	return out
}

// whiten performs PCA whitening, returning the k-component whitened data
// plus the whitening/dewhitening transforms needed to reconstruct.
func whiten(X *mat.Dense, k int) (whitened *mat.Dense, whitening *mat.Dense, dewhitening *mat.Dense) {
	nCh, nSamples := X.Dims()
	var cov mat.Dense
	cov.Mul(X, X.T())
	cov.Scale(1/float64(nSamples-1), &cov)

	var eig mat.EigenSym
	ok := eig.Factorize(mat.NewSymDense(nCh, covData(&cov, nCh)), true)
	if !ok {
		// Fall back to identity whitening if decomposition fails.
		whitened = mat.DenseCopyOf(X)
		whitening = identity(nCh)
		dewhitening = identity(nCh)
		return
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// Take the top-k eigenvalues (they come sorted ascending from gonum).
	order := make([]int, nCh)
	for i := range order {
		order[i] = i
	}
	// Sort indices descending by eigenvalue.
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			if values[order[j]] > values[order[i]] {
				order[i], order[j] = order[j], order[i]
			}
		}
	}

	W := mat.NewDense(k, nCh, nil)
	D := mat.NewDense(nCh, k, nil)
	for row := 0; row < k; row++ {
		idx := order[row]
		lambda := math.Max(values[idx], 1e-12)
		scale := 1 / math.Sqrt(lambda)
		for col := 0; col < nCh; col++ {
			v := vectors.At(col, idx)
			W.Set(row, col, scale*v)
			D.Set(col, row, v*math.Sqrt(lambda))
		}
	}

	whitened = mat.NewDense(k, nSamples, nil)
	whitened.Mul(W, X)
	whitening = W
	dewhitening = D
	return
}

func covData(cov *mat.Dense, n int) []float64 {
	out := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[i*n+j] = cov.At(i, j)
		}
	}
	return out
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// fastICA runs the parallel (symmetric) FastICA algorithm with the tanh
// contrast function, returning a k×k unmixing matrix over whitened data.
func fastICA(whitened *mat.Dense, k, maxIter int) *mat.Dense {
	_, nSamples := whitened.Dims()
	W := randomOrthogonal(k)

	for iter := 0; iter < maxIter; iter++ {
		var WX mat.Dense
		WX.Mul(W, whitened)

		gwx := mat.NewDense(k, nSamples, nil)
		gPrimeMean := make([]float64, k)
		for r := 0; r < k; r++ {
			for c := 0; c < nSamples; c++ {
				v := WX.At(r, c)
				g := math.Tanh(v)
				gwx.Set(r, c, g)
				gPrimeMean[r] += 1 - g*g
			}
			gPrimeMean[r] /= float64(nSamples)
		}

		var newW mat.Dense
		newW.Mul(gwx, whitened.T())
		newW.Scale(1/float64(nSamples), &newW)
		for r := 0; r < k; r++ {
			for c := 0; c < k; c++ {
				newW.Set(r, c, newW.At(r, c)-gPrimeMean[r]*W.At(r, c))
			}
		}

		W = symmetricDecorrelate(&newW)
	}
	return W
}

func randomOrthogonal(k int) *mat.Dense {
	m := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		m.Set(i, i, 1)
		for j := 0; j < k; j++ {
			if i != j {
				m.Set(i, j, 0.01*float64((i+1)*(j+1)%7-3))
			}
		}
	}
	return symmetricDecorrelate(m)
}

// symmetricDecorrelate orthogonalizes W via W (W^T W)^{-1/2}, the standard
// FastICA parallel decorrelation step.
func symmetricDecorrelate(W *mat.Dense) *mat.Dense {
	k, _ := W.Dims()
	var wwt mat.Dense
	wwt.Mul(W, W.T())

	var eig mat.EigenSym
	sym := mat.NewSymDense(k, covData(&wwt, k))
	if !eig.Factorize(sym, true) {
		return mat.DenseCopyOf(W)
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	invSqrt := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		lambda := math.Max(values[i], 1e-12)
		scale := 1 / math.Sqrt(lambda)
		for r := 0; r < k; r++ {
			for c := 0; c < k; c++ {
				invSqrt.Set(r, c, invSqrt.At(r, c)+vectors.At(r, i)*scale*vectors.At(c, i))
			}
		}
	}

	var out mat.Dense
	out.Mul(invSqrt, W)
	return &out
}

// isArtifactComponent classifies an ICA component using the variance-band
// and kurtosis rules of spec.md §4.C: a component is flagged as an artifact
// if at least 80% of its power sits in the 0.1-4Hz band (ocular), at least
// 70% sits in the 20-100Hz band (muscle), or its kurtosis exceeds 10 in
// magnitude (eye blinks and other sharp transients).
func isArtifactComponent(comp []float64, fs float64) bool {
	k := kurtosis(comp)
	if math.Abs(k) > 10 {
		return true
	}
	if fs <= 0 || len(comp) < 8 {
		return false
	}
	low := bandPowerFraction(comp, fs, 0.1, 4)
	high := bandPowerFraction(comp, fs, 20, math.Min(100, fs/2-1e-6))
	return low >= 0.80 || high >= 0.70
}

// bandPowerFraction returns the fraction of a component's total spectral
// power that falls within [lo, hi] Hz, via its one-sided power spectrum.
func bandPowerFraction(comp []float64, fs, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	coeffs := dsp.RealFFT(comp)
	power := dsp.PowerSpectrum(coeffs, len(comp))
	freqs := dsp.Frequencies(len(comp), fs)

	var total, inBand float64
	for i, p := range power {
		total += p
		if freqs[i] >= lo && freqs[i] <= hi {
			inBand += p
		}
	}
	if total <= 0 {
		return 0
	}
	return inBand / total
}

func kurtosis(x []float64) float64 {
	m := mean(x)
	v := variance(x)
	if v <= 0 {
		return 0
	}
	var m4 float64
	for _, val := range x {
		d := val - m
		m4 += d * d * d * d
	}
	m4 /= float64(len(x))
	return m4/(v*v) - 3
}

// runRegression performs OLS regression of each EEG channel against the
// declared EOG channels, subtracting the fitted contribution when R²
// exceeds 0.10, per spec.md §4.C.
func (p *Pipeline) runRegression(block [][]float64) ([][]float64, map[string]any) {
	eogIdx := p.cfg.EOGChannels
	if len(eogIdx) == 0 || len(block) == 0 {
		return block, map[string]any{"skipped": "no EOG channels declared"}
	}
	nSamples := len(block[0])
	eogCount := len(eogIdx)

	design := mat.NewDense(nSamples, eogCount+1, nil)
	for s := 0; s < nSamples; s++ {
		design.Set(s, 0, 1)
		for j, idx := range eogIdx {
			if idx < 0 || idx >= len(block) {
				continue
			}
			design.Set(s, j+1, block[idx][s])
		}
	}

	out := cloneBlock(block)
	corrected := 0
	for ch, row := range block {
		if containsIndex(eogIdx, ch) {
			continue
		}
		y := mat.NewVecDense(nSamples, row)
		var beta mat.VecDense
		if err := beta.SolveVec(design, y); err != nil {
			continue
		}
		var fitted mat.VecDense
		fitted.MulVec(design, &beta)

		r2 := rSquared(row, fitted.RawVector().Data)
		if r2 > 0.10 {
			residual := make([]float64, nSamples)
			for s := 0; s < nSamples; s++ {
				residual[s] = row[s] - fitted.AtVec(s)
			}
			out[ch] = residual
			corrected++
		}
	}
	return out, map[string]any{"corrected_channels": corrected}
}

func rSquared(actual, fitted []float64) float64 {
	m := mean(actual)
	var ssTot, ssRes float64
	for i, a := range actual {
		ssTot += (a - m) * (a - m)
		d := a - fitted[i]
		ssRes += d * d
	}
	if ssTot <= 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

func containsIndex(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
