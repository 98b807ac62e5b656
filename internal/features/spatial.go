package features

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// spatialFeatures computes cross-channel structure descriptors per
// spec.md §4.D's spatial group: covariance-eigenvalue spectral entropy,
// pairwise correlation summaries, a correlation-threshold clustering
// count, and PCA channel-dimensionality descriptors. Gated at the
// Extract() call site to nCh>=4 and quality_score>0.6.
func spatialFeatures(block [][]float64) (map[string][]float32, map[string]float32) {
	nCh := len(block)
	perCh := map[string][]float32{
		"mean_abs_correlation": make([]float32, nCh),
		"max_abs_correlation":  make([]float32, nCh),
		"pca_loading_pc1":      make([]float32, nCh),
	}

	corr := correlationMatrix(block)

	for ch := 0; ch < nCh; ch++ {
		var sum, max float64
		for other := 0; other < nCh; other++ {
			if other == ch {
				continue
			}
			a := math.Abs(corr.At(ch, other))
			sum += a
			if a > max {
				max = a
			}
		}
		perCh["mean_abs_correlation"][ch] = float32(sum / float64(nCh-1))
		perCh["max_abs_correlation"][ch] = float32(max)
	}

	eigVals, eigVecs := symEigenDescending(corr)
	cov := mat.NewDense(nCh, nCh, nil)
	for i := 0; i < nCh; i++ {
		for j := 0; j < nCh; j++ {
			cov.Set(i, j, covariance(block[i], block[j], mean(block[i]), mean(block[j])))
		}
	}
	covVals, _ := symEigenDescending(cov)
	spectralEntropy := eigenSpectralEntropy(covVals)
	effectiveRank := participationRatio(eigVals)
	clusterCount := thresholdClusterCount(corr, 0.6)

	if eigVecs != nil {
		for ch := 0; ch < nCh; ch++ {
			perCh["pca_loading_pc1"][ch] = float32(eigVecs.At(ch, 0))
		}
	}

	global := map[string]float32{
		"covariance_eigen_entropy": float32(spectralEntropy),
		"effective_rank":           float32(effectiveRank),
		"cluster_count_r06":        float32(clusterCount),
		"mean_pairwise_correlation": float32(meanOffDiagonal(corr)),
	}
	return perCh, global
}

func correlationMatrix(block [][]float64) *mat.Dense {
	nCh := len(block)
	m := mat.NewDense(nCh, nCh, nil)
	means := make([]float64, nCh)
	stds := make([]float64, nCh)
	for i, x := range block {
		means[i] = mean(x)
		stds[i] = stddevOf(x)
	}
	for i := 0; i < nCh; i++ {
		for j := i; j < nCh; j++ {
			c := covariance(block[i], block[j], means[i], means[j])
			denom := stds[i] * stds[j]
			var r float64
			if denom > 0 {
				r = c / denom
			}
			m.Set(i, j, r)
			m.Set(j, i, r)
		}
	}
	return m
}

func covariance(a, b []float64, ma, mb float64) float64 {
	var sum float64
	n := len(a)
	for i := 0; i < n; i++ {
		sum += (a[i] - ma) * (b[i] - mb)
	}
	return sum / float64(n-1)
}

// symEigenDescending returns eigenvalues and eigenvectors of a symmetric
// matrix sorted in descending order, since gonum's EigenSym returns them
// ascending.
func symEigenDescending(m *mat.Dense) ([]float64, *mat.Dense) {
	n, _ := m.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, m.At(i, j))
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return nil, nil
	}
	values := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if values[order[j]] > values[order[i]] {
				order[i], order[j] = order[j], order[i]
			}
		}
	}
	sortedValues := make([]float64, n)
	sortedVecs := mat.NewDense(n, n, nil)
	for newIdx, oldIdx := range order {
		sortedValues[newIdx] = values[oldIdx]
		for row := 0; row < n; row++ {
			sortedVecs.Set(row, newIdx, vecs.At(row, oldIdx))
		}
	}
	return sortedValues, sortedVecs
}

func eigenSpectralEntropy(eigVals []float64) float64 {
	var total float64
	for _, v := range eigVals {
		if v > 0 {
			total += v
		}
	}
	if total <= 0 {
		return 0
	}
	var h float64
	for _, v := range eigVals {
		if v <= 0 {
			continue
		}
		p := v / total
		h -= p * math.Log(p)
	}
	return h
}

// participationRatio is the participation ratio 1/Σp² of the normalized
// eigenvalue spectrum p, a standard effective-dimensionality estimate.
func participationRatio(eigVals []float64) float64 {
	var total, sumSq float64
	for _, v := range eigVals {
		if v > 0 {
			total += v
		}
	}
	if total <= 0 {
		return 0
	}
	for _, v := range eigVals {
		if v <= 0 {
			continue
		}
		p := v / total
		sumSq += p * p
	}
	if sumSq == 0 {
		return 0
	}
	return 1 / sumSq
}

func thresholdClusterCount(corr *mat.Dense, threshold float64) int {
	n, _ := corr.Dims()
	visited := make([]bool, n)
	clusters := 0
	var visit func(i int)
	visit = func(i int) {
		visited[i] = true
		for j := 0; j < n; j++ {
			if i != j && !visited[j] && math.Abs(corr.At(i, j)) >= threshold {
				visit(j)
			}
		}
	}
	for i := 0; i < n; i++ {
		if !visited[i] {
			clusters++
			visit(i)
		}
	}
	return clusters
}

func meanOffDiagonal(corr *mat.Dense) float64 {
	n, _ := corr.Dims()
	if n < 2 {
		return 0
	}
	var sum float64
	count := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += corr.At(i, j)
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
