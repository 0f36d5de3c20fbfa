package mcem

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Log-space variances are kept inside [logVarFloor, logVarCap]: the
// floor stops the proposal collapsing to a point mass, the cap stops a
// near-singular weight pattern from blowing the proposal apart.
const (
	logVarFloor = 1e-10
	logVarCap   = 25.0
)

// logMoments computes the weighted mean and covariance of the surviving
// log-space candidates. Weights must be normalized to sum to one.
func logMoments(zs [][]float64, weights []float64) ([]float64, *mat.SymDense, error) {
	if len(zs) < 2 {
		return nil, nil, fmt.Errorf("need at least 2 survivors, got %d", len(zs))
	}
	if len(zs) != len(weights) {
		return nil, nil, fmt.Errorf("candidate/weight length mismatch: %d vs %d", len(zs), len(weights))
	}
	dim := len(zs[0])

	mu := make([]float64, dim)
	for k, z := range zs {
		if len(z) != dim {
			return nil, nil, fmt.Errorf("candidate %d has dimension %d, want %d", k, len(z), dim)
		}
		for i, v := range z {
			mu[i] += weights[k] * v
		}
	}
	for _, v := range mu {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, fmt.Errorf("non-finite weighted mean")
		}
	}

	data := mat.NewDense(len(zs), dim, nil)
	for k, z := range zs {
		data.SetRow(k, z)
	}
	// CovarianceMatrix normalizes by sum(weights)-1, so the normalized
	// importance weights are rescaled to sum to the survivor count.
	counts := make([]float64, len(weights))
	for k, w := range weights {
		counts[k] = w * float64(len(zs))
	}
	sigma := mat.NewSymDense(dim, nil)
	stat.CovarianceMatrix(sigma, data, counts)

	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			v := sigma.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, nil, fmt.Errorf("non-finite weighted covariance")
			}
		}
	}
	return mu, sigma, nil
}

// conditionCovariance bounds the diagonal and jitters the matrix until
// it admits a Cholesky factorization, mutating sigma in place.
func conditionCovariance(sigma *mat.SymDense, dim int) error {
	maxDiag := 0.0
	for i := 0; i < dim; i++ {
		if d := sigma.At(i, i); d > maxDiag {
			maxDiag = d
		}
	}
	if maxDiag > logVarCap {
		scale := logVarCap / maxDiag
		for i := 0; i < dim; i++ {
			for j := i; j < dim; j++ {
				sigma.SetSym(i, j, scale*sigma.At(i, j))
			}
		}
	}
	for i := 0; i < dim; i++ {
		if sigma.At(i, i) < logVarFloor {
			sigma.SetSym(i, i, logVarFloor)
		}
	}

	var chol mat.Cholesky
	jitter := 1e-10
	for try := 0; try < 12; try++ {
		if chol.Factorize(sigma) {
			return nil
		}
		for i := 0; i < dim; i++ {
			sigma.SetSym(i, i, sigma.At(i, i)+jitter)
		}
		jitter *= 10
	}
	return fmt.Errorf("covariance not positive definite after jitter")
}
