package mcem

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestLogMomentsTwoPointCase(t *testing.T) {
	zs := [][]float64{{-1}, {1}}
	weights := []float64{0.5, 0.5}

	mu, sigma, err := logMoments(zs, weights)
	if err != nil {
		t.Fatalf("log moments: %v", err)
	}
	if math.Abs(mu[0]) > 1e-12 {
		t.Fatalf("mean: got %v want 0", mu[0])
	}
	// Equal weights rescale to unit counts, matching the unbiased
	// two-sample variance (1+1)/(2-1) = 2.
	if math.Abs(sigma.At(0, 0)-2.0) > 1e-12 {
		t.Fatalf("variance: got %v want 2", sigma.At(0, 0))
	}
}

func TestLogMomentsWeightsShiftMean(t *testing.T) {
	zs := [][]float64{{0, 0}, {1, 2}}
	weights := []float64{0.25, 0.75}

	mu, _, err := logMoments(zs, weights)
	if err != nil {
		t.Fatalf("log moments: %v", err)
	}
	if math.Abs(mu[0]-0.75) > 1e-12 || math.Abs(mu[1]-1.5) > 1e-12 {
		t.Fatalf("weighted mean: got %v want [0.75 1.5]", mu)
	}
}

func TestLogMomentsRejectsDegenerateInput(t *testing.T) {
	if _, _, err := logMoments([][]float64{{1}}, []float64{1}); err == nil {
		t.Fatal("expected error for a single survivor")
	}
	if _, _, err := logMoments([][]float64{{1}, {2}}, []float64{0.5}); err == nil {
		t.Fatal("expected error for weight length mismatch")
	}
	if _, _, err := logMoments([][]float64{{1, 2}, {3}}, []float64{0.5, 0.5}); err == nil {
		t.Fatal("expected error for ragged samples")
	}
}

func TestConditionCovarianceFloorsAndFactorizes(t *testing.T) {
	sigma := mat.NewSymDense(3, nil)
	if err := conditionCovariance(sigma, 3); err != nil {
		t.Fatalf("condition zero matrix: %v", err)
	}
	for i := 0; i < 3; i++ {
		if sigma.At(i, i) < logVarFloor {
			t.Fatalf("diag %d below floor: %v", i, sigma.At(i, i))
		}
	}
	var chol mat.Cholesky
	if !chol.Factorize(sigma) {
		t.Fatal("conditioned matrix should admit a Cholesky factorization")
	}
}

func TestConditionCovarianceCapsRunawayVariance(t *testing.T) {
	sigma := mat.NewSymDense(2, nil)
	sigma.SetSym(0, 0, 400.0)
	sigma.SetSym(1, 1, 0.5)
	sigma.SetSym(0, 1, 1.0)

	if err := conditionCovariance(sigma, 2); err != nil {
		t.Fatalf("condition: %v", err)
	}
	if sigma.At(0, 0) > logVarCap+1e-9 {
		t.Fatalf("variance not capped: %v", sigma.At(0, 0))
	}
	// Scaling is uniform so the off-diagonal shrinks by the same factor.
	if math.Abs(sigma.At(0, 1)-1.0*logVarCap/400.0) > 1e-12 {
		t.Fatalf("off-diagonal not rescaled: %v", sigma.At(0, 1))
	}
}

func TestConditionCovarianceKeepsHealthyMatrix(t *testing.T) {
	sigma := mat.NewSymDense(2, nil)
	sigma.SetSym(0, 0, 0.04)
	sigma.SetSym(1, 1, 0.09)
	sigma.SetSym(0, 1, 0.01)

	if err := conditionCovariance(sigma, 2); err != nil {
		t.Fatalf("condition: %v", err)
	}
	if math.Abs(sigma.At(0, 0)-0.04) > 1e-12 || math.Abs(sigma.At(1, 1)-0.09) > 1e-12 {
		t.Fatalf("healthy matrix should be untouched, got diag %v %v", sigma.At(0, 0), sigma.At(1, 1))
	}
}
