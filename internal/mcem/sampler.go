package mcem

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// proposal is the log-space Gaussian importance distribution over the
// estimated parameters. Candidates are exponentiated draws, so sampled
// parameter vectors are strictly positive by construction.
type proposal struct {
	dim   int
	mu    []float64
	sigma *mat.SymDense
}

func newProposal(logGuess []float64, sd float64) *proposal {
	dim := len(logGuess)
	sigma := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		sigma.SetSym(i, i, sd*sd)
	}
	return &proposal{
		dim:   dim,
		mu:    append([]float64(nil), logGuess...),
		sigma: sigma,
	}
}

// draw samples n log-space candidates. All randomness flows through src
// on the calling goroutine, so the stream does not depend on how many
// workers later score the candidates.
func (p *proposal) draw(src rand.Source, n int) ([][]float64, error) {
	normal, ok := distmv.NewNormal(p.mu, p.sigma, src)
	if !ok {
		if err := conditionCovariance(p.sigma, p.dim); err != nil {
			return nil, fmt.Errorf("proposal covariance: %w", err)
		}
		if normal, ok = distmv.NewNormal(p.mu, p.sigma, src); !ok {
			return nil, fmt.Errorf("proposal covariance not positive definite after conditioning")
		}
	}
	zs := make([][]float64, n)
	for k := range zs {
		zs[k] = normal.Rand(nil)
	}
	return zs, nil
}

// set replaces the proposal moments with the optimizer's update.
func (p *proposal) set(mu []float64, sigma *mat.SymDense) {
	copy(p.mu, mu)
	p.sigma.CopySym(sigma)
}

// widen scales the covariance, spreading the next batch of candidates.
func (p *proposal) widen(factor float64) {
	for i := 0; i < p.dim; i++ {
		for j := i; j < p.dim; j++ {
			p.sigma.SetSym(i, j, factor*p.sigma.At(i, j))
		}
	}
}

func (p *proposal) covDiag() []float64 {
	diag := make([]float64, p.dim)
	for i := 0; i < p.dim; i++ {
		diag[i] = p.sigma.At(i, i)
	}
	return diag
}

func (p *proposal) covMatrix() [][]float64 {
	out := make([][]float64, p.dim)
	for i := 0; i < p.dim; i++ {
		out[i] = make([]float64, p.dim)
		for j := 0; j < p.dim; j++ {
			out[i][j] = p.sigma.At(i, j)
		}
	}
	return out
}

// normalizeLogWeights turns raw log-likelihoods into normalized
// importance weights. Normalization subtracts the log-sum-exp, so any
// constant shift in the inputs cancels. Returns the weights, the
// log-sum-exp and the effective sample size 1/sum(w^2).
func normalizeLogWeights(lws []float64) ([]float64, float64, float64) {
	logZ := floats.LogSumExp(lws)
	weights := make([]float64, len(lws))
	sumSq := 0.0
	for i, lw := range lws {
		w := math.Exp(lw - logZ)
		weights[i] = w
		sumSq += w * w
	}
	ess := 0.0
	if sumSq > 0 {
		ess = 1 / sumSq
	}
	return weights, logZ, ess
}

func expVec(z []float64) []float64 {
	out := make([]float64, len(z))
	for i, v := range z {
		out[i] = math.Exp(v)
	}
	return out
}

func logVec(theta []float64) []float64 {
	out := make([]float64, len(theta))
	for i, v := range theta {
		out[i] = math.Log(v)
	}
	return out
}
