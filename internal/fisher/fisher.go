// Package fisher ranks parameter identifiability from the curvature of
// the log-likelihood surface at a converged estimate. The observed
// Fisher information is the negated Hessian, estimated by central finite
// differences of the same simulate-and-score path the estimator uses.
package fisher

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"kinetikos/internal/model"
	"kinetikos/internal/observe"
	"kinetikos/internal/pathway"
	"kinetikos/internal/sim"
)

// Config bounds the finite-difference evaluation.
type Config struct {
	// RelStep is the differencing step per parameter as a fraction of
	// its magnitude. Must stay below 0.5 so negative shifts keep
	// parameters positive.
	RelStep float64

	// MaxShrink bounds how many times a step is halved when a perturbed
	// evaluation hits an integration failure.
	MaxShrink int

	// EigenFloor separates identifiable from flat directions: eigenvalues
	// below EigenFloor times the largest eigenvalue are reported as null
	// directions and floored when inverting for the CRLB.
	EigenFloor float64

	Sim sim.Config
}

// DefaultConfig returns the standard analysis settings. The step is
// coarse enough that adaptive-integrator noise stays below the stencil
// truncation error.
func DefaultConfig() Config {
	return Config{
		RelStep:    1e-2,
		MaxShrink:  6,
		EigenFloor: 1e-6,
		Sim:        sim.DefaultConfig(),
	}
}

func (c Config) validate() (Config, error) {
	if !(c.RelStep > 0) || c.RelStep >= 0.5 {
		return c, fmt.Errorf("relative step must be in (0, 0.5), got %v", c.RelStep)
	}
	if c.MaxShrink < 0 {
		return c, fmt.Errorf("max shrink count must be >= 0")
	}
	if !(c.EigenFloor > 0) || c.EigenFloor >= 1 {
		return c, fmt.Errorf("eigenvalue floor must be in (0, 1), got %v", c.EigenFloor)
	}
	return c, nil
}

// Analysis is the identifiability report for one estimate.
type Analysis struct {
	Names           []string
	Matrix          [][]float64
	Eigenvalues     []float64
	ConditionNumber float64
	Rankings        []model.IdentifiabilityRank
	NullDirections  []model.NullDirection
}

// Analyze builds the Fisher information matrix at the estimate and ranks
// every estimated parameter by its Cramér-Rao relative uncertainty bound.
func Analyze(spec pathway.Spec, obs model.Observation, estimate model.ParameterVector, cfg Config) (Analysis, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return Analysis{}, err
	}
	if estimate.Len() != len(spec.EstimatedNames) {
		return Analysis{}, fmt.Errorf("estimate has %d parameters, pathway estimates %d", estimate.Len(), len(spec.EstimatedNames))
	}
	for i, name := range spec.EstimatedNames {
		if estimate.Names[i] != name {
			return Analysis{}, fmt.Errorf("estimate parameter %d is %s, want %s", i, estimate.Names[i], name)
		}
	}
	if !estimate.Positive() {
		return Analysis{}, fmt.Errorf("estimate must be strictly positive")
	}
	idx, err := spec.EstimatedIndices()
	if err != nil {
		return Analysis{}, err
	}

	ev := &evaluator{
		cfg:  cfg,
		sim:  sim.New(cfg.Sim),
		spec: spec,
		obs:  obs,
		base: append([]float64(nil), spec.Defaults.Values...),
		idx:  idx,
	}
	theta := append([]float64(nil), estimate.Values...)
	p := len(theta)

	center, err := ev.logLik(theta, -1, 0, -1, 0)
	if err != nil {
		return Analysis{}, fmt.Errorf("log-likelihood at the estimate: %w", err)
	}

	hess := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		d, err := ev.secondDiag(theta, i, center)
		if err != nil {
			return Analysis{}, fmt.Errorf("curvature of %s: %w", estimate.Names[i], err)
		}
		hess.SetSym(i, i, d)
		for j := i + 1; j < p; j++ {
			x, err := ev.secondCross(theta, i, j)
			if err != nil {
				return Analysis{}, fmt.Errorf("cross curvature of %s and %s: %w", estimate.Names[i], estimate.Names[j], err)
			}
			hess.SetSym(i, j, x)
		}
	}

	// Information is the negated log-likelihood Hessian.
	fim := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			fim.SetSym(i, j, -hess.At(i, j))
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(fim, true) {
		return Analysis{}, fmt.Errorf("eigendecomposition of the information matrix failed")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	lambdaMax := vals[p-1]
	if !(lambdaMax > 0) {
		return Analysis{}, fmt.Errorf("information matrix has no positive curvature (largest eigenvalue %v)", lambdaMax)
	}
	thresh := cfg.EigenFloor * lambdaMax

	// CRLB from the floored inverse: flat directions contribute a large
	// finite variance instead of an infinite one, so scores and records
	// stay finite.
	crlb := make([]float64, p)
	for j := 0; j < p; j++ {
		sum := 0.0
		for i := 0; i < p; i++ {
			v := vecs.At(j, i)
			sum += v * v / math.Max(vals[i], thresh)
		}
		crlb[j] = sum
	}

	rankings := make([]model.IdentifiabilityRank, p)
	for j := 0; j < p; j++ {
		rankings[j] = model.IdentifiabilityRank{
			Name:  estimate.Names[j],
			CRLB:  crlb[j],
			Score: math.Sqrt(crlb[j]) / math.Abs(theta[j]),
		}
	}
	sort.SliceStable(rankings, func(a, b int) bool { return rankings[a].Score < rankings[b].Score })
	for i := range rankings {
		rankings[i].Rank = i + 1
	}

	var nulls []model.NullDirection
	for i := 0; i < p; i++ {
		if vals[i] >= thresh {
			continue
		}
		comps := make([]float64, p)
		for j := 0; j < p; j++ {
			comps[j] = vecs.At(j, i)
		}
		nulls = append(nulls, model.NullDirection{Eigenvalue: vals[i], Components: comps})
	}

	matrix := make([][]float64, p)
	for i := 0; i < p; i++ {
		matrix[i] = make([]float64, p)
		for j := 0; j < p; j++ {
			matrix[i][j] = fim.At(i, j)
		}
	}

	return Analysis{
		Names:           append([]string(nil), estimate.Names...),
		Matrix:          matrix,
		Eigenvalues:     vals,
		ConditionNumber: lambdaMax / math.Max(vals[0], thresh),
		Rankings:        rankings,
		NullDirections:  nulls,
	}, nil
}

type evaluator struct {
	cfg  Config
	sim  *sim.Simulator
	spec pathway.Spec
	obs  model.Observation
	base []float64
	idx  []int
}

// logLik evaluates the observation log-density at theta with up to two
// entries shifted. Pass i < 0 (or j < 0) to skip a shift.
func (e *evaluator) logLik(theta []float64, i int, di float64, j int, dj float64) (float64, error) {
	full := append([]float64(nil), e.base...)
	for k, src := range e.idx {
		full[src] = theta[k]
	}
	if i >= 0 {
		full[e.idx[i]] = theta[i] + di
	}
	if j >= 0 {
		full[e.idx[j]] = theta[j] + dj
	}
	traj, err := e.sim.Simulate(e.spec.Model, full, e.spec.InitialState, e.obs.Times)
	if err != nil {
		return 0, err
	}
	lp, points := observe.LogDensity(e.obs, traj)
	if points == 0 {
		return 0, fmt.Errorf("observation has no scored points")
	}
	if math.IsNaN(lp) || math.IsInf(lp, 0) {
		return 0, fmt.Errorf("log-likelihood not finite")
	}
	return lp, nil
}

// secondDiag estimates d2/dtheta_i2 with the 3-point stencil, halving the
// step on integration failures.
func (e *evaluator) secondDiag(theta []float64, i int, center float64) (float64, error) {
	h := e.cfg.RelStep * math.Abs(theta[i])
	for try := 0; ; try++ {
		plus, err := e.logLik(theta, i, h, -1, 0)
		if err == nil {
			var minus float64
			minus, err = e.logLik(theta, i, -h, -1, 0)
			if err == nil {
				return (plus - 2*center + minus) / (h * h), nil
			}
		}
		if try >= e.cfg.MaxShrink || !retryable(err) {
			return 0, err
		}
		h /= 2
	}
}

// secondCross estimates d2/dtheta_i dtheta_j with the 4-point stencil.
func (e *evaluator) secondCross(theta []float64, i, j int) (float64, error) {
	hi := e.cfg.RelStep * math.Abs(theta[i])
	hj := e.cfg.RelStep * math.Abs(theta[j])
	for try := 0; ; try++ {
		corners := [4]struct{ si, sj float64 }{
			{hi, hj}, {hi, -hj}, {-hi, hj}, {-hi, -hj},
		}
		var f [4]float64
		var err error
		for k, c := range corners {
			f[k], err = e.logLik(theta, i, c.si, j, c.sj)
			if err != nil {
				break
			}
		}
		if err == nil {
			return (f[0] - f[1] - f[2] + f[3]) / (4 * hi * hj), nil
		}
		if try >= e.cfg.MaxShrink || !retryable(err) {
			return 0, err
		}
		hi /= 2
		hj /= 2
	}
}

// retryable reports whether a failed evaluation may succeed with a
// smaller step. Only integration blow-ups qualify; dimension and shape
// errors never do.
func retryable(err error) bool {
	var ifail *sim.IntegrationFailure
	return errors.As(err, &ifail)
}
