// Package mcem estimates kinetic parameters by Monte Carlo
// expectation-maximization. Each iteration draws candidates from a
// log-space Gaussian proposal, scores them against the observation by
// importance weight, and refits the proposal to the weighted survivors.
package mcem

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/exp/rand"

	"kinetikos/internal/model"
	"kinetikos/internal/observe"
	"kinetikos/internal/pathway"
	"kinetikos/internal/sim"
)

// Engine runs one estimation problem to a terminal state.
type Engine struct {
	cfg   EngineConfig
	spec  pathway.Spec
	obs   model.Observation
	guess model.ParameterVector
	sim   *sim.Simulator
	rng   *rand.Rand
	idx   []int
	base  []float64
	names []string
}

// Result is the terminal outcome of a run. Iterations holds the full
// per-iteration history regardless of how the run ended.
type Result struct {
	State         model.RunState
	Estimate      model.ParameterVector
	LogCovariance [][]float64
	FinalLogLik   float64
	Iterations    []model.IterationRecord
	TotalSims     int64
	TotalFailures int64
}

func New(spec pathway.Spec, obs model.Observation, guess model.ParameterVector, cfg EngineConfig) (*Engine, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	if len(spec.EstimatedNames) == 0 {
		return nil, fmt.Errorf("pathway %s has no estimated parameters", spec.Pathway)
	}
	if guess.Len() != len(spec.EstimatedNames) {
		return nil, fmt.Errorf("guess has %d parameters, estimating %d", guess.Len(), len(spec.EstimatedNames))
	}
	for i, name := range spec.EstimatedNames {
		if guess.Names[i] != name {
			return nil, fmt.Errorf("guess parameter %d is %s, want %s", i, guess.Names[i], name)
		}
	}
	idx, err := spec.EstimatedIndices()
	if err != nil {
		return nil, err
	}
	if len(obs.Times) < 2 {
		return nil, fmt.Errorf("observation needs at least 2 time points, got %d", len(obs.Times))
	}
	for i := 1; i < len(obs.Times); i++ {
		if !(obs.Times[i] > obs.Times[i-1]) {
			return nil, fmt.Errorf("observation times not strictly increasing at %d", i)
		}
	}

	return &Engine{
		cfg:   cfg,
		spec:  spec,
		obs:   obs,
		guess: guess.Clone(),
		sim:   sim.New(cfg.Sim),
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		idx:   idx,
		base:  append([]float64(nil), spec.Defaults.Values...),
		names: append([]string(nil), spec.EstimatedNames...),
	}, nil
}

// Run iterates until convergence, failure or budget exhaustion. On
// context cancellation the partial history is returned along with the
// context's error.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	prop := newProposal(logVec(e.guess.Values), e.cfg.InitialLogSD)
	monitor, err := NewMonitor(e.cfg.TolMeanRel, e.cfg.TolLogLik, e.cfg.ConvergeWindow, e.cfg.MaxIterations)
	if err != nil {
		return Result{}, err
	}

	estimate := e.guess.Clone()
	prevLL := 0.0
	records := make([]model.IterationRecord, 0, e.cfg.MaxIterations)
	consecDegenerate := 0
	var totalSims, totalFailures int64

	for it := 1; it <= e.cfg.MaxIterations; it++ {
		if err := ctx.Err(); err != nil {
			return e.result(model.StateRunning, estimate, prop, prevLL, records, totalSims, totalFailures), err
		}
		start := time.Now()

		zs, err := prop.draw(e.rng, e.cfg.SampleCount)
		if err != nil {
			return e.result(monitor.MarkFailed(), estimate, prop, prevLL, records, totalSims, totalFailures), err
		}

		outcomes, err := e.scoreCandidates(ctx, zs)
		if err != nil {
			return e.result(model.StateRunning, estimate, prop, prevLL, records, totalSims, totalFailures), err
		}
		totalSims += int64(len(zs))

		var (
			lws     []float64
			zsurv   [][]float64
			survIdx []int
		)
		for i, out := range outcomes {
			if out.ok {
				lws = append(lws, out.logw)
				zsurv = append(zsurv, zs[i])
				survIdx = append(survIdx, i)
			}
		}
		failures := len(zs) - len(zsurv)
		totalFailures += int64(failures)

		rec := model.IterationRecord{
			Iteration: it,
			Survivors: len(zsurv),
			Failures:  failures,
		}

		if len(zsurv) >= 2 {
			weights, logZ, ess := normalizeLogWeights(lws)
			mu, sigma, mErr := logMoments(zsurv, weights)
			if mErr == nil {
				mErr = conditionCovariance(sigma, prop.dim)
			}
			if mErr == nil {
				meanChange := 0.0
				for i, v := range mu {
					if d := math.Abs(v - prop.mu[i]); d > meanChange {
						meanChange = d
					}
				}
				prop.set(mu, sigma)

				ll := logZ - math.Log(float64(e.cfg.SampleCount))
				llChange := math.Abs(ll-prevLL) / math.Max(1, math.Abs(prevLL))

				if ess < e.cfg.ESSFraction*float64(e.cfg.SampleCount) {
					prop.widen(e.cfg.WidenFactor)
					rec.Widened = true
				}

				est, vErr := model.NewParameterVector(e.names, expVec(mu))
				if vErr != nil {
					return e.result(monitor.MarkFailed(), estimate, prop, prevLL, records, totalSims, totalFailures), vErr
				}
				estimate = est
				prevLL = ll

				rec.Estimate = estimate.Clone()
				rec.CovDiag = prop.covDiag()
				rec.LogLikelihood = ll
				rec.MeanChange = meanChange
				rec.LogLikChange = llChange
				rec.ESS = ess
				rec.Population = e.topCandidates(zsurv, weights, survIdx)
				rec.ElapsedMS = time.Since(start).Milliseconds()
				records = append(records, rec)

				consecDegenerate = 0
				state := monitor.Observe(meanChange, llChange, false)
				if state != model.StateRunning {
					return e.result(state, estimate, prop, prevLL, records, totalSims, totalFailures), nil
				}
				continue
			}
		}

		// Degenerate iteration: no usable support. Widen once, keep
		// the previous estimate, and fail after two in a row.
		prop.widen(e.cfg.WidenFactor)
		consecDegenerate++
		rec.Degenerate = true
		rec.Widened = true
		rec.Estimate = estimate.Clone()
		rec.CovDiag = prop.covDiag()
		rec.LogLikelihood = prevLL
		rec.ElapsedMS = time.Since(start).Milliseconds()
		records = append(records, rec)

		state := monitor.Observe(0, 0, true)
		if consecDegenerate >= 2 {
			state = monitor.MarkFailed()
		}
		if state != model.StateRunning {
			return e.result(state, estimate, prop, prevLL, records, totalSims, totalFailures), nil
		}
	}

	return e.result(monitor.State(), estimate, prop, prevLL, records, totalSims, totalFailures), nil
}

type candidateOutcome struct {
	logw   float64
	points int
	ok     bool
}

// scoreCandidates simulates and scores every candidate on a bounded
// worker pool. Integration failures are absorbed as dead candidates;
// anything else aborts the run. Results keep candidate order.
func (e *Engine) scoreCandidates(ctx context.Context, zs [][]float64) ([]candidateOutcome, error) {
	type job struct {
		idx int
		z   []float64
	}
	type result struct {
		idx int
		out candidateOutcome
		err error
	}

	jobs := make(chan job)
	results := make(chan result, len(zs))

	workerCount := e.cfg.Workers
	if workerCount > len(zs) {
		workerCount = len(zs)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			full := append([]float64(nil), e.base...)
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}

				for i, k := range e.idx {
					full[k] = math.Exp(j.z[i])
				}
				traj, err := e.sim.Simulate(e.spec.Model, full, e.spec.InitialState, e.obs.Times)
				if err != nil {
					var fail *sim.IntegrationFailure
					if errors.As(err, &fail) {
						results <- result{idx: j.idx}
						continue
					}
					results <- result{idx: j.idx, err: err}
					continue
				}

				logw, points := observe.LogDensity(e.obs, traj)
				ok := points > 0 && !math.IsNaN(logw) && !math.IsInf(logw, 0)
				results <- result{idx: j.idx, out: candidateOutcome{logw: logw, points: points, ok: ok}}
			}
		}()
	}

	for i := range zs {
		jobs <- job{idx: i, z: zs[i]}
	}
	close(jobs)

	wg.Wait()
	close(results)

	outs := make([]candidateOutcome, len(zs))
	for res := range results {
		if res.err != nil {
			return nil, res.err
		}
		outs[res.idx] = res.out
	}
	return outs, nil
}

// topCandidates keeps the heaviest candidates for the iteration record,
// ties broken by draw order.
func (e *Engine) topCandidates(zsurv [][]float64, weights []float64, survIdx []int) []model.SampleWeight {
	if e.cfg.RecordTopK == 0 {
		return nil
	}
	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if weights[order[a]] == weights[order[b]] {
			return survIdx[order[a]] < survIdx[order[b]]
		}
		return weights[order[a]] > weights[order[b]]
	})

	k := e.cfg.RecordTopK
	if k > len(order) {
		k = len(order)
	}
	top := make([]model.SampleWeight, 0, k)
	for _, o := range order[:k] {
		top = append(top, model.SampleWeight{
			Params: model.ParameterVector{
				Names:  append([]string(nil), e.names...),
				Values: expVec(zsurv[o]),
			},
			Weight: weights[o],
		})
	}
	return top
}

func (e *Engine) result(state model.RunState, estimate model.ParameterVector, prop *proposal, ll float64, records []model.IterationRecord, sims, failures int64) Result {
	return Result{
		State:         state,
		Estimate:      estimate.Clone(),
		LogCovariance: prop.covMatrix(),
		FinalLogLik:   ll,
		Iterations:    records,
		TotalSims:     sims,
		TotalFailures: failures,
	}
}
