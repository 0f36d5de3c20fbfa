// Package robustness reruns the full estimation loop across a grid of
// noise and missing-data conditions and aggregates per-cell success
// statistics. Every trial is independent: its own observation, its own
// engine, its own deterministic seeds.
package robustness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"golang.org/x/exp/rand"

	"kinetikos/internal/mcem"
	"kinetikos/internal/model"
	"kinetikos/internal/observe"
	"kinetikos/internal/pathway"
	"kinetikos/internal/sim"
)

// SweepConfig spans the robustness grid: every noise fraction is crossed
// with every missing probability, and each cell runs Trials independent
// estimations from the same prior guess.
type SweepConfig struct {
	NoiseKind      model.NoiseKind
	NoiseFractions []float64
	MissingProbs   []float64
	Trials         int
	Workers        int
	Seed           uint64
	Engine         mcem.EngineConfig
}

// DefaultSweepConfig mirrors the reference sweep: additive noise at
// 5/10/15/20% crossed with 0/10/20/30% missing data.
func DefaultSweepConfig() SweepConfig {
	engine, _ := mcem.ConfigForMode(mcem.ModeFast)
	return SweepConfig{
		NoiseKind:      model.NoiseAdditive,
		NoiseFractions: []float64{0.05, 0.10, 0.15, 0.20},
		MissingProbs:   []float64{0, 0.10, 0.20, 0.30},
		Trials:         5,
		Workers:        4,
		Seed:           1,
		Engine:         engine,
	}
}

func (c SweepConfig) validate() (SweepConfig, error) {
	if len(c.NoiseFractions) == 0 {
		return c, fmt.Errorf("sweep needs at least one noise fraction")
	}
	for _, f := range c.NoiseFractions {
		if err := (model.NoiseSpec{Kind: c.NoiseKind, Fraction: f}).Validate(); err != nil {
			return c, err
		}
	}
	if len(c.MissingProbs) == 0 {
		return c, fmt.Errorf("sweep needs at least one missing probability")
	}
	for _, p := range c.MissingProbs {
		if err := (model.MissingSpec{Probability: p}).Validate(); err != nil {
			return c, err
		}
	}
	if c.Trials <= 0 {
		return c, fmt.Errorf("trials must be > 0")
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return c, nil
}

// Report is the complete outcome of one sweep. Results are ordered by
// (noise fraction, missing probability, trial) regardless of worker
// scheduling; Summaries follow the same cell order.
type Report struct {
	SweepID   string
	Pathway   string
	Organism  string
	Results   []model.RobustnessResult
	Summaries []model.RobustnessSummary
}

// Run executes the sweep. Trials run on cfg.Workers goroutines with each
// engine single-threaded, so total parallelism stays at cfg.Workers. The
// first trial error aborts the whole sweep.
func Run(ctx context.Context, spec pathway.Spec, guess model.ParameterVector, cfg SweepConfig) (*Report, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	truth, err := spec.EstimatedTruth()
	if err != nil {
		return nil, err
	}
	simulator := sim.New(cfg.Engine.Sim)
	traj, err := simulator.Simulate(spec.Model, spec.Defaults.Values, spec.InitialState, spec.Grid)
	if err != nil {
		return nil, fmt.Errorf("true trajectory: %w", err)
	}

	type job struct {
		idx   int
		noise float64
		miss  float64
		trial int
	}
	type result struct {
		idx int
		res model.RobustnessResult
		err error
	}

	var plan []job
	for _, noise := range cfg.NoiseFractions {
		for _, miss := range cfg.MissingProbs {
			for trial := 0; trial < cfg.Trials; trial++ {
				plan = append(plan, job{idx: len(plan), noise: noise, miss: miss, trial: trial})
			}
		}
	}

	sweepID := uuid.NewString()
	jobs := make(chan job)
	results := make(chan result, len(plan))

	workerCount := cfg.Workers
	if workerCount > len(plan) {
		workerCount = len(plan)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				res, err := runTrial(ctx, spec, traj, truth, guess, cfg, sweepID, j.noise, j.miss, j.trial, j.idx)
				results <- result{idx: j.idx, res: res, err: err}
			}
		}()
	}

	for _, j := range plan {
		jobs <- j
	}
	close(jobs)

	wg.Wait()
	close(results)

	ordered := make([]model.RobustnessResult, len(plan))
	for r := range results {
		if r.err != nil {
			return nil, r.err
		}
		ordered[r.idx] = r.res
	}

	report := &Report{
		SweepID:  sweepID,
		Pathway:  spec.Pathway,
		Organism: spec.Organism,
		Results:  ordered,
	}
	for _, noise := range cfg.NoiseFractions {
		for _, miss := range cfg.MissingProbs {
			report.Summaries = append(report.Summaries, summarize(noise, miss, cell(ordered, noise, miss)))
		}
	}
	return report, nil
}

// runTrial generates one fresh observation and runs one full estimation
// against it. Seeds derive from the trial's position in the plan, so the
// sweep is reproducible for a fixed config.
func runTrial(ctx context.Context, spec pathway.Spec, traj model.Trajectory, truth, guess model.ParameterVector, cfg SweepConfig, sweepID string, noise, miss float64, trial, idx int) (model.RobustnessResult, error) {
	obsSeed := cfg.Seed + uint64(2*idx)
	engSeed := cfg.Seed + uint64(2*idx) + 1

	obs, err := observe.Observe(traj, spec.Model.Species(), spec.Observed,
		model.NoiseSpec{Kind: cfg.NoiseKind, Fraction: noise},
		model.MissingSpec{Probability: miss},
		rand.New(rand.NewSource(obsSeed)))
	if err != nil {
		return model.RobustnessResult{}, err
	}

	engCfg := cfg.Engine
	engCfg.Seed = engSeed
	engCfg.Workers = 1
	eng, err := mcem.New(spec, obs, guess, engCfg)
	if err != nil {
		return model.RobustnessResult{}, err
	}

	start := time.Now()
	out, err := eng.Run(ctx)
	if err != nil {
		return model.RobustnessResult{}, err
	}
	relErr, err := out.Estimate.MeanRelativeError(truth)
	if err != nil {
		return model.RobustnessResult{}, err
	}

	return model.RobustnessResult{
		ID:            uuid.NewString(),
		SweepID:       sweepID,
		NoiseFraction: noise,
		MissingProb:   miss,
		Trial:         trial,
		State:         out.State,
		Estimate:      out.Estimate,
		MeanRelError:  relErr,
		ElapsedMS:     time.Since(start).Milliseconds(),
	}, nil
}

func cell(results []model.RobustnessResult, noise, miss float64) []model.RobustnessResult {
	var out []model.RobustnessResult
	for _, r := range results {
		if r.NoiseFraction == noise && r.MissingProb == miss {
			out = append(out, r)
		}
	}
	return out
}

// summarize aggregates one cell. Error statistics cover converged trials
// only; a cell with no convergences keeps zero statistics rather than NaN.
func summarize(noise, miss float64, trials []model.RobustnessResult) model.RobustnessSummary {
	s := model.RobustnessSummary{
		NoiseFraction: noise,
		MissingProb:   miss,
		Trials:        len(trials),
	}
	var errs, elapsed []float64
	for _, tr := range trials {
		elapsed = append(elapsed, float64(tr.ElapsedMS))
		if tr.State == model.StateConverged {
			s.Converged++
			errs = append(errs, tr.MeanRelError)
		}
	}
	if s.Trials > 0 {
		s.SuccessRate = float64(s.Converged) / float64(s.Trials)
	}
	if len(errs) > 0 {
		s.MeanRelError, _ = stats.Mean(errs)
		s.MedianRelError, _ = stats.Median(errs)
		s.StdRelError, _ = stats.StandardDeviation(errs)
	}
	if len(elapsed) > 0 {
		s.MedianElapsedMS, _ = stats.Median(elapsed)
	}
	return s
}
