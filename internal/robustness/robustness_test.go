package robustness

import (
	"context"
	"math"
	"testing"

	"kinetikos/internal/mcem"
	"kinetikos/internal/model"
	"kinetikos/internal/pathway"
	"kinetikos/internal/sim"
)

func decaySweepInputs(t *testing.T) (pathway.Spec, model.ParameterVector) {
	t.Helper()
	spec, err := pathway.NewSpec("decay", "")
	if err != nil {
		t.Fatalf("decay spec: %v", err)
	}
	guess, err := model.NewParameterVector([]string{"k"}, []float64{1.3})
	if err != nil {
		t.Fatalf("guess: %v", err)
	}
	return spec, guess
}

func smallSweepConfig(noise, missing []float64, trials, workers int) SweepConfig {
	engine, err := mcem.ConfigForMode(mcem.ModeTest)
	if err != nil {
		panic(err)
	}
	engine.Sim = sim.DefaultConfig()
	return SweepConfig{
		NoiseKind:      model.NoiseAdditive,
		NoiseFractions: noise,
		MissingProbs:   missing,
		Trials:         trials,
		Workers:        workers,
		Seed:           5,
		Engine:         engine,
	}
}

func TestSweepDecayGridShapeAndOrdering(t *testing.T) {
	spec, guess := decaySweepInputs(t)
	cfg := smallSweepConfig([]float64{0.05}, []float64{0.10, 0.30}, 3, 4)

	report, err := Run(context.Background(), spec, guess, cfg)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if report.SweepID == "" {
		t.Fatal("empty sweep id")
	}
	if report.Pathway != "decay" {
		t.Fatalf("pathway: got %s", report.Pathway)
	}
	if len(report.Results) != 6 {
		t.Fatalf("results: got %d want 6", len(report.Results))
	}

	seen := make(map[string]bool)
	for i, r := range report.Results {
		wantMiss := 0.10
		if i >= 3 {
			wantMiss = 0.30
		}
		if r.NoiseFraction != 0.05 || r.MissingProb != wantMiss || r.Trial != i%3 {
			t.Fatalf("result %d out of order: noise %v missing %v trial %d", i, r.NoiseFraction, r.MissingProb, r.Trial)
		}
		if r.SweepID != report.SweepID {
			t.Fatalf("result %d carries sweep id %s", i, r.SweepID)
		}
		if r.ID == "" || seen[r.ID] {
			t.Fatalf("result %d has duplicate or empty id", i)
		}
		seen[r.ID] = true
		if !r.Estimate.Positive() {
			t.Fatalf("result %d estimate not positive: %v", i, r.Estimate.Values)
		}
		if r.State == model.StateConverged && r.MeanRelError > 0.15 {
			t.Fatalf("result %d converged with %v relative error", i, r.MeanRelError)
		}
	}

	if len(report.Summaries) != 2 {
		t.Fatalf("summaries: got %d want 2", len(report.Summaries))
	}
	light, heavy := report.Summaries[0], report.Summaries[1]
	if light.MissingProb != 0.10 || heavy.MissingProb != 0.30 {
		t.Fatalf("summary order: %v then %v", light.MissingProb, heavy.MissingProb)
	}
	if light.Trials != 3 || heavy.Trials != 3 {
		t.Fatalf("summary trial counts: %d and %d", light.Trials, heavy.Trials)
	}
	// More missing data can only hurt: heavier masking never succeeds
	// more often than lighter masking on the same problem.
	if heavy.SuccessRate > light.SuccessRate {
		t.Fatalf("success at 30%% missing (%v) exceeds 10%% missing (%v)", heavy.SuccessRate, light.SuccessRate)
	}
	if light.SuccessRate < 0.5 {
		t.Fatalf("decay under light masking should mostly converge, success %v", light.SuccessRate)
	}
}

func TestSweepDeterministicAcrossWorkerCounts(t *testing.T) {
	spec, guess := decaySweepInputs(t)

	run := func(workers int) *Report {
		cfg := smallSweepConfig([]float64{0.05}, []float64{0.10}, 2, workers)
		report, err := Run(context.Background(), spec, guess, cfg)
		if err != nil {
			t.Fatalf("sweep (%d workers): %v", workers, err)
		}
		return report
	}

	serial := run(1)
	parallel := run(4)

	if len(serial.Results) != len(parallel.Results) {
		t.Fatalf("result counts diverged: %d vs %d", len(serial.Results), len(parallel.Results))
	}
	for i := range serial.Results {
		a, b := serial.Results[i], parallel.Results[i]
		if a.State != b.State {
			t.Fatalf("trial %d state diverged: %s vs %s", i, a.State, b.State)
		}
		if a.MeanRelError != b.MeanRelError {
			t.Fatalf("trial %d error diverged: %v vs %v", i, a.MeanRelError, b.MeanRelError)
		}
		for j := range a.Estimate.Values {
			if a.Estimate.Values[j] != b.Estimate.Values[j] {
				t.Fatalf("trial %d estimate diverged at %d", i, j)
			}
		}
	}
}

func TestSweepHonorsCancellation(t *testing.T) {
	spec, guess := decaySweepInputs(t)
	cfg := smallSweepConfig([]float64{0.05}, []float64{0.10}, 2, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, spec, guess, cfg); err == nil {
		t.Fatal("expected a context error")
	}
}

func TestSweepConfigValidation(t *testing.T) {
	spec, guess := decaySweepInputs(t)
	ctx := context.Background()

	cfg := smallSweepConfig(nil, []float64{0.1}, 1, 1)
	if _, err := Run(ctx, spec, guess, cfg); err == nil {
		t.Fatal("expected error for empty noise fractions")
	}

	cfg = smallSweepConfig([]float64{0}, []float64{0.1}, 1, 1)
	if _, err := Run(ctx, spec, guess, cfg); err == nil {
		t.Fatal("expected error for zero noise fraction")
	}

	cfg = smallSweepConfig([]float64{0.05}, []float64{1.5}, 1, 1)
	if _, err := Run(ctx, spec, guess, cfg); err == nil {
		t.Fatal("expected error for missing probability above 1")
	}

	cfg = smallSweepConfig([]float64{0.05}, []float64{0.1}, 0, 1)
	if _, err := Run(ctx, spec, guess, cfg); err == nil {
		t.Fatal("expected error for zero trials")
	}

	cfg = smallSweepConfig([]float64{0.05}, []float64{0.1}, 1, 1)
	cfg.NoiseKind = "poisson"
	if _, err := Run(ctx, spec, guess, cfg); err == nil {
		t.Fatal("expected error for unknown noise kind")
	}
}

func TestSummarizeCell(t *testing.T) {
	trials := []model.RobustnessResult{
		{State: model.StateConverged, MeanRelError: 0.02, ElapsedMS: 10},
		{State: model.StateConverged, MeanRelError: 0.04, ElapsedMS: 30},
		{State: model.StateFailed, MeanRelError: 0.50, ElapsedMS: 20},
	}
	s := summarize(0.10, 0.20, trials)

	if s.Trials != 3 || s.Converged != 2 {
		t.Fatalf("counts: trials %d converged %d", s.Trials, s.Converged)
	}
	if math.Abs(s.SuccessRate-2.0/3.0) > 1e-12 {
		t.Fatalf("success rate: %v", s.SuccessRate)
	}
	// Failed trials stay out of the error statistics.
	if math.Abs(s.MeanRelError-0.03) > 1e-9 || math.Abs(s.MedianRelError-0.03) > 1e-9 {
		t.Fatalf("error stats: mean %v median %v", s.MeanRelError, s.MedianRelError)
	}
	if math.Abs(s.StdRelError-0.01) > 1e-9 {
		t.Fatalf("error spread: %v", s.StdRelError)
	}
	if s.MedianElapsedMS != 20 {
		t.Fatalf("median elapsed: %v", s.MedianElapsedMS)
	}

	empty := summarize(0.05, 0, nil)
	if empty.Trials != 0 || empty.SuccessRate != 0 || empty.MeanRelError != 0 {
		t.Fatalf("empty cell should stay zeroed: %+v", empty)
	}
}
