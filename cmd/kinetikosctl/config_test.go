package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	kinapi "kinetikos/pkg/kinetikos"
)

func TestLoadEstimateRequestFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run_config.json")
	payload := map[string]any{
		"run_id":         "cfg-run",
		"pathway":        "glycolysis",
		"organism":       "ecoli",
		"mode":           "fast",
		"seed":           77,
		"workers":        3,
		"noise_kind":     "multiplicative",
		"noise_fraction": 0.10,
		"missing_prob":   0.2,
		"perturb_frac":   0.3,
		"max_iterations": 40,
		"sample_count":   600,
		"rtol":           1e-5,
		"atol":           1e-7,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	req, err := loadEstimateRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load estimate request: %v", err)
	}
	if req.RunID != "cfg-run" || req.Pathway != "glycolysis" || req.Organism != "ecoli" || req.Mode != "fast" {
		t.Fatalf("unexpected identity fields: %+v", req)
	}
	if req.Seed != 77 || req.Workers != 3 {
		t.Fatalf("unexpected seed/workers: %+v", req)
	}
	if req.NoiseKind != "multiplicative" || req.NoiseFraction != 0.10 || req.MissingProb != 0.2 {
		t.Fatalf("unexpected observation fields: %+v", req)
	}
	if req.PerturbFrac != 0.3 || req.MaxIterations != 40 || req.SampleCount != 600 {
		t.Fatalf("unexpected engine fields: %+v", req)
	}
	if req.RTol != 1e-5 || req.ATol != 1e-7 {
		t.Fatalf("unexpected integrator fields: %+v", req)
	}
}

func TestLoadEstimateRequestFromConfigIgnoresUnknownKeys(t *testing.T) {
	// A stored config.json artifact carries engine internals the request
	// does not expose; they must not break replay.
	path := filepath.Join(t.TempDir(), "artifact_config.json")
	payload := map[string]any{
		"run_id":          "replayed",
		"pathway":         "decay",
		"mode":            "test",
		"seed":            7,
		"initial_log_sd":  0.2,
		"tol_mean_rel":    0.01,
		"tol_log_lik":     0.05,
		"converge_window": 2,
		"ess_fraction":    0.05,
		"widen_factor":    2.0,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	req, err := loadEstimateRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load estimate request: %v", err)
	}
	if req.RunID != "replayed" || req.Pathway != "decay" || req.Mode != "test" || req.Seed != 7 {
		t.Fatalf("unexpected fields: %+v", req)
	}
}

func TestOverrideFromFlagsAppliesOnlySetFlags(t *testing.T) {
	req, err := loadOrDefaultEstimateRequest("")
	if err != nil {
		t.Fatalf("default request: %v", err)
	}
	req.Pathway = "tca"
	req.Seed = 5
	req.NoiseFraction = 0.05

	overrideFromFlags(&req, map[string]bool{"seed": true, "noise-frac": true}, map[string]any{
		"pathway":    "glycolysis",
		"seed":       int64(99),
		"noise-frac": 0.15,
	})

	if req.Pathway != "tca" {
		t.Fatalf("unset pathway flag must not override config, got %s", req.Pathway)
	}
	if req.Seed != 99 {
		t.Fatalf("expected seed override, got %d", req.Seed)
	}
	if req.NoiseFraction != 0.15 {
		t.Fatalf("expected noise fraction override, got %v", req.NoiseFraction)
	}
}

func TestOverrideFromFlagsDefaultsPathway(t *testing.T) {
	var req kinapi.EstimateRequest
	overrideFromFlags(&req, map[string]bool{}, map[string]any{})
	if req.Pathway != "decay" {
		t.Fatalf("expected decay default, got %s", req.Pathway)
	}
}
