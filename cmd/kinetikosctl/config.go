package main

import (
	"encoding/json"
	"fmt"
	"os"

	kinapi "kinetikos/pkg/kinetikos"
)

// loadEstimateRequestFromConfig reads a flat JSON document using the same
// keys a run's config.json artifact carries, so stored configs replay
// directly. Unknown keys are ignored; absent keys leave zero values for
// the engine defaults.
func loadEstimateRequestFromConfig(path string) (kinapi.EstimateRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return kinapi.EstimateRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return kinapi.EstimateRequest{}, err
	}

	var req kinapi.EstimateRequest
	if v, ok := asString(raw["run_id"]); ok {
		req.RunID = v
	}
	if v, ok := asString(raw["pathway"]); ok {
		req.Pathway = v
	}
	if v, ok := asString(raw["organism"]); ok {
		req.Organism = v
	}
	if v, ok := asString(raw["mode"]); ok {
		req.Mode = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		req.Workers = v
	}
	if v, ok := asString(raw["noise_kind"]); ok {
		req.NoiseKind = v
	}
	if v, ok := asFloat64(raw["noise_fraction"]); ok {
		req.NoiseFraction = v
	}
	if v, ok := asFloat64(raw["missing_prob"]); ok {
		req.MissingProb = v
	}
	if v, ok := asFloat64(raw["perturb_frac"]); ok {
		req.PerturbFrac = v
	}
	if v, ok := asInt(raw["max_iterations"]); ok {
		req.MaxIterations = v
	}
	if v, ok := asInt(raw["sample_count"]); ok {
		req.SampleCount = v
	}
	if v, ok := asFloat64(raw["rtol"]); ok {
		req.RTol = v
	}
	if v, ok := asFloat64(raw["atol"]); ok {
		req.ATol = v
	}
	return req, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

// overrideFromFlags applies explicitly set flags on top of a loaded
// config; unset flags never clobber config values.
func overrideFromFlags(req *kinapi.EstimateRequest, set map[string]bool, flagValue map[string]any) {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "run-id":
			req.RunID = v.(string)
		case "pathway":
			req.Pathway = v.(string)
		case "organism":
			req.Organism = v.(string)
		case "mode":
			req.Mode = v.(string)
		case "seed":
			req.Seed = v.(int64)
		case "workers":
			req.Workers = v.(int)
		case "noise-kind":
			req.NoiseKind = v.(string)
		case "noise-frac":
			req.NoiseFraction = v.(float64)
		case "missing-prob":
			req.MissingProb = v.(float64)
		case "perturb-frac":
			req.PerturbFrac = v.(float64)
		case "max-iters":
			req.MaxIterations = v.(int)
		case "samples":
			req.SampleCount = v.(int)
		case "rtol":
			req.RTol = v.(float64)
		case "atol":
			req.ATol = v.(float64)
		}
	}
	if req.Pathway == "" {
		req.Pathway = "decay"
	}
}

func loadOrDefaultEstimateRequest(configPath string) (kinapi.EstimateRequest, error) {
	if configPath == "" {
		return kinapi.EstimateRequest{}, nil
	}
	req, err := loadEstimateRequestFromConfig(configPath)
	if err != nil {
		return kinapi.EstimateRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}
