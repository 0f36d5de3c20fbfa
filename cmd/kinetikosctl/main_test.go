package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"kinetikos/internal/model"
	"kinetikos/internal/stats"
)

func chtemp(t *testing.T) string {
	t.Helper()
	origWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	workdir := t.TempDir()
	if err := os.Chdir(workdir); err != nil {
		t.Fatalf("chdir tempdir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(origWD)
	})
	return workdir
}

func TestEstimateCommandWritesArtifacts(t *testing.T) {
	chtemp(t)

	args := []string{
		"estimate",
		"--store", "memory",
		"--run-id", "ctl-est-a",
		"--pathway", "decay",
		"--mode", "test",
		"--seed", "7",
		"--workers", "2",
	}
	if err := run(context.Background(), args); err != nil {
		t.Fatalf("estimate command: %v", err)
	}

	entries, err := stats.ListRunIndex(artifactsDir)
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) != 1 || entries[0].RunID != "ctl-est-a" {
		t.Fatalf("unexpected run index: %+v", entries)
	}
	if entries[0].State != string(model.StateConverged) {
		t.Fatalf("expected converged run, got %s", entries[0].State)
	}

	for _, file := range []string{"config.json", "estimate.json", "iterations.json", "loglik_series.csv"} {
		path := filepath.Join(artifactsDir, "ctl-est-a", file)
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected artifact %s: %v", path, err)
		}
	}

	if err := run(context.Background(), []string{"runs", "--limit", "5"}); err != nil {
		t.Fatalf("runs command: %v", err)
	}
	if err := run(context.Background(), []string{"export", "--latest"}); err != nil {
		t.Fatalf("export command: %v", err)
	}
	if _, err := os.Stat(filepath.Join(exportsDir, "ctl-est-a", "estimate.json")); err != nil {
		t.Fatalf("expected exported estimate: %v", err)
	}
	if err := run(context.Background(), []string{"models"}); err != nil {
		t.Fatalf("models command: %v", err)
	}
}

func TestEstimateCommandConfigLoadsAndAllowsFlagOverrides(t *testing.T) {
	workdir := chtemp(t)

	configPath := filepath.Join(workdir, "run_config.json")
	payload := []byte(`{
		"run_id": "ctl-cfg-base",
		"pathway": "decay",
		"mode": "test",
		"seed": 9,
		"workers": 2,
		"noise_fraction": 0.05
	}`)
	if err := os.WriteFile(configPath, payload, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	args := []string{
		"estimate",
		"--store", "memory",
		"--config", configPath,
		"--run-id", "ctl-cfg-override",
		"--seed", "11",
	}
	if err := run(context.Background(), args); err != nil {
		t.Fatalf("estimate command: %v", err)
	}

	doc, ok, err := stats.ReadRunConfig(artifactsDir, "ctl-cfg-override")
	if err != nil {
		t.Fatalf("read run config: %v", err)
	}
	if !ok {
		t.Fatal("expected config artifact for overridden run id")
	}
	if doc.Seed != 11 {
		t.Fatalf("expected seed override 11, got %d", doc.Seed)
	}
	if doc.Mode != "test" || doc.Pathway != "decay" {
		t.Fatalf("expected config-file mode and pathway, got mode=%s pathway=%s", doc.Mode, doc.Pathway)
	}
	if doc.MaxIterations != 20 || doc.SampleCount != 500 {
		t.Fatalf("unexpected test-mode budgets: %+v", doc)
	}
}

func TestRobustnessCommandWritesSweepArtifact(t *testing.T) {
	chtemp(t)

	args := []string{
		"robustness",
		"--store", "memory",
		"--run-id", "ctl-rob-a",
		"--pathway", "decay",
		"--mode", "test",
		"--seed", "3",
		"--noise-fracs", "0.05",
		"--missing-probs", "0,0.3",
		"--trials", "2",
		"--workers", "2",
	}
	if err := run(context.Background(), args); err != nil {
		t.Fatalf("robustness command: %v", err)
	}

	doc, ok, err := stats.ReadRobustness(artifactsDir, "ctl-rob-a")
	if err != nil {
		t.Fatalf("read robustness: %v", err)
	}
	if !ok {
		t.Fatal("expected robustness artifact")
	}
	if len(doc.Results) != 4 {
		t.Fatalf("expected 4 trial results, got %d", len(doc.Results))
	}
	if len(doc.Summaries) != 2 {
		t.Fatalf("expected 2 cell summaries, got %d", len(doc.Summaries))
	}
}

func TestCommandValidation(t *testing.T) {
	chtemp(t)

	if err := run(context.Background(), nil); err == nil {
		t.Fatal("expected error for missing command")
	}
	if err := run(context.Background(), []string{"bogus"}); err == nil {
		t.Fatal("expected error for unknown command")
	}
	if err := run(context.Background(), []string{"trace"}); err == nil {
		t.Fatal("expected error for trace without run id")
	}
	if err := run(context.Background(), []string{"trace", "--run-id", "x", "--latest"}); err == nil {
		t.Fatal("expected error for trace with run id and latest")
	}
	if err := run(context.Background(), []string{"export"}); err == nil {
		t.Fatal("expected error for export without run id")
	}
	if err := run(context.Background(), []string{"fisher"}); err == nil {
		t.Fatal("expected error for fisher without run id")
	}
	if err := run(context.Background(), []string{"runs", "--limit", "0"}); err == nil {
		t.Fatal("expected error for non-positive limit")
	}
	if err := run(context.Background(), []string{"robustness", "--store", "memory", "--noise-fracs", "0.05,bad"}); err == nil {
		t.Fatal("expected error for malformed noise fractions")
	}
	if err := run(context.Background(), []string{"estimate", "--store", "memory", "--noise-frac", "1.5"}); err == nil {
		t.Fatal("expected error for out-of-range noise fraction")
	}
	if err := run(context.Background(), []string{"estimate", "--store", "memory", "--pathway", "krebs"}); err == nil {
		t.Fatal("expected error for unknown pathway")
	}
}

func TestParseFloatList(t *testing.T) {
	got, err := parseFloatList("0.05, 0.1,0.2")
	if err != nil {
		t.Fatalf("parse list: %v", err)
	}
	if len(got) != 3 || got[0] != 0.05 || got[1] != 0.1 || got[2] != 0.2 {
		t.Fatalf("unexpected values: %v", got)
	}

	got, err = parseFloatList("")
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}

	if _, err := parseFloatList("0.1,,0.2"); err == nil {
		t.Fatal("expected error for empty element")
	}
	if _, err := parseFloatList("abc"); err == nil {
		t.Fatal("expected error for non-numeric element")
	}
}
