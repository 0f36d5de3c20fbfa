//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"kinetikos/internal/model"
)

func TestSQLiteStoreRunAndAnalysesRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "kinetikos.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	run := model.RunRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		ID:              "run-1",
		Pathway:         "tca",
		Organism:        "bsubtilis",
		Mode:            "fast",
		Seed:            3,
		State:           model.StateConverged,
		Estimate: model.ParameterSet{
			Estimate: model.ParameterVector{Names: []string{"vmax_cs"}, Values: []float64{91.1}},
		},
		Iterations:  18,
		FinalLogLik: -240.7,
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}

	loadedRun, ok, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok {
		t.Fatalf("expected run %s", run.ID)
	}
	if loadedRun.ID != run.ID || loadedRun.Iterations != run.Iterations {
		t.Fatalf("unexpected run loaded: %+v", loadedRun)
	}

	iterations := []model.IterationRecord{
		{Iteration: 1, LogLikelihood: -300.2, ESS: 80.0, Survivors: 1000},
	}
	if err := store.SaveIterations(ctx, run.ID, iterations); err != nil {
		t.Fatalf("save iterations: %v", err)
	}
	loadedIterations, ok, err := store.GetIterations(ctx, run.ID)
	if err != nil {
		t.Fatalf("get iterations: %v", err)
	}
	if !ok {
		t.Fatal("expected iterations run-1")
	}
	if len(loadedIterations) != 1 || loadedIterations[0].Iteration != 1 {
		t.Fatalf("unexpected iterations loaded: %+v", loadedIterations)
	}

	results := []model.RobustnessResult{{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		ID:              "trial-1",
		SweepID:         "sweep-1",
		NoiseFraction:   0.05,
		MissingProb:     0,
		State:           model.StateConverged,
		MeanRelError:    0.04,
	}}
	if err := store.SaveRobustnessResults(ctx, run.ID, results); err != nil {
		t.Fatalf("save robustness results: %v", err)
	}
	loadedResults, ok, err := store.GetRobustnessResults(ctx, run.ID)
	if err != nil {
		t.Fatalf("get robustness results: %v", err)
	}
	if !ok {
		t.Fatal("expected robustness results run-1")
	}
	if len(loadedResults) != 1 || loadedResults[0].ID != "trial-1" {
		t.Fatalf("unexpected robustness results loaded: %+v", loadedResults)
	}

	summaries := []model.RobustnessSummary{{
		NoiseFraction: 0.05,
		MissingProb:   0,
		Trials:        5,
		Converged:     5,
		SuccessRate:   1,
	}}
	if err := store.SaveRobustnessSummaries(ctx, run.ID, summaries); err != nil {
		t.Fatalf("save robustness summaries: %v", err)
	}
	loadedSummaries, ok, err := store.GetRobustnessSummaries(ctx, run.ID)
	if err != nil {
		t.Fatalf("get robustness summaries: %v", err)
	}
	if !ok {
		t.Fatal("expected robustness summaries run-1")
	}
	if len(loadedSummaries) != 1 || loadedSummaries[0].SuccessRate != 1 {
		t.Fatalf("unexpected robustness summaries loaded: %+v", loadedSummaries)
	}

	fisher := model.FisherRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		RunID:           run.ID,
		Names:           []string{"vmax_cs"},
		Matrix:          [][]float64{{50.5}},
		Eigenvalues:     []float64{50.5},
		ConditionNumber: 1,
		Rankings:        []model.IdentifiabilityRank{{Name: "vmax_cs", CRLB: 0.0198, Score: 0.0015, Rank: 1}},
	}
	if err := store.SaveFisher(ctx, fisher); err != nil {
		t.Fatalf("save fisher: %v", err)
	}
	loadedFisher, ok, err := store.GetFisher(ctx, run.ID)
	if err != nil {
		t.Fatalf("get fisher: %v", err)
	}
	if !ok {
		t.Fatal("expected fisher run-1")
	}
	if len(loadedFisher.Names) != 1 || loadedFisher.Names[0] != "vmax_cs" {
		t.Fatalf("unexpected fisher loaded: %+v", loadedFisher)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "kinetikos.db")

	first := NewSQLiteStore(dbPath)
	if err := first.Init(ctx); err != nil {
		t.Fatalf("first init: %v", err)
	}
	run := model.RunRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		ID:              "persisted-run",
		Pathway:         "decay",
		State:           model.StateFailed,
	}
	if err := first.SaveRun(ctx, run); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}

	second := NewSQLiteStore(dbPath)
	if err := second.Init(ctx); err != nil {
		t.Fatalf("second init: %v", err)
	}
	t.Cleanup(func() {
		_ = second.Close()
	})

	loaded, ok, err := second.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if !ok || loaded.ID != run.ID {
		t.Fatalf("expected persisted run, got ok=%t value=%+v", ok, loaded)
	}
}

func TestSQLiteStoreRequiresInit(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "kinetikos.db"))

	if _, _, err := store.GetRun(ctx, "run-1"); err == nil {
		t.Fatal("expected error before init")
	}
}

func TestSQLiteStoreReset(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "kinetikos.db"))
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	run := model.RunRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		ID:              "run-reset",
		Pathway:         "cascade",
		State:           model.StateMaxIterReached,
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save run: %v", err)
	}
	if err := store.SaveFisher(ctx, model.FisherRecord{
		VersionedRecord: model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion},
		RunID:           run.ID,
		Names:           []string{"k1"},
		Matrix:          [][]float64{{4.0}},
		Eigenvalues:     []float64{4.0},
		ConditionNumber: 1,
	}); err != nil {
		t.Fatalf("save fisher: %v", err)
	}

	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if _, ok, err := store.GetRun(ctx, run.ID); err != nil || ok {
		t.Fatalf("expected run cleared; ok=%t err=%v", ok, err)
	}
	if _, ok, err := store.GetFisher(ctx, run.ID); err != nil || ok {
		t.Fatalf("expected fisher cleared; ok=%t err=%v", ok, err)
	}

	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("save after reset: %v", err)
	}
}
