package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"kinetikos/internal/pathway"
	"kinetikos/internal/stats"
	"kinetikos/internal/storage"
	kinapi "kinetikos/pkg/kinetikos"
)

const (
	artifactsDir = "artifacts"
	exportsDir   = "exports"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "estimate":
		return runEstimate(ctx, args[1:])
	case "robustness":
		return runRobustness(ctx, args[1:])
	case "fisher":
		return runFisher(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "trace":
		return runTrace(ctx, args[1:])
	case "models":
		return runModels(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "kinetikos.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := kinapi.New(kinapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s artifacts=%s\n", *storeKind, artifactsDir)
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "kinetikos.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := kinapi.New(kinapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Reset(ctx); err != nil {
		return err
	}

	fmt.Printf("reset store=%s\n", *storeKind)
	return nil
}

func runEstimate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("estimate", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config JSON path (a run's config.json artifact works)")
	runID := fs.String("run-id", "", "explicit run id (optional)")
	pathwayName := fs.String("pathway", "decay", "pathway: decay|cascade|glycolysis|tca")
	organism := fs.String("organism", "yeast", "organism: yeast|ecoli|bsubtilis|arabidopsis")
	mode := fs.String("mode", "balanced", "computation mode: test|fast|balanced|precise")
	seed := fs.Int64("seed", 1, "rng seed")
	workers := fs.Int("workers", 0, "worker count (0 uses the mode preset)")
	noiseKind := fs.String("noise-kind", "additive", "observation noise: additive|multiplicative")
	noiseFrac := fs.Float64("noise-frac", 0.05, "noise standard-deviation fraction")
	missingProb := fs.Float64("missing-prob", 0.0, "per-point missing probability")
	perturbFrac := fs.Float64("perturb-frac", 0.25, "initial guess perturbation fraction")
	maxIters := fs.Int("max-iters", 0, "iteration budget (0 uses the mode preset)")
	samples := fs.Int("samples", 0, "candidates per iteration (0 uses the mode preset)")
	rtol := fs.Float64("rtol", 0, "integrator relative tolerance (0 uses the default)")
	atol := fs.Float64("atol", 0, "integrator absolute tolerance (0 uses the default)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "kinetikos.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	req, err := loadOrDefaultEstimateRequest(*configPath)
	if err != nil {
		return err
	}
	if *configPath == "" {
		req = kinapi.EstimateRequest{
			RunID:         *runID,
			Pathway:       *pathwayName,
			Organism:      *organism,
			Mode:          *mode,
			Seed:          *seed,
			Workers:       *workers,
			NoiseKind:     *noiseKind,
			NoiseFraction: *noiseFrac,
			MissingProb:   *missingProb,
			PerturbFrac:   *perturbFrac,
			MaxIterations: *maxIters,
			SampleCount:   *samples,
			RTol:          *rtol,
			ATol:          *atol,
		}
	} else {
		overrideFromFlags(&req, setFlags, map[string]any{
			"run-id":       *runID,
			"pathway":      *pathwayName,
			"organism":     *organism,
			"mode":         *mode,
			"seed":         *seed,
			"workers":      *workers,
			"noise-kind":   *noiseKind,
			"noise-frac":   *noiseFrac,
			"missing-prob": *missingProb,
			"perturb-frac": *perturbFrac,
			"max-iters":    *maxIters,
			"samples":      *samples,
			"rtol":         *rtol,
			"atol":         *atol,
		})
	}
	if req.NoiseFraction < 0 || req.NoiseFraction >= 1 {
		return errors.New("noise fraction must be in [0, 1)")
	}
	if req.MissingProb < 0 || req.MissingProb > 1 {
		return errors.New("missing probability must be in [0, 1]")
	}

	client, err := kinapi.New(kinapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Estimate(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("estimation completed run_id=%s pathway=%s organism=%s mode=%s seed=%d\n",
		summary.RunID, summary.Pathway, summary.Organism, summary.Mode, req.Seed)
	for i, name := range summary.Estimate.Names {
		if relErr, ok := summary.RelativeErrors[name]; ok {
			fmt.Printf("param=%s estimate=%.6g rel_err=%.4f\n", name, summary.Estimate.Values[i], relErr)
			continue
		}
		fmt.Printf("param=%s estimate=%.6g\n", name, summary.Estimate.Values[i])
	}
	fmt.Printf("state=%s iterations=%d final_log_lik=%.6f simulations=%s elapsed_ms=%d\n",
		summary.State, summary.Iterations, summary.FinalLogLik,
		humanize.Comma(summary.TotalSimulations), summary.ElapsedMS)
	fmt.Printf("artifacts_dir=%s\n", summary.ArtifactsDir)
	return nil
}

func runRobustness(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("robustness", flag.ContinueOnError)
	runID := fs.String("run-id", "", "explicit run id (optional)")
	pathwayName := fs.String("pathway", "decay", "pathway: decay|cascade|glycolysis|tca")
	organism := fs.String("organism", "yeast", "organism: yeast|ecoli|bsubtilis|arabidopsis")
	mode := fs.String("mode", "", "engine mode per trial (empty uses the sweep default)")
	seed := fs.Int64("seed", 1, "rng seed")
	noiseKind := fs.String("noise-kind", "", "observation noise: additive|multiplicative (empty uses the sweep default)")
	noiseFracs := fs.String("noise-fracs", "", "comma-separated noise fractions (empty uses the default grid)")
	missingProbs := fs.String("missing-probs", "", "comma-separated missing probabilities (empty uses the default grid)")
	trials := fs.Int("trials", 0, "trials per grid cell (0 uses the sweep default)")
	workers := fs.Int("workers", 0, "parallel trial workers (0 uses the sweep default)")
	perturbFrac := fs.Float64("perturb-frac", 0.25, "initial guess perturbation fraction")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "kinetikos.db", "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit sweep summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fracs, err := parseFloatList(*noiseFracs)
	if err != nil {
		return fmt.Errorf("noise-fracs: %w", err)
	}
	probs, err := parseFloatList(*missingProbs)
	if err != nil {
		return fmt.Errorf("missing-probs: %w", err)
	}

	client, err := kinapi.New(kinapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	sweep, err := client.Robustness(ctx, kinapi.RobustnessRequest{
		RunID:          *runID,
		Pathway:        *pathwayName,
		Organism:       *organism,
		Mode:           *mode,
		Seed:           *seed,
		NoiseKind:      *noiseKind,
		NoiseFractions: fracs,
		MissingProbs:   probs,
		Trials:         *trials,
		Workers:        *workers,
		PerturbFrac:    *perturbFrac,
	})
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sweep)
	}

	fmt.Printf("robustness completed run_id=%s sweep_id=%s pathway=%s organism=%s results=%d\n",
		sweep.RunID, sweep.SweepID, sweep.Pathway, sweep.Organism, sweep.Results)
	for _, cell := range sweep.Summaries {
		fmt.Printf("noise=%.2f missing=%.2f trials=%d converged=%d success_rate=%.2f mean_rel_err=%.4f median_rel_err=%.4f\n",
			cell.NoiseFraction, cell.MissingProb, cell.Trials, cell.Converged,
			cell.SuccessRate, cell.MeanRelError, cell.MedianRelError)
	}
	return nil
}

func runFisher(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fisher", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id of a terminal estimation run")
	noiseKind := fs.String("noise-kind", "", "observation noise used by the run (empty reads the run's config artifact)")
	noiseFrac := fs.Float64("noise-frac", 0, "noise fraction used by the run (0 reads the run's config artifact)")
	missingProb := fs.Float64("missing-prob", 0, "missing probability used by the run (0 reads the run's config artifact)")
	relStep := fs.Float64("rel-step", 0, "finite-difference relative step (0 uses the default)")
	eigenFloor := fs.Float64("eigen-floor", 0, "identifiability eigenvalue threshold (0 uses the default)")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "kinetikos.db", "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit the full record as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("fisher requires --run-id")
	}

	client, err := kinapi.New(kinapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	rec, err := client.Fisher(ctx, kinapi.FisherRequest{
		RunID:         *runID,
		NoiseKind:     *noiseKind,
		NoiseFraction: *noiseFrac,
		MissingProb:   *missingProb,
		RelStep:       *relStep,
		EigenFloor:    *eigenFloor,
	})
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	fmt.Printf("fisher run_id=%s parameters=%d condition_number=%.6g null_directions=%d\n",
		rec.RunID, len(rec.Names), rec.ConditionNumber, len(rec.NullDirections))
	for _, r := range rec.Rankings {
		fmt.Printf("rank=%d param=%s crlb=%.6g score=%.6g\n", r.Rank, r.Name, r.CRLB, r.Score)
	}
	return nil
}

func runRuns(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	entries, err := stats.ListRunIndex(artifactsDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	if len(entries) > *limit {
		entries = entries[:*limit]
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	for _, e := range entries {
		fmt.Printf("run_id=%s created_at=%s pathway=%s organism=%s mode=%s seed=%d state=%s iterations=%d final_log_lik=%.6f\n",
			e.RunID,
			e.CreatedAtUTC,
			e.Pathway,
			e.Organism,
			e.Mode,
			e.Seed,
			e.State,
			e.Iterations,
			e.FinalLogLik,
		)
	}
	return nil
}

func runTrace(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("trace", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the most recent run from the run index")
	limit := fs.Int("limit", 50, "max iterations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit iteration records as JSON")
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "kinetikos.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("trace requires --run-id or --latest")
	}

	client, err := kinapi.New(kinapi.Options{
		StoreKind:    *storeKind,
		DBPath:       *dbPath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	trace, err := client.Trace(ctx, kinapi.TraceRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if len(trace) == 0 {
		fmt.Println("no iterations recorded")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(trace)
	}

	for _, rec := range trace {
		fmt.Printf("iteration=%d log_lik=%.6f mean_change=%.6f ll_change=%.6f ess=%.1f survivors=%d failures=%d degenerate=%t widened=%t\n",
			rec.Iteration,
			rec.LogLikelihood,
			rec.MeanChange,
			rec.LogLikChange,
			rec.ESS,
			rec.Survivors,
			rec.Failures,
			rec.Degenerate,
			rec.Widened,
		)
	}
	return nil
}

func runModels(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "emit model listing as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := kinapi.New(kinapi.Options{
		StoreKind:    "memory",
		ArtifactsDir: artifactsDir,
		ExportsDir:   exportsDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	models, err := client.Models(ctx)
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(models)
	}

	for _, m := range models {
		fmt.Printf("pathway=%s species=%d parameters=%d estimated=%d description=%q\n",
			m.Pathway, m.Species, m.Parameters, m.Estimated, m.Description)
	}
	fmt.Printf("organisms=%s\n", strings.Join(pathway.Organisms(), ","))
	return nil
}

func runExport(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from the run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}
	if *latest {
		entries, err := stats.ListRunIndex(artifactsDir)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return errors.New("no runs available to export")
		}
		*runID = entries[0].RunID
	}

	exportedDir, err := stats.ExportRunArtifacts(artifactsDir, *runID, *outDir)
	if err != nil {
		return err
	}

	fmt.Printf("exported run_id=%s to=%s\n", *runID, filepath.Clean(exportedDir))
	return nil
}

func parseFloatList(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q", part)
		}
		out = append(out, v)
	}
	return out, nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: kinetikosctl <init|reset|estimate|robustness|fisher|runs|trace|models|export> [flags]", msg)
}
