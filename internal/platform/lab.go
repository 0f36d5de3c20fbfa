// Package platform orchestrates estimation runs: it owns the store and
// the artifact directory, builds the problem from the pathway registry,
// drives the engine, and persists every record the run produces.
package platform

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/rand"

	"kinetikos/internal/fisher"
	"kinetikos/internal/mcem"
	"kinetikos/internal/model"
	"kinetikos/internal/observe"
	"kinetikos/internal/pathway"
	"kinetikos/internal/robustness"
	"kinetikos/internal/sim"
	"kinetikos/internal/stats"
	"kinetikos/internal/storage"
)

type Config struct {
	Store storage.Store

	// ArtifactsDir is where JSON/CSV run documents land. Empty disables
	// file artifacts; the store still receives everything.
	ArtifactsDir string
}

// Lab is the run orchestrator. One Lab serves any number of sequential
// or concurrent runs; per-run state lives in the run itself.
type Lab struct {
	store        storage.Store
	artifactsDir string

	mu      sync.RWMutex
	started bool
	active  map[string]struct{}

	config Config
}

var (
	defaultLabMu sync.Mutex
	defaultLab   *Lab
)

func NewLab(cfg Config) *Lab {
	return &Lab{
		store:        cfg.Store,
		artifactsDir: cfg.ArtifactsDir,
		active:       make(map[string]struct{}),
		config:       cfg,
	}
}

func StartDefault(ctx context.Context, cfg Config) (*Lab, error) {
	defaultLabMu.Lock()
	defer defaultLabMu.Unlock()

	if defaultLab != nil && defaultLab.Started() {
		return defaultLab, nil
	}

	l := NewLab(cfg)
	if err := l.Init(ctx); err != nil {
		return nil, err
	}
	defaultLab = l
	return defaultLab, nil
}

func Default() (*Lab, bool) {
	defaultLabMu.Lock()
	l := defaultLab
	defaultLabMu.Unlock()

	if l == nil || !l.Started() {
		return nil, false
	}
	return l, true
}

func StopDefault() error {
	defaultLabMu.Lock()
	l := defaultLab
	defaultLabMu.Unlock()
	if l == nil {
		return nil
	}
	l.Stop()
	defaultLabMu.Lock()
	if defaultLab == l {
		defaultLab = nil
	}
	defaultLabMu.Unlock()
	return nil
}

func (l *Lab) Init(ctx context.Context) error {
	if l.store == nil {
		return fmt.Errorf("store is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil
	}
	if err := l.store.Init(ctx); err != nil {
		return err
	}
	if l.artifactsDir != "" {
		if err := os.MkdirAll(l.artifactsDir, 0o755); err != nil {
			return fmt.Errorf("artifacts dir: %w", err)
		}
	}
	l.started = true
	return nil
}

func (l *Lab) Started() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.started
}

// Stop marks the lab stopped. Runs already in flight finish under their
// own contexts; new runs are rejected until the next Init.
func (l *Lab) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = false
	l.active = make(map[string]struct{})
}

// Reset drops all persisted records when the store supports it, then
// re-initializes. File artifacts are left in place.
func (l *Lab) Reset(ctx context.Context) error {
	l.Stop()
	if resetter, ok := l.store.(storage.Resetter); ok {
		if err := resetter.Reset(ctx); err != nil {
			return err
		}
	}
	return l.Init(ctx)
}

func (l *Lab) ArtifactsDir() string {
	return l.artifactsDir
}

// ActiveRuns lists run IDs currently in flight, sorted.
func (l *Lab) ActiveRuns() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.active))
	for id := range l.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ModelInfo summarizes one registered pathway for listings.
type ModelInfo struct {
	Pathway     string `json:"pathway"`
	Description string `json:"description"`
	Species     int    `json:"species"`
	Parameters  int    `json:"parameters"`
	Estimated   int    `json:"estimated"`
}

// Models lists the registered pathways, sorted by name.
func (l *Lab) Models() ([]ModelInfo, error) {
	names := pathway.Pathways()
	out := make([]ModelInfo, 0, len(names))
	for _, name := range names {
		spec, err := pathway.NewSpec(name, "")
		if err != nil {
			return nil, err
		}
		out = append(out, ModelInfo{
			Pathway:     spec.Pathway,
			Description: spec.Model.Description(),
			Species:     len(spec.Model.Species()),
			Parameters:  len(spec.Model.ParameterNames()),
			Estimated:   len(spec.EstimatedNames),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pathway < out[j].Pathway })
	return out, nil
}

// EstimationConfig describes one validation-mode run: synthesize an
// observation from the organism's true parameters, perturb the truth
// into a starting guess, and estimate it back. Zero-valued knobs take
// defaults; MaxIterations and SampleCount override the mode preset when
// positive.
type EstimationConfig struct {
	RunID    string
	Pathway  string
	Organism string
	Mode     string
	Seed     int64
	Workers  int

	Noise       model.NoiseSpec
	Missing     model.MissingSpec
	PerturbFrac float64

	MaxIterations int
	SampleCount   int

	Sim sim.Config
}

// EstimationResult is the persisted outcome of one run.
type EstimationResult struct {
	RunID      string
	Record     model.RunRecord
	Iterations []model.IterationRecord
	RunDir     string
}

const (
	defaultNoiseFraction = 0.05
	defaultPerturbFrac   = 0.25
)

// Seed layout per run: +0 observation, +1 starting guess, +2 engine.
const (
	seedOffsetObservation = 0
	seedOffsetGuess       = 1
	seedOffsetEngine      = 2
)

// RunEstimation executes one full estimation and persists the run record
// and iteration trace. On context cancellation the partial trace is
// persisted before the error is returned.
func (l *Lab) RunEstimation(ctx context.Context, cfg EstimationConfig) (EstimationResult, error) {
	if !l.Started() {
		return EstimationResult{}, fmt.Errorf("lab is not initialized")
	}
	if cfg.Pathway == "" {
		return EstimationResult{}, fmt.Errorf("pathway is required")
	}

	spec, err := pathway.NewSpec(cfg.Pathway, cfg.Organism)
	if err != nil {
		return EstimationResult{}, err
	}

	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = mcem.ModeBalanced
	}
	engCfg, err := mcem.ConfigForMode(mode)
	if err != nil {
		return EstimationResult{}, err
	}
	if cfg.MaxIterations > 0 {
		engCfg.MaxIterations = cfg.MaxIterations
	}
	if cfg.SampleCount > 0 {
		engCfg.SampleCount = cfg.SampleCount
	}
	if cfg.Workers > 0 {
		engCfg.Workers = cfg.Workers
	}
	engCfg.Sim = cfg.Sim
	engCfg.Seed = uint64(cfg.Seed) + seedOffsetEngine

	noise := cfg.Noise
	if noise.Kind == "" {
		noise.Kind = model.NoiseAdditive
	}
	if noise.Fraction == 0 {
		noise.Fraction = defaultNoiseFraction
	}
	perturb := cfg.PerturbFrac
	if perturb == 0 {
		perturb = defaultPerturbFrac
	}

	runID := cfg.RunID
	if runID == "" {
		runID = fmt.Sprintf("est-%s-%s-%d", spec.Pathway, spec.Organism, cfg.Seed)
	}
	if err := l.registerRun(runID); err != nil {
		return EstimationResult{}, err
	}
	defer l.unregisterRun(runID)

	truth, err := spec.EstimatedTruth()
	if err != nil {
		return EstimationResult{}, err
	}
	simulator := sim.New(engCfg.Sim)
	traj, err := simulator.Simulate(spec.Model, spec.Defaults.Values, spec.InitialState, spec.Grid)
	if err != nil {
		return EstimationResult{}, fmt.Errorf("true trajectory: %w", err)
	}
	obs, err := observe.Observe(traj, spec.Model.Species(), spec.Observed, noise, cfg.Missing,
		rand.New(rand.NewSource(uint64(cfg.Seed)+seedOffsetObservation)))
	if err != nil {
		return EstimationResult{}, err
	}
	guess, err := pathway.PerturbedGuess(truth, perturb,
		rand.New(rand.NewSource(uint64(cfg.Seed)+seedOffsetGuess)))
	if err != nil {
		return EstimationResult{}, err
	}

	eng, err := mcem.New(spec, obs, guess, engCfg)
	if err != nil {
		return EstimationResult{}, err
	}

	start := time.Now()
	out, runErr := eng.Run(ctx)
	if runErr != nil && out.State == "" {
		return EstimationResult{}, runErr
	}

	record := model.RunRecord{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:       runID,
		Pathway:  spec.Pathway,
		Organism: spec.Organism,
		Mode:     mode,
		Seed:     cfg.Seed,
		State:    out.State,
		Estimate: model.ParameterSet{
			Estimate:      out.Estimate,
			LogCovariance: out.LogCovariance,
			Truth:         &truth,
		},
		Iterations:       len(out.Iterations),
		FinalLogLik:      out.FinalLogLik,
		TotalSimulations: out.TotalSims,
		TotalFailures:    out.TotalFailures,
		CreatedAtUTC:     time.Now().UTC().Format(time.RFC3339),
		ElapsedMS:        time.Since(start).Milliseconds(),
	}
	if relErrs, err := out.Estimate.RelativeErrors(truth); err == nil {
		record.RelativeErrors = relErrs
	}

	if err := l.store.SaveRun(ctx, record); err != nil {
		return EstimationResult{}, err
	}
	if err := l.store.SaveIterations(ctx, runID, out.Iterations); err != nil {
		return EstimationResult{}, err
	}

	result := EstimationResult{
		RunID:      runID,
		Record:     record,
		Iterations: out.Iterations,
	}
	if l.artifactsDir != "" {
		runDir, err := l.writeRunArtifacts(runID, mode, cfg, engCfg, simulator.Config(), noise, perturb, record, out.Iterations)
		if err != nil {
			return EstimationResult{}, err
		}
		result.RunDir = runDir
	}

	return result, runErr
}

func (l *Lab) writeRunArtifacts(runID, mode string, cfg EstimationConfig, engCfg mcem.EngineConfig, simCfg sim.Config, noise model.NoiseSpec, perturb float64, record model.RunRecord, iterations []model.IterationRecord) (string, error) {
	runDir, err := stats.WriteRunArtifacts(l.artifactsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:          runID,
			Pathway:        record.Pathway,
			Organism:       record.Organism,
			Mode:           mode,
			Seed:           cfg.Seed,
			MaxIterations:  engCfg.MaxIterations,
			SampleCount:    engCfg.SampleCount,
			Workers:        engCfg.Workers,
			InitialLogSD:   engCfg.InitialLogSD,
			TolMeanRel:     engCfg.TolMeanRel,
			TolLogLik:      engCfg.TolLogLik,
			ConvergeWindow: engCfg.ConvergeWindow,
			ESSFraction:    engCfg.ESSFraction,
			WidenFactor:    engCfg.WidenFactor,
			NoiseKind:      string(noise.Kind),
			NoiseFraction:  noise.Fraction,
			MissingProb:    cfg.Missing.Probability,
			PerturbFrac:    perturb,
			RTol:           simCfg.RTol,
			ATol:           simCfg.ATol,
		},
		Run:        record,
		Iterations: iterations,
	})
	if err != nil {
		return "", err
	}
	if err := stats.AppendRunIndex(l.artifactsDir, stats.RunIndexEntry{
		RunID:        runID,
		Pathway:      record.Pathway,
		Organism:     record.Organism,
		Mode:         mode,
		Seed:         cfg.Seed,
		State:        string(record.State),
		Iterations:   record.Iterations,
		FinalLogLik:  record.FinalLogLik,
		CreatedAtUTC: record.CreatedAtUTC,
	}); err != nil {
		return "", err
	}
	return runDir, nil
}

// ListRuns reads the artifact run index, newest first.
func (l *Lab) ListRuns() ([]stats.RunIndexEntry, error) {
	if l.artifactsDir == "" {
		return nil, fmt.Errorf("artifacts directory not configured")
	}
	return stats.ListRunIndex(l.artifactsDir)
}

// RobustnessConfig describes one sweep. Zero-valued knobs take the
// default grid: additive noise 5/10/15/20% crossed with 0/10/20/30%
// missing, 5 trials per cell, fast-mode engines.
type RobustnessConfig struct {
	RunID    string
	Pathway  string
	Organism string
	Mode     string
	Seed     int64

	NoiseKind      model.NoiseKind
	NoiseFractions []float64
	MissingProbs   []float64
	Trials         int
	Workers        int
	PerturbFrac    float64

	Sim sim.Config
}

// RobustnessOutcome is the persisted result of one sweep.
type RobustnessOutcome struct {
	RunID  string
	Report *robustness.Report
}

// RunRobustness executes the sweep and persists per-trial results and
// per-cell summaries under the given run ID.
func (l *Lab) RunRobustness(ctx context.Context, cfg RobustnessConfig) (RobustnessOutcome, error) {
	if !l.Started() {
		return RobustnessOutcome{}, fmt.Errorf("lab is not initialized")
	}
	if cfg.Pathway == "" {
		return RobustnessOutcome{}, fmt.Errorf("pathway is required")
	}

	spec, err := pathway.NewSpec(cfg.Pathway, cfg.Organism)
	if err != nil {
		return RobustnessOutcome{}, err
	}

	sweep := robustness.DefaultSweepConfig()
	if cfg.Mode != "" {
		engine, err := mcem.ConfigForMode(cfg.Mode)
		if err != nil {
			return RobustnessOutcome{}, err
		}
		sweep.Engine = engine
	}
	if cfg.NoiseKind != "" {
		sweep.NoiseKind = cfg.NoiseKind
	}
	if len(cfg.NoiseFractions) > 0 {
		sweep.NoiseFractions = append([]float64(nil), cfg.NoiseFractions...)
	}
	if len(cfg.MissingProbs) > 0 {
		sweep.MissingProbs = append([]float64(nil), cfg.MissingProbs...)
	}
	if cfg.Trials > 0 {
		sweep.Trials = cfg.Trials
	}
	if cfg.Workers > 0 {
		sweep.Workers = cfg.Workers
	}
	sweep.Seed = uint64(cfg.Seed)
	sweep.Engine.Sim = cfg.Sim

	perturb := cfg.PerturbFrac
	if perturb == 0 {
		perturb = defaultPerturbFrac
	}
	truth, err := spec.EstimatedTruth()
	if err != nil {
		return RobustnessOutcome{}, err
	}
	guess, err := pathway.PerturbedGuess(truth, perturb,
		rand.New(rand.NewSource(uint64(cfg.Seed)+seedOffsetGuess)))
	if err != nil {
		return RobustnessOutcome{}, err
	}

	runID := cfg.RunID
	if runID == "" {
		runID = fmt.Sprintf("rob-%s-%s-%d", spec.Pathway, spec.Organism, cfg.Seed)
	}
	if err := l.registerRun(runID); err != nil {
		return RobustnessOutcome{}, err
	}
	defer l.unregisterRun(runID)

	report, err := robustness.Run(ctx, spec, guess, sweep)
	if err != nil {
		return RobustnessOutcome{}, err
	}
	for i := range report.Results {
		report.Results[i].SchemaVersion = storage.CurrentSchemaVersion
		report.Results[i].CodecVersion = storage.CurrentCodecVersion
	}

	if err := l.store.SaveRobustnessResults(ctx, runID, report.Results); err != nil {
		return RobustnessOutcome{}, err
	}
	if err := l.store.SaveRobustnessSummaries(ctx, runID, report.Summaries); err != nil {
		return RobustnessOutcome{}, err
	}
	if l.artifactsDir != "" {
		if err := stats.WriteRobustness(l.artifactsDir, runID, stats.RobustnessDocument{
			SweepID:   report.SweepID,
			Pathway:   report.Pathway,
			Organism:  report.Organism,
			Results:   report.Results,
			Summaries: report.Summaries,
		}); err != nil {
			return RobustnessOutcome{}, err
		}
	}

	return RobustnessOutcome{RunID: runID, Report: report}, nil
}

// FisherConfig describes one identifiability analysis of a stored run.
// The observation is regenerated from the run's seed; Noise and Missing
// must match the original run and default the same way RunEstimation
// defaults them. When the run's config.json artifact is available it is
// consulted first.
type FisherConfig struct {
	RunID string

	Noise   model.NoiseSpec
	Missing model.MissingSpec

	RelStep    float64
	MaxShrink  int
	EigenFloor float64

	Sim sim.Config
}

// RunFisher computes the Fisher information analysis at a terminal
// estimate and persists the record.
func (l *Lab) RunFisher(ctx context.Context, cfg FisherConfig) (model.FisherRecord, error) {
	if !l.Started() {
		return model.FisherRecord{}, fmt.Errorf("lab is not initialized")
	}
	if cfg.RunID == "" {
		return model.FisherRecord{}, fmt.Errorf("run id is required")
	}

	run, ok, err := l.store.GetRun(ctx, cfg.RunID)
	if err != nil {
		return model.FisherRecord{}, err
	}
	if !ok {
		return model.FisherRecord{}, fmt.Errorf("run not found: %s", cfg.RunID)
	}
	if run.State != model.StateConverged && run.State != model.StateMaxIterReached {
		return model.FisherRecord{}, fmt.Errorf("run %s ended %s; identifiability needs a terminal estimate", cfg.RunID, run.State)
	}

	noise := cfg.Noise
	missing := cfg.Missing
	if l.artifactsDir != "" {
		if doc, found, err := stats.ReadRunConfig(l.artifactsDir, cfg.RunID); err != nil {
			return model.FisherRecord{}, err
		} else if found {
			if noise.Kind == "" {
				noise = model.NoiseSpec{Kind: model.NoiseKind(doc.NoiseKind), Fraction: doc.NoiseFraction}
			}
			if missing.Probability == 0 {
				missing = model.MissingSpec{Probability: doc.MissingProb}
			}
		}
	}
	if noise.Kind == "" {
		noise.Kind = model.NoiseAdditive
	}
	if noise.Fraction == 0 {
		noise.Fraction = defaultNoiseFraction
	}

	spec, err := pathway.NewSpec(run.Pathway, run.Organism)
	if err != nil {
		return model.FisherRecord{}, err
	}

	fisherCfg := fisher.DefaultConfig()
	if cfg.RelStep > 0 {
		fisherCfg.RelStep = cfg.RelStep
	}
	if cfg.MaxShrink > 0 {
		fisherCfg.MaxShrink = cfg.MaxShrink
	}
	if cfg.EigenFloor > 0 {
		fisherCfg.EigenFloor = cfg.EigenFloor
	}
	fisherCfg.Sim = cfg.Sim

	simulator := sim.New(fisherCfg.Sim)
	traj, err := simulator.Simulate(spec.Model, spec.Defaults.Values, spec.InitialState, spec.Grid)
	if err != nil {
		return model.FisherRecord{}, fmt.Errorf("true trajectory: %w", err)
	}
	obs, err := observe.Observe(traj, spec.Model.Species(), spec.Observed, noise, missing,
		rand.New(rand.NewSource(uint64(run.Seed)+seedOffsetObservation)))
	if err != nil {
		return model.FisherRecord{}, err
	}

	analysis, err := fisher.Analyze(spec, obs, run.Estimate.Estimate, fisherCfg)
	if err != nil {
		return model.FisherRecord{}, err
	}

	record := model.FisherRecord{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		RunID:           cfg.RunID,
		Names:           analysis.Names,
		Matrix:          analysis.Matrix,
		Eigenvalues:     analysis.Eigenvalues,
		ConditionNumber: analysis.ConditionNumber,
		Rankings:        analysis.Rankings,
		NullDirections:  analysis.NullDirections,
	}
	if err := l.store.SaveFisher(ctx, record); err != nil {
		return model.FisherRecord{}, err
	}
	if l.artifactsDir != "" {
		if err := stats.WriteFisher(l.artifactsDir, cfg.RunID, record); err != nil {
			return model.FisherRecord{}, err
		}
	}
	return record, nil
}

func (l *Lab) registerRun(runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return fmt.Errorf("lab is not initialized")
	}
	if _, exists := l.active[runID]; exists {
		return fmt.Errorf("run already in flight: %s", runID)
	}
	l.active[runID] = struct{}{}
	return nil
}

func (l *Lab) unregisterRun(runID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, runID)
}
