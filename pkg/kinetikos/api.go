// Package kinetikos is the embedding API for the estimation engine. A
// Client owns a store and an artifacts directory and exposes one method
// per operation; the underlying lab is built lazily on first use.
package kinetikos

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"kinetikos/internal/model"
	"kinetikos/internal/platform"
	"kinetikos/internal/sim"
	"kinetikos/internal/stats"
	"kinetikos/internal/storage"
)

const (
	defaultArtifactsDir = "artifacts"
	defaultExportsDir   = "exports"
	defaultDBPath       = "kinetikos.db"
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
}

type Client struct {
	store storage.Store
	lab   *platform.Lab

	artifactsDir string
	exportsDir   string
}

// EstimateRequest configures one estimation run. Zero values take the
// mode presets: balanced mode, additive 5% noise, no missing data, 25%
// guess perturbation.
type EstimateRequest struct {
	RunID    string
	Pathway  string
	Organism string
	Mode     string
	Seed     int64
	Workers  int

	NoiseKind     string
	NoiseFraction float64
	MissingProb   float64
	PerturbFrac   float64

	MaxIterations int
	SampleCount   int

	RTol float64
	ATol float64
}

type RunSummary struct {
	RunID            string
	Pathway          string
	Organism         string
	Mode             string
	State            string
	Iterations       int
	FinalLogLik      float64
	Estimate         model.ParameterVector
	RelativeErrors   map[string]float64
	TotalSimulations int64
	ElapsedMS        int64
	ArtifactsDir     string
}

// RobustnessRequest configures one noise/missing-data sweep. Empty grids
// take the default 4x4 grid with 5 trials per cell.
type RobustnessRequest struct {
	RunID    string
	Pathway  string
	Organism string
	Mode     string
	Seed     int64

	NoiseKind      string
	NoiseFractions []float64
	MissingProbs   []float64
	Trials         int
	Workers        int
	PerturbFrac    float64
}

type SweepSummary struct {
	RunID     string
	SweepID   string
	Pathway   string
	Organism  string
	Results   int
	Summaries []model.RobustnessSummary
}

// FisherRequest configures an identifiability analysis of a stored run.
// Noise and missing settings default from the run's config artifact.
type FisherRequest struct {
	RunID string

	NoiseKind     string
	NoiseFraction float64
	MissingProb   float64

	RelStep    float64
	EigenFloor float64
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Pathway      string
	Organism     string
	Mode         string
	Seed         int64
	State        string
	Iterations   int
	FinalLogLik  float64
}

type TraceRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type ModelItem struct {
	Pathway     string
	Description string
	Species     int
	Parameters  int
	Estimated   int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensureLab(ctx)
	return err
}

// Reset drops all persisted records and re-initializes the lab. File
// artifacts are left in place.
func (c *Client) Reset(ctx context.Context) error {
	lab, err := c.ensureLab(ctx)
	if err != nil {
		return err
	}
	return lab.Reset(ctx)
}

func (c *Client) Estimate(ctx context.Context, req EstimateRequest) (RunSummary, error) {
	if req.Pathway == "" {
		req.Pathway = "decay"
	}

	now := time.Now().UTC()
	runID := req.RunID
	if runID == "" {
		runID = fmt.Sprintf("%s-%d-%d", req.Pathway, req.Seed, now.Unix())
	}

	lab, err := c.ensureLab(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	result, err := lab.RunEstimation(ctx, platform.EstimationConfig{
		RunID:         runID,
		Pathway:       req.Pathway,
		Organism:      req.Organism,
		Mode:          req.Mode,
		Seed:          req.Seed,
		Workers:       req.Workers,
		Noise:         model.NoiseSpec{Kind: model.NoiseKind(req.NoiseKind), Fraction: req.NoiseFraction},
		Missing:       model.MissingSpec{Probability: req.MissingProb},
		PerturbFrac:   req.PerturbFrac,
		MaxIterations: req.MaxIterations,
		SampleCount:   req.SampleCount,
		Sim:           sim.Config{RTol: req.RTol, ATol: req.ATol},
	})
	if err != nil {
		return RunSummary{}, err
	}

	runDir := result.RunDir
	if runDir != "" {
		runDir = filepath.Clean(runDir)
	}
	return RunSummary{
		RunID:            result.RunID,
		Pathway:          result.Record.Pathway,
		Organism:         result.Record.Organism,
		Mode:             result.Record.Mode,
		State:            string(result.Record.State),
		Iterations:       result.Record.Iterations,
		FinalLogLik:      result.Record.FinalLogLik,
		Estimate:         result.Record.Estimate.Estimate.Clone(),
		RelativeErrors:   result.Record.RelativeErrors,
		TotalSimulations: result.Record.TotalSimulations,
		ElapsedMS:        result.Record.ElapsedMS,
		ArtifactsDir:     runDir,
	}, nil
}

func (c *Client) Robustness(ctx context.Context, req RobustnessRequest) (SweepSummary, error) {
	if req.Pathway == "" {
		req.Pathway = "decay"
	}

	now := time.Now().UTC()
	runID := req.RunID
	if runID == "" {
		runID = fmt.Sprintf("%s-rob-%d-%d", req.Pathway, req.Seed, now.Unix())
	}

	lab, err := c.ensureLab(ctx)
	if err != nil {
		return SweepSummary{}, err
	}

	outcome, err := lab.RunRobustness(ctx, platform.RobustnessConfig{
		RunID:          runID,
		Pathway:        req.Pathway,
		Organism:       req.Organism,
		Mode:           req.Mode,
		Seed:           req.Seed,
		NoiseKind:      model.NoiseKind(req.NoiseKind),
		NoiseFractions: req.NoiseFractions,
		MissingProbs:   req.MissingProbs,
		Trials:         req.Trials,
		Workers:        req.Workers,
		PerturbFrac:    req.PerturbFrac,
	})
	if err != nil {
		return SweepSummary{}, err
	}

	summaries := make([]model.RobustnessSummary, len(outcome.Report.Summaries))
	copy(summaries, outcome.Report.Summaries)
	return SweepSummary{
		RunID:     outcome.RunID,
		SweepID:   outcome.Report.SweepID,
		Pathway:   outcome.Report.Pathway,
		Organism:  outcome.Report.Organism,
		Results:   len(outcome.Report.Results),
		Summaries: summaries,
	}, nil
}

func (c *Client) Fisher(ctx context.Context, req FisherRequest) (model.FisherRecord, error) {
	if req.RunID == "" {
		return model.FisherRecord{}, errors.New("fisher requires run id")
	}

	lab, err := c.ensureLab(ctx)
	if err != nil {
		return model.FisherRecord{}, err
	}

	return lab.RunFisher(ctx, platform.FisherConfig{
		RunID:      req.RunID,
		Noise:      model.NoiseSpec{Kind: model.NoiseKind(req.NoiseKind), Fraction: req.NoiseFraction},
		Missing:    model.MissingSpec{Probability: req.MissingProb},
		RelStep:    req.RelStep,
		EigenFloor: req.EigenFloor,
	})
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:        e.RunID,
			CreatedAtUTC: e.CreatedAtUTC,
			Pathway:      e.Pathway,
			Organism:     e.Organism,
			Mode:         e.Mode,
			Seed:         e.Seed,
			State:        e.State,
			Iterations:   e.Iterations,
			FinalLogLik:  e.FinalLogLik,
		})
	}
	return out, nil
}

// Run fetches one stored run record by id, or the latest when requested.
func (c *Client) Run(ctx context.Context, runID string, latest bool) (model.RunRecord, error) {
	if runID != "" && latest {
		return model.RunRecord{}, errors.New("use either run id or latest")
	}
	if latest {
		id, err := c.latestRunID()
		if err != nil {
			return model.RunRecord{}, err
		}
		runID = id
	}
	if runID == "" {
		return model.RunRecord{}, errors.New("run requires run id or latest")
	}

	if _, err := c.ensureLab(ctx); err != nil {
		return model.RunRecord{}, err
	}
	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if !ok {
		return model.RunRecord{}, fmt.Errorf("run not found: %s", runID)
	}
	return run, nil
}

func (c *Client) Trace(ctx context.Context, req TraceRequest) ([]model.IterationRecord, error) {
	if req.RunID != "" && req.Latest {
		return nil, errors.New("use either run id or latest")
	}
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}

	runID := req.RunID
	if req.Latest {
		id, err := c.latestRunID()
		if err != nil {
			return nil, err
		}
		runID = id
	}
	if runID == "" {
		return nil, errors.New("trace requires run id or latest")
	}

	if _, err := c.ensureLab(ctx); err != nil {
		return nil, err
	}
	iterations, ok, err := c.store.GetIterations(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("trace not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(iterations) > req.Limit {
		iterations = iterations[:req.Limit]
	}
	out := make([]model.IterationRecord, len(iterations))
	copy(out, iterations)
	return out, nil
}

func (c *Client) Models(ctx context.Context) ([]ModelItem, error) {
	lab, err := c.ensureLab(ctx)
	if err != nil {
		return nil, err
	}
	infos, err := lab.Models()
	if err != nil {
		return nil, err
	}
	out := make([]ModelItem, 0, len(infos))
	for _, info := range infos {
		out = append(out, ModelItem{
			Pathway:     info.Pathway,
			Description: info.Description,
			Species:     info.Species,
			Parameters:  info.Parameters,
			Estimated:   info.Estimated,
		})
	}
	return out, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		id, err := c.latestRunID()
		if err != nil {
			return ExportSummary{}, err
		}
		runID = id
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) latestRunID() (string, error) {
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func (c *Client) ensureLab(ctx context.Context) (*platform.Lab, error) {
	if c.lab != nil {
		return c.lab, nil
	}
	l := platform.NewLab(platform.Config{Store: c.store, ArtifactsDir: c.artifactsDir})
	if err := l.Init(ctx); err != nil {
		return nil, err
	}
	c.lab = l
	return c.lab, nil
}
