package model

import (
	"fmt"
	"math"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunState is the terminal (or in-flight) state of one estimation run.
type RunState string

const (
	StateRunning        RunState = "RUNNING"
	StateConverged      RunState = "CONVERGED"
	StateMaxIterReached RunState = "MAX_ITER_REACHED"
	StateFailed         RunState = "FAILED"
)

// NoiseSpec describes the Gaussian measurement-noise model applied to
// synthetic observations and assumed during likelihood evaluation.
type NoiseSpec struct {
	Kind     NoiseKind `json:"kind"`
	Fraction float64   `json:"fraction"`
}

type NoiseKind string

const (
	NoiseAdditive       NoiseKind = "additive"
	NoiseMultiplicative NoiseKind = "multiplicative"
)

func (n NoiseSpec) Validate() error {
	switch n.Kind {
	case NoiseAdditive, NoiseMultiplicative:
	default:
		return fmt.Errorf("unknown noise kind: %q", n.Kind)
	}
	if !(n.Fraction > 0) || n.Fraction >= 1 {
		return fmt.Errorf("noise fraction must be in (0, 1), got %v", n.Fraction)
	}
	return nil
}

// MissingSpec describes independent per-point missingness.
type MissingSpec struct {
	Probability float64 `json:"probability"`
}

func (m MissingSpec) Validate() error {
	if math.IsNaN(m.Probability) || m.Probability < 0 || m.Probability > 1 {
		return fmt.Errorf("missing probability must be in [0, 1], got %v", m.Probability)
	}
	return nil
}

// Trajectory is the integrated state of a pathway on a fixed time grid.
// States[i] holds the species concentrations at Times[i].
type Trajectory struct {
	Times  []float64   `json:"times"`
	States [][]float64 `json:"states"`
}

// Observation is a trajectory subsampled to the observed species, corrupted
// by measurement noise and a missing mask. Missing entries keep their slot
// in Values as zero but carry no information; the mask is authoritative.
// Sigmas holds the per-entry noise scale fixed when the observation was
// generated, so likelihoods stay comparable across candidates. StateIndex
// maps each observed species to its column in the model state vector.
type Observation struct {
	Species    []string    `json:"species"`
	StateIndex []int       `json:"state_index"`
	Times      []float64   `json:"times"`
	Values     [][]float64 `json:"values"`
	Sigmas     [][]float64 `json:"sigmas"`
	Missing    [][]bool    `json:"missing"`
}

// ObservedCount reports how many entries are present (not masked).
func (o Observation) ObservedCount() int {
	n := 0
	for i := range o.Values {
		for j := range o.Values[i] {
			if i < len(o.Missing) && j < len(o.Missing[i]) && o.Missing[i][j] {
				continue
			}
			n++
		}
	}
	return n
}

type SampleWeight struct {
	Params ParameterVector `json:"params"`
	Weight float64         `json:"weight"`
}

// IterationRecord is one MCEM iteration's diagnostics. Records are appended
// by the engine and never mutated afterward. Population holds the top
// weighted candidates of the iteration, bounded by the engine's record
// limit; moments of the full population are carried by Estimate and CovDiag.
type IterationRecord struct {
	Iteration     int             `json:"iteration"`
	Estimate      ParameterVector `json:"estimate"`
	CovDiag       []float64       `json:"cov_diag"`
	LogLikelihood float64         `json:"log_likelihood"`
	MeanChange    float64         `json:"mean_change"`
	LogLikChange  float64         `json:"log_lik_change"`
	ESS           float64         `json:"ess"`
	Survivors     int             `json:"survivors"`
	Failures      int             `json:"failures"`
	Degenerate    bool            `json:"degenerate"`
	Widened       bool            `json:"widened"`
	Population    []SampleWeight  `json:"population,omitempty"`
	ElapsedMS     int64           `json:"elapsed_ms"`
}

// RunRecord is the persisted summary of one estimation run.
type RunRecord struct {
	VersionedRecord
	ID               string             `json:"id"`
	Pathway          string             `json:"pathway"`
	Organism         string             `json:"organism"`
	Mode             string             `json:"mode"`
	Seed             int64              `json:"seed"`
	State            RunState           `json:"state"`
	Estimate         ParameterSet       `json:"estimate"`
	Iterations       int                `json:"iterations"`
	FinalLogLik      float64            `json:"final_log_lik"`
	TotalSimulations int64              `json:"total_simulations"`
	TotalFailures    int64              `json:"total_failures"`
	RelativeErrors   map[string]float64 `json:"relative_errors,omitempty"`
	CreatedAtUTC     string             `json:"created_at_utc"`
	ElapsedMS        int64              `json:"elapsed_ms"`
}

// RobustnessResult records one trial of the noise/missing-data sweep.
type RobustnessResult struct {
	VersionedRecord
	ID            string          `json:"id"`
	SweepID       string          `json:"sweep_id"`
	NoiseFraction float64         `json:"noise_fraction"`
	MissingProb   float64         `json:"missing_prob"`
	Trial         int             `json:"trial"`
	State         RunState        `json:"state"`
	Estimate      ParameterVector `json:"estimate"`
	MeanRelError  float64         `json:"mean_rel_error"`
	ElapsedMS     int64           `json:"elapsed_ms"`
}

// RobustnessSummary aggregates all trials of one sweep cell.
type RobustnessSummary struct {
	NoiseFraction   float64 `json:"noise_fraction"`
	MissingProb     float64 `json:"missing_prob"`
	Trials          int     `json:"trials"`
	Converged       int     `json:"converged"`
	SuccessRate     float64 `json:"success_rate"`
	MeanRelError    float64 `json:"mean_rel_error"`
	MedianRelError  float64 `json:"median_rel_error"`
	StdRelError     float64 `json:"std_rel_error"`
	MedianElapsedMS float64 `json:"median_elapsed_ms"`
}

// IdentifiabilityRank scores one parameter from the Fisher analysis.
// Score is the Cramér-Rao relative standard error bound; rank 1 is the
// most identifiable parameter.
type IdentifiabilityRank struct {
	Name  string  `json:"name"`
	CRLB  float64 `json:"crlb"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// NullDirection is a flat direction of the likelihood surface: an
// eigenvector of the Fisher matrix whose eigenvalue fell below the
// identifiability threshold.
type NullDirection struct {
	Eigenvalue float64   `json:"eigenvalue"`
	Components []float64 `json:"components"`
}

// FisherRecord is the persisted Fisher Information analysis of a run.
type FisherRecord struct {
	VersionedRecord
	RunID           string                `json:"run_id"`
	Names           []string              `json:"names"`
	Matrix          [][]float64           `json:"matrix"`
	Eigenvalues     []float64             `json:"eigenvalues"`
	ConditionNumber float64               `json:"condition_number"`
	Rankings        []IdentifiabilityRank `json:"rankings"`
	NullDirections  []NullDirection       `json:"null_directions,omitempty"`
}
