package pathway

import (
	"fmt"
	"strings"

	"golang.org/x/exp/rand"

	"kinetikos/internal/model"
)

// Model defines the ODE right-hand side of a metabolic network together
// with its reference configuration. Derivatives must be pure: no retained
// state, no allocation, and no panic for numerically extreme but
// dimensionally valid inputs. Blow-up is the simulator's concern.
type Model interface {
	Name() string
	Description() string
	Species() []string
	ParameterNames() []string
	Defaults() []float64
	InitialState() []float64
	DefaultGrid() []float64
	EstimatedNames() []string
	Derivatives(dst, state, params []float64, t float64)
}

type paramDef struct {
	name  string
	value float64
}

func catalogNames(defs []paramDef) []string {
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.name
	}
	return names
}

func catalogValues(defs []paramDef) []float64 {
	values := make([]float64, len(defs))
	for i, d := range defs {
		values[i] = d.value
	}
	return values
}

// Organisms lists the registered organism variants. The yeast template is
// the literature baseline; the others are uniformly scaled copies of it.
func Organisms() []string {
	return []string{"yeast", "ecoli", "bsubtilis", "arabidopsis"}
}

func organismScale(organism string) (float64, error) {
	switch strings.TrimSpace(strings.ToLower(organism)) {
	case "", "yeast":
		return 1.0, nil
	case "ecoli":
		return 0.90, nil
	case "bsubtilis":
		return 0.95, nil
	case "arabidopsis":
		return 1.10, nil
	default:
		return 0, fmt.Errorf("unknown organism: %s", organism)
	}
}

// Spec is one immutable estimation problem: a model plus its
// organism-scaled parameter values, initial conditions, time grid and
// observed species. Read-only during estimation.
type Spec struct {
	Pathway        string
	Organism       string
	Model          Model
	Defaults       model.ParameterVector
	EstimatedNames []string
	InitialState   []float64
	Grid           []float64
	Observed       []string
}

func NewSpec(pathwayName, organism string) (Spec, error) {
	var m Model
	switch strings.TrimSpace(strings.ToLower(pathwayName)) {
	case "glycolysis":
		m = Glycolysis{}
	case "tca":
		m = TCA{}
	case "decay":
		m = Decay{}
	case "cascade":
		m = Cascade{}
	default:
		return Spec{}, fmt.Errorf("unknown pathway: %s", pathwayName)
	}

	scale, err := organismScale(organism)
	if err != nil {
		return Spec{}, err
	}
	if organism == "" {
		organism = "yeast"
	}

	values := m.Defaults()
	scaled := make([]float64, len(values))
	for i, v := range values {
		scaled[i] = v * scale
	}
	defaults, err := model.NewParameterVector(m.ParameterNames(), scaled)
	if err != nil {
		return Spec{}, fmt.Errorf("pathway %s defaults: %w", m.Name(), err)
	}

	return Spec{
		Pathway:        m.Name(),
		Organism:       strings.ToLower(organism),
		Model:          m,
		Defaults:       defaults,
		EstimatedNames: m.EstimatedNames(),
		InitialState:   append([]float64(nil), m.InitialState()...),
		Grid:           append([]float64(nil), m.DefaultGrid()...),
		Observed:       m.Species(),
	}, nil
}

// Pathways lists the registered pathway models.
func Pathways() []string {
	return []string{"glycolysis", "tca", "decay", "cascade"}
}

// EstimatedIndices maps each estimated parameter name to its position in
// the full default vector.
func (s Spec) EstimatedIndices() ([]int, error) {
	idx := make([]int, len(s.EstimatedNames))
	for i, name := range s.EstimatedNames {
		j := s.Defaults.Index(name)
		if j < 0 {
			return nil, fmt.Errorf("estimated parameter %s not in pathway %s", name, s.Pathway)
		}
		idx[i] = j
	}
	return idx, nil
}

// EstimatedTruth extracts the estimated subset of the organism defaults,
// the ground truth in validation mode.
func (s Spec) EstimatedTruth() (model.ParameterVector, error) {
	values := make([]float64, len(s.EstimatedNames))
	for i, name := range s.EstimatedNames {
		v, ok := s.Defaults.Get(name)
		if !ok {
			return model.ParameterVector{}, fmt.Errorf("estimated parameter %s not in pathway %s", name, s.Pathway)
		}
		values[i] = v
	}
	return model.NewParameterVector(s.EstimatedNames, values)
}

// PerturbedGuess builds the validation prior: truth scaled entrywise by
// 1 + frac*(u-0.5) with u uniform on [0,1).
func PerturbedGuess(truth model.ParameterVector, frac float64, rng *rand.Rand) (model.ParameterVector, error) {
	if frac < 0 || frac >= 2 {
		return model.ParameterVector{}, fmt.Errorf("perturbation fraction must be in [0, 2), got %v", frac)
	}
	values := make([]float64, truth.Len())
	for i, v := range truth.Values {
		values[i] = v * (1 + frac*(rng.Float64()-0.5))
	}
	return model.NewParameterVector(truth.Names, values)
}

// TimeGrid builds n evenly spaced points from start to end inclusive.
func TimeGrid(start, end float64, n int) []float64 {
	if n < 2 {
		return []float64{start}
	}
	grid := make([]float64, n)
	step := (end - start) / float64(n-1)
	for i := range grid {
		grid[i] = start + float64(i)*step
	}
	grid[n-1] = end
	return grid
}
