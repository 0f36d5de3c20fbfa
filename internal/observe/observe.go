// Package observe turns simulated trajectories into noisy, partially
// missing observations and scores candidate trajectories against them.
package observe

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"kinetikos/internal/model"
)

// Noise scales are floored so an exactly-zero signal still carries a
// usable sigma.
const sigmaFloor = 1e-12

const logSqrt2Pi = 0.9189385332046727

// Observe corrupts traj with Gaussian noise and an independent missing
// mask. speciesNames labels the trajectory columns; observed selects the
// columns that end up in the observation. Masked entries consume the
// same random draws as present ones, so two observations from equally
// seeded generators differ only in what the mask hides.
func Observe(traj model.Trajectory, speciesNames, observed []string, noise model.NoiseSpec, missing model.MissingSpec, rng *rand.Rand) (model.Observation, error) {
	if err := noise.Validate(); err != nil {
		return model.Observation{}, err
	}
	if err := missing.Validate(); err != nil {
		return model.Observation{}, err
	}
	if rng == nil {
		return model.Observation{}, fmt.Errorf("observe: nil rng")
	}
	obs, err := exact(traj, speciesNames, observed, noise)
	if err != nil {
		return model.Observation{}, err
	}

	unit := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}
	mask := distuv.Bernoulli{P: missing.Probability, Src: rng}

	for i := range obs.Times {
		for j := range observed {
			eps := unit.Rand()
			hidden := mask.Rand() == 1

			truth := traj.States[i][obs.StateIndex[j]]
			switch noise.Kind {
			case model.NoiseAdditive:
				obs.Values[i][j] = truth + obs.Sigmas[i][j]*eps
			case model.NoiseMultiplicative:
				obs.Values[i][j] = truth * (1 + noise.Fraction*eps)
			}
			if hidden {
				obs.Values[i][j] = 0
				obs.Missing[i][j] = true
			}
		}
	}
	return obs, nil
}

// Exact builds an observation that reproduces the trajectory verbatim,
// with sigmas derived from the noise spec but no corruption and no mask.
func Exact(traj model.Trajectory, speciesNames, observed []string, noise model.NoiseSpec) (model.Observation, error) {
	if err := noise.Validate(); err != nil {
		return model.Observation{}, err
	}
	return exact(traj, speciesNames, observed, noise)
}

func exact(traj model.Trajectory, speciesNames, observed []string, noise model.NoiseSpec) (model.Observation, error) {
	if len(traj.Times) == 0 || len(traj.States) != len(traj.Times) {
		return model.Observation{}, fmt.Errorf("observe: empty or inconsistent trajectory")
	}
	if len(observed) == 0 {
		return model.Observation{}, fmt.Errorf("observe: no observed species")
	}

	index, err := stateIndex(speciesNames, observed)
	if err != nil {
		return model.Observation{}, err
	}
	for i, state := range traj.States {
		if len(state) != len(speciesNames) {
			return model.Observation{}, fmt.Errorf("observe: state %d has %d entries, want %d", i, len(state), len(speciesNames))
		}
	}

	n := len(traj.Times)
	m := len(observed)
	obs := model.Observation{
		Species:    append([]string(nil), observed...),
		StateIndex: index,
		Times:      append([]float64(nil), traj.Times...),
		Values:     make([][]float64, n),
		Sigmas:     make([][]float64, n),
		Missing:    make([][]bool, n),
	}

	// Additive sigma is per species, proportional to the species'
	// mean absolute level. Multiplicative sigma tracks each value.
	scale := make([]float64, m)
	if noise.Kind == model.NoiseAdditive {
		for j, k := range index {
			sum := 0.0
			for i := range traj.States {
				sum += math.Abs(traj.States[i][k])
			}
			scale[j] = math.Max(noise.Fraction*sum/float64(n), sigmaFloor)
		}
	}

	for i := range traj.States {
		obs.Values[i] = make([]float64, m)
		obs.Sigmas[i] = make([]float64, m)
		obs.Missing[i] = make([]bool, m)
		for j, k := range index {
			obs.Values[i][j] = traj.States[i][k]
			switch noise.Kind {
			case model.NoiseAdditive:
				obs.Sigmas[i][j] = scale[j]
			case model.NoiseMultiplicative:
				obs.Sigmas[i][j] = math.Max(noise.Fraction*math.Abs(traj.States[i][k]), sigmaFloor)
			}
		}
	}
	return obs, nil
}

func stateIndex(speciesNames, observed []string) ([]int, error) {
	pos := make(map[string]int, len(speciesNames))
	for i, name := range speciesNames {
		pos[name] = i
	}
	index := make([]int, len(observed))
	seen := make(map[string]bool, len(observed))
	for j, name := range observed {
		k, ok := pos[name]
		if !ok {
			return nil, fmt.Errorf("observe: species %s not in model", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("observe: species %s observed twice", name)
		}
		seen[name] = true
		index[j] = k
	}
	return index, nil
}

// LogDensity scores a candidate trajectory against the observation under
// independent Gaussians with the observation's stored sigmas. Missing
// entries are excluded entirely. The count of contributing points is
// returned alongside; structural disagreement between the two shapes
// yields -Inf rather than an error.
func LogDensity(obs model.Observation, traj model.Trajectory) (float64, int) {
	if len(traj.Times) != len(obs.Times) || len(traj.States) != len(obs.Times) {
		return math.Inf(-1), 0
	}
	if len(obs.Values) != len(obs.Times) || len(obs.Sigmas) != len(obs.Times) || len(obs.Missing) != len(obs.Times) {
		return math.Inf(-1), 0
	}
	m := len(obs.Species)
	if len(obs.StateIndex) != m {
		return math.Inf(-1), 0
	}
	logp := 0.0
	points := 0
	for i := range obs.Times {
		state := traj.States[i]
		if len(obs.Values[i]) != m || len(obs.Sigmas[i]) != m || len(obs.Missing[i]) != m {
			return math.Inf(-1), 0
		}
		for j := range obs.Species {
			if obs.Missing[i][j] {
				continue
			}
			k := obs.StateIndex[j]
			if k < 0 || k >= len(state) {
				return math.Inf(-1), 0
			}
			sigma := obs.Sigmas[i][j]
			if !(sigma > 0) {
				return math.Inf(-1), 0
			}
			r := (obs.Values[i][j] - state[k]) / sigma
			logp += -0.5*r*r - math.Log(sigma) - logSqrt2Pi
			points++
		}
	}
	return logp, points
}
