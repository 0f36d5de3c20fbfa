// Package sim integrates pathway ODE systems over fixed observation
// grids with an adaptive embedded Runge-Kutta scheme. Integration is
// deterministic: no randomness, no shared state, identical inputs give
// identical trajectories.
package sim

import (
	"math"

	"kinetikos/internal/model"
)

// System is the part of a pathway model the integrator needs.
type System interface {
	Name() string
	Species() []string
	ParameterNames() []string
	Derivatives(dst, state, params []float64, t float64)
}

// Config bounds the integrator. Zero values take defaults.
type Config struct {
	RTol        float64
	ATol        float64
	InitialStep float64
	MinStep     float64
	MaxSteps    int
}

// DefaultConfig returns the tolerances used for estimation runs.
func DefaultConfig() Config {
	return Config{
		RTol:     1e-6,
		ATol:     1e-8,
		MinStep:  1e-13,
		MaxSteps: 200_000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RTol <= 0 {
		c.RTol = d.RTol
	}
	if c.ATol <= 0 {
		c.ATol = d.ATol
	}
	if c.MinStep <= 0 {
		c.MinStep = d.MinStep
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = d.MaxSteps
	}
	return c
}

// Cash-Karp embedded 4(5) coefficients.
const (
	ckA21 = 1.0 / 5.0
	ckA31 = 3.0 / 40.0
	ckA32 = 9.0 / 40.0
	ckA41 = 3.0 / 10.0
	ckA42 = -9.0 / 10.0
	ckA43 = 6.0 / 5.0
	ckA51 = -11.0 / 54.0
	ckA52 = 5.0 / 2.0
	ckA53 = -70.0 / 27.0
	ckA54 = 35.0 / 27.0
	ckA61 = 1631.0 / 55296.0
	ckA62 = 175.0 / 512.0
	ckA63 = 575.0 / 13824.0
	ckA64 = 44275.0 / 110592.0
	ckA65 = 253.0 / 4096.0

	ckC2 = 1.0 / 5.0
	ckC3 = 3.0 / 10.0
	ckC4 = 3.0 / 5.0
	ckC5 = 1.0
	ckC6 = 7.0 / 8.0

	ckB1 = 37.0 / 378.0
	ckB3 = 250.0 / 621.0
	ckB4 = 125.0 / 594.0
	ckB6 = 512.0 / 1771.0

	ckD1 = 2825.0 / 27648.0
	ckD3 = 18575.0 / 48384.0
	ckD4 = 13525.0 / 55296.0
	ckD5 = 277.0 / 14336.0
	ckD6 = 1.0 / 4.0
)

const (
	stepSafety = 0.9
	stepShrink = 0.1
	stepGrow   = 5.0
)

// Simulator integrates systems under a fixed Config. Safe for
// concurrent use: each Simulate call owns its scratch space.
type Simulator struct {
	cfg Config
}

func New(cfg Config) *Simulator {
	return &Simulator{cfg: cfg.withDefaults()}
}

func (s *Simulator) Config() Config { return s.cfg }

// Simulate integrates sys from init over grid and returns the states at
// every grid point, the first included verbatim. Dimension disagreements
// return *ModelMismatchError; numerical breakdown returns
// *IntegrationFailure with the reason, time and step count.
func (s *Simulator) Simulate(sys System, params, init, grid []float64) (model.Trajectory, error) {
	if want := len(sys.ParameterNames()); len(params) != want {
		return model.Trajectory{}, &ModelMismatchError{Model: sys.Name(), What: "parameters", Want: want, Got: len(params)}
	}
	if want := len(sys.Species()); len(init) != want {
		return model.Trajectory{}, &ModelMismatchError{Model: sys.Name(), What: "state", Want: want, Got: len(init)}
	}
	if err := checkInputs(params, init, grid); err != nil {
		return model.Trajectory{}, err
	}

	n := len(init)
	w := newWorkspace(n)
	copy(w.y, init)

	traj := model.Trajectory{
		Times:  append([]float64(nil), grid...),
		States: make([][]float64, len(grid)),
	}
	traj.States[0] = append([]float64(nil), init...)

	t := grid[0]
	h := s.cfg.InitialStep
	if h <= 0 {
		h = (grid[1] - grid[0]) / 10
	}
	steps := 0

	for gi := 1; gi < len(grid); gi++ {
		target := grid[gi]
		for t < target {
			if steps >= s.cfg.MaxSteps {
				return model.Trajectory{}, &IntegrationFailure{Reason: ReasonStepBudget, Time: t, Steps: steps}
			}
			steps++

			// Land exactly on the grid point. A capped step must not
			// feed back into the controller step size.
			hTry := h
			capped := false
			if hTry > target-t {
				hTry = target - t
				capped = true
			}

			sys.Derivatives(w.k1, w.y, params, t)
			if !allFinite(w.k1) {
				return model.Trajectory{}, &IntegrationFailure{Reason: ReasonNonFinite, Time: t, Steps: steps}
			}

			errNorm := s.attempt(sys, params, t, hTry, w)
			if !(errNorm <= 1) {
				// Rejected or non-finite trial: shrink and retry from
				// the same state. k1 stays valid.
				factor := stepShrink
				if errNorm > 1 && !math.IsNaN(errNorm) && !math.IsInf(errNorm, 0) {
					factor = math.Max(stepSafety*math.Pow(errNorm, -0.25), stepShrink)
				}
				h = hTry * factor
				if h < s.cfg.MinStep {
					return model.Trajectory{}, &IntegrationFailure{Reason: ReasonStepUnderflow, Time: t, Steps: steps}
				}
				continue
			}

			copy(w.y, w.y5)
			if !allFinite(w.y) {
				return model.Trajectory{}, &IntegrationFailure{Reason: ReasonNonFinite, Time: t, Steps: steps}
			}
			t += hTry
			if !capped {
				if errNorm > 0 {
					h = hTry * math.Min(stepSafety*math.Pow(errNorm, -0.2), stepGrow)
				} else {
					h = hTry * stepGrow
				}
			}
		}
		traj.States[gi] = append([]float64(nil), w.y...)
		t = target
	}
	return traj, nil
}

// attempt advances one trial step of size h from (t, w.y), leaving the
// fifth-order solution in w.y5. Returns the scaled error norm; NaN or
// Inf means the trial must be rejected.
func (s *Simulator) attempt(sys System, params []float64, t, h float64, w *workspace) float64 {
	n := len(w.y)

	for i := 0; i < n; i++ {
		w.tmp[i] = w.y[i] + h*ckA21*w.k1[i]
	}
	sys.Derivatives(w.k2, w.tmp, params, t+ckC2*h)

	for i := 0; i < n; i++ {
		w.tmp[i] = w.y[i] + h*(ckA31*w.k1[i]+ckA32*w.k2[i])
	}
	sys.Derivatives(w.k3, w.tmp, params, t+ckC3*h)

	for i := 0; i < n; i++ {
		w.tmp[i] = w.y[i] + h*(ckA41*w.k1[i]+ckA42*w.k2[i]+ckA43*w.k3[i])
	}
	sys.Derivatives(w.k4, w.tmp, params, t+ckC4*h)

	for i := 0; i < n; i++ {
		w.tmp[i] = w.y[i] + h*(ckA51*w.k1[i]+ckA52*w.k2[i]+ckA53*w.k3[i]+ckA54*w.k4[i])
	}
	sys.Derivatives(w.k5, w.tmp, params, t+ckC5*h)

	for i := 0; i < n; i++ {
		w.tmp[i] = w.y[i] + h*(ckA61*w.k1[i]+ckA62*w.k2[i]+ckA63*w.k3[i]+ckA64*w.k4[i]+ckA65*w.k5[i])
	}
	sys.Derivatives(w.k6, w.tmp, params, t+ckC6*h)

	errNorm := 0.0
	for i := 0; i < n; i++ {
		y5 := w.y[i] + h*(ckB1*w.k1[i]+ckB3*w.k3[i]+ckB4*w.k4[i]+ckB6*w.k6[i])
		y4 := w.y[i] + h*(ckD1*w.k1[i]+ckD3*w.k3[i]+ckD4*w.k4[i]+ckD5*w.k5[i]+ckD6*w.k6[i])
		w.y5[i] = y5

		scale := s.cfg.ATol + s.cfg.RTol*math.Max(math.Abs(w.y[i]), math.Abs(y5))
		e := math.Abs(y5-y4) / scale
		if e > errNorm || math.IsNaN(e) {
			errNorm = e
		}
	}
	return errNorm
}

type workspace struct {
	y, y5, tmp             []float64
	k1, k2, k3, k4, k5, k6 []float64
}

func newWorkspace(n int) *workspace {
	block := make([]float64, 9*n)
	return &workspace{
		y:   block[0*n : 1*n],
		y5:  block[1*n : 2*n],
		tmp: block[2*n : 3*n],
		k1:  block[3*n : 4*n],
		k2:  block[4*n : 5*n],
		k3:  block[5*n : 6*n],
		k4:  block[6*n : 7*n],
		k5:  block[7*n : 8*n],
		k6:  block[8*n : 9*n],
	}
}

func checkInputs(params, init, grid []float64) error {
	if len(grid) < 2 {
		return &IntegrationFailure{Reason: ReasonBadInput}
	}
	for i := 1; i < len(grid); i++ {
		if !(grid[i] > grid[i-1]) {
			return &IntegrationFailure{Reason: ReasonBadInput, Time: grid[i]}
		}
	}
	if !allFinite(params) || !allFinite(init) || !allFinite(grid) {
		return &IntegrationFailure{Reason: ReasonBadInput}
	}
	return nil
}

func allFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
