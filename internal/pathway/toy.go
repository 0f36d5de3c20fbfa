package pathway

// Decay is a single-species first-order elimination, dx/dt = -k*x.
// Small enough that estimation runs finish in test time, with an
// analytically known solution x(t) = x0*exp(-k*t).
type Decay struct{}

func (Decay) Name() string { return "decay" }

func (Decay) Description() string { return "first-order decay toy, 1 species" }

func (Decay) Species() []string { return []string{"x"} }

func (Decay) ParameterNames() []string { return []string{"k"} }

func (Decay) Defaults() []float64 { return []float64{1.0} }

func (Decay) InitialState() []float64 { return []float64{1.0} }

func (Decay) DefaultGrid() []float64 { return TimeGrid(0, 5, 50) }

func (Decay) EstimatedNames() []string { return []string{"k"} }

func (Decay) Derivatives(dst, y, p []float64, _ float64) {
	dst[0] = -p[0] * y[0]
}

// Cascade is a two-step linear chain, dx1/dt = -k1*x1 and
// dx2/dt = k1*x1 - k2*x2. Observing x1 alone leaves k2 unconstrained,
// which makes it the reference case for identifiability analysis.
type Cascade struct{}

func (Cascade) Name() string { return "cascade" }

func (Cascade) Description() string { return "two-step linear cascade toy, 2 species" }

func (Cascade) Species() []string { return []string{"x1", "x2"} }

func (Cascade) ParameterNames() []string { return []string{"k1", "k2"} }

func (Cascade) Defaults() []float64 { return []float64{1.0, 0.5} }

func (Cascade) InitialState() []float64 { return []float64{1.0, 0.0} }

func (Cascade) DefaultGrid() []float64 { return TimeGrid(0, 5, 50) }

func (Cascade) EstimatedNames() []string { return []string{"k1", "k2"} }

func (Cascade) Derivatives(dst, y, p []float64, _ float64) {
	dst[0] = -p[0] * y[0]
	dst[1] = p[0]*y[0] - p[1]*y[1]
}
