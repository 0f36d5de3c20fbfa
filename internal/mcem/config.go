package mcem

import (
	"fmt"
	"strings"

	"kinetikos/internal/sim"
)

// EngineConfig bounds one estimation run. Zero values for the optional
// knobs take the balanced-mode defaults.
type EngineConfig struct {
	MaxIterations int
	SampleCount   int
	Workers       int
	Seed          uint64

	// InitialLogSD is the standard deviation of the initial log-space
	// proposal around the starting guess.
	InitialLogSD float64

	// Convergence: both changes must stay below tolerance for
	// ConvergeWindow consecutive iterations.
	TolMeanRel     float64
	TolLogLik      float64
	ConvergeWindow int

	// ESSFraction is the effective-sample-size floor as a fraction of
	// SampleCount; dropping below it widens the proposal. WidenFactor
	// multiplies the proposal covariance on widening.
	ESSFraction float64
	WidenFactor float64

	// RecordTopK bounds how many weighted candidates each iteration
	// record keeps.
	RecordTopK int

	Sim sim.Config
}

// Modes preconfigure iteration and sampling budgets.
const (
	ModeTest     = "test"
	ModeFast     = "fast"
	ModeBalanced = "balanced"
	ModePrecise  = "precise"
)

// Modes lists the run modes from cheapest to most thorough.
func Modes() []string {
	return []string{ModeTest, ModeFast, ModeBalanced, ModePrecise}
}

// ConfigForMode maps a run mode to its engine budget.
func ConfigForMode(mode string) (EngineConfig, error) {
	cfg := EngineConfig{
		InitialLogSD:   0.2,
		TolMeanRel:     0.01,
		TolLogLik:      0.05,
		ConvergeWindow: 2,
		ESSFraction:    0.05,
		WidenFactor:    2.0,
		RecordTopK:     5,
	}
	switch strings.TrimSpace(strings.ToLower(mode)) {
	case ModeTest:
		cfg.MaxIterations = 20
		cfg.SampleCount = 500
	case ModeFast:
		cfg.MaxIterations = 100
		cfg.SampleCount = 1000
	case "", ModeBalanced:
		cfg.MaxIterations = 150
		cfg.SampleCount = 1500
	case ModePrecise:
		cfg.MaxIterations = 200
		cfg.SampleCount = 2000
	default:
		return EngineConfig{}, fmt.Errorf("unknown run mode: %s", mode)
	}
	return cfg, nil
}

func (c EngineConfig) validate() (EngineConfig, error) {
	if c.MaxIterations <= 0 {
		return c, fmt.Errorf("max iterations must be > 0")
	}
	if c.SampleCount < 2 {
		return c, fmt.Errorf("sample count must be >= 2")
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.InitialLogSD <= 0 {
		return c, fmt.Errorf("initial log sd must be > 0")
	}
	if c.TolMeanRel <= 0 || c.TolLogLik <= 0 {
		return c, fmt.Errorf("convergence tolerances must be > 0")
	}
	if c.ConvergeWindow <= 0 {
		return c, fmt.Errorf("convergence window must be > 0")
	}
	if c.ESSFraction < 0 || c.ESSFraction >= 1 {
		return c, fmt.Errorf("ess fraction must be in [0, 1)")
	}
	if c.WidenFactor <= 1 {
		return c, fmt.Errorf("widen factor must be > 1")
	}
	if c.RecordTopK < 0 {
		return c, fmt.Errorf("record top-k must be >= 0")
	}
	return c, nil
}
