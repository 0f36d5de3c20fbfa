package model

import (
	"fmt"
	"math"
)

// ParameterVector is an ordered pairing of kinetic parameter names and
// strictly positive values. Order is significant: it fixes the coordinate
// system used by proposal covariances and Fisher matrices.
type ParameterVector struct {
	Names  []string  `json:"names"`
	Values []float64 `json:"values"`
}

func NewParameterVector(names []string, values []float64) (ParameterVector, error) {
	if len(names) == 0 {
		return ParameterVector{}, fmt.Errorf("parameter vector requires at least one entry")
	}
	if len(names) != len(values) {
		return ParameterVector{}, fmt.Errorf("parameter vector name/value length mismatch: %d vs %d", len(names), len(values))
	}
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		if name == "" {
			return ParameterVector{}, fmt.Errorf("parameter %d has empty name", i)
		}
		if seen[name] {
			return ParameterVector{}, fmt.Errorf("duplicate parameter name: %s", name)
		}
		seen[name] = true
		if !(values[i] > 0) || math.IsInf(values[i], 0) || math.IsNaN(values[i]) {
			return ParameterVector{}, fmt.Errorf("parameter %s must be strictly positive and finite, got %v", name, values[i])
		}
	}
	v := ParameterVector{
		Names:  append([]string(nil), names...),
		Values: append([]float64(nil), values...),
	}
	return v, nil
}

func (v ParameterVector) Len() int {
	return len(v.Values)
}

func (v ParameterVector) Clone() ParameterVector {
	return ParameterVector{
		Names:  append([]string(nil), v.Names...),
		Values: append([]float64(nil), v.Values...),
	}
}

// Index returns the position of name, or -1 when absent.
func (v ParameterVector) Index(name string) int {
	for i, n := range v.Names {
		if n == name {
			return i
		}
	}
	return -1
}

func (v ParameterVector) Get(name string) (float64, bool) {
	i := v.Index(name)
	if i < 0 {
		return 0, false
	}
	return v.Values[i], true
}

// Positive reports whether every entry is strictly positive and finite.
func (v ParameterVector) Positive() bool {
	for _, x := range v.Values {
		if !(x > 0) || math.IsInf(x, 0) || math.IsNaN(x) {
			return false
		}
	}
	return true
}

// Log returns the entrywise natural logarithm of the values.
func (v ParameterVector) Log() []float64 {
	out := make([]float64, len(v.Values))
	for i, x := range v.Values {
		out[i] = math.Log(x)
	}
	return out
}

// RelativeErrors computes |estimate-truth|/truth per parameter, keyed by
// name. The two vectors must share names and order.
func (v ParameterVector) RelativeErrors(truth ParameterVector) (map[string]float64, error) {
	if len(v.Names) != len(truth.Names) {
		return nil, fmt.Errorf("relative errors: dimension mismatch %d vs %d", len(v.Names), len(truth.Names))
	}
	out := make(map[string]float64, len(v.Names))
	for i, name := range v.Names {
		if truth.Names[i] != name {
			return nil, fmt.Errorf("relative errors: name mismatch at %d: %s vs %s", i, name, truth.Names[i])
		}
		out[name] = math.Abs(v.Values[i]-truth.Values[i]) / truth.Values[i]
	}
	return out, nil
}

// MeanRelativeError is the arithmetic mean of the per-parameter errors.
func (v ParameterVector) MeanRelativeError(truth ParameterVector) (float64, error) {
	errs, err := v.RelativeErrors(truth)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for _, e := range errs {
		sum += e
	}
	return sum / float64(len(errs)), nil
}

// ParameterSet pairs a point estimate with its log-space covariance and,
// in validation mode, the known true values. Covariance is stored row-major
// over log-parameters so the record stays plainly serializable.
type ParameterSet struct {
	Estimate      ParameterVector  `json:"estimate"`
	LogCovariance [][]float64      `json:"log_covariance"`
	Truth         *ParameterVector `json:"truth,omitempty"`
}

func (s ParameterSet) Clone() ParameterSet {
	out := ParameterSet{Estimate: s.Estimate.Clone()}
	if s.LogCovariance != nil {
		out.LogCovariance = make([][]float64, len(s.LogCovariance))
		for i := range s.LogCovariance {
			out.LogCovariance[i] = append([]float64(nil), s.LogCovariance[i]...)
		}
	}
	if s.Truth != nil {
		t := s.Truth.Clone()
		out.Truth = &t
	}
	return out
}

// DiagonalCovariance builds a diagonal log-space covariance with the given
// standard deviation on every coordinate.
func DiagonalCovariance(dim int, sd float64) [][]float64 {
	cov := make([][]float64, dim)
	for i := range cov {
		cov[i] = make([]float64, dim)
		cov[i][i] = sd * sd
	}
	return cov
}
