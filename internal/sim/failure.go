package sim

import "fmt"

// Failure reasons carried by IntegrationFailure.
const (
	ReasonBadInput      = "bad_input"
	ReasonNonFinite     = "nonfinite_state"
	ReasonStepUnderflow = "step_underflow"
	ReasonStepBudget    = "step_budget"
)

// IntegrationFailure reports a trajectory that could not be completed.
// Callers sampling candidate parameters treat it as an expected outcome,
// not a fault: the candidate is discarded and the run continues.
type IntegrationFailure struct {
	Reason string
	Time   float64
	Steps  int
}

func (e *IntegrationFailure) Error() string {
	return fmt.Sprintf("integration failed: %s at t=%g after %d steps", e.Reason, e.Time, e.Steps)
}

// ModelMismatchError reports state or parameter dimensions that disagree
// with the model. Unlike IntegrationFailure it signals a caller bug and
// must abort the run.
type ModelMismatchError struct {
	Model string
	What  string
	Want  int
	Got   int
}

func (e *ModelMismatchError) Error() string {
	return fmt.Sprintf("model %s: %s dimension mismatch: want %d, got %d", e.Model, e.What, e.Want, e.Got)
}
