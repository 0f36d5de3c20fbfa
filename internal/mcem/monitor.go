package mcem

import (
	"fmt"

	"kinetikos/internal/model"
)

// Monitor tracks run progress and decides the terminal state. Both the
// estimate change and the log-likelihood change must stay inside
// tolerance for a full window of consecutive iterations before the run
// counts as converged; degenerate iterations reset the window.
type Monitor struct {
	tolMean float64
	tolLL   float64
	window  int
	maxIter int

	iter   int
	streak int
	state  model.RunState
}

func NewMonitor(tolMean, tolLL float64, window, maxIter int) (*Monitor, error) {
	if tolMean <= 0 || tolLL <= 0 {
		return nil, fmt.Errorf("tolerances must be > 0")
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be > 0")
	}
	if maxIter <= 0 {
		return nil, fmt.Errorf("max iterations must be > 0")
	}
	return &Monitor{
		tolMean: tolMean,
		tolLL:   tolLL,
		window:  window,
		maxIter: maxIter,
		state:   model.StateRunning,
	}, nil
}

func (m *Monitor) State() model.RunState { return m.state }

func (m *Monitor) Iteration() int { return m.iter }

// Observe folds one finished iteration into the state machine and
// returns the state after it. Terminal states latch.
func (m *Monitor) Observe(meanChange, llChange float64, degenerate bool) model.RunState {
	if m.state != model.StateRunning {
		return m.state
	}
	m.iter++

	if degenerate {
		m.streak = 0
	} else if meanChange <= m.tolMean && llChange <= m.tolLL {
		m.streak++
		if m.streak >= m.window {
			m.state = model.StateConverged
			return m.state
		}
	} else {
		m.streak = 0
	}

	if m.iter >= m.maxIter {
		m.state = model.StateMaxIterReached
	}
	return m.state
}

// MarkFailed latches the failed state. Failure takes precedence over an
// exhausted iteration budget but never demotes a converged run.
func (m *Monitor) MarkFailed() model.RunState {
	if m.state != model.StateConverged {
		m.state = model.StateFailed
	}
	return m.state
}
