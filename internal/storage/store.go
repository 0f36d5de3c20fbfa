package storage

import (
	"context"

	"kinetikos/internal/model"
)

// Store defines persistence operations for estimation runs and the
// analyses derived from them.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	SaveIterations(ctx context.Context, runID string, iterations []model.IterationRecord) error
	GetIterations(ctx context.Context, runID string) ([]model.IterationRecord, bool, error)
	SaveRobustnessResults(ctx context.Context, runID string, results []model.RobustnessResult) error
	GetRobustnessResults(ctx context.Context, runID string) ([]model.RobustnessResult, bool, error)
	SaveRobustnessSummaries(ctx context.Context, runID string, summaries []model.RobustnessSummary) error
	GetRobustnessSummaries(ctx context.Context, runID string) ([]model.RobustnessSummary, bool, error)
	SaveFisher(ctx context.Context, rec model.FisherRecord) error
	GetFisher(ctx context.Context, runID string) (model.FisherRecord, bool, error)
}

// Resetter is implemented by stores that can drop all persisted state.
// Reset leaves the store initialized and empty.
type Resetter interface {
	Reset(ctx context.Context) error
}
