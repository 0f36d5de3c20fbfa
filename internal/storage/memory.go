package storage

import (
	"context"
	"sync"

	"kinetikos/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	iterations  map[string][]model.IterationRecord
	robResults  map[string][]model.RobustnessResult
	robSummary  map[string][]model.RobustnessSummary
	fisher      map[string]model.FisherRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.iterations = make(map[string][]model.IterationRecord)
	s.robResults = make(map[string][]model.RobustnessResult)
	s.robSummary = make(map[string][]model.RobustnessSummary)
	s.fisher = make(map[string]model.FisherRecord)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) SaveIterations(_ context.Context, runID string, iterations []model.IterationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.IterationRecord, len(iterations))
	copy(copied, iterations)
	s.iterations[runID] = copied
	return nil
}

func (s *MemoryStore) GetIterations(_ context.Context, runID string) ([]model.IterationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	iterations, ok := s.iterations[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.IterationRecord, len(iterations))
	copy(copied, iterations)
	return copied, true, nil
}

func (s *MemoryStore) SaveRobustnessResults(_ context.Context, runID string, results []model.RobustnessResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.RobustnessResult, len(results))
	copy(copied, results)
	s.robResults[runID] = copied
	return nil
}

func (s *MemoryStore) GetRobustnessResults(_ context.Context, runID string) ([]model.RobustnessResult, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results, ok := s.robResults[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.RobustnessResult, len(results))
	copy(copied, results)
	return copied, true, nil
}

func (s *MemoryStore) SaveRobustnessSummaries(_ context.Context, runID string, summaries []model.RobustnessSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.RobustnessSummary, len(summaries))
	copy(copied, summaries)
	s.robSummary[runID] = copied
	return nil
}

func (s *MemoryStore) GetRobustnessSummaries(_ context.Context, runID string) ([]model.RobustnessSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries, ok := s.robSummary[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.RobustnessSummary, len(summaries))
	copy(copied, summaries)
	return copied, true, nil
}

func (s *MemoryStore) SaveFisher(_ context.Context, rec model.FisherRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fisher[rec.RunID] = rec
	return nil
}

func (s *MemoryStore) GetFisher(_ context.Context, runID string) (model.FisherRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.fisher[runID]
	return rec, ok, nil
}

// Reset drops all stored records and leaves the store initialized.
func (s *MemoryStore) Reset(ctx context.Context) error {
	return s.Init(ctx)
}
