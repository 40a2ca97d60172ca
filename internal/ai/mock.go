package ai

import (
	"context"
	"sync"

	"pulsefeed/internal/model"
)

// MockAnalyzer is a scripted analyzer for tests.
type MockAnalyzer struct {
	mu      sync.Mutex
	Results map[string]*model.AnalysisResult
	Errs    map[string]error
	Calls   []string
}

func NewMockAnalyzer() *MockAnalyzer {
	return &MockAnalyzer{
		Results: make(map[string]*model.AnalysisResult),
		Errs:    make(map[string]error),
	}
}

func (m *MockAnalyzer) Analyze(_ context.Context, msg model.UnifiedMessage) (*model.AnalysisResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, msg.ID)
	if err, ok := m.Errs[msg.ID]; ok {
		return nil, err
	}
	if result, ok := m.Results[msg.ID]; ok {
		return result, nil
	}
	return nil, nil
}
