package mock

import (
	"context"
	"sync"

	"pybox/internal/executor"
)

var _ executor.Runner = (*Runner)(nil)

// Runner is a test double for executor.Runner.
type Runner struct {
	mu sync.Mutex

	RunFn func(ctx context.Context, spec executor.RunSpec) (*executor.RawResult, error)

	// Recorded calls for assertions.
	Calls []executor.RunSpec
}

func (m *Runner) Run(ctx context.Context, spec executor.RunSpec) (*executor.RawResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, spec)
	m.mu.Unlock()
	if m.RunFn != nil {
		return m.RunFn(ctx, spec)
	}
	code := 0
	return &executor.RawResult{ExitCode: &code}, nil
}
