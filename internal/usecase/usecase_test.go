package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"pybox/internal/config"
	"pybox/internal/domain"
	"pybox/internal/executor"
	"pybox/internal/executor/mock"
	"pybox/internal/usecase"
)

func newTestConfig() config.ExecutionConfig {
	return config.ExecutionConfig{
		PythonPath:          "python3",
		SandboxInitPath:     "pybox-init",
		MaxMemoryMB:         128,
		MaxCPUSeconds:       10,
		MaxConcurrent:       10,
		FilesystemIsolation: true,
	}
}

func newTestUsecase(runner *mock.Runner, cfg config.ExecutionConfig) *usecase.ExecuteCodeUsecase {
	return usecase.NewExecuteCodeUsecase(runner, cfg, zap.NewNop())
}

func intPtr(n int) *int { return &n }

// Test: successful execution maps exit code 0 onto SUCCESS with the return
// code present.
func TestExecute_Success(t *testing.T) {
	runner := &mock.Runner{
		RunFn: func(ctx context.Context, spec executor.RunSpec) (*executor.RawResult, error) {
			time.Sleep(10 * time.Millisecond)
			return &executor.RawResult{
				Stdout:   "2\n",
				ExitCode: intPtr(0),
				Duration: 10 * time.Millisecond,
			}, nil
		},
	}
	uc := newTestUsecase(runner, newTestConfig())

	resp := uc.Execute(context.Background(), &domain.ExecuteRequest{Code: "print(1 + 1)"})

	if resp.Status != domain.StatusSuccess {
		t.Errorf("expected success, got %s", resp.Status)
	}
	if resp.Stdout != "2\n" {
		t.Errorf("expected stdout '2\\n', got %q", resp.Stdout)
	}
	if resp.ReturnCode == nil || *resp.ReturnCode != 0 {
		t.Errorf("expected return code 0, got %v", resp.ReturnCode)
	}
	if resp.ExecutionTime < 0.01 {
		t.Errorf("expected wall-clock execution time, got %f", resp.ExecutionTime)
	}
}

// Test: non-zero exit maps onto ERROR with the return code present.
func TestExecute_Error(t *testing.T) {
	runner := &mock.Runner{
		RunFn: func(ctx context.Context, spec executor.RunSpec) (*executor.RawResult, error) {
			return &executor.RawResult{
				Stderr:   "Traceback (most recent call last):\nZeroDivisionError: division by zero\n",
				ExitCode: intPtr(1),
			}, nil
		},
	}
	uc := newTestUsecase(runner, newTestConfig())

	resp := uc.Execute(context.Background(), &domain.ExecuteRequest{Code: "print(1 / 0)"})

	if resp.Status != domain.StatusError {
		t.Errorf("expected error, got %s", resp.Status)
	}
	if resp.ReturnCode == nil || *resp.ReturnCode != 1 {
		t.Errorf("expected return code 1, got %v", resp.ReturnCode)
	}
	if !strings.Contains(resp.Stderr, "ZeroDivisionError") {
		t.Errorf("expected traceback in stderr, got %q", resp.Stderr)
	}
}

// Test: exit code 125 from the program maps onto ERROR like any other
// non-zero exit; the value is only special inside the launch helper.
func TestExecute_Exit125IsError(t *testing.T) {
	runner := &mock.Runner{
		RunFn: func(ctx context.Context, spec executor.RunSpec) (*executor.RawResult, error) {
			return &executor.RawResult{ExitCode: intPtr(125)}, nil
		},
	}
	uc := newTestUsecase(runner, newTestConfig())

	resp := uc.Execute(context.Background(), &domain.ExecuteRequest{Code: "raise SystemExit(125)"})

	if resp.Status != domain.StatusError {
		t.Errorf("expected error, got %s", resp.Status)
	}
	if resp.ReturnCode == nil || *resp.ReturnCode != 125 {
		t.Errorf("expected return code 125, got %v", resp.ReturnCode)
	}
}

// Test: a timed-out run maps onto TIMEOUT with a synthetic message and no
// return code.
func TestExecute_Timeout(t *testing.T) {
	runner := &mock.Runner{
		RunFn: func(ctx context.Context, spec executor.RunSpec) (*executor.RawResult, error) {
			return &executor.RawResult{TimedOut: true, Duration: spec.Timeout}, nil
		},
	}
	uc := newTestUsecase(runner, newTestConfig())

	resp := uc.Execute(context.Background(), &domain.ExecuteRequest{
		Code:    "import time\ntime.sleep(10)",
		Timeout: intPtr(2),
	})

	if resp.Status != domain.StatusTimeout {
		t.Errorf("expected timeout, got %s", resp.Status)
	}
	if resp.Stderr != "Execution timed out after 2 seconds" {
		t.Errorf("unexpected timeout message: %q", resp.Stderr)
	}
	if resp.ReturnCode != nil {
		t.Errorf("expected absent return code, got %d", *resp.ReturnCode)
	}
	if resp.Stdout != "" {
		t.Errorf("expected discarded stdout, got %q", resp.Stdout)
	}
}

// Test: a process that died without a normal exit maps onto FAILED with no
// return code.
func TestExecute_FailedWithoutExitCode(t *testing.T) {
	runner := &mock.Runner{
		RunFn: func(ctx context.Context, spec executor.RunSpec) (*executor.RawResult, error) {
			return &executor.RawResult{Stderr: "Killed\n"}, nil
		},
	}
	uc := newTestUsecase(runner, newTestConfig())

	resp := uc.Execute(context.Background(), &domain.ExecuteRequest{Code: "crash()"})

	if resp.Status != domain.StatusFailed {
		t.Errorf("expected failed, got %s", resp.Status)
	}
	if resp.ReturnCode != nil {
		t.Errorf("expected absent return code, got %d", *resp.ReturnCode)
	}
	if resp.Stderr != "Killed\n" {
		t.Errorf("expected captured stderr, got %q", resp.Stderr)
	}
}

// Test: a runner error becomes a FAILED response, never a propagated error.
func TestExecute_RunnerError(t *testing.T) {
	runner := &mock.Runner{
		RunFn: func(ctx context.Context, spec executor.RunSpec) (*executor.RawResult, error) {
			return nil, errors.New("fork/exec: boom")
		},
	}
	uc := newTestUsecase(runner, newTestConfig())

	resp := uc.Execute(context.Background(), &domain.ExecuteRequest{Code: "print(1)"})

	if resp.Status != domain.StatusFailed {
		t.Errorf("expected failed, got %s", resp.Status)
	}
	if !strings.HasPrefix(resp.Stderr, "Process execution failed: ") {
		t.Errorf("unexpected failure message: %q", resp.Stderr)
	}
	if !strings.Contains(resp.Stderr, "boom") {
		t.Errorf("expected cause in message, got %q", resp.Stderr)
	}
}

// Test: a panic inside the pipeline is absorbed into a FAILED response.
func TestExecute_PanicRecovered(t *testing.T) {
	runner := &mock.Runner{
		RunFn: func(ctx context.Context, spec executor.RunSpec) (*executor.RawResult, error) {
			panic("kaboom")
		},
	}
	uc := newTestUsecase(runner, newTestConfig())

	resp := uc.Execute(context.Background(), &domain.ExecuteRequest{Code: "print(1)"})

	if resp.Status != domain.StatusFailed {
		t.Errorf("expected failed, got %s", resp.Status)
	}
	if !strings.HasPrefix(resp.Stderr, "Execution service error: ") {
		t.Errorf("unexpected failure message: %q", resp.Stderr)
	}
	if !strings.Contains(resp.Stderr, "kaboom") {
		t.Errorf("expected panic value in message, got %q", resp.Stderr)
	}
}

// Test: sandbox creation failure short-circuits into FAILED with zero
// execution time, without ever invoking the runner.
func TestExecute_SandboxCreateFailure(t *testing.T) {
	t.Setenv("TMPDIR", "/nonexistent/pybox-test")

	runner := &mock.Runner{}
	uc := newTestUsecase(runner, newTestConfig())

	resp := uc.Execute(context.Background(), &domain.ExecuteRequest{Code: "print(1)"})

	if resp.Status != domain.StatusFailed {
		t.Errorf("expected failed, got %s", resp.Status)
	}
	if !strings.HasPrefix(resp.Stderr, "Execution service error: ") {
		t.Errorf("unexpected failure message: %q", resp.Stderr)
	}
	if resp.ExecutionTime != 0 {
		t.Errorf("expected zero execution time, got %f", resp.ExecutionTime)
	}
	if len(runner.Calls) != 0 {
		t.Errorf("runner invoked despite sandbox failure: %d calls", len(runner.Calls))
	}
}

// Test: the sandbox directory exists while the run is in flight and is gone
// once the response is returned.
func TestExecute_SandboxLifecycle(t *testing.T) {
	var observedDir string
	runner := &mock.Runner{
		RunFn: func(ctx context.Context, spec executor.RunSpec) (*executor.RawResult, error) {
			observedDir = spec.WorkDir
			if _, err := os.Stat(spec.WorkDir); err != nil {
				t.Errorf("sandbox missing during run: %v", err)
			}
			return &executor.RawResult{ExitCode: intPtr(0)}, nil
		},
	}
	uc := newTestUsecase(runner, newTestConfig())

	resp := uc.Execute(context.Background(), &domain.ExecuteRequest{Code: "print(1)"})

	if resp.Status != domain.StatusSuccess {
		t.Fatalf("expected success, got %s", resp.Status)
	}
	if observedDir == "" {
		t.Fatal("expected a sandbox work dir to be passed to the runner")
	}
	if _, err := os.Stat(observedDir); !os.IsNotExist(err) {
		t.Errorf("expected sandbox removed after execution, stat err: %v", err)
	}
}

// runnerOutcomes returns one runner stub per result shape Execute handles:
// clean exit, non-zero exit, timeout, death without an exit code, runner
// error, panic.
func runnerOutcomes() []func(ctx context.Context, spec executor.RunSpec) (*executor.RawResult, error) {
	return []func(ctx context.Context, spec executor.RunSpec) (*executor.RawResult, error){
		func(ctx context.Context, spec executor.RunSpec) (*executor.RawResult, error) {
			return &executor.RawResult{ExitCode: intPtr(0)}, nil
		},
		func(ctx context.Context, spec executor.RunSpec) (*executor.RawResult, error) {
			return &executor.RawResult{ExitCode: intPtr(2)}, nil
		},
		func(ctx context.Context, spec executor.RunSpec) (*executor.RawResult, error) {
			return &executor.RawResult{TimedOut: true}, nil
		},
		func(ctx context.Context, spec executor.RunSpec) (*executor.RawResult, error) {
			return &executor.RawResult{}, nil
		},
		func(ctx context.Context, spec executor.RunSpec) (*executor.RawResult, error) {
			return nil, errors.New("launch failed")
		},
		func(ctx context.Context, spec executor.RunSpec) (*executor.RawResult, error) {
			panic("mid-run fault")
		},
	}
}

// Test: sandbox directories never outlive their execution, whatever the
// outcome.
func TestExecute_NoSandboxLeftBehind(t *testing.T) {
	tmpRoot := t.TempDir()
	t.Setenv("TMPDIR", tmpRoot)

	for _, outcome := range runnerOutcomes() {
		uc := newTestUsecase(&mock.Runner{RunFn: outcome}, newTestConfig())
		uc.Execute(context.Background(), &domain.ExecuteRequest{Code: "print(1)"})
	}

	entries, err := os.ReadDir(tmpRoot)
	if err != nil {
		t.Fatalf("read temp root: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no leftover sandbox dirs, found %d", len(entries))
	}
}

// Test: every outcome classifies into one of the four public statuses.
func TestExecute_StatusAlwaysValid(t *testing.T) {
	for _, outcome := range runnerOutcomes() {
		uc := newTestUsecase(&mock.Runner{RunFn: outcome}, newTestConfig())
		resp := uc.Execute(context.Background(), &domain.ExecuteRequest{Code: "print(1)"})
		if !resp.Status.IsValid() {
			t.Errorf("status %q is not a public status", resp.Status)
		}
	}
}

// Test: disabling filesystem isolation skips the sandbox entirely.
func TestExecute_IsolationDisabled(t *testing.T) {
	runner := &mock.Runner{}
	cfg := newTestConfig()
	cfg.FilesystemIsolation = false
	uc := newTestUsecase(runner, cfg)

	resp := uc.Execute(context.Background(), &domain.ExecuteRequest{Code: "print(1)"})

	if resp.Status != domain.StatusSuccess {
		t.Fatalf("expected success, got %s", resp.Status)
	}
	if len(runner.Calls) != 1 {
		t.Fatalf("expected 1 runner call, got %d", len(runner.Calls))
	}
	if runner.Calls[0].WorkDir != "" {
		t.Errorf("expected empty work dir, got %q", runner.Calls[0].WorkDir)
	}
}

// Test: the request timeout reaches the runner, defaulted and clamped.
func TestExecute_TimeoutPlumbing(t *testing.T) {
	tests := []struct {
		name    string
		timeout *int
		want    time.Duration
	}{
		{"default when omitted", nil, 5 * time.Second},
		{"explicit value", intPtr(7), 7 * time.Second},
		{"clamped to maximum", intPtr(99), 30 * time.Second},
		{"clamped to minimum", intPtr(0), 1 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mock.Runner{}
			uc := newTestUsecase(runner, newTestConfig())

			uc.Execute(context.Background(), &domain.ExecuteRequest{Code: "print(1)", Timeout: tt.timeout})

			if len(runner.Calls) != 1 {
				t.Fatalf("expected 1 runner call, got %d", len(runner.Calls))
			}
			if got := runner.Calls[0].Timeout; got != tt.want {
				t.Errorf("expected timeout %s, got %s", tt.want, got)
			}
		})
	}
}

// Test: at most maxConcurrentExecutions runs are in flight; the next request
// waits until a slot frees.
func TestExecute_ConcurrencyBound(t *testing.T) {
	started := make(chan struct{}, 3)
	release := make(chan struct{})
	runner := &mock.Runner{
		RunFn: func(ctx context.Context, spec executor.RunSpec) (*executor.RawResult, error) {
			started <- struct{}{}
			<-release
			return &executor.RawResult{ExitCode: intPtr(0)}, nil
		},
	}
	cfg := newTestConfig()
	cfg.MaxConcurrent = 2
	uc := newTestUsecase(runner, cfg)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			uc.Execute(context.Background(), &domain.ExecuteRequest{Code: fmt.Sprintf("print(%d)", n)})
		}(i)
	}

	<-started
	<-started
	select {
	case <-started:
		t.Fatal("third execution admitted past the concurrency bound")
	case <-time.After(200 * time.Millisecond):
	}

	release <- struct{}{}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("third execution never admitted after a slot freed")
	}

	close(release)
	wg.Wait()
}

// Test: an admission slot taken by a failing execution is released for the
// next request.
func TestExecute_SlotReleasedAfterFailure(t *testing.T) {
	calls := 0
	runner := &mock.Runner{
		RunFn: func(ctx context.Context, spec executor.RunSpec) (*executor.RawResult, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("transient fault")
			}
			return &executor.RawResult{ExitCode: intPtr(0)}, nil
		},
	}
	cfg := newTestConfig()
	cfg.MaxConcurrent = 1
	uc := newTestUsecase(runner, cfg)

	first := uc.Execute(context.Background(), &domain.ExecuteRequest{Code: "print(1)"})
	if first.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", first.Status)
	}

	done := make(chan *domain.ExecutionResponse, 1)
	go func() {
		done <- uc.Execute(context.Background(), &domain.ExecuteRequest{Code: "print(2)"})
	}()

	select {
	case second := <-done:
		if second.Status != domain.StatusSuccess {
			t.Errorf("expected success, got %s", second.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second execution blocked, admission slot leaked")
	}
}

// Test: cancelling the request context while waiting for admission yields a
// FAILED response.
func TestExecute_AdmissionCancelled(t *testing.T) {
	started := make(chan struct{})
	blocker := make(chan struct{})
	runner := &mock.Runner{
		RunFn: func(ctx context.Context, spec executor.RunSpec) (*executor.RawResult, error) {
			close(started)
			<-blocker
			return &executor.RawResult{ExitCode: intPtr(0)}, nil
		},
	}
	cfg := newTestConfig()
	cfg.MaxConcurrent = 1
	uc := newTestUsecase(runner, cfg)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		uc.Execute(context.Background(), &domain.ExecuteRequest{Code: "print(1)"})
	}()

	// Wait for the first execution to hold the only slot.
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp := uc.Execute(ctx, &domain.ExecuteRequest{Code: "print(2)"})

	if resp.Status != domain.StatusFailed {
		t.Errorf("expected failed, got %s", resp.Status)
	}
	if !strings.HasPrefix(resp.Stderr, "Execution service error: ") {
		t.Errorf("unexpected failure message: %q", resp.Stderr)
	}

	close(blocker)
	wg.Wait()
}
