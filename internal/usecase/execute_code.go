package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"pybox/internal/config"
	"pybox/internal/domain"
	"pybox/internal/executor"
	"pybox/internal/metrics"
	"pybox/internal/sandbox"
)

// ExecuteCodeUsecase orchestrates a single execution: concurrency admission,
// sandbox lifecycle, the interpreter run, and status classification.
type ExecuteCodeUsecase struct {
	runner  executor.Runner
	permits *semaphore.Weighted
	cfg     config.ExecutionConfig
	logger  *zap.Logger
}

// NewExecuteCodeUsecase creates a new ExecuteCodeUsecase with an admission
// pool sized from cfg.MaxConcurrent.
func NewExecuteCodeUsecase(runner executor.Runner, cfg config.ExecutionConfig, logger *zap.Logger) *ExecuteCodeUsecase {
	return &ExecuteCodeUsecase{
		runner:  runner,
		permits: semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		cfg:     cfg,
		logger:  logger,
	}
}

// Execute runs the submitted code and always returns a response. Internal
// faults are converted into FAILED responses at this boundary; they never
// propagate to the caller as errors or panics.
func (uc *ExecuteCodeUsecase) Execute(ctx context.Context, req *domain.ExecuteRequest) (resp *domain.ExecutionResponse) {
	executionID := newExecutionID()
	timeoutSec := req.TimeoutSeconds()
	logger := uc.logger.With(zap.String("execution_id", executionID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic during execution", zap.Any("panic", r))
			resp = failedResponse(fmt.Sprintf("Execution service error: %v", r), 0)
		}
		metrics.ExecutionsTotal.WithLabelValues(string(resp.Status)).Inc()
		metrics.ExecutionDuration.Observe(resp.ExecutionTime)
	}()

	logger.Info("Executing code", zap.Int("timeout_seconds", timeoutSec))

	// Step 1: Admission. May block until a slot frees up; the per-request
	// timeout covers only the running phase, not this wait.
	if err := uc.permits.Acquire(ctx, 1); err != nil {
		logger.Warn("Admission interrupted", zap.Error(err))
		return failedResponse("Execution service error: "+err.Error(), 0)
	}
	defer uc.permits.Release(1)

	metrics.ExecutionsActive.Inc()
	defer metrics.ExecutionsActive.Dec()

	// Step 2: Private working directory, when filesystem isolation is on.
	// Cleanup is deferred so the directory is released on every exit path
	// while the admission slot is still held.
	var workDir string
	if uc.cfg.FilesystemIsolation {
		sb := sandbox.New(executionID, logger)
		dir, err := sb.Create()
		if err != nil {
			logger.Error("Sandbox creation failed", zap.Error(err))
			metrics.SandboxFailures.Inc()
			return failedResponse("Execution service error: "+err.Error(), 0)
		}
		defer sb.Cleanup()
		workDir = dir
	}

	// Step 3: Run the interpreter. The wall clock around this call is the
	// authoritative execution time, independent of the runner's own timing.
	start := time.Now()
	raw, err := uc.runner.Run(ctx, executor.RunSpec{
		Code:    req.Code,
		WorkDir: workDir,
		Timeout: time.Duration(timeoutSec) * time.Second,
	})
	elapsed := time.Since(start).Seconds()

	if err != nil {
		logger.Error("Process execution failed", zap.Error(err))
		return failedResponse("Process execution failed: "+err.Error(), elapsed)
	}

	// Step 4: Classify the raw result into the public status taxonomy.
	resp = classify(raw, timeoutSec, elapsed)

	logger.Info("Execution completed",
		zap.String("status", string(resp.Status)),
		zap.Float64("execution_time", resp.ExecutionTime),
	)
	return resp
}

// classify maps a raw process outcome onto the response model. The return
// code is surfaced only when the process exited normally.
func classify(raw *executor.RawResult, timeoutSec int, elapsed float64) *domain.ExecutionResponse {
	switch {
	case raw.TimedOut:
		return &domain.ExecutionResponse{
			Status:        domain.StatusTimeout,
			Stderr:        fmt.Sprintf("Execution timed out after %d seconds", timeoutSec),
			ExecutionTime: elapsed,
		}
	case raw.ExitCode == nil:
		return &domain.ExecutionResponse{
			Status:        domain.StatusFailed,
			Stdout:        raw.Stdout,
			Stderr:        raw.Stderr,
			ExecutionTime: elapsed,
		}
	case *raw.ExitCode == 0:
		return &domain.ExecutionResponse{
			Status:        domain.StatusSuccess,
			Stdout:        raw.Stdout,
			Stderr:        raw.Stderr,
			ExecutionTime: elapsed,
			ReturnCode:    raw.ExitCode,
		}
	default:
		return &domain.ExecutionResponse{
			Status:        domain.StatusError,
			Stdout:        raw.Stdout,
			Stderr:        raw.Stderr,
			ExecutionTime: elapsed,
			ReturnCode:    raw.ExitCode,
		}
	}
}

// newExecutionID returns a time-ordered UUID so log lines sort by start time.
func newExecutionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

func failedResponse(message string, elapsed float64) *domain.ExecutionResponse {
	return &domain.ExecutionResponse{
		Status:        domain.StatusFailed,
		Stderr:        message,
		ExecutionTime: elapsed,
	}
}
