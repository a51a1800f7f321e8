// Package sandbox provides the ephemeral working directory for one execution.
package sandbox

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Sandbox owns a single ephemeral working directory for one execution. It is
// owned by exactly one execution at a time and must not be shared across
// concurrent executions or reused after Cleanup.
type Sandbox struct {
	executionID string
	logger      *zap.Logger
	path        string
}

// New creates a Sandbox for the given execution id. No directory is created
// until Create is called.
func New(executionID string, logger *zap.Logger) *Sandbox {
	return &Sandbox{
		executionID: executionID,
		logger:      logger,
	}
}

// Create makes the working directory under the system temp root and returns
// its path. Idempotent: a second call before Cleanup returns the same path
// without side effects.
func (s *Sandbox) Create() (string, error) {
	if s.path != "" {
		return s.path, nil
	}

	dir, err := os.MkdirTemp("", fmt.Sprintf("pybox-%s-*", s.executionID))
	if err != nil {
		return "", fmt.Errorf("create sandbox dir: %w", err)
	}

	s.path = dir
	s.logger.Debug("Sandbox created",
		zap.String("execution_id", s.executionID),
		zap.String("path", dir),
	)
	return dir, nil
}

// Cleanup removes the working directory and everything in it. Best-effort:
// removal failures are logged, never returned, so cleanup cannot mask the
// execution's actual result. Idempotent: a no-op when nothing was created or
// the directory is already gone.
func (s *Sandbox) Cleanup() {
	if s.path == "" {
		return
	}

	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("Sandbox cleanup failed",
			zap.String("execution_id", s.executionID),
			zap.String("path", s.path),
			zap.Error(err),
		)
	} else {
		s.logger.Debug("Sandbox removed",
			zap.String("execution_id", s.executionID),
			zap.String("path", s.path),
		)
	}

	s.path = ""
}

// Path returns the working directory path, or "" before Create / after Cleanup.
func (s *Sandbox) Path() string {
	return s.path
}
