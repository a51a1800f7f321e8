// Package executor runs untrusted program text as a resource-limited child
// process and reports what happened to it.
package executor

import (
	"context"
	"time"
)

// RunSpec describes one child process run.
type RunSpec struct {
	// Code is the program text, passed to the interpreter as an inline
	// argument, never written to a file.
	Code string

	// WorkDir is the sandbox directory the child runs in. Empty when
	// filesystem isolation is disabled; the child then inherits the
	// service's working directory.
	WorkDir string

	// Timeout is the wall-clock deadline, measured from launch.
	Timeout time.Duration
}

// RawResult reports the observable outcome of a child process run. A
// RawResult always describes a process that was actually launched; launch
// failures surface as errors from Run instead.
type RawResult struct {
	Stdout string
	Stderr string

	// ExitCode is nil exactly when the process never produced a normal
	// exit: it was killed by a signal or torn down on timeout.
	ExitCode *int

	// Duration is wall-clock time from launch to reaped exit.
	Duration time.Duration

	// TimedOut is set when the deadline expired and the engine terminated
	// the process group. Stdout and Stderr are empty in that case; output
	// produced before the kill is discarded.
	TimedOut bool
}

// Runner executes one untrusted program under resource limits and a hard
// wall-clock deadline, never leaking a running or zombie process.
type Runner interface {
	Run(ctx context.Context, spec RunSpec) (*RawResult, error)
}
