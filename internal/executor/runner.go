package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pybox/internal/config"
)

const (
	// maxOutputBytes caps stdout/stderr to prevent memory exhaustion.
	maxOutputBytes = 64 * 1024 // 64 KB

	// outputTruncatedMsg is appended when output exceeds the limit.
	outputTruncatedMsg = "\n... output truncated (64 KB limit) ..."

	// maxOpenFiles is the file-descriptor ceiling requested for the child.
	maxOpenFiles = 64

	// termGracePeriod is how long a process group gets to exit voluntarily
	// after SIGTERM before the engine sends SIGKILL.
	termGracePeriod = 1 * time.Second

	// pipeDrainDelay bounds how long Wait may block on the output pipes
	// after the child itself has exited. A descendant that moved itself
	// into a new process group survives the group kill and would otherwise
	// hold the pipes open indefinitely.
	pipeDrainDelay = 10 * time.Second

	// initFailureExitCode is the exit code pybox-init uses for its own fatal
	// errors before exec, e.g. the interpreter path not resolving. User code
	// can exit 125 as well, so the code alone never identifies a helper
	// failure.
	initFailureExitCode = 125

	// initLogPrefix marks diagnostic lines written by pybox-init on stderr.
	initLogPrefix = "[pybox-init]"

	// initFatalPrefix marks the one line pybox-init writes when it fails
	// before exec. Non-fatal helper diagnostics never carry it, so an exit
	// of 125 without the marker is the program's own.
	initFatalPrefix = "[pybox-init] fatal:"
)

// ProcessRunner launches the interpreter through the pybox-init helper, which
// applies rlimits to itself and execs the target.
type ProcessRunner struct {
	cfg    config.ExecutionConfig
	logger *zap.Logger
}

var _ Runner = (*ProcessRunner)(nil)

// NewProcessRunner creates a ProcessRunner bound to an immutable execution config.
func NewProcessRunner(cfg config.ExecutionConfig, logger *zap.Logger) *ProcessRunner {
	return &ProcessRunner{
		cfg:    cfg,
		logger: logger,
	}
}

// Run executes spec.Code and blocks until the child process tree is gone.
// The per-request deadline is the only cancellation wired into the wait; a
// caller context cancellation does not interrupt a running child.
func (r *ProcessRunner) Run(ctx context.Context, spec RunSpec) (*RawResult, error) {
	cmd := exec.Command(r.cfg.SandboxInitPath, r.buildInitArgs(spec)...)
	cmd.Env = buildEnv(spec.WorkDir)
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}

	// Own process group so termination can target the whole subtree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// Stdin stays nil: the child reads from the null device.
	var stdout, stderr limitedBuffer
	stdout.limit = maxOutputBytes
	stderr.limit = maxOutputBytes
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = pipeDrainDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("launch interpreter: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timedOut := false
	var waitErr error

	timer := time.NewTimer(spec.Timeout)
	defer timer.Stop()

	select {
	case waitErr = <-done:
	case <-timer.C:
		timedOut = true
		_ = r.terminateGroup(cmd.Process.Pid, done)
	}
	elapsed := time.Since(start)

	if timedOut {
		r.logger.Info("Execution deadline exceeded, process group terminated",
			zap.Duration("timeout", spec.Timeout),
			zap.Duration("elapsed", elapsed),
		)
		return &RawResult{TimedOut: true, Duration: elapsed}, nil
	}

	progStderr, initLog := splitInitDiagnostics(stderr.String())
	if initLog != "" {
		r.logger.Warn("Sandbox init diagnostics", zap.String("log", initLog))
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &exitErr):
		if msg, fatal := initFatalMessage(initLog); fatal && exitErr.ExitCode() == initFailureExitCode {
			// pybox-init could not reach exec; the untrusted code never ran.
			return nil, fmt.Errorf("sandbox init: %s", msg)
		}
	case errors.Is(waitErr, exec.ErrWaitDelay):
		// Child exited; a leftover descendant kept the pipes open past the
		// drain delay. The child's own status is still valid.
	default:
		return nil, fmt.Errorf("wait for interpreter: %w", waitErr)
	}

	result := &RawResult{
		Stdout:   truncateOutput(stdout.String(), stdout.truncated),
		Stderr:   truncateOutput(progStderr, stderr.truncated),
		ExitCode: exitCodeOf(cmd.ProcessState),
		Duration: elapsed,
	}

	r.logger.Debug("Execution completed",
		zap.Duration("elapsed", elapsed),
		zap.Bool("exited", result.ExitCode != nil),
	)
	return result, nil
}

// terminateGroup escalates termination of the whole process group: SIGTERM, a
// short grace window, then SIGKILL with an unbounded wait for the reap. The
// returned error is whatever Wait reported for the child.
func (r *ProcessRunner) terminateGroup(pid int, done <-chan error) error {
	_ = syscall.Kill(-pid, syscall.SIGTERM)

	grace := time.NewTimer(termGracePeriod)
	defer grace.Stop()

	select {
	case err := <-done:
		return err
	case <-grace.C:
	}

	_ = syscall.Kill(-pid, syscall.SIGKILL)
	return <-done
}

func (r *ProcessRunner) buildInitArgs(spec RunSpec) []string {
	return []string{
		"--rlimit-as-mb", strconv.Itoa(r.cfg.MaxMemoryMB),
		"--rlimit-cpu", strconv.Itoa(r.cfg.MaxCPUSeconds),
		"--rlimit-nofile", strconv.Itoa(maxOpenFiles),
		"--",
		r.cfg.PythonPath, "-c", spec.Code,
	}
}

// buildEnv assembles the child environment from an explicit allow-list.
// Everything else in the parent environment is dropped so secrets and host
// configuration never reach the untrusted program.
func buildEnv(workDir string) []string {
	path := os.Getenv("PATH")
	if path == "" {
		path = "/usr/bin:/bin"
	}

	private := workDir
	if private == "" {
		private = "/tmp"
	}

	env := []string{
		"PATH=" + path,
		"HOME=" + private,
		"TMPDIR=" + private,
		"TMP=" + private,
		"TEMP=" + private,
		"PYTHONUNBUFFERED=1",
		"PYTHONDONTWRITEBYTECODE=1",
	}

	for _, key := range []string{"PYTHONPATH", "PYTHONHOME"} {
		if v, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+v)
		}
	}

	return env
}

// exitCodeOf extracts the child's exit code, or nil when the process never
// produced a normal exit (killed by a signal).
func exitCodeOf(ps *os.ProcessState) *int {
	if ps == nil {
		return nil
	}
	if code := ps.ExitCode(); code >= 0 {
		return &code
	}
	return nil
}

// ──────────────────────────────────────────────────────
// Helper types and functions
// ──────────────────────────────────────────────────────

// limitedBuffer is a bytes.Buffer that stops accepting writes after a limit.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (lb *limitedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if lb.truncated {
		return n, nil // discard silently
	}

	remaining := lb.limit - lb.buf.Len()
	if remaining <= 0 {
		lb.truncated = true
		return n, nil
	}

	if len(p) > remaining {
		lb.truncated = true
		p = p[:remaining]
	}

	// Claim the full write so the pipe copier never sees a short write.
	_, err := lb.buf.Write(p)
	return n, err
}

func (lb *limitedBuffer) String() string {
	return lb.buf.String()
}

// truncateOutput appends a truncation notice if the output was cut off.
func truncateOutput(s string, wasTruncated bool) string {
	if wasTruncated {
		return s + outputTruncatedMsg
	}
	return s
}

// splitInitDiagnostics separates pybox-init diagnostic lines from the user
// program's stderr. The helper prefixes every line it writes with
// "[pybox-init]".
func splitInitDiagnostics(rawStderr string) (programStderr, initLog string) {
	if rawStderr == "" {
		return "", ""
	}

	var progLines, logLines []string
	for _, line := range strings.Split(rawStderr, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), initLogPrefix) {
			logLines = append(logLines, line)
		} else {
			progLines = append(progLines, line)
		}
	}

	return strings.Join(progLines, "\n"), strings.Join(logLines, "\n")
}

// initFatalMessage scans helper diagnostics for the marker pybox-init writes
// when it exits without reaching exec. Plain diagnostic lines, including any
// the user program forges, never make a run fatal on their own.
func initFatalMessage(initLog string) (string, bool) {
	for _, line := range strings.Split(initLog, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, initFatalPrefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, initFatalPrefix)), true
		}
	}
	return "", false
}
