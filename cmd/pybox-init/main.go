//go:build linux

// pybox-init is the last trusted code on the execution path. The runner
// launches it instead of the interpreter; it applies resource limits to its
// own process and then replaces itself with the target command, so the
// limits bind the untrusted program from its first instruction.
//
// Usage:
//
//	pybox-init [--rlimit-as-mb N] [--rlimit-cpu N] [--rlimit-nofile N] -- CMD [ARG...]
//
// Diagnostics go to stderr prefixed with "[pybox-init]" so the parent can
// separate them from program output. A limit that cannot be applied is
// reported and skipped. Argument and exec errors print a "[pybox-init]
// fatal:" line and exit 125; the marker, not the exit code, is what tells
// the parent the program never started, because the program itself can
// exit 125 too.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

const fatalExitCode = 125

type rlimits struct {
	addressSpaceMB uint64
	cpuSeconds     uint64
	openFiles      uint64
}

func main() {
	limits, argv, err := parseArgs(os.Args[1:])
	if err != nil {
		fatal(err)
	}

	applyRlimits(limits)

	path, err := exec.LookPath(argv[0])
	if err != nil {
		fatal(fmt.Errorf("resolve command: %w", err))
	}
	if err := unix.Exec(path, argv, os.Environ()); err != nil {
		fatal(fmt.Errorf("exec %s: %w", path, err))
	}
}

func parseArgs(args []string) (rlimits, []string, error) {
	fs := flag.NewFlagSet("pybox-init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	asMB := fs.Uint64("rlimit-as-mb", 0, "address space limit in MiB (0 disables)")
	cpu := fs.Uint64("rlimit-cpu", 0, "CPU time limit in seconds (0 disables)")
	nofile := fs.Uint64("rlimit-nofile", 0, "open file descriptor limit (0 disables)")

	if err := fs.Parse(args); err != nil {
		return rlimits{}, nil, fmt.Errorf("parse arguments: %w", err)
	}
	argv := fs.Args()
	if len(argv) == 0 {
		return rlimits{}, nil, fmt.Errorf("no command given after --")
	}

	return rlimits{
		addressSpaceMB: *asMB,
		cpuSeconds:     *cpu,
		openFiles:      *nofile,
	}, argv, nil
}

func applyRlimits(l rlimits) {
	if l.addressSpaceMB > 0 {
		setLimit("as", unix.RLIMIT_AS, l.addressSpaceMB*1024*1024)
	}
	if l.cpuSeconds > 0 {
		setLimit("cpu", unix.RLIMIT_CPU, l.cpuSeconds)
	}
	if l.openFiles > 0 {
		setLimit("nofile", unix.RLIMIT_NOFILE, l.openFiles)
	}
}

// setLimit lowers the soft limit, clamped to the existing hard limit so the
// call cannot fail for asking too much. The hard limit is left untouched.
func setLimit(name string, resource int, value uint64) {
	var current unix.Rlimit
	if err := unix.Getrlimit(resource, &current); err != nil {
		warn(fmt.Errorf("get rlimit %s: %w", name, err))
		return
	}
	if value > current.Max {
		value = current.Max
	}
	if err := unix.Setrlimit(resource, &unix.Rlimit{Cur: value, Max: current.Max}); err != nil {
		warn(fmt.Errorf("set rlimit %s: %w", name, err))
	}
}

func warn(err error) {
	fmt.Fprintf(os.Stderr, "[pybox-init] %v\n", err)
}

// fatal carries a marker warn never emits, so the parent can tell a helper
// failure from a program that happened to exit with fatalExitCode.
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[pybox-init] fatal: %v\n", err)
	os.Exit(fatalExitCode)
}
