package launcher

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Launch describes one launch that a test declares: the arguments passed to the entry point and
// the exit code it is expected to return.
type Launch struct {
	Args     []string
	ExitCode int
}

// Result is the outcome of one launch. It cannot be modified after it is created.
type Result struct {
	outputLines []string
	errorLines  []string
	exitCode    int
}

// NewResult creates a Result. The slices are copied.
func NewResult(outputLines, errorLines []string, exitCode int) *Result {
	return &Result{
		outputLines: append([]string{}, outputLines...),
		errorLines:  append([]string{}, errorLines...),
		exitCode:    exitCode,
	}
}

// OutputLines returns the captured standard output, one entry per line.
func (r *Result) OutputLines() []string { return append([]string{}, r.outputLines...) }

// ErrorLines returns the captured standard error, one entry per line.
func (r *Result) ErrorLines() []string { return append([]string{}, r.errorLines...) }

// Output returns the captured standard output joined with newlines.
func (r *Result) Output() string { return strings.Join(r.outputLines, "\n") }

// ErrorOutput returns the captured standard error joined with newlines.
func (r *Result) ErrorOutput() string { return strings.Join(r.errorLines, "\n") }

func (r *Result) ExitCode() int { return r.exitCode }

// EchoSystemOut writes the captured output back to the console, which is useful when a test
// wants the application's output to appear in its own log.
func (r *Result) EchoSystemOut() {
	r.echoTo(os.Stdout, os.Stderr)
}

func (r *Result) echoTo(stdout, stderr io.Writer) {
	for _, line := range r.outputLines {
		fmt.Fprintln(stdout, line)
	}
	for _, line := range r.errorLines {
		fmt.Fprintln(stderr, line)
	}
}

func (r *Result) String() string {
	return fmt.Sprintf("exit code %d, %d output lines, %d error lines",
		r.exitCode, len(r.outputLines), len(r.errorLines))
}

// LaunchError is returned by a launch that failed before the entry point returned an exit code.
// Whatever the application printed up to that point is kept in Output.
type LaunchError struct {
	Err    error
	Output *Result
}

func (e *LaunchError) Error() string { return e.Err.Error() }

func (e *LaunchError) Unwrap() error { return e.Err }
