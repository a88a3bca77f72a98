package launchtest

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/mainlaunch/mainlaunch/framework"
)

var (
	consoleErrorColor   = color.New(color.FgYellow)            //nolint:gochecknoglobals
	consoleFailedColor  = color.New(color.FgRed)               //nolint:gochecknoglobals
	consoleSkippedColor = color.New(color.Faint, color.FgBlue) //nolint:gochecknoglobals
	consoleDebugColor   = color.New(color.Faint)               //nolint:gochecknoglobals
	consolePassedColor  = color.New(color.FgGreen)             //nolint:gochecknoglobals
)

// TestLogger receives progress notifications while a suite runs.
type TestLogger interface {
	TestStarted(id TestID)
	TestError(id TestID, err error)
	TestFinished(id TestID, result TestResult, debugOutput framework.CapturedOutput)
	TestSkipped(id TestID, reason string)
}

type nullTestLogger struct{}

func (nullTestLogger) TestStarted(TestID)                                        {}
func (nullTestLogger) TestError(TestID, error)                                   {}
func (nullTestLogger) TestFinished(TestID, TestResult, framework.CapturedOutput) {}
func (nullTestLogger) TestSkipped(TestID, string)                                {}

// MultiTestLogger forwards every notification to each of its loggers in turn.
type MultiTestLogger []TestLogger

func (m MultiTestLogger) TestStarted(id TestID) {
	for _, l := range m {
		l.TestStarted(id)
	}
}

func (m MultiTestLogger) TestError(id TestID, err error) {
	for _, l := range m {
		l.TestError(id, err)
	}
}

func (m MultiTestLogger) TestFinished(id TestID, result TestResult, debugOutput framework.CapturedOutput) {
	for _, l := range m {
		l.TestFinished(id, result, debugOutput)
	}
}

func (m MultiTestLogger) TestSkipped(id TestID, reason string) {
	for _, l := range m {
		l.TestSkipped(id, reason)
	}
}

// ConsoleTestLogger prints progress to Writer, or to standard output if Writer is nil.
type ConsoleTestLogger struct {
	DebugOutputOnFailure bool
	DebugOutputOnSuccess bool
	Writer               io.Writer
}

func (c ConsoleTestLogger) out() io.Writer {
	if c.Writer == nil {
		return os.Stdout
	}
	return c.Writer
}

func (c ConsoleTestLogger) TestStarted(id TestID) {
	fmt.Fprintf(c.out(), "[%s]\n", id)
}

func (c ConsoleTestLogger) TestError(id TestID, err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		_, _ = consoleErrorColor.Fprintf(c.out(), "  %s\n", line)
	}
}

func (c ConsoleTestLogger) TestFinished(id TestID, result TestResult, debugOutput framework.CapturedOutput) {
	failed := result.Failed()
	if failed {
		_, _ = consoleFailedColor.Fprintf(c.out(), "  FAILED: %s\n", id)
	}
	if len(debugOutput) > 0 && ((failed && c.DebugOutputOnFailure) || (!failed && c.DebugOutputOnSuccess)) {
		_, _ = consoleDebugColor.Fprintln(c.out(), debugOutput.ToString("    DEBUG "))
	}
}

func (c ConsoleTestLogger) TestSkipped(id TestID, reason string) {
	if reason == "" {
		_, _ = consoleSkippedColor.Fprintf(c.out(), "  SKIPPED: %s\n", id)
		return
	}
	_, _ = consoleSkippedColor.Fprintf(c.out(), "  SKIPPED: %s (%s)\n", id, reason)
}

// PrintResults writes a short pass/fail summary.
func PrintResults(w io.Writer, results Results) {
	if results.OK() {
		_, _ = consolePassedColor.Fprintf(w, "All scenarios passed (%d)\n", results.Passed())
		return
	}
	_, _ = consoleFailedColor.Fprintf(w, "FAILED SCENARIOS (%d):\n", len(results.Failures))
	for _, f := range results.Failures {
		_, _ = consoleFailedColor.Fprintf(w, "  * %s\n", f.TestID)
	}
}
