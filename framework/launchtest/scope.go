package launchtest

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/mainlaunch/mainlaunch/framework"
)

// Config contains options for a whole suite run.
type Config struct {
	// Filter is an optional function for determining which tests to run based on their names.
	Filter Filter

	// TestLogger receives status information about each test.
	TestLogger TestLogger

	// Context is the parent of every scope's context. It defaults to context.Background().
	Context context.Context

	// Timeout, if nonzero, bounds the context of every scope.
	Timeout time.Duration

	// Values is an optional application-defined value that tests can read with T.Values.
	Values interface{}
}

type environment struct {
	config  Config
	results Results
}

// T is one test scope.
type T struct {
	env         *environment
	id          TestID
	ctx         context.Context
	cancel      context.CancelFunc
	debugLogger framework.CapturingLogger
	failed      bool
	skipped     bool
	skipReason  string
	cleanups    []func()
	errors      []error
	helperFns   []string
	started     time.Time
}

// Run runs action as the root scope of a suite and returns the results of every scope.
func Run(config Config, action func(*T)) Results {
	if config.TestLogger == nil {
		config.TestLogger = nullTestLogger{}
	}
	if config.Context == nil {
		config.Context = context.Background()
	}
	env := &environment{config: config}
	t := env.newScope(nil, config.Context)
	t.run(action)
	return env.results
}

func (env *environment) newScope(id TestID, parent context.Context) *T {
	t := &T{env: env, id: id, started: time.Now()}
	if env.config.Timeout > 0 {
		t.ctx, t.cancel = context.WithTimeout(parent, env.config.Timeout)
	} else {
		t.ctx, t.cancel = context.WithCancel(parent)
	}
	return t
}

func (t *T) run(action func(*T)) (result TestResult) {
	result.TestID = t.id
	defer func() {
		if r := recover(); r != nil && !t.skipped {
			t.failed = true
			var addError error
			if _, ok := r.(*T); ok {
				if len(t.errors) == 0 {
					addError = errors.New("test failed with no failure message")
				}
			} else {
				addError = fmt.Errorf("unexpected panic in test: %+v\n%s", r, string(debug.Stack()))
			}
			if addError != nil {
				t.errors = append(t.errors, addError)
				t.env.config.TestLogger.TestError(t.id, addError)
			}
		}
		for i := len(t.cleanups) - 1; i >= 0; i-- {
			t.cleanups[i]()
		}
		t.cancel()

		result.Errors = t.errors
		result.Duration = time.Since(t.started)
		result.Skipped = t.skipped
		switch {
		case t.skipped:
			t.env.results.Skipped = append(t.env.results.Skipped, result)
			return
		case t.failed:
			t.env.results.Failures = append(t.env.results.Failures, result)
		}
		t.env.results.Tests = append(t.env.results.Tests, result)
	}()

	action(t)
	return result
}

// ID returns the full name of the current test.
func (t *T) ID() TestID { return t.id }

// Context is cancelled when the scope exits, or when the configured timeout elapses.
func (t *T) Context() context.Context { return t.ctx }

// Values returns the application-defined value from Config.
func (t *T) Values() interface{} { return t.env.config.Values }

// Run runs a subtest in its own scope, unless the filter excludes it.
func (t *T) Run(name string, action func(*T)) {
	id := t.id.Plus(name)
	if t.env.config.Filter != nil && !t.env.config.Filter(id) {
		t.env.config.TestLogger.TestSkipped(id, "excluded by filter parameters")
		return
	}
	t.env.config.TestLogger.TestStarted(id)

	child := t.env.newScope(id, t.ctx)
	// output sent to the parent's logger while the child runs belongs to the child
	t.debugLogger.AddChildLogger(&child.debugLogger)
	result := child.run(action)
	t.debugLogger.RemoveChildLogger(&child.debugLogger)

	if child.skipped {
		t.env.config.TestLogger.TestSkipped(id, child.skipReason)
	} else {
		t.env.config.TestLogger.TestFinished(id, result, child.debugLogger.Output())
	}
}

// Failed reports whether the scope has failed so far.
func (t *T) Failed() bool { return t.failed }

// Errorf records a failure without stopping the test.
func (t *T) Errorf(format string, args ...interface{}) {
	t.failed = true
	err := transformError(fmt.Errorf(format, args...), getStacktrace(false, t.helperFns))
	t.errors = append(t.errors, err)
	t.env.config.TestLogger.TestError(t.id, err)
}

// FailNow stops the test immediately and marks it as failed.
func (t *T) FailNow() {
	t.failed = true
	panic(t)
}

// Skip stops the test immediately and marks it as skipped.
func (t *T) Skip() {
	t.skipped = true
	panic(t)
}

func (t *T) SkipWithReason(reason string) {
	t.skipReason = reason
	t.Skip()
}

// Debug writes a message to this scope's output.
func (t *T) Debug(message string, args ...interface{}) {
	t.debugLogger.Printf(message, args...)
}

// DebugLogger returns the Logger that captures this scope's output. The output is handed to
// TestLogger.TestFinished and only shown if the logger is configured to show it.
func (t *T) DebugLogger() framework.Logger {
	return &t.debugLogger
}

// Defer schedules fn to run when the scope exits for any reason. Deferred functions run in
// reverse order, before the scope's context is cancelled.
func (t *T) Defer(fn func()) {
	t.cleanups = append(t.cleanups, fn)
}

// Helper marks the calling function as a helper to be left out of failure stacktraces.
func (t *T) Helper() {
	pc, _, _, ok := runtime.Caller(1)
	if !ok {
		return
	}
	if f := runtime.FuncForPC(pc); f != nil {
		t.helperFns = append(t.helperFns, f.Name())
	}
}
