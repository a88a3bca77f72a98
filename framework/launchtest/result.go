package launchtest

import (
	"strings"
	"time"
)

// Results is everything that happened in one suite run. Tests lists every scope that ran to
// completion, passed or failed, in the order they finished.
type Results struct {
	Tests    []TestResult
	Failures []TestResult
	Skipped  []TestResult
}

type TestResult struct {
	TestID   TestID
	Errors   []error
	Duration time.Duration
	Skipped  bool
}

func (r TestResult) Failed() bool { return len(r.Errors) != 0 }

func (r Results) OK() bool { return len(r.Failures) == 0 }

// Passed counts the scopes that finished without errors.
func (r Results) Passed() int { return len(r.Tests) - len(r.Failures) }

// TestID is the path of a scope from the root of the suite. The root itself has an empty ID.
type TestID []string

func (id TestID) String() string { return strings.Join(id, "/") }

// Plus returns a new TestID for a child scope. The receiver is not modified.
func (id TestID) Plus(name string) TestID {
	return append(append(TestID(nil), id...), name)
}

// Parent returns the ID of the enclosing scope.
func (id TestID) Parent() TestID {
	if len(id) == 0 {
		return nil
	}
	return append(TestID(nil), id[:len(id)-1]...)
}
