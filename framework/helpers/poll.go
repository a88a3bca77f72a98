package helpers

import (
	"time"
)

// PollUntil calls testFn at intervals until it returns true or the timeout elapses. It returns
// true if testFn succeeded. testFn is called once immediately.
func PollUntil(testFn func() bool, timeout, interval time.Duration) bool {
	if testFn() {
		return true
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case <-deadline.C:
			return false
		case <-ticker.C:
			if testFn() {
				return true
			}
		}
	}
}

// RequireEventually is like require.Eventually from stretchr/testify, except that it does not run
// testFn on a separate goroutine. If the timeout elapses the test fails and exits immediately.
func RequireEventually(
	t TestContext,
	testFn func() bool,
	timeout time.Duration,
	interval time.Duration,
	failureMsgFormat string,
	failureMsgArgs ...interface{},
) {
	t.Helper()
	if !PollUntil(testFn, timeout, interval) {
		t.Errorf(failureMsgFormat, failureMsgArgs...)
		t.FailNow()
	}
}
