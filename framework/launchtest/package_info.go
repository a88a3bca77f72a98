// Package launchtest runs suites of launch scenarios outside of go test. Its scopes behave much
// like testing.T, and they satisfy helpers.TestContext so that launcher sessions and testify
// assertions can report to them, with pluggable console and JUnit reporting.
package launchtest
