// Package internal holds a function that lives outside launchtest, for stacktrace tests.
package internal

// Invoke calls action.
func Invoke(action func()) {
	action()
}
