// Package framework contains the shared infrastructure for launching an application's entry
// point in-process from a test and observing what it did. The base package only holds the
// Logger types; the components live in subpackages.
//
// The general model is:
//
// 1. buildout locates the directories that make up the application under test (its module
// directory, the test package directory, and their resource directories).
//
// 2. bootstrap turns those directories into an Application: an isolated, closeable unit that
// carries the application's configuration and the registry of auxiliary test resources.
//
// 3. resources starts whatever stand-in services a test class or profile asks for and feeds
// their connection properties into the application's configuration.
//
// 4. capture and applog redirect the process-wide console streams and root logger for the
// duration of one launch.
//
// 5. launcher ties all of that together around the entry point and exposes the exit code and
// captured output to the test. launchtest is a test scope runner, similar to Go's testing
// package, that the scenario suite is built on.
package framework
