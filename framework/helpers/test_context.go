package helpers

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// TestContext is a minimal interface for types like *testing.T and *launchtest.T representing a
// test that can fail. Functions can use this to avoid specific dependencies on those packages.
type TestContext interface {
	Errorf(msgFormat string, msgArgs ...interface{})
	FailNow()
	Helper()
}

// TestRecorder is a TestContext that just remembers what happened to it. It is used in unit tests
// of code that reports failures.
type TestRecorder struct {
	Errors     []string
	Terminated bool

	// PanicOnTerminate makes FailNow panic, so that the caller's code stops running the way it
	// would under a real test runner. Use RunRecorded to recover from it.
	PanicOnTerminate bool

	lock sync.Mutex
}

type recorderTerminated struct{}

func (r *TestRecorder) Errorf(msgFormat string, msgArgs ...interface{}) {
	r.lock.Lock()
	r.Errors = append(r.Errors, fmt.Sprintf(msgFormat, msgArgs...))
	r.lock.Unlock()
}

func (r *TestRecorder) FailNow() {
	r.lock.Lock()
	r.Terminated = true
	r.lock.Unlock()
	if r.PanicOnTerminate {
		panic(recorderTerminated{})
	}
}

func (r *TestRecorder) Helper() {}

// Err returns all of the recorded error messages combined, or nil if there were none.
func (r *TestRecorder) Err() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if len(r.Errors) == 0 {
		return nil
	}
	return errors.New(strings.Join(r.Errors, ", "))
}

// RunRecorded runs action against the recorder, absorbing the panic caused by FailNow when
// PanicOnTerminate is set. Any other panic is propagated.
func (r *TestRecorder) RunRecorded(action func(TestContext)) {
	defer func() {
		if p := recover(); p != nil {
			if _, ok := p.(recorderTerminated); !ok {
				panic(p)
			}
		}
	}()
	action(r)
}
