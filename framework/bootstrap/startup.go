package bootstrap

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// EntryPoint is the main function of an application under test. It receives the command-line
// arguments and the merged configuration, and returns the process exit code.
type EntryPoint func(ctx context.Context, args []string, config map[string]string) int

// EntryPointError is returned by RunMainBlocking when the entry point panics.
type EntryPointError struct {
	Value interface{}
	Stack []byte
}

func (e *EntryPointError) Error() string {
	return fmt.Sprintf("entry point panicked: %v", e.Value)
}

// Unwrap returns the panic value if it was an error.
func (e *EntryPointError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

type startupKey struct{}

// FromContext returns the Startup whose entry point is running with ctx.
func FromContext(ctx context.Context) (*Startup, bool) {
	s, ok := ctx.Value(startupKey{}).(*Startup)
	return s, ok
}

// Startup is one prepared run of an Application.
type Startup struct {
	app       *Application
	profile   string
	config    map[string]string
	overrides map[string]string
	running   bool
	lock      sync.Mutex
}

func (s *Startup) Application() *Application { return s.app }

// Profile is the name of the profile the configuration was loaded for.
func (s *Startup) Profile() string { return s.profile }

// OverrideConfig adds values that take precedence over anything loaded from configuration files
// or profile overrides. Later calls win over earlier ones.
func (s *Startup) OverrideConfig(values map[string]string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.overrides == nil {
		s.overrides = make(map[string]string)
	}
	for k, v := range values {
		s.overrides[k] = v
	}
}

// Config returns the effective configuration.
func (s *Startup) Config() map[string]string {
	s.lock.Lock()
	defer s.lock.Unlock()
	ret := make(map[string]string, len(s.config)+len(s.overrides))
	for k, v := range s.config {
		ret[k] = v
	}
	for k, v := range s.overrides {
		ret[k] = v
	}
	return ret
}

// Get returns one configuration value.
func (s *Startup) Get(key string) (string, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if v, ok := s.overrides[key]; ok {
		return v, true
	}
	v, ok := s.config[key]
	return v, ok
}

// RunMainBlocking runs entry on the calling goroutine and returns its exit code. A panic in the
// entry point is returned as an *EntryPointError. A Startup can only run one entry point at a
// time.
func (s *Startup) RunMainBlocking(ctx context.Context, entry EntryPoint, args []string) (exitCode int, err error) {
	if s.app.IsClosed() {
		return 0, ErrClosed
	}
	s.lock.Lock()
	if s.running {
		s.lock.Unlock()
		return 0, fmt.Errorf("application %s is already running", s.app.Name())
	}
	s.running = true
	s.lock.Unlock()
	defer func() {
		s.lock.Lock()
		s.running = false
		s.lock.Unlock()
	}()

	defer func() {
		if p := recover(); p != nil {
			exitCode = 1
			err = &EntryPointError{Value: p, Stack: debug.Stack()}
		}
	}()
	return entry(context.WithValue(ctx, startupKey{}, s), append([]string(nil), args...), s.Config()), nil
}
