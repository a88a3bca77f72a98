package launcher

import (
	"context"
	"testing"

	"github.com/mainlaunch/mainlaunch/framework/bootstrap"
	"github.com/mainlaunch/mainlaunch/framework/helpers"
	"github.com/mainlaunch/mainlaunch/framework/resources"
)

// ForTest creates an Extension whose Teardown runs when t and its subtests finish. It fails the
// test immediately if the extension cannot be created.
func ForTest(t testing.TB, entry bootstrap.EntryPoint, options ...Option) *Extension {
	t.Helper()
	ext, err := New(entry, options...)
	if err != nil {
		t.Fatalf("unable to create launcher: %s", err)
	}
	t.Cleanup(ext.Teardown)
	return ext
}

// Session binds an Extension to one test, class and profile, so that launches can be written as
// s.Launch("--help") from the test body. Failures are reported to the test.
type Session struct {
	ext     *Extension
	t       helpers.TestContext
	ctx     context.Context
	class   Class
	profile resources.Profile
	target  any
}

// Session starts a Session for the given test.
func (e *Extension) Session(t helpers.TestContext, class Class, profile resources.Profile) *Session {
	return &Session{ext: e, t: t, ctx: context.Background(), class: class, profile: profile}
}

// InjectInto sets the struct that receives resource handles on each launch.
func (s *Session) InjectInto(target any) *Session {
	s.target = target
	return s
}

// WithContext sets the context passed to the entry point.
func (s *Session) WithContext(ctx context.Context) *Session {
	s.ctx = ctx
	return s
}

// Launch runs the entry point with args and returns the result, whatever the exit code. If the
// launch itself fails, the test is failed and stopped.
func (s *Session) Launch(args ...string) *Result {
	s.t.Helper()
	result, err := s.ext.Launch(s.ctx, s.class, s.profile, s.target, args...)
	if err != nil {
		s.t.Errorf("Launch failed: %s", err)
		s.t.FailNow()
		return nil
	}
	return result
}

// Run performs a declared launch and checks its exit code.
func (s *Session) Run(launch Launch) *Result {
	s.t.Helper()
	result := s.Launch(launch.Args...)
	if result != nil && result.ExitCode() != launch.ExitCode {
		s.t.Errorf("Exit code did not match, output: %s %s", result.Output(), result.ErrorOutput())
	}
	return result
}
