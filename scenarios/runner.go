package scenarios

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mainlaunch/mainlaunch/framework/bootstrap"
	"github.com/mainlaunch/mainlaunch/framework/capture"
	"github.com/mainlaunch/mainlaunch/framework/helpers"
	"github.com/mainlaunch/mainlaunch/framework/launcher"
	"github.com/mainlaunch/mainlaunch/framework/launchtest"
	"github.com/mainlaunch/mainlaunch/framework/resources"
	"github.com/mainlaunch/mainlaunch/integration"
	"github.com/mainlaunch/mainlaunch/testresources"
)

const (
	ModeInProcess = "in-process"
	ModeBinary    = "binary"
)

// Config holds the settings of a Runner.
type Config struct {
	// Apps maps the app names used in scenario files to entry points.
	Apps map[string]bootstrap.EntryPoint

	// RegisterResources fills the registry of each suite. It defaults to testresources.Register.
	RegisterResources func(*resources.Registry)

	// Console is the capture service for in-process launches. It defaults to capture.Console.
	Console *capture.Service

	Echo   bool
	Getenv func(string) string
}

// Runner runs scenario files as launchtest suites.
type Runner struct {
	config   Config
	outcomes map[string]*Outcome
	lock     sync.Mutex
}

func NewRunner(config Config) *Runner {
	if config.RegisterResources == nil {
		config.RegisterResources = testresources.Register
	}
	return &Runner{config: config, outcomes: make(map[string]*Outcome)}
}

// Run runs every file as a top-level scope and returns the suite results together with a
// report of each launch.
func (r *Runner) Run(files []*File, config launchtest.Config) (launchtest.Results, *Report) {
	results := launchtest.Run(config, func(t *launchtest.T) {
		for _, f := range files {
			f := f
			t.Run(f.Suite, func(t *launchtest.T) { r.runFile(t, f) })
		}
	})
	return results, r.report(results)
}

type suite struct {
	file     *File
	ext      *launcher.Extension
	registry *resources.Registry
	binary   *integration.Launcher
	buildErr error
	once     sync.Once
}

func (r *Runner) runFile(t *launchtest.T, f *File) {
	entry, ok := r.config.Apps[f.App]
	if !ok {
		t.Errorf("unknown app %q", f.App)
		t.FailNow()
	}

	registry := resources.NewRegistry()
	r.config.RegisterResources(registry)
	options := []launcher.Option{
		launcher.WithRegistry(registry),
		launcher.WithLogger(t.DebugLogger()),
	}
	if r.config.Console != nil {
		options = append(options, launcher.WithConsole(r.config.Console))
	}
	if r.config.Echo {
		options = append(options, launcher.WithEcho())
	}
	if r.config.Getenv != nil {
		options = append(options, launcher.WithGetenv(r.config.Getenv))
	}
	ext, err := launcher.New(entry, options...)
	if err != nil {
		t.Errorf("unable to create launcher: %s", err)
		t.FailNow()
	}
	t.Defer(ext.Teardown)

	s := &suite{file: f, ext: ext, registry: registry}
	for _, c := range f.Classes {
		c := c
		t.Run(c.Name, func(t *launchtest.T) { r.runClass(t, s, c, nil) })
	}
}

func (r *Runner) runClass(t *launchtest.T, s *suite, c ClassSpec, parent *launcher.Class) {
	class := s.file.LauncherClass(c, parent)
	for _, l := range c.Launches {
		l := l
		t.Run(l.Name, func(t *launchtest.T) { r.runLaunch(t, s, class, l) })
	}
	for _, nested := range c.Nested {
		nested := nested
		t.Run(nested.Name, func(t *launchtest.T) { r.runClass(t, s, nested, &class) })
	}
}

func (r *Runner) runLaunch(t *launchtest.T, s *suite, class launcher.Class, l LaunchSpec) {
	outcome := &Outcome{
		ID:       t.ID(),
		Class:    class.Name,
		Profile:  l.Profile,
		Mode:     helpers.IfElse(class.Integration, ModeBinary, ModeInProcess),
		Args:     l.Args,
		Expected: l.ExitCode,
		ExitCode: -1,
	}
	r.lock.Lock()
	r.outcomes[t.ID().String()] = outcome
	r.lock.Unlock()
	if l.Skip != "" {
		t.SkipWithReason(l.Skip)
	}

	profile := s.file.Profile(l.Profile)
	var result *launcher.Result
	if class.Integration {
		result = r.launchBinary(t, s, class, profile, l)
	} else {
		result = s.ext.LaunchAndAssert(t, class, profile, nil, launcher.Launch{Args: l.Args, ExitCode: l.ExitCode})
	}
	if result == nil {
		return
	}
	outcome.ExitCode = result.ExitCode()
	outcome.Output = result.OutputLines()
	outcome.ErrorOutput = result.ErrorLines()
	expectOutput(t, "output", result.Output(), l.Output)
	expectOutput(t, "error output", result.ErrorOutput(), l.ErrorOutput)
}

func (r *Runner) launchBinary(t *launchtest.T, s *suite, class launcher.Class, profile resources.Profile, l LaunchSpec) *launcher.Result {
	t.Helper()
	s.once.Do(func() {
		t.Debug("Building %s", s.file.Binary)
		path, err := integration.Build(s.file.Binary)
		if err != nil {
			s.buildErr = err
			return
		}
		options := []integration.Option{
			integration.WithRegistry(s.registry),
			integration.WithLogger(t.DebugLogger()),
		}
		if r.config.Echo {
			options = append(options, integration.WithEcho())
		}
		if r.config.Getenv != nil {
			options = append(options, integration.WithGetenv(r.config.Getenv))
		}
		s.binary, s.buildErr = integration.New(path, options...)
	})
	if s.buildErr != nil {
		t.Errorf("Launch failed: %s", s.buildErr)
		t.FailNow()
	}

	result, err := s.binary.Launch(t.Context(), class, profile, l.Args...)
	if err != nil {
		var launchErr *launcher.LaunchError
		if errors.As(err, &launchErr) && launchErr.Output != nil {
			t.Debug("Output before failure: %s", launchErr.Output.Output())
		}
		t.Errorf("Launch failed: %s", err)
		t.FailNow()
	}
	if result.ExitCode() != l.ExitCode {
		t.Errorf("Exit code did not match, output: %s %s", result.Output(), result.ErrorOutput())
	}
	return result
}

func expectOutput(t *launchtest.T, what, actual string, expected []string) {
	t.Helper()
	for _, e := range expected {
		if !strings.Contains(actual, e) {
			t.Errorf("expected %s to contain %q, got: %s", what, e, actual)
		}
	}
}

func (r *Runner) report(results launchtest.Results) *Report {
	r.lock.Lock()
	defer r.lock.Unlock()
	report := &Report{}
	add := func(tr launchtest.TestResult, status string) {
		o, ok := r.outcomes[tr.TestID.String()]
		if !ok {
			return
		}
		entry := *o
		entry.Status = status
		entry.Duration = tr.Duration
		for _, e := range tr.Errors {
			entry.Errors = append(entry.Errors, e.Error())
		}
		report.Outcomes = append(report.Outcomes, entry)
	}
	for _, tr := range results.Tests {
		add(tr, helpers.IfElse(tr.Failed(), StatusFailed, StatusPassed))
	}
	for _, tr := range results.Skipped {
		add(tr, StatusSkipped)
	}
	return report
}

// RunWithContext is Run with the suite context set to ctx.
func (r *Runner) RunWithContext(ctx context.Context, files []*File, config launchtest.Config) (launchtest.Results, *Report) {
	config.Context = ctx
	return r.Run(files, config)
}

// Describe returns a one-line summary of what files contain, for the start of a run.
func Describe(files []*File) string {
	classes, launches := 0, 0
	var count func([]ClassSpec)
	count = func(cs []ClassSpec) {
		for _, c := range cs {
			classes++
			launches += len(c.Launches)
			count(c.Nested)
		}
	}
	for _, f := range files {
		count(f.Classes)
	}
	return fmt.Sprintf("%d suites, %d classes, %d launches", len(files), classes, launches)
}
