package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/google/uuid"

	"github.com/mainlaunch/mainlaunch/framework"
	"github.com/mainlaunch/mainlaunch/framework/applog"
	"github.com/mainlaunch/mainlaunch/framework/bootstrap"
	"github.com/mainlaunch/mainlaunch/framework/buildout"
	"github.com/mainlaunch/mainlaunch/framework/capture"
	"github.com/mainlaunch/mainlaunch/framework/helpers"
	"github.com/mainlaunch/mainlaunch/framework/resources"
)

var (
	// ErrNotPrepared is returned when launching without a prepared application.
	ErrNotPrepared = errors.New("no application has been prepared")

	// ErrIntegrationClass is returned when asked to prepare a class marked Integration.
	ErrIntegrationClass = errors.New("integration test classes must be run against the built binary")
)

// Config holds the settings of an Extension.
type Config struct {
	ProjectRoot  string
	Layout       buildout.Layout
	Registry     *resources.Registry
	ReloadPolicy resources.ReloadPolicy
	Console      *capture.Service
	Echo         bool
	EchoExclude  []*regexp.Regexp
	Logger       framework.Logger
	Getenv       func(string) string
}

type Option helpers.ConfigOption[Config]

// WithProjectRoot sets the directory that go.work is looked for in. The default is the current
// directory.
func WithProjectRoot(dir string) Option {
	return helpers.ConfigOptionFunc[Config](func(c *Config) error {
		c.ProjectRoot = dir
		return nil
	})
}

func WithLayout(layout buildout.Layout) Option {
	return helpers.ConfigOptionFunc[Config](func(c *Config) error {
		c.Layout = layout
		return nil
	})
}

// WithRegistry sets the resource registry given to applications that the extension bootstraps.
func WithRegistry(registry *resources.Registry) Option {
	return helpers.ConfigOptionFunc[Config](func(c *Config) error {
		if registry == nil {
			return errors.New("registry must not be nil")
		}
		c.Registry = registry
		return nil
	})
}

func WithReloadPolicy(policy resources.ReloadPolicy) Option {
	return helpers.ConfigOptionFunc[Config](func(c *Config) error {
		c.ReloadPolicy = policy
		return nil
	})
}

// WithConsole replaces the process-wide capture service.
func WithConsole(console *capture.Service) Option {
	return helpers.ConfigOptionFunc[Config](func(c *Config) error {
		c.Console = console
		return nil
	})
}

// WithEcho makes launches copy captured output to the real console as well, except for writes
// matching any of the exclude patterns.
func WithEcho(exclude ...*regexp.Regexp) Option {
	return helpers.ConfigOptionFunc[Config](func(c *Config) error {
		c.Echo = true
		c.EchoExclude = append(c.EchoExclude, exclude...)
		return nil
	})
}

// WithLogger sets the logger for the extension's own diagnostics, including resource close
// failures. These are never part of the captured output.
func WithLogger(logger framework.Logger) Option {
	return helpers.ConfigOptionFunc[Config](func(c *Config) error {
		c.Logger = logger
		return nil
	})
}

func WithGetenv(getenv func(string) string) Option {
	return helpers.ConfigOptionFunc[Config](func(c *Config) error {
		c.Getenv = getenv
		return nil
	})
}

type preparedContext struct {
	id      string
	app     *bootstrap.Application
	owned   bool
	class   Class
	profile resources.Profile
	specs   []resources.Spec
}

func (pc *preparedContext) reloadState() resources.ReloadState {
	return resources.ReloadState{
		TestClass: pc.class.Name,
		Profile:   resources.ProfileName(pc.profile),
		Resources: pc.specs,
	}
}

// Extension launches an application's entry point in-process for tests. It keeps the prepared
// application between launches of the same class and profile. An Extension is meant to be used
// from one goroutine at a time.
type Extension struct {
	entry    bootstrap.EntryPoint
	config   Config
	logger   framework.Logger
	prepared *preparedContext
	state    State
	outcome  State
	rebuilds int
	shutdown ShutdownTasks

	// launchLock serializes prepare, launch and teardown; lock guards the fields above.
	launchLock sync.Mutex
	lock       sync.Mutex
}

// New creates an Extension that will run entry.
func New(entry bootstrap.EntryPoint, options ...Option) (*Extension, error) {
	if entry == nil {
		return nil, errors.New("entry point must not be nil")
	}
	config := Config{
		Layout:       buildout.DefaultLayout(),
		Registry:     resources.NewRegistry(),
		ReloadPolicy: resources.ResourcesChanged,
		Console:      capture.Console,
		Getenv:       os.Getenv,
	}
	if err := helpers.ApplyOptions(&config, options...); err != nil {
		return nil, err
	}
	return &Extension{
		entry:  entry,
		config: config,
		logger: framework.OrNullLogger(config.Logger),
	}, nil
}

// Registry is the resource registry used for applications this extension bootstraps.
func (e *Extension) Registry() *resources.Registry { return e.config.Registry }

func (e *Extension) State() State {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.state
}

// Outcome is Complete or Failed depending on how the most recent launch ended, or Unprepared if
// there has been none.
func (e *Extension) Outcome() State {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.outcome
}

// PreparedID identifies the current prepared context. It changes every time the application is
// rebuilt, and is empty when nothing is prepared.
func (e *Extension) PreparedID() string {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.prepared == nil {
		return ""
	}
	return e.prepared.id
}

// Rebuilds counts how many times a context has been prepared.
func (e *Extension) Rebuilds() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.rebuilds
}

// Application returns the prepared application, or nil.
func (e *Extension) Application() *bootstrap.Application {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.prepared == nil {
		return nil
	}
	return e.prepared.app
}

// AddShutdownTask queues fn to run when Teardown is called.
func (e *Extension) AddShutdownTask(name string, fn func() error) {
	e.shutdown.Add(name, fn)
}

// EnsurePrepared makes sure an application is prepared for class and profile. The existing one
// is kept unless the profile differs, or the class differs and either the class is nested or
// the reload policy asks for a reload.
func (e *Extension) EnsurePrepared(class Class, profile resources.Profile) error {
	e.launchLock.Lock()
	defer e.launchLock.Unlock()
	e.lock.Lock()
	defer e.lock.Unlock()
	_, err := e.ensurePrepared(class, profile)
	return err
}

func (e *Extension) ensurePrepared(class Class, profile resources.Profile) (*preparedContext, error) {
	if class.Integration {
		return nil, fmt.Errorf("%s: %w", class.Name, ErrIntegrationClass)
	}
	if pc := e.prepared; pc != nil && !e.needsRebuild(pc, class, profile) {
		e.state = Prepared
		return pc, nil
	}
	e.closePrepared()

	locator := &buildout.Locator{
		ProjectRoot: e.config.ProjectRoot,
		Layout:      e.config.Layout,
		Getenv:      e.config.Getenv,
	}
	locations, err := locator.Locate(class.Name, class.Dir)
	if err != nil {
		return nil, err
	}
	app, owned, err := bootstrap.Obtain(bootstrap.Options{
		Locations: locations,
		Registry:  e.config.Registry,
		Logger:    e.logger,
	})
	if err != nil {
		return nil, err
	}
	specs, err := app.Registry().Resolve(class.Resources, profile)
	if err != nil {
		if owned {
			_ = app.Close()
		}
		return nil, err
	}
	if owned {
		e.shutdown.Add("close application "+app.Name(), app.Close)
	}

	pc := &preparedContext{
		id:      uuid.New().String(),
		app:     app,
		owned:   owned,
		class:   class,
		profile: profile,
		specs:   specs,
	}
	e.prepared = pc
	e.state = Prepared
	e.rebuilds++
	e.logger.Printf("Prepared %s for %s (profile %q, resources %v)", app.Name(), class.Name,
		resources.ProfileName(profile), specs)
	return pc, nil
}

func (e *Extension) needsRebuild(pc *preparedContext, class Class, profile resources.Profile) bool {
	if resources.ProfileName(pc.profile) != resources.ProfileName(profile) {
		return true
	}
	if pc.class.Name == class.Name {
		return false
	}
	if class.Nested() {
		return true
	}
	specs, err := pc.app.Registry().Resolve(class.Resources, profile)
	if err != nil {
		// rebuilding reports the error
		return true
	}
	next := resources.ReloadState{TestClass: class.Name, Profile: resources.ProfileName(profile), Resources: specs}
	return e.config.ReloadPolicy(pc.reloadState(), next)
}

func (e *Extension) closePrepared() {
	pc := e.prepared
	if pc == nil {
		return
	}
	e.prepared = nil
	e.state = Unprepared
	if pc.owned {
		if err := pc.app.Close(); err != nil {
			e.logger.Printf("Unable to close application %s: %s", pc.app.Name(), err)
		}
	}
}

// Launch runs the entry point once with args, preparing an application first if necessary.
// Console output and log output produced while it runs are captured in the Result. target, if
// not nil, must be a pointer to a struct whose tagged fields receive resource handles.
//
// If the launch fails before the entry point returns, the error is a *LaunchError carrying
// whatever was captured.
func (e *Extension) Launch(ctx context.Context, class Class, profile resources.Profile, target any, args ...string) (*Result, error) {
	e.launchLock.Lock()
	defer e.launchLock.Unlock()
	e.lock.Lock()
	pc, err := e.ensurePrepared(class, profile)
	if err == nil {
		e.state = Launching
	}
	e.lock.Unlock()
	if err != nil {
		return nil, err
	}
	return e.launchPrepared(ctx, pc, target, args)
}

func (e *Extension) launchPrepared(ctx context.Context, pc *preparedContext, target any, args []string) (result *Result, err error) {
	if pc == nil {
		return nil, ErrNotPrepared
	}
	completed := false
	defer func() {
		e.lock.Lock()
		e.state = Prepared
		e.outcome = helpers.IfElse(completed && err == nil, Complete, Failed)
		e.lock.Unlock()
		if e.outcome == Failed && !applog.IsActivated() {
			applog.Activate()
		}
	}()

	filter, err := e.config.Console.Acquire(capture.Options{Echo: e.config.Echo, EchoExclude: e.config.EchoExclude})
	if err != nil {
		return nil, err
	}
	restoreLogging := applog.InstallRedirect(filter.Stdout())

	var manager *resources.Manager
	exitCode := 0
	defer func() {
		if manager != nil {
			manager.Close()
		}
		restoreLogging()
		out := filter.Release()
		captured := NewResult(out.Out, out.Err, exitCode)
		if err != nil {
			err = &LaunchError{Err: err, Output: captured}
			return
		}
		result = captured
	}()

	startup, err := pc.app.NewStartup(pc.profile)
	if err != nil {
		return nil, err
	}
	manager, err = resources.NewManager(pc.app.Registry(), resources.ManagerConfig{
		TestClass: pc.class.Name,
		Profile:   pc.profile,
		Specs:     pc.specs,
		Logger:    e.logger,
	})
	if err != nil {
		return nil, err
	}
	if err = manager.Init(); err != nil {
		return nil, err
	}
	props, err := manager.Start(ctx)
	if err != nil {
		return nil, err
	}
	startup.OverrideConfig(props)
	if err = manager.Inject(target); err != nil {
		return nil, err
	}

	exitCode, err = startup.RunMainBlocking(ctx, e.entry, args)
	if err != nil {
		return nil, err
	}
	completed = true
	return nil, nil
}

// LaunchAndAssert launches and reports a failure to t if the launch fails or the exit code is
// not the expected one.
func (e *Extension) LaunchAndAssert(t helpers.TestContext, class Class, profile resources.Profile, target any, launch Launch) *Result {
	t.Helper()
	result, err := e.Launch(context.Background(), class, profile, target, launch.Args...)
	if err != nil {
		t.Errorf("Launch failed: %s", err)
		t.FailNow()
		return nil
	}
	if result.ExitCode() != launch.ExitCode {
		t.Errorf("Exit code did not match, output: %s %s", result.Output(), result.ErrorOutput())
	}
	return result
}

// Teardown closes the prepared application and runs every queued shutdown task. The extension
// can be used again afterwards.
func (e *Extension) Teardown() {
	e.launchLock.Lock()
	defer e.launchLock.Unlock()
	e.lock.Lock()
	e.closePrepared()
	e.lock.Unlock()
	e.shutdown.Drain(e.logger)
}
