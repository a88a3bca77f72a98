// Package bootstrap turns the roots found by the buildout package into an isolated, closeable
// Application, and runs an application's entry point against a prepared configuration.
package bootstrap

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/mainlaunch/mainlaunch/framework"
	"github.com/mainlaunch/mainlaunch/framework/buildout"
	"github.com/mainlaunch/mainlaunch/framework/resources"
)

var (
	// ErrNoDependencies means the application has no roots to load anything from.
	ErrNoDependencies = errors.New("the application declares no runtime dependencies")

	// ErrClosed is returned when starting an application that has already been closed.
	ErrClosed = errors.New("application has been closed")
)

// Options describes the application to bootstrap.
type Options struct {
	Locations buildout.Locations

	// Registry holds the resource factories belonging to this application. A new empty registry
	// is used if it is nil.
	Registry *resources.Registry

	Logger framework.Logger
}

// Application is a self-contained unit built from a set of roots. Its configuration files and
// resource registry are private to it; nothing is shared with another Application.
type Application struct {
	id        string
	locations buildout.Locations
	registry  *resources.Registry
	logger    framework.Logger
	closed    bool
	lock      sync.Mutex
}

// Bootstrap builds a new Application.
func Bootstrap(opts Options) (*Application, error) {
	if len(opts.Locations.Roots) == 0 {
		return nil, ErrNoDependencies
	}
	registry := opts.Registry
	if registry == nil {
		registry = resources.NewRegistry()
	}
	app := &Application{
		id:        uuid.New().String(),
		locations: opts.Locations,
		registry:  registry,
		logger:    framework.OrNullLogger(opts.Logger),
	}
	app.logger.Printf("Bootstrapped application %s (%s) from %d roots", app.Name(), app.id, len(opts.Locations.Roots))
	return app, nil
}

// Obtain returns the globally registered application if there is one, and otherwise bootstraps
// a new one. owned is true only in the second case, meaning the caller is responsible for
// closing it. Either way an application without dependencies is ErrNoDependencies.
func Obtain(opts Options) (app *Application, owned bool, err error) {
	if app = Current(); app == nil {
		if app, err = Bootstrap(opts); err != nil {
			return nil, false, err
		}
		owned = true
	}
	if len(app.locations.Roots) == 0 {
		return nil, false, ErrNoDependencies
	}
	return app, owned, nil
}

// ID uniquely identifies this application instance.
func (a *Application) ID() string { return a.id }

// Name is the module path of the application, or the test directory if it has none.
func (a *Application) Name() string {
	if a.locations.ModulePath != "" {
		return a.locations.ModulePath
	}
	return a.locations.TestDir
}

func (a *Application) Locations() buildout.Locations { return a.locations }

// Dependencies returns the roots the application was built from, in precedence order.
func (a *Application) Dependencies() []string {
	return append([]string(nil), a.locations.Roots...)
}

func (a *Application) Registry() *resources.Registry { return a.registry }

// LoadConfig reads the application's configuration files for the given profile.
func (a *Application) LoadConfig(profile string) (map[string]string, error) {
	return LoadConfig(a.locations.Roots, profile)
}

// NewStartup prepares a single run of the application. The configuration is loaded from the
// application's roots for the profile, with the profile's overrides applied on top.
func (a *Application) NewStartup(profile resources.Profile) (*Startup, error) {
	if a.IsClosed() {
		return nil, ErrClosed
	}
	name := resources.ProfileName(profile)
	config, err := a.LoadConfig(name)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		for k, v := range profile.ConfigOverrides() {
			config[k] = v
		}
	}
	return &Startup{app: a, profile: name, config: config}, nil
}

func (a *Application) IsClosed() bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.closed
}

// Close releases the application. Closing it more than once has no effect.
func (a *Application) Close() error {
	a.lock.Lock()
	wasClosed := a.closed
	a.closed = true
	a.lock.Unlock()
	if !wasClosed {
		a.logger.Printf("Closed application %s (%s)", a.Name(), a.id)
	}
	return nil
}

var (
	current     *Application
	currentLock sync.Mutex
)

// SetCurrent registers app as the application every launcher in this process should use
// instead of bootstrapping its own. Passing nil is the same as ClearCurrent.
func SetCurrent(app *Application) {
	currentLock.Lock()
	current = app
	currentLock.Unlock()
}

// Current returns the globally registered application, or nil.
func Current() *Application {
	currentLock.Lock()
	defer currentLock.Unlock()
	return current
}

func ClearCurrent() { SetCurrent(nil) }
