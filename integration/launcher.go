// Package integration launches an application as a separate binary, for test classes marked
// as integration classes. The binary is configured the same way an in-process launch is, from
// configuration files, profile overrides and test resources, except that the configuration is
// passed in environment variables.
package integration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/onsi/gomega/gexec"

	"github.com/mainlaunch/mainlaunch/framework"
	"github.com/mainlaunch/mainlaunch/framework/bootstrap"
	"github.com/mainlaunch/mainlaunch/framework/buildout"
	"github.com/mainlaunch/mainlaunch/framework/capture"
	"github.com/mainlaunch/mainlaunch/framework/helpers"
	"github.com/mainlaunch/mainlaunch/framework/launcher"
	"github.com/mainlaunch/mainlaunch/framework/resources"
)

// ErrTimeout is returned when a launched binary does not exit within the configured timeout.
var ErrTimeout = errors.New("application did not exit in time")

// Build compiles the main package at packagePath and returns the path of the binary.
func Build(packagePath string, args ...string) (string, error) {
	path, err := gexec.Build(packagePath, args...)
	if err != nil {
		return "", fmt.Errorf("failed to build %s: %w", packagePath, err)
	}
	return path, nil
}

// CleanupBuildArtifacts removes every binary created by Build.
func CleanupBuildArtifacts() {
	gexec.CleanupBuildArtifacts()
}

// Config holds the settings of a Launcher.
type Config struct {
	ProjectRoot string
	Layout      buildout.Layout
	Registry    *resources.Registry
	Timeout     time.Duration
	Echo        bool
	Logger      framework.Logger
	Getenv      func(string) string
}

type Option helpers.ConfigOption[Config]

func WithProjectRoot(dir string) Option {
	return helpers.ConfigOptionFunc[Config](func(c *Config) error {
		c.ProjectRoot = dir
		return nil
	})
}

func WithRegistry(registry *resources.Registry) Option {
	return helpers.ConfigOptionFunc[Config](func(c *Config) error {
		if registry == nil {
			return errors.New("registry must not be nil")
		}
		c.Registry = registry
		return nil
	})
}

// WithTimeout bounds how long a launched binary may run. The default is one minute.
func WithTimeout(timeout time.Duration) Option {
	return helpers.ConfigOptionFunc[Config](func(c *Config) error {
		c.Timeout = timeout
		return nil
	})
}

// WithEcho copies the binary's output to the console as it runs.
func WithEcho() Option {
	return helpers.ConfigOptionFunc[Config](func(c *Config) error {
		c.Echo = true
		return nil
	})
}

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

// Launcher runs a built binary once per launch.
type Launcher struct {
	binary string
	config Config
	logger framework.Logger
}

func New(binary string, options ...Option) (*Launcher, error) {
	config := Config{
		Layout:   buildout.DefaultLayout(),
		Registry: resources.NewRegistry(),
		Timeout:  time.Minute,
		Getenv:   os.Getenv,
	}
	if err := helpers.ApplyOptions(&config, options...); err != nil {
		return nil, err
	}
	return &Launcher{binary: binary, config: config, logger: framework.OrNullLogger(config.Logger)}, nil
}

// Binary is the path of the binary this launcher runs.
func (l *Launcher) Binary() string { return l.binary }

// Launch runs the binary with args for the given class and profile. Test resources are started
// before the binary and closed after it exits.
func (l *Launcher) Launch(ctx context.Context, class launcher.Class, profile resources.Profile, args ...string) (*launcher.Result, error) {
	locator := &buildout.Locator{ProjectRoot: l.config.ProjectRoot, Layout: l.config.Layout, Getenv: l.config.Getenv}
	locations, err := locator.Locate(class.Name, class.Dir)
	if err != nil {
		return nil, err
	}
	config, err := bootstrap.LoadConfig(locations.Roots, resources.ProfileName(profile))
	if err != nil {
		return nil, err
	}
	if profile != nil {
		for k, v := range profile.ConfigOverrides() {
			config[k] = v
		}
	}

	specs, err := l.config.Registry.Resolve(class.Resources, profile)
	if err != nil {
		return nil, err
	}
	manager, err := resources.NewManager(l.config.Registry, resources.ManagerConfig{
		TestClass: class.Name,
		Profile:   profile,
		Specs:     specs,
		Logger:    l.logger,
	})
	if err != nil {
		return nil, err
	}
	defer manager.Close()
	if err := manager.Init(); err != nil {
		return nil, err
	}
	props, err := manager.Start(ctx)
	if err != nil {
		return nil, err
	}
	for k, v := range props {
		config[k] = v
	}

	return l.run(ctx, config, args)
}

func (l *Launcher) run(ctx context.Context, config map[string]string, args []string) (*launcher.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &launcher.LaunchError{Err: err, Output: launcher.NewResult(nil, nil, -1)}
	}
	cmd := exec.Command(l.binary, args...) //nolint:gosec
	cmd.Env = append(os.Environ(), Environ(config)...)
	var outEcho, errEcho io.Writer
	if l.config.Echo {
		outEcho, errEcho = os.Stdout, os.Stderr
	}

	l.logger.Printf("Starting %s %v", l.binary, args)
	session, err := gexec.Start(cmd, outEcho, errEcho)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(l.config.Timeout)
	defer timer.Stop()
	var waitErr error
	select {
	case <-session.Exited:
	case <-ctx.Done():
		waitErr = ctx.Err()
	case <-timer.C:
		waitErr = ErrTimeout
	}
	if waitErr != nil {
		session.Kill()
		<-session.Exited
	}

	result := launcher.NewResult(
		capture.Lines(string(session.Out.Contents())),
		capture.Lines(string(session.Err.Contents())),
		session.ExitCode(),
	)
	if waitErr != nil {
		return nil, &launcher.LaunchError{Err: waitErr, Output: result}
	}
	l.logger.Printf("%s exited: %s", l.binary, result)
	return result, nil
}
