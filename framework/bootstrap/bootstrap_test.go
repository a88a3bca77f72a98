package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mainlaunch/mainlaunch/framework/buildout"
	"github.com/mainlaunch/mainlaunch/framework/resources"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newApp(t *testing.T, roots ...string) *Application {
	t.Helper()
	app, err := Bootstrap(Options{Locations: buildout.Locations{ModulePath: "example.com/app", Roots: roots}})
	require.NoError(t, err)
	return app
}

func TestBootstrapRequiresRoots(t *testing.T) {
	_, err := Bootstrap(Options{})
	assert.True(t, errors.Is(err, ErrNoDependencies))
}

func TestBootstrapAssignsIdentity(t *testing.T) {
	dir := t.TempDir()
	a, b := newApp(t, dir), newApp(t, dir)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, "example.com/app", a.Name())
	assert.Equal(t, []string{dir}, a.Dependencies())
	assert.NotNil(t, a.Registry())
	assert.NotSame(t, a.Registry(), b.Registry())
}

func TestObtainPrefersCurrent(t *testing.T) {
	dir := t.TempDir()
	registered := newApp(t, dir)
	SetCurrent(registered)
	defer ClearCurrent()

	app, owned, err := Obtain(Options{})
	require.NoError(t, err)
	assert.Same(t, registered, app)
	assert.False(t, owned)

	ClearCurrent()
	app, owned, err = Obtain(Options{Locations: buildout.Locations{Roots: []string{dir}}})
	require.NoError(t, err)
	assert.NotSame(t, registered, app)
	assert.True(t, owned)
}

func TestObtainRejectsCurrentWithoutDependencies(t *testing.T) {
	SetCurrent(&Application{id: "empty"})
	defer ClearCurrent()

	app, owned, err := Obtain(Options{Locations: buildout.Locations{Roots: []string{t.TempDir()}}})
	assert.True(t, errors.Is(err, ErrNoDependencies))
	assert.Nil(t, app)
	assert.False(t, owned)
}

func TestLoadConfigPrecedence(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	writeFile(t, first, ConfigFileName, `
greeting:
  message: hello
"%dev.greeting.target": developers
`)
	writeFile(t, second, ConfigFileName, `
greeting:
  message: ignored
  target: world
ports: [8080, 8081]
`)
	writeFile(t, second, ProfileConfigFileName("dev"), `
greeting:
  punctuation: "!"
`)

	cfg, err := LoadConfig([]string{first, second}, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"greeting.message": "hello",
		"greeting.target":  "world",
		"ports":            "8080,8081",
	}, cfg)

	cfg, err = LoadConfig([]string{first, second}, "dev")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"greeting.message":     "hello",
		"greeting.target":      "developers",
		"greeting.punctuation": "!",
		"ports":                "8080,8081",
	}, cfg)
	assert.Equal(t, []string{"greeting.message", "greeting.punctuation", "greeting.target", "ports"}, SortedKeys(cfg))
}

func TestLoadConfigInvalidFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ConfigFileName, "greeting: [unterminated")
	_, err := LoadConfig([]string{dir}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ConfigFileName)
}

func TestStartupConfigLayers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ConfigFileName, "a: file\nb: file\nc: file\n")
	app := newApp(t, dir)
	profile := resources.StaticProfile{ProfileName: "p", Overrides: map[string]string{"b": "profile", "c": "profile"}}

	s, err := app.NewStartup(profile)
	require.NoError(t, err)
	s.OverrideConfig(map[string]string{"c": "resource"})

	assert.Equal(t, "p", s.Profile())
	assert.Equal(t, map[string]string{"a": "file", "b": "profile", "c": "resource"}, s.Config())
	v, ok := s.Get("c")
	assert.True(t, ok)
	assert.Equal(t, "resource", v)
}

func TestRunMainBlocking(t *testing.T) {
	app := newApp(t, t.TempDir())
	s, err := app.NewStartup(nil)
	require.NoError(t, err)
	s.OverrideConfig(map[string]string{"k": "v"})

	var gotArgs []string
	var gotConfig map[string]string
	var fromCtx *Startup
	code, err := s.RunMainBlocking(context.Background(), func(ctx context.Context, args []string, config map[string]string) int {
		gotArgs, gotConfig = args, config
		fromCtx, _ = FromContext(ctx)
		return 3
	}, []string{"x", "y"})

	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Equal(t, []string{"x", "y"}, gotArgs)
	assert.Equal(t, map[string]string{"k": "v"}, gotConfig)
	assert.Same(t, s, fromCtx)
}

func TestRunMainBlockingPanic(t *testing.T) {
	app := newApp(t, t.TempDir())
	s, err := app.NewStartup(nil)
	require.NoError(t, err)

	cause := errors.New("boom")
	_, err = s.RunMainBlocking(context.Background(), func(context.Context, []string, map[string]string) int {
		panic(cause)
	}, nil)

	var epErr *EntryPointError
	require.True(t, errors.As(err, &epErr))
	assert.True(t, errors.Is(err, cause))
	assert.NotEmpty(t, epErr.Stack)
}

func TestClosedApplication(t *testing.T) {
	app := newApp(t, t.TempDir())
	s, err := app.NewStartup(nil)
	require.NoError(t, err)

	require.NoError(t, app.Close())
	require.NoError(t, app.Close())
	assert.True(t, app.IsClosed())

	_, err = app.NewStartup(nil)
	assert.Equal(t, ErrClosed, err)
	_, err = s.RunMainBlocking(context.Background(), func(context.Context, []string, map[string]string) int { return 0 }, nil)
	assert.Equal(t, ErrClosed, err)
}
