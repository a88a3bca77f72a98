package integration

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mainlaunch/mainlaunch/framework/launcher"
	"github.com/mainlaunch/mainlaunch/framework/resources"
	"github.com/mainlaunch/mainlaunch/testresources"
)

const greeterPackage = "github.com/mainlaunch/mainlaunch/sampleapp/cmd/greeter"

var (
	buildOnce   sync.Once
	greeterPath string
	errBuild    error
)

func TestMain(m *testing.M) {
	code := m.Run()
	CleanupBuildArtifacts()
	os.Exit(code)
}

func greeter(t *testing.T, options ...Option) *Launcher {
	t.Helper()
	if testing.Short() {
		t.Skip("builds a binary")
	}
	buildOnce.Do(func() { greeterPath, errBuild = Build(greeterPackage) })
	require.NoError(t, errBuild)

	registry := resources.NewRegistry()
	testresources.Register(registry)
	options = append([]Option{WithRegistry(registry), WithGetenv(func(string) string { return "" })}, options...)
	l, err := New(greeterPath, options...)
	require.NoError(t, err)
	return l
}

func integrationClass(t *testing.T, specs ...resources.Spec) launcher.Class {
	class := launcher.ClassOf(t, specs...)
	class.Integration = true
	return class
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "REDIS_URL", EnvName("redis.url"))
	assert.Equal(t, "MOCK_SERVICE_URL", EnvName("mock-service.url"))
	assert.Equal(t, "GREETING_MESSAGE", EnvName("greeting.message"))
}

func TestEnvironRoundTrip(t *testing.T) {
	config := map[string]string{"redis.url": "redis://localhost:6379", "greeting.message": "Hi=there"}
	environ := Environ(config)
	assert.Equal(t, []string{
		"GREETING_MESSAGE=Hi=there",
		"REDIS_URL=redis://localhost:6379",
		ConfigKeysEnv + "=greeting.message,redis.url",
	}, environ)

	environ = append([]string{"PATH=/bin", "REDIS=unrelated"}, environ...)
	assert.Equal(t, config, ConfigFromEnviron(environ))
	assert.Empty(t, ConfigFromEnviron([]string{"PATH=/bin"}))
}

func TestEnvConfigReadsProcessEnvironment(t *testing.T) {
	for _, e := range Environ(map[string]string{"greeting.target": "env"}) {
		name, value, _ := strings.Cut(e, "=")
		t.Setenv(name, value)
	}
	assert.Equal(t, map[string]string{"greeting.target": "env"}, EnvConfig())
}

func TestLaunchBinary(t *testing.T) {
	l := greeter(t)
	result, err := l.Launch(context.Background(), integrationClass(t), nil, "greet")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode())
	assert.Contains(t, result.OutputLines(), "Howdy, partner!")
}

func TestLaunchBinaryExitCodeAndStderr(t *testing.T) {
	l := greeter(t)
	result, err := l.Launch(context.Background(), integrationClass(t), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.ExitCode())
	assert.Equal(t, []string{"missing command"}, result.OutputLines())
	assert.Equal(t, []string{"try --help"}, result.ErrorLines())
}

func TestLaunchBinaryWithProfileAndResource(t *testing.T) {
	l := greeter(t)
	profile := resources.StaticProfile{
		ProfileName: "ping",
		Resources: []resources.Spec{{
			Name: testresources.MockServiceName,
			Args: map[string]string{"GET /ping": "204"},
		}},
	}
	result, err := l.Launch(context.Background(), integrationClass(t), profile, "ping")
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode())
	assert.Equal(t, []string{"ping: 204"}, result.OutputLines())
}

func TestLaunchBinaryPanicExitsNonZero(t *testing.T) {
	l := greeter(t)
	result, err := l.Launch(context.Background(), integrationClass(t), nil, "crash")
	require.NoError(t, err)
	assert.Equal(t, 2, result.ExitCode())
	assert.Contains(t, result.ErrorOutput(), "panic: crash requested")
}

func TestLaunchCancelled(t *testing.T) {
	l := greeter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Launch(ctx, integrationClass(t), nil, "greet")
	require.Error(t, err)
	var launchErr *launcher.LaunchError
	require.True(t, errors.As(err, &launchErr))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.NotNil(t, launchErr.Output)
}

func TestLaunchUnknownResource(t *testing.T) {
	l := greeter(t, WithTimeout(10*time.Second))
	_, err := l.Launch(context.Background(), integrationClass(t, resources.Spec{Name: "nope"}), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown test resource "nope"`)
}

func TestNewRejectsNilRegistry(t *testing.T) {
	_, err := New("bin", WithRegistry(nil))
	assert.Error(t, err)
}
