package buildout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func mkdir(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o755))
	return path
}

func envMap(values map[string]string) func(string) string {
	return func(k string) string { return values[k] }
}

func TestRootSetDeduplicatesAndKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	a := mkdir(t, filepath.Join(dir, "a"))
	b := mkdir(t, filepath.Join(dir, "b"))

	var roots RootSet
	assert.True(t, roots.Add(b))
	assert.True(t, roots.Add(a))
	assert.False(t, roots.Add(b+string(filepath.Separator)+"."))
	assert.False(t, roots.Add(filepath.Join(dir, "missing")))
	assert.False(t, roots.Add(""))

	assert.Equal(t, []string{b, a}, roots.Paths())
	assert.True(t, roots.Contains(a))
	assert.Equal(t, 2, roots.Len())
}

func TestLocateConventionalLayout(t *testing.T) {
	project := t.TempDir()
	writeFile(t, filepath.Join(project, "go.mod"), "module example.com/app\n\ngo 1.22\n")
	resources := mkdir(t, filepath.Join(project, "resources"))
	testDir := mkdir(t, filepath.Join(project, "cmd", "app"))
	testdata := mkdir(t, filepath.Join(testDir, "testdata"))

	l := NewLocator(project)
	l.Getenv = envMap(nil)
	locs, err := l.Locate("TestApp", testDir)
	require.NoError(t, err)

	assert.Equal(t, project, locs.AppDir)
	assert.Equal(t, testDir, locs.TestDir)
	assert.Equal(t, "example.com/app", locs.ModulePath)
	assert.False(t, locs.Workspace)
	assert.Equal(t, []string{testDir, testdata, project, resources}, locs.Roots)
}

func TestLocateConventionalLayoutWhenTestIsModuleRoot(t *testing.T) {
	project := t.TempDir()
	writeFile(t, filepath.Join(project, "go.mod"), "module example.com/app\n")
	mkdir(t, filepath.Join(project, "testdata"))

	l := NewLocator(project)
	l.Getenv = envMap(nil)
	locs, err := l.Locate("TestApp", project)
	require.NoError(t, err)

	// the test and application directories are the same, so test resources are not added
	assert.Equal(t, []string{project}, locs.Roots)
}

func TestLocateAddsExternalOutputDirsFirst(t *testing.T) {
	project := t.TempDir()
	writeFile(t, filepath.Join(project, "go.mod"), "module example.com/app\n")
	gen := mkdir(t, filepath.Join(project, "gen"))
	testDir := mkdir(t, filepath.Join(project, "pkg"))

	l := NewLocator(project)
	l.Getenv = envMap(map[string]string{
		OutputDirsEnv: gen + ", " + filepath.Join(project, "nope") + "," + project,
	})
	locs, err := l.Locate("TestPkg", testDir)
	require.NoError(t, err)

	// project was already recorded from the external list, so it is not repeated
	assert.Equal(t, []string{gen, project, testDir}, locs.Roots)
}

func TestLocateWorkspaceLayout(t *testing.T) {
	project := t.TempDir()
	writeFile(t, filepath.Join(project, "go.work"), "go 1.22\n\nuse (\n\t./app\n\t./app/plugins\n\t./lib\n)\n")
	appDir := filepath.Join(project, "app")
	writeFile(t, filepath.Join(appDir, "go.mod"), "module example.com/app\n")
	appResources := mkdir(t, filepath.Join(appDir, "resources"))
	testDir := filepath.Join(appDir, "internal", "cli")
	writeFile(t, filepath.Join(testDir, "cli_test.go"), "package cli\n")
	testdata := mkdir(t, filepath.Join(testDir, "testdata"))

	l := NewLocator(project)
	l.Getenv = envMap(nil)
	locs, err := l.Locate("TestCLI", testDir)
	require.NoError(t, err)

	assert.True(t, locs.Workspace)
	assert.Equal(t, appDir, locs.AppDir)
	assert.Equal(t, "example.com/app", locs.ModulePath)
	assert.Equal(t, []string{testDir, testdata, appDir, appResources}, locs.Roots)
}

func TestLocateFindsWorkspaceAboveProjectRoot(t *testing.T) {
	project := t.TempDir()
	writeFile(t, filepath.Join(project, "go.work"), "go 1.22\n\nuse ./app\n")
	appDir := filepath.Join(project, "app")
	writeFile(t, filepath.Join(appDir, "go.mod"), "module example.com/app\n")
	testDir := filepath.Join(appDir, "internal", "cli")
	writeFile(t, filepath.Join(testDir, "cli_test.go"), "package cli\n")

	l := NewLocator(testDir)
	l.Getenv = envMap(nil)
	locs, err := l.Locate("TestCLI", testDir)
	require.NoError(t, err)
	assert.True(t, locs.Workspace)
	assert.Equal(t, appDir, locs.AppDir)
	assert.Equal(t, "example.com/app", locs.ModulePath)
}

func TestLocateWorkspacePicksDeepestModule(t *testing.T) {
	project := t.TempDir()
	writeFile(t, filepath.Join(project, "go.work"), "go 1.22\n\nuse (\n\t.\n\t./plugins\n)\n")
	writeFile(t, filepath.Join(project, "go.mod"), "module example.com/root\n")
	plugins := filepath.Join(project, "plugins")
	writeFile(t, filepath.Join(plugins, "go.mod"), "module example.com/plugins\n")
	writeFile(t, filepath.Join(plugins, "plugins_test.go"), "package plugins\n")

	l := NewLocator(project)
	l.Getenv = envMap(nil)
	locs, err := l.Locate("TestPlugins", plugins)
	require.NoError(t, err)
	assert.Equal(t, plugins, locs.AppDir)
	assert.Equal(t, "example.com/plugins", locs.ModulePath)
}

func TestLocateWorkspaceFailsWithoutMatchingModule(t *testing.T) {
	project := t.TempDir()
	writeFile(t, filepath.Join(project, "go.work"), "go 1.22\n\nuse ./lib\n")
	mkdir(t, filepath.Join(project, "lib"))
	testDir := filepath.Join(project, "other")
	writeFile(t, filepath.Join(testDir, "other_test.go"), "package other\n")

	l := NewLocator(project)
	l.Getenv = envMap(nil)
	_, err := l.Locate("TestOther", testDir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoWorkspaceModule)
	assert.Contains(t, err.Error(), "TestOther")
}

func TestLocateWorkspaceRequiresTestFiles(t *testing.T) {
	project := t.TempDir()
	writeFile(t, filepath.Join(project, "go.work"), "go 1.22\n\nuse ./lib\n")
	testDir := mkdir(t, filepath.Join(project, "lib", "pkg"))

	l := NewLocator(project)
	l.Getenv = envMap(nil)
	_, err := l.Locate("TestPkg", testDir)
	assert.ErrorIs(t, err, ErrNoWorkspaceModule)
}

func TestLocateIgnoresWorkspaceWhenGoworkOff(t *testing.T) {
	project := t.TempDir()
	writeFile(t, filepath.Join(project, "go.work"), "go 1.22\n\nuse ./lib\n")
	writeFile(t, filepath.Join(project, "go.mod"), "module example.com/app\n")

	l := NewLocator(project)
	l.Getenv = envMap(map[string]string{"GOWORK": "off"})
	locs, err := l.Locate("TestApp", project)
	require.NoError(t, err)
	assert.False(t, locs.Workspace)
	assert.Equal(t, []string{project}, locs.Roots)
}

func TestModuleRoot(t *testing.T) {
	project := t.TempDir()
	writeFile(t, filepath.Join(project, "go.mod"), "module example.com/app\n")
	deep := mkdir(t, filepath.Join(project, "a", "b", "c"))

	root, err := ModuleRoot(deep)
	require.NoError(t, err)
	assert.Equal(t, project, root)

	f, err := ReadModule(root)
	require.NoError(t, err)
	assert.Equal(t, "example.com/app", f.Module.Mod.Path)

	_, err = ReadModule(deep)
	assert.Error(t, err)
}
