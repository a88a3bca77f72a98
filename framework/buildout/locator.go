package buildout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
)

// OutputDirsEnv names the environment variable holding an externally supplied, comma-separated
// list of extra application roots. Build wrappers set it when sources are generated outside the
// module tree.
const OutputDirsEnv = "MAINLAUNCH_OUTPUT_DIRS"

var (
	// ErrNoWorkspaceModule means a go.work file was found but none of its modules contains the
	// test directory.
	ErrNoWorkspaceModule = errors.New("no workspace module contains the test directory")

	// ErrNoModule means no go.mod could be found at or above a directory.
	ErrNoModule = errors.New("no go.mod found")
)

// Layout names the resource directories that sit next to the test package and the application
// module. Either may be left empty to disable it.
type Layout struct {
	TestResourcesDir string
	AppResourcesDir  string
}

// DefaultLayout is the conventional Go layout: test fixtures under testdata, application
// resources under resources in the module root.
func DefaultLayout() Layout {
	return Layout{TestResourcesDir: "testdata", AppResourcesDir: "resources"}
}

// Locations is everything the locator found for one test class.
type Locations struct {
	ProjectRoot string
	TestDir     string
	AppDir      string
	ModulePath  string
	Workspace   bool
	Roots       []string
}

// Locator resolves application roots for test classes.
type Locator struct {
	ProjectRoot string
	Layout      Layout
	Getenv      func(string) string
}

// NewLocator creates a Locator for the given project root. An empty projectRoot means the
// current working directory, which is what go test uses as the package directory.
func NewLocator(projectRoot string) *Locator {
	return &Locator{ProjectRoot: projectRoot, Layout: DefaultLayout(), Getenv: os.Getenv}
}

// Locate resolves the roots for a test class whose sources live in testDir. The class name is
// only used in error messages.
func (l *Locator) Locate(className, testDir string) (Locations, error) {
	projectRoot, err := absOrCwd(l.ProjectRoot)
	if err != nil {
		return Locations{}, err
	}
	testDir, err = absOrCwd(testDir)
	if err != nil {
		return Locations{}, err
	}
	getenv := l.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	if work, workDir, err := findWorkspace(projectRoot, getenv); err != nil {
		return Locations{}, err
	} else if work != nil {
		return l.locateInWorkspace(className, projectRoot, testDir, work, workDir)
	}

	var roots RootSet
	if dirs := getenv(OutputDirsEnv); dirs != "" {
		for _, d := range strings.Split(dirs, ",") {
			roots.Add(strings.TrimSpace(d))
		}
	}

	appDir, err := ModuleRoot(testDir)
	if err != nil {
		appDir = testDir
	}
	if appDir != testDir {
		roots.Add(testDir)
		roots.Add(l.resourceDir(testDir, l.Layout.TestResourcesDir))
	}
	roots.Add(appDir)
	roots.Add(l.resourceDir(appDir, l.Layout.AppResourcesDir))

	return Locations{
		ProjectRoot: projectRoot,
		TestDir:     testDir,
		AppDir:      appDir,
		ModulePath:  modulePath(appDir),
		Roots:       roots.Paths(),
	}, nil
}

func (l *Locator) locateInWorkspace(
	className, projectRoot, testDir string,
	work *modfile.WorkFile,
	workDir string,
) (Locations, error) {
	// The deepest module wins when workspace modules are nested inside each other.
	moduleDir := ""
	for _, use := range work.Use {
		dir := use.Path
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(workDir, dir)
		}
		dir = filepath.Clean(dir)
		if isWithin(testDir, dir) && len(dir) > len(moduleDir) {
			moduleDir = dir
		}
	}
	if moduleDir == "" || !hasTestFiles(testDir) {
		return Locations{}, fmt.Errorf("%w: %s (class %s) is not a test package of any module used by %s",
			ErrNoWorkspaceModule, testDir, className, filepath.Join(workDir, "go.work"))
	}

	var roots RootSet
	roots.Add(testDir)
	roots.Add(l.resourceDir(testDir, l.Layout.TestResourcesDir))
	roots.Add(moduleDir)
	roots.Add(l.resourceDir(moduleDir, l.Layout.AppResourcesDir))

	return Locations{
		ProjectRoot: projectRoot,
		TestDir:     testDir,
		AppDir:      moduleDir,
		ModulePath:  modulePath(moduleDir),
		Workspace:   true,
		Roots:       roots.Paths(),
	}, nil
}

func (l *Locator) resourceDir(base, name string) string {
	if name == "" {
		return ""
	}
	return filepath.Join(base, name)
}

// ModuleRoot returns the nearest directory at or above dir that contains a go.mod file.
func ModuleRoot(dir string) (string, error) {
	dir, err := absOrCwd(dir)
	if err != nil {
		return "", err
	}
	for current := dir; ; {
		if info, err := os.Stat(filepath.Join(current, "go.mod")); err == nil && !info.IsDir() {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("%w at or above %s", ErrNoModule, dir)
		}
		current = parent
	}
}

// ReadModule parses the go.mod file in dir.
func ReadModule(dir string) (*modfile.File, error) {
	path := filepath.Join(dir, "go.mod")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read go.mod: %w", err)
	}
	f, err := modfile.Parse(path, data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse go.mod: %w", err)
	}
	return f, nil
}

func modulePath(dir string) string {
	f, err := ReadModule(dir)
	if err != nil || f.Module == nil {
		return ""
	}
	return f.Module.Mod.Path
}

// findWorkspace returns the parsed go.work governing projectRoot, honouring GOWORK the same way
// the go command does: "off" disables workspaces, an explicit path replaces the search, and
// otherwise the nearest go.work at or above projectRoot is used.
func findWorkspace(projectRoot string, getenv func(string) string) (*modfile.WorkFile, string, error) {
	var path string
	switch gowork := getenv("GOWORK"); gowork {
	case "off":
		return nil, "", nil
	case "":
		if path = nearestWorkFile(projectRoot); path == "" {
			return nil, "", nil
		}
	default:
		path = gowork
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	work, err := modfile.ParseWork(path, data, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return work, filepath.Dir(path), nil
}

func nearestWorkFile(dir string) string {
	for current := dir; ; {
		path := filepath.Join(current, "go.work")
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}

func hasTestFiles(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), "_test.go") {
			return true
		}
	}
	return false
}

func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func absOrCwd(path string) (string, error) {
	if path == "" {
		path = "."
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}
