// Package resources manages the auxiliary services a test launch depends on: stand-in databases,
// mock HTTP services and the like. Resources are looked up by name in the registry that belongs
// to the application under test, started before its entry point runs, and closed afterwards.
package resources

import (
	"context"
	"sort"
	"strings"

	"github.com/mainlaunch/mainlaunch/framework"
)

// Resource is the narrow port through which the launcher drives an auxiliary resource. A fresh
// Resource is created from its Factory for every launch.
type Resource interface {
	// Init receives the resource arguments and information about the test that uses it.
	Init(InitContext) error

	// Start brings the resource up and returns configuration properties to be merged into the
	// application's configuration, such as connection URLs.
	Start(ctx context.Context) (map[string]string, error)

	// Close releases the resource. It is called exactly once for every resource that was
	// created, whether or not Start succeeded.
	Close() error
}

// Handle is implemented by resources that can expose a client or other value to the test. The
// value is injected into fields of the test's target struct tagged `resource:"<name>"`.
type Handle interface {
	Handle() any
}

// InitContext is passed to Resource.Init.
type InitContext struct {
	Name      string
	TestClass string
	Profile   string
	Args      map[string]string
	Logger    framework.Logger
}

// Arg returns the named argument, or defaultValue if it is unset or empty.
func (c InitContext) Arg(name, defaultValue string) string {
	if v := c.Args[name]; v != "" {
		return v
	}
	return defaultValue
}

// Spec declares that a test class or profile needs the named resource.
type Spec struct {
	Name     string            `yaml:"name" json:"name"`
	Args     map[string]string `yaml:"args,omitempty" json:"args,omitempty"`
	Parallel bool              `yaml:"parallel,omitempty" json:"parallel,omitempty"`
}

func (s Spec) String() string {
	if len(s.Args) == 0 {
		return s.Name
	}
	keys := make([]string, 0, len(s.Args))
	for k := range s.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+s.Args[k])
	}
	return s.Name + "(" + strings.Join(parts, ",") + ")"
}

// Profile is a named bundle of configuration overrides and resources selectable per test class.
type Profile interface {
	Name() string
	ConfigOverrides() map[string]string
	TestResources() []Spec
	DisableGlobalTestResources() bool
}

// StaticProfile is a Profile defined by plain values.
type StaticProfile struct {
	ProfileName          string            `yaml:"name"`
	Overrides            map[string]string `yaml:"config,omitempty"`
	Resources            []Spec            `yaml:"resources,omitempty"`
	DisableGlobalDefault bool              `yaml:"disable_global_resources,omitempty"`
}

func (p StaticProfile) Name() string { return p.ProfileName }

func (p StaticProfile) ConfigOverrides() map[string]string {
	return copyProps(p.Overrides)
}

func (p StaticProfile) TestResources() []Spec {
	return append([]Spec(nil), p.Resources...)
}

func (p StaticProfile) DisableGlobalTestResources() bool { return p.DisableGlobalDefault }

// ProfileName returns p.Name(), or "" for a nil profile.
func ProfileName(p Profile) string {
	if p == nil {
		return ""
	}
	return p.Name()
}

func copyProps(m map[string]string) map[string]string {
	ret := make(map[string]string, len(m))
	for k, v := range m {
		ret[k] = v
	}
	return ret
}
