// Package scenarios runs launch scenarios described in YAML files. A scenario file names the
// application to launch, the profiles it can be launched with, and classes of launches with the
// exit code and output each launch is expected to produce.
package scenarios

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mainlaunch/mainlaunch/framework/launcher"
	"github.com/mainlaunch/mainlaunch/framework/resources"
)

// File is one scenario file.
type File struct {
	// Suite names the top-level scope. It defaults to the file name without its extension.
	Suite string `yaml:"suite"`

	// App is the name of the entry point to launch in-process.
	App string `yaml:"app"`

	// Binary is the import path of the main package run by integration classes.
	Binary string `yaml:"binary,omitempty"`

	Profiles []resources.StaticProfile `yaml:"profiles,omitempty"`
	Classes  []ClassSpec               `yaml:"classes"`

	// Dir is the directory the file was loaded from. Class directories are relative to it.
	Dir string `yaml:"-"`
}

// ClassSpec describes a group of launches that share a prepared application.
type ClassSpec struct {
	Name        string           `yaml:"name"`
	Dir         string           `yaml:"dir,omitempty"`
	Integration bool             `yaml:"integration,omitempty"`
	Resources   []resources.Spec `yaml:"resources,omitempty"`
	Launches    []LaunchSpec     `yaml:"launches,omitempty"`
	Nested      []ClassSpec      `yaml:"nested,omitempty"`
}

// LaunchSpec is one launch and what is expected of it.
type LaunchSpec struct {
	Name     string   `yaml:"name"`
	Profile  string   `yaml:"profile,omitempty"`
	Args     []string `yaml:"args,omitempty"`
	ExitCode int      `yaml:"exit_code"`

	// Output and ErrorOutput are substrings that must each appear in the captured standard
	// output or standard error.
	Output      []string `yaml:"output,omitempty"`
	ErrorOutput []string `yaml:"error_output,omitempty"`

	// Skip, if set, is the reason the launch is not run.
	Skip string `yaml:"skip,omitempty"`
}

// Load reads and validates one scenario file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid scenario file %s: %w", path, err)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	f.Dir = abs
	if f.Suite == "" {
		base := filepath.Base(path)
		f.Suite = base[:len(base)-len(filepath.Ext(base))]
	}
	return f, nil
}

// LoadDir loads every .yaml and .yml file in dir, in file name order.
func LoadDir(dir string) ([]*File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if ext := filepath.Ext(e.Name()); !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	files := make([]*File, 0, len(names))
	for _, name := range names {
		f, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// LoadPath loads a single file, or every scenario file in a directory.
func LoadPath(path string) ([]*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	return []*File{f}, nil
}

// Parse decodes and validates a scenario document. Dir is left empty.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks that the file is complete and that every launch refers to a defined profile.
func (f *File) Validate() error {
	if f.App == "" {
		return errors.New("app is required")
	}
	profiles := make(map[string]bool)
	for _, p := range f.Profiles {
		if p.ProfileName == "" {
			return errors.New("every profile needs a name")
		}
		if profiles[p.ProfileName] {
			return fmt.Errorf("profile %q is defined more than once", p.ProfileName)
		}
		profiles[p.ProfileName] = true
	}
	if len(f.Classes) == 0 {
		return errors.New("no classes defined")
	}
	return f.validateClasses(f.Classes, profiles)
}

func (f *File) validateClasses(classes []ClassSpec, profiles map[string]bool) error {
	seen := make(map[string]bool)
	for _, c := range classes {
		if c.Name == "" {
			return errors.New("every class needs a name")
		}
		if seen[c.Name] {
			return fmt.Errorf("class %q is defined more than once", c.Name)
		}
		seen[c.Name] = true
		if c.Integration && f.Binary == "" {
			return fmt.Errorf("class %q is an integration class but no binary is configured", c.Name)
		}
		for _, l := range c.Launches {
			if l.Name == "" {
				return fmt.Errorf("every launch in class %q needs a name", c.Name)
			}
			if l.Profile != "" && !profiles[l.Profile] {
				return fmt.Errorf("launch %q in class %q refers to unknown profile %q", l.Name, c.Name, l.Profile)
			}
		}
		if err := f.validateClasses(c.Nested, profiles); err != nil {
			return err
		}
	}
	return nil
}

// Profile returns the named profile, or nil for "".
func (f *File) Profile(name string) resources.Profile {
	for _, p := range f.Profiles {
		if p.ProfileName == name && name != "" {
			return p
		}
	}
	return nil
}

// LauncherClass converts a class spec to the launcher's Class. parent is nil for top-level
// classes; nested classes without a directory of their own use the parent's.
func (f *File) LauncherClass(c ClassSpec, parent *launcher.Class) launcher.Class {
	dir := c.Dir
	switch {
	case dir == "" && parent != nil:
		dir = parent.Dir
	case dir == "":
		dir = f.Dir
	case !filepath.IsAbs(dir):
		dir = filepath.Join(f.Dir, dir)
	}
	class := launcher.Class{
		Name:        f.Suite + "/" + c.Name,
		Dir:         dir,
		Resources:   append([]resources.Spec(nil), c.Resources...),
		Integration: c.Integration,
	}
	if parent != nil {
		class = parent.Child(c.Name)
		class.Dir = dir
		class.Resources = append(class.Resources, c.Resources...)
		class.Integration = c.Integration
	}
	return class
}
