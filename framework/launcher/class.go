package launcher

import (
	"testing"

	"github.com/mainlaunch/mainlaunch/framework/resources"
)

// Class identifies the test class a launch belongs to: a named group of tests whose sources
// live in Dir. Classes with the same Name share a prepared application.
type Class struct {
	Name string

	// Dir is the directory holding the test sources. go test runs each package's tests with
	// the package directory as the working directory, so "." is usually right.
	Dir string

	// Parent is set for a class nested inside another one. A nested class always gets a freshly
	// prepared application when it is entered.
	Parent *Class

	// Resources are the auxiliary resources this class needs, in addition to global ones and
	// those of the active profile.
	Resources []resources.Spec

	// Integration marks a class whose tests run the application as a separate binary. The
	// in-process launcher refuses to prepare such a class.
	Integration bool
}

// ClassOf returns a Class named after the running test, in the current directory.
func ClassOf(t testing.TB, resourceSpecs ...resources.Spec) Class {
	return Class{Name: t.Name(), Dir: ".", Resources: resourceSpecs}
}

// Nested reports whether the class has a parent.
func (c Class) Nested() bool { return c.Parent != nil }

// Child returns a class nested inside c. It inherits the directory and resources.
func (c Class) Child(name string) Class {
	parent := c
	return Class{
		Name:        c.Name + "/" + name,
		Dir:         c.Dir,
		Parent:      &parent,
		Resources:   append([]resources.Spec(nil), c.Resources...),
		Integration: c.Integration,
	}
}

func (c Class) String() string { return c.Name }
