package resources

import (
	"reflect"
)

// ReloadState is what a reload policy compares: the class and profile a context was prepared for,
// and the resources they resolve to.
type ReloadState struct {
	TestClass string
	Profile   string
	Resources []Spec
}

// ReloadPolicy decides whether moving from one test class to another requires restarting the
// prepared application and its resources. It is only consulted when the class changes; a profile
// change always causes a reload.
type ReloadPolicy func(previous, next ReloadState) bool

// ResourcesChanged reloads when the two states resolve to different resource lists.
func ResourcesChanged(previous, next ReloadState) bool {
	return !sameSpecs(previous.Resources, next.Resources)
}

func AlwaysReload(ReloadState, ReloadState) bool { return true }

func NeverReload(ReloadState, ReloadState) bool { return false }

func sameSpecs(a, b []Spec) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Parallel != b[i].Parallel {
			return false
		}
		if len(a[i].Args) == 0 && len(b[i].Args) == 0 {
			continue
		}
		if !reflect.DeepEqual(a[i].Args, b[i].Args) {
			return false
		}
	}
	return true
}
