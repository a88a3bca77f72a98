package resources

import (
	"fmt"
	"sync"
)

// Factory creates a new, uninitialized instance of a resource.
type Factory func() Resource

type registration struct {
	factory Factory
	global  bool
	args    map[string]string
}

// Registry maps resource names to factories. Each Application owns one; resources are resolved by
// name against the registry of the application being launched rather than by direct reference
// from the test.
type Registry struct {
	entries map[string]registration
	order   []string
	lock    sync.RWMutex
}

// RegisterOption customizes a registration.
type RegisterOption func(*registration)

// Global marks a resource as applying to every test class, unless the active profile disables
// global resources. args are the arguments the implicit Spec is created with.
func Global(args map[string]string) RegisterOption {
	return func(r *registration) {
		r.global = true
		r.args = copyProps(args)
	}
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// Register adds a factory under name. Registering the same name twice replaces the factory but
// keeps its original position for global ordering.
func (r *Registry) Register(name string, factory Factory, options ...RegisterOption) {
	reg := registration{factory: factory}
	for _, o := range options {
		o(&reg)
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, exists := r.entries[name]; !exists {
		r.order = append(r.order, name)
	}
	r.entries[name] = reg
}

// Lookup returns the factory for name.
func (r *Registry) Lookup(name string) (Factory, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	reg, ok := r.entries[name]
	return reg.factory, ok
}

// Names lists the registered resource names in registration order.
func (r *Registry) Names() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return append([]string(nil), r.order...)
}

// Globals returns a Spec for every resource registered with Global, in registration order.
func (r *Registry) Globals() []Spec {
	r.lock.RLock()
	defer r.lock.RUnlock()
	var ret []Spec
	for _, name := range r.order {
		if reg := r.entries[name]; reg.global {
			ret = append(ret, Spec{Name: name, Args: copyProps(reg.args)})
		}
	}
	return ret
}

// Resolve returns the complete list of specs for a class: global resources (unless the profile
// disables them), then the class's own, then the profile's.
func (r *Registry) Resolve(classSpecs []Spec, profile Profile) ([]Spec, error) {
	var specs []Spec
	if profile == nil || !profile.DisableGlobalTestResources() {
		specs = append(specs, r.Globals()...)
	}
	specs = append(specs, classSpecs...)
	if profile != nil {
		specs = append(specs, profile.TestResources()...)
	}
	for _, s := range specs {
		if _, ok := r.Lookup(s.Name); !ok {
			return nil, fmt.Errorf("unknown test resource %q", s.Name)
		}
	}
	return specs, nil
}
