package resources

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mainlaunch/mainlaunch/framework"
)

// InjectTag is the struct tag that marks fields receiving resource handles.
const InjectTag = "resource"

// ManagerConfig describes the resources for one launch.
type ManagerConfig struct {
	TestClass string
	Profile   Profile
	Specs     []Spec
	Logger    framework.Logger
}

type managedResource struct {
	spec     Spec
	resource Resource
	props    map[string]string
	started  bool
	closed   bool
}

// Manager starts the resources of one launch and guarantees they are all closed afterwards.
// It is not safe for concurrent use apart from the parallel start it performs itself.
type Manager struct {
	config  ManagerConfig
	entries []*managedResource
	logger  framework.Logger
	lock    sync.Mutex
}

// NewManager instantiates every resource in config.Specs from the registry. Nothing is
// initialized or started yet.
func NewManager(registry *Registry, config ManagerConfig) (*Manager, error) {
	m := &Manager{config: config, logger: framework.OrNullLogger(config.Logger)}
	for _, spec := range config.Specs {
		factory, ok := registry.Lookup(spec.Name)
		if !ok {
			return nil, fmt.Errorf("unknown test resource %q", spec.Name)
		}
		m.entries = append(m.entries, &managedResource{spec: spec, resource: factory()})
	}
	return m, nil
}

// Specs returns the resource specs this manager was created with.
func (m *Manager) Specs() []Spec {
	return append([]Spec(nil), m.config.Specs...)
}

// Init initializes every resource in declaration order, stopping at the first failure.
func (m *Manager) Init() error {
	for _, e := range m.entries {
		ic := InitContext{
			Name:      e.spec.Name,
			TestClass: m.config.TestClass,
			Profile:   ProfileName(m.config.Profile),
			Args:      copyProps(e.spec.Args),
			Logger:    framework.LoggerWithPrefix(m.logger, "["+e.spec.Name+"] "),
		}
		if err := e.resource.Init(ic); err != nil {
			return fmt.Errorf("failed to initialize test resource %q: %w", e.spec.Name, err)
		}
	}
	return nil
}

// Start starts the sequential resources in declaration order and then all parallel resources
// concurrently. The returned properties are merged in declaration order, so a later resource
// overrides an earlier one that produced the same key.
func (m *Manager) Start(ctx context.Context) (map[string]string, error) {
	var parallel []*managedResource
	for _, e := range m.entries {
		if e.spec.Parallel {
			parallel = append(parallel, e)
			continue
		}
		if err := m.startOne(ctx, e); err != nil {
			return nil, err
		}
	}

	if len(parallel) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		for _, e := range parallel {
			e := e
			g.Go(func() error { return m.startOne(gctx, e) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	props := make(map[string]string)
	for _, e := range m.entries {
		for k, v := range e.props {
			props[k] = v
		}
	}
	return props, nil
}

func (m *Manager) startOne(ctx context.Context, e *managedResource) error {
	m.logger.Printf("Starting test resource %s", e.spec)
	props, err := e.resource.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start test resource %q: %w", e.spec.Name, err)
	}
	m.lock.Lock()
	e.props = copyProps(props)
	e.started = true
	m.lock.Unlock()
	return nil
}

// Inject assigns resource handles to the fields of target, which must be a pointer to a struct.
// A field tagged `resource:"redis"` receives the handle of the started resource named redis.
// Tags naming resources that are not part of this launch are left alone.
func (m *Manager) Inject(target any) error {
	if target == nil {
		return nil
	}
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("injection target must be a pointer to a struct, got %T", target)
	}
	s := v.Elem()
	for i := 0; i < s.NumField(); i++ {
		field := s.Type().Field(i)
		name, ok := field.Tag.Lookup(InjectTag)
		if !ok {
			continue
		}
		e := m.find(name)
		if e == nil || !e.started {
			continue
		}
		h, ok := e.resource.(Handle)
		if !ok {
			return fmt.Errorf("test resource %q does not provide a handle for field %s", name, field.Name)
		}
		handle := reflect.ValueOf(h.Handle())
		fv := s.Field(i)
		if !fv.CanSet() {
			return fmt.Errorf("field %s tagged for test resource %q is not exported", field.Name, name)
		}
		if !handle.IsValid() || !handle.Type().AssignableTo(field.Type) {
			return fmt.Errorf("cannot inject %s handle of type %T into field %s of type %s",
				name, h.Handle(), field.Name, field.Type)
		}
		fv.Set(handle)
	}
	return nil
}

func (m *Manager) find(name string) *managedResource {
	for _, e := range m.entries {
		if e.spec.Name == name {
			return e
		}
	}
	return nil
}

// Close closes every resource exactly once, in reverse declaration order. Failures, including
// panics, are logged and do not prevent the remaining resources from being closed.
func (m *Manager) Close() {
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		m.lock.Lock()
		alreadyClosed := e.closed
		e.closed = true
		m.lock.Unlock()
		if alreadyClosed {
			continue
		}
		if err := closeResource(e.resource); err != nil {
			m.logger.Printf("Unable to shutdown resource %s: %s", e.spec.Name, err)
		}
	}
}

func closeResource(r Resource) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during close: %v", p)
		}
	}()
	return r.Close()
}
