package solo

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
)

// Manager is the central coordinator. It owns the type registry, the
// election engine, the candidate catalog and the runtime resolver of one
// process or editing session. Multiple Managers can coexist in a process.
type Manager struct {
	registry *Registry
	store    AuthoringStore
	elector  *Elector
	catalog  *Catalog
	runtime  *Runtime
	scene    *Scene
	logger   *slog.Logger
	metrics  *Metrics
}

// Registry returns the type registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Store returns the AuthoringStore.
func (m *Manager) Store() AuthoringStore {
	return m.store
}

// Elector returns the election engine.
func (m *Manager) Elector() *Elector {
	return m.elector
}

// Catalog returns the candidate catalog.
func (m *Manager) Catalog() *Catalog {
	return m.catalog
}

// Runtime returns the runtime resolver.
func (m *Manager) Runtime() *Runtime {
	return m.runtime
}

// Scene returns the scene live instances are attached to.
func (m *Manager) Scene() *Scene {
	return m.scene
}

// Load hands a loaded singleton candidate to the manager. While authoring
// it is imported and reconciled; once packaged it is recorded and, for
// data assets, given the chance to register itself as main.
func (m *Manager) Load(obj Candidate) error {
	if m.runtime.Phase() == Authoring {
		return m.catalog.Import(obj)
	}
	if err := m.catalog.Add(obj); err != nil {
		return err
	}
	return m.runtime.Activate(obj)
}

// LoadAll hands a complete content set to the manager. While authoring the
// set is imported with Catalog.ImportAll; once packaged every object is
// loaded on its own.
func (m *Manager) LoadAll(objs []Candidate) error {
	if m.runtime.Phase() == Authoring {
		return m.catalog.ImportAll(objs)
	}
	var errs []error
	for _, obj := range objs {
		if err := m.Load(obj); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// QueryMain returns the main instance of t, or nil.
func (m *Manager) QueryMain(t reflect.Type) (Candidate, error) {
	return m.elector.QueryMain(t)
}

// RequestElection makes c the main instance of t.
func (m *Manager) RequestElection(c Candidate, t reflect.Type) error {
	return m.elector.RequestElection(c, t)
}

// Packager creates the packaging hooks for this manager's store.
func (m *Manager) Packager(artifacts ArtifactStore, shipped ShippedSet, opts ...PackagerOption) *Packager {
	return NewPackager(m.registry, m.store, artifacts, shipped, m.logger, m.metrics, opts...)
}

// Main returns the main instance of the type registered under key.
func (m *Manager) Main(key string) (Candidate, error) {
	d, ok := m.registry.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotSingleton, key)
	}
	c, _ := m.elector.Main(d)
	return c, nil
}

// Shutdown latches the runtime's quitting state.
func (m *Manager) Shutdown() {
	m.runtime.Shutdown()
}
