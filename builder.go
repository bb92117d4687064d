package solo

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Builder configures a Manager before initialization.
// Use NewBuilder() to create a builder and chain configuration methods.
type Builder struct {
	registry      *Registry
	registrations []func(*Registry) error
	store         AuthoringStore
	phase         Phase
	table         *BakedTable
	objects       ObjectResolver
	scene         *Scene
	logger        *slog.Logger
	registerer    prometheus.Registerer
	namespace     string
}

// NewBuilder creates a new builder for the authoring phase with an
// in-process store.
func NewBuilder() *Builder {
	return &Builder{}
}

// AssetType returns a registration of T as a data asset singleton type.
func AssetType[T any](opts ...Option) func(*Registry) error {
	return func(r *Registry) error {
		_, err := RegisterAsset[T](r, opts...)
		return err
	}
}

// LiveType returns a registration of T as a live object singleton type.
func LiveType[T any](opts ...Option) func(*Registry) error {
	return func(r *Registry) error {
		_, err := RegisterLive[T](r, opts...)
		return err
	}
}

// Type adds a type registration, usually built with AssetType or LiveType.
//
//	mngr, err := solo.NewBuilder().
//	    Type(solo.AssetType[AudioSettings]()).
//	    Type(solo.LiveType[AudioManager](solo.WithPersistent(true))).
//	    Init()
func (b *Builder) Type(register func(*Registry) error) *Builder {
	b.registrations = append(b.registrations, register)
	return b
}

// Registry uses an existing type registry instead of a new one.
func (b *Builder) Registry(r *Registry) *Builder {
	b.registry = r
	return b
}

// Store sets the AuthoringStore. Defaults to a MemoryStore.
func (b *Builder) Store(s AuthoringStore) *Builder {
	b.store = s
	return b
}

// Phase selects the execution phase.
func (b *Builder) Phase(p Phase) *Builder {
	b.phase = p
	return b
}

// Table sets the baked table and the resolver for shipped templates used in
// the packaged phase. A nil resolver defaults to the manager's Catalog.
func (b *Builder) Table(t *BakedTable, objects ObjectResolver) *Builder {
	b.table = t
	b.objects = objects
	return b
}

// Scene sets the scene live instances are attached to.
func (b *Builder) Scene(s *Scene) *Builder {
	b.scene = s
	return b
}

// Logger sets the structured logger.
func (b *Builder) Logger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// Metrics registers Prometheus collectors under namespace with reg.
func (b *Builder) Metrics(reg prometheus.Registerer, namespace string) *Builder {
	b.registerer = reg
	b.namespace = namespace
	return b
}

// Config applies the phase and metrics namespace of cfg.
func (b *Builder) Config(cfg Config) *Builder {
	if p, ok := ParsePhase(cfg.Phase); ok {
		b.phase = p
	}
	if cfg.MetricsNamespace != "" {
		b.namespace = cfg.MetricsNamespace
	}
	return b
}

// Init builds the Manager. The runtime's backing source is chosen here, once,
// from the configured phase.
func (b *Builder) Init() (*Manager, error) {
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := b.registry
	if registry == nil {
		registry = NewRegistry()
	}

	var errs []error
	for _, register := range b.registrations {
		if err := register(registry); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("register singleton types: %w", err)
	}

	var metrics *Metrics
	if b.registerer != nil {
		m, err := NewMetrics(b.namespace, b.registerer)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		metrics = m
	}

	store := b.store
	if store == nil {
		store = NewMemoryStore()
	}
	scene := b.scene
	if scene == nil {
		scene = NewScene("main")
	}

	m := &Manager{
		registry: registry,
		store:    store,
		scene:    scene,
		logger:   logger,
		metrics:  metrics,
	}
	m.elector = NewElector(registry, store, logger, metrics)
	m.catalog = NewCatalog(registry, m.elector, logger)

	var source Source
	switch b.phase {
	case Authoring:
		source = NewAuthoringSource(store)
	case Packaged:
		if b.table == nil {
			return nil, errors.New("solo: packaged phase requires a baked table")
		}
		objects := b.objects
		if objects == nil {
			objects = m.catalog
		}
		source = NewPackagedSource(b.table, objects, logger)
	default:
		return nil, fmt.Errorf("solo: unknown phase %d", b.phase)
	}
	m.runtime = NewRuntime(registry, source, scene, logger, metrics)

	logger.Info("solo: initialized",
		"phase", b.phase,
		"assets", len(registry.Descriptors(DataAsset)),
		"live", len(registry.Descriptors(LiveObject)))
	return m, nil
}
