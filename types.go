package solo

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Descriptor describes a registered singleton type.
// Descriptors are created at registration time and never mutated afterwards.
type Descriptor struct {
	// Category is the singleton flavour of the type.
	Category Category

	// Type is the element type (never a pointer). It is nil for types that
	// are only known by key, such as file-defined content.
	Type reflect.Type

	// Key is the stable config key the type is stored under.
	Key string

	// IncludeUnreferenced makes the packager force-ship the main data asset
	// even when no other shipped content references it.
	IncludeUnreferenced bool

	// Persistent exempts the live instance from scene teardown.
	Persistent bool

	// sceneHook runs once per scene activation after the instance went live.
	sceneHook func(obj any, scene string)
}

// Name returns a human readable name of the described type.
func (d *Descriptor) Name() string {
	if d.Type != nil {
		return d.Type.Name()
	}
	return d.Key
}

// Option configures a Descriptor at registration.
type Option func(*Descriptor)

// WithKey overrides the derived config key. Use it to keep existing
// elections when a singleton type is renamed.
func WithKey(key string) Option {
	return func(d *Descriptor) {
		d.Key = key
	}
}

// WithIncludeUnreferenced controls whether the main data asset is shipped even
// when nothing references it. Data assets default to true.
func WithIncludeUnreferenced(include bool) Option {
	return func(d *Descriptor) {
		d.IncludeUnreferenced = include
	}
}

// WithPersistent keeps the live instance alive across scene transitions.
func WithPersistent(persistent bool) Option {
	return func(d *Descriptor) {
		d.Persistent = persistent
	}
}

// OnSceneActivated registers a hook that is invoked with the live instance
// each time a scene is activated after the instance went live. It implies
// WithPersistent(true), since a non-persistent instance never outlives the
// scene it was created in.
func OnSceneActivated[T any](fn func(obj *T, scene string)) Option {
	return func(d *Descriptor) {
		d.Persistent = true
		d.sceneHook = func(obj any, scene string) {
			if t, ok := obj.(*T); ok {
				fn(t, scene)
			}
		}
	}
}

// Keyed is implemented by objects whose singleton type is only known at
// runtime. ClassifyObject prefers the reported key over the Go type.
type Keyed interface {
	SingletonKey() string
}

// Registry classifies types into singleton descriptors.
// Reads go through a sync.Map so the resolver hot path never takes a lock.
type Registry struct {
	// byType maps reflect.Type to *Descriptor
	byType sync.Map

	// byKey holds every descriptor by config key
	byKey map[string]*Descriptor
	mu    sync.RWMutex
}

// NewRegistry creates an empty type registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]*Descriptor)}
}

var (
	candidateType     = typeOf[Candidate]()
	liveCandidateType = typeOf[LiveCandidate]()
)

// RegisterAsset registers T as a data asset singleton type.
// *T must embed Asset.
func RegisterAsset[T any](r *Registry, opts ...Option) (*Descriptor, error) {
	t := typeOf[T]()
	if !reflect.PointerTo(t).Implements(candidateType) {
		return nil, fmt.Errorf("%w: %s does not embed solo.Asset", ErrNotSingleton, t)
	}
	d := &Descriptor{
		Category:            DataAsset,
		Type:                t,
		IncludeUnreferenced: true,
	}
	return r.register(d, opts)
}

// RegisterLive registers T as a live object singleton type.
// *T must embed Behaviour.
func RegisterLive[T any](r *Registry, opts ...Option) (*Descriptor, error) {
	t := typeOf[T]()
	if !reflect.PointerTo(t).Implements(liveCandidateType) {
		return nil, fmt.Errorf("%w: %s does not embed solo.Behaviour", ErrNotSingleton, t)
	}
	d := &Descriptor{
		Category: LiveObject,
		Type:     t,
	}
	return r.register(d, opts)
}

// RegisterKey registers a singleton type that has no Go type of its own.
// Objects of such a type must implement Keyed.
func (r *Registry) RegisterKey(key string, category Category, opts ...Option) (*Descriptor, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty key", ErrNotSingleton)
	}
	d := &Descriptor{
		Category:            category,
		Key:                 key,
		IncludeUnreferenced: category == DataAsset,
	}
	return r.register(d, opts)
}

func (r *Registry) register(d *Descriptor, opts []Option) (*Descriptor, error) {
	if d.Category < 0 || d.Category >= categoryCount {
		return nil, fmt.Errorf("%w: invalid category %d", ErrNotSingleton, d.Category)
	}
	if d.Key == "" && d.Type != nil {
		d.Key = ConfigKeyOf(d.Type)
	}
	for _, opt := range opts {
		opt(d)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byKey[d.Key]; ok {
		if existing.Category == d.Category && existing.Type == d.Type {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: key %q", ErrAlreadyRegistered, d.Key)
	}
	if d.Type != nil {
		if _, loaded := r.byType.LoadOrStore(d.Type, d); loaded {
			return nil, fmt.Errorf("%w: type %s", ErrAlreadyRegistered, d.Type)
		}
	}
	r.byKey[d.Key] = d
	return d, nil
}

// Classify returns the descriptor of t. Pointer types are dereferenced.
func (r *Registry) Classify(t reflect.Type) (*Descriptor, bool) {
	if t == nil {
		return nil, false
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if d, ok := r.byType.Load(t); ok {
		return d.(*Descriptor), true
	}
	return nil, false
}

// ClassifyObject returns the descriptor of obj's singleton type.
func (r *Registry) ClassifyObject(obj any) (*Descriptor, bool) {
	if k, ok := obj.(Keyed); ok {
		return r.Lookup(k.SingletonKey())
	}
	return r.Classify(reflect.TypeOf(obj))
}

// Lookup returns the descriptor registered under key. Keys are case-sensitive.
func (r *Registry) Lookup(key string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byKey[key]
	return d, ok
}

// Descriptors returns all descriptors of the given category ordered by key.
func (r *Registry) Descriptors(category Category) []*Descriptor {
	r.mu.RLock()
	list := make([]*Descriptor, 0, len(r.byKey))
	for _, d := range r.byKey {
		if d.Category == category {
			list = append(list, d)
		}
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].Key < list[j].Key
	})
	return list
}

// ConfigKeyOf returns the fully qualified name of t, the key its main instance
// is stored under. Renaming the type changes the key.
func ConfigKeyOf(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// typeOf returns the reflect.Type of T.
func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
