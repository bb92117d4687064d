package solo

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
)

// State is the lifecycle state of a live singleton.
type State int

const (
	// Absent means no instance is tracked.
	Absent State = iota
	// Resolving means a goroutine is looking up or creating the instance.
	Resolving
	// Live means an instance is tracked and returned to callers.
	Live
	// Quitting means the runtime is shutting down and returns nothing.
	Quitting
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Absent:
		return "Absent"
	case Resolving:
		return "Resolving"
	case Live:
		return "Live"
	case Quitting:
		return "Quitting"
	default:
		return "Unknown"
	}
}

// liveBox holds a tracked instance.
type liveBox struct {
	obj LiveCandidate

	// activation is the scene activation count when the instance went live
	activation uint64
}

// liveSlot tracks the instance of one live singleton type.
// The mutex is per type, so resolving one type never blocks another.
type liveSlot struct {
	desc      *Descriptor
	mu        sync.Mutex
	current   atomic.Pointer[liveBox]
	resolving atomic.Bool
}

// Runtime resolves the instance of singleton types for consumers.
type Runtime struct {
	registry *Registry
	source   Source
	scene    *Scene
	logger   *slog.Logger
	metrics  *Metrics

	// slots maps config key to *liveSlot
	slots sync.Map

	quitting atomic.Bool
}

// NewRuntime creates a runtime resolving through source and instantiating
// live objects into scene.
func NewRuntime(registry *Registry, source Source, scene *Scene, logger *slog.Logger, metrics *Metrics) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{
		registry: registry,
		source:   source,
		scene:    scene,
		logger:   logger,
		metrics:  metrics,
	}
	scene.OnDestroy(rt.destroyed)
	scene.OnActivate(rt.activated)
	return rt
}

// Phase returns the phase of the configured source.
func (rt *Runtime) Phase() Phase {
	return rt.source.Phase()
}

// Scene returns the scene live instances are attached to.
func (rt *Runtime) Scene() *Scene {
	return rt.scene
}

// Instance returns the live instance of T, creating it on first use.
//
// The instance is copied from the main template when one is elected (or
// baked), otherwise a default T is created on a new node. Concurrent callers
// block until resolution finishes and all observe the same instance.
// After Shutdown, Instance returns nil.
func Instance[T any](rt *Runtime) (*T, error) {
	d, err := rt.descriptor(typeOf[T](), LiveObject)
	if err != nil {
		return nil, err
	}
	obj, err := rt.live(d)
	if err != nil || obj == nil {
		return nil, err
	}
	t, ok := any(obj).(*T)
	if !ok {
		return nil, fmt.Errorf("%w: live instance of %s is %T", ErrWrongCategory, d.Key, obj)
	}
	return t, nil
}

// AssetOf returns the main instance of data asset type T, or nil when no
// instance was ever elected (or, once packaged, loaded as main).
func AssetOf[T any](rt *Runtime) (*T, error) {
	d, err := rt.descriptor(typeOf[T](), DataAsset)
	if err != nil {
		return nil, err
	}
	c, ok := rt.Asset(d)
	if !ok {
		return nil, nil
	}
	t, ok := any(c).(*T)
	if !ok {
		return nil, fmt.Errorf("%w: main of %s is %T", ErrWrongCategory, d.Key, c)
	}
	return t, nil
}

// Asset returns the main instance of a data asset type.
func (rt *Runtime) Asset(d *Descriptor) (Candidate, bool) {
	c, ok := rt.source.Asset(d)
	if ok {
		rt.metrics.resolution(DataAsset, "found")
	} else {
		rt.metrics.resolution(DataAsset, "absent")
	}
	return c, ok
}

// Live returns the live instance of d, creating it when absent.
func (rt *Runtime) Live(d *Descriptor) (LiveCandidate, error) {
	if d.Category != LiveObject {
		return nil, fmt.Errorf("%w: %s is a %s singleton", ErrWrongCategory, d.Key, d.Category)
	}
	return rt.live(d)
}

// State returns the lifecycle state of live singleton d.
func (rt *Runtime) State(d *Descriptor) State {
	if rt.quitting.Load() {
		return Quitting
	}
	slot := rt.slot(d)
	if slot.current.Load() != nil {
		return Live
	}
	if slot.resolving.Load() {
		return Resolving
	}
	return Absent
}

// Awake registers a live instance placed by scene content. If another
// instance of the type is already tracked, obj's node is destroyed and
// Awake returns false.
func (rt *Runtime) Awake(obj LiveCandidate) (bool, error) {
	d, ok := rt.registry.ClassifyObject(obj)
	if !ok || d.Category != LiveObject {
		return false, fmt.Errorf("%w: %T", ErrNotSingleton, obj)
	}
	slot := rt.slot(d)

	slot.mu.Lock()
	cur := slot.current.Load()
	if cur != nil && cur.obj != obj {
		slot.mu.Unlock()
		rt.logger.Warn("solo: destroying duplicate live singleton",
			"key", d.Key,
			"id", obj.ObjectID(),
			"live", cur.obj.ObjectID())
		if n := obj.Node(); n != nil && n.Scene() != nil {
			n.Scene().Destroy(n)
		}
		return false, nil
	}
	if cur == nil {
		rt.track(slot, obj)
	}
	slot.mu.Unlock()
	return true, nil
}

// Activate is called by content loaders for every loaded singleton
// candidate. Once packaged, a data asset flagged main registers itself.
func (rt *Runtime) Activate(c Candidate) error {
	d, ok := rt.registry.ClassifyObject(c)
	if !ok {
		return fmt.Errorf("%w: %T", ErrNotSingleton, c)
	}
	rt.source.Activate(d, c)
	return nil
}

// Shutdown latches the quitting state: until Reset, no instance is returned
// or created, even if one is still in memory.
func (rt *Runtime) Shutdown() {
	if rt.quitting.CompareAndSwap(false, true) {
		rt.logger.Info("solo: runtime quitting")
	}
}

// Quitting reports whether Shutdown was called in the current lifecycle.
func (rt *Runtime) Quitting() bool {
	return rt.quitting.Load()
}

// Reset starts a new lifecycle: tracked instances and self-registered assets
// are forgotten and the quitting latch is cleared. Nodes are not destroyed.
func (rt *Runtime) Reset() {
	rt.slots.Range(func(k, _ any) bool {
		rt.slots.Delete(k)
		return true
	})
	rt.source.Reset()
	rt.quitting.Store(false)
}

func (rt *Runtime) descriptor(t reflect.Type, category Category) (*Descriptor, error) {
	d, ok := rt.registry.Classify(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotSingleton, t)
	}
	if d.Category != category {
		return nil, fmt.Errorf("%w: %s is a %s singleton", ErrWrongCategory, d.Key, d.Category)
	}
	return d, nil
}

func (rt *Runtime) slot(d *Descriptor) *liveSlot {
	if s, ok := rt.slots.Load(d.Key); ok {
		return s.(*liveSlot)
	}
	s, _ := rt.slots.LoadOrStore(d.Key, &liveSlot{desc: d})
	return s.(*liveSlot)
}

func (rt *Runtime) live(d *Descriptor) (LiveCandidate, error) {
	if rt.quitting.Load() {
		rt.metrics.resolution(LiveObject, "quitting")
		return nil, nil
	}
	slot := rt.slot(d)
	if b := slot.current.Load(); b != nil {
		rt.metrics.resolution(LiveObject, "live")
		return b.obj, nil
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	if b := slot.current.Load(); b != nil {
		rt.metrics.resolution(LiveObject, "live")
		return b.obj, nil
	}
	if rt.quitting.Load() {
		return nil, nil
	}

	slot.resolving.Store(true)
	defer slot.resolving.Store(false)

	obj, err := rt.create(d)
	if err != nil {
		return nil, err
	}
	rt.track(slot, obj)
	rt.metrics.resolution(LiveObject, "created")
	return obj, nil
}

func (rt *Runtime) create(d *Descriptor) (LiveCandidate, error) {
	if tmpl, ok := rt.source.Template(d); ok {
		obj, err := Instantiate(rt.scene, tmpl)
		if err != nil {
			return nil, fmt.Errorf("instantiate %s: %w", d.Key, err)
		}
		rt.logger.Debug("solo: live singleton instantiated from template",
			"key", d.Key,
			"template", tmpl.ObjectID(),
			"id", obj.ObjectID(),
			"phase", rt.source.Phase())
		rt.metrics.instantiation(d.Key, "template")
		return obj, nil
	}

	if d.Type == nil {
		return nil, fmt.Errorf("%w: %s has no template and no Go type to create", ErrNotSingleton, d.Key)
	}
	obj, ok := reflect.New(d.Type).Interface().(LiveCandidate)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not embed Behaviour", ErrWrongCategory, d.Key)
	}
	n := rt.scene.Spawn(d.Type.Name()+" - Singleton", IdentityTransform())
	rt.scene.Attach(n, obj)
	rt.logger.Debug("solo: live singleton created without template", "key", d.Key, "id", obj.ObjectID())
	rt.metrics.instantiation(d.Key, "default")
	return obj, nil
}

// track must be called with slot.mu held.
func (rt *Runtime) track(slot *liveSlot, obj LiveCandidate) {
	if slot.desc.Persistent {
		if n := obj.Node(); n != nil {
			n.SetPersistent(true)
		}
	}
	slot.current.Store(&liveBox{obj: obj, activation: rt.scene.Activations()})
}

// destroyed is the scene destroy hook.
func (rt *Runtime) destroyed(_ *Node, component any) {
	lc, ok := component.(LiveCandidate)
	if !ok {
		return
	}
	d, ok := rt.registry.ClassifyObject(lc)
	if !ok || d.Category != LiveObject {
		return
	}
	s, ok := rt.slots.Load(d.Key)
	if !ok {
		return
	}
	slot := s.(*liveSlot)
	cur := slot.current.Load()
	if cur == nil || cur.obj != lc {
		return
	}
	if slot.current.CompareAndSwap(cur, nil) {
		rt.logger.Debug("solo: live singleton destroyed", "key", d.Key, "id", lc.ObjectID())
	}
}

// activated is the scene activation hook.
func (rt *Runtime) activated(scene string) {
	activation := rt.scene.Activations()
	rt.slots.Range(func(_, v any) bool {
		slot := v.(*liveSlot)
		if slot.desc.sceneHook == nil {
			return true
		}
		cur := slot.current.Load()
		if cur == nil || cur.activation >= activation {
			return true
		}
		slot.desc.sceneHook(cur.obj, scene)
		return true
	})
}
