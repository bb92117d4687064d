package solo

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// Transform is the placement of a node in its scene.
type Transform struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
	Scale    mgl64.Vec3
}

// IdentityTransform returns a transform at the origin with unit scale.
func IdentityTransform() Transform {
	return Transform{
		Rotation: mgl64.QuatIdent(),
		Scale:    mgl64.Vec3{1, 1, 1},
	}
}

// Matrix returns the local-to-scene matrix of the transform.
func (t Transform) Matrix() mgl64.Mat4 {
	return mgl64.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z()).
		Mul4(t.Rotation.Mat4()).
		Mul4(mgl64.Scale3D(t.Scale.X(), t.Scale.Y(), t.Scale.Z()))
}

// Node is an object in a scene owning a set of components.
// Template nodes are detached: they belong to no scene.
type Node struct {
	id        uuid.UUID
	name      string
	Transform Transform

	scene      *Scene
	components []any
	mu         sync.RWMutex

	persistent atomic.Bool
	destroyed  atomic.Bool
}

// ID returns the node identifier.
func (n *Node) ID() uuid.UUID {
	return n.id
}

// Name returns the node name.
func (n *Node) Name() string {
	return n.name
}

// Scene returns the owning scene, or nil for detached nodes.
func (n *Node) Scene() *Scene {
	return n.scene
}

// Components returns a copy of the attached components.
func (n *Node) Components() []any {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]any, len(n.components))
	copy(out, n.components)
	return out
}

// Persistent reports whether the node survives scene activation.
func (n *Node) Persistent() bool {
	return n.persistent.Load()
}

// SetPersistent exempts the node from teardown on scene activation.
func (n *Node) SetPersistent(persistent bool) {
	n.persistent.Store(persistent)
}

// Destroyed reports whether the node was removed from its scene.
func (n *Node) Destroyed() bool {
	return n.destroyed.Load()
}

// Scene is a minimal scene graph: a flat set of nodes with destroy and
// activation notifications.
type Scene struct {
	mu          sync.Mutex
	name        string
	nodes       map[uuid.UUID]*Node
	activations uint64

	hooksMu       sync.RWMutex
	destroyHooks  []func(n *Node, component any)
	activateHooks []func(scene string)
}

// NewScene creates an empty active scene.
func NewScene(name string) *Scene {
	return &Scene{
		name:  name,
		nodes: make(map[uuid.UUID]*Node),
	}
}

// Name returns the name of the active scene.
func (s *Scene) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Activations returns how many scene activations happened so far.
func (s *Scene) Activations() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activations
}

// NewNode creates a detached node, used for templates.
func NewNode(name string, t Transform) *Node {
	return &Node{id: uuid.New(), name: name, Transform: t}
}

// Spawn creates a node in the scene.
func (s *Scene) Spawn(name string, t Transform) *Node {
	n := NewNode(name, t)
	n.scene = s

	s.mu.Lock()
	s.nodes[n.id] = n
	s.mu.Unlock()
	return n
}

// Attach adds a component to n. Live candidates are bound to the node.
func (s *Scene) Attach(n *Node, component any) {
	if lc, ok := component.(LiveCandidate); ok {
		lc.bind(n)
	}
	n.mu.Lock()
	n.components = append(n.components, component)
	n.mu.Unlock()
}

// Destroy removes n from the scene and notifies destroy hooks once per
// attached component. Destroying a node twice is a no-op.
func (s *Scene) Destroy(n *Node) {
	if n == nil || !n.destroyed.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	delete(s.nodes, n.id)
	s.mu.Unlock()

	s.hooksMu.RLock()
	hooks := s.destroyHooks
	s.hooksMu.RUnlock()

	for _, c := range n.Components() {
		for _, hook := range hooks {
			hook(n, c)
		}
	}
}

// Nodes returns the live nodes ordered by name.
func (s *Scene) Nodes() []*Node {
	s.mu.Lock()
	list := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		list = append(list, n)
	}
	s.mu.Unlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].name < list[j].name
	})
	return list
}

// Find returns the first live node with the given name.
func (s *Scene) Find(name string) (*Node, bool) {
	for _, n := range s.Nodes() {
		if n.name == name {
			return n, true
		}
	}
	return nil, false
}

// OnDestroy registers a hook called for every component of a destroyed node.
func (s *Scene) OnDestroy(fn func(n *Node, component any)) {
	s.hooksMu.Lock()
	s.destroyHooks = append(s.destroyHooks, fn)
	s.hooksMu.Unlock()
}

// OnActivate registers a hook called after every scene activation.
func (s *Scene) OnActivate(fn func(scene string)) {
	s.hooksMu.Lock()
	s.activateHooks = append(s.activateHooks, fn)
	s.hooksMu.Unlock()
}

// Activate transitions to the named scene: every non-persistent node is
// destroyed, init populates the new scene, then activation hooks run.
func (s *Scene) Activate(name string, init func(*Scene)) {
	s.mu.Lock()
	s.name = name
	s.activations++
	var teardown []*Node
	for _, n := range s.nodes {
		if !n.Persistent() {
			teardown = append(teardown, n)
		}
	}
	s.mu.Unlock()

	for _, n := range teardown {
		s.Destroy(n)
	}
	if init != nil {
		init(s)
	}

	s.hooksMu.RLock()
	hooks := s.activateHooks
	s.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(name)
	}
}
