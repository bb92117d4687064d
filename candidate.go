package solo

import "github.com/google/uuid"

// Object is anything with a stable identity in the content store.
type Object interface {
	ObjectID() string
}

// Candidate is an instance of a singleton type that can be elected main.
//
// The main flag can only be flipped by the election engine: the interface
// carries an unexported method, so it is satisfied exclusively by types
// embedding Asset or Behaviour.
type Candidate interface {
	Object
	IsMain() bool
	setMain(main bool)
}

// LiveCandidate is a Candidate attached to a scene node.
type LiveCandidate interface {
	Candidate
	Node() *Node
	bind(n *Node)
}

// NewID returns a fresh object identifier.
func NewID() string {
	return uuid.NewString()
}

// Asset is embedded by data asset singleton types.
//
//	type AudioSettings struct {
//	    solo.Asset
//	    Volume float64
//	}
type Asset struct {
	id string

	// notMain is inverted so the zero value reads as main, matching freshly
	// authored content: the first instance of a type claims main on import.
	notMain bool
}

// ObjectID returns the identifier of the instance, assigning one on first use.
func (a *Asset) ObjectID() string {
	if a.id == "" {
		a.id = NewID()
	}
	return a.id
}

// IsMain reports the serialized main flag of the instance.
func (a *Asset) IsMain() bool {
	return !a.notMain
}

func (a *Asset) setMain(main bool) {
	a.notMain = !main
}

// AssetState returns the persisted identity and main flag.
func (a *Asset) AssetState() (id string, main bool) {
	return a.ObjectID(), a.IsMain()
}

// RestoreAsset loads identity and main flag from persisted content.
// It is meant for content loaders; elections go through Elector.
func (a *Asset) RestoreAsset(id string, main bool) {
	a.id = id
	a.notMain = !main
}

// Behaviour is embedded by live object singleton types.
//
//	type AudioManager struct {
//	    solo.Behaviour
//	    Channels int
//	}
type Behaviour struct {
	Asset
	node *Node
}

// Node returns the scene node owning the instance, or nil for templates.
func (b *Behaviour) Node() *Node {
	return b.node
}

func (b *Behaviour) bind(n *Node) {
	b.node = n
}
