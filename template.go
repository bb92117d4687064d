package solo

import (
	"fmt"
	"reflect"
)

// Cloner is implemented by live components that need more than a shallow
// copy when instantiated from a template.
type Cloner interface {
	CloneComponent() LiveCandidate
}

// NewTemplate binds prototype to a detached node, turning it into a template
// that live instances are copied from.
func NewTemplate(name string, t Transform, prototype LiveCandidate) LiveCandidate {
	prototype.bind(NewNode(name, t))
	return prototype
}

// Instantiate copies template into a fresh node of scene.
// The copy gets its own identity; everything else is taken from the template.
func Instantiate(scene *Scene, template LiveCandidate) (LiveCandidate, error) {
	clone, err := cloneComponent(template)
	if err != nil {
		return nil, err
	}

	name, transform := "", IdentityTransform()
	if tn := template.Node(); tn != nil {
		name, transform = tn.Name(), tn.Transform
	}
	if named, ok := template.(interface{ Name() string }); ok && name == "" {
		name = named.Name()
	}
	if name == "" {
		name = reflect.TypeOf(template).Elem().Name()
	}

	restoreIdentity(clone, NewID(), template.IsMain())
	n := scene.Spawn(name, transform)
	scene.Attach(n, clone)
	return clone, nil
}

func cloneComponent(template LiveCandidate) (LiveCandidate, error) {
	if c, ok := template.(Cloner); ok {
		clone := c.CloneComponent()
		if isNil(clone) {
			return nil, fmt.Errorf("solo: %T cloned to nil", template)
		}
		return clone, nil
	}
	src := reflect.ValueOf(template)
	if src.Kind() != reflect.Pointer || src.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("solo: cannot clone template %T", template)
	}
	dst := reflect.New(src.Elem().Type())
	dst.Elem().Set(src.Elem())
	clone, ok := dst.Interface().(LiveCandidate)
	if !ok {
		return nil, fmt.Errorf("solo: clone of %T is not a live candidate", template)
	}
	clone.bind(nil)
	return clone, nil
}

// restoreIdentity gives a copied component its own object id.
func restoreIdentity(c Candidate, id string, main bool) {
	if r, ok := c.(interface{ RestoreAsset(string, bool) }); ok {
		r.RestoreAsset(id, main)
	}
}
