package solo

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// Change describes a main flag flip performed by the Elector.
type Change struct {
	Descriptor *Descriptor
	Candidate  Candidate
	Main       bool
}

// Elector is the only component that mutates main flags and the
// AuthoringStore. Each election runs under one mutex, so readers never
// observe two mains for a type, nor a type that loses its main while
// another candidate is being promoted.
type Elector struct {
	registry *Registry
	store    authoring
	logger   *slog.Logger
	metrics  *Metrics

	mu sync.Mutex

	listeners   []func(Change)
	listenersMu sync.RWMutex
}

// NewElector creates an elector backed by store.
func NewElector(registry *Registry, store AuthoringStore, logger *slog.Logger, metrics *Metrics) *Elector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Elector{
		registry: registry,
		store:    authoring{store: store},
		logger:   logger,
		metrics:  metrics,
	}
}

// Subscribe registers fn to be called after every main flag change.
// Listeners run outside the election lock and may query the elector.
func (e *Elector) Subscribe(fn func(Change)) {
	e.listenersMu.Lock()
	e.listeners = append(e.listeners, fn)
	e.listenersMu.Unlock()
}

// Elect makes c the main instance of t, or demotes it when makeMain is false.
//
//   - Promoting a candidate that is not the current main flags it, demotes
//     the previous main (if any) and registers c under the type's key.
//   - Demoting the current main clears its flag and leaves the type mainless.
//   - Demoting any other candidate only clears its own flag.
func (e *Elector) Elect(c Candidate, t reflect.Type, makeMain bool) error {
	d, err := e.descriptorFor(c, t)
	if err != nil {
		return err
	}
	return e.elect(d, c, makeMain)
}

// ElectObject is Elect with the type taken from the candidate itself.
func (e *Elector) ElectObject(c Candidate, makeMain bool) error {
	if isNil(c) {
		return ErrNilCandidate
	}
	d, ok := e.registry.ClassifyObject(c)
	if !ok {
		return fmt.Errorf("%w: %T", ErrNotSingleton, c)
	}
	return e.elect(d, c, makeMain)
}

// RequestElection promotes c to main of t. It is the entry point for
// authoring tools.
func (e *Elector) RequestElection(c Candidate, t reflect.Type) error {
	return e.Elect(c, t, true)
}

// QueryMain returns the current main instance of t.
func (e *Elector) QueryMain(t reflect.Type) (Candidate, error) {
	d, ok := e.registry.Classify(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotSingleton, t)
	}
	c, _ := e.Main(d)
	return c, nil
}

// Main returns the current main instance of d.
func (e *Elector) Main(d *Descriptor) (Candidate, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.get(d)
}

// Reconcile applies the election rules to a newly imported or changed
// candidate. A candidate flagged main becomes main only when its type has
// none; otherwise the existing main keeps priority and c is demoted. A
// stored entry whose object is not loaded yet still counts as a main.
func (e *Elector) Reconcile(c Candidate) error {
	if isNil(c) {
		return ErrNilCandidate
	}
	d, ok := e.registry.ClassifyObject(c)
	if !ok {
		return fmt.Errorf("%w: %T", ErrNotSingleton, c)
	}
	e.mu.Lock()
	holder, id, exists := e.store.lookup(d)
	var changes []Change
	switch {
	case exists && id == c.ObjectID():
		// A reloaded copy of the current main: follow its serialized flag.
		if c.IsMain() {
			if holder != c {
				if err := e.store.set(d, c); err != nil {
					e.mu.Unlock()
					return fmt.Errorf("register main %q: %w", d.Key, err)
				}
			}
		} else {
			if err := e.store.remove(d); err != nil {
				e.mu.Unlock()
				return fmt.Errorf("remove main %q: %w", d.Key, err)
			}
			e.logger.Info("solo: main cleared by content change", "key", d.Key, "id", c.ObjectID())
			e.metrics.election(d.Key, "demoted")
		}
	case !c.IsMain():
	case !exists:
		if err := e.store.set(d, c); err != nil {
			e.mu.Unlock()
			return fmt.Errorf("register main %q: %w", d.Key, err)
		}
		changes = append(changes, Change{Descriptor: d, Candidate: c, Main: true})
		e.logger.Info("solo: main elected on import", "key", d.Key, "id", c.ObjectID())
		e.metrics.election(d.Key, "promoted")
	default:
		c.setMain(false)
		changes = append(changes, Change{Descriptor: d, Candidate: c, Main: false})
		e.logger.Warn("solo: demoted imported candidate, main already set",
			"key", d.Key,
			"id", c.ObjectID(),
			"main", id)
		e.metrics.reconcileDemotion()
	}
	e.mu.Unlock()

	e.notify(changes)
	return nil
}

// Forget handles the deletion of c from the content store. If c was the
// main instance its type becomes mainless.
func (e *Elector) Forget(c Candidate) error {
	if isNil(c) {
		return ErrNilCandidate
	}
	d, ok := e.registry.ClassifyObject(c)
	if !ok {
		return fmt.Errorf("%w: %T", ErrNotSingleton, c)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	_, id, exists := e.store.lookup(d)
	if !exists || id != c.ObjectID() {
		return nil
	}
	if err := e.store.remove(d); err != nil {
		return fmt.Errorf("remove main %q: %w", d.Key, err)
	}
	e.logger.Info("solo: main deleted, type is mainless", "key", d.Key, "id", c.ObjectID())
	return nil
}

// DropDangling removes store entries whose object is not loaded and returns
// their keys. Call it once the whole content set is known, so a main deleted
// while nothing was watching does not keep its type locked.
func (e *Elector) DropDangling() ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var dropped []string
	var errs []error
	for _, category := range []Category{DataAsset, LiveObject} {
		for _, d := range e.registry.Descriptors(category) {
			holder, id, exists := e.store.lookup(d)
			if !exists || holder != nil {
				continue
			}
			if err := e.store.remove(d); err != nil {
				errs = append(errs, fmt.Errorf("remove main %q: %w", d.Key, err))
				continue
			}
			e.logger.Warn("solo: dropped main entry of missing object", "key", d.Key, "id", id)
			dropped = append(dropped, d.Key)
		}
	}
	return dropped, errors.Join(errs...)
}

func (e *Elector) elect(d *Descriptor, c Candidate, makeMain bool) error {
	e.mu.Lock()
	changes, err := e.electLocked(d, c, makeMain)
	e.mu.Unlock()

	if err != nil {
		return err
	}
	e.notify(changes)
	return nil
}

func (e *Elector) electLocked(d *Descriptor, c Candidate, makeMain bool) ([]Change, error) {
	holder, id, exists := e.store.lookup(d)
	hasHolder := holder != nil
	isHolder := exists && id == c.ObjectID()

	if makeMain {
		if isHolder {
			if !c.IsMain() {
				c.setMain(true)
				return []Change{{Descriptor: d, Candidate: c, Main: true}}, nil
			}
			e.metrics.election(d.Key, "noop")
			return nil, nil
		}

		wasMain := c.IsMain()
		c.setMain(true)
		if err := e.store.set(d, c); err != nil {
			c.setMain(wasMain)
			return nil, fmt.Errorf("register main %q: %w", d.Key, err)
		}

		changes := []Change{{Descriptor: d, Candidate: c, Main: true}}
		if hasHolder {
			holder.setMain(false)
			changes = append(changes, Change{Descriptor: d, Candidate: holder, Main: false})
			e.logger.Info("solo: main changed",
				"key", d.Key,
				"id", c.ObjectID(),
				"previous", holder.ObjectID())
		} else {
			e.logger.Info("solo: main elected", "key", d.Key, "id", c.ObjectID())
		}
		e.metrics.election(d.Key, "promoted")
		return changes, nil
	}

	if isHolder {
		if err := e.store.remove(d); err != nil {
			return nil, fmt.Errorf("remove main %q: %w", d.Key, err)
		}
		c.setMain(false)
		e.logger.Info("solo: main demoted, type is mainless", "key", d.Key, "id", c.ObjectID())
		e.metrics.election(d.Key, "demoted")
		return []Change{{Descriptor: d, Candidate: c, Main: false}}, nil
	}

	e.metrics.election(d.Key, "noop")
	if c.IsMain() {
		// A stray flag on a non-holder; clearing it does not touch the store.
		c.setMain(false)
		return []Change{{Descriptor: d, Candidate: c, Main: false}}, nil
	}
	return nil, nil
}

func (e *Elector) descriptorFor(c Candidate, t reflect.Type) (*Descriptor, error) {
	if isNil(c) {
		return nil, ErrNilCandidate
	}
	d, ok := e.registry.Classify(t)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNotSingleton, t)
	}
	if own, ok := e.registry.ClassifyObject(c); ok && own != d {
		return nil, fmt.Errorf("%w: candidate %T is not a %s", ErrNotSingleton, c, d.Key)
	}
	return d, nil
}

func (e *Elector) notify(changes []Change) {
	if len(changes) == 0 {
		return
	}
	e.listenersMu.RLock()
	listeners := e.listeners
	e.listenersMu.RUnlock()

	for _, ch := range changes {
		for _, fn := range listeners {
			fn(ch)
		}
	}
}

// isNil reports whether v is nil or a typed nil pointer.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
