package solo

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Catalog tracks every known candidate instance by object id. It is the
// content store's view of singleton instances: imports and deletions flow
// through it into the Elector.
type Catalog struct {
	registry *Registry
	elector  *Elector
	logger   *slog.Logger

	mu      sync.RWMutex
	objects map[string]Candidate
}

// NewCatalog creates an empty catalog reporting to elector.
func NewCatalog(registry *Registry, elector *Elector, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		registry: registry,
		elector:  elector,
		logger:   logger,
		objects:  make(map[string]Candidate),
	}
}

// Import records a new or changed candidate and reconciles its main flag.
// Objects that are not singleton instances are ignored.
func (c *Catalog) Import(obj Candidate) error {
	if isNil(obj) {
		return ErrNilCandidate
	}
	d, ok := c.registry.ClassifyObject(obj)
	if !ok {
		return fmt.Errorf("%w: %T", ErrNotSingleton, obj)
	}

	c.mu.Lock()
	c.objects[obj.ObjectID()] = obj
	c.mu.Unlock()

	c.logger.Debug("solo: candidate imported", "key", d.Key, "id", obj.ObjectID(), "main", obj.IsMain())
	return c.elector.Reconcile(obj)
}

// Add records obj without reconciling it. Packaged content is added this
// way, since elections are over once content ships.
func (c *Catalog) Add(obj Candidate) error {
	if isNil(obj) {
		return ErrNilCandidate
	}
	if _, ok := c.registry.ClassifyObject(obj); !ok {
		return fmt.Errorf("%w: %T", ErrNotSingleton, obj)
	}
	c.mu.Lock()
	c.objects[obj.ObjectID()] = obj
	c.mu.Unlock()
	return nil
}

// ImportAll imports a complete content set, continuing past failures.
// Every object is recorded before any is reconciled, so stored mains resolve
// regardless of import order. Entries whose object is not part of the set
// are dropped first.
func (c *Catalog) ImportAll(objs []Candidate) error {
	var errs []error
	added := make([]Candidate, 0, len(objs))
	for _, obj := range objs {
		if err := c.Add(obj); err != nil {
			errs = append(errs, err)
			continue
		}
		added = append(added, obj)
	}
	if _, err := c.elector.DropDangling(); err != nil {
		errs = append(errs, err)
	}
	for _, obj := range added {
		c.logger.Debug("solo: candidate imported", "id", obj.ObjectID(), "main", obj.IsMain())
		if err := c.elector.Reconcile(obj); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Forget removes the candidate with the given id. When it was the main
// instance of its type, the type becomes mainless.
func (c *Catalog) Forget(id string) error {
	c.mu.RLock()
	obj, ok := c.objects[id]
	c.mu.RUnlock()
	if !ok {
		return nil
	}

	// The elector may resolve the current main through this catalog, so the
	// object stays known until it has been forgotten there.
	err := c.elector.Forget(obj)

	c.mu.Lock()
	if c.objects[id] == obj {
		delete(c.objects, id)
	}
	c.mu.Unlock()
	c.logger.Debug("solo: candidate forgotten", "id", id)
	return err
}

// Resolve returns the candidate with the given id.
func (c *Catalog) Resolve(id string) (Object, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	obj, ok := c.objects[id]
	return obj, ok
}

// Candidates returns all known candidates of the type registered under key,
// ordered by id.
func (c *Catalog) Candidates(key string) []Candidate {
	c.mu.RLock()
	var list []Candidate
	for _, obj := range c.objects {
		if d, ok := c.registry.ClassifyObject(obj); ok && d.Key == key {
			list = append(list, obj)
		}
	}
	c.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].ObjectID() < list[j].ObjectID()
	})
	return list
}

// Rebuild re-derives the AuthoringStore from the main flags of the known
// candidates. Use it when the store was lost. Candidates are reconciled in
// id order, so among several flagged instances the lowest id wins.
func (c *Catalog) Rebuild() error {
	var errs []error
	for _, category := range []Category{DataAsset, LiveObject} {
		for _, d := range c.registry.Descriptors(category) {
			for _, obj := range c.Candidates(d.Key) {
				if err := c.elector.Reconcile(obj); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}
	return errors.Join(errs...)
}
