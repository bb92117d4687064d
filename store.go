package solo

import (
	"sort"
	"sync"
)

// AuthoringStore is the environment-wide key/value registry that tracks the
// main instance of every singleton type while authoring.
// Keys are config keys and are compared case-sensitively.
type AuthoringStore interface {
	// TryGet returns the object registered under key.
	TryGet(key string) (Object, bool)

	// Set registers obj under key. An existing entry is only replaced when
	// overwrite is true.
	Set(key string, obj Object, overwrite bool) error

	// Remove deletes the entry for key. Removing a missing key is a no-op.
	Remove(key string) error
}

// IDStore is implemented by stores that persist object ids rather than
// objects. StoredID reports an entry even when its object is not loaded, so
// a persisted main keeps priority over candidates imported before it.
type IDStore interface {
	StoredID(key string) (string, bool)
}

// MemoryStore is an in-process AuthoringStore.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Object
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Object)}
}

// TryGet implements AuthoringStore.
func (s *MemoryStore) TryGet(key string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.entries[key]
	return obj, ok
}

// Set implements AuthoringStore.
func (s *MemoryStore) Set(key string, obj Object, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; ok && !overwrite {
		return nil
	}
	s.entries[key] = obj
	return nil
}

// Remove implements AuthoringStore.
func (s *MemoryStore) Remove(key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Keys returns the registered keys in order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// authoring adapts an AuthoringStore to descriptors so every key is built
// the same way the classifier builds it.
type authoring struct {
	store AuthoringStore
}

func (a authoring) get(d *Descriptor) (Candidate, bool) {
	if a.store == nil {
		return nil, false
	}
	obj, ok := a.store.TryGet(d.Key)
	if !ok || obj == nil {
		return nil, false
	}
	c, ok := obj.(Candidate)
	return c, ok
}

// lookup reports whether key has an entry, the id it records and the loaded
// holder. The holder is nil when the entry does not resolve.
func (a authoring) lookup(d *Descriptor) (Candidate, string, bool) {
	if a.store == nil {
		return nil, "", false
	}
	if ids, ok := a.store.(IDStore); ok {
		id, ok := ids.StoredID(d.Key)
		if !ok {
			return nil, "", false
		}
		c, _ := a.get(d)
		return c, id, true
	}
	c, ok := a.get(d)
	if !ok {
		return nil, "", false
	}
	return c, c.ObjectID(), true
}

func (a authoring) set(d *Descriptor, c Candidate) error {
	return a.store.Set(d.Key, c, true)
}

func (a authoring) remove(d *Descriptor) error {
	return a.store.Remove(d.Key)
}
