package solo

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
)

// ShippedSet is the set of content forced into the packaged bundle,
// regardless of reference tracking.
type ShippedSet interface {
	Objects() ([]string, error)
	SetObjects(ids []string) error
}

// ArtifactStore holds generated artifacts inside authored content.
type ArtifactStore interface {
	// UniqueName returns an unused artifact name derived from base.
	UniqueName(base string) (string, error)
	Read(name string) ([]byte, error)
	Write(name string, data []byte) error
	Delete(name string) error
	// List returns all artifact names.
	List() ([]string, error)
}

// MemoryShippedSet is an in-process ShippedSet.
type MemoryShippedSet struct {
	mu  sync.Mutex
	ids []string
}

// NewMemoryShippedSet creates a set holding ids.
func NewMemoryShippedSet(ids ...string) *MemoryShippedSet {
	return &MemoryShippedSet{ids: append([]string(nil), ids...)}
}

// Objects implements ShippedSet.
func (s *MemoryShippedSet) Objects() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...), nil
}

// SetObjects implements ShippedSet.
func (s *MemoryShippedSet) SetObjects(ids []string) error {
	s.mu.Lock()
	s.ids = append([]string(nil), ids...)
	s.mu.Unlock()
	return nil
}

// MemoryArtifacts is an in-process ArtifactStore.
type MemoryArtifacts struct {
	mu    sync.Mutex
	files map[string][]byte
}

// NewMemoryArtifacts creates an empty artifact store.
func NewMemoryArtifacts() *MemoryArtifacts {
	return &MemoryArtifacts{files: make(map[string][]byte)}
}

// UniqueName implements ArtifactStore.
func (a *MemoryArtifacts) UniqueName(base string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return UniqueName(base, func(name string) bool {
		_, ok := a.files[name]
		return ok
	})
}

// Read implements ArtifactStore.
func (a *MemoryArtifacts) Read(name string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.files[name]
	if !ok {
		return nil, fmt.Errorf("read artifact %q: %w", name, os.ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

// Write implements ArtifactStore.
func (a *MemoryArtifacts) Write(name string, data []byte) error {
	a.mu.Lock()
	a.files[name] = append([]byte(nil), data...)
	a.mu.Unlock()
	return nil
}

// Delete implements ArtifactStore.
func (a *MemoryArtifacts) Delete(name string) error {
	a.mu.Lock()
	delete(a.files, name)
	a.mu.Unlock()
	return nil
}

// List implements ArtifactStore.
func (a *MemoryArtifacts) List() ([]string, error) {
	a.mu.Lock()
	names := make([]string, 0, len(a.files))
	for name := range a.files {
		names = append(names, name)
	}
	a.mu.Unlock()
	sort.Strings(names)
	return names, nil
}

// UniqueName derives an unused name from base: "BakedTable.toml", then
// "BakedTable 1.toml", "BakedTable 2.toml" and so on.
func UniqueName(base string, exists func(name string) bool) (string, error) {
	if !exists(base) {
		return base, nil
	}
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 1; i < 10000; i++ {
		name := fmt.Sprintf("%s %d%s", stem, i, ext)
		if !exists(name) {
			return name, nil
		}
	}
	return "", fmt.Errorf("solo: no unique name available for %q", base)
}
