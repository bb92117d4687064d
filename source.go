package solo

import (
	"log/slog"
	"sync"
)

// ObjectResolver resolves object ids to loaded objects.
type ObjectResolver interface {
	Resolve(id string) (Object, bool)
}

// Objects is a map based ObjectResolver.
type Objects map[string]Object

// Resolve implements ObjectResolver.
func (o Objects) Resolve(id string) (Object, bool) {
	obj, ok := o[id]
	return obj, ok
}

// Source is the backing store strategy of the Runtime. One Source is chosen
// at startup and kept for the lifetime of the process.
type Source interface {
	// Phase reports which execution phase the source serves.
	Phase() Phase

	// Template returns the main template of a live object type.
	Template(d *Descriptor) (LiveCandidate, bool)

	// Asset returns the main instance of a data asset type.
	Asset(d *Descriptor) (Candidate, bool)

	// Activate is called when content containing c is loaded.
	Activate(d *Descriptor, c Candidate)

	// Reset drops state collected by Activate.
	Reset()
}

// AuthoringSource reads mains from the AuthoringStore.
type AuthoringSource struct {
	store authoring
}

// NewAuthoringSource creates a source backed by store.
func NewAuthoringSource(store AuthoringStore) *AuthoringSource {
	return &AuthoringSource{store: authoring{store: store}}
}

// Phase implements Source.
func (s *AuthoringSource) Phase() Phase { return Authoring }

// Template implements Source.
func (s *AuthoringSource) Template(d *Descriptor) (LiveCandidate, bool) {
	c, ok := s.store.get(d)
	if !ok {
		return nil, false
	}
	lc, ok := c.(LiveCandidate)
	return lc, ok
}

// Asset implements Source.
func (s *AuthoringSource) Asset(d *Descriptor) (Candidate, bool) {
	return s.store.get(d)
}

// Activate implements Source. While authoring the store is authoritative,
// so loaded content never registers itself.
func (s *AuthoringSource) Activate(*Descriptor, Candidate) {}

// Reset implements Source.
func (s *AuthoringSource) Reset() {}

// PackagedSource reads templates from a BakedTable. Data assets register
// themselves as they are loaded: the first loaded instance whose serialized
// main flag is set becomes the main.
type PackagedSource struct {
	table   *BakedTable
	objects ObjectResolver
	logger  *slog.Logger

	// assets maps config key to Candidate
	assets sync.Map
}

// NewPackagedSource creates a source reading table, resolving template ids
// through objects.
func NewPackagedSource(table *BakedTable, objects ObjectResolver, logger *slog.Logger) *PackagedSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PackagedSource{table: table, objects: objects, logger: logger}
}

// Phase implements Source.
func (s *PackagedSource) Phase() Phase { return Packaged }

// Template implements Source. The table is immutable, so no lock is taken.
func (s *PackagedSource) Template(d *Descriptor) (LiveCandidate, bool) {
	ref, ok := s.table.Lookup(d.Key)
	if !ok || s.objects == nil {
		return nil, false
	}
	obj, ok := s.objects.Resolve(ref.ID)
	if !ok {
		s.logger.Warn("solo: baked template not shipped", "key", d.Key, "id", ref.ID)
		return nil, false
	}
	lc, ok := obj.(LiveCandidate)
	return lc, ok
}

// Asset implements Source.
func (s *PackagedSource) Asset(d *Descriptor) (Candidate, bool) {
	v, ok := s.assets.Load(d.Key)
	if !ok {
		return nil, false
	}
	return v.(Candidate), true
}

// Activate implements Source.
func (s *PackagedSource) Activate(d *Descriptor, c Candidate) {
	if d.Category != DataAsset || !c.IsMain() {
		return
	}
	if _, loaded := s.assets.LoadOrStore(d.Key, c); !loaded {
		s.logger.Debug("solo: asset registered as main", "key", d.Key, "id", c.ObjectID())
	}
}

// Reset implements Source.
func (s *PackagedSource) Reset() {
	s.assets.Range(func(k, _ any) bool {
		s.assets.Delete(k)
		return true
	})
}
