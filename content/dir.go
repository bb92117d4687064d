package content

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/oriumgames/solo"
)

// Dir is a content directory. Documents live anywhere below the root and
// are selected by doublestar patterns; artifacts are files in the root.
type Dir struct {
	root     string
	patterns []string
	logger   *slog.Logger

	mu    sync.Mutex
	paths map[string]string // object id -> relative path
	ids   map[string]string // relative path -> object id
}

var _ solo.ArtifactStore = (*Dir)(nil)

// NewDir creates a content directory rooted at root.
func NewDir(root string, patterns []string, logger *slog.Logger) (*Dir, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(patterns) == 0 {
		patterns = []string{"**/*.asset.toml", "**/*.asset.yaml"}
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid asset pattern %q", p)
		}
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create content dir: %w", err)
	}
	return &Dir{
		root:     root,
		patterns: patterns,
		logger:   logger,
		paths:    make(map[string]string),
		ids:      make(map[string]string),
	}, nil
}

// Root returns the root directory.
func (d *Dir) Root() string {
	return d.root
}

// Match reports whether the relative path selects a document.
func (d *Dir) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range d.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Scan loads every document matching the patterns, ordered by path.
func (d *Dir) Scan() ([]*Document, error) {
	fsys := os.DirFS(d.root)
	seen := make(map[string]bool)
	var rels []string
	for _, p := range d.patterns {
		matches, err := doublestar.Glob(fsys, p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", p, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				rels = append(rels, m)
			}
		}
	}
	sort.Strings(rels)

	var docs []*Document
	var errs []error
	for _, rel := range rels {
		doc, err := d.Load(rel)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, errors.Join(errs...)
}

// Load reads the document at the relative path.
func (d *Dir) Load(rel string) (*Document, error) {
	rel = filepath.ToSlash(rel)
	f, err := os.Open(d.abs(rel))
	if err != nil {
		return nil, fmt.Errorf("open document %q: %w", rel, err)
	}
	defer f.Close()

	doc, err := DecodeFormat(f, FormatOf(rel))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rel, err)
	}
	doc.path = rel

	d.mu.Lock()
	if old, ok := d.ids[rel]; ok && old != doc.ObjectID() {
		delete(d.paths, old)
	}
	d.paths[doc.ObjectID()] = rel
	d.ids[rel] = doc.ObjectID()
	d.mu.Unlock()
	return doc, nil
}

// Save writes doc to its path. Documents without a path are written to
// "<name>.asset.toml" in the root.
func (d *Dir) Save(doc *Document) error {
	if doc.path == "" {
		name := doc.name
		if name == "" {
			name = doc.ObjectID()
		}
		doc.path = name + ".asset.toml"
	}
	data, err := doc.Bytes()
	if err != nil {
		return err
	}
	if err := writeFile(d.abs(doc.path), data); err != nil {
		return fmt.Errorf("save document %q: %w", doc.path, err)
	}
	doc.markSaved()

	d.mu.Lock()
	d.paths[doc.ObjectID()] = doc.path
	d.ids[doc.path] = doc.ObjectID()
	d.mu.Unlock()
	return nil
}

// IDAt returns the id of the document last loaded from rel.
func (d *Dir) IDAt(rel string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.ids[filepath.ToSlash(rel)]
	return id, ok
}

// PathOf returns the relative path of the document with the given id.
func (d *Dir) PathOf(id string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.paths[id]
	return p, ok
}

// Forget drops path bookkeeping for a deleted document.
func (d *Dir) Forget(rel string) (string, bool) {
	rel = filepath.ToSlash(rel)
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.ids[rel]
	if ok {
		delete(d.ids, rel)
		delete(d.paths, id)
	}
	return id, ok
}

// Sync persists main flag changes of documents and reports whether the file
// was written. Documents whose file already holds the flag are left alone.
func (d *Dir) Sync(ch solo.Change) bool {
	doc, ok := ch.Candidate.(*Document)
	if !ok || doc.path == "" || !doc.Dirty() {
		return false
	}
	if err := d.Save(doc); err != nil {
		d.logger.Error("solo: failed to persist main flag", "path", doc.path, "error", err)
		return false
	}
	d.logger.Debug("solo: main flag persisted", "path", doc.path, "main", ch.Main)
	return true
}

// UniqueName implements solo.ArtifactStore.
func (d *Dir) UniqueName(base string) (string, error) {
	return solo.UniqueName(base, func(name string) bool {
		_, err := os.Stat(d.abs(name))
		return err == nil
	})
}

// Read implements solo.ArtifactStore.
func (d *Dir) Read(name string) ([]byte, error) {
	return os.ReadFile(d.abs(name))
}

// Write implements solo.ArtifactStore.
func (d *Dir) Write(name string, data []byte) error {
	return writeFile(d.abs(name), data)
}

// Delete implements solo.ArtifactStore. Deleting a missing artifact is a no-op.
func (d *Dir) Delete(name string) error {
	if err := os.Remove(d.abs(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List implements solo.ArtifactStore. Artifacts are the regular files in
// the root that do not select a document.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || d.Match(e.Name()) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (d *Dir) abs(rel string) string {
	return filepath.Join(d.root, filepath.FromSlash(rel))
}

// writeFile writes data through a temporary file so readers never observe a
// partial document.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".solo-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Manifest is a ShippedSet persisted as a TOML file.
type Manifest struct {
	path string
	mu   sync.Mutex

	// created is set when this manifest wrote the file into existence.
	created bool
}

var _ solo.ShippedSet = (*Manifest)(nil)

type manifestFile struct {
	Objects []string `toml:"objects"`
}

// NewManifest creates a shipped set stored at path.
func NewManifest(path string) *Manifest {
	return &Manifest{path: path}
}

// Objects implements solo.ShippedSet. A missing file is an empty set.
func (m *Manifest) Objects() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var f manifestFile
	if _, err := toml.DecodeFile(m.path, &f); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return f.Objects, nil
}

// SetObjects implements solo.ShippedSet. Emptying a manifest this value
// created removes the file again.
func (m *Manifest) SetObjects(ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(ids) == 0 && m.created {
		if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove manifest: %w", err)
		}
		m.created = false
		return nil
	}
	_, statErr := os.Stat(m.path)
	data, err := toml.Marshal(manifestFile{Objects: ids})
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := writeFile(m.path, data); err != nil {
		return err
	}
	if errors.Is(statErr, fs.ErrNotExist) {
		m.created = true
	}
	return nil
}
