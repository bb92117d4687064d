// Package content stores singleton candidates as TOML documents in a
// directory tree, watches it for changes and hosts packaging artifacts.
package content

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/oriumgames/solo"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a document file.
type Format int

// Document formats.
const (
	FormatTOML Format = iota
	FormatYAML
)

// FormatOf returns the format implied by the file extension. Anything that
// is not .yaml or .yml is TOML.
func FormatOf(name string) Format {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// Document is a singleton candidate defined by a content file. Its singleton
// type is known only by key, so the type must be registered with
// Registry.RegisterKey (or declared in the config's [[types]]).
type Document struct {
	solo.Behaviour

	key  string
	name string
	path string

	// on-disk state: whether the id exists only in memory, and the main
	// flag the file holds
	generated bool
	savedMain bool

	// Data is the free-form payload of the document.
	Data map[string]any
}

var (
	_ solo.LiveCandidate = (*Document)(nil)
	_ solo.Keyed         = (*Document)(nil)
)

// NewDocument creates a document of the singleton type registered under key.
// New documents are flagged main, like freshly authored content.
func NewDocument(key, name string) *Document {
	return &Document{key: key, name: name, generated: true, Data: make(map[string]any)}
}

// SingletonKey implements solo.Keyed.
func (d *Document) SingletonKey() string {
	return d.key
}

// Name returns the display name of the document.
func (d *Document) Name() string {
	return d.name
}

// Path returns the content-relative path the document was loaded from.
func (d *Document) Path() string {
	return d.path
}

// GeneratedID reports whether the document's id was generated and has not
// been saved yet.
func (d *Document) GeneratedID() bool {
	return d.generated
}

// Dirty reports whether the document differs from its file in id or main flag.
func (d *Document) Dirty() bool {
	return d.generated || d.IsMain() != d.savedMain
}

func (d *Document) markSaved() {
	d.generated = false
	d.savedMain = d.IsMain()
}

// CloneComponent implements solo.Cloner, copying Data so instances do not
// share the template's payload.
func (d *Document) CloneComponent() solo.LiveCandidate {
	clone := &Document{key: d.key, name: d.name, path: d.path, Data: make(map[string]any, len(d.Data))}
	for k, v := range d.Data {
		clone.Data[k] = v
	}
	return clone
}

// fileTransform is the file shape of a transform. Rotation is w, x, y, z.
type fileTransform struct {
	Position [3]float64 `toml:"position" yaml:"position"`
	Rotation [4]float64 `toml:"rotation" yaml:"rotation"`
	Scale    [3]float64 `toml:"scale" yaml:"scale"`
}

// fileDocument is the file shape of a document.
type fileDocument struct {
	ID        string         `toml:"id" yaml:"id"`
	Type      string         `toml:"type" yaml:"type"`
	Name      string         `toml:"name,omitempty" yaml:"name,omitempty"`
	Main      *bool          `toml:"main" yaml:"main"`
	Transform *fileTransform `toml:"transform,omitempty" yaml:"transform,omitempty"`
	Data      map[string]any `toml:"data,omitempty" yaml:"data,omitempty"`
}

// Decode reads a TOML document. Documents without an id get a fresh one; a
// missing main flag reads as true.
func Decode(r io.Reader) (*Document, error) {
	return DecodeFormat(r, FormatTOML)
}

// DecodeFormat reads a document in the given format.
func DecodeFormat(r io.Reader, format Format) (*Document, error) {
	var f fileDocument
	var err error
	switch format {
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&f)
		if err == io.EOF {
			err = nil
		}
	default:
		_, err = toml.NewDecoder(r).Decode(&f)
	}
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if f.Type == "" {
		return nil, fmt.Errorf("decode document: type is required")
	}
	generated := f.ID == ""
	if generated {
		f.ID = solo.NewID()
	}
	main := true
	if f.Main != nil {
		main = *f.Main
	}

	doc := NewDocument(f.Type, f.Name)
	doc.RestoreAsset(f.ID, main)
	doc.generated = generated
	doc.savedMain = main
	if f.Data != nil {
		doc.Data = f.Data
	}
	if f.Transform != nil {
		solo.NewTemplate(f.Name, f.Transform.toTransform(), doc)
	}
	return doc, nil
}

// Encode writes the document in the format of its path, TOML by default.
func (d *Document) Encode(w io.Writer) error {
	id, main := d.AssetState()
	f := fileDocument{
		ID:   id,
		Type: d.key,
		Name: d.name,
		Main: &main,
		Data: d.Data,
	}
	if n := d.Node(); n != nil {
		f.Transform = fromTransform(n.Transform)
	}
	var err error
	switch FormatOf(d.path) {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err = enc.Encode(f); err == nil {
			err = enc.Close()
		}
	default:
		err = toml.NewEncoder(w).Encode(f)
	}
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return nil
}

// Bytes returns the encoding of the document.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (t fileTransform) toTransform() solo.Transform {
	tr := solo.IdentityTransform()
	tr.Position = mgl64.Vec3(t.Position)
	if t.Rotation != [4]float64{} {
		tr.Rotation = mgl64.Quat{W: t.Rotation[0], V: mgl64.Vec3{t.Rotation[1], t.Rotation[2], t.Rotation[3]}}.Normalize()
	}
	if t.Scale != [3]float64{} {
		tr.Scale = mgl64.Vec3(t.Scale)
	}
	return tr
}

func fromTransform(t solo.Transform) *fileTransform {
	return &fileTransform{
		Position: [3]float64(t.Position),
		Rotation: [4]float64{t.Rotation.W, t.Rotation.V[0], t.Rotation.V[1], t.Rotation.V[2]},
		Scale:    [3]float64(t.Scale),
	}
}
