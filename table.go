package solo

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/BurntSushi/toml"
)

// TableVersion is the baked table schema written by this build.
// Readers accept any version up to and including TableVersion; fields added
// by later minor changes must be optional so older readers can ignore them.
const TableVersion = 1

// TemplateRef references a live object template in shipped content.
type TemplateRef struct {
	ID   string `toml:"id"`
	Name string `toml:"name,omitempty"`
}

// BakedTable is the immutable snapshot of live object templates produced at
// packaging time. It is safe for concurrent reads.
type BakedTable struct {
	Version int                    `toml:"version"`
	Entries map[string]TemplateRef `toml:"entries"`

	// Forced lists shipped-content additions made by the packaging run that
	// wrote this table. A stale table found by a later run is used to undo
	// them.
	Forced []string `toml:"forced,omitempty"`
}

// NewBakedTable creates a table from the given entries.
func NewBakedTable(entries map[string]TemplateRef) *BakedTable {
	t := &BakedTable{
		Version: TableVersion,
		Entries: make(map[string]TemplateRef, len(entries)),
	}
	for k, v := range entries {
		t.Entries[k] = v
	}
	return t
}

// Lookup returns the template reference registered under key.
func (t *BakedTable) Lookup(key string) (TemplateRef, bool) {
	if t == nil {
		return TemplateRef{}, false
	}
	ref, ok := t.Entries[key]
	return ref, ok
}

// Len returns the number of entries.
func (t *BakedTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Entries)
}

// Keys returns the config keys in order.
func (t *BakedTable) Keys() []string {
	if t == nil {
		return nil
	}
	keys := make([]string, 0, len(t.Entries))
	for k := range t.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Encode writes the table as TOML.
func (t *BakedTable) Encode(w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(t); err != nil {
		return fmt.Errorf("encode baked table: %w", err)
	}
	return nil
}

// MarshalBinary returns the TOML encoding of the table.
func (t *BakedTable) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeBakedTable reads a TOML encoded table.
func DecodeBakedTable(r io.Reader) (*BakedTable, error) {
	var t BakedTable
	if _, err := toml.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("decode baked table: %w", err)
	}
	if t.Version < 1 || t.Version > TableVersion {
		return nil, fmt.Errorf("%w: %d (supported: 1..%d)", ErrUnsupportedTableVersion, t.Version, TableVersion)
	}
	if t.Entries == nil {
		t.Entries = make(map[string]TemplateRef)
	}
	return &t, nil
}

// ParseBakedTable decodes a table from data.
func ParseBakedTable(data []byte) (*BakedTable, error) {
	return DecodeBakedTable(bytes.NewReader(data))
}
