package content

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/oriumgames/solo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDir_InvalidPattern(t *testing.T) {
	_, err := NewDir(t.TempDir(), []string{"[unclosed"}, nil)
	assert.Error(t, err)
}

func TestDir_Match(t *testing.T) {
	d := newTestDir(t)
	assert.True(t, d.Match("music.asset.toml"))
	assert.True(t, d.Match("levels/one/music.asset.toml"))
	assert.True(t, d.Match("levels/one/music.asset.yaml"))
	assert.False(t, d.Match("BakedTable.toml"))
	assert.False(t, d.Match("notes.txt"))
}

func TestDir_Scan(t *testing.T) {
	d := newTestDir(t)
	writeDoc(t, d, "b.asset.toml", "id = \"b\"\ntype = \"level.music\"\n")
	writeDoc(t, d, "levels/a.asset.toml", "id = \"a\"\ntype = \"level.music\"\n")
	writeDoc(t, d, "broken.asset.toml", "id = \"c\"\n")
	writeDoc(t, d, "readme.md", "ignored")

	docs, err := d.Scan()
	assert.Error(t, err, "broken document is reported")
	require.Len(t, docs, 2)
	assert.Equal(t, "b.asset.toml", docs[0].Path())
	assert.Equal(t, "levels/a.asset.toml", docs[1].Path())

	p, ok := d.PathOf("a")
	assert.True(t, ok)
	assert.Equal(t, "levels/a.asset.toml", p)
	id, ok := d.IDAt("levels/a.asset.toml")
	assert.True(t, ok)
	assert.Equal(t, "a", id)

	id, ok = d.Forget("levels/a.asset.toml")
	assert.True(t, ok)
	assert.Equal(t, "a", id)
	_, ok = d.PathOf("a")
	assert.False(t, ok)
}

func TestDir_YAMLDocument(t *testing.T) {
	d := newTestDir(t)
	writeDoc(t, d, "levels/director.asset.yaml", `id: director-2
type: level.director
name: Director
main: false
transform:
  position: [0, 1, 0]
  rotation: [1, 0, 0, 0]
  scale: [1, 1, 1]
data:
  difficulty: easy
`)

	doc, err := d.Load("levels/director.asset.yaml")
	require.NoError(t, err)
	assert.Equal(t, "director-2", doc.ObjectID())
	assert.Equal(t, directorKey, doc.SingletonKey())
	assert.False(t, doc.IsMain())
	assert.Equal(t, "easy", doc.Data["difficulty"])
	require.NotNil(t, doc.Node())
	assert.InDelta(t, 1.0, doc.Node().Transform.Position.Y(), 1e-9)

	body, err := doc.Bytes()
	require.NoError(t, err)
	assert.Contains(t, string(body), "type: level.director")

	again, err := DecodeFormat(bytes.NewReader(body), FormatOf(doc.Path()))
	require.NoError(t, err)
	assert.Equal(t, doc.ObjectID(), again.ObjectID())
	assert.Equal(t, "easy", again.Data["difficulty"])
}

func TestFormatOf(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatOf("a/b.asset.yaml"))
	assert.Equal(t, FormatYAML, FormatOf("b.YML"))
	assert.Equal(t, FormatTOML, FormatOf("b.asset.toml"))
	assert.Equal(t, FormatTOML, FormatOf("noext"))
}

func TestDir_SaveAndSync(t *testing.T) {
	d := newTestDir(t)
	doc := NewDocument(musicKey, "Theme")
	require.NoError(t, d.Save(doc))
	assert.Equal(t, "Theme.asset.toml", doc.Path())

	m := newTestManager(t)
	m.Elector().Subscribe(func(ch solo.Change) { d.Sync(ch) })
	require.NoError(t, m.Load(doc))

	other := NewDocument(musicKey, "Other")
	require.NoError(t, d.Save(other))
	require.NoError(t, m.Load(other))

	reloaded, err := d.Load(other.Path())
	require.NoError(t, err)
	assert.False(t, reloaded.IsMain(), "demotion is written back")

	require.NoError(t, m.Elector().ElectObject(other, true))
	reloaded, err = d.Load(doc.Path())
	require.NoError(t, err)
	assert.False(t, reloaded.IsMain())
	reloaded, err = d.Load(other.Path())
	require.NoError(t, err)
	assert.True(t, reloaded.IsMain())
}

func TestDir_Artifacts(t *testing.T) {
	d := newTestDir(t)
	writeDoc(t, d, "music.asset.toml", "type = \"level.music\"\n")
	require.NoError(t, os.Mkdir(filepath.Join(d.Root(), "levels"), 0o755))

	require.NoError(t, d.Write(solo.DefaultTableName, []byte("version = 1\n")))
	name, err := d.UniqueName(solo.DefaultTableName)
	require.NoError(t, err)
	assert.Equal(t, "BakedTable 1.toml", name)

	data, err := d.Read(solo.DefaultTableName)
	require.NoError(t, err)
	assert.Equal(t, "version = 1\n", string(data))

	names, err := d.List()
	require.NoError(t, err)
	assert.Equal(t, []string{solo.DefaultTableName}, names)

	require.NoError(t, d.Delete(solo.DefaultTableName))
	require.NoError(t, d.Delete(solo.DefaultTableName), "deleting twice is a no-op")
	names, err = d.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestManifest(t *testing.T) {
	m := NewManifest(filepath.Join(t.TempDir(), "shipped.toml"))

	ids, err := m.Objects()
	require.NoError(t, err)
	assert.Empty(t, ids, "missing manifest is empty")

	require.NoError(t, m.SetObjects([]string{"a", "b"}))
	ids, err = m.Objects()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, m.SetObjects(nil))
	_, err = os.Stat(m.path)
	assert.True(t, os.IsNotExist(err), "a manifest emptied by its creator is removed")

	path := filepath.Join(t.TempDir(), "shipped.toml")
	require.NoError(t, os.WriteFile(path, []byte("objects = [\"a\"]\n"), 0o644))
	existing := NewManifest(path)
	require.NoError(t, existing.SetObjects(nil))
	ids, err = existing.Objects()
	require.NoError(t, err)
	assert.Empty(t, ids)
	_, err = os.Stat(path)
	assert.NoError(t, err, "a manifest that existed before is kept")
}

func TestPackagingIntoDir(t *testing.T) {
	d := newTestDir(t)
	writeDoc(t, d, "music.asset.toml", "id = \"music\"\ntype = \"level.music\"\n")
	writeDoc(t, d, "director.asset.toml", "id = \"director\"\ntype = \"level.director\"\nname = \"Director\"\n[transform]\nposition = [0.0, 1.0, 0.0]\n")

	m := newTestManager(t)
	imp := NewImporter(d, m, nil, discardLogger())
	n, err := imp.ImportAll()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	manifest := NewManifest(filepath.Join(d.Root(), "shipped.toml"))
	p := m.Packager(d, manifest)

	var table *solo.BakedTable
	require.NoError(t, p.Run(t.Context(), func(ctx context.Context) error {
		data, err := d.Read(p.Pending())
		if err != nil {
			return err
		}
		table, err = solo.ParseBakedTable(data)
		if err != nil {
			return err
		}
		ids, err := manifest.Objects()
		assert.ElementsMatch(t, []string{"music", solo.DefaultTableName}, ids)
		return err
	}))

	ref, ok := table.Lookup(directorKey)
	require.True(t, ok)
	assert.Equal(t, "director", ref.ID)
	assert.Equal(t, "Director", ref.Name)

	ids, err := manifest.Objects()
	require.NoError(t, err)
	assert.Empty(t, ids)
	_, err = os.Stat(filepath.Join(d.Root(), solo.DefaultTableName))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(d.Root(), "shipped.toml"))
	assert.True(t, os.IsNotExist(err), "no manifest is left behind")
}
