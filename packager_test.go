package solo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type packagingFixture struct {
	manager   *Manager
	artifacts *MemoryArtifacts
	shipped   *MemoryShippedSet
	packager  *Packager

	audio    *audioSettings
	graphics *graphicsSettings
	managers []LiveCandidate
}

func newPackagingFixture(t *testing.T, shipped ...string) *packagingFixture {
	t.Helper()
	f := &packagingFixture{
		manager:   newTestManager(t),
		artifacts: NewMemoryArtifacts(),
		shipped:   NewMemoryShippedSet(shipped...),
	}
	f.packager = f.manager.Packager(f.artifacts, f.shipped)

	f.audio = newAudioSettings(false)
	require.NoError(t, f.manager.Elector().ElectObject(f.audio, true))
	f.graphics = &graphicsSettings{}
	require.NoError(t, f.manager.Elector().ElectObject(f.graphics, true))

	audio := newAudioManagerTemplate("Audio", 2)
	input := &inputManager{}
	NewTemplate("Input", IdentityTransform(), input)
	save := &saveManager{}
	NewTemplate("Save", IdentityTransform(), save)
	f.managers = []LiveCandidate{audio, input, save}
	for _, c := range f.managers {
		require.NoError(t, f.manager.Elector().ElectObject(c, true))
	}
	return f
}

func TestPackager_RunRoundTrip(t *testing.T) {
	f := newPackagingFixture(t, "scene-1")
	ctx := context.Background()

	var baked *BakedTable
	var during []string
	err := f.packager.Run(ctx, func(ctx context.Context) error {
		name := f.packager.Pending()
		assert.Equal(t, DefaultTableName, name)
		data, err := f.artifacts.Read(name)
		if err != nil {
			return err
		}
		baked, err = ParseBakedTable(data)
		if err != nil {
			return err
		}
		during, err = f.shipped.Objects()
		return err
	})
	require.NoError(t, err)

	require.NotNil(t, baked)
	assert.Equal(t, TableVersion, baked.Version)
	assert.Equal(t, 3, baked.Len())
	for _, c := range f.managers {
		d, ok := f.manager.Registry().ClassifyObject(c)
		require.True(t, ok)
		ref, ok := baked.Lookup(d.Key)
		require.True(t, ok, d.Key)
		assert.Equal(t, c.ObjectID(), ref.ID)
		assert.Equal(t, c.Node().Name(), ref.Name)
	}

	assert.ElementsMatch(t, []string{"scene-1", f.audio.ObjectID(), DefaultTableName}, during)
	assert.NotContains(t, during, f.graphics.ObjectID(), "graphics opted out of forced shipping")

	after, err := f.shipped.Objects()
	require.NoError(t, err)
	assert.Equal(t, []string{"scene-1"}, after)
	names, err := f.artifacts.List()
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Empty(t, f.packager.Pending())
}

func TestPackager_DoesNotRemoveAlreadyShippedAssets(t *testing.T) {
	f := newPackagingFixture(t)
	require.NoError(t, f.shipped.SetObjects([]string{f.audio.ObjectID()}))

	require.NoError(t, f.packager.Run(context.Background(), func(context.Context) error { return nil }))

	after, err := f.shipped.Objects()
	require.NoError(t, err)
	assert.Equal(t, []string{f.audio.ObjectID()}, after)
}

func TestPackager_EmptyTableIsStillShipped(t *testing.T) {
	m := newTestManager(t)
	artifacts, shipped := NewMemoryArtifacts(), NewMemoryShippedSet()
	p := m.Packager(artifacts, shipped)

	require.NoError(t, p.BeforePackage(context.Background()))
	data, err := artifacts.Read(p.Pending())
	require.NoError(t, err)
	table, err := ParseBakedTable(data)
	require.NoError(t, err)
	assert.Zero(t, table.Len())

	ids, _ := shipped.Objects()
	assert.Equal(t, []string{DefaultTableName}, ids)
	require.NoError(t, p.AfterPackage(context.Background()))
}

func TestPackager_BuildFailureCleansUp(t *testing.T) {
	f := newPackagingFixture(t)
	buildErr := errors.New("build failed")

	err := f.packager.Run(context.Background(), func(context.Context) error { return buildErr })
	assert.ErrorIs(t, err, buildErr)

	ids, _ := f.shipped.Objects()
	assert.Empty(t, ids)
	names, _ := f.artifacts.List()
	assert.Empty(t, names)
}

func TestPackager_BuildPanicCleansUp(t *testing.T) {
	f := newPackagingFixture(t)

	assert.PanicsWithValue(t, "boom", func() {
		_ = f.packager.Run(context.Background(), func(context.Context) error { panic("boom") })
	})

	ids, _ := f.shipped.Objects()
	assert.Empty(t, ids)
	names, _ := f.artifacts.List()
	assert.Empty(t, names)
	assert.Empty(t, f.packager.Pending())
}

func TestPackager_SweepsStaleTables(t *testing.T) {
	f := newPackagingFixture(t)

	stale := NewBakedTable(nil)
	stale.Forced = []string{"old-asset", "BakedTable 1.toml"}
	data, err := stale.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, f.artifacts.Write("BakedTable 1.toml", data))
	require.NoError(t, f.artifacts.Write("BakedTable 2.toml", []byte("not toml")))
	require.NoError(t, f.artifacts.Write("scene.toml", []byte("keep")))
	require.NoError(t, f.shipped.SetObjects([]string{"scene", "old-asset", "BakedTable 1.toml", "BakedTable 2.toml"}))

	require.NoError(t, f.packager.BeforePackage(context.Background()))
	assert.Equal(t, DefaultTableName, f.packager.Pending())

	names, _ := f.artifacts.List()
	assert.Equal(t, []string{DefaultTableName, "scene.toml"}, names)
	ids, _ := f.shipped.Objects()
	assert.ElementsMatch(t, []string{"scene", f.audio.ObjectID(), DefaultTableName}, ids)

	require.NoError(t, f.packager.AfterPackage(context.Background()))
	ids, _ = f.shipped.Objects()
	assert.Equal(t, []string{"scene"}, ids)
}

func TestPackager_AfterWithoutBefore(t *testing.T) {
	f := newPackagingFixture(t)
	assert.ErrorIs(t, f.packager.AfterPackage(context.Background()), ErrNoArtifact)
}

func TestPackager_RepeatedBeforeCleansPrevious(t *testing.T) {
	f := newPackagingFixture(t)
	ctx := context.Background()

	require.NoError(t, f.packager.BeforePackage(ctx))
	require.NoError(t, f.packager.BeforePackage(ctx))
	names, _ := f.artifacts.List()
	assert.Len(t, names, 1)
	ids, _ := f.shipped.Objects()
	assert.Len(t, ids, 2)
	require.NoError(t, f.packager.AfterPackage(ctx))
}

func TestPackager_Options(t *testing.T) {
	f := newPackagingFixture(t)
	p := f.manager.Packager(f.artifacts, f.shipped, WithTableName("Singletons.toml"))
	assert.Equal(t, 1, p.Order())

	require.NoError(t, p.BeforePackage(context.Background()))
	assert.Equal(t, "Singletons.toml", p.Pending())
	require.NoError(t, p.AfterPackage(context.Background()))
}

func TestPackager_BakedTableDrivesPackagedRuntime(t *testing.T) {
	f := newPackagingFixture(t)
	objects := Objects{}
	for _, c := range f.managers {
		objects[c.ObjectID()] = c
	}

	var table *BakedTable
	require.NoError(t, f.packager.Run(context.Background(), func(context.Context) error {
		data, err := f.artifacts.Read(f.packager.Pending())
		if err != nil {
			return err
		}
		table, err = ParseBakedTable(data)
		return err
	}))

	shipped := newTestManager(t, func(b *Builder) { b.Phase(Packaged).Table(table, objects) })
	inst, err := Instance[audioManager](shipped.Runtime())
	require.NoError(t, err)
	assert.Equal(t, 2, inst.Channels)
	assert.Equal(t, "Audio", inst.Node().Name())
}

func TestUniqueName(t *testing.T) {
	taken := map[string]bool{"BakedTable.toml": true, "BakedTable 1.toml": true}
	name, err := UniqueName("BakedTable.toml", func(n string) bool { return taken[n] })
	require.NoError(t, err)
	assert.Equal(t, "BakedTable 2.toml", name)

	name, err = UniqueName("BakedTable.toml", func(string) bool { return false })
	require.NoError(t, err)
	assert.Equal(t, "BakedTable.toml", name)
}

func TestBakedTable_Decode(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		table := NewBakedTable(map[string]TemplateRef{"a.b": {ID: "1", Name: "One"}})
		data, err := table.MarshalBinary()
		require.NoError(t, err)
		got, err := ParseBakedTable(data)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.b"}, got.Keys())
		ref, ok := got.Lookup("a.b")
		assert.True(t, ok)
		assert.Equal(t, TemplateRef{ID: "1", Name: "One"}, ref)
	})

	t.Run("unknown fields are ignored", func(t *testing.T) {
		got, err := ParseBakedTable([]byte("version = 1\nfuture = true\n[entries]\n"))
		require.NoError(t, err)
		assert.Zero(t, got.Len())
	})

	t.Run("newer version rejected", func(t *testing.T) {
		_, err := ParseBakedTable([]byte("version = 99\n"))
		assert.ErrorIs(t, err, ErrUnsupportedTableVersion)
	})

	t.Run("missing version rejected", func(t *testing.T) {
		_, err := ParseBakedTable([]byte("[entries]\n"))
		assert.ErrorIs(t, err, ErrUnsupportedTableVersion)
	})

	t.Run("nil table", func(t *testing.T) {
		var table *BakedTable
		_, ok := table.Lookup("x")
		assert.False(t, ok)
		assert.Zero(t, table.Len())
		assert.Nil(t, table.Keys())
	})
}
