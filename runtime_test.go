package solo

import (
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, opts ...func(*Builder)) *Manager {
	t.Helper()
	b := NewBuilder().
		Registry(newTestRegistry(t)).
		Logger(discardLogger())
	for _, opt := range opts {
		opt(b)
	}
	m, err := b.Init()
	require.NoError(t, err)
	return m
}

func TestInstance_CreatesDefaultWithoutTemplate(t *testing.T) {
	m := newTestManager(t)
	rt := m.Runtime()

	d, _ := m.Registry().Lookup(ConfigKeyOf(audioManagerType))
	assert.Equal(t, Absent, rt.State(d))

	inst, err := Instance[audioManager](rt)
	require.NoError(t, err)
	require.NotNil(t, inst)
	require.NotNil(t, inst.Node())
	assert.Equal(t, "audioManager - Singleton", inst.Node().Name())
	assert.Same(t, m.Scene(), inst.Node().Scene())
	assert.Equal(t, Live, rt.State(d))

	again, err := Instance[audioManager](rt)
	require.NoError(t, err)
	assert.Same(t, inst, again)
}

func TestInstance_CopiesElectedTemplate(t *testing.T) {
	m := newTestManager(t)
	tmpl := newAudioManagerTemplate("Audio", 8)
	tmpl.Node().Transform.Position = mgl64.Vec3{1, 2, 3}
	require.NoError(t, m.RequestElection(tmpl, audioManagerType))

	inst, err := Instance[audioManager](m.Runtime())
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.NotSame(t, tmpl, inst)
	assert.Equal(t, 8, inst.Channels)
	assert.NotEqual(t, tmpl.ObjectID(), inst.ObjectID())
	assert.Equal(t, "Audio", inst.Node().Name())
	assert.Equal(t, mgl64.Vec3{1, 2, 3}, inst.Node().Transform.Position)
	assert.Nil(t, tmpl.Node().Scene(), "template stays detached")
}

func TestInstance_ConcurrentCallersShareOneInstance(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newTestManager(t, func(b *Builder) { b.Metrics(reg, "test") })
	rt := m.Runtime()

	const workers = 32
	results := make([]*audioManager, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			inst, err := Instance[audioManager](rt)
			assert.NoError(t, err)
			results[i] = inst
		}(i)
	}
	close(start)
	wg.Wait()

	require.NotNil(t, results[0])
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
	assert.Len(t, m.Scene().Nodes(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.metrics.instantiations.WithLabelValues(ConfigKeyOf(audioManagerType), "default")))
}

func TestInstance_Errors(t *testing.T) {
	m := newTestManager(t)

	_, err := Instance[audioSettings](m.Runtime())
	assert.ErrorIs(t, err, ErrWrongCategory)

	_, err = AssetOf[audioManager](m.Runtime())
	assert.ErrorIs(t, err, ErrWrongCategory)

	_, err = Instance[plain](m.Runtime())
	assert.ErrorIs(t, err, ErrNotSingleton)
}

func TestInstance_QuittingLatch(t *testing.T) {
	m := newTestManager(t)
	rt := m.Runtime()

	inst, err := Instance[audioManager](rt)
	require.NoError(t, err)
	require.NotNil(t, inst)

	m.Shutdown()
	assert.True(t, rt.Quitting())
	d, _ := m.Registry().Lookup(ConfigKeyOf(audioManagerType))
	assert.Equal(t, Quitting, rt.State(d))

	got, err := Instance[audioManager](rt)
	require.NoError(t, err)
	assert.Nil(t, got, "existing instance is hidden while quitting")

	got2, err := Instance[inputManager](rt)
	require.NoError(t, err)
	assert.Nil(t, got2, "nothing is created while quitting")
	assert.Len(t, m.Scene().Nodes(), 1)

	rt.Reset()
	assert.False(t, rt.Quitting())
	fresh, err := Instance[audioManager](rt)
	require.NoError(t, err)
	assert.NotNil(t, fresh)
}

func TestAssetOf(t *testing.T) {
	m := newTestManager(t)

	got, err := AssetOf[audioSettings](m.Runtime())
	require.NoError(t, err)
	assert.Nil(t, got, "data assets are never created on demand")

	a := newAudioSettings(false)
	a.Volume = 0.7
	require.NoError(t, m.RequestElection(a, audioSettingsType))

	got, err = AssetOf[audioSettings](m.Runtime())
	require.NoError(t, err)
	assert.Same(t, a, got)
}

func TestRuntime_DestroyedInstanceIsRecreated(t *testing.T) {
	m := newTestManager(t)
	rt := m.Runtime()
	d, _ := m.Registry().Lookup(ConfigKeyOf(audioManagerType))

	first, err := Instance[audioManager](rt)
	require.NoError(t, err)
	m.Scene().Destroy(first.Node())
	assert.Equal(t, Absent, rt.State(d))

	second, err := Instance[audioManager](rt)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestRuntime_AwakeDestroysDuplicates(t *testing.T) {
	m := newTestManager(t)
	rt := m.Runtime()
	scene := m.Scene()

	placed := &audioManager{}
	n := scene.Spawn("Placed", IdentityTransform())
	scene.Attach(n, placed)
	ok, err := rt.Awake(placed)
	require.NoError(t, err)
	assert.True(t, ok)

	inst, err := Instance[audioManager](rt)
	require.NoError(t, err)
	assert.Same(t, placed, inst)

	dup := &audioManager{}
	dn := scene.Spawn("Duplicate", IdentityTransform())
	scene.Attach(dn, dup)
	ok, err = rt.Awake(dup)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, dn.Destroyed())

	inst, err = Instance[audioManager](rt)
	require.NoError(t, err)
	assert.Same(t, placed, inst, "destroying a duplicate keeps the tracked instance")

	_, err = rt.Awake(&unregisteredManager{})
	assert.ErrorIs(t, err, ErrNotSingleton)
}

func TestRuntime_SceneTransitions(t *testing.T) {
	var calls []string
	registry := NewRegistry()
	_, err := RegisterLive[audioManager](registry)
	require.NoError(t, err)
	_, err = RegisterLive[saveManager](registry, OnSceneActivated(func(s *saveManager, scene string) {
		calls = append(calls, scene)
	}))
	require.NoError(t, err)
	_, err = RegisterLive[inputManager](registry, OnSceneActivated(func(*inputManager, string) {
		calls = append(calls, "input")
	}))
	require.NoError(t, err)

	m, err := NewBuilder().Registry(registry).Logger(discardLogger()).Init()
	require.NoError(t, err)
	rt := m.Runtime()

	audio, err := Instance[audioManager](rt)
	require.NoError(t, err)
	save, err := Instance[saveManager](rt)
	require.NoError(t, err)
	assert.True(t, save.Node().Persistent())
	assert.False(t, audio.Node().Persistent())

	m.Scene().Activate("level1", func(s *Scene) {
		// created during activation: its hook must not run for this scene
		_, err := Instance[inputManager](rt)
		assert.NoError(t, err)
	})

	assert.True(t, audio.Node().Destroyed())
	assert.False(t, save.Node().Destroyed())
	assert.Equal(t, []string{"level1"}, calls)

	again, err := Instance[saveManager](rt)
	require.NoError(t, err)
	assert.Same(t, save, again)

	m.Scene().Activate("level2", nil)
	assert.ElementsMatch(t, []string{"level1", "level2", "input"}, calls)
}

func TestRuntime_PackagedSource(t *testing.T) {
	tmpl := newAudioManagerTemplate("Baked Audio", 4)
	table := NewBakedTable(map[string]TemplateRef{
		ConfigKeyOf(audioManagerType): {ID: tmpl.ObjectID(), Name: "Baked Audio"},
		ConfigKeyOf(inputManagerType): {ID: "not-shipped"},
	})

	m := newTestManager(t, func(b *Builder) {
		b.Phase(Packaged).Table(table, Objects{tmpl.ObjectID(): tmpl})
	})
	rt := m.Runtime()
	assert.Equal(t, Packaged, rt.Phase())

	inst, err := Instance[audioManager](rt)
	require.NoError(t, err)
	assert.Equal(t, 4, inst.Channels)
	assert.Equal(t, "Baked Audio", inst.Node().Name())

	input, err := Instance[inputManager](rt)
	require.NoError(t, err)
	assert.Equal(t, "inputManager - Singleton", input.Node().Name(), "unshipped template falls back to default")

	first, second, unflagged := newAudioSettings(true), newAudioSettings(true), newAudioSettings(false)
	require.NoError(t, m.Load(unflagged))
	got, err := AssetOf[audioSettings](rt)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, m.Load(first))
	require.NoError(t, m.Load(second))
	got, err = AssetOf[audioSettings](rt)
	require.NoError(t, err)
	assert.Same(t, first, got, "first flagged instance to load wins")

	rt.Reset()
	got, err = AssetOf[audioSettings](rt)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBuilder_PackagedRequiresTable(t *testing.T) {
	_, err := NewBuilder().Phase(Packaged).Logger(discardLogger()).Init()
	assert.Error(t, err)
}

func TestManager_LoadWhileAuthoring(t *testing.T) {
	m := newTestManager(t)
	a, b := newAudioSettings(true), newAudioSettings(true)
	require.NoError(t, m.Load(a))
	require.NoError(t, m.Load(b))

	main, err := m.Main(ConfigKeyOf(audioSettingsType))
	require.NoError(t, err)
	assert.Same(t, a, main)
	assert.False(t, b.IsMain())

	_, err = m.Main("unknown")
	assert.ErrorIs(t, err, ErrNotSingleton)
}
