package solo

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type audioSettings struct {
	Asset
	Volume float64
}

type graphicsSettings struct {
	Asset
	Quality int
}

type audioManager struct {
	Behaviour
	Channels int
}

type inputManager struct {
	Behaviour
}

type saveManager struct {
	Behaviour
	Slots []string
}

// unregisteredManager is a live component whose type is never registered.
type unregisteredManager struct {
	Behaviour
}

// plain does not embed Asset or Behaviour.
type plain struct {
	Value int
}

var errStoreDown = errors.New("store down")

// failingStore rejects writes while fail is set.
type failingStore struct {
	*MemoryStore
	fail bool
}

func (s *failingStore) Set(key string, obj Object, overwrite bool) error {
	if s.fail {
		return errStoreDown
	}
	return s.MemoryStore.Set(key, obj, overwrite)
}

// idStore keeps object ids and resolves them through a catalog, the way a
// persistent store does.
type idStore struct {
	mu      sync.Mutex
	ids     map[string]string
	objects ObjectResolver
}

func newIDStore(ids map[string]string) *idStore {
	if ids == nil {
		ids = make(map[string]string)
	}
	return &idStore{ids: ids}
}

func (s *idStore) StoredID(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ids[key]
	return id, ok
}

func (s *idStore) TryGet(key string) (Object, bool) {
	id, ok := s.StoredID(key)
	if !ok || s.objects == nil {
		return nil, false
	}
	return s.objects.Resolve(id)
}

func (s *idStore) Set(key string, obj Object, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[key]; ok && !overwrite {
		return nil
	}
	s.ids[key] = obj.ObjectID()
	return nil
}

func (s *idStore) Remove(key string) error {
	s.mu.Lock()
	delete(s.ids, key)
	s.mu.Unlock()
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	_, err := RegisterAsset[audioSettings](r)
	require.NoError(t, err)
	_, err = RegisterAsset[graphicsSettings](r, WithIncludeUnreferenced(false))
	require.NoError(t, err)
	_, err = RegisterLive[audioManager](r)
	require.NoError(t, err)
	_, err = RegisterLive[inputManager](r)
	require.NoError(t, err)
	_, err = RegisterLive[saveManager](r, WithPersistent(true))
	require.NoError(t, err)
	return r
}

func newAudioSettingsID(id string, main bool) *audioSettings {
	a := &audioSettings{}
	a.RestoreAsset(id, main)
	return a
}

func newAudioSettings(main bool) *audioSettings {
	a := &audioSettings{}
	a.RestoreAsset(NewID(), main)
	return a
}

func newAudioManagerTemplate(name string, channels int) *audioManager {
	m := &audioManager{Channels: channels}
	NewTemplate(name, IdentityTransform(), m)
	return m
}
