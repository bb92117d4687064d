package content

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/oriumgames/solo"
	"github.com/stretchr/testify/require"
)

const (
	musicKey    = "level.music"
	directorKey = "level.director"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T) *solo.Manager {
	t.Helper()
	registry := solo.NewRegistry()
	_, err := registry.RegisterKey(musicKey, solo.DataAsset)
	require.NoError(t, err)
	_, err = registry.RegisterKey(directorKey, solo.LiveObject)
	require.NoError(t, err)
	m, err := solo.NewBuilder().Registry(registry).Logger(discardLogger()).Init()
	require.NoError(t, err)
	return m
}

func newTestDir(t *testing.T) *Dir {
	t.Helper()
	d, err := NewDir(t.TempDir(), nil, discardLogger())
	require.NoError(t, err)
	return d
}

func writeDoc(t *testing.T, d *Dir, rel, body string) {
	t.Helper()
	path := filepath.Join(d.Root(), filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}
