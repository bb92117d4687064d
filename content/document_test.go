package content

import (
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("full document", func(t *testing.T) {
		doc, err := Decode(strings.NewReader(`
id = "director-1"
type = "level.director"
name = "Director"
main = false

[transform]
position = [1.0, 2.0, 3.0]
rotation = [1.0, 0.0, 0.0, 0.0]
scale = [2.0, 2.0, 2.0]

[data]
difficulty = "hard"
`))
		require.NoError(t, err)
		assert.Equal(t, "director-1", doc.ObjectID())
		assert.Equal(t, directorKey, doc.SingletonKey())
		assert.Equal(t, "Director", doc.Name())
		assert.False(t, doc.IsMain())
		assert.Equal(t, "hard", doc.Data["difficulty"])
		require.NotNil(t, doc.Node())
		assert.Equal(t, mgl64.Vec3{1, 2, 3}, doc.Node().Transform.Position)
		assert.Equal(t, mgl64.Vec3{2, 2, 2}, doc.Node().Transform.Scale)
		assert.Nil(t, doc.Node().Scene())
	})

	t.Run("defaults", func(t *testing.T) {
		doc, err := Decode(strings.NewReader(`type = "level.music"`))
		require.NoError(t, err)
		assert.NotEmpty(t, doc.ObjectID())
		assert.True(t, doc.IsMain(), "missing main flag reads as main")
		assert.Nil(t, doc.Node())
	})

	t.Run("type required", func(t *testing.T) {
		_, err := Decode(strings.NewReader(`id = "x"`))
		assert.Error(t, err)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := Decode(strings.NewReader(`type = `))
		assert.Error(t, err)
	})
}

func TestDocument_EncodeRoundTrip(t *testing.T) {
	src, err := Decode(strings.NewReader(`
id = "d1"
type = "level.director"
name = "Director"
[transform]
position = [4.0, 5.0, 6.0]
[data]
lives = 3
`))
	require.NoError(t, err)

	data, err := src.Bytes()
	require.NoError(t, err)
	got, err := Decode(strings.NewReader(string(data)))
	require.NoError(t, err)

	assert.Equal(t, src.ObjectID(), got.ObjectID())
	assert.Equal(t, src.IsMain(), got.IsMain())
	assert.Equal(t, src.Name(), got.Name())
	assert.Equal(t, int64(3), got.Data["lives"])
	require.NotNil(t, got.Node())
	assert.Equal(t, mgl64.Vec3{4, 5, 6}, got.Node().Transform.Position)
	assert.Equal(t, mgl64.Vec3{1, 1, 1}, got.Node().Transform.Scale)
}

func TestDocument_CloneComponent(t *testing.T) {
	doc := NewDocument(directorKey, "Director")
	doc.Data["lives"] = 3

	clone, ok := doc.CloneComponent().(*Document)
	require.True(t, ok)
	clone.Data["lives"] = 1
	assert.Equal(t, 3, doc.Data["lives"], "clone must not share the payload")
	assert.Equal(t, directorKey, clone.SingletonKey())
}
