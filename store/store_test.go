package store

import (
	"testing"

	"github.com/drpcorg/jdoc/jdoc_errors"
	"github.com/drpcorg/jdoc/rdx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayer_Get(t *testing.T) {
	base := NewCache()
	layer := NewLayer(base)

	root, err := layer.Get(rdx.Root)
	require.Nil(t, err)
	assert.Equal(t, rdx.MapType, root.Type)
	assert.Same(t, base[rdx.Root], root)

	_, err = layer.Get(rdx.NewObjectID())
	assert.ErrorIs(t, err, jdoc_errors.ErrMissingObject)
}

func TestLayer_CopyOnWrite(t *testing.T) {
	base := NewCache()
	base[rdx.Root].Fields["title"] = Conflicts{0xa: rdx.String("old")}
	layer := NewLayer(base)

	root, err := layer.Edit(rdx.Root)
	require.Nil(t, err)
	assert.NotSame(t, base[rdx.Root], root)
	require.Nil(t, root.SetValues("title", Conflicts{0xb: rdx.String("new")}))

	again, _ := layer.Get(rdx.Root)
	assert.Same(t, root, again)
	assert.Equal(t, rdx.String("old"), base[rdx.Root].Fields["title"][0xa])
	assert.Equal(t, 1, layer.Len())
}

func TestLayer_ForkMerge(t *testing.T) {
	base := NewCache()
	layer := NewLayer(base)
	fork := layer.Fork()

	lid := rdx.NewObjectID()
	list, err := fork.Ensure(lid, rdx.ListType)
	require.Nil(t, err)
	assert.Nil(t, list.Insert(0))

	_, err = layer.Get(lid)
	assert.ErrorIs(t, err, jdoc_errors.ErrMissingObject)

	fork.Merge()
	got, err := layer.Get(lid)
	require.Nil(t, err)
	assert.Equal(t, 1, got.Len())
	assert.Equal(t, 0, fork.Len())

	_, err = layer.Ensure(lid, rdx.MapType)
	assert.ErrorIs(t, err, jdoc_errors.ErrTypeMismatch)
}

func TestObject_Sequence(t *testing.T) {
	list := NewObject(rdx.NewObjectID(), rdx.ListType)
	assert.True(t, list.Tracked())
	assert.Nil(t, list.Insert(0))
	assert.Nil(t, list.Insert(1))
	assert.Nil(t, list.SetValues("0", Conflicts{1: rdx.String("a")}))
	assert.Nil(t, list.SetValues("1", Conflicts{1: rdx.String("b")}))
	assert.Nil(t, list.Insert(1))
	assert.Nil(t, list.SetValues("1", Conflicts{1: rdx.String("x")}))

	var got []rdx.Value
	for i := 0; i < list.Len(); i++ {
		c, ok := list.Values(string(rune('0' + i)))
		require.True(t, ok)
		v, _ := c.Single()
		got = append(got, v)
	}
	assert.Equal(t, []rdx.Value{rdx.String("a"), rdx.String("x"), rdx.String("b")}, got)

	assert.ErrorIs(t, list.Insert(5), jdoc_errors.ErrInvalidIndex)
	assert.ErrorIs(t, list.Remove(3), jdoc_errors.ErrInvalidIndex)
	assert.Nil(t, list.Remove(0))
	assert.Equal(t, 2, list.Len())
	_, ok := list.Values("7")
	assert.False(t, ok)
	_, ok = list.Values("x")
	assert.False(t, ok)
}

func TestObject_MapRemoveKey(t *testing.T) {
	m := NewObject(rdx.NewObjectID(), rdx.MapType)
	assert.Nil(t, m.SetValues("k", Conflicts{1: rdx.Int(1)}))
	assert.Equal(t, 1, m.Len())
	assert.Nil(t, m.SetValues("k", Conflicts{}))
	assert.Equal(t, 0, m.Len())
	assert.ErrorIs(t, m.Insert(0), jdoc_errors.ErrTypeMismatch)

	bare := &Object{ID: rdx.NewObjectID(), Type: rdx.MapType}
	assert.False(t, bare.Tracked())
	assert.ErrorIs(t, bare.SetValues("k", Conflicts{1: rdx.Int(1)}), jdoc_errors.ErrUntrackedConflictSet)
}

func TestConflicts(t *testing.T) {
	c := Conflicts{0xb: rdx.String("b"), 0xa: rdx.Counter(1)}
	assert.Equal(t, []rdx.Actor{0xa, 0xb}, c.Actors())
	actor, v, ok := c.Winner()
	assert.True(t, ok)
	assert.Equal(t, rdx.Actor(0xb), actor)
	assert.Equal(t, rdx.String("b"), v)
	_, ok = c.Single()
	assert.False(t, ok)
	assert.True(t, c.HasCounter())

	cp := c.Copy()
	delete(cp, 0xa)
	assert.Len(t, c, 2)
	_, _, ok = Conflicts{}.Winner()
	assert.False(t, ok)
}
