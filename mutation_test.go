package jdoc

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/drpcorg/jdoc/jdoc_errors"
	"github.com/drpcorg/jdoc/oplog"
	"github.com/drpcorg/jdoc/rdx"
	"github.com/drpcorg/jdoc/store"
	"github.com/drpcorg/jdoc/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	local  rdx.Actor = 0x10
	alice  rdx.Actor = 0xa1
	bob    rdx.Actor = 0xb0
	quiet            = slog.LevelError + 1
)

type testHost struct {
	store.Cache
	actor rdx.Actor
	clock rdx.VV
}

func newTestHost() *testHost {
	return &testHost{Cache: store.NewCache(), actor: local, clock: make(rdx.VV)}
}

func (h *testHost) Actor() rdx.Actor          { return h.actor }
func (h *testHost) Clock() rdx.VV             { return h.clock.Copy() }
func (h *testHost) Version() uint64           { return 7 }
func (h *testHost) NewObjectID() rdx.ObjectID { return rdx.NewObjectID() }
func (h *testHost) Logger() utils.Logger      { return utils.NewLogger(io.Discard, quiet) }

type recorder struct {
	patches []*Patch
	fail    error
}

func (r *recorder) apply(patch *Patch, root *store.Object, layer *store.Layer) error {
	if r.fail != nil {
		return r.fail
	}
	r.patches = append(r.patches, patch)
	return ApplyPatch(patch, root, layer)
}

func (r *recorder) last() *Patch {
	return r.patches[len(r.patches)-1]
}

func newTestContext(h *testHost) (*MutationContext, *recorder) {
	rec := &recorder{}
	return NewMutationContext(h, rec.apply, nil), rec
}

func TestSetMapKey_Scalar(t *testing.T) {
	mc, rec := newTestContext(newTestHost())
	require.Nil(t, mc.SetMapKey(nil, "title", rdx.String("groceries")))

	ops := mc.Ops()
	require.Len(t, ops, 1)
	assert.Equal(t, rdx.NewID(local, 1), ops[0].ID)
	assert.Equal(t, oplog.Set, ops[0].Action)
	assert.Equal(t, rdx.Root, ops[0].Obj)
	assert.Equal(t, oplog.MapKey("title"), ops[0].Key)
	assert.False(t, ops[0].Insert)
	assert.Equal(t, rdx.String("groceries"), ops[0].Value)

	require.Len(t, rec.patches, 1)
	patch := rec.last()
	assert.Equal(t, uint64(8), patch.Version)
	assert.Equal(t, uint64(1), patch.Clock.Get(local))
	diff := patch.Diffs.Props["title"][local]
	require.NotNil(t, diff)
	assert.False(t, diff.IsObject())
	assert.Equal(t, rdx.String("groceries"), diff.Value)
	assert.Equal(t, Plain, diff.Datatype)

	root, err := mc.GetObject(rdx.Root)
	require.Nil(t, err)
	values, ok := root.Values("title")
	assert.True(t, ok)
	assert.Equal(t, store.Conflicts{local: rdx.String("groceries")}, values)
	assert.Equal(t, uint64(8), mc.Version())
}

func TestSetMapKey_Datatypes(t *testing.T) {
	mc, rec := newTestContext(newTestHost())
	when := rdx.Timestamp(time.Unix(1700000000, 0).UTC())
	require.Nil(t, mc.SetMapKey(nil, "due", when))
	require.Nil(t, mc.SetMapKey(nil, "hits", rdx.Counter(5)))

	root, err := mc.GetObject(rdx.Root)
	require.Nil(t, err)
	for key, datatype := range map[string]Datatype{"due": TimestampType, "hits": CounterType} {
		var written *Diff
		for _, p := range rec.patches {
			if c, ok := p.Diffs.Props[key]; ok {
				written = c[local]
			}
		}
		require.NotNil(t, written, key)
		assert.Equal(t, datatype, written.Datatype, key)

		stored, _ := root.Values(key)
		described, err := mc.GetValueDescription(stored[local])
		require.Nil(t, err)
		assert.Equal(t, written.Datatype, described.Datatype, key)
		assert.True(t, rdx.Equal(written.Value, described.Value), key)
	}
}

func TestSetMapKey_NestedMap(t *testing.T) {
	mc, rec := newTestContext(newTestHost())
	require.Nil(t, mc.SetMapKey(nil, "k", rdx.Map{"a": rdx.Int(1), "b": rdx.String("x")}))

	ops := mc.Ops()
	require.Len(t, ops, 3)
	assert.Equal(t, oplog.MakeMap, ops[0].Action)
	assert.Equal(t, oplog.MapKey("k"), ops[0].Key)
	child := ops[0].Child
	assert.False(t, child.IsRoot())
	seen := make(map[string]int)
	for _, op := range ops[1:] {
		assert.Equal(t, oplog.Set, op.Action)
		assert.Equal(t, child, op.Obj)
		seen[op.Key.Name()]++
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 1}, seen)

	diff := rec.last().Diffs.Props["k"][local]
	require.True(t, diff.IsObject())
	assert.Equal(t, child, diff.Object.ObjectID)
	assert.Equal(t, rdx.MapType, diff.Object.Type)
	require.Len(t, diff.Object.Props, 2)
	assert.Equal(t, rdx.Int(1), diff.Object.Props["a"][local].Value)
	assert.Equal(t, rdx.String("x"), diff.Object.Props["b"][local].Value)

	obj, err := mc.GetObject(child)
	require.Nil(t, err)
	assert.Equal(t, rdx.MapType, obj.Type)
	assert.Equal(t, 2, obj.Len())
}

func TestSetMapKey_TodoList(t *testing.T) {
	mc, rec := newTestContext(newTestHost())
	require.Nil(t, mc.SetMapKey(nil, "todo", rdx.List{rdx.String("a"), rdx.String("b")}))

	ops := mc.Ops()
	require.Len(t, ops, 3)
	assert.Equal(t, oplog.MakeList, ops[0].Action)
	list := ops[0].Child
	for i, op := range ops[1:] {
		assert.Equal(t, oplog.Set, op.Action)
		assert.Equal(t, list, op.Obj)
		assert.Equal(t, oplog.IndexKey(i), op.Key)
		assert.True(t, op.Insert)
	}

	require.Len(t, rec.patches, 1)
	todo := rec.last().Diffs.Props["todo"]
	require.Len(t, todo, 1)
	diff := todo[local]
	require.True(t, diff.IsObject())
	assert.Equal(t, list, diff.Object.ObjectID)
	assert.Equal(t, rdx.ListType, diff.Object.Type)
	assert.Equal(t, []Edit{{EditInsert, 0}, {EditInsert, 1}}, diff.Object.Edits)
	assert.Equal(t, rdx.String("a"), diff.Object.Props["0"][local].Value)
	assert.Equal(t, rdx.String("b"), diff.Object.Props["1"][local].Value)
}

func todoContext(t *testing.T) (*MutationContext, *recorder, Path) {
	mc, rec := newTestContext(newTestHost())
	require.Nil(t, mc.SetMapKey(nil, "todo", rdx.List{rdx.String("a"), rdx.String("b")}))
	path, err := mc.Resolve(oplog.MapKey("todo"))
	require.Nil(t, err)
	return mc, rec, path
}

func elems(t *testing.T, mc *MutationContext, id rdx.ObjectID) []rdx.Value {
	obj, err := mc.GetObject(id)
	require.Nil(t, err)
	var vals []rdx.Value
	for _, c := range obj.Elems {
		_, v, _ := c.Winner()
		vals = append(vals, v)
	}
	return vals
}

func TestInsertListItems(t *testing.T) {
	mc, rec, path := todoContext(t)
	before := len(mc.Ops())
	require.Nil(t, mc.InsertListItems(path, 1, rdx.String("x"), rdx.String("y"), rdx.String("z")))

	ops := mc.Ops()[before:]
	require.Len(t, ops, 3)
	for i, op := range ops {
		assert.Equal(t, oplog.IndexKey(1+i), op.Key)
		assert.True(t, op.Insert)
		assert.Equal(t, rdx.NewID(local, uint64(before+i+1)), op.ID)
	}

	sub := rec.last().Diffs.Props["todo"][local].Object
	assert.Equal(t, []Edit{{EditInsert, 1}, {EditInsert, 2}, {EditInsert, 3}}, sub.Edits)
	assert.Len(t, sub.Props, 3)

	want := []rdx.Value{rdx.String("a"), rdx.String("x"), rdx.String("y"), rdx.String("z"), rdx.String("b")}
	assert.Equal(t, want, elems(t, mc, path.Target()))

	require.Nil(t, mc.InsertListItems(path, 5, rdx.String("end")))
	assert.Len(t, elems(t, mc, path.Target()), 6)
}

func TestInsertListItems_InvalidIndex(t *testing.T) {
	mc, rec, path := todoContext(t)
	before, patches := len(mc.Ops()), len(rec.patches)

	err := mc.InsertListItems(path, 3, rdx.String("c"))
	assert.ErrorIs(t, err, jdoc_errors.ErrInvalidIndex)
	err = mc.InsertListItems(path, -1, rdx.String("c"))
	assert.ErrorIs(t, err, jdoc_errors.ErrInvalidIndex)

	assert.Len(t, mc.Ops(), before)
	assert.Len(t, rec.patches, patches)
	assert.Equal(t, uint64(before), mc.Clock().Get(local))
}

func TestSetMapKey_Elision(t *testing.T) {
	mc, rec := newTestContext(newTestHost())
	require.Nil(t, mc.SetMapKey(nil, "done", rdx.Bool(false)))
	require.Nil(t, mc.SetMapKey(nil, "done", rdx.Bool(false)))
	assert.Len(t, mc.Ops(), 1)
	assert.Len(t, rec.patches, 1)

	require.Nil(t, mc.SetMapKey(nil, "done", rdx.Bool(true)))
	assert.Len(t, mc.Ops(), 2)
	assert.Len(t, rec.patches, 2)
}

func TestSetMapKey_ConflictElisionSkipped(t *testing.T) {
	h := newTestHost()
	h.Cache[rdx.Root].Fields["color"] = store.Conflicts{alice: rdx.String("red"), bob: rdx.String("blue")}
	mc, rec := newTestContext(h)

	require.Nil(t, mc.SetMapKey(nil, "color", rdx.String("blue")))
	assert.Len(t, mc.Ops(), 1)
	require.Len(t, rec.patches, 1)
	root, _ := mc.GetObject(rdx.Root)
	values, _ := root.Values("color")
	assert.Equal(t, store.Conflicts{local: rdx.String("blue")}, values)
}

// conflictHost has two concurrent maps at root["k"].
func conflictHost() (h *testHost, ma, mb rdx.ObjectID) {
	h = newTestHost()
	ma, mb = rdx.NewObjectID(), rdx.NewObjectID()
	h.Cache[ma] = store.NewObject(ma, rdx.MapType)
	h.Cache[mb] = store.NewObject(mb, rdx.MapType)
	h.Cache[ma].Fields["x"] = store.Conflicts{alice: rdx.Int(1)}
	h.Cache[rdx.Root].Fields["k"] = store.Conflicts{alice: rdx.Ref(ma), bob: rdx.Ref(mb)}
	return
}

func TestApplyAt_ConflictPreserved(t *testing.T) {
	h, ma, mb := conflictHost()
	mc, rec := newTestContext(h)

	path := Path{{Key: oplog.MapKey("k"), ObjectID: mb}}
	require.Nil(t, mc.SetMapKey(path, "y", rdx.Int(2)))

	k := rec.last().Diffs.Props["k"]
	require.Len(t, k, 2)
	require.True(t, k[alice].IsObject())
	assert.Equal(t, ma, k[alice].Object.ObjectID)
	assert.False(t, k[alice].Object.Touched())
	require.True(t, k[bob].IsObject())
	assert.Equal(t, mb, k[bob].Object.ObjectID)
	assert.Equal(t, rdx.Int(2), k[bob].Object.Props["y"][local].Value)

	root, _ := mc.GetObject(rdx.Root)
	values, _ := root.Values("k")
	assert.Equal(t, store.Conflicts{alice: rdx.Ref(ma), bob: rdx.Ref(mb)}, values)
	objB, _ := mc.GetObject(mb)
	assert.Equal(t, 1, objB.Len())
	objA, _ := mc.GetObject(ma)
	assert.Same(t, h.Cache[ma], objA)
	assert.Equal(t, 0, h.Cache[mb].Len())
}

func TestApplyAt_StalePath(t *testing.T) {
	h, _, _ := conflictHost()
	mc, rec := newTestContext(h)
	path := Path{{Key: oplog.MapKey("k"), ObjectID: rdx.NewObjectID()}}
	err := mc.SetMapKey(path, "y", rdx.Int(2))
	assert.ErrorIs(t, err, jdoc_errors.ErrStalePath)
	assert.Empty(t, mc.Ops())
	assert.Empty(t, rec.patches)
}

func TestApplyAt_UntrackedKey(t *testing.T) {
	h, _, mb := conflictHost()
	mc, _ := newTestContext(h)
	path := Path{{Key: oplog.MapKey("nope"), ObjectID: mb}}
	err := mc.SetMapKey(path, "y", rdx.Int(2))
	assert.ErrorIs(t, err, jdoc_errors.ErrUntrackedConflictSet)
}

func TestResolve_Winner(t *testing.T) {
	h, _, mb := conflictHost()
	mc, _ := newTestContext(h)
	path, err := mc.Resolve(oplog.MapKey("k"))
	require.Nil(t, err)
	assert.Equal(t, mb, path.Target())
	assert.Equal(t, "/k", path.String())

	_, err = mc.Resolve(oplog.MapKey("k"), oplog.MapKey("x"))
	assert.ErrorIs(t, err, jdoc_errors.ErrUntrackedConflictSet)
	assert.Equal(t, "/", Path(nil).String())
}

func TestFaults(t *testing.T) {
	mc, rec := newTestContext(newTestHost())
	require.Nil(t, mc.SetMapKey(nil, "hits", rdx.Counter(1)))
	ops, patches := len(mc.Ops()), len(rec.patches)

	assert.ErrorIs(t, mc.SetMapKey(nil, "", rdx.Int(1)), jdoc_errors.ErrInvalidKey)
	assert.ErrorIs(t, mc.SetMapKey(nil, "t", rdx.Table{rdx.Map{"a": rdx.Int(1)}}), jdoc_errors.ErrNonEmptyTable)
	assert.ErrorIs(t, mc.SetMapKey(nil, "hits", rdx.Int(2)), jdoc_errors.ErrCounterOverwrite)
	assert.ErrorIs(t, mc.SetMapKey(nil, "r", rdx.Ref(rdx.NewObjectID())), jdoc_errors.ErrAliasedObject)
	assert.ErrorIs(t, mc.SetMapKey(nil, "n", nil), jdoc_errors.ErrUnsupportedValue)
	assert.ErrorIs(t, mc.SetMapKey(nil, "m", rdx.Map{"ok": rdx.Int(1), "": rdx.Int(2)}), jdoc_errors.ErrInvalidKey)
	assert.ErrorIs(t, mc.SetMapKey(nil, "l", rdx.List{rdx.Int(1), rdx.Table{rdx.Map{}}}), jdoc_errors.ErrNonEmptyTable)

	_, err := mc.GetObject(rdx.NewObjectID())
	assert.ErrorIs(t, err, jdoc_errors.ErrMissingObject)
	_, err = mc.GetValueDescription(rdx.Ref(rdx.NewObjectID()))
	assert.ErrorIs(t, err, jdoc_errors.ErrMissingObject)
	_, err = mc.GetValueDescription(rdx.Ref(rdx.Root))
	assert.ErrorIs(t, err, jdoc_errors.ErrUnsupportedValue)
	_, err = mc.GetValueDescription(rdx.List{})
	assert.ErrorIs(t, err, jdoc_errors.ErrUnsupportedValue)

	assert.Len(t, mc.Ops(), ops)
	assert.Len(t, rec.patches, patches)
	assert.Equal(t, uint64(ops), mc.Clock().Get(local))
	root, _ := mc.GetObject(rdx.Root)
	assert.Equal(t, 1, root.Len())
}

func TestApplierFailure(t *testing.T) {
	h := newTestHost()
	mc, rec := newTestContext(h)
	require.Nil(t, mc.SetMapKey(nil, "a", rdx.Int(1)))

	boom := errors.New("applier down")
	rec.fail = boom
	err := mc.SetMapKey(nil, "b", rdx.Map{"c": rdx.Int(2)})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, mc.Ops(), 1)
	assert.Equal(t, uint64(1), mc.Clock().Get(local))
	assert.Equal(t, uint64(8), mc.Version())
	root, _ := mc.GetObject(rdx.Root)
	_, ok := root.Values("b")
	assert.False(t, ok)

	rec.fail = nil
	require.Nil(t, mc.SetMapKey(nil, "b", rdx.Int(3)))
	assert.Equal(t, rdx.NewID(local, 2), mc.Ops()[1].ID)
}

func TestApplierFailure_FirstWrite(t *testing.T) {
	mc, rec := newTestContext(newTestHost())
	rec.fail = errors.New("applier down")
	require.Error(t, mc.SetMapKey(nil, "a", rdx.Int(1)))
	assert.Empty(t, mc.Ops())
	assert.NotContains(t, mc.Clock(), local)
	assert.Empty(t, mc.Clock().String())

	rec.fail = nil
	require.Nil(t, mc.SetMapKey(nil, "a", rdx.Int(1)))
	assert.Equal(t, rdx.VV{local: 1}, mc.Clock())
}

func TestGetObjectType(t *testing.T) {
	mc, _ := newTestContext(newTestHost())
	require.Nil(t, mc.SetMapKey(nil, "note", rdx.Text("hi")))
	require.Nil(t, mc.SetMapKey(nil, "rows", rdx.Table{}))
	require.Nil(t, mc.SetMapKey(nil, "todo", rdx.List{}))

	typ, err := mc.GetObjectType(rdx.Root)
	require.Nil(t, err)
	assert.Equal(t, rdx.MapType, typ)
	for key, want := range map[string]rdx.ObjType{"note": rdx.TextType, "rows": rdx.TableType, "todo": rdx.ListType} {
		path, err := mc.Resolve(oplog.MapKey(key))
		require.Nil(t, err)
		typ, err := mc.GetObjectType(path.Target())
		require.Nil(t, err)
		assert.Equal(t, want, typ, key)
	}
}
