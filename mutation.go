package jdoc

import (
	"strconv"

	"github.com/drpcorg/jdoc/host"
	"github.com/drpcorg/jdoc/jdoc_errors"
	"github.com/drpcorg/jdoc/oplog"
	"github.com/drpcorg/jdoc/rdx"
	"github.com/drpcorg/jdoc/store"
	"github.com/drpcorg/jdoc/utils"
	"github.com/pkg/errors"
)

// Applier updates the materialized state from a patch. It gets the
// completed patch, the root object as of the call start and a layer
// to write into, and is called exactly once per top-level mutation.
type Applier func(patch *Patch, root *store.Object, layer *store.Layer) error

// MutationContext turns local edits into ops and patches for one
// mutation batch. It owns the batch overlay and op list; it is not
// safe for concurrent use and must not outlive the batch.
//
// Each top-level call is all-or-nothing: on a fault no op of that
// call remains, the applier's writes are dropped and the clock is
// restored.
type MutationContext struct {
	host    host.Host
	actor   rdx.Actor
	seq     uint64
	clock   rdx.VV
	version uint64

	layer *store.Layer
	ops   []oplog.Op
	apply Applier

	log     utils.Logger
	metrics *Metrics
}

func NewMutationContext(h host.Host, apply Applier, metrics *Metrics) *MutationContext {
	clock := h.Clock()
	if clock == nil {
		clock = make(rdx.VV)
	}
	actor := h.Actor()
	return &MutationContext{
		host:    h,
		actor:   actor,
		seq:     clock.Get(actor),
		clock:   clock,
		version: h.Version(),
		layer:   store.NewLayer(h),
		apply:   apply,
		log:     h.Logger().With("batch", rdx.NewID(actor, clock.Get(actor)+1).String()),
		metrics: metrics,
	}
}

func (mc *MutationContext) Actor() rdx.Actor {
	return mc.actor
}

// Ops is the batch's op list so far, in emission order.
func (mc *MutationContext) Ops() []oplog.Op {
	return append([]oplog.Op(nil), mc.ops...)
}

func (mc *MutationContext) Clock() rdx.VV {
	return mc.clock.Copy()
}

func (mc *MutationContext) Version() uint64 {
	return mc.version
}

// Overlay is the batch's layer over the host's base cache.
func (mc *MutationContext) Overlay() *store.Layer {
	return mc.layer
}

// GetObject is the two-layer lookup: overlay, then base cache.
func (mc *MutationContext) GetObject(id rdx.ObjectID) (*store.Object, error) {
	return mc.layer.Get(id)
}

func (mc *MutationContext) addOp(op oplog.Op) {
	mc.seq++
	op.ID = rdx.NewID(mc.actor, mc.seq)
	mc.ops = append(mc.ops, op)
}

// observe logs and counts the outcome of a top-level call.
func (mc *MutationContext) observe(call string, err error) error {
	if err != nil {
		mc.metrics.fault(err)
		mc.log.Warn("mutation aborted", "call", call, "err", err)
	}
	return err
}

// setValue writes a value at obj[key]. Primitives become one Set op,
// containers a subtree of ops.
func (mc *MutationContext) setValue(obj rdx.ObjectID, key oplog.Key, value rdx.Value, insert bool) (*Diff, error) {
	switch v := value.(type) {
	case nil:
		return nil, errors.Wrapf(jdoc_errors.ErrUnsupportedValue, "nil value at %s", key)
	case rdx.Map, rdx.List, rdx.Text, rdx.Table:
		return mc.createNestedObjects(obj, &key, v, insert)
	case rdx.Ref:
		return nil, errors.Wrapf(jdoc_errors.ErrAliasedObject, "%s at %s", rdx.ObjectID(v), key)
	case rdx.Null, rdx.Bool, rdx.Int, rdx.Float, rdx.String, rdx.Timestamp, rdx.Counter:
		diff, _ := describePrimitive(v)
		mc.addOp(oplog.Op{
			Action: oplog.Set,
			Obj:    obj,
			Key:    key,
			Insert: insert,
			Value:  v,
		})
		return diff, nil
	default:
		return nil, errors.Wrapf(jdoc_errors.ErrUnsupportedValue, "%T at %s", value, key)
	}
}

// createNestedObjects makes a new container under obj and fills it.
// A nil key means the object is keyed by its own id (table rows).
func (mc *MutationContext) createNestedObjects(obj rdx.ObjectID, key *oplog.Key, value rdx.Value, insert bool) (*Diff, error) {
	if ref, ok := value.(rdx.Ref); ok {
		return nil, errors.Wrapf(jdoc_errors.ErrAliasedObject, "%s", rdx.ObjectID(ref))
	}
	typ, ok := rdx.ContainerType(value)
	if !ok {
		return nil, errors.Wrapf(jdoc_errors.ErrUnsupportedValue, "%T is not a container", value)
	}
	if table, ok := value.(rdx.Table); ok && len(table) > 0 {
		return nil, errors.Wrapf(jdoc_errors.ErrNonEmptyTable, "%d rows", len(table))
	}
	child := mc.host.NewObjectID()
	k := oplog.MapKey(child.String())
	if key != nil {
		k = *key
	}
	mc.addOp(oplog.Op{
		Action: oplog.MakeAction(typ),
		Obj:    obj,
		Key:    k,
		Insert: insert,
		Child:  child,
	})
	sub := NewObjectDiff(child, typ)
	switch v := value.(type) {
	case rdx.Map:
		for _, name := range utils.SortedKeys(v) {
			if name == "" {
				return nil, errors.Wrapf(jdoc_errors.ErrInvalidKey, "in new map %s", child)
			}
			diff, err := mc.setValue(child, oplog.MapKey(name), v[name], false)
			if err != nil {
				return nil, err
			}
			sub.Props[name] = Conflicts{mc.actor: diff}
		}
	case rdx.List:
		if err := mc.insertListItems(sub, 0, v, true); err != nil {
			return nil, err
		}
	case rdx.Text:
		chars := make([]rdx.Value, 0, len(v))
		for _, r := range string(v) {
			chars = append(chars, rdx.String(string(r)))
		}
		if err := mc.insertListItems(sub, 0, chars, true); err != nil {
			return nil, err
		}
	}
	return &Diff{Object: sub}, nil
}

// insertListItems inserts values at index, one insert edit per value
// in ascending index order. Unless the list was created by this very
// call, the index is checked against its current length.
func (mc *MutationContext) insertListItems(sub *ObjectDiff, index int, values []rdx.Value, newObject bool) error {
	if !newObject {
		obj, err := mc.layer.Get(sub.ObjectID)
		if err != nil {
			return err
		}
		if !obj.Type.IsSequence() {
			return errors.Wrapf(jdoc_errors.ErrTypeMismatch, "insert into %s %s", obj.Type, obj.ID)
		}
		if index < 0 || index > obj.Len() {
			return errors.Wrapf(jdoc_errors.ErrInvalidIndex, "insert at %d, length %d", index, obj.Len())
		}
	}
	if sub.Props == nil {
		sub.Props = make(map[string]Conflicts)
	}
	for i, value := range values {
		at := index + i
		diff, err := mc.setValue(sub.ObjectID, oplog.IndexKey(at), value, true)
		if err != nil {
			return err
		}
		sub.Edits = append(sub.Edits, Edit{Action: EditInsert, Index: at})
		sub.Props[strconv.Itoa(at)] = Conflicts{mc.actor: diff}
	}
	return nil
}

// target resolves the object a path points at, checking its type.
func (mc *MutationContext) target(path Path, types ...rdx.ObjType) (*store.Object, error) {
	obj, err := mc.layer.Get(path.Target())
	if err != nil {
		return nil, err
	}
	for _, t := range types {
		if obj.Type == t {
			return obj, nil
		}
	}
	return nil, errors.Wrapf(jdoc_errors.ErrTypeMismatch, "%s is a %s", obj.ID, obj.Type)
}

// SetMapKey assigns value to key of the map at path. Writing the
// value a key already holds, with no conflict there, does nothing.
func (mc *MutationContext) SetMapKey(path Path, key string, value rdx.Value) error {
	return mc.observe("set_map_key", mc.setMapKey(path, key, value))
}

func (mc *MutationContext) setMapKey(path Path, key string, value rdx.Value) error {
	if key == "" {
		return errors.Wrapf(jdoc_errors.ErrInvalidKey, "at %s", path)
	}
	obj, err := mc.target(path, rdx.MapType)
	if err != nil {
		return err
	}
	current, _ := obj.Values(key)
	if current.HasCounter() {
		return errors.Wrapf(jdoc_errors.ErrCounterOverwrite, "%q of %s", key, obj.ID)
	}
	if v, ok := current.Single(); ok && rdx.Equal(v, value) {
		mc.metrics.elide()
		return nil
	}
	return mc.applyAt(path, func(sub *ObjectDiff) error {
		diff, err := mc.setValue(obj.ID, oplog.MapKey(key), value, false)
		if err != nil {
			return err
		}
		sub.Props[key] = Conflicts{mc.actor: diff}
		return nil
	})
}

// InsertListItems inserts values into the list or text at path,
// starting at index; [0, length] is valid.
func (mc *MutationContext) InsertListItems(path Path, index int, values ...rdx.Value) error {
	return mc.observe("insert_list_items", mc.splice(path, index, 0, values))
}

// GetValueDescription describes a value already in the document;
// refs become object diffs carrying the referenced object's type.
func (mc *MutationContext) GetValueDescription(value rdx.Value) (*Diff, error) {
	if ref, ok := value.(rdx.Ref); ok {
		oid := rdx.ObjectID(ref)
		if oid.IsRoot() {
			return nil, errors.Wrap(jdoc_errors.ErrUnsupportedValue, "the root is not a value")
		}
		typ, err := mc.GetObjectType(oid)
		if err != nil {
			return nil, err
		}
		return &Diff{Object: &ObjectDiff{ObjectID: oid, Type: typ}}, nil
	}
	diff, ok := describePrimitive(value)
	if !ok {
		return nil, errors.Wrapf(jdoc_errors.ErrUnsupportedValue, "%T is not stored as is", value)
	}
	return diff, nil
}

// GetObjectType reports the stored type tag; the root is a map.
func (mc *MutationContext) GetObjectType(id rdx.ObjectID) (rdx.ObjType, error) {
	if id.IsRoot() {
		return rdx.MapType, nil
	}
	obj, err := mc.layer.Get(id)
	if err != nil {
		return 0, err
	}
	return obj.Type, nil
}
