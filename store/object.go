package store

import (
	"strconv"

	"github.com/drpcorg/jdoc/jdoc_errors"
	"github.com/drpcorg/jdoc/rdx"
	"github.com/drpcorg/jdoc/utils"
	"github.com/pkg/errors"
)

// Conflicts is the set of live values at one key, by writer.
// More than one entry means concurrent writers disagree.
type Conflicts map[rdx.Actor]rdx.Value

func (c Conflicts) Copy() Conflicts {
	if c == nil {
		return nil
	}
	cp := make(Conflicts, len(c))
	for a, v := range c {
		cp[a] = v
	}
	return cp
}

// Actors lists the writers in ascending order.
func (c Conflicts) Actors() []rdx.Actor {
	return utils.SortedKeys(c)
}

// Winner applies the highest-actor tie-break. The store never
// collapses a set; this is for readers that want one value.
func (c Conflicts) Winner() (actor rdx.Actor, v rdx.Value, ok bool) {
	actor, ok = utils.MaxKey(c)
	if ok {
		v = c[actor]
	}
	return
}

// Single returns the value if there is exactly one writer.
func (c Conflicts) Single() (rdx.Value, bool) {
	if len(c) != 1 {
		return nil, false
	}
	for _, v := range c {
		return v, true
	}
	return nil, false
}

func (c Conflicts) HasCounter() bool {
	for _, v := range c {
		if _, ok := v.(rdx.Counter); ok {
			return true
		}
	}
	return false
}

// Object is the materialized state of one container. The type tag
// is stored, never inferred. Maps and tables keep Fields, lists and
// text keep one conflict set per position in Elems.
type Object struct {
	ID     rdx.ObjectID
	Type   rdx.ObjType
	Fields map[string]Conflicts
	Elems  []Conflicts
}

func NewObject(id rdx.ObjectID, typ rdx.ObjType) *Object {
	obj := &Object{ID: id, Type: typ}
	if !typ.IsSequence() {
		obj.Fields = make(map[string]Conflicts)
	}
	return obj
}

func (o *Object) Clone() *Object {
	cp := &Object{ID: o.ID, Type: o.Type}
	if o.Fields != nil {
		cp.Fields = make(map[string]Conflicts, len(o.Fields))
		for k, c := range o.Fields {
			cp.Fields[k] = c.Copy()
		}
	}
	if o.Elems != nil {
		cp.Elems = make([]Conflicts, len(o.Elems))
		for i, c := range o.Elems {
			cp.Elems[i] = c.Copy()
		}
	}
	return cp
}

// Len is the number of keys or positions.
func (o *Object) Len() int {
	if o.Type.IsSequence() {
		return len(o.Elems)
	}
	return len(o.Fields)
}

// Tracked is false for objects with no conflict-tracking structure.
func (o *Object) Tracked() bool {
	if o.Type.IsSequence() {
		return true
	}
	return o.Fields != nil
}

func (o *Object) index(key string) (int, bool) {
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= len(o.Elems) {
		return 0, false
	}
	return i, true
}

// Values is the conflict set at key; sequence keys are decimal indexes.
func (o *Object) Values(key string) (Conflicts, bool) {
	if o.Type.IsSequence() {
		i, ok := o.index(key)
		if !ok {
			return nil, false
		}
		return o.Elems[i], true
	}
	c, ok := o.Fields[key]
	return c, ok
}

// SetValues replaces the conflict set at key. An empty set removes a
// map or table key; sequence slots are only removed by Remove.
func (o *Object) SetValues(key string, c Conflicts) error {
	if o.Type.IsSequence() {
		i, ok := o.index(key)
		if !ok {
			return errors.Wrapf(jdoc_errors.ErrInvalidIndex, "%s[%s]", o.ID, key)
		}
		o.Elems[i] = c
		return nil
	}
	if o.Fields == nil {
		return errors.Wrapf(jdoc_errors.ErrUntrackedConflictSet, "%s", o.ID)
	}
	if len(c) == 0 {
		delete(o.Fields, key)
	} else {
		o.Fields[key] = c
	}
	return nil
}

// Insert opens an empty slot at index, [0, len] is valid.
func (o *Object) Insert(index int) error {
	if !o.Type.IsSequence() {
		return errors.Wrapf(jdoc_errors.ErrTypeMismatch, "insert into %s %s", o.Type, o.ID)
	}
	if index < 0 || index > len(o.Elems) {
		return errors.Wrapf(jdoc_errors.ErrInvalidIndex, "insert at %d, length %d", index, len(o.Elems))
	}
	o.Elems = append(o.Elems, nil)
	copy(o.Elems[index+1:], o.Elems[index:])
	o.Elems[index] = Conflicts{}
	return nil
}

// Remove deletes the slot at index, [0, len) is valid.
func (o *Object) Remove(index int) error {
	if !o.Type.IsSequence() {
		return errors.Wrapf(jdoc_errors.ErrTypeMismatch, "remove from %s %s", o.Type, o.ID)
	}
	if index < 0 || index >= len(o.Elems) {
		return errors.Wrapf(jdoc_errors.ErrInvalidIndex, "remove at %d, length %d", index, len(o.Elems))
	}
	o.Elems = append(o.Elems[:index], o.Elems[index+1:]...)
	return nil
}
