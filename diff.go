package jdoc

import (
	"github.com/drpcorg/jdoc/rdx"
	"github.com/drpcorg/jdoc/utils"
)

// Datatype distinguishes scalars that need special handling by readers.
type Datatype string

const (
	Plain         Datatype = ""
	TimestampType Datatype = "timestamp"
	CounterType   Datatype = "counter"
)

// Diff is either a value (Value, Datatype) or a nested object (Object).
type Diff struct {
	Value    rdx.Value
	Datatype Datatype
	Object   *ObjectDiff
}

func (d *Diff) IsObject() bool {
	return d.Object != nil
}

// describePrimitive is the one place scalars and datatypes are
// classified, both for new assignments and for existing values.
func describePrimitive(v rdx.Value) (*Diff, bool) {
	switch x := v.(type) {
	case rdx.Timestamp:
		return &Diff{Value: x, Datatype: TimestampType}, true
	case rdx.Counter:
		return &Diff{Value: x, Datatype: CounterType}, true
	case rdx.Null, rdx.Bool, rdx.Int, rdx.Float, rdx.String:
		return &Diff{Value: x}, true
	}
	return nil, false
}

type EditAction byte

const (
	EditInsert EditAction = 'i'
	EditRemove EditAction = 'r'
)

// Edit is a positional change of a sequence: a new slot at Index (to
// be filled by the matching props entry) or a removed one. Edits are
// applied in order.
type Edit struct {
	Action EditAction
	Index  int
}

// Conflicts holds every live value at a key by writer.
type Conflicts map[rdx.Actor]*Diff

// Actors lists the writers in ascending order.
func (c Conflicts) Actors() []rdx.Actor {
	return utils.SortedKeys(c)
}

// Winner applies the highest-actor tie-break.
func (c Conflicts) Winner() (actor rdx.Actor, d *Diff, ok bool) {
	actor, ok = utils.MaxKey(c)
	if ok {
		d = c[actor]
	}
	return
}

// ObjectDiff describes the touched part of one object.
type ObjectDiff struct {
	ObjectID rdx.ObjectID
	Type     rdx.ObjType
	Edits    []Edit
	Props    map[string]Conflicts
}

func NewObjectDiff(id rdx.ObjectID, typ rdx.ObjType) *ObjectDiff {
	return &ObjectDiff{
		ObjectID: id,
		Type:     typ,
		Props:    make(map[string]Conflicts),
	}
}

// Touched is false for diffs that only name an object.
func (od *ObjectDiff) Touched() bool {
	return len(od.Edits) > 0 || len(od.Props) > 0
}

// Patch is built and applied once per top-level mutation call.
type Patch struct {
	Clock   rdx.VV
	Version uint64
	Diffs   *ObjectDiff
}
