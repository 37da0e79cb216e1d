package oplog

import (
	"strconv"
	"strings"

	"github.com/drpcorg/jdoc/rdx"
)

// Action is what an op does to its target.
type Action byte

const (
	Set       Action = 'S'
	MakeMap   Action = 'M'
	MakeList  Action = 'L'
	MakeText  Action = 'X'
	MakeTable Action = 'T'
	Del       Action = 'D'
	Inc       Action = 'I'
)

// MakeAction is the container-creating action for a type.
func MakeAction(typ rdx.ObjType) Action {
	switch typ {
	case rdx.MapType:
		return MakeMap
	case rdx.ListType:
		return MakeList
	case rdx.TextType:
		return MakeText
	case rdx.TableType:
		return MakeTable
	}
	return 0
}

// IsMake is true for actions that create a child object.
func (a Action) IsMake() bool {
	switch a {
	case MakeMap, MakeList, MakeText, MakeTable:
		return true
	}
	return false
}

func (a Action) Valid() bool {
	return a.IsMake() || a == Set || a == Del || a == Inc
}

func (a Action) String() string {
	switch a {
	case Set:
		return "set"
	case MakeMap:
		return "makeMap"
	case MakeList:
		return "makeList"
	case MakeText:
		return "makeText"
	case MakeTable:
		return "makeTable"
	case Del:
		return "del"
	case Inc:
		return "inc"
	}
	return "?"
}

// Key is a map entry name or a list/text position.
type Key struct {
	name  string
	index int
	seq   bool
}

func MapKey(name string) Key {
	return Key{name: name}
}

func IndexKey(index int) Key {
	return Key{index: index, seq: true}
}

func (k Key) IsIndex() bool {
	return k.seq
}

func (k Key) Name() string {
	return k.name
}

func (k Key) Index() int {
	return k.index
}

// Valid: names are non-empty, indexes non-negative.
func (k Key) Valid() bool {
	if k.seq {
		return k.index >= 0
	}
	return k.name != ""
}

// String is the key as used in patch props.
func (k Key) String() string {
	if k.seq {
		return strconv.Itoa(k.index)
	}
	return k.name
}

// Op is one atomic recorded change destined for the replicated log.
// Child is set for container-creating actions only; Value for Set
// and Inc.
type Op struct {
	ID     rdx.ID
	Action Action
	Obj    rdx.ObjectID
	Key    Key
	Insert bool
	Value  rdx.Value
	Child  rdx.ObjectID
}

func (op Op) String() string {
	var b strings.Builder
	b.WriteString(op.ID.String())
	b.WriteByte(' ')
	b.WriteString(op.Action.String())
	b.WriteByte(' ')
	b.WriteString(op.Obj.String())
	if op.Key.IsIndex() {
		b.WriteByte('[')
		b.WriteString(op.Key.String())
		b.WriteByte(']')
	} else {
		b.WriteByte('.')
		b.WriteString(op.Key.String())
	}
	if op.Insert {
		b.WriteString(" ins")
	}
	if op.Value != nil {
		b.WriteByte(' ')
		b.WriteString(rdx.ValueString(op.Value))
	}
	if op.Action.IsMake() {
		b.WriteString(" -> ")
		b.WriteString(op.Child.String())
	}
	return b.String()
}
