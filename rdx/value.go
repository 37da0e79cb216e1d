package rdx

import (
	"encoding/binary"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/learn-decentralized-systems/toytlv"
)

// Value is a closed set of value variants: scalars (Null, Bool,
// Int, Float, String), the two datatypes (Timestamp, Counter),
// nested containers to be created (Map, List, Text, Table) and
// references to existing objects (Ref). Callers construct one of
// these explicitly; there is no reflection on arbitrary Go values.
type Value interface {
	// Rdt is the one-letter type code, also the TLV record type.
	Rdt() byte
	isValue()
}

type Null struct{}
type Bool bool
type Int int64
type Float float64
type String string

// Timestamp is a point in time, surfaced with the timestamp datatype.
type Timestamp time.Time

// Counter can only be changed by increments once written.
type Counter int64

// Map creates a nested map.
type Map map[string]Value

// List creates a nested list.
type List []Value

// Text creates a nested text object, one element per rune.
type Text string

// Table creates a nested table; only an empty one can be assigned.
type Table []Map

// Ref points at an object that already exists in the document.
type Ref ObjectID

const (
	NullRdt      = 'U'
	BoolRdt      = 'B'
	IntRdt       = 'I'
	FloatRdt     = 'F'
	StringRdt    = 'S'
	TimestampRdt = 'D'
	CounterRdt   = 'C'
	RefRdt       = 'R'
)

func (Null) Rdt() byte      { return NullRdt }
func (Bool) Rdt() byte      { return BoolRdt }
func (Int) Rdt() byte       { return IntRdt }
func (Float) Rdt() byte     { return FloatRdt }
func (String) Rdt() byte    { return StringRdt }
func (Timestamp) Rdt() byte { return TimestampRdt }
func (Counter) Rdt() byte   { return CounterRdt }
func (Ref) Rdt() byte       { return RefRdt }
func (Map) Rdt() byte       { return byte(MapType) }
func (List) Rdt() byte      { return byte(ListType) }
func (Text) Rdt() byte      { return byte(TextType) }
func (Table) Rdt() byte     { return byte(TableType) }

func (Null) isValue()      {}
func (Bool) isValue()      {}
func (Int) isValue()       {}
func (Float) isValue()     {}
func (String) isValue()    {}
func (Timestamp) isValue() {}
func (Counter) isValue()   {}
func (Ref) isValue()       {}
func (Map) isValue()       {}
func (List) isValue()      {}
func (Text) isValue()      {}
func (Table) isValue()     {}

func (ts Timestamp) Time() time.Time {
	return time.Time(ts)
}

// IsPrimitive is true for values that fit in a single Set op.
func IsPrimitive(v Value) bool {
	switch v.(type) {
	case Null, Bool, Int, Float, String, Timestamp, Counter:
		return true
	}
	return false
}

// IsContainer is true for the nested-object constructors.
func IsContainer(v Value) bool {
	switch v.(type) {
	case Map, List, Text, Table:
		return true
	}
	return false
}

// ContainerType maps a nested-object constructor to its type tag.
func ContainerType(v Value) (ObjType, bool) {
	switch v.(type) {
	case Map:
		return MapType, true
	case List:
		return ListType, true
	case Text:
		return TextType, true
	case Table:
		return TableType, true
	}
	return 0, false
}

// Equal compares primitives and refs; containers are never equal
// as each one creates a new object.
func Equal(a, b Value) bool {
	if a == nil || b == nil || a.Rdt() != b.Rdt() {
		return false
	}
	switch av := a.(type) {
	case Null:
		return true
	case Bool:
		return av == b.(Bool)
	case Int:
		return av == b.(Int)
	case Float:
		return av == b.(Float)
	case String:
		return av == b.(String)
	case Timestamp:
		return av.Time().Equal(b.(Timestamp).Time())
	case Counter:
		return av == b.(Counter)
	case Ref:
		return av == b.(Ref)
	}
	return false
}

// Native converts a primitive to a plain Go value.
func Native(v Value) any {
	switch x := v.(type) {
	case Null:
		return nil
	case Bool:
		return bool(x)
	case Int:
		return int64(x)
	case Float:
		return float64(x)
	case String:
		return string(x)
	case Timestamp:
		return x.Time()
	case Counter:
		return int64(x)
	case Ref:
		return ObjectID(x)
	}
	return nil
}

func ValueString(v Value) string {
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case Null:
		return "null"
	case Bool:
		return strconv.FormatBool(bool(x))
	case Int:
		return strconv.FormatInt(int64(x), 10)
	case Float:
		return strconv.FormatFloat(float64(x), 'g', -1, 64)
	case String:
		return strconv.Quote(string(x))
	case Timestamp:
		return x.Time().UTC().Format(time.RFC3339Nano)
	case Counter:
		return "+" + strconv.FormatInt(int64(x), 10)
	case Ref:
		return "{" + ObjectID(x).String() + "}"
	case Map:
		return "map[" + strconv.Itoa(len(x)) + "]"
	case List:
		return "list[" + strconv.Itoa(len(x)) + "]"
	case Text:
		return "text" + strconv.Quote(string(x))
	case Table:
		return "table[" + strconv.Itoa(len(x)) + "]"
	}
	return "?"
}

var ErrNotEncodable = errors.New("value has no wire form")
var ErrBadValueRecord = errors.New("bad value record")

// ValueTLV is the record of a primitive or a ref.
func ValueTLV(v Value) ([]byte, error) {
	var body []byte
	switch x := v.(type) {
	case Null:
	case Bool:
		if x {
			body = []byte{1}
		} else {
			body = []byte{0}
		}
	case Int:
		body = binary.AppendVarint(nil, int64(x))
	case Counter:
		body = binary.AppendVarint(nil, int64(x))
	case Float:
		body = binary.BigEndian.AppendUint64(nil, math.Float64bits(float64(x)))
	case String:
		body = []byte(x)
	case Timestamp:
		body = binary.AppendVarint(nil, x.Time().UnixNano())
	case Ref:
		body = ObjectID(x).Bytes()
	default:
		return nil, ErrNotEncodable
	}
	return toytlv.Record(v.Rdt(), body), nil
}

// ValueFromTLV parses one value record off the front of tlv.
func ValueFromTLV(tlv []byte) (v Value, rest []byte, err error) {
	lit, hlen, blen := toytlv.ProbeHeader(tlv)
	if lit == 0 || lit == '-' || hlen+blen > len(tlv) {
		return nil, tlv, ErrBadValueRecord
	}
	body := tlv[hlen : hlen+blen]
	rest = tlv[hlen+blen:]
	switch lit {
	case NullRdt:
		v = Null{}
	case BoolRdt:
		if len(body) != 1 {
			return nil, rest, ErrBadValueRecord
		}
		v = Bool(body[0] != 0)
	case IntRdt, CounterRdt, TimestampRdt:
		n, l := binary.Varint(body)
		if l <= 0 {
			return nil, rest, ErrBadValueRecord
		}
		switch lit {
		case IntRdt:
			v = Int(n)
		case CounterRdt:
			v = Counter(n)
		default:
			v = Timestamp(time.Unix(0, n))
		}
	case FloatRdt:
		if len(body) != 8 {
			return nil, rest, ErrBadValueRecord
		}
		v = Float(math.Float64frombits(binary.BigEndian.Uint64(body)))
	case StringRdt:
		v = String(body)
	case RefRdt:
		oid, ok := ObjectIDFromBytes(body)
		if !ok {
			return nil, rest, ErrBadValueRecord
		}
		v = Ref(oid)
	default:
		return nil, rest, ErrBadValueRecord
	}
	return
}
