package rdx

import (
	"encoding/binary"
	"strconv"

	"github.com/cespare/xxhash"
	"github.com/google/uuid"
)

// Actor is a replica (writer) identifier. Every op and every
// conflicting value is attributed to one.
type Actor uint64

// ActorFromName derives a stable actor id from a replica name.
func ActorFromName(name string) Actor {
	return Actor(xxhash.Sum64String(name))
}

func (a Actor) String() string {
	return strconv.FormatUint(uint64(a), 16)
}

/*
ID is an op stamp: the n-th op ever produced by an actor.
This is *log time*, not *logical time*; two actors may produce
the same seq, the pair is unique.

	0..............................64..............................128
	|..........source.(actor)......|..........sequence.............|
*/
type ID struct {
	src Actor
	seq uint64
}

var ID0 ID = ID{}

var BadId = ID{^Actor(0), ^uint64(0)}

func NewID(src Actor, seq uint64) ID {
	return ID{src, seq}
}

// Src is the actor that produced the op.
func (id ID) Src() Actor {
	return id.src
}

// Seq is the op sequence number (each actor generates its own).
func (id ID) Seq() uint64 {
	return id.seq
}

func (id ID) Next() ID {
	return ID{id.src, id.seq + 1}
}

func (id ID) Less(other ID) bool {
	if id.src != other.src {
		return id.src < other.src
	}
	return id.seq < other.seq
}

// Bytes is the big-endian form; sorts the same way as Less.
func (id ID) Bytes() []byte {
	var ret [16]byte
	binary.BigEndian.PutUint64(ret[:8], uint64(id.src))
	binary.BigEndian.PutUint64(ret[8:16], id.seq)
	return ret[:]
}

func IDFromBytes(by []byte) ID {
	if len(by) != 16 {
		return BadId
	}
	return ID{
		src: Actor(binary.BigEndian.Uint64(by[:8])),
		seq: binary.BigEndian.Uint64(by[8:16]),
	}
}

func (id ID) String() string {
	var buf [40]byte
	b := buf[:0]
	b = strconv.AppendUint(b, uint64(id.src), 16)
	b = append(b, '-')
	b = strconv.AppendUint(b, id.seq, 16)
	return string(b)
}

// IDFromString parses the src-seq hex form, BadId on failure.
func IDFromString(idstr string) (parsed ID) {
	parsed, _ = readIDFromString([]byte(idstr))
	return
}

func readIDFromString(idstr []byte) (ID, []byte) {
	var parts [2]uint64
	i, p := 0, 0
	for i < len(idstr) && p < 2 {
		c := idstr[i]
		if c >= '0' && c <= '9' {
			parts[p] = (parts[p] << 4) | uint64(c-'0')
		} else if c >= 'A' && c <= 'F' {
			parts[p] = (parts[p] << 4) | uint64(10+c-'A')
		} else if c >= 'a' && c <= 'f' {
			parts[p] = (parts[p] << 4) | uint64(10+c-'a')
		} else if c == '-' {
			p++
		} else {
			break
		}
		i++
	}
	rest := idstr[i:]
	if p != 1 {
		return BadId, rest
	}
	return NewID(Actor(parts[0]), parts[1]), rest
}

// ObjectID names a container object. Ids are globally unique and
// replica-independent; Root is reserved and never created explicitly.
type ObjectID uuid.UUID

var Root = ObjectID(uuid.Nil)

// NewObjectID generates a fresh time-ordered id.
func NewObjectID() ObjectID {
	return ObjectID(uuid.Must(uuid.NewV7()))
}

func (oid ObjectID) IsRoot() bool {
	return oid == Root
}

func (oid ObjectID) String() string {
	if oid == Root {
		return "_root"
	}
	return uuid.UUID(oid).String()
}

func (oid ObjectID) Bytes() []byte {
	return oid[:]
}

func ObjectIDFromBytes(by []byte) (oid ObjectID, ok bool) {
	if len(by) != len(oid) {
		return Root, false
	}
	copy(oid[:], by)
	return oid, true
}

func ParseObjectID(s string) (ObjectID, error) {
	if s == "_root" {
		return Root, nil
	}
	u, err := uuid.Parse(s)
	return ObjectID(u), err
}

// ObjType is the explicit type tag stored with every object.
type ObjType byte

const (
	MapType   ObjType = 'M'
	ListType  ObjType = 'L'
	TextType  ObjType = 'X'
	TableType ObjType = 'T'
)

func (t ObjType) String() string {
	switch t {
	case MapType:
		return "map"
	case ListType:
		return "list"
	case TextType:
		return "text"
	case TableType:
		return "table"
	default:
		return "unknown"
	}
}

// IsSequence is true for types addressed by index.
func (t ObjType) IsSequence() bool {
	return t == ListType || t == TextType
}
