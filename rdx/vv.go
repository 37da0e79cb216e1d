package rdx

import (
	"errors"
	"slices"

	"github.com/learn-decentralized-systems/toytlv"
)

// VV is a version vector, max op seq seen from each known actor.
// A patch carries one as its clock.
type VV map[Actor]uint64

func (vv VV) Get(src Actor) (seq uint64) {
	return vv[src]
}

// Set the progress for the specified source
func (vv VV) Set(src Actor, seq uint64) {
	vv[src] = seq
}

// Put the src-seq pair to the VV, returns whether it was
// unseen (i.e. made any difference)
func (vv VV) Put(src Actor, seq uint64) bool {
	pre, ok := vv[src]
	if ok && pre >= seq {
		return false
	}
	vv[src] = seq
	return true
}

// Adds the id to the VV, returns whether it was unseen
func (vv VV) PutID(id ID) bool {
	return vv.Put(id.Src(), id.Seq())
}

func (vv VV) GetID(src Actor) ID {
	return NewID(src, vv[src])
}

func (vv VV) Copy() VV {
	cp := make(VV, len(vv))
	for src, seq := range vv {
		cp[src] = seq
	}
	return cp
}

// Whether this VV has seen everything bb has seen
func (vv VV) Seen(bb VV) bool {
	for src, seq := range bb {
		if seq > vv[src] {
			return false
		}
	}
	return true
}

func (vv VV) IDs() (ids []ID) {
	for src, seq := range vv {
		ids = append(ids, NewID(src, seq))
	}
	slices.SortFunc(ids, func(a, b ID) int {
		if a.Less(b) {
			return -1
		}
		if b.Less(a) {
			return 1
		}
		return 0
	})
	return
}

var ErrBadVRecord = errors.New("bad V record")

// TLV Vv record, nil for empty
func (vv VV) TLV() (ret []byte) {
	for _, id := range vv.IDs() {
		ret = append(ret, toytlv.Record('V', id.Bytes())...)
	}
	return
}

// consumes: Vv record
func (vv VV) PutTLV(rec []byte) (err error) {
	rest := rec
	for len(rest) > 0 {
		var val []byte
		val, rest, err = toytlv.TakeWary('V', rest)
		if err != nil {
			break
		}
		id := IDFromBytes(val)
		if id == BadId {
			return ErrBadVRecord
		}
		vv.PutID(id)
	}
	return
}

func VVFromTLV(tlv []byte) (vv VV, err error) {
	vv = make(VV)
	err = vv.PutTLV(tlv)
	return
}

func (vv VV) String() string {
	ids := vv.IDs()
	ret := make([]byte, 0, len(vv)*32)
	for i, id := range ids {
		if i > 0 {
			ret = append(ret, ',')
		}
		ret = append(ret, id.String()...)
	}
	return string(ret)
}

func VVFromString(vvs string) (vv VV) {
	vv = make(VV)
	rest := []byte(vvs)
	for len(rest) > 0 {
		var id ID
		id, rest = readIDFromString(rest)
		if id == BadId {
			break
		}
		vv.PutID(id)
		if len(rest) > 0 && rest[0] == ',' {
			rest = rest[1:]
		}
	}
	return
}
